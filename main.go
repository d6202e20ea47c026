package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/okx/txstorm/bench"
	"github.com/okx/txstorm/submit"
	"github.com/okx/txstorm/utils"
)

const (
	FlagConfigFile  = "config-file"
	FlagRpc         = "rpc"
	FlagKeyFile     = "key-file"
	FlagDestination = "destination"
	FlagAmount      = "amount"
	FlagVerbosity   = "verbosity"
	FlagBatchSize   = "batch-size"
	FlagPause       = "pause-interval"
	FlagMaxTxs      = "max-txs"
	FlagBatchCount  = "batch-count"
	FlagTargetTPS   = "target-tps"
)

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:   "txstorm",
		Short: "Transaction submission stress tool",
		Long: `A command-line tool that keeps a node's transaction pool saturated with
signed transfers from a single account, tracking the account nonce locally
and resynchronizing it from the node after rejections.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		bulkCmd(),
		streamCmd(),
		nonceCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func bulkCmd() *cobra.Command {
	v := utils.NewViper()
	cmd := &cobra.Command{
		Use:   "bulk",
		Short: "Pre-build one batch that fills the pool and submit it",
		Long: `Build poolLimit-poolHeadroom signed transfers with contiguous nonces
starting at the account's current nonce, then submit them in order.

Example:
  txstorm bulk -f ./testdata/config.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMode(cmd.Context(), v, submit.ModeBulk)
		},
	}

	addCommonFlags(cmd, v)
	cmd.Flags().Int(FlagBatchCount, 0, "Transactions to build (0 fills the pool)")
	cmd.Flags().Int(FlagTargetTPS, 0, "Submission rate limit (0 means no limit)")
	bindFlag(v, cmd, "batchCount", FlagBatchCount)
	bindFlag(v, cmd, "targetTPS", FlagTargetTPS)

	return cmd
}

func streamCmd() *cobra.Command {
	v := utils.NewViper()
	cmd := &cobra.Command{
		Use:   "stream",
		Short: "Build and submit transfers one at a time with pacing",
		Long: `Build and submit one transfer at a time, pausing after every batch-size
accepted transactions and resynchronizing the nonce after a rejection.
Runs until interrupted or max-txs transactions were accepted.

Example:
  txstorm stream -f ./testdata/config.json --batch-size 100 --pause-interval 6s`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMode(cmd.Context(), v, submit.ModeStream)
		},
	}

	addCommonFlags(cmd, v)
	cmd.Flags().Int(FlagBatchSize, submit.DefaultBatchSize, "Accepted transactions between pacing pauses")
	cmd.Flags().Duration(FlagPause, submit.DefaultPauseInterval, "Pacing pause and rejection backoff")
	cmd.Flags().Uint64(FlagMaxTxs, 0, "Stop after this many accepted transactions (0 runs until interrupted)")
	bindFlag(v, cmd, "batchSize", FlagBatchSize)
	bindFlag(v, cmd, "pauseInterval", FlagPause)
	bindFlag(v, cmd, "maxTxs", FlagMaxTxs)

	return cmd
}

func nonceCmd() *cobra.Command {
	v := utils.NewViper()
	cmd := &cobra.Command{
		Use:   "nonce",
		Short: "Print the sender account and its nonce on the node",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			account, n, err := bench.QueryNonce(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			fmt.Printf("%s %d\n", account.Hex(), n)
			return nil
		},
	}

	addCommonFlags(cmd, v)

	return cmd
}

func addCommonFlags(cmd *cobra.Command, v *viper.Viper) {
	cmd.Flags().StringVarP(&configPath, FlagConfigFile, "f", "", "Path to the configuration file")
	cmd.Flags().String(FlagRpc, "", "Node RPC endpoint")
	cmd.Flags().String(FlagKeyFile, "", "File holding the sender private key")
	cmd.Flags().String(FlagDestination, "", "Transfer destination address")
	cmd.Flags().String(FlagAmount, "", "Transfer amount in wei, or with an ETH suffix")
	cmd.Flags().Int(FlagVerbosity, 3, "Log level (0=silent, 1=error, 2=warn, 3=info, 4=debug, 5=trace)")
	bindFlag(v, cmd, "rpc", FlagRpc)
	bindFlag(v, cmd, "keyFile", FlagKeyFile)
	bindFlag(v, cmd, "destination", FlagDestination)
	bindFlag(v, cmd, "amount", FlagAmount)
	bindFlag(v, cmd, "verbosity", FlagVerbosity)
}

func bindFlag(v *viper.Viper, cmd *cobra.Command, key, flag string) {
	if err := v.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
		panic(fmt.Sprintf("bind flag %s: %v", flag, err))
	}
}

func loadConfig(v *viper.Viper) (utils.Config, error) {
	cfg, err := utils.LoadConfig(v, configPath)
	if err != nil {
		return utils.Config{}, err
	}
	setupLogger(cfg.Verbosity)
	return cfg, nil
}

func setupLogger(verbosity int) {
	handler := log.NewTerminalHandlerWithLevel(os.Stdout, log.FromLegacyLevel(verbosity), true)
	log.SetDefault(log.NewLogger(handler))
}

func runMode(parent context.Context, v *viper.Viper, mode submit.Mode) error {
	cfg, err := loadConfig(v)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	report, err := bench.Run(ctx, cfg, mode)
	if err != nil {
		return fmt.Errorf("%s run failed: %w", mode, err)
	}
	if report.Rejected > 0 {
		log.Warn("Some transactions were rejected", "rejected", report.Rejected, "accepted", report.Accepted)
	}
	return nil
}
