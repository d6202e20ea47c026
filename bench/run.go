// Package bench wires configuration, the node client and the submission
// engine into a single stress-test run.
package bench

import (
	"context"
	"fmt"
	"sort"

	ethcmn "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"

	"github.com/okx/txstorm/nonce"
	"github.com/okx/txstorm/submit"
	"github.com/okx/txstorm/txbuilder"
	"github.com/okx/txstorm/utils"
)

// Run connects to the node, fetches the starting nonce and drives the
// strategy selected by mode until it finishes or ctx is cancelled.
func Run(ctx context.Context, cfg utils.Config, mode submit.Mode) (*submit.Report, error) {
	l := log.New("run", uuid.NewString(), "mode", mode)

	cli, err := utils.NewEthClient(ctx, cfg.Rpc, cfg.NonceSource)
	if err != nil {
		return nil, err
	}
	defer cli.Close()

	builder, transfer, err := newBuilder(ctx, cli, cfg)
	if err != nil {
		return nil, err
	}
	account := builder.Sender()

	recovery := submit.NewRecovery(cli, account, l)
	start, err := recovery.Query(ctx)
	if err != nil {
		return nil, err
	}
	tracker := nonce.NewTracker(start)
	l.Info("Starting run", "rpc", cfg.Rpc, "account", account, "nonce", start,
		"destination", transfer.To, "amount", transfer.Amount)

	deps := submit.Deps{
		Ledger:   cli,
		Tracker:  tracker,
		Builder:  builder,
		Transfer: transfer,
		Recovery: recovery,
		Log:      l,
	}
	if mode == submit.ModeBulk {
		deps.Generator = txbuilder.NewGenerator(builder, transfer, txbuilder.GeneratorConfig{
			PoolLimit:     cfg.PoolLimit,
			PoolHeadroom:  cfg.PoolHeadroom,
			Workers:       cfg.BuildWorkers,
			ProgressEvery: cfg.ProgressEvery,
		}, l)
	}
	if cfg.MempoolPauseThreshold > 0 {
		deps.Pool = cli
	}
	if cfg.SaveTxHashes {
		w, err := utils.NewTxHashWriter(cfg.TxHashFile, l)
		if err != nil {
			return nil, err
		}
		defer func() {
			if err := w.Close(); err != nil {
				l.Warn("Failed to close tx hash file", "err", err)
			}
		}()
		deps.Recorder = w
	}

	strategy, err := submit.New(submit.Config{
		Mode:               mode,
		BatchSize:          cfg.BatchSize,
		BatchCount:         cfg.BatchCount,
		PauseInterval:      cfg.PauseInterval,
		TargetTPS:          cfg.TargetTPS,
		MaxTxs:             cfg.MaxTxs,
		PoolPauseThreshold: cfg.MempoolPauseThreshold,
		ProgressEvery:      cfg.ProgressEvery,
	}, deps)
	if err != nil {
		return nil, err
	}

	if cfg.ShowTPS {
		monitorCtx, stopMonitor := context.WithCancel(ctx)
		monitorDone := make(chan struct{})
		go func() {
			defer close(monitorDone)
			utils.NewTPSMonitor(cli, cfg.TPSInterval, tracker.Current, l).Run(monitorCtx)
		}()
		defer func() {
			stopMonitor()
			<-monitorDone
		}()
	}

	report, err := strategy.Run(ctx)
	if report != nil {
		logReport(l, report)
	}
	return report, err
}

// QueryNonce returns the sender account and its authoritative nonce.
func QueryNonce(ctx context.Context, cfg utils.Config) (ethcmn.Address, uint64, error) {
	cli, err := utils.NewEthClient(ctx, cfg.Rpc, cfg.NonceSource)
	if err != nil {
		return ethcmn.Address{}, 0, err
	}
	defer cli.Close()

	builder, _, err := newBuilder(ctx, cli, cfg)
	if err != nil {
		return ethcmn.Address{}, 0, err
	}
	n, err := submit.NewRecovery(cli, builder.Sender(), log.Root()).Query(ctx)
	return builder.Sender(), n, err
}

func newBuilder(ctx context.Context, cli *utils.EthClient, cfg utils.Config) (*txbuilder.Builder, txbuilder.Transfer, error) {
	chainID, err := cli.ResolveChainID(ctx, cfg.ChainID)
	if err != nil {
		return nil, txbuilder.Transfer{}, fmt.Errorf("%w: chain id: %v", submit.ErrQueryFailed, err)
	}
	keyHex, err := cfg.PrivateKeyHex()
	if err != nil {
		return nil, txbuilder.Transfer{}, err
	}
	cred, err := txbuilder.KeyCredentialFromHex(keyHex, chainID)
	if err != nil {
		return nil, txbuilder.Transfer{}, err
	}
	amount, err := utils.ParseAmount(cfg.Amount)
	if err != nil {
		return nil, txbuilder.Transfer{}, fmt.Errorf("%w: %v", txbuilder.ErrConstruction, err)
	}

	gasPrice := utils.ParseGasPriceToBigInt(cfg.GasPriceGwei, 9)
	builder := txbuilder.NewBuilder(cred, cfg.GasLimit, gasPrice)
	return builder, txbuilder.Transfer{To: cfg.Destination, Amount: amount}, nil
}

func logReport(l log.Logger, r *submit.Report) {
	l.Info("Run finished",
		"submitted", r.Submitted,
		"accepted", r.Accepted,
		"rejected", r.Rejected,
		"pauses", r.PacingPauses,
		"resyncs", r.Resyncs,
		"landedDespiteRejection", r.LandedDespiteRejection,
		"startNonce", r.StartNonce,
		"finalNonce", r.FinalNonce,
		"elapsed", r.Elapsed,
	)

	reasons := make([]string, 0, len(r.RejectedByReason))
	for reason := range r.RejectedByReason {
		reasons = append(reasons, string(reason))
	}
	sort.Strings(reasons)
	for _, reason := range reasons {
		l.Info("Rejections", "reason", reason, "count", r.RejectedByReason[submit.Reason(reason)])
	}
}
