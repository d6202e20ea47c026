package utils

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

const EnvPrefix = "TXSTORM"

// Config is everything a run needs. It is read from an optional config file,
// TXSTORM_* environment variables and command-line flags, in increasing order
// of precedence.
type Config struct {
	Rpc              string `mapstructure:"rpc" validate:"required,url"`
	SenderPrivateKey string `mapstructure:"senderPrivateKey" validate:"required_without=KeyFile"`
	KeyFile          string `mapstructure:"keyFile" validate:"required_without=SenderPrivateKey"`
	ChainID          uint64 `mapstructure:"chainID"` // 0 asks the node
	NonceSource      string `mapstructure:"nonceSource" validate:"oneof=pending latest"`

	Destination  string  `mapstructure:"destination" validate:"required"`
	Amount       string  `mapstructure:"amount" validate:"required"` // wei, or with an ETH suffix
	GasLimit     uint64  `mapstructure:"gasLimit"`
	GasPriceGwei float64 `mapstructure:"gasPriceGwei" validate:"gte=0"`

	PoolLimit    int `mapstructure:"poolLimit" validate:"gt=0"`
	PoolHeadroom int `mapstructure:"poolHeadroom" validate:"gte=0,ltfield=PoolLimit"`
	BatchCount   int `mapstructure:"batchCount" validate:"gte=0"` // bulk; 0 fills the pool
	BuildWorkers int `mapstructure:"buildWorkers" validate:"gte=0"`
	TargetTPS    int `mapstructure:"targetTPS" validate:"gte=0"` // bulk; 0 means no limit

	BatchSize             int           `mapstructure:"batchSize" validate:"gt=0"` // stream
	PauseInterval         time.Duration `mapstructure:"pauseInterval" validate:"gt=0"`
	MaxTxs                uint64        `mapstructure:"maxTxs"` // stream; 0 runs until interrupted
	MempoolPauseThreshold int           `mapstructure:"mempoolPauseThreshold" validate:"gte=0"`

	ProgressEvery int           `mapstructure:"progressEvery" validate:"gte=0"`
	SaveTxHashes  bool          `mapstructure:"saveTxHashes"`
	TxHashFile    string        `mapstructure:"txHashFile"`
	ShowTPS       bool          `mapstructure:"showTPS"`
	TPSInterval   time.Duration `mapstructure:"tpsInterval" validate:"gte=0"`
	Verbosity     int           `mapstructure:"verbosity" validate:"gte=0,lte=5"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// SetDefaults registers every config key with viper, so environment
// variables are honoured even for keys absent from the config file.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("rpc", "")
	v.SetDefault("senderPrivateKey", "")
	v.SetDefault("keyFile", "")
	v.SetDefault("chainID", 0)
	v.SetDefault("nonceSource", NonceSourcePending)
	v.SetDefault("destination", "")
	v.SetDefault("amount", "1")
	v.SetDefault("gasLimit", 21000)
	v.SetDefault("gasPriceGwei", 1.0)
	v.SetDefault("poolLimit", 8192)
	v.SetDefault("poolHeadroom", 2)
	v.SetDefault("batchCount", 0)
	v.SetDefault("buildWorkers", 0)
	v.SetDefault("targetTPS", 0)
	v.SetDefault("batchSize", 100)
	v.SetDefault("pauseInterval", 6*time.Second)
	v.SetDefault("maxTxs", 0)
	v.SetDefault("mempoolPauseThreshold", 0)
	v.SetDefault("progressEvery", 500)
	v.SetDefault("saveTxHashes", false)
	v.SetDefault("txHashFile", "./txhashes.log")
	v.SetDefault("showTPS", false)
	v.SetDefault("tpsInterval", 5*time.Second)
	v.SetDefault("verbosity", 3)
}

// NewViper returns a viper instance with defaults and environment binding.
func NewViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
	return v
}

// LoadConfig reads configPath (if any) into v, then decodes and validates.
func LoadConfig(v *viper.Viper, configPath string) (Config, error) {
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("failed to read config file %s: %w", configPath, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks field constraints and reports every violation at once.
func (c Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Field(), fe.Tag()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, ", "))
}

// PrivateKeyHex returns the sender key from the config or the first line of KeyFile.
func (c Config) PrivateKeyHex() (string, error) {
	if c.SenderPrivateKey != "" {
		return c.SenderPrivateKey, nil
	}
	lines, err := ReadDataFromFile(c.KeyFile)
	if err != nil {
		return "", err
	}
	if len(lines) == 0 || lines[0] == "" {
		return "", fmt.Errorf("key file %s is empty", c.KeyFile)
	}
	return lines[0], nil
}
