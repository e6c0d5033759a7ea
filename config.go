package regtest

import (
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/rpcclient"
	"github.com/spf13/viper"
)

// ---------------------------------------------------------------
//  Configuration
// ---------------------------------------------------------------

// Config holds everything needed to reach a regtest node and to run the
// report procedure against it.
//
// The connection values (Host, User, Pass) are fixed constants. LoadConfig
// refuses a config file that sets them and nothing is read from the
// environment; only code building a Config directly can point it elsewhere.
type Config struct {
	// Host is the RPC endpoint in host:port form, without scheme.
	Host string `mapstructure:"host"`
	User string `mapstructure:"user"`
	Pass string `mapstructure:"pass"`

	// MinerWallet funds the transfer, TraderWallet receives it.
	MinerWallet  string `mapstructure:"miner_wallet"`
	TraderWallet string `mapstructure:"trader_wallet"`

	// OutputPath is where the 10-line report is written.
	OutputPath string `mapstructure:"output_path"`

	// ArchivePath enables the SQLite report archive when non-empty.
	ArchivePath string `mapstructure:"archive_path"`

	LogLevel string `mapstructure:"log_level"`

	// DataDir and ExtraArgs are only used by the bitcoind manager script.
	DataDir   string   `mapstructure:"data_dir"`
	ExtraArgs []string `mapstructure:"extra_args"`
}

const (
	defaultHost         = "127.0.0.1:18443"
	defaultUser         = "alice"
	defaultPass         = "password"
	defaultMinerWallet  = "Miner"
	defaultTraderWallet = "Trader"
	defaultOutputPath   = "../out.txt"
	defaultDataDir      = "./bitcoind_regtest"
)

// DefaultConfig returns the fixed connection parameters of the regtest node.
//
// Returns:
//   - *Config: a fresh copy, safe to modify
//
// Configuration details:
//   - Host: 127.0.0.1:18443 (standard regtest RPC port)
//   - Authentication: alice/password
//   - Wallets: Miner and Trader
//   - Report file: ../out.txt
func DefaultConfig() *Config {
	return &Config{
		Host:         defaultHost,
		User:         defaultUser,
		Pass:         defaultPass,
		MinerWallet:  defaultMinerWallet,
		TraderWallet: defaultTraderWallet,
		OutputPath:   defaultOutputPath,
		LogLevel:     "info",
		DataDir:      defaultDataDir,
		ExtraArgs:    []string{"-txindex=1", "-deprecatedrpc=warnings"},
	}
}

// connectionKeys cannot be set from a config file.
var connectionKeys = []string{"host", "user", "pass"}

// LoadConfig builds a Config from the defaults, overlaid with the JSON file at
// path when path is non-empty. The file may not set the connection keys.
func LoadConfig(path string) (*Config, error) {
	def := DefaultConfig()

	v := viper.New()
	v.SetConfigType("json")
	v.SetDefault("host", def.Host)
	v.SetDefault("user", def.User)
	v.SetDefault("pass", def.Pass)
	v.SetDefault("miner_wallet", def.MinerWallet)
	v.SetDefault("trader_wallet", def.TraderWallet)
	v.SetDefault("output_path", def.OutputPath)
	v.SetDefault("archive_path", def.ArchivePath)
	v.SetDefault("log_level", def.LogLevel)
	v.SetDefault("data_dir", def.DataDir)
	v.SetDefault("extra_args", def.ExtraArgs)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}

		for _, key := range connectionKeys {
			if v.InConfig(key) {
				return nil, fmt.Errorf("config file %s: %q is fixed and cannot be overridden", path, key)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error decoding config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate reports every missing required field at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Host == "" {
		errs = append(errs, errors.New("host is required"))
	}
	if strings.Contains(c.Host, "://") {
		errs = append(errs, fmt.Errorf("host %q must not include a scheme", c.Host))
	}
	if c.MinerWallet == "" {
		errs = append(errs, errors.New("miner_wallet is required"))
	}
	if c.TraderWallet == "" {
		errs = append(errs, errors.New("trader_wallet is required"))
	}
	if c.MinerWallet != "" && c.MinerWallet == c.TraderWallet {
		errs = append(errs, errors.New("miner_wallet and trader_wallet must be different"))
	}
	if c.OutputPath == "" {
		errs = append(errs, errors.New("output_path is required"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %w", errors.Join(errs...))
	}
	return nil
}

// ConnConfig returns the rpcclient configuration for the node endpoint, or
// for a wallet-scoped endpoint when wallet is non-empty.
//
// Configuration details:
//   - HTTP POST mode enabled for JSON-RPC communication
//   - TLS disabled for local development
//   - Addresses decoded against regtest parameters
func (c *Config) ConnConfig(wallet string) *rpcclient.ConnConfig {
	host := c.Host
	if wallet != "" {
		host = host + "/wallet/" + wallet
	}

	return &rpcclient.ConnConfig{
		Host:         host,
		User:         c.User,
		Pass:         c.Pass,
		Params:       "regtest",
		HTTPPostMode: true,
		DisableTLS:   true,
	}
}

// Port returns the port part of Host, falling back to the regtest default.
func (c *Config) Port() string {
	if i := strings.LastIndex(c.Host, ":"); i >= 0 && i < len(c.Host)-1 {
		return c.Host[i+1:]
	}
	return "18443"
}
