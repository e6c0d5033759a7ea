package main

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	regtest "github.com/neverDefined/regtest-report"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "txreport",
	Short: "Regtest Miner -> Trader transaction report",
	Long: `Funds a Miner wallet on a regtest node, sends 20 BTC to a Trader wallet,
confirms it and writes a 10-line report describing the transaction.`,
	SilenceUsage: true,
	RunE:         runReport,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "optional JSON config file")

	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(nodeCmd)
	rootCmd.AddCommand(historyCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads the configuration and builds the logger from it.
func loadConfig() (*regtest.Config, *log.Logger, error) {
	cfg, err := regtest.LoadConfig(configPath)
	if err != nil {
		return nil, nil, err
	}

	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid log_level %q: %w", cfg.LogLevel, err)
	}

	logger := log.New()
	logger.SetOutput(os.Stderr)
	logger.SetLevel(level)
	return cfg, logger, nil
}
