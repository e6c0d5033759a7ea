package main

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	regtest "github.com/neverDefined/regtest-report"
	"github.com/neverDefined/regtest-report/archive"
	"github.com/neverDefined/regtest-report/report"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Run the transfer and write the report (default command)",
	Args:  cobra.NoArgs,
	RunE:  runReport,
}

func runReport(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	session, err := regtest.Dial(cfg, logger)
	if err != nil {
		return err
	}
	defer session.Close()

	rep, err := report.NewGenerator(session, cfg.OutputPath, cmd.OutOrStdout(), logger).Run()
	if err != nil {
		return err
	}

	if cfg.ArchivePath == "" {
		return nil
	}

	store, err := archive.Open(cfg.ArchivePath)
	if err != nil {
		return err
	}
	defer store.Close()

	rec, err := store.Save(cmd.Context(), rep)
	if err != nil {
		return err
	}
	logger.WithFields(log.Fields{
		"id":   rec.ID,
		"path": cfg.ArchivePath,
	}).Info("archived report")

	return nil
}

var sendCmd = &cobra.Command{
	Use:   "send <address> <amount-btc>",
	Short: "Pay an address from the Miner wallet using the send RPC",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}

		amount, err := report.ParseAmount(args[1])
		if err != nil {
			return err
		}

		session, err := regtest.Dial(cfg, logger)
		if err != nil {
			return err
		}
		defer session.Close()

		txid, err := regtest.Send(session.Miner, map[string]btcutil.Amount{args[0]: amount})
		if err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), txid)
		return nil
	},
}

var nodeCmd = &cobra.Command{
	Use:   "node",
	Short: "Manage the local regtest bitcoind",
}

func init() {
	nodeCmd.AddCommand(
		&cobra.Command{
			Use:   "start",
			Short: "Start bitcoind in regtest mode",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, _, err := loadConfig()
				if err != nil {
					return err
				}
				return regtest.StartBitcoinRegtest(cfg)
			},
		},
		&cobra.Command{
			Use:   "stop",
			Short: "Stop bitcoind and remove its data directory",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, _, err := loadConfig()
				if err != nil {
					return err
				}
				return regtest.StopBitcoinRegtest(cfg)
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "Report whether bitcoind is running",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, _, err := loadConfig()
				if err != nil {
					return err
				}
				running, err := regtest.IsBitcoindRunning(cfg)
				if err != nil {
					return err
				}
				if running {
					fmt.Fprintln(cmd.OutOrStdout(), "bitcoind is running")
				} else {
					fmt.Fprintln(cmd.OutOrStdout(), "bitcoind is stopped")
				}
				return nil
			},
		},
	)

	historyCmd.Flags().Int("limit", 10, "maximum number of reports to show")
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List archived reports, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.ArchivePath == "" {
			return fmt.Errorf("archive_path is not configured")
		}

		limit, err := cmd.Flags().GetInt("limit")
		if err != nil {
			return err
		}

		store, err := archive.Open(cfg.ArchivePath)
		if err != nil {
			return err
		}
		defer store.Close()

		recs, err := store.List(cmd.Context(), limit)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		for _, rec := range recs {
			rep := rec.Report()
			fmt.Fprintf(out, "%s  height=%d  sent=%s  change=%s  fee=%s  %s\n",
				rec.CreatedAt.Format("2006-01-02 15:04:05"), rep.BlockHeight,
				report.FormatAmount(rep.RecipientAmount), report.FormatAmount(rep.ChangeAmount),
				report.FormatAmount(rep.Fee), rep.TxID)
		}
		return nil
	},
}
