package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"vahanfetch/pkg/logger"
	"vahanfetch/pkg/scraper"
)

var (
	// Fetch command flags
	fetchAll       bool
	statesFlag     string
	rateLimitFlag  int
	rawDirFlag     string
	refetchMissing bool
	resetCompleted bool
)

// fetchCmd represents the fetch command
var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch dashboard panels for every configured state",
	Long: `Fetch walks each state's sub-regions, categories, years, and months in a
fixed deterministic order and stores every panel fragment under the raw
directory. Completed work is recorded in the ledger and skipped on reruns; the
ledger is reconciled against the artifacts on disk before any request is made.

By default only the month preceding the current one is fetched. Use
--fetch-all for the complete tracked history.`,
	Example: `  # Fetch the latest month for all states
  vahanfetch fetch

  # Fetch the full tracked history for two states
  vahanfetch fetch --fetch-all --states KA,DL

  # Drop no-data placeholders and try those periods again
  vahanfetch fetch --fetch-all --refetch-missing

  # Start over, ignoring previous progress
  vahanfetch fetch --reset-completed`,
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := make(map[string]interface{})
		if statesFlag != "" {
			flags["states"] = statesFlag
		}
		if fetchAll {
			flags["fetch-all"] = true
		}
		if rateLimitFlag > 0 {
			flags["rate-limit"] = rateLimitFlag
		}
		if rawDirFlag != "" {
			flags["raw-dir"] = rawDirFlag
		}

		cfg, err := loadConfig(flags)
		if err != nil {
			return err
		}

		s, err := scraper.New(cfg)
		if err != nil {
			return err
		}

		if resetCompleted {
			if err := s.Ledger().Reset(); err != nil {
				return err
			}
		}
		if refetchMissing {
			removed, err := s.Artifacts().DeletePlaceholders()
			if err != nil {
				return err
			}
			logger.WithField("count", removed).Info("placeholder artifacts cleared for refetch")
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := s.Run(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				logger.Warn("fetch interrupted, progress saved")
				return nil
			}
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(fetchCmd)

	fetchCmd.Flags().BoolVar(&fetchAll, "fetch-all", false, "fetch every tracked year and month instead of only the latest month")
	fetchCmd.Flags().StringVar(&statesFlag, "states", "", "comma-separated state codes to fetch (default: all)")
	fetchCmd.Flags().IntVar(&rateLimitFlag, "rate-limit", 0, "requests per minute (0 uses the configured value)")
	fetchCmd.Flags().StringVar(&rawDirFlag, "raw-dir", "", "directory for raw artifacts")
	fetchCmd.Flags().BoolVar(&refetchMissing, "refetch-missing", false, "delete placeholder artifacts so their periods are fetched again")
	fetchCmd.Flags().BoolVar(&resetCompleted, "reset-completed", false, "discard the completion ledger before fetching")
}
