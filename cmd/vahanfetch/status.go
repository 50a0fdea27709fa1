package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"vahanfetch/pkg/ledger"
)

var statusVerbose bool

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show completion ledger summary",
	Long: `Status summarizes the completion ledger: how many sub-regions, categories,
years, and months are recorded complete. Coarser entries subsume everything
beneath them, so counts reflect the frontier of finished work, not raw leaf
totals.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(make(map[string]interface{}))
		if err != nil {
			return err
		}

		store := ledger.NewStore(cfg.Output.LedgerPath, cfg.Fetch.Years, nil)
		if err := store.Load(); err != nil {
			return err
		}

		sum := store.Summarize()
		fmt.Printf("Ledger: %s\n", cfg.Output.LedgerPath)
		fmt.Printf("  complete sub-regions: %d\n", sum.RTOs)
		fmt.Printf("  complete categories:  %d\n", sum.Categories)
		fmt.Printf("  complete years:       %d\n", sum.Years)
		fmt.Printf("  complete months:      %d\n", sum.Months)

		if statusVerbose {
			fmt.Println("Entries:")
			for _, key := range store.Entries() {
				fmt.Printf("  %s\n", key)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().BoolVarP(&statusVerbose, "verbose", "v", false, "list every ledger entry")
}
