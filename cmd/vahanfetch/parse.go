package main

import (
	"github.com/spf13/cobra"
	"vahanfetch/pkg/records"
)

// parseCmd represents the parse command
var parseCmd = &cobra.Command{
	Use:   "parse",
	Short: "Parse raw artifacts into the combined dataset",
	Long: `Parse reads every panel artifact under the raw directory and emits one
combined long-format dataset (state, sub-region, year, month, metric, name,
count) as a gzip-compressed CSV in the data directory.

Directories whose artifacts were all parsed in a previous run are skipped.
Placeholder artifacts contribute no records.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(make(map[string]interface{}))
		if err != nil {
			return err
		}
		return records.NewParser(cfg).Run()
	},
}

func init() {
	rootCmd.AddCommand(parseCmd)
}
