package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/roastcraft/enrich-cli/internal/metrics"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show review queue depth and store counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		snap, err := metrics.NewCollector(metrics.NewRecorder(), nil, st).Collect(ctx)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
