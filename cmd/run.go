package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/roastcraft/enrich-cli/internal/model"
)

var runFile string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Enrich a single record from a JSON file",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		rec, err := loadRecord(runFile)
		if err != nil {
			return err
		}

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := env.Orchestrator.Run(ctx, rec)
		if err != nil {
			return eris.Wrap(err, "run enrichment")
		}

		zap.L().Info("run finished",
			zap.String("run_id", res.Run.ID),
			zap.String("stage", string(res.Run.Stage)),
			zap.Float64("cost_usd", env.Ledger.TotalUSD()))

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res.Output)
	},
}

func loadRecord(path string) (model.Record, error) {
	var rec model.Record
	data, err := os.ReadFile(path)
	if err != nil {
		return rec, eris.Wrapf(err, "read record file %s", path)
	}
	if err := json.Unmarshal(data, &rec); err != nil {
		return rec, eris.Wrapf(err, "parse record file %s", path)
	}
	if rec.ID == "" {
		return rec, eris.New("record file: missing id")
	}
	return rec, nil
}

func init() {
	runCmd.Flags().StringVar(&runFile, "file", "", "path to a record JSON file")
	_ = runCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(runCmd)
}
