package main

import (
	"bufio"
	"encoding/json"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/roastcraft/enrich-cli/internal/batch"
	"github.com/roastcraft/enrich-cli/internal/model"
)

var (
	batchFile        string
	batchLimit       int
	batchConcurrency int
	batchRetryDLQ    bool
	batchOutput      string
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Enrich many records concurrently from a JSON or JSONL file",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		records, err := loadRecords(batchFile)
		if err != nil {
			return err
		}
		if batchLimit > 0 && len(records) > batchLimit {
			records = records[:batchLimit]
		}

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		concurrency := batchConcurrency
		if concurrency <= 0 {
			concurrency = cfg.Batch.MaxConcurrentRecords
		}
		runner := batch.NewRunner(env.Orchestrator, concurrency, env.DLQ)

		summary, err := runner.Process(ctx, records)
		if err != nil {
			return eris.Wrap(err, "batch processing")
		}

		if batchRetryDLQ && env.DLQ.Depth() > 0 {
			retried, retryErr := runner.RetryDeadLetters(ctx)
			if retryErr != nil {
				return eris.Wrap(retryErr, "retry dead letters")
			}
			summary.Succeeded += retried.Succeeded
			summary.Outputs = append(summary.Outputs, retried.Outputs...)
		}

		zap.L().Info("batch finished",
			zap.Int("processed", summary.Processed),
			zap.Int("succeeded", summary.Succeeded),
			zap.Int("failed", summary.Failed),
			zap.Int("dlq_depth", env.DLQ.Depth()),
			zap.Float64("cost_usd", env.Ledger.TotalUSD()))

		if batchOutput != "" {
			return writeOutputs(batchOutput, summary.Outputs)
		}
		return nil
	},
}

// loadRecords accepts either a JSON array of records or JSONL with one
// record per line.
func loadRecords(path string) ([]model.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "read records file %s", path)
	}

	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		var records []model.Record
		if err := json.Unmarshal(data, &records); err != nil {
			return nil, eris.Wrapf(err, "parse records file %s", path)
		}
		return records, nil
	}

	var records []model.Record
	scanner := bufio.NewScanner(strings.NewReader(trimmed))
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var rec model.Record
		if err := json.Unmarshal([]byte(text), &rec); err != nil {
			return nil, eris.Wrapf(err, "parse %s line %d", path, line)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, eris.Wrapf(err, "scan records file %s", path)
	}
	return records, nil
}

func writeOutputs(path string, outputs []*model.EnrichedRecord) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "create output file %s", path)
	}
	defer f.Close() //nolint:errcheck

	enc := json.NewEncoder(f)
	for _, out := range outputs {
		if err := enc.Encode(out); err != nil {
			return eris.Wrap(err, "write output")
		}
	}
	return nil
}

func init() {
	batchCmd.Flags().StringVar(&batchFile, "file", "", "path to a JSON array or JSONL file of records")
	batchCmd.Flags().IntVar(&batchLimit, "limit", 0, "process at most N records (0 = all)")
	batchCmd.Flags().IntVar(&batchConcurrency, "concurrency", 0, "worker count (default from config)")
	batchCmd.Flags().BoolVar(&batchRetryDLQ, "retry-dlq", false, "retry dead-lettered records once after the batch")
	batchCmd.Flags().StringVar(&batchOutput, "output", "", "write enriched records as JSONL to this file")
	_ = batchCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(batchCmd)
}
