package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/roastcraft/enrich-cli/internal/review"
)

var (
	reviewsLimit    int
	reviewsReviewer string
)

var reviewsCmd = &cobra.Command{
	Use:   "reviews",
	Short: "Inspect and settle the review queue",
}

var reviewsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List enrichments pending review",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		queue := review.NewQueue(st, nil, nil)
		pending, err := queue.Pending(ctx, reviewsLimit)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(pending)
	},
}

var reviewsApproveCmd = &cobra.Command{
	Use:   "approve <enrichment-id>",
	Short: "Approve a pending enrichment and apply its value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		queue := review.NewQueue(st, nil, nil)
		if err := queue.Approve(ctx, args[0], reviewsReviewer); err != nil {
			return err
		}
		zap.L().Info("enrichment approved",
			zap.String("id", args[0]),
			zap.String("reviewer", reviewsReviewer))
		return nil
	},
}

var reviewsRejectCmd = &cobra.Command{
	Use:   "reject <enrichment-id>",
	Short: "Reject a pending enrichment",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		queue := review.NewQueue(st, nil, nil)
		if err := queue.Reject(ctx, args[0], reviewsReviewer); err != nil {
			return err
		}
		zap.L().Info("enrichment rejected",
			zap.String("id", args[0]),
			zap.String("reviewer", reviewsReviewer))
		return nil
	},
}

func init() {
	reviewsListCmd.Flags().IntVar(&reviewsLimit, "limit", 50, "maximum records to list")
	reviewsCmd.PersistentFlags().StringVar(&reviewsReviewer, "reviewer", "", "reviewer identifier recorded on the decision")

	reviewsCmd.AddCommand(reviewsListCmd, reviewsApproveCmd, reviewsRejectCmd)
	rootCmd.AddCommand(reviewsCmd)
}
