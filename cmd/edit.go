package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/suppli-hq/suppli-cli/internal/learning"
)

var (
	editBusinessID  string
	editProductID   string
	editRecommended float64
	editFinal       float64
)

var editCmd = &cobra.Command{
	Use:   "edit",
	Short: "Record a user edit of a generated order line",
	Long:  "Feeds an edited quantity into the learning loop so future recommendations for the product drift toward the user's corrections.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		tracker := learning.NewTracker(st)
		tracker.RecordEdit(ctx, editBusinessID, editProductID, editRecommended, editFinal)

		zap.L().Info("edit recorded",
			zap.String("business_id", editBusinessID),
			zap.String("product_id", editProductID),
			zap.Float64("recommended", editRecommended),
			zap.Float64("final", editFinal),
			zap.Float64("bias", tracker.Bias(ctx, editBusinessID, editProductID)),
		)
		return nil
	},
}

func init() {
	editCmd.Flags().StringVar(&editBusinessID, "business", "", "business ID (required)")
	editCmd.Flags().StringVar(&editProductID, "product", "", "product ID (required)")
	editCmd.Flags().Float64Var(&editRecommended, "recommended", 0, "originally recommended quantity (required)")
	editCmd.Flags().Float64Var(&editFinal, "final", 0, "final quantity after the edit (required)")
	_ = editCmd.MarkFlagRequired("business")
	_ = editCmd.MarkFlagRequired("product")
	_ = editCmd.MarkFlagRequired("recommended")
	_ = editCmd.MarkFlagRequired("final")
	rootCmd.AddCommand(editCmd)
}
