package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/suppli-hq/suppli-cli/internal/learning"
)

var (
	biasesBusinessID string
	biasesProductIDs []string
)

var biasesCmd = &cobra.Command{
	Use:   "biases",
	Short: "Show stored learning biases for products",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		biases, err := learning.NewTracker(st).Biases(ctx, biasesBusinessID, biasesProductIDs)
		if err != nil {
			return eris.Wrap(err, "fetch biases")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(biases)
	},
}

func init() {
	biasesCmd.Flags().StringVar(&biasesBusinessID, "business", "", "business ID (required)")
	biasesCmd.Flags().StringSliceVar(&biasesProductIDs, "products", nil, "product IDs to look up (required)")
	_ = biasesCmd.MarkFlagRequired("business")
	_ = biasesCmd.MarkFlagRequired("products")
	rootCmd.AddCommand(biasesCmd)
}
