package main

import (
	"encoding/json"
	"errors"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/suppli-hq/suppli-cli/internal/generate"
	"github.com/suppli-hq/suppli-cli/internal/model"
)

var (
	generateBusinessID string
	generateFrom       string
	generateTo         string
	generateMode       string
	generateVendorIDs  []string
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate order recommendations for a business",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("generate"); err != nil {
			return err
		}

		input, err := buildGenerationInput()
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		result, err := generate.NewGenerator(st).Generate(ctx, input)
		if err != nil {
			switch {
			case errors.Is(err, generate.ErrNoVendors):
				return eris.New("no active vendors found; add a vendor before generating orders")
			case errors.Is(err, generate.ErrNoProducts):
				return eris.New("no products linked to the selected vendors; link products before generating orders")
			}
			var fetchErr *generate.DataFetchError
			if errors.As(err, &fetchErr) {
				return eris.Wrapf(fetchErr.Err, "fetch %s", fetchErr.Dataset)
			}
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			return eris.Wrap(err, "encode result")
		}

		zap.L().Info("generation complete",
			zap.String("business_id", input.BusinessID),
			zap.Int("products", result.Summary.TotalProducts),
		)
		return nil
	},
}

func buildGenerationInput() (model.GenerationInput, error) {
	mode := model.OrderMode(generateMode)
	if mode == "" {
		mode = model.OrderMode(cfg.Generation.DefaultMode)
	}
	switch mode {
	case model.ModeGuided, model.ModeFullAuto, model.ModeSimulation:
	default:
		return model.GenerationInput{}, eris.Errorf("invalid mode %q: must be guided, full_auto, or simulation", mode)
	}

	periodStart := time.Now().UTC().Truncate(24 * time.Hour)
	periodEnd := periodStart.AddDate(0, 0, cfg.Generation.DefaultPeriodDays)
	var err error
	if generateFrom != "" {
		if periodStart, err = time.Parse("2006-01-02", generateFrom); err != nil {
			return model.GenerationInput{}, eris.Wrapf(err, "parse --from %q", generateFrom)
		}
	}
	if generateTo != "" {
		if periodEnd, err = time.Parse("2006-01-02", generateTo); err != nil {
			return model.GenerationInput{}, eris.Wrapf(err, "parse --to %q", generateTo)
		}
	}
	if periodEnd.Before(periodStart) {
		return model.GenerationInput{}, eris.New("--to must not be before --from")
	}

	return model.GenerationInput{
		BusinessID:  generateBusinessID,
		PeriodStart: periodStart,
		PeriodEnd:   periodEnd,
		Mode:        mode,
		VendorIDs:   generateVendorIDs,
	}, nil
}

func init() {
	generateCmd.Flags().StringVar(&generateBusinessID, "business", "", "business ID (required)")
	generateCmd.Flags().StringVar(&generateFrom, "from", "", "period start, YYYY-MM-DD (default today)")
	generateCmd.Flags().StringVar(&generateTo, "to", "", "period end, YYYY-MM-DD (default from config)")
	generateCmd.Flags().StringVar(&generateMode, "mode", "", "generation mode: guided, full_auto, or simulation")
	generateCmd.Flags().StringSliceVar(&generateVendorIDs, "vendors", nil, "restrict generation to these vendor IDs")
	_ = generateCmd.MarkFlagRequired("business")
	rootCmd.AddCommand(generateCmd)
}
