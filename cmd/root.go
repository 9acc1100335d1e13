package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/suppli-hq/suppli-cli/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "suppli-cli",
	Short: "Order generation assistant for small-business replenishment",
	Long:  "Generates vendor purchase recommendations from sales history, approved orders, and promotions, and learns per-product quantity biases from user edits.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
