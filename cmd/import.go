package main

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/suppli-hq/suppli-cli/internal/model"
)

var importCSVPath string

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import data from CSV files",
}

var importSalesCmd = &cobra.Command{
	Use:   "sales",
	Short: "Import sales events from CSV",
	Long:  "Expects columns: business_id, product_id, quantity, event_date (YYYY-MM-DD). A header row is detected and skipped.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		f, err := os.Open(importCSVPath)
		if err != nil {
			return eris.Wrap(err, "open csv")
		}
		defer f.Close()

		events, err := parseSalesCSV(f)
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		n, err := st.ImportSalesEvents(ctx, events)
		if err != nil {
			return err
		}

		zap.L().Info("sales import complete",
			zap.Int64("imported", n),
			zap.String("csv", importCSVPath),
		)
		return nil
	},
}

var importProductsCmd = &cobra.Command{
	Use:   "products",
	Short: "Import or update products from CSV",
	Long:  "Expects columns: id, business_id, name, waste_sensitive, max_stock_amount. Existing products are updated in place.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		f, err := os.Open(importCSVPath)
		if err != nil {
			return eris.Wrap(err, "open csv")
		}
		defer f.Close()

		products, err := parseProductsCSV(f)
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		n, err := st.ImportProducts(ctx, products)
		if err != nil {
			return err
		}

		zap.L().Info("product import complete",
			zap.Int64("imported", n),
			zap.String("csv", importCSVPath),
		)
		return nil
	},
}

func parseSalesCSV(r io.Reader) ([]model.SalesEvent, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = 4

	var events []model.SalesEvent
	for line := 1; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrapf(err, "read csv line %d", line)
		}
		if line == 1 && record[0] == "business_id" {
			continue
		}

		quantity, err := strconv.ParseFloat(record[2], 64)
		if err != nil {
			return nil, eris.Wrapf(err, "line %d: parse quantity %q", line, record[2])
		}
		eventDate, err := time.Parse("2006-01-02", record[3])
		if err != nil {
			return nil, eris.Wrapf(err, "line %d: parse event_date %q", line, record[3])
		}

		events = append(events, model.SalesEvent{
			BusinessID: record[0],
			ProductID:  record[1],
			Quantity:   quantity,
			EventDate:  eventDate,
		})
	}
	return events, nil
}

func parseProductsCSV(r io.Reader) ([]model.Product, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = 5

	var products []model.Product
	for line := 1; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrapf(err, "read csv line %d", line)
		}
		if line == 1 && record[0] == "id" {
			continue
		}

		wasteSensitive, err := strconv.ParseBool(record[3])
		if err != nil {
			return nil, eris.Wrapf(err, "line %d: parse waste_sensitive %q", line, record[3])
		}

		p := model.Product{
			ID:             record[0],
			BusinessID:     record[1],
			Name:           record[2],
			WasteSensitive: wasteSensitive,
		}
		if record[4] != "" {
			maxStock, err := strconv.ParseFloat(record[4], 64)
			if err != nil {
				return nil, eris.Wrapf(err, "line %d: parse max_stock_amount %q", line, record[4])
			}
			p.MaxStockAmount = &maxStock
		}
		products = append(products, p)
	}
	return products, nil
}

func init() {
	importCmd.PersistentFlags().StringVar(&importCSVPath, "csv", "", "path to CSV file (required)")
	_ = importCmd.MarkPersistentFlagRequired("csv")
	importCmd.AddCommand(importSalesCmd)
	importCmd.AddCommand(importProductsCmd)
	rootCmd.AddCommand(importCmd)
}
