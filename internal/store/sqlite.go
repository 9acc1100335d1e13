package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/suppli-hq/suppli-cli/internal/model"
)

// dateLayout is how DATE columns are stored in sqlite; the lexical order of
// this layout matches chronological order, so range predicates work on TEXT.
const dateLayout = "2006-01-02"

// SQLiteStore implements Store against an embedded sqlite database. It is the
// zero-infrastructure backend for local and single-operator deployments.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLite opens (creating if needed) a sqlite database at path. Pass
// ":memory:" for an ephemeral database.
func NewSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := conn.ExecContext(ctx, pragma); err != nil {
			conn.Close()
			return nil, eris.Wrapf(err, "sqlite: %s", pragma)
		}
	}

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, eris.Wrap(err, "sqlite: ping")
	}
	return &SQLiteStore{db: conn, now: time.Now}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS vendors (
	id          TEXT PRIMARY KEY,
	business_id TEXT NOT NULL,
	name        TEXT NOT NULL,
	archived_at TEXT
);

CREATE TABLE IF NOT EXISTS products (
	id               TEXT PRIMARY KEY,
	business_id      TEXT NOT NULL,
	name             TEXT NOT NULL,
	waste_sensitive  INTEGER NOT NULL DEFAULT 0,
	max_stock_amount REAL,
	archived_at      TEXT
);

CREATE TABLE IF NOT EXISTS vendor_products (
	business_id TEXT NOT NULL,
	vendor_id   TEXT NOT NULL REFERENCES vendors(id),
	product_id  TEXT NOT NULL REFERENCES products(id),
	unit_type   TEXT NOT NULL DEFAULT 'unit',
	PRIMARY KEY (vendor_id, product_id)
);

CREATE TABLE IF NOT EXISTS orders (
	id          TEXT PRIMARY KEY,
	business_id TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'draft',
	approved_at TEXT
);

CREATE TABLE IF NOT EXISTS order_lines (
	id             TEXT PRIMARY KEY,
	order_id       TEXT NOT NULL REFERENCES orders(id),
	product_id     TEXT NOT NULL,
	final_quantity REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS sales_events (
	business_id TEXT NOT NULL,
	product_id  TEXT NOT NULL,
	quantity    REAL NOT NULL,
	event_date  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS promotions (
	id          TEXT PRIMARY KEY,
	business_id TEXT NOT NULL,
	start_date  TEXT NOT NULL,
	end_date    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS promotion_products (
	promotion_id TEXT NOT NULL REFERENCES promotions(id),
	product_id   TEXT NOT NULL,
	uplift       TEXT NOT NULL DEFAULT 'low',
	PRIMARY KEY (promotion_id, product_id)
);

CREATE TABLE IF NOT EXISTS learning_adjustments (
	id               TEXT PRIMARY KEY,
	business_id      TEXT NOT NULL,
	product_id       TEXT NOT NULL,
	adjustment_type  TEXT NOT NULL DEFAULT 'quantity_bias',
	adjustment_value REAL NOT NULL,
	created_at       TEXT NOT NULL,
	updated_at       TEXT NOT NULL,
	UNIQUE (business_id, product_id, adjustment_type)
);

CREATE INDEX IF NOT EXISTS idx_vendors_business ON vendors(business_id);
CREATE INDEX IF NOT EXISTS idx_products_business ON products(business_id);
CREATE INDEX IF NOT EXISTS idx_vendor_products_business ON vendor_products(business_id);
CREATE INDEX IF NOT EXISTS idx_sales_events_lookup ON sales_events(business_id, product_id, event_date);
CREATE INDEX IF NOT EXISTS idx_order_lines_product ON order_lines(product_id);
CREATE INDEX IF NOT EXISTS idx_promotions_business ON promotions(business_id, start_date, end_date);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// placeholders renders "?, ?, ?" for an IN clause with n entries.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func stringArgs(ids []string) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

func (s *SQLiteStore) FetchActiveVendors(ctx context.Context, businessID string, vendorIDs []string) ([]model.Vendor, error) {
	query := `SELECT id, name FROM vendors WHERE business_id = ? AND archived_at IS NULL`
	args := []any{businessID}
	if len(vendorIDs) > 0 {
		query += ` AND id IN (` + placeholders(len(vendorIDs)) + `)`
		args = append(args, stringArgs(vendorIDs)...)
	}
	query += ` ORDER BY name`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: fetch active vendors")
	}
	defer rows.Close()

	var vendors []model.Vendor
	for rows.Next() {
		v := model.Vendor{BusinessID: businessID}
		if err := rows.Scan(&v.ID, &v.Name); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan vendor")
		}
		vendors = append(vendors, v)
	}
	return vendors, eris.Wrap(rows.Err(), "sqlite: fetch active vendors iterate")
}

func (s *SQLiteStore) FetchVendorProductLinks(ctx context.Context, businessID string, vendorIDs []string) ([]model.VendorProductLink, error) {
	query := `SELECT vp.vendor_id, v.name, vp.product_id, p.name, vp.unit_type, p.waste_sensitive, p.max_stock_amount
		FROM vendor_products vp
		JOIN vendors v ON v.id = vp.vendor_id
		JOIN products p ON p.id = vp.product_id
		WHERE vp.business_id = ? AND p.archived_at IS NULL`
	args := []any{businessID}
	if len(vendorIDs) > 0 {
		query += ` AND vp.vendor_id IN (` + placeholders(len(vendorIDs)) + `)`
		args = append(args, stringArgs(vendorIDs)...)
	}
	query += ` ORDER BY v.name, p.name`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: fetch vendor product links")
	}
	defer rows.Close()

	var links []model.VendorProductLink
	for rows.Next() {
		var l model.VendorProductLink
		var unitType string
		var wasteSensitive int
		var maxStock sql.NullFloat64
		if err := rows.Scan(&l.VendorID, &l.VendorName, &l.ProductID, &l.ProductName, &unitType, &wasteSensitive, &maxStock); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan vendor product link")
		}
		l.UnitType = model.UnitType(unitType)
		l.WasteSensitive = wasteSensitive != 0
		if maxStock.Valid {
			v := maxStock.Float64
			l.MaxStockAmount = &v
		}
		links = append(links, l)
	}
	return links, eris.Wrap(rows.Err(), "sqlite: fetch vendor product links iterate")
}

func (s *SQLiteStore) FetchSalesStats(ctx context.Context, businessID string, productIDs []string, periodStart, periodEnd time.Time) (map[string]model.SalesData, error) {
	if len(productIDs) == 0 {
		return map[string]model.SalesData{}, nil
	}

	query := `SELECT product_id, quantity, event_date FROM sales_events
		WHERE business_id = ? AND product_id IN (` + placeholders(len(productIDs)) + `)
		AND event_date >= ? AND event_date <= ?`
	args := append([]any{businessID}, stringArgs(productIDs)...)
	args = append(args, periodStart.Format(dateLayout), periodEnd.Format(dateLayout))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: fetch sales events")
	}
	defer rows.Close()

	var events []model.SalesEvent
	for rows.Next() {
		e := model.SalesEvent{BusinessID: businessID}
		var eventDate string
		if err := rows.Scan(&e.ProductID, &e.Quantity, &eventDate); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan sales event")
		}
		e.EventDate, err = time.Parse(dateLayout, eventDate)
		if err != nil {
			return nil, eris.Wrapf(err, "sqlite: parse event date %q", eventDate)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: fetch sales events iterate")
	}

	return buildSalesStats(events, s.now().UTC()), nil
}

func (s *SQLiteStore) FetchLatestApprovedOrders(ctx context.Context, businessID string, productIDs []string) (map[string]model.PreviousOrder, error) {
	if len(productIDs) == 0 {
		return map[string]model.PreviousOrder{}, nil
	}

	// sqlite has no DISTINCT ON; a window function picks the newest approved
	// line per product instead.
	query := `SELECT product_id, final_quantity, approved_at FROM (
			SELECT ol.product_id, ol.final_quantity, o.approved_at,
				ROW_NUMBER() OVER (PARTITION BY ol.product_id ORDER BY o.approved_at DESC) AS rn
			FROM order_lines ol
			JOIN orders o ON o.id = ol.order_id
			WHERE o.business_id = ? AND o.status = 'approved'
				AND ol.product_id IN (` + placeholders(len(productIDs)) + `)
		) WHERE rn = 1`
	args := append([]any{businessID}, stringArgs(productIDs)...)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: fetch latest approved orders")
	}
	defer rows.Close()

	orders := make(map[string]model.PreviousOrder)
	for rows.Next() {
		var po model.PreviousOrder
		var approvedAt string
		if err := rows.Scan(&po.ProductID, &po.Quantity, &approvedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan approved order")
		}
		po.OrderDate, err = time.Parse(time.RFC3339, approvedAt)
		if err != nil {
			return nil, eris.Wrapf(err, "sqlite: parse approved_at %q", approvedAt)
		}
		po.WasApproved = true
		orders[po.ProductID] = po
	}
	return orders, eris.Wrap(rows.Err(), "sqlite: fetch latest approved orders iterate")
}

func (s *SQLiteStore) FetchActivePromotions(ctx context.Context, businessID string, productIDs []string, periodStart, periodEnd time.Time) (map[string]model.Promotion, error) {
	if len(productIDs) == 0 {
		return map[string]model.Promotion{}, nil
	}

	query := `SELECT pp.product_id, pp.uplift, pr.start_date, pr.end_date
		FROM promotion_products pp
		JOIN promotions pr ON pr.id = pp.promotion_id
		WHERE pr.business_id = ? AND pp.product_id IN (` + placeholders(len(productIDs)) + `)
		AND pr.start_date <= ? AND pr.end_date >= ?`
	args := append([]any{businessID}, stringArgs(productIDs)...)
	args = append(args, periodEnd.Format(dateLayout), periodStart.Format(dateLayout))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: fetch promotions")
	}
	defer rows.Close()

	promotions := make(map[string]model.Promotion)
	for rows.Next() {
		var p model.Promotion
		var uplift, startDate, endDate string
		if err := rows.Scan(&p.ProductID, &uplift, &startDate, &endDate); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan promotion")
		}
		p.Uplift = model.PromotionUplift(uplift)
		if p.StartDate, err = time.Parse(dateLayout, startDate); err != nil {
			return nil, eris.Wrapf(err, "sqlite: parse start_date %q", startDate)
		}
		if p.EndDate, err = time.Parse(dateLayout, endDate); err != nil {
			return nil, eris.Wrapf(err, "sqlite: parse end_date %q", endDate)
		}
		promotions[p.ProductID] = p
	}
	return promotions, eris.Wrap(rows.Err(), "sqlite: fetch promotions iterate")
}

func (s *SQLiteStore) FetchLearningBiases(ctx context.Context, businessID string, productIDs []string) (map[string]float64, error) {
	if len(productIDs) == 0 {
		return map[string]float64{}, nil
	}

	query := `SELECT product_id, adjustment_value FROM learning_adjustments
		WHERE business_id = ? AND adjustment_type = ?
		AND product_id IN (` + placeholders(len(productIDs)) + `)`
	args := append([]any{businessID, adjustmentTypeQuantityBias}, stringArgs(productIDs)...)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: fetch learning biases")
	}
	defer rows.Close()

	biases := make(map[string]float64)
	for rows.Next() {
		var productID string
		var value float64
		if err := rows.Scan(&productID, &value); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan learning bias")
		}
		biases[productID] = value
	}
	return biases, eris.Wrap(rows.Err(), "sqlite: fetch learning biases iterate")
}

func (s *SQLiteStore) GetLearningBias(ctx context.Context, businessID, productID string) (float64, bool, error) {
	var value float64
	err := s.db.QueryRowContext(ctx,
		`SELECT adjustment_value FROM learning_adjustments WHERE business_id = ? AND product_id = ? AND adjustment_type = ?`,
		businessID, productID, adjustmentTypeQuantityBias,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, eris.Wrapf(err, "sqlite: get learning bias for %s", productID)
	}
	return value, true, nil
}

func (s *SQLiteStore) UpsertLearningBias(ctx context.Context, businessID, productID string, value float64) error {
	now := s.now().UTC().Format(time.RFC3339)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO learning_adjustments (id, business_id, product_id, adjustment_type, adjustment_value, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (business_id, product_id, adjustment_type)
		DO UPDATE SET adjustment_value = excluded.adjustment_value, updated_at = excluded.updated_at`,
		uuid.New().String(), businessID, productID, adjustmentTypeQuantityBias, value, now, now,
	)
	return eris.Wrapf(err, "sqlite: upsert learning bias for %s", productID)
}

func (s *SQLiteStore) ImportSalesEvents(ctx context.Context, events []model.SalesEvent) (int64, error) {
	if len(events) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin import")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO sales_events (business_id, product_id, quantity, event_date) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare import")
	}
	defer stmt.Close()

	for _, e := range events {
		if _, err := stmt.ExecContext(ctx, e.BusinessID, e.ProductID, e.Quantity, e.EventDate.Format(dateLayout)); err != nil {
			return 0, eris.Wrap(err, "sqlite: insert sales event")
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit import")
	}
	return int64(len(events)), nil
}

func (s *SQLiteStore) ImportProducts(ctx context.Context, products []model.Product) (int64, error) {
	if len(products) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin import")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO products (id, business_id, name, waste_sensitive, max_stock_amount)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			waste_sensitive = excluded.waste_sensitive,
			max_stock_amount = excluded.max_stock_amount`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare import")
	}
	defer stmt.Close()

	for _, p := range products {
		waste := 0
		if p.WasteSensitive {
			waste = 1
		}
		if _, err := stmt.ExecContext(ctx, p.ID, p.BusinessID, p.Name, waste, p.MaxStockAmount); err != nil {
			return 0, eris.Wrap(err, "sqlite: upsert product")
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit import")
	}
	return int64(len(products)), nil
}
