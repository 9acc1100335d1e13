package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/suppli-hq/suppli-cli/internal/db"
	"github.com/suppli-hq/suppli-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
	now     func() time.Time
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the hot generation-path lookups.
var preparedStatements = map[string]string{
	"fetch_sales_events":    sqlFetchSalesEvents,
	"fetch_latest_approved": sqlFetchLatestApproved,
	"fetch_promotions":      sqlFetchPromotions,
	"fetch_biases":          sqlFetchBiases,
	"get_bias":              sqlGetBias,
	"upsert_bias":           sqlUpsertBias,
}

const (
	sqlFetchSalesEvents = `SELECT product_id, quantity, event_date FROM sales_events WHERE business_id = $1 AND product_id = ANY($2) AND event_date >= $3 AND event_date <= $4`

	sqlFetchLatestApproved = `SELECT DISTINCT ON (ol.product_id) ol.product_id, ol.final_quantity, o.approved_at
		FROM order_lines ol
		JOIN orders o ON o.id = ol.order_id
		WHERE o.business_id = $1 AND o.status = 'approved' AND ol.product_id = ANY($2)
		ORDER BY ol.product_id, o.approved_at DESC`

	sqlFetchPromotions = `SELECT pp.product_id, pp.uplift, pr.start_date, pr.end_date
		FROM promotion_products pp
		JOIN promotions pr ON pr.id = pp.promotion_id
		WHERE pr.business_id = $1 AND pp.product_id = ANY($2) AND pr.start_date <= $3 AND pr.end_date >= $4`

	sqlFetchBiases = `SELECT product_id, adjustment_value FROM learning_adjustments WHERE business_id = $1 AND adjustment_type = $2 AND product_id = ANY($3)`

	sqlGetBias = `SELECT adjustment_value FROM learning_adjustments WHERE business_id = $1 AND product_id = $2 AND adjustment_type = $3`

	sqlUpsertBias = `INSERT INTO learning_adjustments (id, business_id, product_id, adjustment_type, adjustment_value, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (business_id, product_id, adjustment_type)
		DO UPDATE SET adjustment_value = EXCLUDED.adjustment_value, updated_at = EXCLUDED.updated_at`
)

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close, now: time.Now}, nil
}

// newPostgresWithPool wires an existing pool; used by tests with pgxmock.
func newPostgresWithPool(pool db.Pool, now func() time.Time) *PostgresStore {
	if now == nil {
		now = time.Now
	}
	return &PostgresStore{pool: pool, now: now}
}

// Pool returns the underlying database pool for subsystems that need direct
// query access.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS vendors (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	business_id TEXT NOT NULL,
	name        TEXT NOT NULL,
	archived_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS products (
	id               TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	business_id      TEXT NOT NULL,
	name             TEXT NOT NULL,
	waste_sensitive  BOOLEAN NOT NULL DEFAULT false,
	max_stock_amount DOUBLE PRECISION,
	archived_at      TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS vendor_products (
	business_id TEXT NOT NULL,
	vendor_id   TEXT NOT NULL REFERENCES vendors(id),
	product_id  TEXT NOT NULL REFERENCES products(id),
	unit_type   TEXT NOT NULL DEFAULT 'unit',
	PRIMARY KEY (vendor_id, product_id)
);

CREATE TABLE IF NOT EXISTS orders (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	business_id TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'draft',
	approved_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS order_lines (
	id             TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	order_id       TEXT NOT NULL REFERENCES orders(id),
	product_id     TEXT NOT NULL,
	final_quantity DOUBLE PRECISION NOT NULL
);

CREATE TABLE IF NOT EXISTS sales_events (
	business_id TEXT NOT NULL,
	product_id  TEXT NOT NULL,
	quantity    DOUBLE PRECISION NOT NULL,
	event_date  DATE NOT NULL
);

CREATE TABLE IF NOT EXISTS promotions (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	business_id TEXT NOT NULL,
	start_date  DATE NOT NULL,
	end_date    DATE NOT NULL
);

CREATE TABLE IF NOT EXISTS promotion_products (
	promotion_id TEXT NOT NULL REFERENCES promotions(id),
	product_id   TEXT NOT NULL,
	uplift       TEXT NOT NULL DEFAULT 'low',
	PRIMARY KEY (promotion_id, product_id)
);

CREATE TABLE IF NOT EXISTS learning_adjustments (
	id               TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	business_id      TEXT NOT NULL,
	product_id       TEXT NOT NULL,
	adjustment_type  TEXT NOT NULL DEFAULT 'quantity_bias',
	adjustment_value DOUBLE PRECISION NOT NULL,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (business_id, product_id, adjustment_type)
);

CREATE INDEX IF NOT EXISTS idx_vendors_business ON vendors(business_id);
CREATE INDEX IF NOT EXISTS idx_products_business ON products(business_id);
CREATE INDEX IF NOT EXISTS idx_vendor_products_business ON vendor_products(business_id);
CREATE INDEX IF NOT EXISTS idx_sales_events_lookup ON sales_events(business_id, product_id, event_date);
CREATE INDEX IF NOT EXISTS idx_order_lines_product ON order_lines(product_id);
CREATE INDEX IF NOT EXISTS idx_promotions_business ON promotions(business_id, start_date, end_date);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) FetchActiveVendors(ctx context.Context, businessID string, vendorIDs []string) ([]model.Vendor, error) {
	query := `SELECT id, name FROM vendors WHERE business_id = $1 AND archived_at IS NULL`
	args := []any{businessID}
	if len(vendorIDs) > 0 {
		query += ` AND id = ANY($2)`
		args = append(args, vendorIDs)
	}
	query += ` ORDER BY name`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: fetch active vendors")
	}
	defer rows.Close()

	var vendors []model.Vendor
	for rows.Next() {
		v := model.Vendor{BusinessID: businessID}
		if err := rows.Scan(&v.ID, &v.Name); err != nil {
			return nil, eris.Wrap(err, "postgres: scan vendor")
		}
		vendors = append(vendors, v)
	}
	return vendors, eris.Wrap(rows.Err(), "postgres: fetch active vendors iterate")
}

func (s *PostgresStore) FetchVendorProductLinks(ctx context.Context, businessID string, vendorIDs []string) ([]model.VendorProductLink, error) {
	query := `SELECT vp.vendor_id, v.name, vp.product_id, p.name, vp.unit_type, p.waste_sensitive, p.max_stock_amount
		FROM vendor_products vp
		JOIN vendors v ON v.id = vp.vendor_id
		JOIN products p ON p.id = vp.product_id
		WHERE vp.business_id = $1 AND p.archived_at IS NULL`
	args := []any{businessID}
	if len(vendorIDs) > 0 {
		query += ` AND vp.vendor_id = ANY($2)`
		args = append(args, vendorIDs)
	}
	query += ` ORDER BY v.name, p.name`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: fetch vendor product links")
	}
	defer rows.Close()

	var links []model.VendorProductLink
	for rows.Next() {
		var l model.VendorProductLink
		var unitType string
		if err := rows.Scan(&l.VendorID, &l.VendorName, &l.ProductID, &l.ProductName, &unitType, &l.WasteSensitive, &l.MaxStockAmount); err != nil {
			return nil, eris.Wrap(err, "postgres: scan vendor product link")
		}
		l.UnitType = model.UnitType(unitType)
		links = append(links, l)
	}
	return links, eris.Wrap(rows.Err(), "postgres: fetch vendor product links iterate")
}

func (s *PostgresStore) FetchSalesStats(ctx context.Context, businessID string, productIDs []string, periodStart, periodEnd time.Time) (map[string]model.SalesData, error) {
	if len(productIDs) == 0 {
		return map[string]model.SalesData{}, nil
	}

	rows, err := s.pool.Query(ctx, sqlFetchSalesEvents, businessID, productIDs, periodStart, periodEnd)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: fetch sales events")
	}
	defer rows.Close()

	var events []model.SalesEvent
	for rows.Next() {
		e := model.SalesEvent{BusinessID: businessID}
		if err := rows.Scan(&e.ProductID, &e.Quantity, &e.EventDate); err != nil {
			return nil, eris.Wrap(err, "postgres: scan sales event")
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: fetch sales events iterate")
	}

	return buildSalesStats(events, s.now().UTC()), nil
}

func (s *PostgresStore) FetchLatestApprovedOrders(ctx context.Context, businessID string, productIDs []string) (map[string]model.PreviousOrder, error) {
	if len(productIDs) == 0 {
		return map[string]model.PreviousOrder{}, nil
	}

	rows, err := s.pool.Query(ctx, sqlFetchLatestApproved, businessID, productIDs)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: fetch latest approved orders")
	}
	defer rows.Close()

	orders := make(map[string]model.PreviousOrder)
	for rows.Next() {
		var po model.PreviousOrder
		if err := rows.Scan(&po.ProductID, &po.Quantity, &po.OrderDate); err != nil {
			return nil, eris.Wrap(err, "postgres: scan approved order")
		}
		po.WasApproved = true
		orders[po.ProductID] = po
	}
	return orders, eris.Wrap(rows.Err(), "postgres: fetch latest approved orders iterate")
}

func (s *PostgresStore) FetchActivePromotions(ctx context.Context, businessID string, productIDs []string, periodStart, periodEnd time.Time) (map[string]model.Promotion, error) {
	if len(productIDs) == 0 {
		return map[string]model.Promotion{}, nil
	}

	rows, err := s.pool.Query(ctx, sqlFetchPromotions, businessID, productIDs, periodEnd, periodStart)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: fetch promotions")
	}
	defer rows.Close()

	promotions := make(map[string]model.Promotion)
	for rows.Next() {
		var p model.Promotion
		var uplift string
		if err := rows.Scan(&p.ProductID, &uplift, &p.StartDate, &p.EndDate); err != nil {
			return nil, eris.Wrap(err, "postgres: scan promotion")
		}
		p.Uplift = model.PromotionUplift(uplift)
		promotions[p.ProductID] = p
	}
	return promotions, eris.Wrap(rows.Err(), "postgres: fetch promotions iterate")
}

func (s *PostgresStore) FetchLearningBiases(ctx context.Context, businessID string, productIDs []string) (map[string]float64, error) {
	if len(productIDs) == 0 {
		return map[string]float64{}, nil
	}

	rows, err := s.pool.Query(ctx, sqlFetchBiases, businessID, adjustmentTypeQuantityBias, productIDs)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: fetch learning biases")
	}
	defer rows.Close()

	biases := make(map[string]float64)
	for rows.Next() {
		var productID string
		var value float64
		if err := rows.Scan(&productID, &value); err != nil {
			return nil, eris.Wrap(err, "postgres: scan learning bias")
		}
		biases[productID] = value
	}
	return biases, eris.Wrap(rows.Err(), "postgres: fetch learning biases iterate")
}

func (s *PostgresStore) GetLearningBias(ctx context.Context, businessID, productID string) (float64, bool, error) {
	var value float64
	err := s.pool.QueryRow(ctx, sqlGetBias, businessID, productID, adjustmentTypeQuantityBias).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, eris.Wrapf(err, "postgres: get learning bias for %s", productID)
	}
	return value, true, nil
}

func (s *PostgresStore) UpsertLearningBias(ctx context.Context, businessID, productID string, value float64) error {
	_, err := s.pool.Exec(ctx, sqlUpsertBias,
		uuid.New().String(), businessID, productID, adjustmentTypeQuantityBias, value, s.now().UTC(),
	)
	return eris.Wrapf(err, "postgres: upsert learning bias for %s", productID)
}

func (s *PostgresStore) ImportSalesEvents(ctx context.Context, events []model.SalesEvent) (int64, error) {
	rows := make([][]any, len(events))
	for i, e := range events {
		rows[i] = []any{e.BusinessID, e.ProductID, e.Quantity, e.EventDate}
	}
	n, err := db.CopyFrom(ctx, s.pool, "sales_events",
		[]string{"business_id", "product_id", "quantity", "event_date"}, rows)
	return n, eris.Wrap(err, "postgres: import sales events")
}

func (s *PostgresStore) ImportProducts(ctx context.Context, products []model.Product) (int64, error) {
	rows := make([][]any, len(products))
	for i, p := range products {
		rows[i] = []any{p.ID, p.BusinessID, p.Name, p.WasteSensitive, p.MaxStockAmount}
	}
	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "products",
		Columns:      []string{"id", "business_id", "name", "waste_sensitive", "max_stock_amount"},
		ConflictKeys: []string{"id"},
	}, rows)
	return n, eris.Wrap(err, "postgres: import products")
}
