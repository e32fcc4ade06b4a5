// Package mirror copies the committed catalog into PostgreSQL for
// reporting consumers that prefer SQL over the JSON file.
package mirror

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/pevans/mallfed/catalog"
)

const (
	batchSize    = 50
	pingAttempts = 5
	pingWait     = 2 * time.Second
)

// productColumns is the insert column order used by upsertQuery.
var productColumns = []string{
	"id", "title", "price", "original_price", "image_url", "product_url",
	"category", "mall_id", "mall_name", "region", "tags",
	"created_at", "last_verified",
}

// PostgresMirror keeps a products table in step with the catalog.
type PostgresMirror struct {
	db *sql.DB
}

// NewPostgresMirror opens a connection, waits for the server and creates
// the schema.
func NewPostgresMirror(ctx context.Context, dsn string) (*PostgresMirror, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}

	for i := 0; i < pingAttempts; i++ {
		if err = db.PingContext(ctx); err == nil {
			break
		}
		select {
		case <-ctx.Done():
			db.Close()
			return nil, ctx.Err()
		case <-time.After(pingWait):
		}
	}
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to reach postgres after %d attempts: %w", pingAttempts, err)
	}

	m := &PostgresMirror{db: db}
	if err := m.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate postgres mirror: %w", err)
	}
	return m, nil
}

func (m *PostgresMirror) migrate(ctx context.Context) error {
	_, err := m.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS products (
			id             TEXT PRIMARY KEY,
			title          TEXT        NOT NULL,
			price          BIGINT      NOT NULL,
			original_price BIGINT,
			image_url      TEXT        NOT NULL DEFAULT '',
			product_url    TEXT        NOT NULL,
			category       TEXT        NOT NULL,
			mall_id        TEXT        NOT NULL,
			mall_name      TEXT        NOT NULL,
			region         TEXT        NOT NULL,
			tags           TEXT[]      NOT NULL DEFAULT '{}',
			created_at     TIMESTAMPTZ NOT NULL,
			last_verified  TIMESTAMPTZ NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_products_mall     ON products(mall_id);
		CREATE INDEX IF NOT EXISTS idx_products_region   ON products(region);
		CREATE INDEX IF NOT EXISTS idx_products_category ON products(category);
		CREATE INDEX IF NOT EXISTS idx_products_price    ON products(price);
	`)
	return err
}

// Sync upserts every product and deletes rows no longer in the catalog, in
// one transaction.
func (m *PostgresMirror) Sync(ctx context.Context, products []catalog.Product) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin mirror transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	for _, batch := range batches(products, batchSize) {
		query, args := upsertQuery(batch)
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to upsert products: %w", err)
		}
	}

	ids := make([]string, len(products))
	for i, p := range products {
		ids[i] = p.ID
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM products WHERE NOT (id = ANY($1))`, pq.Array(ids)); err != nil {
		return fmt.Errorf("failed to delete stale products: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit mirror: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (m *PostgresMirror) Close() error {
	return m.db.Close()
}

// upsertQuery builds a multi-row insert that overwrites existing rows by id.
func upsertQuery(batch []catalog.Product) (string, []any) {
	n := len(productColumns)
	valueStrings := make([]string, 0, len(batch))
	valueArgs := make([]any, 0, len(batch)*n)

	for idx, p := range batch {
		placeholders := make([]string, n)
		for c := range placeholders {
			placeholders[c] = fmt.Sprintf("$%d", idx*n+c+1)
		}
		valueStrings = append(valueStrings, "("+strings.Join(placeholders, ",")+")")

		var original any
		if p.OriginalPrice > 0 {
			original = p.OriginalPrice
		}
		tags := p.Tags
		if tags == nil {
			tags = []string{}
		}
		valueArgs = append(valueArgs,
			p.ID, p.Title, p.Price, original, p.ImageURL, p.ProductURL,
			p.Category, p.MallID, p.MallName, p.Region, pq.Array(tags),
			p.CreatedAt, p.LastVerified,
		)
	}

	updates := make([]string, 0, n-1)
	for _, c := range productColumns[1:] {
		updates = append(updates, fmt.Sprintf("%s = EXCLUDED.%s", c, c))
	}

	query := fmt.Sprintf(
		"INSERT INTO products (%s) VALUES %s ON CONFLICT (id) DO UPDATE SET %s",
		strings.Join(productColumns, ", "),
		strings.Join(valueStrings, ","),
		strings.Join(updates, ", "),
	)
	return query, valueArgs
}

func batches(products []catalog.Product, size int) [][]catalog.Product {
	var out [][]catalog.Product
	for i := 0; i < len(products); i += size {
		end := min(i+size, len(products))
		out = append(out, products[i:end])
	}
	return out
}
