package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/sales-ledger/internal/domain/catalog"
)

const (
	listProductsSQL = `SELECT id, name, category, cost, price, stock, active, created_at, updated_at
		FROM products ORDER BY id`

	getProductByIDSQL = `SELECT id, name, category, cost, price, stock, active, created_at, updated_at
		FROM products WHERE id = $1`

	// Stock is only taken from the feed for rows the catalog has never seen;
	// existing stock belongs to the commit path.
	upsertProductSQL = `INSERT INTO products (id, name, category, cost, price, stock, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			category = EXCLUDED.category,
			cost = EXCLUDED.cost,
			price = EXCLUDED.price,
			active = EXCLUDED.active,
			updated_at = now()`
)

var (
	_ catalog.Repository = (*ProductStore)(nil)
	_ catalog.Importer   = (*ProductStore)(nil)
)

// ProductStore implements catalog.Repository and catalog.Importer backed by
// PostgreSQL.
type ProductStore struct {
	pool *pgxpool.Pool
}

// NewProductStore returns a ProductStore that uses the given pool.
func NewProductStore(pool *pgxpool.Pool) *ProductStore {
	return &ProductStore{pool: pool}
}

// List returns all products from the catalog ordered by ID.
func (s *ProductStore) List(ctx context.Context) ([]catalog.Product, error) {
	rows, err := s.pool.Query(ctx, listProductsSQL)
	if err != nil {
		return nil, errors.Wrap(err, "listing products")
	}
	return pgx.CollectRows(rows, scanProduct)
}

// GetByID returns a single product by its identifier.
func (s *ProductStore) GetByID(ctx context.Context, id string) (*catalog.Product, error) {
	rows, err := s.pool.Query(ctx, getProductByIDSQL, id)
	if err != nil {
		return nil, errors.Wrapf(err, "getting product %q", id)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalog.ErrNotFound
		}
		return nil, errors.Wrapf(err, "getting product %q", id)
	}
	return &p, nil
}

// Upsert writes a batch of catalog rows in one round trip and returns the
// number of rows written.
func (s *ProductStore) Upsert(ctx context.Context, products []catalog.Product) (int64, error) {
	batch := &pgx.Batch{}
	for _, p := range products {
		batch.Queue(upsertProductSQL, p.ID, p.Name, p.Category, p.Cost, p.Price, p.Stock, p.Active)
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close() //nolint:errcheck

	var written int64
	for range products {
		ct, err := results.Exec()
		if err != nil {
			return written, errors.Wrap(err, "upserting product")
		}
		written += ct.RowsAffected()
	}
	return written, nil
}

func scanProduct(row pgx.CollectableRow) (catalog.Product, error) {
	var p catalog.Product
	err := row.Scan(
		&p.ID, &p.Name, &p.Category, &p.Cost, &p.Price,
		&p.Stock, &p.Active, &p.CreatedAt, &p.UpdatedAt,
	)
	return p, err
}
