package catalog

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// ErrInactive is returned when a sale is attempted against a product that has
// been withdrawn from the catalog.
var ErrInactive = errors.New("product is inactive")

// Product represents a catalog item available for sale. Price, cost, and stock
// are the current values; committed order lines keep their own frozen copies.
type Product struct {
	ID        string
	Name      string
	Category  string
	Cost      decimal.Decimal
	Price     decimal.Decimal
	Stock     int
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Snapshot is the product state observed at a single instant, read under the
// product's row lock. It is the only input the commit path uses for pricing,
// so a line can never mix values from two different catalog states.
type Snapshot struct {
	ProductID string
	Price     decimal.Decimal
	Cost      decimal.Decimal
	Stock     int
	Active    bool
}

// Repository defines read operations for the product catalog.
type Repository interface {
	List(ctx context.Context) ([]Product, error)
	GetByID(ctx context.Context, id string) (*Product, error)
}

// Importer upserts catalog rows in bulk. Used by the catalog feed importer;
// stock is only set for rows the catalog has never seen, existing stock is
// owned by the commit path.
type Importer interface {
	Upsert(ctx context.Context, products []Product) (int64, error)
}
