package order

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/sales-ledger/internal/domain/catalog"
)

// Status enumerates the order lifecycle states.
type Status string

const (
	StatusPending   Status = "pending"
	StatusPaid      Status = "paid"
	StatusCancelled Status = "cancelled"
)

// Sentinel errors for the commit protocol.
var (
	// ErrNotFound is returned when a referenced order does not exist.
	ErrNotFound = errors.New("order not found")

	// ErrNotPending is returned when a state transition is attempted on an
	// order that already left the pending state.
	ErrNotPending = errors.New("order is not pending")

	// ErrContention is returned when the commit could not acquire the
	// product's row within the bounded lock window, or the transaction lost a
	// serialization/deadlock race. No mutation was applied; the call is safe
	// to retry with the same arguments.
	ErrContention = errors.New("commit contention, retry")
)

// InvalidQuantityError indicates a commit request with a non-positive quantity.
type InvalidQuantityError struct {
	ProductID string
	Quantity  int
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for product %s, got %d", e.ProductID, e.Quantity)
}

// InsufficientStockError indicates the product's stock cannot cover the
// requested quantity. It carries both values so a rejected sale reports
// exactly why.
type InsufficientStockError struct {
	ProductID string
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: available %d, requested %d",
		e.ProductID, e.Available, e.Requested)
}

// Order represents a purchase session. Total is derived: it always equals the
// sum of its lines' subtotals and is only mutated by the commit path.
type Order struct {
	ID         string
	CustomerID string
	Status     Status
	Total      decimal.Decimal
	CreatedAt  time.Time
}

// Line is the permanent record of one committed sale. UnitPrice and UnitCost
// are frozen copies of the product's values at commit time; the row is
// immutable once created.
type Line struct {
	ID        string
	OrderID   string
	ProductID string
	Quantity  int
	UnitPrice decimal.Decimal
	UnitCost  decimal.Decimal
	Subtotal  decimal.Decimal
	Margin    decimal.Decimal
	CreatedAt time.Time
}

// NewLine freezes a catalog snapshot into an immutable line record. It is a
// pure function: the caller is responsible for reading snap under the
// product's row lock and for checking stock before persisting the result.
func NewLine(snap catalog.Snapshot, orderID string, quantity int) Line {
	qty := decimal.NewFromInt(int64(quantity))
	subtotal := snap.Price.Mul(qty)

	return Line{
		ID:        uuid.New().String(),
		OrderID:   orderID,
		ProductID: snap.ProductID,
		Quantity:  quantity,
		UnitPrice: snap.Price,
		UnitCost:  snap.Cost,
		Subtotal:  subtotal,
		Margin:    subtotal.Sub(snap.Cost.Mul(qty)),
	}
}

// CommitParams identifies the (order, product, quantity) triple for one line
// commit.
type CommitParams struct {
	OrderID   string
	ProductID string
	Quantity  int
}

// Store defines persistence operations for orders. CommitLine must apply the
// stock decrement, line insert, and total increment atomically: on any error
// no partial state is observable.
type Store interface {
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id string) (*Order, error)
	CommitLine(ctx context.Context, params CommitParams) (*Line, error)
	UpdateStatus(ctx context.Context, id string, from, to Status) error
}
