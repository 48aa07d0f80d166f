package order

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/xenking/sales-ledger/internal/domain/customer"
)

// Service encapsulates the order lifecycle: opening a purchase session,
// committing lines against it, and marking it paid.
type Service struct {
	orders    Store
	customers customer.Repository
}

// NewService creates an order Service with the required domain dependencies.
func NewService(orders Store, customers customer.Repository) *Service {
	return &Service{
		orders:    orders,
		customers: customers,
	}
}

// Open creates a new pending order for the given customer.
func (s *Service) Open(ctx context.Context, customerID string) (*Order, error) {
	if _, err := s.customers.GetByID(ctx, customerID); err != nil {
		if errors.Is(err, customer.ErrNotFound) {
			return nil, customer.ErrNotFound
		}
		return nil, errors.Wrap(err, "get customer")
	}

	o := &Order{
		ID:         uuid.New().String(),
		CustomerID: customerID,
		Status:     StatusPending,
	}
	if err := s.orders.Create(ctx, o); err != nil {
		return nil, errors.Wrap(err, "create order")
	}
	return o, nil
}

// CommitLine validates the request and applies one order line atomically:
// stock check, price/cost freeze, stock decrement, and total increment happen
// in a single commit. On any failure nothing is mutated, so callers may retry
// ErrContention with the same arguments.
func (s *Service) CommitLine(ctx context.Context, params CommitParams) (*Line, error) {
	if params.Quantity <= 0 {
		return nil, &InvalidQuantityError{ProductID: params.ProductID, Quantity: params.Quantity}
	}

	line, err := s.orders.CommitLine(ctx, params)
	if err != nil {
		return nil, err
	}
	return line, nil
}

// MarkPaid transitions a pending order to paid. Paid orders are what the
// segmentation and profitability passes consume.
func (s *Service) MarkPaid(ctx context.Context, orderID string) error {
	return s.orders.UpdateStatus(ctx, orderID, StatusPending, StatusPaid)
}

// Cancel transitions a pending order to cancelled. Committed lines stay in
// place; cancelled orders are excluded from every analytics pass.
func (s *Service) Cancel(ctx context.Context, orderID string) error {
	return s.orders.UpdateStatus(ctx, orderID, StatusPending, StatusCancelled)
}

// Get returns a single order by its identifier.
func (s *Service) Get(ctx context.Context, orderID string) (*Order, error) {
	return s.orders.GetByID(ctx, orderID)
}
