package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/sales-ledger/internal/domain/catalog"
	"github.com/xenking/sales-ledger/internal/domain/order"
)

const (
	createOrderSQL = `INSERT INTO orders (id, customer_id, status, total)
		VALUES ($1, $2, $3, 0) RETURNING created_at`

	getOrderSQL = `SELECT id, customer_id, status, total, created_at
		FROM orders WHERE id = $1`

	orderStatusSQL = `SELECT status FROM orders WHERE id = $1`

	updateStatusSQL = `UPDATE orders SET status = $3 WHERE id = $1 AND status = $2`

	// The snapshot read takes the product's row lock: the stock check, the
	// price/cost freeze, and the decrement below all see one catalog state.
	snapshotForUpdateSQL = `SELECT price, cost, stock, active
		FROM products WHERE id = $1 FOR UPDATE`

	insertLineSQL = `INSERT INTO order_lines
		(id, order_id, product_id, quantity, unit_price, unit_cost, subtotal, margin)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING created_at`

	// stock >= quantity is re-asserted in the WHERE clause as a belt against
	// a decrement ever pushing stock negative, even though the row is locked.
	decrementStockSQL = `UPDATE products
		SET stock = stock - $1, updated_at = now()
		WHERE id = $2 AND stock >= $1`

	incrementTotalSQL = `UPDATE orders SET total = total + $1 WHERE id = $2`

	// Bounds the wait for a contended product row. Expiry surfaces as error
	// code 55P03 and is mapped to order.ErrContention.
	setLockTimeoutSQL = `SET LOCAL lock_timeout = '2s'`
)

var _ order.Store = (*OrderStore)(nil)

// OrderStore implements order.Store backed by PostgreSQL.
type OrderStore struct {
	pool *pgxpool.Pool
}

// NewOrderStore returns an OrderStore that uses the given pool.
func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

// Create persists a new pending order with a zero total.
func (s *OrderStore) Create(ctx context.Context, o *order.Order) error {
	err := s.pool.QueryRow(ctx, createOrderSQL, o.ID, o.CustomerID, o.Status).Scan(&o.CreatedAt)
	if err != nil {
		return errors.Wrapf(err, "creating order %q", o.ID)
	}
	return nil
}

// GetByID returns a single order by its identifier.
func (s *OrderStore) GetByID(ctx context.Context, id string) (*order.Order, error) {
	var o order.Order
	err := s.pool.QueryRow(ctx, getOrderSQL, id).
		Scan(&o.ID, &o.CustomerID, &o.Status, &o.Total, &o.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, errors.Wrapf(err, "getting order %q", id)
	}
	return &o, nil
}

// UpdateStatus transitions an order between lifecycle states. The expected
// current state is part of the WHERE clause so concurrent transitions cannot
// race each other.
func (s *OrderStore) UpdateStatus(ctx context.Context, id string, from, to order.Status) error {
	ct, err := s.pool.Exec(ctx, updateStatusSQL, id, from, to)
	if err != nil {
		return errors.Wrapf(err, "updating order %q status", id)
	}
	if ct.RowsAffected() == 0 {
		// Distinguish a missing order from a wrong-state one.
		var status order.Status
		err := s.pool.QueryRow(ctx, orderStatusSQL, id).Scan(&status)
		if errors.Is(err, pgx.ErrNoRows) {
			return order.ErrNotFound
		}
		if err != nil {
			return errors.Wrapf(err, "checking order %q status", id)
		}
		return order.ErrNotPending
	}
	return nil
}

// CommitLine applies one order line in a single transaction: it locks the
// product row, freezes price and cost into a new line, decrements stock, and
// increments the order total. On any failure the transaction rolls back and
// nothing is observable, so order.ErrContention is safe to retry.
func (s *OrderStore) CommitLine(ctx context.Context, params order.CommitParams) (*order.Line, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "begin commit tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	if _, err := tx.Exec(ctx, setLockTimeoutSQL); err != nil {
		return nil, errors.Wrap(err, "set lock timeout")
	}

	var status order.Status
	err = tx.QueryRow(ctx, orderStatusSQL, params.OrderID).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, errors.Wrapf(err, "getting order %q", params.OrderID)
	}
	if status != order.StatusPending {
		return nil, order.ErrNotPending
	}

	snap := catalog.Snapshot{ProductID: params.ProductID}
	err = tx.QueryRow(ctx, snapshotForUpdateSQL, params.ProductID).
		Scan(&snap.Price, &snap.Cost, &snap.Stock, &snap.Active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalog.ErrNotFound
		}
		if isContention(err) {
			return nil, order.ErrContention
		}
		return nil, errors.Wrapf(err, "locking product %q", params.ProductID)
	}

	if !snap.Active {
		return nil, catalog.ErrInactive
	}
	if snap.Stock < params.Quantity {
		return nil, &order.InsufficientStockError{
			ProductID: params.ProductID,
			Available: snap.Stock,
			Requested: params.Quantity,
		}
	}

	line := order.NewLine(snap, params.OrderID, params.Quantity)

	err = tx.QueryRow(ctx, insertLineSQL,
		line.ID, line.OrderID, line.ProductID, line.Quantity,
		line.UnitPrice, line.UnitCost, line.Subtotal, line.Margin,
	).Scan(&line.CreatedAt)
	if err != nil {
		return nil, errors.Wrap(err, "inserting order line")
	}

	ct, err := tx.Exec(ctx, decrementStockSQL, params.Quantity, params.ProductID)
	if err != nil {
		return nil, errors.Wrap(err, "decrementing stock")
	}
	if ct.RowsAffected() == 0 {
		return nil, &order.InsufficientStockError{
			ProductID: params.ProductID,
			Available: snap.Stock,
			Requested: params.Quantity,
		}
	}

	if _, err := tx.Exec(ctx, incrementTotalSQL, line.Subtotal, params.OrderID); err != nil {
		return nil, errors.Wrap(err, "incrementing order total")
	}

	if err := tx.Commit(ctx); err != nil {
		if isContention(err) {
			return nil, order.ErrContention
		}
		return nil, errors.Wrap(err, "commit line tx")
	}
	return &line, nil
}
