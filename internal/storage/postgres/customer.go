package postgres

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/sales-ledger/internal/domain/customer"
	"github.com/xenking/sales-ledger/internal/domain/segment"
)

const (
	getCustomerSQL = `SELECT id, name, email, segment, loyalty_points, created_at
		FROM customers WHERE id = $1`

	createCustomerSQL = `INSERT INTO customers (id, name, email, segment, loyalty_points)
		VALUES ($1, $2, $3, $4, $5) RETURNING created_at`

	updateSegmentSQL = `UPDATE customers SET segment = $2 WHERE id = $1`

	// Aggregates are scanned through nullable types: a row the database hands
	// back with a null where one is never expected is reported per customer
	// instead of failing the whole pass.
	paidOrderStatsSQL = `SELECT customer_id, MAX(created_at), COUNT(*), SUM(total)
		FROM orders
		WHERE status = 'paid'
		GROUP BY customer_id
		ORDER BY customer_id`
)

var (
	_ customer.Repository   = (*CustomerStore)(nil)
	_ segment.HistoryReader = (*CustomerStore)(nil)
)

// CustomerStore implements customer.Repository and the segmentation history
// reader backed by PostgreSQL.
type CustomerStore struct {
	pool *pgxpool.Pool
}

// NewCustomerStore returns a CustomerStore that uses the given pool.
func NewCustomerStore(pool *pgxpool.Pool) *CustomerStore {
	return &CustomerStore{pool: pool}
}

// GetByID returns a single customer by its identifier.
func (s *CustomerStore) GetByID(ctx context.Context, id string) (*customer.Customer, error) {
	var c customer.Customer
	err := s.pool.QueryRow(ctx, getCustomerSQL, id).
		Scan(&c.ID, &c.Name, &c.Email, &c.Segment, &c.LoyaltyPoints, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, customer.ErrNotFound
		}
		return nil, errors.Wrapf(err, "getting customer %q", id)
	}
	return &c, nil
}

// Create persists a new customer.
func (s *CustomerStore) Create(ctx context.Context, c *customer.Customer) error {
	err := s.pool.QueryRow(ctx, createCustomerSQL,
		c.ID, c.Name, c.Email, c.Segment, c.LoyaltyPoints,
	).Scan(&c.CreatedAt)
	if err != nil {
		return errors.Wrapf(err, "creating customer %q", c.ID)
	}
	return nil
}

// UpdateSegment writes one customer's segment label. Each call is its own
// committed statement, so a cancelled recompute pass leaves earlier labels in
// place.
func (s *CustomerStore) UpdateSegment(ctx context.Context, id string, seg customer.Segment) error {
	ct, err := s.pool.Exec(ctx, updateSegmentSQL, id, seg)
	if err != nil {
		return errors.Wrapf(err, "updating segment for customer %q", id)
	}
	if ct.RowsAffected() == 0 {
		return customer.ErrNotFound
	}
	return nil
}

// PaidOrderStats returns per-customer paid-order aggregates. Customers with
// no paid orders are absent from the result. Rows with unusable aggregates
// are returned with Valid=false rather than failing the read.
func (s *CustomerStore) PaidOrderStats(ctx context.Context) ([]segment.CustomerStats, error) {
	rows, err := s.pool.Query(ctx, paidOrderStatsSQL)
	if err != nil {
		return nil, errors.Wrap(err, "querying paid order stats")
	}
	defer rows.Close()

	var stats []segment.CustomerStats
	for rows.Next() {
		var (
			st       segment.CustomerStats
			lastPaid *time.Time
			freq     *int64
			monetary decimal.NullDecimal
		)
		if err := rows.Scan(&st.CustomerID, &lastPaid, &freq, &monetary); err != nil {
			return nil, errors.Wrap(err, "scanning paid order stats")
		}

		if lastPaid == nil || freq == nil || !monetary.Valid {
			st.Reason = "null aggregate over paid orders"
			stats = append(stats, st)
			continue
		}

		st.LastPaidAt = *lastPaid
		st.Frequency = int(*freq)
		st.Monetary = monetary.Decimal
		st.Valid = true
		stats = append(stats, st)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "reading paid order stats")
	}
	return stats, nil
}
