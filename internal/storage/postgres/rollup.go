package postgres

import (
	"context"
	"iter"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/sales-ledger/internal/domain/analytics"
)

const (
	monthlySumsSQL = `SELECT
			EXTRACT(YEAR FROM o.created_at)::int AS year,
			EXTRACT(MONTH FROM o.created_at)::int AS month,
			p.category,
			SUM(l.subtotal) AS gross_revenue,
			SUM(l.margin) AS net_margin
		FROM order_lines l
		JOIN orders o ON o.id = l.order_id
		JOIN products p ON p.id = l.product_id
		WHERE o.status = 'paid'
		GROUP BY 1, 2, 3
		ORDER BY 1 DESC, 2 DESC, 3`

	yearlySumsSQL = `SELECT
			EXTRACT(YEAR FROM o.created_at)::int AS year,
			0 AS month,
			p.category,
			SUM(l.subtotal) AS gross_revenue,
			SUM(l.margin) AS net_margin
		FROM order_lines l
		JOIN orders o ON o.id = l.order_id
		JOIN products p ON p.id = l.product_id
		WHERE o.status = 'paid'
		GROUP BY 1, 2, 3
		ORDER BY 1 DESC, 3`
)

var _ analytics.Source = (*RollupStore)(nil)

// RollupStore streams profitability aggregates from PostgreSQL.
type RollupStore struct {
	pool *pgxpool.Pool
}

// NewRollupStore returns a RollupStore that uses the given pool.
func NewRollupStore(pool *pgxpool.Pool) *RollupStore {
	return &RollupStore{pool: pool}
}

// PaidLineSums streams aggregated line sums for paid orders. The query runs
// when the returned sequence is ranged over, so every restart recomputes from
// current data.
func (s *RollupStore) PaidLineSums(ctx context.Context, g analytics.Granularity) iter.Seq2[analytics.GroupSums, error] {
	query := monthlySumsSQL
	if g == analytics.GranularityYear {
		query = yearlySumsSQL
	}

	return func(yield func(analytics.GroupSums, error) bool) {
		rows, err := s.pool.Query(ctx, query)
		if err != nil {
			yield(analytics.GroupSums{}, errors.Wrap(err, "querying line sums"))
			return
		}
		defer rows.Close()

		for rows.Next() {
			var sums analytics.GroupSums
			if err := rows.Scan(&sums.Year, &sums.Month, &sums.Category, &sums.GrossRevenue, &sums.NetMargin); err != nil {
				yield(analytics.GroupSums{}, errors.Wrap(err, "scanning line sums"))
				return
			}
			if !yield(sums, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(analytics.GroupSums{}, errors.Wrap(err, "reading line sums"))
		}
	}
}
