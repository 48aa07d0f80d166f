package segment

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/xenking/sales-ledger/internal/domain/customer"
)

// ErrRecomputeActive is returned when a recompute is requested while a
// previous pass is still running. The engine is single-flight: overlapping
// runs are refused, not queued.
var ErrRecomputeActive = errors.New("segment recompute already running")

// CustomerStats is one customer's raw paid-order aggregates as read from the
// order history. Valid is false when the aggregates could not be computed for
// this customer (for example a null value where one is never expected); such
// customers are skipped, not fatal.
type CustomerStats struct {
	CustomerID string
	LastPaidAt time.Time
	Frequency  int
	Monetary   decimal.Decimal
	Valid      bool
	Reason     string
}

// HistoryReader provides the paid-order aggregates for every customer with at
// least one paid order. Customers without paid orders are not included.
type HistoryReader interface {
	PaidOrderStats(ctx context.Context) ([]CustomerStats, error)
}

// Skipped records one customer left out of a recompute pass and why.
type Skipped struct {
	CustomerID string
	Reason     string
}

// Summary reports the outcome of one recompute pass. A pass with skipped
// customers still counts as completed: each customer's write is committed
// independently.
type Summary struct {
	Visited   int
	Updated   int
	Skipped   []Skipped
	StartedAt time.Time
	Duration  time.Duration
}

// Service recomputes customer segments from paid-order history. It is a full
// recompute: every qualifying customer's label is replaced, and running it
// twice with no intervening order activity yields identical labels.
type Service struct {
	history   HistoryReader
	customers customer.Repository
	lg        *zap.Logger
	now       func() time.Time

	// flight admits at most one pass at a time, shared between the scheduled
	// run and manual triggers.
	flight *semaphore.Weighted
}

// NewService creates a segmentation Service.
func NewService(history HistoryReader, customers customer.Repository, lg *zap.Logger) *Service {
	return &Service{
		history:   history,
		customers: customers,
		lg:        lg,
		now:       time.Now,
		flight:    semaphore.NewWeighted(1),
	}
}

// Recompute scans all customers with at least one paid order, classifies each
// one, and writes the new label. A per-customer failure is recorded in the
// summary and does not abort the batch. Cancelling ctx stops the pass before
// the next customer; labels already written stay in place.
func (s *Service) Recompute(ctx context.Context) (*Summary, error) {
	if !s.flight.TryAcquire(1) {
		return nil, ErrRecomputeActive
	}
	defer s.flight.Release(1)

	started := s.now()

	stats, err := s.history.PaidOrderStats(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "read paid order stats")
	}

	summary := &Summary{StartedAt: started}
	for _, st := range stats {
		if err := ctx.Err(); err != nil {
			// Mid-batch cancellation: report what was done so far.
			summary.Duration = s.now().Sub(started)
			return summary, err
		}

		summary.Visited++

		if !st.Valid {
			summary.Skipped = append(summary.Skipped, Skipped{CustomerID: st.CustomerID, Reason: st.Reason})
			s.lg.Warn("skipping customer with unusable aggregates",
				zap.String("customer_id", st.CustomerID),
				zap.String("reason", st.Reason),
			)
			continue
		}

		label := Classify(s.metricsFor(st))
		if err := s.customers.UpdateSegment(ctx, st.CustomerID, label); err != nil {
			summary.Skipped = append(summary.Skipped, Skipped{CustomerID: st.CustomerID, Reason: err.Error()})
			s.lg.Warn("segment write failed, customer left unchanged",
				zap.String("customer_id", st.CustomerID),
				zap.Error(err),
			)
			continue
		}
		summary.Updated++
	}

	summary.Duration = s.now().Sub(started)
	s.lg.Info("segment recompute finished",
		zap.Int("visited", summary.Visited),
		zap.Int("updated", summary.Updated),
		zap.Int("skipped", len(summary.Skipped)),
		zap.Duration("duration", summary.Duration),
	)
	return summary, nil
}

// metricsFor converts raw stats into RFM metrics relative to the pass start.
func (s *Service) metricsFor(st CustomerStats) Metrics {
	return Metrics{
		RecencyDays: int(s.now().Sub(st.LastPaidAt).Hours() / 24),
		Frequency:   st.Frequency,
		Monetary:    st.Monetary,
	}
}
