package analytics

import (
	"context"
	"iter"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Granularity selects the time bucket for the profitability rollup.
type Granularity string

const (
	// GranularityMonth groups by (year, month, category).
	GranularityMonth Granularity = "month"
	// GranularityYear groups by (year, category); Month is zero in the output.
	GranularityYear Granularity = "year"
)

// ErrBadGranularity is returned for an unrecognized granularity value.
var ErrBadGranularity = errors.New("granularity must be \"month\" or \"year\"")

// ParseGranularity validates a caller-supplied granularity string. An empty
// value defaults to monthly.
func ParseGranularity(s string) (Granularity, error) {
	switch Granularity(s) {
	case "":
		return GranularityMonth, nil
	case GranularityMonth, GranularityYear:
		return Granularity(s), nil
	default:
		return "", ErrBadGranularity
	}
}

// GroupSums is one aggregated group of committed lines from paid orders,
// before margin percentage is derived.
type GroupSums struct {
	Year         int
	Month        int
	Category     string
	GrossRevenue decimal.Decimal
	NetMargin    decimal.Decimal
}

// Row is one profitability rollup result. MarginPercent carries one decimal
// place of precision.
type Row struct {
	Year          int
	Month         int
	Category      string
	GrossRevenue  decimal.Decimal
	NetMargin     decimal.Decimal
	MarginPercent decimal.Decimal
}

// MarginPercentString renders the margin percentage the way reports display
// it, e.g. "25.0%".
func (r Row) MarginPercentString() string {
	return r.MarginPercent.StringFixed(1) + "%"
}

// Source streams aggregated line sums for paid orders, ordered by year
// descending then month descending. Each call runs a fresh aggregation.
type Source interface {
	PaidLineSums(ctx context.Context, g Granularity) iter.Seq2[GroupSums, error]
}

// Service produces the profitability rollup. It is purely read-only.
type Service struct {
	source Source
}

// NewService creates a rollup Service over the given source.
func NewService(source Source) *Service {
	return &Service{source: source}
}

var hundred = decimal.NewFromInt(100)

// Rollup returns a lazy sequence of profitability rows. The sequence is
// restartable: every range over it re-runs the aggregation, nothing is
// cached. Groups with zero gross revenue are omitted so the margin percentage
// is never a division by zero.
func (s *Service) Rollup(ctx context.Context, g Granularity) iter.Seq2[Row, error] {
	return func(yield func(Row, error) bool) {
		for sums, err := range s.source.PaidLineSums(ctx, g) {
			if err != nil {
				yield(Row{}, errors.Wrap(err, "read line sums"))
				return
			}
			if sums.GrossRevenue.IsZero() {
				continue
			}

			row := Row{
				Year:          sums.Year,
				Month:         sums.Month,
				Category:      sums.Category,
				GrossRevenue:  sums.GrossRevenue,
				NetMargin:     sums.NetMargin,
				MarginPercent: sums.NetMargin.Div(sums.GrossRevenue).Mul(hundred).Round(1),
			}
			if !yield(row, nil) {
				return
			}
		}
	}
}
