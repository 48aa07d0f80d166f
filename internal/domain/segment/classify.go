package segment

import (
	"github.com/shopspring/decimal"

	"github.com/xenking/sales-ledger/internal/domain/customer"
)

// Metrics are the per-customer RFM aggregates computed over paid orders only.
type Metrics struct {
	// RecencyDays is the number of whole days since the most recent paid
	// order was created.
	RecencyDays int
	// Frequency is the count of distinct paid orders.
	Frequency int
	// Monetary is the sum of paid order totals.
	Monetary decimal.Decimal
}

var (
	championMonetary  = decimal.NewFromInt(5000)
	atRiskMonetary    = decimal.NewFromInt(1000)
	promisingMonetary = decimal.NewFromInt(2000)
)

// rule pairs a predicate with the segment it assigns.
type rule struct {
	match func(Metrics) bool
	label customer.Segment
}

// rules is an ordered decision table: the first matching rule wins, which is a
// deliberate tie-break policy, not a set of independent branches. The
// monetary>2000 rule and the final fallback both assign Promising; the overlap
// is kept as-is because collapsing it would change outcomes for customers
// matched by none of the earlier rules.
var rules = []rule{
	{
		match: func(m Metrics) bool { return m.Monetary.GreaterThan(championMonetary) && m.Frequency > 10 },
		label: customer.SegmentChampion,
	},
	{
		match: func(m Metrics) bool { return m.RecencyDays > 90 && m.Monetary.GreaterThan(atRiskMonetary) },
		label: customer.SegmentAtRisk,
	},
	{
		match: func(m Metrics) bool { return m.RecencyDays < 30 && m.Frequency == 1 },
		label: customer.SegmentNew,
	},
	{
		match: func(m Metrics) bool { return m.Monetary.GreaterThan(promisingMonetary) },
		label: customer.SegmentPromising,
	},
}

// Classify maps RFM metrics to a segment by walking the decision table
// top-to-bottom. Customers matching no rule default to Promising.
func Classify(m Metrics) customer.Segment {
	for _, r := range rules {
		if r.match(m) {
			return r.label
		}
	}
	return customer.SegmentPromising
}
