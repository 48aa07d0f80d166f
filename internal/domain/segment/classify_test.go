package segment

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/xenking/sales-ledger/internal/domain/customer"
)

func m(recencyDays, frequency int, monetary string) Metrics {
	return Metrics{
		RecencyDays: recencyDays,
		Frequency:   frequency,
		Monetary:    decimal.RequireFromString(monetary),
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		metrics Metrics
		want    customer.Segment
	}{
		{
			name:    "high value high frequency is champion",
			metrics: m(10, 12, "6000"),
			want:    customer.SegmentChampion,
		},
		{
			name:    "valuable but dormant is at risk",
			metrics: m(120, 5, "1500"),
			want:    customer.SegmentAtRisk,
		},
		{
			name:    "single recent order is new",
			metrics: m(10, 1, "40"),
			want:    customer.SegmentNew,
		},
		{
			name:    "moderate spend is promising",
			metrics: m(40, 3, "3000"),
			want:    customer.SegmentPromising,
		},
		{
			name:    "no rule matches falls back to promising",
			metrics: m(50, 2, "100"),
			want:    customer.SegmentPromising,
		},
		{
			name: "champion outranks at risk for dormant big spenders",
			// Matches both rule 1 and rule 2; the table order decides.
			metrics: m(120, 15, "8000"),
			want:    customer.SegmentChampion,
		},
		{
			name: "at risk outranks promising",
			// monetary > 2000 would also match the promising rule.
			metrics: m(200, 4, "2500"),
			want:    customer.SegmentAtRisk,
		},
		{
			name: "new outranks promising for recent first purchase",
			metrics: m(5, 1, "2500"),
			want:    customer.SegmentNew,
		},
		{
			name: "champion needs frequency above ten",
			// Spend alone is not enough; falls through to promising.
			metrics: m(10, 10, "6000"),
			want:    customer.SegmentPromising,
		},
		{
			name: "at risk needs spend above one thousand",
			metrics: m(120, 5, "1000"),
			want:    customer.SegmentPromising,
		},
		{
			name: "thirty days exactly is not new",
			metrics: m(30, 1, "40"),
			want:    customer.SegmentPromising,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.metrics))
		})
	}
}
