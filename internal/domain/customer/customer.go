package customer

import (
	"context"
	"time"

	"github.com/go-faster/errors"
)

// ErrNotFound is returned when a requested customer does not exist.
var ErrNotFound = errors.New("customer not found")

// Segment is a behavioral classification derived from purchase history.
type Segment string

const (
	// SegmentNew is the default label at creation and the label for customers
	// with a single recent purchase.
	SegmentNew Segment = "new"
	// SegmentPromising covers moderate spenders and everyone the other rules
	// do not claim.
	SegmentPromising Segment = "promising"
	// SegmentChampion marks high-value, high-frequency customers.
	SegmentChampion Segment = "champion"
	// SegmentAtRisk marks previously valuable customers who stopped buying.
	SegmentAtRisk Segment = "at_risk"
	// SegmentLost is never assigned by the recompute pass; it exists for
	// manual curation and historical rows.
	SegmentLost Segment = "lost"
)

// Customer holds identity and the classification owned by the segmentation
// pass. Segment is never written by order processing.
type Customer struct {
	ID            string
	Name          string
	Email         string
	Segment       Segment
	LoyaltyPoints int
	CreatedAt     time.Time
}

// Repository defines persistence operations for customers.
type Repository interface {
	GetByID(ctx context.Context, id string) (*Customer, error)
	Create(ctx context.Context, c *Customer) error
	UpdateSegment(ctx context.Context, id string, segment Segment) error
}
