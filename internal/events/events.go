// Package events publishes quote and comparison outcomes for downstream
// consumers (analytics, the policy service). Publishing is best effort: a
// failed publish never fails the pricing call that produced it.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/patabima/pricing-engine/internal/model"
)

// Event types.
const (
	TypeQuotePriced         = "quote.priced"
	TypeComparisonCompleted = "comparison.completed"
)

// Event is the envelope written to the quote topic.
type Event struct {
	ID         string    `json:"event_id"`
	Type       string    `json:"type"`
	Key        string    `json:"-"`
	OccurredAt time.Time `json:"occurred_at"`
	Payload    any       `json:"payload"`
}

// Publisher delivers events.
type Publisher interface {
	Publish(ctx context.Context, evt Event) error
	Close() error
}

// QuotePriced builds the event for a single quote.
func QuotePriced(b *model.PremiumBreakdown, at time.Time) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       TypeQuotePriced,
		Key:        b.SubcategoryCode + "/" + b.UnderwriterCode,
		OccurredAt: at.UTC(),
		Payload:    b,
	}
}

// ComparisonCompleted builds the event for a finished comparison.
func ComparisonCompleted(res *model.ComparisonResult) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       TypeComparisonCompleted,
		Key:        res.ID,
		OccurredAt: res.CreatedAt.UTC(),
		Payload:    res,
	}
}

// Noop discards every event. Used when no broker is configured.
type Noop struct{}

func (Noop) Publish(context.Context, Event) error { return nil }
func (Noop) Close() error                         { return nil }
