package channels

import (
	"context"
	"fmt"
	"time"

	"github.com/g-abate/rate-compare/internal/models"
)

// RawRates is the payload an adapter extracts from a channel's listing page
// or API before normalization. Pointer fields distinguish "absent" from
// zero: a channel may supply fee components, only a pre-computed total, or
// both.
type RawRates struct {
	PropertyRef string             `json:"property_ref"`
	BasePrice   *float64           `json:"base_price,omitempty"`
	TotalPrice  *float64           `json:"total_price,omitempty"`
	Fees        map[string]float64 `json:"fees,omitempty"`
	Currency    string             `json:"currency"`
	Available   *bool              `json:"available,omitempty"`
	ExtractedAt time.Time          `json:"extracted_at,omitempty"`
}

// Adapter fetches raw rate data for one channel. Implementations carry no
// shared mutable state between concurrent calls for different properties; a
// single instance may be reused across calls for the same channel.
type Adapter interface {
	Channel() models.Channel
	Fetch(ctx context.Context, propertyRef, checkIn, checkOut string) (*RawRates, error)
}

// AdapterError is the expected, per-channel failure an adapter returns. It
// is non-fatal to the aggregate: the orchestrator folds it into the result's
// failure set.
type AdapterError struct {
	Channel models.Channel
	Reason  models.FailureReason
	Err     error
}

func (e *AdapterError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Channel, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Channel, e.Reason)
}

func (e *AdapterError) Unwrap() error { return e.Err }

// NewAdapterError builds a classified adapter failure.
func NewAdapterError(ch models.Channel, reason models.FailureReason, err error) *AdapterError {
	return &AdapterError{Channel: ch, Reason: reason, Err: err}
}
