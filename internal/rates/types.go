package rates

import (
	"context"
	"errors"
	"fmt"

	"github.com/g-abate/rate-compare/internal/models"
)

// Engine is the orchestrator surface the HTTP shell consumes.
type Engine interface {
	FetchRates(ctx context.Context, checkIn, checkOut string) (*models.AggregationResult, error)
	Config() models.PropertyConfig
	SetConfig(models.PropertyConfig) error
}

// RateLimiter admits or drops a request for a client IP.
type RateLimiter interface {
	Allow(ip string) bool
}

// State is the orchestrator lifecycle state for the current request.
type State string

const (
	StateIdle         State = "idle"
	StateFetching     State = "fetching"
	StateReady        State = "ready"
	StatePartialReady State = "partial_ready"
	StateFailed       State = "failed"
)

// Progress reports one channel's settlement during an aggregation.
type Progress struct {
	Channel  models.Channel
	Accepted bool
	// Reason is set when the channel did not produce an accepted record.
	Reason models.FailureReason
}

// ErrSuperseded is returned to a caller whose request was pre-empted by a
// newer request or a teardown before it reached a terminal state.
var ErrSuperseded = errors.New("request superseded")

// ErrInvalidStay marks unparseable or out-of-order stay dates.
var ErrInvalidStay = errors.New("invalid stay dates")

// AggregationError is the terminal failure of a request: every channel
// failed. It carries the full per-channel reason set, not just the first.
type AggregationError struct {
	Failures map[models.Channel]models.FailureReason
}

func (e *AggregationError) Error() string {
	return fmt.Sprintf("all channels failed (%d failures)", len(e.Failures))
}
