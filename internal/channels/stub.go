package channels

import (
	"context"
	"sync"
	"time"

	"github.com/g-abate/rate-compare/internal/models"
)

// StubAdapter returns a canned response or failure, optionally after a
// fixed latency. It backs local runs without extractor endpoints and keeps
// orchestrator tests deterministic.
type StubAdapter struct {
	channel models.Channel
	latency time.Duration

	mu    sync.Mutex
	raw   *RawRates
	err   error
	calls int
}

// NewStubAdapter creates a stub that answers every Fetch with raw or err.
func NewStubAdapter(channel models.Channel, raw *RawRates, err error) *StubAdapter {
	return &StubAdapter{channel: channel, raw: raw, err: err}
}

// SetLatency makes every Fetch wait d before settling.
func (s *StubAdapter) SetLatency(d time.Duration) { s.latency = d }

// SetResponse swaps the canned response and failure.
func (s *StubAdapter) SetResponse(raw *RawRates, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.raw = raw
	s.err = err
}

// Calls reports how many times Fetch has been invoked.
func (s *StubAdapter) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// Channel returns the channel this stub serves.
func (s *StubAdapter) Channel() models.Channel { return s.channel }

// Fetch settles with the canned outcome, honoring context cancellation
// while waiting out the configured latency.
func (s *StubAdapter) Fetch(ctx context.Context, propertyRef, checkIn, checkOut string) (*RawRates, error) {
	s.mu.Lock()
	s.calls++
	raw, err := s.raw, s.err
	s.mu.Unlock()

	if s.latency > 0 {
		select {
		case <-time.After(s.latency):
		case <-ctx.Done():
			return nil, NewAdapterError(s.channel, models.FailureTimeout, ctx.Err())
		}
	}
	if err != nil {
		return nil, err
	}
	cp := *raw
	return &cp, nil
}
