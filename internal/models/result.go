package models

import "time"

// FailureReason classifies why a channel produced no accepted record.
type FailureReason string

const (
	FailureNotFound          FailureReason = "not_found"
	FailureRateLimited       FailureReason = "rate_limited"
	FailureTimeout           FailureReason = "timeout"
	FailureUnreachable       FailureReason = "unreachable"
	FailureMalformedUpstream FailureReason = "malformed_upstream"
	// FailureInvalidPayload marks a response that reached the normalizer but
	// could not produce a valid rate record.
	FailureInvalidPayload FailureReason = "invalid_payload"
)

// AggregationResult is the merged outcome of one aggregation request:
// accepted records ranked ascending by total price (ties broken by channel
// identifier), the per-channel failure set, and whether every enabled
// channel contributed a record.
type AggregationResult struct {
	Records     []RateRecord              `json:"records"`
	Failures    map[Channel]FailureReason `json:"failures"`
	Complete    bool                      `json:"complete"`
	GeneratedAt time.Time                 `json:"generated_at"`
}
