package channels

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/g-abate/rate-compare/internal/models"
)

// HTTPAdapter queries an extractor endpoint for one channel. The endpoint
// owns the scraping/API transport and returns already-extracted RawRates
// JSON; the adapter only classifies transport-level failures.
type HTTPAdapter struct {
	channel    models.Channel
	baseURL    string
	httpClient *http.Client
}

// NewHTTPAdapter creates an adapter backed by the extractor at baseURL.
func NewHTTPAdapter(channel models.Channel, baseURL string, timeout time.Duration) *HTTPAdapter {
	return &HTTPAdapter{
		channel: channel,
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Channel returns the channel this adapter serves.
func (a *HTTPAdapter) Channel() models.Channel { return a.channel }

// Fetch requests rates from the extractor endpoint. Failures are returned
// as *AdapterError classified by kind.
func (a *HTTPAdapter) Fetch(ctx context.Context, propertyRef, checkIn, checkOut string) (*RawRates, error) {
	u, err := url.Parse(a.baseURL + "/rates")
	if err != nil {
		return nil, NewAdapterError(a.channel, models.FailureUnreachable, fmt.Errorf("invalid base URL: %w", err))
	}

	q := u.Query()
	q.Set("listing", propertyRef)
	q.Set("checkin", checkIn)
	q.Set("checkout", checkOut)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, NewAdapterError(a.channel, models.FailureUnreachable, err)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, NewAdapterError(a.channel, models.FailureTimeout, err)
		}
		return nil, NewAdapterError(a.channel, models.FailureUnreachable, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, NewAdapterError(a.channel, models.FailureNotFound, fmt.Errorf("listing %q not found", propertyRef))
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, NewAdapterError(a.channel, models.FailureRateLimited, fmt.Errorf("extractor returned 429"))
	case resp.StatusCode != http.StatusOK:
		return nil, NewAdapterError(a.channel, models.FailureMalformedUpstream, fmt.Errorf("extractor returned status %d", resp.StatusCode))
	}

	var raw RawRates
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, NewAdapterError(a.channel, models.FailureMalformedUpstream, fmt.Errorf("failed to parse response: %w", err))
	}

	return &raw, nil
}
