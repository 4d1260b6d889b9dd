package http

import (
	"errors"
	"net"
	"net/http"

	"github.com/g-abate/rate-compare/internal/models"
	"github.com/g-abate/rate-compare/internal/obs"
	"github.com/g-abate/rate-compare/internal/rates"
	"github.com/google/uuid"
)

// Invalidator is the cache surface the handlers need.
type Invalidator interface {
	InvalidateProperty(propertyID string)
}

type Handler struct {
	engine      rates.Engine
	cache       Invalidator
	ratelimiter rates.RateLimiter
	metrics     *obs.Metrics
}

func NewHandler(engine rates.Engine, cache Invalidator, rl rates.RateLimiter, m *obs.Metrics) *Handler {
	return &Handler{engine: engine, cache: cache, ratelimiter: rl, metrics: m}
}

func (h *Handler) ipFromRequest(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// Rates serves the aggregated comparison for one stay. A partial result is
// a success: the widget renders the accepted channels and shows the failure
// reasons for the rest.
func (h *Handler) Rates(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	h.metrics.IncRequests()

	// chi's middleware.RequestID sets X-Request-Id header
	reqID := r.Header.Get("X-Request-Id")
	if reqID == "" {
		reqID = uuid.New().String()
	}
	meta := map[string]string{"request_id": reqID}

	q := r.URL.Query()
	checkIn := q.Get("checkin")
	checkOut := q.Get("checkout")

	ip := h.ipFromRequest(r)
	if !h.ratelimiter.Allow(ip) {
		h.metrics.IncRateLimitDrops()
		TooManyRequests(w, "rate limit exceeded", meta)
		return
	}

	res, err := h.engine.FetchRates(ctx, checkIn, checkOut)
	if err != nil {
		var aggErr *rates.AggregationError
		switch {
		case errors.Is(err, rates.ErrInvalidStay):
			BadRequest(w, err.Error(), meta)
		case errors.As(err, &aggErr):
			WriteJSON(w, http.StatusUnprocessableEntity, map[string]any{
				"error":    "all channels failed",
				"failures": aggErr.Failures,
				"meta":     meta,
			})
		case errors.Is(err, rates.ErrSuperseded):
			Conflict(w, err.Error(), meta)
		default:
			InternalError(w, err.Error(), meta)
		}
		return
	}

	cfg := h.engine.Config()
	out := map[string]any{
		"property": map[string]any{"id": cfg.ID, "name": cfg.Name},
		"stay":     map[string]string{"checkin": checkIn, "checkout": checkOut},
		"result":   res,
	}
	WriteJSON(w, http.StatusOK, out)
}

// InvalidateCache drops every cached result for the configured property.
func (h *Handler) InvalidateCache(w http.ResponseWriter, r *http.Request) {
	h.cache.InvalidateProperty(h.engine.Config().ID)
	w.WriteHeader(http.StatusNoContent)
}

// UpdateConfig re-supplies the property configuration; accepted configs
// invalidate the property's cached results.
func (h *Handler) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	reqID := r.Header.Get("X-Request-Id")
	if reqID == "" {
		reqID = uuid.New().String()
	}
	meta := map[string]string{"request_id": reqID}

	var cfg models.PropertyConfig
	if err := decodeJSON(r, &cfg); err != nil {
		BadRequest(w, "malformed config payload", meta)
		return
	}
	if err := h.engine.SetConfig(cfg); err != nil {
		BadRequest(w, err.Error(), meta)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
