package rates

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/g-abate/rate-compare/internal/channels"
	"github.com/g-abate/rate-compare/internal/models"
	"github.com/g-abate/rate-compare/internal/obs"
)

// DefaultChannelTimeout bounds each channel call independently; a timeout
// is a per-channel failure, never fatal to the whole aggregation.
const DefaultChannelTimeout = 2 * time.Second

// Orchestrator drives concurrent per-channel fetches for one property and
// merges the settlements into a ranked, partial-failure-tolerant result.
//
// Each request carries a monotonically increasing generation number. A new
// request pre-empts in-flight work: settlements and events from a
// superseded generation are discarded and never observed after the
// superseding request reaches a terminal state.
type Orchestrator struct {
	adapters map[models.Channel]channels.Adapter
	cache    *Cache
	timeout  time.Duration
	metrics  *obs.Metrics
	logger   *slog.Logger

	mu     sync.Mutex
	cfg    models.PropertyConfig
	state  State
	gen    uint64
	cancel context.CancelFunc

	// emitMu serializes event delivery so a terminal emission for the
	// current generation always lands after any straggler from an older one.
	emitMu sync.Mutex

	onProgress []func(Progress)
	onRates    []func(*models.AggregationResult)
	onError    []func(map[models.Channel]models.FailureReason)
}

// Options configures an Orchestrator.
type Options struct {
	Config         models.PropertyConfig
	Adapters       []channels.Adapter
	Cache          *Cache
	ChannelTimeout time.Duration
	Metrics        *obs.Metrics
	Logger         *slog.Logger
}

// New creates an orchestrator. The config must pass
// models.ValidatePropertyConfig and the cache is required; adapters are
// keyed by their channel, and configured channels without an adapter settle
// as unreachable.
func New(opts Options) (*Orchestrator, error) {
	cfg := opts.Config
	if !models.ValidatePropertyConfig(&cfg) {
		return nil, errors.New("invalid property config")
	}
	if opts.Cache == nil {
		return nil, errors.New("cache is required")
	}
	timeout := opts.ChannelTimeout
	if timeout <= 0 {
		timeout = DefaultChannelTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	adapters := make(map[models.Channel]channels.Adapter, len(opts.Adapters))
	for _, a := range opts.Adapters {
		adapters[a.Channel()] = a
	}

	return &Orchestrator{
		adapters: adapters,
		cache:    opts.Cache,
		timeout:  timeout,
		metrics:  opts.Metrics,
		logger:   logger,
		cfg:      cfg,
		state:    StateIdle,
	}, nil
}

// State returns the lifecycle state of the latest request.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Config returns the current property configuration.
func (o *Orchestrator) Config() models.PropertyConfig {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.cfg
}

// OnReady registers a host callback for engine initialization. The engine
// initializes synchronously in New, so fn runs immediately.
func (o *Orchestrator) OnReady(fn func()) { fn() }

// OnProgress registers a callback invoked once per channel settlement of
// the current request.
func (o *Orchestrator) OnProgress(fn func(Progress)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.onProgress = append(o.onProgress, fn)
}

// OnRatesLoaded registers a callback for terminal Ready/PartialReady
// results.
func (o *Orchestrator) OnRatesLoaded(fn func(*models.AggregationResult)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.onRates = append(o.onRates, fn)
}

// OnError registers a callback for terminal Failed results, carrying the
// full per-channel failure set.
func (o *Orchestrator) OnError(fn func(map[models.Channel]models.FailureReason)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.onError = append(o.onError, fn)
}

// SetConfig swaps the property configuration, pre-empting in-flight work
// and invalidating all cached results for the property.
func (o *Orchestrator) SetConfig(cfg models.PropertyConfig) error {
	if !models.ValidatePropertyConfig(&cfg) {
		return errors.New("invalid property config")
	}
	o.mu.Lock()
	o.gen++
	if o.cancel != nil {
		o.cancel()
		o.cancel = nil
	}
	o.cfg = cfg
	o.state = StateIdle
	o.mu.Unlock()

	o.cache.InvalidateProperty(cfg.ID)
	return nil
}

// Teardown cancels in-flight channel calls, clears event subscriptions and
// returns the orchestrator to Idle. It is idempotent; late settlements from
// cancelled work are discarded by the generation check.
func (o *Orchestrator) Teardown() {
	o.mu.Lock()
	o.gen++
	if o.cancel != nil {
		o.cancel()
		o.cancel = nil
	}
	o.state = StateIdle
	o.onProgress = nil
	o.onRates = nil
	o.onError = nil
	o.mu.Unlock()
}

type settlement struct {
	channel models.Channel
	record  *models.RateRecord
	reason  models.FailureReason
}

// FetchRates aggregates the property's rates for one stay. The cache is
// consulted first; on a miss it dispatches one bounded adapter call per
// configured channel, collects settlements in arrival order, and returns
// the ranked result. At least one accepted record is a success
// (PartialReady when some channels failed); zero accepted records surface
// as an *AggregationError.
func (o *Orchestrator) FetchRates(ctx context.Context, checkIn, checkOut string) (*models.AggregationResult, error) {
	in, err := time.Parse(models.DateFormat, checkIn)
	if err != nil {
		return nil, ErrInvalidStay
	}
	out, err := time.Parse(models.DateFormat, checkOut)
	if err != nil {
		return nil, ErrInvalidStay
	}
	if !out.After(in) {
		return nil, ErrInvalidStay
	}

	o.mu.Lock()
	o.gen++
	myGen := o.gen
	if o.cancel != nil {
		o.cancel()
	}
	cctx, cancel := context.WithCancel(ctx)
	o.cancel = cancel
	o.state = StateFetching
	cfg := o.cfg
	o.mu.Unlock()

	enabled := cfg.EnabledChannels()
	key := NewKey(cfg.ID, enabled, checkIn, checkOut)

	if cached, ok := o.cache.Get(key); ok {
		cancel()
		return o.commit(myGen, key, cached, true)
	}

	settleCh := make(chan settlement, len(enabled))
	for _, ch := range enabled {
		go o.fetchChannel(cctx, settleCh, ch, cfg.Channels[ch], cfg.ID, checkIn, checkOut)
	}

	records := make([]models.RateRecord, 0, len(enabled))
	failures := make(map[models.Channel]models.FailureReason, len(enabled))
	for i := 0; i < len(enabled); i++ {
		s := <-settleCh
		if !o.currentGen(myGen) {
			return nil, ErrSuperseded
		}
		if s.record != nil {
			records = append(records, *s.record)
		} else {
			failures[s.channel] = s.reason
			if o.metrics != nil {
				o.metrics.IncChannelFailure(string(s.channel))
			}
		}
		o.emitProgress(myGen, Progress{Channel: s.channel, Accepted: s.record != nil, Reason: s.reason})
	}

	rankRecords(records)
	result := &models.AggregationResult{
		Records:     records,
		Failures:    failures,
		Complete:    len(enabled) > 0 && len(records) == len(enabled),
		GeneratedAt: time.Now().UTC(),
	}
	return o.commit(myGen, key, result, false)
}

// fetchChannel runs one adapter call bounded by the per-channel timeout and
// settles exactly once.
func (o *Orchestrator) fetchChannel(ctx context.Context, settleCh chan<- settlement, ch models.Channel, listingRef, propertyID, checkIn, checkOut string) {
	adapter, ok := o.adapters[ch]
	if !ok {
		settleCh <- settlement{channel: ch, reason: models.FailureUnreachable}
		return
	}

	callCtx, done := context.WithTimeout(ctx, o.timeout)
	defer done()

	start := time.Now()
	raw, err := adapter.Fetch(callCtx, listingRef, checkIn, checkOut)
	if o.metrics != nil {
		o.metrics.ObserveChannelLatency(string(ch), time.Since(start).Seconds())
	}
	if err != nil {
		settleCh <- settlement{channel: ch, reason: classifyFailure(err)}
		return
	}

	rec, err := Normalize(ch, propertyID, checkIn, checkOut, raw)
	if err != nil || !models.ValidateRateRecord(rec) {
		o.logger.Debug("channel payload rejected", "channel", ch, "error", err)
		settleCh <- settlement{channel: ch, reason: models.FailureInvalidPayload}
		return
	}
	settleCh <- settlement{channel: ch, record: rec}
}

// commit moves the request to its terminal state, emits the terminal event
// and caches non-failed results. A stale generation is discarded untouched.
func (o *Orchestrator) commit(myGen uint64, key Key, res *models.AggregationResult, fromCache bool) (*models.AggregationResult, error) {
	o.mu.Lock()
	if o.gen != myGen {
		o.mu.Unlock()
		return nil, ErrSuperseded
	}
	failed := len(res.Records) == 0
	switch {
	case failed:
		o.state = StateFailed
	case len(res.Failures) == 0:
		o.state = StateReady
	default:
		o.state = StatePartialReady
	}
	o.mu.Unlock()

	if failed {
		// Failed results are not cached, so the next request retries
		// immediately.
		o.emitError(myGen, res.Failures)
		return nil, &AggregationError{Failures: res.Failures}
	}

	if !fromCache {
		o.cache.Put(key, res)
	}
	o.emitRatesLoaded(myGen, res)
	return res, nil
}

func (o *Orchestrator) currentGen(gen uint64) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.gen == gen
}

// emitProgress delivers a per-channel settlement event unless gen has been
// superseded. emitMu keeps deliveries ordered across generations: a stale
// emission in flight finishes before the superseding request's terminal
// event, and every later stale emission fails the generation check.
func (o *Orchestrator) emitProgress(gen uint64, p Progress) {
	o.emitMu.Lock()
	defer o.emitMu.Unlock()

	o.mu.Lock()
	var fns []func(Progress)
	if o.gen == gen {
		fns = slices.Clone(o.onProgress)
	}
	o.mu.Unlock()

	for _, fn := range fns {
		fn(p)
	}
}

func (o *Orchestrator) emitRatesLoaded(gen uint64, res *models.AggregationResult) {
	o.emitMu.Lock()
	defer o.emitMu.Unlock()

	o.mu.Lock()
	var fns []func(*models.AggregationResult)
	if o.gen == gen {
		fns = slices.Clone(o.onRates)
	}
	o.mu.Unlock()

	for _, fn := range fns {
		fn(res)
	}
}

func (o *Orchestrator) emitError(gen uint64, failures map[models.Channel]models.FailureReason) {
	o.emitMu.Lock()
	defer o.emitMu.Unlock()

	o.mu.Lock()
	var fns []func(map[models.Channel]models.FailureReason)
	if o.gen == gen {
		fns = slices.Clone(o.onError)
	}
	o.mu.Unlock()

	for _, fn := range fns {
		fn(failures)
	}
}

// classifyFailure folds any adapter error into the failure taxonomy.
func classifyFailure(err error) models.FailureReason {
	var ae *channels.AdapterError
	if errors.As(err, &ae) {
		return ae.Reason
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return models.FailureTimeout
	}
	return models.FailureUnreachable
}

// rankRecords sorts ascending by total price, ties broken by channel
// identifier, so the final ordering is deterministic regardless of
// settlement order.
func rankRecords(records []models.RateRecord) {
	sort.Slice(records, func(i, j int) bool {
		if records[i].TotalPrice != records[j].TotalPrice {
			return records[i].TotalPrice < records[j].TotalPrice
		}
		return records[i].Channel < records[j].Channel
	})
}
