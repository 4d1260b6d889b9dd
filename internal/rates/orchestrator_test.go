package rates_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/g-abate/rate-compare/internal/channels"
	"github.com/g-abate/rate-compare/internal/models"
	"github.com/g-abate/rate-compare/internal/rates"
)

const (
	checkIn  = "2025-09-15"
	checkOut = "2025-09-22"
)

func ptr(v float64) *float64 { return &v }

func componentRates(base float64) *channels.RawRates {
	return &channels.RawRates{
		BasePrice: ptr(base),
		Fees:      map[string]float64{"cleaning": 15, "service": 12, "taxes": 8},
		Currency:  "USD",
	}
}

func totalRates(total float64) *channels.RawRates {
	return &channels.RawRates{TotalPrice: ptr(total), Currency: "USD"}
}

func testConfig(chs ...models.Channel) models.PropertyConfig {
	return models.NewPropertyConfig(func(c *models.PropertyConfig) {
		c.ID = "12345678"
		c.Name = "Beach House"
		for _, ch := range chs {
			c.Channels[ch] = "ref-" + string(ch)
		}
	})
}

func newEngine(t *testing.T, cfg models.PropertyConfig, adapters []channels.Adapter) (*rates.Orchestrator, *rates.Cache) {
	t.Helper()
	cache := rates.NewCache(time.Minute, nil)
	t.Cleanup(cache.Close)

	o, err := rates.New(rates.Options{
		Config:         cfg,
		Adapters:       adapters,
		Cache:          cache,
		ChannelTimeout: 100 * time.Millisecond,
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(o.Teardown)
	return o, cache
}

func TestFetchRates_ComponentFeesAndTimeout(t *testing.T) {
	// airbnb answers with components summing to 135; vrbo times out.
	airbnb := channels.NewStubAdapter(models.ChannelAirbnb, componentRates(100), nil)
	vrbo := channels.NewStubAdapter(models.ChannelVrbo, componentRates(100), nil)
	vrbo.SetLatency(time.Second)

	o, _ := newEngine(t, testConfig(models.ChannelAirbnb, models.ChannelVrbo),
		[]channels.Adapter{airbnb, vrbo})

	res, err := o.FetchRates(context.Background(), checkIn, checkOut)
	if err != nil {
		t.Fatal(err)
	}

	if o.State() != rates.StatePartialReady {
		t.Fatalf("expected PartialReady, got %s", o.State())
	}
	if len(res.Records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(res.Records))
	}
	rec := res.Records[0]
	if rec.Channel != models.ChannelAirbnb || rec.TotalPrice != 135 || rec.Currency != "USD" || !rec.Availability {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if res.Failures[models.ChannelVrbo] != models.FailureTimeout {
		t.Fatalf("expected vrbo timeout, got %v", res.Failures)
	}
	if res.Complete {
		t.Fatal("expected incomplete result")
	}
}

func TestFetchRates_RankingDeterministic(t *testing.T) {
	adapters := []channels.Adapter{
		channels.NewStubAdapter(models.ChannelAirbnb, totalRates(135), nil),
		channels.NewStubAdapter(models.ChannelVrbo, totalRates(120), nil),
		channels.NewStubAdapter(models.ChannelBooking, totalRates(150), nil),
	}
	cfg := testConfig(models.ChannelAirbnb, models.ChannelVrbo, models.ChannelBooking)

	// Run several times: the ranking must not depend on settlement order.
	for i := 0; i < 5; i++ {
		o, cache := newEngine(t, cfg, adapters)
		cache.InvalidateProperty(cfg.ID)

		res, err := o.FetchRates(context.Background(), checkIn, checkOut)
		if err != nil {
			t.Fatal(err)
		}
		want := []models.Channel{models.ChannelVrbo, models.ChannelAirbnb, models.ChannelBooking}
		for j, ch := range want {
			if res.Records[j].Channel != ch {
				t.Fatalf("run %d: rank %d expected %s, got %s", i, j, ch, res.Records[j].Channel)
			}
		}
		if !res.Complete || len(res.Failures) != 0 {
			t.Fatalf("expected complete result, got %+v", res)
		}
		if o.State() != rates.StateReady {
			t.Fatalf("expected Ready, got %s", o.State())
		}
	}
}

func TestFetchRates_TieBreakByChannel(t *testing.T) {
	adapters := []channels.Adapter{
		channels.NewStubAdapter(models.ChannelVrbo, totalRates(120), nil),
		channels.NewStubAdapter(models.ChannelBooking, totalRates(120), nil),
	}
	o, _ := newEngine(t, testConfig(models.ChannelVrbo, models.ChannelBooking), adapters)

	res, err := o.FetchRates(context.Background(), checkIn, checkOut)
	if err != nil {
		t.Fatal(err)
	}
	if res.Records[0].Channel != models.ChannelBooking || res.Records[1].Channel != models.ChannelVrbo {
		t.Fatalf("expected lexical tie-break, got %+v", res.Records)
	}
}

func TestFetchRates_AllChannelsFail(t *testing.T) {
	down := errors.New("connection refused")
	airbnb := channels.NewStubAdapter(models.ChannelAirbnb, nil,
		channels.NewAdapterError(models.ChannelAirbnb, models.FailureUnreachable, down))
	vrbo := channels.NewStubAdapter(models.ChannelVrbo, nil,
		channels.NewAdapterError(models.ChannelVrbo, models.FailureRateLimited, nil))

	o, _ := newEngine(t, testConfig(models.ChannelAirbnb, models.ChannelVrbo),
		[]channels.Adapter{airbnb, vrbo})

	var errEvents []map[models.Channel]models.FailureReason
	o.OnError(func(failures map[models.Channel]models.FailureReason) {
		errEvents = append(errEvents, failures)
	})

	_, err := o.FetchRates(context.Background(), checkIn, checkOut)
	var aggErr *rates.AggregationError
	if !errors.As(err, &aggErr) {
		t.Fatalf("expected AggregationError, got %v", err)
	}
	if len(aggErr.Failures) != 2 {
		t.Fatalf("expected 2 failure entries, got %v", aggErr.Failures)
	}
	if aggErr.Failures[models.ChannelAirbnb] != models.FailureUnreachable ||
		aggErr.Failures[models.ChannelVrbo] != models.FailureRateLimited {
		t.Fatalf("unexpected reasons: %v", aggErr.Failures)
	}
	if o.State() != rates.StateFailed {
		t.Fatalf("expected Failed, got %s", o.State())
	}
	if len(errEvents) != 1 {
		t.Fatalf("expected one error event, got %d", len(errEvents))
	}

	// Failed results are never cached: a retry must call the adapters again.
	_, _ = o.FetchRates(context.Background(), checkIn, checkOut)
	if airbnb.Calls() != 2 || vrbo.Calls() != 2 {
		t.Fatalf("expected retry to hit adapters, calls: airbnb=%d vrbo=%d", airbnb.Calls(), vrbo.Calls())
	}
}

func TestFetchRates_PartialFailureCounts(t *testing.T) {
	adapters := []channels.Adapter{
		channels.NewStubAdapter(models.ChannelAirbnb, totalRates(135), nil),
		channels.NewStubAdapter(models.ChannelVrbo, nil,
			channels.NewAdapterError(models.ChannelVrbo, models.FailureNotFound, nil)),
		channels.NewStubAdapter(models.ChannelBooking, totalRates(150), nil),
	}
	o, _ := newEngine(t, testConfig(models.ChannelAirbnb, models.ChannelVrbo, models.ChannelBooking), adapters)

	res, err := o.FetchRates(context.Background(), checkIn, checkOut)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Records) != 2 || len(res.Failures) != 1 {
		t.Fatalf("expected 2 records and 1 failure, got %d/%d", len(res.Records), len(res.Failures))
	}
	if o.State() != rates.StatePartialReady {
		t.Fatalf("expected PartialReady, got %s", o.State())
	}
}

func TestFetchRates_MalformedPayloadIsPerChannelFailure(t *testing.T) {
	adapters := []channels.Adapter{
		channels.NewStubAdapter(models.ChannelAirbnb, &channels.RawRates{Currency: "USD"}, nil), // no price
		channels.NewStubAdapter(models.ChannelVrbo, totalRates(120), nil),
	}
	o, _ := newEngine(t, testConfig(models.ChannelAirbnb, models.ChannelVrbo), adapters)

	res, err := o.FetchRates(context.Background(), checkIn, checkOut)
	if err != nil {
		t.Fatal(err)
	}
	if res.Failures[models.ChannelAirbnb] != models.FailureInvalidPayload {
		t.Fatalf("expected invalid_payload, got %v", res.Failures)
	}
	if len(res.Records) != 1 {
		t.Fatalf("one channel's bad payload must not block the other, got %d records", len(res.Records))
	}
}

func TestFetchRates_CacheHitShortCircuits(t *testing.T) {
	stub := channels.NewStubAdapter(models.ChannelAirbnb, totalRates(135), nil)
	o, _ := newEngine(t, testConfig(models.ChannelAirbnb), []channels.Adapter{stub})

	first, err := o.FetchRates(context.Background(), checkIn, checkOut)
	if err != nil {
		t.Fatal(err)
	}
	second, err := o.FetchRates(context.Background(), checkIn, checkOut)
	if err != nil {
		t.Fatal(err)
	}
	if stub.Calls() != 1 {
		t.Fatalf("expected cache hit to skip adapter, got %d calls", stub.Calls())
	}
	if first != second {
		t.Fatal("expected the identical cached result")
	}
	if o.State() != rates.StateReady {
		t.Fatalf("expected Ready after cached request, got %s", o.State())
	}
}

func TestFetchRates_InvalidateForcesMiss(t *testing.T) {
	stub := channels.NewStubAdapter(models.ChannelAirbnb, totalRates(135), nil)
	o, cache := newEngine(t, testConfig(models.ChannelAirbnb), []channels.Adapter{stub})

	if _, err := o.FetchRates(context.Background(), checkIn, checkOut); err != nil {
		t.Fatal(err)
	}
	cache.InvalidateProperty("12345678")
	if _, err := o.FetchRates(context.Background(), checkIn, checkOut); err != nil {
		t.Fatal(err)
	}
	if stub.Calls() != 2 {
		t.Fatalf("expected invalidation to force a refetch, got %d calls", stub.Calls())
	}
}

func TestFetchRates_InvalidStay(t *testing.T) {
	o, _ := newEngine(t, testConfig(models.ChannelAirbnb),
		[]channels.Adapter{channels.NewStubAdapter(models.ChannelAirbnb, totalRates(1), nil)})

	for _, tc := range [][2]string{
		{"oops", checkOut},
		{checkIn, "oops"},
		{checkOut, checkIn},
		{checkIn, checkIn},
	} {
		if _, err := o.FetchRates(context.Background(), tc[0], tc[1]); !errors.Is(err, rates.ErrInvalidStay) {
			t.Fatalf("expected ErrInvalidStay for %v, got %v", tc, err)
		}
	}
}

func TestFetchRates_NoChannelsConfigured(t *testing.T) {
	o, _ := newEngine(t, testConfig(), nil)

	_, err := o.FetchRates(context.Background(), checkIn, checkOut)
	var aggErr *rates.AggregationError
	if !errors.As(err, &aggErr) {
		t.Fatalf("expected AggregationError, got %v", err)
	}
	if o.State() != rates.StateFailed {
		t.Fatalf("expected Failed, got %s", o.State())
	}
}

// blockingAdapter blocks until its context is cancelled, signalling once the
// call has started.
type blockingAdapter struct {
	ch      models.Channel
	started chan struct{}
	once    sync.Once
}

func (a *blockingAdapter) Channel() models.Channel { return a.ch }

func (a *blockingAdapter) Fetch(ctx context.Context, ref, in, out string) (*channels.RawRates, error) {
	a.once.Do(func() { close(a.started) })
	<-ctx.Done()
	return nil, channels.NewAdapterError(a.ch, models.FailureTimeout, ctx.Err())
}

func TestFetchRates_SupersededNoLateEvents(t *testing.T) {
	blocking := &blockingAdapter{ch: models.ChannelAirbnb, started: make(chan struct{})}
	fast := channels.NewStubAdapter(models.ChannelVrbo, totalRates(120), nil)

	cache := rates.NewCache(time.Minute, nil)
	t.Cleanup(cache.Close)
	o, err := rates.New(rates.Options{
		Config:   testConfig(models.ChannelAirbnb, models.ChannelVrbo),
		Adapters: []channels.Adapter{blocking, fast},
		Cache:    cache,
		// long enough that supersession, not the timeout, ends the
		// blocked first call
		ChannelTimeout: 200 * time.Millisecond,
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(o.Teardown)

	var mu sync.Mutex
	var progress []rates.Progress
	var loaded int32
	o.OnProgress(func(p rates.Progress) {
		mu.Lock()
		progress = append(progress, p)
		mu.Unlock()
	})
	o.OnRatesLoaded(func(*models.AggregationResult) { atomic.AddInt32(&loaded, 1) })

	firstErr := make(chan error, 1)
	go func() {
		_, err := o.FetchRates(context.Background(), checkIn, checkOut)
		firstErr <- err
	}()

	<-blocking.started

	// The superseding request uses different dates so it cannot be served
	// from the first request's cache entry (which never exists anyway).
	res, err := o.FetchRates(context.Background(), "2025-10-01", "2025-10-05")
	if err != nil {
		// airbnb blocks until cancelled; the second request settles it as
		// a timeout-style failure, vrbo succeeds
		t.Fatal(err)
	}
	if len(res.Records) == 0 {
		t.Fatal("expected the superseding request to produce records")
	}

	if err := <-firstErr; !errors.Is(err, rates.ErrSuperseded) {
		t.Fatalf("expected ErrSuperseded, got %v", err)
	}

	// Give any stray goroutine a moment, then assert nothing from the
	// superseded generation leaked into the event stream.
	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	for _, p := range progress {
		if !p.Accepted && p.Channel == models.ChannelVrbo {
			t.Fatalf("unexpected vrbo failure progress: %+v", p)
		}
	}
	if atomic.LoadInt32(&loaded) != 1 {
		t.Fatalf("expected exactly one rates-loaded event, got %d", loaded)
	}
}

func TestTeardown_CancelsAndClears(t *testing.T) {
	blocking := &blockingAdapter{ch: models.ChannelAirbnb, started: make(chan struct{})}

	cache := rates.NewCache(time.Minute, nil)
	t.Cleanup(cache.Close)
	o, err := rates.New(rates.Options{
		Config:         testConfig(models.ChannelAirbnb),
		Adapters:       []channels.Adapter{blocking},
		Cache:          cache,
		ChannelTimeout: 5 * time.Second,
	})
	if err != nil {
		t.Fatal(err)
	}

	fired := int32(0)
	o.OnRatesLoaded(func(*models.AggregationResult) { atomic.AddInt32(&fired, 1) })
	o.OnError(func(map[models.Channel]models.FailureReason) { atomic.AddInt32(&fired, 1) })

	done := make(chan error, 1)
	go func() {
		_, err := o.FetchRates(context.Background(), checkIn, checkOut)
		done <- err
	}()
	<-blocking.started

	o.Teardown()
	o.Teardown() // idempotent

	if err := <-done; !errors.Is(err, rates.ErrSuperseded) {
		t.Fatalf("expected ErrSuperseded after teardown, got %v", err)
	}
	if o.State() != rates.StateIdle {
		t.Fatalf("expected Idle after teardown, got %s", o.State())
	}
	if atomic.LoadInt32(&fired) != 0 {
		t.Fatal("expected no terminal events after teardown")
	}
}

func TestSetConfig_InvalidatesProperty(t *testing.T) {
	stub := channels.NewStubAdapter(models.ChannelAirbnb, totalRates(135), nil)
	cfg := testConfig(models.ChannelAirbnb)
	o, _ := newEngine(t, cfg, []channels.Adapter{stub})

	if _, err := o.FetchRates(context.Background(), checkIn, checkOut); err != nil {
		t.Fatal(err)
	}

	if err := o.SetConfig(cfg); err != nil {
		t.Fatal(err)
	}
	if _, err := o.FetchRates(context.Background(), checkIn, checkOut); err != nil {
		t.Fatal(err)
	}
	if stub.Calls() != 2 {
		t.Fatalf("expected config change to invalidate cache, got %d calls", stub.Calls())
	}

	bad := models.PropertyConfig{}
	if err := o.SetConfig(bad); err == nil {
		t.Fatal("expected invalid config to be rejected")
	}
}

func TestOnReady_FiresOnRegistration(t *testing.T) {
	o, _ := newEngine(t, testConfig(models.ChannelAirbnb),
		[]channels.Adapter{channels.NewStubAdapter(models.ChannelAirbnb, totalRates(1), nil)})

	fired := false
	o.OnReady(func() { fired = true })
	if !fired {
		t.Fatal("expected the ready callback to run on registration")
	}
	if o.State() != rates.StateIdle {
		t.Fatalf("expected Idle before any request, got %s", o.State())
	}
}

func TestProgressEvents_OnePerChannel(t *testing.T) {
	adapters := []channels.Adapter{
		channels.NewStubAdapter(models.ChannelAirbnb, totalRates(135), nil),
		channels.NewStubAdapter(models.ChannelVrbo, nil,
			channels.NewAdapterError(models.ChannelVrbo, models.FailureNotFound, nil)),
	}
	o, _ := newEngine(t, testConfig(models.ChannelAirbnb, models.ChannelVrbo), adapters)

	var mu sync.Mutex
	var progress []rates.Progress
	o.OnProgress(func(p rates.Progress) {
		mu.Lock()
		progress = append(progress, p)
		mu.Unlock()
	})

	if _, err := o.FetchRates(context.Background(), checkIn, checkOut); err != nil {
		t.Fatal(err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(progress) != 2 {
		t.Fatalf("expected 2 progress events, got %d", len(progress))
	}
	byChannel := map[models.Channel]rates.Progress{}
	for _, p := range progress {
		byChannel[p.Channel] = p
	}
	if !byChannel[models.ChannelAirbnb].Accepted {
		t.Fatal("expected airbnb settlement to be accepted")
	}
	if byChannel[models.ChannelVrbo].Reason != models.FailureNotFound {
		t.Fatalf("expected vrbo not_found, got %+v", byChannel[models.ChannelVrbo])
	}
}
