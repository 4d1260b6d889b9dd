package app

import (
	"fmt"
	"net/http"

	"github.com/g-abate/rate-compare/internal/channels"
	"github.com/g-abate/rate-compare/internal/config"
	handlers "github.com/g-abate/rate-compare/internal/http"
	"github.com/g-abate/rate-compare/internal/logging"
	"github.com/g-abate/rate-compare/internal/obs"
	"github.com/g-abate/rate-compare/internal/rates"
	"github.com/g-abate/rate-compare/internal/routes"
	"github.com/prometheus/client_golang/prometheus"

	"log/slog"
)

type App struct {
	Router  http.Handler
	Engine  *rates.Orchestrator
	Cache   *rates.Cache
	Limiter *rates.IPRateLimiter
	Metrics *obs.Metrics
	Logger  *slog.Logger
}

// New wires the application from environment configuration.
func New(cfg *config.AppConfig) (*App, error) {
	logger := logging.NewLogger(cfg.Log.Format, cfg.Log.Level, nil)
	slog.SetDefault(logger)

	customRegistry := prometheus.NewRegistry()
	metrics := obs.NewMetrics(customRegistry)

	adapterList := make([]channels.Adapter, 0, len(cfg.Channels))
	for ch, cc := range cfg.Channels {
		if cc.ExtractorURL != "" {
			adapterList = append(adapterList, channels.NewHTTPAdapter(ch, cc.ExtractorURL, cfg.Engine.ChannelTimeout))
			logger.Info("channel adapter", "channel", ch, "transport", "http", "extractor", cc.ExtractorURL)
			continue
		}
		// No extractor configured: serve canned rates so local runs work
		// out of the box.
		adapterList = append(adapterList, channels.NewStubAdapter(ch, stubRates(cc.ListingRef), nil))
		logger.Info("channel adapter", "channel", ch, "transport", "stub")
	}

	cache := rates.NewCache(cfg.Engine.CacheTTL, metrics)

	engine, err := rates.New(rates.Options{
		Config:         cfg.PropertyConfig(),
		Adapters:       adapterList,
		Cache:          cache,
		ChannelTimeout: cfg.Engine.ChannelTimeout,
		Metrics:        metrics,
		Logger:         logger,
	})
	if err != nil {
		cache.Close()
		return nil, fmt.Errorf("failed to build engine: %w", err)
	}

	limiter := rates.NewIPRateLimiter(cfg.Engine.RateLimit, cfg.Engine.RateLimitWindow)
	h := handlers.NewHandler(engine, cache, limiter, metrics)
	router := routes.GetRoutes(h, metrics, logger)

	return &App{
		Router:  router,
		Engine:  engine,
		Cache:   cache,
		Limiter: limiter,
		Metrics: metrics,
		Logger:  logger,
	}, nil
}

// Close releases the engine and cache resources.
func (a *App) Close() {
	a.Engine.Teardown()
	a.Cache.Close()
}

func stubRates(listingRef string) *channels.RawRates {
	base := 120.0
	avail := true
	return &channels.RawRates{
		PropertyRef: listingRef,
		BasePrice:   &base,
		Fees:        map[string]float64{"cleaning": 15, "service": 12, "taxes": 8},
		Currency:    "USD",
		Available:   &avail,
	}
}
