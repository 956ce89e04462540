package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/couchcryptid/location-picker/internal/adapter/api"
	"github.com/couchcryptid/location-picker/internal/adapter/geocache"
	"github.com/couchcryptid/location-picker/internal/adapter/geolocation"
	"github.com/couchcryptid/location-picker/internal/adapter/httpadapter"
	kafkaadapter "github.com/couchcryptid/location-picker/internal/adapter/kafka"
	"github.com/couchcryptid/location-picker/internal/adapter/mapbox"
	"github.com/couchcryptid/location-picker/internal/adapter/nominatim"
	"github.com/couchcryptid/location-picker/internal/adapter/osm"
	"github.com/couchcryptid/location-picker/internal/config"
	"github.com/couchcryptid/location-picker/internal/domain"
	"github.com/couchcryptid/location-picker/internal/observability"
	"github.com/couchcryptid/location-picker/internal/picker"
	"github.com/couchcryptid/location-picker/internal/pipeline"
	"github.com/couchcryptid/location-picker/internal/session"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := sharedobs.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	geocoder := geocache.New(newGeocoder(cfg, metrics, logger), cfg.GeocodeCacheSize, metrics)
	logger.Info("geocoder configured", "provider", cfg.GeocoderProvider, "cache_size", cfg.GeocodeCacheSize)

	var fallback domain.Geolocator
	if cfg.GoogleGeolocationKey != "" {
		g, err := geolocation.NewGoogle(cfg.GoogleGeolocationKey, logger)
		if err != nil {
			logger.Error("failed to create network geolocator", "error", err)
			os.Exit(1)
		}
		fallback = g
		logger.Info("network geolocation enabled")
	}

	widget := widgetConfig(cfg)

	// Selection event stream (feature-flagged via KAFKA_ENABLED).
	var (
		sink   session.EventSink
		writer *kafkaadapter.Writer
		p      *pipeline.Pipeline
	)
	if cfg.KafkaEnabled {
		queue := pipeline.NewQueue(cfg.QueueCapacity, metrics.SelectionsDropped.Inc)
		writer = kafkaadapter.NewWriter(cfg.KafkaBrokers, cfg.KafkaSelectionTopic, logger)
		p = pipeline.New(queue, writer, logger, metrics, cfg.BatchSize)
		sink = queue
		logger.Info("selection publishing enabled", "topic", cfg.KafkaSelectionTopic)
	}

	registry := session.NewRegistry(session.Options{
		Widget:      widget,
		Geocoder:    geocoder,
		Suggester:   geocoder,
		Geolocator:  geolocation.NewDevice(fallback),
		Publisher:   sink,
		IdleTimeout: cfg.SessionIdleTimeout,
	}, logger, metrics)

	handler := api.NewHandler(registry, domain.NewResolver(geocoder, cfg.ReverseTimeout, logger), geocoder, widget, logger)
	var limiter *api.IPRateLimiter
	if cfg.APIRateLimit > 0 {
		limiter = api.NewIPRateLimiter(rate.Limit(cfg.APIRateLimit), cfg.APIRateBurst, logger)
	}
	router := api.NewRouter(handler, limiter, logger)

	ready := httpadapter.Readiness{registry}
	if p != nil {
		ready = append(ready, p)
	}
	srv := httpadapter.NewServer(cfg.HTTPAddr, router, ready, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error { return registry.RunReaper(gctx) })
	if p != nil {
		g.Go(func() error { return p.Run(gctx) })
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("http server shutdown error", "error", err)
		}
		registry.Close()
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("service error", "error", err)
	}

	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}

func newGeocoder(cfg *config.Config, metrics *observability.Metrics, logger *slog.Logger) domain.Geocoder {
	switch cfg.GeocoderProvider {
	case config.ProviderMapbox:
		return mapbox.NewClient(cfg.MapboxToken, cfg.MapboxTimeout, "vi", metrics, logger)
	case config.ProviderOSM:
		return osm.New(cfg.NominatimURL, metrics, logger)
	default:
		return nominatim.NewClient(nominatim.Config{
			BaseURL:   cfg.NominatimURL,
			UserAgent: cfg.NominatimUserAgent,
			Language:  "vi,en",
			RateLimit: cfg.NominatimRateLimit,
		}, metrics, logger)
	}
}

func widgetConfig(cfg *config.Config) picker.Config {
	w := picker.DefaultConfig()
	w.Default = cfg.Default
	w.Zoom = cfg.DefaultZoom
	if cfg.TileURLTemplate != "" {
		w.Tiles.URLTemplate = cfg.TileURLTemplate
		w.Tiles.Subdomains = nil
	}
	if cfg.TileAttribution != "" {
		w.Tiles.Attribution = cfg.TileAttribution
	}
	w.Search.Debounce = cfg.SearchDebounce
	w.ReverseTimeout = cfg.ReverseTimeout
	return w
}
