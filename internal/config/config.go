package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"

	"github.com/couchcryptid/location-picker/internal/domain"
)

// Geocoder provider names accepted by GEOCODER_PROVIDER.
const (
	ProviderNominatim = "nominatim"
	ProviderMapbox    = "mapbox"
	ProviderOSM       = "osm"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Widget defaults.
	Default         domain.Selection
	DefaultZoom     int
	TileURLTemplate string
	TileAttribution string
	ReverseTimeout  time.Duration
	SearchDebounce  time.Duration

	// Geocoding provider configuration.
	GeocoderProvider   string
	NominatimURL       string
	NominatimUserAgent string
	NominatimRateLimit float64
	MapboxToken        string
	MapboxTimeout      time.Duration
	GeocodeCacheSize   int

	GoogleGeolocationKey string

	// Selection event stream.
	KafkaEnabled        bool
	KafkaBrokers        []string
	KafkaSelectionTopic string
	BatchSize           int
	QueueCapacity       int

	SessionIdleTimeout time.Duration
	APIRateLimit       float64
	APIRateBurst       int
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	batchSize, err := sharedcfg.ParseBatchSize()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		Default:         parseDefaultSelection(),
		DefaultZoom:     parsePositiveInt("DEFAULT_ZOOM", 15),
		TileURLTemplate: os.Getenv("TILE_URL_TEMPLATE"),
		TileAttribution: os.Getenv("TILE_ATTRIBUTION"),

		GeocoderProvider:   sharedcfg.EnvOrDefault("GEOCODER_PROVIDER", ProviderNominatim),
		NominatimURL:       sharedcfg.EnvOrDefault("NOMINATIM_URL", "https://nominatim.openstreetmap.org"),
		NominatimUserAgent: sharedcfg.EnvOrDefault("NOMINATIM_USER_AGENT", "location-picker/1.0"),
		MapboxToken:        os.Getenv("MAPBOX_TOKEN"),
		GeocodeCacheSize:   parsePositiveInt("GEOCODE_CACHE_SIZE", 1000),

		GoogleGeolocationKey: os.Getenv("GOOGLE_GEOLOCATION_API_KEY"),

		KafkaEnabled:        os.Getenv("KAFKA_ENABLED") == "true",
		KafkaBrokers:        sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSelectionTopic: sharedcfg.EnvOrDefault("KAFKA_SELECTION_TOPIC", "location-selections"),
		BatchSize:           batchSize,
		QueueCapacity:       parsePositiveInt("SELECTION_QUEUE_CAPACITY", 1024),

		APIRateBurst: parsePositiveInt("API_RATE_BURST", 20),
	}

	if cfg.MapboxTimeout, err = parseDuration("MAPBOX_TIMEOUT", "5s"); err != nil {
		return nil, err
	}
	if cfg.ReverseTimeout, err = parseDuration("REVERSE_GEOCODE_TIMEOUT", "8s"); err != nil {
		return nil, err
	}
	if cfg.SearchDebounce, err = parseDuration("SEARCH_DEBOUNCE", "300ms"); err != nil {
		return nil, err
	}
	if cfg.SessionIdleTimeout, err = parseDuration("SESSION_IDLE_TIMEOUT", "30m"); err != nil {
		return nil, err
	}
	if cfg.NominatimRateLimit, err = parseRate("NOMINATIM_RATE_LIMIT", 1); err != nil {
		return nil, err
	}
	if cfg.APIRateLimit, err = parseRate("API_RATE_LIMIT", 10); err != nil {
		return nil, err
	}

	switch cfg.GeocoderProvider {
	case ProviderNominatim, ProviderOSM:
	case ProviderMapbox:
		if cfg.MapboxToken == "" {
			return nil, errors.New("GEOCODER_PROVIDER is mapbox but MAPBOX_TOKEN is not set")
		}
	default:
		return nil, fmt.Errorf("invalid GEOCODER_PROVIDER %q", cfg.GeocoderProvider)
	}
	if cfg.KafkaEnabled {
		if len(cfg.KafkaBrokers) == 0 {
			return nil, errors.New("KAFKA_BROKERS is required")
		}
		if cfg.KafkaSelectionTopic == "" {
			return nil, errors.New("KAFKA_SELECTION_TOPIC is required")
		}
	}

	return cfg, nil
}

// parseDefaultSelection reads the default location. A coordinate that is
// missing, unparsable or out of range falls back to the built-in value.
func parseDefaultSelection() domain.Selection {
	lat := parseCoordinate("DEFAULT_LATITUDE", domain.DefaultLatitude, 90)
	lng := parseCoordinate("DEFAULT_LONGITUDE", domain.DefaultLongitude, 180)
	return domain.Selection{
		Lat:     lat,
		Lng:     lng,
		Address: sharedcfg.EnvOrDefault("DEFAULT_ADDRESS", domain.DefaultAddress),
	}
}

func parseCoordinate(name string, def, limit float64) float64 {
	if s := os.Getenv(name); s != "" {
		if v, err := strconv.ParseFloat(s, 64); err == nil && v >= -limit && v <= limit {
			return v
		}
	}
	return def
}

func parsePositiveInt(name string, def int) int {
	if s := os.Getenv(name); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func parseDuration(name, def string) (time.Duration, error) {
	v, err := time.ParseDuration(sharedcfg.EnvOrDefault(name, def))
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("invalid %s", name)
	}
	return v, nil
}

// parseRate reads a requests-per-second value. Zero disables the limit.
func parseRate(name string, def float64) (float64, error) {
	s := os.Getenv(name)
	if s == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("invalid %s", name)
	}
	return v, nil
}
