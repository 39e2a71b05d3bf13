package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"busview.transitireland.org/internal/appconf"
)

// Config holds every environment-supplied setting the engine consumes.
type Config struct {
	Env  appconf.Environment
	Port int

	DBPath string

	StaticFeedURL string
	LiveFeedURL   string
	LiveFeedKey   string

	PollInterval time.Duration
	RetryDelay   time.Duration
	MaxRetries   int
	FetchTimeout time.Duration

	Location  *time.Location
	LowMemory bool

	MetricsAddr string
}

// Load reads configuration from the environment. A .env file in the working
// directory is merged in when present.
func Load() (*Config, error) {
	// Load .env into environment (ignore if missing)
	_ = godotenv.Load()

	cfg := &Config{
		Env:    appconf.EnvFromString(getenvDefault("ENV", "development")),
		DBPath: getenvDefault("DB_PATH", "busview.db"),

		StaticFeedURL: getenvDefault("STATIC_FEED_URL",
			"https://www.transportforireland.ie/transitData/Data/GTFS_Realtime.zip"),
		LiveFeedURL: getenvDefault("LIVE_FEED_URL",
			"https://api.nationaltransport.ie/gtfsr/v2/TripUpdates?format=json"),
		LiveFeedKey: os.Getenv("API_KEY"),

		MetricsAddr: os.Getenv("METRICS_ADDR"),
	}

	if cfg.LiveFeedKey == "" {
		return nil, errors.New("API_KEY must be set")
	}

	port, err := intFromEnv("PORT", 3000)
	if err != nil {
		return nil, err
	}
	cfg.Port = port

	pollSec, err := intFromEnv("POLL_INTERVAL_SEC", 60)
	if err != nil {
		return nil, err
	}
	cfg.PollInterval = time.Duration(pollSec) * time.Second

	retrySec, err := intFromEnv("RETRY_DELAY_SEC", 30)
	if err != nil {
		return nil, err
	}
	cfg.RetryDelay = time.Duration(retrySec) * time.Second

	retries, err := intFromEnv("MAX_RETRIES", 1)
	if err != nil {
		return nil, err
	}
	cfg.MaxRetries = retries

	fetchSec, err := intFromEnv("FETCH_TIMEOUT_SEC", 60)
	if err != nil {
		return nil, err
	}
	cfg.FetchTimeout = time.Duration(fetchSec) * time.Second

	tzName := getenvDefault("AREA_TIMEZONE", "Europe/Dublin")
	loc, err := time.LoadLocation(tzName)
	if err != nil {
		return nil, fmt.Errorf("invalid AREA_TIMEZONE: %w", err)
	}
	cfg.Location = loc

	cfg.LowMemory = boolFromEnv("LOW_MEMORY")

	if cfg.Env == appconf.Test {
		cfg.DBPath = ":memory:"
	}

	return cfg, nil
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func intFromEnv(k string, def int) (int, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", k, v)
	}
	return n, nil
}

func boolFromEnv(k string) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(k))) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	default:
		return false
	}
}
