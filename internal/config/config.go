package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Feed kinds: how the upstream publishes its records.
const (
	// FeedKindCKAN fetches with offset pagination against a CKAN
	// datastore_search endpoint (result.records[] / result.total).
	FeedKindCKAN = "ckan"
	// FeedKindEmbedded fetches a single document with all records embedded
	// under data.monitor[].
	FeedKindEmbedded = "embedded"
)

// Feed describes one upstream exposure-site data source.
type Feed struct {
	State      string `yaml:"state"`
	Kind       string `yaml:"kind"`
	URL        string `yaml:"url"`
	ResourceID string `yaml:"resource_id"`
}

// Config holds all service settings, populated from environment variables
// and the optional feeds file.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	RefreshInterval time.Duration
	FetchTimeout    time.Duration
	PageSize        int
	DeleteBatchSize int

	// Geocoding API configuration.
	GeocodeAPIKey  string
	GeocodeTimeout time.Duration

	// Postgres document store. Empty means the in-memory store, which is
	// only useful for local runs.
	DatabaseURL string

	// Kafka snapshot notifications (optional, enabled when brokers are set).
	KafkaBrokers       []string
	KafkaSnapshotTopic string
	NotifierEnabled    bool

	Feeds []Feed
}

// defaultFeeds are the two government open-data sources the service was
// built for. A FEEDS_FILE overrides the whole list.
var defaultFeeds = []Feed{
	{
		State:      "vic",
		Kind:       FeedKindCKAN,
		URL:        "https://discover.data.vic.gov.au/api/3/action/datastore_search",
		ResourceID: "afb52611-6061-4a2b-9110-74c920bede77",
	},
	{
		State: "nsw",
		Kind:  FeedKindEmbedded,
		URL:   "https://data.nsw.gov.au/data/dataset/0a52e6c1-bc0b-48af-8b45-d791a6d8e289/resource/f3a28eed-8c2a-437b-8ac1-2dab3cf760f9/download/covid-case-locations.json",
	},
}

// Load reads configuration from environment variables, applying defaults
// where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := envDuration("SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}
	refreshInterval, err := envDuration("REFRESH_INTERVAL", time.Hour)
	if err != nil {
		return nil, err
	}
	fetchTimeout, err := envDuration("FETCH_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}
	geocodeTimeout, err := envDuration("GEOCODE_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, err
	}
	pageSize, err := envInt("PAGE_SIZE", 100)
	if err != nil {
		return nil, err
	}
	deleteBatchSize, err := envInt("DELETE_BATCH_SIZE", 40)
	if err != nil {
		return nil, err
	}

	feeds, err := loadFeeds(os.Getenv("FEEDS_FILE"))
	if err != nil {
		return nil, err
	}

	brokers := splitCommaList(os.Getenv("KAFKA_BROKERS"))

	cfg := &Config{
		HTTPAddr:        envOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        envOrDefault("LOG_LEVEL", "info"),
		LogFormat:       envOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		RefreshInterval: refreshInterval,
		FetchTimeout:    fetchTimeout,
		PageSize:        pageSize,
		DeleteBatchSize: deleteBatchSize,

		GeocodeAPIKey:  os.Getenv("GEOCODE_API_KEY"),
		GeocodeTimeout: geocodeTimeout,

		DatabaseURL: os.Getenv("DATABASE_URL"),

		KafkaBrokers:       brokers,
		KafkaSnapshotTopic: envOrDefault("KAFKA_SNAPSHOT_TOPIC", "exposure-snapshots"),
		NotifierEnabled:    len(brokers) > 0,

		Feeds: feeds,
	}

	if cfg.GeocodeAPIKey == "" {
		return nil, errors.New("GEOCODE_API_KEY is required")
	}
	if cfg.PageSize < 1 {
		return nil, errors.New("PAGE_SIZE must be at least 1")
	}
	if cfg.RefreshInterval < time.Minute {
		return nil, errors.New("REFRESH_INTERVAL must be at least 1m")
	}
	for _, f := range cfg.Feeds {
		if f.State == "" || f.URL == "" {
			return nil, fmt.Errorf("feed %+v is missing state or url", f)
		}
		if f.Kind != FeedKindCKAN && f.Kind != FeedKindEmbedded {
			return nil, fmt.Errorf("feed %q has unknown kind %q", f.State, f.Kind)
		}
		if f.Kind == FeedKindCKAN && f.ResourceID == "" {
			return nil, fmt.Errorf("feed %q needs a resource_id", f.State)
		}
	}

	return cfg, nil
}

// loadFeeds returns the built-in feed list, or the contents of the YAML
// feeds file when one is configured.
func loadFeeds(path string) ([]Feed, error) {
	if path == "" {
		return defaultFeeds, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read feeds file: %w", err)
	}

	var doc struct {
		Feeds []Feed `yaml:"feeds"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse feeds file %s: %w", path, err)
	}
	if len(doc.Feeds) == 0 {
		return nil, fmt.Errorf("feeds file %s defines no feeds", path)
	}
	return doc.Feeds, nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, s)
	}
	return d, nil
}

func envInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", key, s)
	}
	return n, nil
}

func splitCommaList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
