// Package config loads club-sync settings from a YAML file and CLUBSYNC_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to upper-cased, underscore-joined keys:
// server.ingest_secret is read from CLUBSYNC_SERVER_INGEST_SECRET.
const EnvPrefix = "CLUBSYNC"

// Settings is the full configuration tree
type Settings struct {
	Log        LogSettings        `mapstructure:"log"`
	Database   DatabaseSettings   `mapstructure:"database"`
	Worker     WorkerSettings     `mapstructure:"worker"`
	Server     ServerSettings     `mapstructure:"server"`
	Sources    SourceSettings     `mapstructure:"sources"`
	Fetch      FetchSettings      `mapstructure:"fetch"`
	Reconcile  ReconcileSettings  `mapstructure:"reconcile"`
	Extract    ExtractSettings    `mapstructure:"extract"`
	Category   CategorySettings   `mapstructure:"category"`
	Heuristics HeuristicsSettings `mapstructure:"heuristics"`
	Calendar   CalendarSettings   `mapstructure:"calendar"`
}

// LogSettings controls the process logger
type LogSettings struct {
	Level string `mapstructure:"level"`
}

// DatabaseSettings selects and configures the store backend
type DatabaseSettings struct {
	Driver        string        `mapstructure:"driver"` // sqlite or mysql
	Path          string        `mapstructure:"path"`   // sqlite file
	DSN           string        `mapstructure:"dsn"`    // mysql
	BusyTimeout   time.Duration `mapstructure:"busy_timeout"`
	SlowThreshold time.Duration `mapstructure:"slow_threshold"`
	Debug         bool          `mapstructure:"debug"`
}

// WorkerSettings controls job execution
type WorkerSettings struct {
	LeaseTimeout time.Duration `mapstructure:"lease_timeout"`
	StageTimeout time.Duration `mapstructure:"stage_timeout"` // zero disables
	Interval     time.Duration `mapstructure:"interval"`
}

// ServerSettings configures the ingestion trigger endpoint
type ServerSettings struct {
	Addr            string        `mapstructure:"addr"`
	IngestSecret    string        `mapstructure:"ingest_secret"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// SourceSettings names where rosters and event listings come from
type SourceSettings struct {
	RosterURL   string           `mapstructure:"roster_url"`
	ListingURLs []string         `mapstructure:"listing_urls"`
	Listing     ListingSelectors `mapstructure:"listing"`
}

// ListingSelectors are CSS selectors for a structured event listing page.
// Title, Date, Link and Category are relative to Item.
type ListingSelectors struct {
	Item     string `mapstructure:"item"`
	Title    string `mapstructure:"title"`
	Date     string `mapstructure:"date"`
	Link     string `mapstructure:"link"`
	Category string `mapstructure:"category"`
}

// FetchSettings configures the HTTP fetcher
type FetchSettings struct {
	Timeout       time.Duration `mapstructure:"timeout"`
	UserAgent     string        `mapstructure:"user_agent"`
	RatePerSecond float64       `mapstructure:"rate_per_second"`
	Burst         int           `mapstructure:"burst"`
	MaxRetries    uint64        `mapstructure:"max_retries"`
	MaxBodyBytes  int64         `mapstructure:"max_body_bytes"`
}

// ReconcileSettings configures the reconciliation engine
type ReconcileSettings struct {
	FallbackCategory string   `mapstructure:"fallback_category"`
	ProtectedFields  []string `mapstructure:"protected_fields"`
	FullReimport     bool     `mapstructure:"full_reimport"`
	DedupPolicy      string   `mapstructure:"dedup_policy"` // merge or report
}

// ExtractSettings configures the description extractor
type ExtractSettings struct {
	MinLength  int      `mapstructure:"min_length"`
	MaxLength  int      `mapstructure:"max_length"`
	Containers []string `mapstructure:"containers"`
}

// CategorySettings configures the category normalizer
type CategorySettings struct {
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

// HeuristicsSettings points at an optional rules file; empty uses the built-in rules
type HeuristicsSettings struct {
	Path string `mapstructure:"path"`
}

// CalendarSettings configures the iCalendar export
type CalendarSettings struct {
	Name     string        `mapstructure:"name"`
	Domain   string        `mapstructure:"domain"`
	Duration time.Duration `mapstructure:"duration"`
}

// setDefaults registers every key so environment overrides apply to all of them
func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "club-sync.db")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.busy_timeout", 5*time.Second)
	v.SetDefault("database.slow_threshold", 500*time.Millisecond)
	v.SetDefault("database.debug", false)

	v.SetDefault("worker.lease_timeout", 30*time.Minute)
	v.SetDefault("worker.stage_timeout", 0)
	v.SetDefault("worker.interval", time.Minute)

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.ingest_secret", "")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("sources.roster_url", "")
	v.SetDefault("sources.listing_urls", []string{})
	v.SetDefault("sources.listing.item", "")
	v.SetDefault("sources.listing.title", "")
	v.SetDefault("sources.listing.date", "")
	v.SetDefault("sources.listing.link", "a")
	v.SetDefault("sources.listing.category", "")

	v.SetDefault("fetch.timeout", 30*time.Second)
	v.SetDefault("fetch.user_agent", "club-sync/1.0 (+campus directory ingestion)")
	v.SetDefault("fetch.rate_per_second", 2.0)
	v.SetDefault("fetch.burst", 1)
	v.SetDefault("fetch.max_retries", 3)
	v.SetDefault("fetch.max_body_bytes", 5<<20)

	v.SetDefault("reconcile.fallback_category", "General Interest")
	v.SetDefault("reconcile.protected_fields", []string{"purpose", "description"})
	v.SetDefault("reconcile.full_reimport", false)
	v.SetDefault("reconcile.dedup_policy", "merge")

	v.SetDefault("extract.min_length", 40)
	v.SetDefault("extract.max_length", 2000)
	v.SetDefault("extract.containers", []string{
		"article .event-description",
		".event-details",
		"#event-description",
		"main article",
		".content",
	})

	v.SetDefault("category.cache_ttl", 10*time.Minute)

	v.SetDefault("heuristics.path", "")

	v.SetDefault("calendar.name", "Campus Events")
	v.SetDefault("calendar.domain", "club-sync")
	v.SetDefault("calendar.duration", 2*time.Hour)
}

// Load reads settings from configPath (optional) and the environment.
// With an empty path, ./club-sync.yaml is used when present.
func Load(configPath string) (*Settings, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("club-sync")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return settings, nil
}

// Default returns the built-in settings without reading any file or environment
func Default() *Settings {
	v := viper.New()
	setDefaults(v)
	settings := &Settings{}
	_ = v.Unmarshal(settings)
	return settings
}

// Validate checks values that would otherwise fail deep inside a run
func (s *Settings) Validate() error {
	var problems []string

	switch s.Database.Driver {
	case "sqlite":
		if s.Database.Path == "" {
			problems = append(problems, "database.path is required for the sqlite driver")
		}
	case "mysql":
		if s.Database.DSN == "" {
			problems = append(problems, "database.dsn is required for the mysql driver")
		}
	default:
		problems = append(problems, fmt.Sprintf("database.driver %q must be sqlite or mysql", s.Database.Driver))
	}

	if s.Worker.LeaseTimeout <= 0 {
		problems = append(problems, "worker.lease_timeout must be positive")
	}
	if s.Worker.StageTimeout < 0 {
		problems = append(problems, "worker.stage_timeout must not be negative")
	}

	if s.Reconcile.DedupPolicy != "merge" && s.Reconcile.DedupPolicy != "report" {
		problems = append(problems, fmt.Sprintf("reconcile.dedup_policy %q must be merge or report", s.Reconcile.DedupPolicy))
	}
	if strings.TrimSpace(s.Reconcile.FallbackCategory) == "" {
		problems = append(problems, "reconcile.fallback_category must not be empty")
	}

	if s.Fetch.RatePerSecond <= 0 {
		problems = append(problems, "fetch.rate_per_second must be positive")
	}
	if s.Fetch.Burst < 1 {
		problems = append(problems, "fetch.burst must be at least 1")
	}

	if s.Extract.MinLength < 0 || s.Extract.MaxLength <= s.Extract.MinLength {
		problems = append(problems, "extract.max_length must exceed extract.min_length")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid settings:\n  - %s", strings.Join(problems, "\n  - "))
	}
	return nil
}
