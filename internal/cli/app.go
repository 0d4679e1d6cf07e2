package cli

import (
	"fmt"
	"io"

	gormlogger "gorm.io/gorm/logger"

	"github.com/pfrederiksen/club-sync/internal/category"
	"github.com/pfrederiksen/club-sync/internal/classify"
	"github.com/pfrederiksen/club-sync/internal/config"
	"github.com/pfrederiksen/club-sync/internal/extract"
	"github.com/pfrederiksen/club-sync/internal/heuristics"
	"github.com/pfrederiksen/club-sync/internal/jobs"
	"github.com/pfrederiksen/club-sync/internal/logger"
	"github.com/pfrederiksen/club-sync/internal/metrics"
	"github.com/pfrederiksen/club-sync/internal/pipeline"
	"github.com/pfrederiksen/club-sync/internal/reconcile"
	"github.com/pfrederiksen/club-sync/internal/scraper"
	"github.com/pfrederiksen/club-sync/internal/storage"
)

// app holds everything one invocation needs
type app struct {
	settings     *config.Settings
	log          *logger.Logger
	metrics      *metrics.Metrics
	store        *storage.Storage
	rules        *heuristics.Rules
	classifier   *classify.Classifier
	engine       *reconcile.Engine
	orchestrator *jobs.Orchestrator
}

// newApp opens the store and wires the pipelines. Logs go to logOut.
func newApp(settings *config.Settings, verbose bool, logOut io.Writer) (*app, error) {
	level := logger.ParseLevel(settings.Log.Level)
	if verbose {
		level = logger.LevelDebug
	}
	log := logger.New(level, logOut)
	logger.SetDefault(log)

	m, err := metrics.NewDefault()
	if err != nil {
		return nil, fmt.Errorf("initializing metrics: %w", err)
	}

	gormLevel := gormlogger.Warn
	if settings.Database.Debug {
		gormLevel = gormlogger.Info
	}
	store, err := storage.Open(storage.Options{
		Driver:      settings.Database.Driver,
		Path:        settings.Database.Path,
		DSN:         settings.Database.DSN,
		BusyTimeout: settings.Database.BusyTimeout,
		Logger:      logger.NewGormLogger(log, gormLevel, settings.Database.SlowThreshold),
	})
	if err != nil {
		return nil, fmt.Errorf("initializing storage: %w", err)
	}

	rules := heuristics.Default()
	if settings.Heuristics.Path != "" {
		rules, err = heuristics.Load(settings.Heuristics.Path)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("loading heuristics: %w", err)
		}
	}
	classifier, err := classify.New(rules.ClassifierConfig())
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("building classifier: %w", err)
	}

	engine, err := reconcile.New(store, reconcile.Options{
		ProtectedFields: settings.Reconcile.ProtectedFields,
		FullReimport:    settings.Reconcile.FullReimport,
		Classifier:      classifier,
		Metrics:         m,
	})
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("building reconcile engine: %w", err)
	}

	fetcher := scraper.NewFetcher(scraper.FetchOptions{
		Timeout:       settings.Fetch.Timeout,
		UserAgent:     settings.Fetch.UserAgent,
		RatePerSecond: settings.Fetch.RatePerSecond,
		Burst:         settings.Fetch.Burst,
		MaxRetries:    settings.Fetch.MaxRetries,
		MaxBodyBytes:  settings.Fetch.MaxBodyBytes,
		Metrics:       m,
	})
	sel := settings.Sources.Listing

	registry := jobs.NewRegistry()
	pipeline.Register(registry, pipeline.Deps{
		Engine:     engine,
		Classifier: classifier,
		Categories: category.NewNormalizer(store, rules.Synonyms(), settings.Category.CacheTTL),
		Scraper: scraper.New(fetcher, scraper.Selectors{
			Item:     sel.Item,
			Title:    sel.Title,
			Date:     sel.Date,
			Link:     sel.Link,
			Category: sel.Category,
		}),
		Extractor: extract.New(extract.Options{
			MinLength:  settings.Extract.MinLength,
			MaxLength:  settings.Extract.MaxLength,
			Containers: settings.Extract.Containers,
		}),
		Schema:           rules.Schema(),
		RosterURL:        settings.Sources.RosterURL,
		ListingURLs:      settings.Sources.ListingURLs,
		FallbackCategory: settings.Reconcile.FallbackCategory,
	})

	orchestrator := jobs.NewOrchestrator(jobs.NewLedger(store, m), registry, jobs.OrchestratorOptions{
		LeaseTimeout: settings.Worker.LeaseTimeout,
		StageTimeout: settings.Worker.StageTimeout,
		Metrics:      m,
	})

	logger.Debug("Application initialized", logger.Fields{
		"driver":           store.Driver(),
		"heuristics":       rules.Version,
		"listing_sources":  len(settings.Sources.ListingURLs),
		"roster_source":    settings.Sources.RosterURL != "",
		"protected_fields": settings.Reconcile.ProtectedFields,
	})

	return &app{
		settings:     settings,
		log:          log,
		metrics:      m,
		store:        store,
		rules:        rules,
		classifier:   classifier,
		engine:       engine,
		orchestrator: orchestrator,
	}, nil
}

func (a *app) ledger() *jobs.Ledger {
	return a.orchestrator.Ledger()
}

// Close releases the store and flushes logs
func (a *app) Close() error {
	err := a.store.Close()
	_ = a.log.Sync()
	return err
}
