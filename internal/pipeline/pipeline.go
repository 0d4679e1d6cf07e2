// Package pipeline builds the stage sequences for each refresh job type.
//
// CLUB_REFRESH: fetch-roster, locate-header, reconcile-clubs.
// EVENT_REFRESH: fetch-listings, parse-listings, extract-details,
// reconcile-events.
//
// Stages of one job share a run value that carries intermediate results
// forward. Every pipeline reports a summary whose count is the number of
// created plus updated entities.
package pipeline

import (
	"context"
	"fmt"

	"github.com/pfrederiksen/club-sync/internal/category"
	"github.com/pfrederiksen/club-sync/internal/classify"
	"github.com/pfrederiksen/club-sync/internal/entity"
	"github.com/pfrederiksen/club-sync/internal/extract"
	"github.com/pfrederiksen/club-sync/internal/jobs"
	"github.com/pfrederiksen/club-sync/internal/reconcile"
	"github.com/pfrederiksen/club-sync/internal/rows"
	"github.com/pfrederiksen/club-sync/internal/scraper"
)

// DefaultDetailConcurrency bounds parallel detail page fetches
const DefaultDetailConcurrency = 4

// Deps are the collaborators shared by every pipeline run
type Deps struct {
	Engine     *reconcile.Engine
	Classifier *classify.Classifier
	Categories *category.Normalizer
	Scraper    *scraper.Scraper
	Extractor  *extract.Extractor
	Schema     rows.Schema

	RosterURL         string
	ListingURLs       []string
	FallbackCategory  string
	DetailConcurrency int
}

// Register binds both refresh pipelines to reg
func Register(reg *jobs.Registry, d Deps) {
	if d.DetailConcurrency <= 0 {
		d.DetailConcurrency = DefaultDetailConcurrency
	}
	reg.Register(entity.JobClubRefresh, func(context.Context) (*jobs.Pipeline, error) {
		return newClubRun(&d).pipeline(), nil
	})
	reg.Register(entity.JobEventRefresh, func(context.Context) (*jobs.Pipeline, error) {
		return newEventRun(&d).pipeline(), nil
	})
}

type stage struct {
	name string
	run  func(ctx context.Context) error
}

func (s stage) Name() string                  { return s.name }
func (s stage) Run(ctx context.Context) error { return s.run(ctx) }

// tally counts reconcile outcomes and per-record failures
type tally struct {
	outcomes map[reconcile.Outcome]int
	failed   int
}

func newTally() *tally {
	return &tally{outcomes: make(map[reconcile.Outcome]int)}
}

func (t *tally) add(o reconcile.Outcome) {
	t.outcomes[o]++
}

func (t *tally) summary(noun string, total int) jobs.Summary {
	count := t.outcomes[reconcile.Created] + t.outcomes[reconcile.Updated]
	return jobs.Summary{
		Message: fmt.Sprintf("Processed %d %s: %d created, %d updated, %d unchanged, %d skipped, %d failed",
			total, noun,
			t.outcomes[reconcile.Created],
			t.outcomes[reconcile.Updated],
			t.outcomes[reconcile.Unchanged],
			t.outcomes[reconcile.Skipped],
			t.failed),
		Count: count,
	}
}
