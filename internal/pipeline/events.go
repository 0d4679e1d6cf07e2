package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/pfrederiksen/club-sync/internal/classify"
	"github.com/pfrederiksen/club-sync/internal/entity"
	"github.com/pfrederiksen/club-sync/internal/extract"
	"github.com/pfrederiksen/club-sync/internal/jobs"
	"github.com/pfrederiksen/club-sync/internal/logger"
	"github.com/pfrederiksen/club-sync/internal/reconcile"
	"github.com/pfrederiksen/club-sync/internal/scraper"
)

const listingSource = "listing"

// Scraped titles are not roster names and skip fragment classification
var scrapedTitle = classify.Verdict{Legitimate: true, Rule: classify.RuleDefault}

type page struct {
	url  string
	body []byte
}

type eventRun struct {
	d        *Deps
	pages    []page
	listings []scraper.Listing
	details  []extract.Result
	tally    *tally
}

func newEventRun(d *Deps) *eventRun {
	return &eventRun{d: d, tally: newTally()}
}

func (r *eventRun) pipeline() *jobs.Pipeline {
	return &jobs.Pipeline{
		Stages: []jobs.Stage{
			stage{name: "fetch-listings", run: r.fetch},
			stage{name: "parse-listings", run: r.parse},
			stage{name: "extract-details", run: r.extract},
			stage{name: "reconcile-events", run: r.reconcile},
		},
		Summary: func() jobs.Summary { return r.tally.summary("events", len(r.listings)) },
	}
}

// fetch fails only when every listing page failed
func (r *eventRun) fetch(ctx context.Context) error {
	if len(r.d.ListingURLs) == 0 {
		return errors.New("no listing sources configured")
	}

	var errs []error
	for _, u := range r.d.ListingURLs {
		body, err := r.d.Scraper.FetchPage(ctx, u)
		if err != nil {
			errs = append(errs, err)
			logger.Warn("Listing fetch failed", logger.Fields{"url": u, "cause": err.Error()})
			continue
		}
		r.pages = append(r.pages, page{url: u, body: body})
	}

	if len(r.pages) == 0 {
		return fmt.Errorf("all %d listing sources failed: %w", len(errs), errors.Join(errs...))
	}
	return nil
}

func (r *eventRun) parse(context.Context) error {
	seen := make(map[string]bool)
	for _, p := range r.pages {
		listings, err := r.d.Scraper.Parse(p.body, p.url)
		if err != nil {
			logger.Warn("Listing parse failed", logger.Fields{"url": p.url, "cause": err.Error()})
			continue
		}
		for _, l := range listings {
			if seen[l.Key] {
				continue
			}
			seen[l.Key] = true
			r.listings = append(r.listings, l)
		}
		logger.Debug("Listing parsed", logger.Fields{"url": p.url, "entries": len(listings)})
	}
	r.pages = nil
	return nil
}

// extract fetches detail pages concurrently. A page that cannot be fetched
// degrades to the extractor's placeholder.
func (r *eventRun) extract(ctx context.Context) error {
	r.details = make([]extract.Result, len(r.listings))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.d.DetailConcurrency)
	for i, l := range r.listings {
		if l.URL == "" {
			continue
		}
		g.Go(func() error {
			body, err := r.d.Scraper.FetchPage(gctx, l.URL)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				logger.Warn("Detail fetch failed, using placeholder", logger.Fields{
					"url":   l.URL,
					"cause": err.Error(),
				})
				r.details[i] = r.d.Extractor.Unavailable(l.URL)
				return nil
			}
			r.details[i] = r.d.Extractor.Extract(bytes.NewReader(body), l.URL)
			return nil
		})
	}
	return g.Wait()
}

func (r *eventRun) reconcile(ctx context.Context) error {
	for i, l := range r.listings {
		if err := ctx.Err(); err != nil {
			return err
		}

		c := eventCandidate(l, r.details[i])
		cat, err := r.d.Categories.ResolveOrFallback(ctx, c.CategoryLabel, r.d.FallbackCategory)
		if err != nil {
			r.tally.failed++
			logger.Error("Resolving category failed", logger.Fields{"title": c.Name}, err)
			continue
		}

		outcome, err := r.d.Engine.Reconcile(ctx, c, scrapedTitle, cat)
		if err != nil {
			r.tally.failed++
			logger.Error("Reconciling event failed", logger.Fields{"title": c.Name}, err)
			continue
		}
		r.tally.add(outcome)
	}

	logger.Info("Events reconciled", logger.Fields{
		"events":  len(r.listings),
		"created": r.tally.outcomes[reconcile.Created],
		"updated": r.tally.outcomes[reconcile.Updated],
		"failed":  r.tally.failed,
	})
	return nil
}

func eventCandidate(l scraper.Listing, res extract.Result) reconcile.Candidate {
	timeText := res.Details.Time
	if timeText == "" {
		timeText = l.DateText
	}
	return reconcile.Candidate{
		Kind:          entity.KindEvent,
		Name:          l.Title,
		Description:   res.Description,
		Synthesized:   res.Strategy == extract.StrategyPlaceholder,
		CategoryLabel: l.Category,
		Source:        listingSource,
		StartTime:     l.StartTime,
		Location:      res.Details.Location,
		TimeText:      timeText,
		Sponsor:       res.Details.Sponsor,
		SourceURL:     l.URL,
	}
}
