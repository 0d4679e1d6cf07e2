package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/pfrederiksen/club-sync/internal/entity"
	"github.com/pfrederiksen/club-sync/internal/jobs"
	"github.com/pfrederiksen/club-sync/internal/logger"
	"github.com/pfrederiksen/club-sync/internal/reconcile"
	"github.com/pfrederiksen/club-sync/internal/rows"
)

const rosterSource = "roster"

type clubRun struct {
	d      *Deps
	body   []byte
	reader *rows.Reader
	tally  *tally
	rows   int
}

func newClubRun(d *Deps) *clubRun {
	return &clubRun{d: d, tally: newTally()}
}

func (r *clubRun) pipeline() *jobs.Pipeline {
	return &jobs.Pipeline{
		Stages: []jobs.Stage{
			stage{name: "fetch-roster", run: r.fetch},
			stage{name: "locate-header", run: r.locateHeader},
			stage{name: "reconcile-clubs", run: r.reconcile},
		},
		Summary: func() jobs.Summary { return r.tally.summary("rows", r.rows) },
	}
}

func (r *clubRun) fetch(ctx context.Context) error {
	if r.d.RosterURL == "" {
		return errors.New("no roster source configured")
	}
	body, err := r.d.Scraper.FetchPage(ctx, r.d.RosterURL)
	if err != nil {
		return fmt.Errorf("fetching roster: %w", err)
	}
	r.body = body
	logger.Debug("Roster fetched", logger.Fields{"url": r.d.RosterURL, "bytes": len(body)})
	return nil
}

func (r *clubRun) locateHeader(context.Context) error {
	reader, err := rows.NewReader(bytes.NewReader(r.body), r.d.Schema)
	if err != nil {
		return fmt.Errorf("locating header: %w", err)
	}
	r.reader = reader
	logger.Info("Roster header located", logger.Fields{
		"line":   reader.HeaderIndex() + 1,
		"header": reader.Header(),
	})
	return nil
}

func (r *clubRun) reconcile(ctx context.Context) error {
	for row := range r.reader.All() {
		if err := ctx.Err(); err != nil {
			return err
		}
		r.rows++

		c := reconcile.ClubFromRow(row, rosterSource)
		v := r.d.Classifier.Classify(c.Name, c.Description)

		var cat *entity.Category
		if v.Legitimate {
			var err error
			cat, err = r.d.Categories.ResolveOrFallback(ctx, c.CategoryLabel, r.d.FallbackCategory)
			if err != nil {
				r.tally.failed++
				logger.Error("Resolving category failed", logger.Fields{"line": row.Line, "name": c.Name}, err)
				continue
			}
		}

		outcome, err := r.d.Engine.Reconcile(ctx, c, v, cat)
		if err != nil {
			r.tally.failed++
			logger.Error("Reconciling club failed", logger.Fields{"line": row.Line, "name": c.Name}, err)
			continue
		}
		r.tally.add(outcome)
	}
	if err := r.reader.Err(); err != nil {
		return fmt.Errorf("reading roster: %w", err)
	}

	stats := r.reader.Stats()
	for _, pe := range r.reader.ParseErrors() {
		logger.Warn("Malformed roster row", logger.Fields{"line": pe.Line, "cause": pe.Err.Error()})
	}
	r.tally.failed += stats.Malformed
	logger.Info("Roster reconciled", logger.Fields{
		"rows":      stats.Rows,
		"blank":     stats.Blank,
		"malformed": stats.Malformed,
		"created":   r.tally.outcomes[reconcile.Created],
		"updated":   r.tally.outcomes[reconcile.Updated],
		"skipped":   r.tally.outcomes[reconcile.Skipped],
	})
	return nil
}
