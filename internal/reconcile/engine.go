// Package reconcile merges incoming club and event candidates into the
// canonical store.
//
// Every accepted candidate is upserted by natural key inside its own
// transaction, together with its category association. Existing entities
// keep their curated fields: a protected field is only overwritten on a full
// re-import, or when the stored value is empty or was synthesized from a
// template. The dedup pass in this package is the only code that deletes
// entities.
package reconcile

import (
	"context"
	"fmt"
	"strings"

	"github.com/pfrederiksen/club-sync/internal/classify"
	"github.com/pfrederiksen/club-sync/internal/entity"
	"github.com/pfrederiksen/club-sync/internal/logger"
	"github.com/pfrederiksen/club-sync/internal/metrics"
	"github.com/pfrederiksen/club-sync/internal/storage"
)

// Outcome is the effect of reconciling one candidate
type Outcome string

const (
	Created   Outcome = "created"
	Updated   Outcome = "updated"
	Unchanged Outcome = "unchanged"
	Skipped   Outcome = "skipped"
)

// Protectable fields
const (
	FieldPurpose     = "purpose"
	FieldDescription = "description"
	FieldLocation    = "location"
	FieldTimeText    = "time_text"
	FieldSponsor     = "sponsor"
)

var protectable = map[string]bool{
	FieldPurpose:     true,
	FieldDescription: true,
	FieldLocation:    true,
	FieldTimeText:    true,
	FieldSponsor:     true,
}

// Options configures an Engine
type Options struct {
	ProtectedFields []string
	FullReimport    bool
	Classifier      *classify.Classifier // required by Dedup
	Metrics         *metrics.Metrics
}

// Engine applies candidates to the store
type Engine struct {
	store      *storage.Storage
	protected  map[string]bool
	full       bool
	classifier *classify.Classifier
	metrics    *metrics.Metrics
}

// New creates an engine. Unknown protected field names are rejected.
func New(store *storage.Storage, opts Options) (*Engine, error) {
	protected := make(map[string]bool, len(opts.ProtectedFields))
	for _, f := range opts.ProtectedFields {
		f = strings.ToLower(strings.TrimSpace(f))
		if !protectable[f] {
			return nil, fmt.Errorf("field %q cannot be protected", f)
		}
		protected[f] = true
	}

	return &Engine{
		store:      store,
		protected:  protected,
		full:       opts.FullReimport,
		classifier: opts.Classifier,
		metrics:    opts.Metrics,
	}, nil
}

// WithFullReimport returns a copy of the engine with protection lifted
func (e *Engine) WithFullReimport(full bool) *Engine {
	clone := *e
	clone.full = full
	return &clone
}

// Reconcile upserts one candidate. A fragment verdict skips the candidate
// without touching the store. cat may be nil when no category applies.
func (e *Engine) Reconcile(ctx context.Context, c Candidate, v classify.Verdict, cat *entity.Category) (Outcome, error) {
	c.Name = strings.Join(strings.Fields(c.Name), " ")

	if v.Fragment() {
		logger.Debug("Skipping fragment", logger.Fields{
			"kind":    c.Kind,
			"name":    c.Name,
			"verdict": v.String(),
		})
		e.metrics.ReconcileOutcome(string(c.Kind), string(Skipped))
		return Skipped, nil
	}
	if c.Name == "" {
		return Skipped, fmt.Errorf("candidate has no name")
	}

	var (
		outcome Outcome
		err     error
	)
	switch c.Kind {
	case entity.KindClub:
		outcome, err = e.reconcileClub(ctx, c, cat)
	case entity.KindEvent:
		outcome, err = e.reconcileEvent(ctx, c, cat)
	default:
		return Skipped, fmt.Errorf("unknown entity kind %q", c.Kind)
	}
	if err != nil {
		return Skipped, err
	}

	e.metrics.ReconcileOutcome(string(c.Kind), string(outcome))
	return outcome, nil
}

func (e *Engine) reconcileClub(ctx context.Context, c Candidate, cat *entity.Category) (Outcome, error) {
	purpose, synthesized := strings.TrimSpace(c.Description), c.Synthesized
	if purpose == "" {
		purpose, synthesized = ClubTemplate(c.Name, categoryName(cat, c.CategoryLabel)), true
	}

	var outcome Outcome
	err := e.store.Transaction(ctx, func(tx *storage.Storage) error {
		existing, err := tx.FindClubByKey(ctx, c.Key())
		if err != nil {
			return err
		}

		if existing == nil {
			club := &entity.Club{
				Name:               c.Name,
				NameKey:            c.Key(),
				Purpose:            purpose,
				PurposeSynthesized: synthesized,
				CategoryLabel:      categoryName(cat, c.CategoryLabel),
				ContactName:        c.ContactName,
				ContactEmail:       c.ContactEmail,
				Status:             entity.StatusApproved,
				Source:             c.Source,
			}
			if err := tx.CreateClub(ctx, club); err != nil {
				return err
			}
			if _, err := e.associate(ctx, tx, entity.KindClub, club.ID, cat); err != nil {
				return err
			}
			outcome = Created
			return nil
		}

		next := *existing
		if e.full {
			next.Name = c.Name
		}
		if e.mayReplace(FieldPurpose, existing.Purpose, existing.PurposeSynthesized, synthesized) {
			next.Purpose = purpose
			next.PurposeSynthesized = synthesized
		}
		refresh(&next.ContactName, c.ContactName)
		refresh(&next.ContactEmail, c.ContactEmail)
		refresh(&next.CategoryLabel, categoryName(cat, c.CategoryLabel))
		refresh(&next.Source, c.Source)

		changes := entity.DiffClub(existing, &next)
		if next.PurposeSynthesized != existing.PurposeSynthesized {
			changes = append(changes, entity.Change{Field: "purpose_synthesized"})
		}
		if len(changes) > 0 {
			if err := tx.SaveClub(ctx, &next); err != nil {
				return err
			}
		}

		linked, err := e.associate(ctx, tx, entity.KindClub, existing.ID, cat)
		if err != nil {
			return err
		}

		outcome = Unchanged
		if len(changes) > 0 || linked {
			outcome = Updated
			logger.Debug("Club updated", logger.Fields{
				"club":    next.Name,
				"changed": entity.ChangedFields(changes),
				"linked":  linked,
			})
		}
		return nil
	})
	if err != nil {
		return Skipped, fmt.Errorf("reconciling club %q: %w", c.Name, err)
	}
	return outcome, nil
}

func (e *Engine) reconcileEvent(ctx context.Context, c Candidate, cat *entity.Category) (Outcome, error) {
	desc, synthesized := strings.TrimSpace(c.Description), c.Synthesized
	if desc == "" {
		desc, synthesized = EventTemplate(c.Name, categoryName(cat, c.CategoryLabel)), true
	}

	var outcome Outcome
	err := e.store.Transaction(ctx, func(tx *storage.Storage) error {
		existing, err := tx.FindEventByKey(ctx, c.Key())
		if err != nil {
			return err
		}

		if existing == nil {
			ev := &entity.Event{
				Title:                  c.Name,
				StartTime:              c.StartTime,
				NaturalKey:             c.Key(),
				Description:            desc,
				DescriptionSynthesized: synthesized,
				Location:               c.Location,
				TimeText:               c.TimeText,
				Sponsor:                c.Sponsor,
				SourceURL:              c.SourceURL,
				CategoryLabel:          categoryName(cat, c.CategoryLabel),
				Status:                 entity.StatusApproved,
			}
			if err := tx.CreateEvent(ctx, ev); err != nil {
				return err
			}
			if _, err := e.associate(ctx, tx, entity.KindEvent, ev.ID, cat); err != nil {
				return err
			}
			outcome = Created
			return nil
		}

		next := *existing
		if e.full {
			next.Title = c.Name
		}
		if e.mayReplace(FieldDescription, existing.Description, existing.DescriptionSynthesized, synthesized) {
			next.Description = desc
			next.DescriptionSynthesized = synthesized
		}
		e.refreshDetail(FieldLocation, &next.Location, c.Location)
		e.refreshDetail(FieldTimeText, &next.TimeText, c.TimeText)
		e.refreshDetail(FieldSponsor, &next.Sponsor, c.Sponsor)
		refresh(&next.SourceURL, c.SourceURL)
		refresh(&next.CategoryLabel, categoryName(cat, c.CategoryLabel))

		changes := entity.DiffEvent(existing, &next)
		if next.DescriptionSynthesized != existing.DescriptionSynthesized {
			changes = append(changes, entity.Change{Field: "description_synthesized"})
		}
		if len(changes) > 0 {
			if err := tx.SaveEvent(ctx, &next); err != nil {
				return err
			}
		}

		linked, err := e.associate(ctx, tx, entity.KindEvent, existing.ID, cat)
		if err != nil {
			return err
		}

		outcome = Unchanged
		if len(changes) > 0 || linked {
			outcome = Updated
			logger.Debug("Event updated", logger.Fields{
				"event":   next.Title,
				"changed": entity.ChangedFields(changes),
				"linked":  linked,
			})
		}
		return nil
	})
	if err != nil {
		return Skipped, fmt.Errorf("reconciling event %q: %w", c.Name, err)
	}
	return outcome, nil
}

// mayReplace decides whether a stored long-text field takes the incoming
// value. A template never replaces real text; a protected field is only
// replaced on full re-import or when the stored value is empty or a template.
func (e *Engine) mayReplace(field, stored string, storedSynthesized, incomingSynthesized bool) bool {
	if incomingSynthesized && stored != "" && !storedSynthesized {
		return false
	}
	if !e.protected[field] || e.full {
		return true
	}
	return strings.TrimSpace(stored) == "" || storedSynthesized
}

// refreshDetail updates an event detail field, honoring protection
func (e *Engine) refreshDetail(field string, dst *string, incoming string) {
	if e.protected[field] && !e.full && strings.TrimSpace(*dst) != "" {
		return
	}
	refresh(dst, incoming)
}

// refresh overwrites dst with a non-empty incoming value. An empty value
// means the source did not carry the field, so the stored one is kept.
func refresh(dst *string, incoming string) {
	if v := strings.TrimSpace(incoming); v != "" {
		*dst = v
	}
}

func (e *Engine) associate(ctx context.Context, tx *storage.Storage, kind entity.Kind, id uint, cat *entity.Category) (bool, error) {
	if cat == nil {
		return false, nil
	}
	return tx.AssociateCategory(ctx, kind, id, cat.ID)
}

func categoryName(cat *entity.Category, label string) string {
	if cat != nil {
		return cat.Name
	}
	return strings.TrimSpace(label)
}

// ClubTemplate is the purpose written for clubs whose source row has none
func ClubTemplate(name, category string) string {
	if category == "" {
		return fmt.Sprintf("%s is a student organization.", name)
	}
	return fmt.Sprintf("%s is a %s organization.", name, category)
}

// EventTemplate is the description written for events whose listing has none
func EventTemplate(title, category string) string {
	if category == "" {
		return fmt.Sprintf("%s is a campus event.", title)
	}
	return fmt.Sprintf("%s is a %s event.", title, category)
}
