package reconcile

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pfrederiksen/club-sync/internal/classify"
	"github.com/pfrederiksen/club-sync/internal/entity"
	"github.com/pfrederiksen/club-sync/internal/logger"
	"github.com/pfrederiksen/club-sync/internal/storage"
)

// Policy decides what the dedup pass does with what it finds
type Policy string

const (
	// PolicyMerge folds colliding entities into a survivor and deletes fragments
	PolicyMerge Policy = "merge"
	// PolicyReport logs findings and changes nothing
	PolicyReport Policy = "report"
)

// ParsePolicy validates a policy name
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(s))); p {
	case PolicyMerge, PolicyReport:
		return p, nil
	case "":
		return PolicyMerge, nil
	default:
		return "", fmt.Errorf("unknown dedup policy %q (must be merge or report)", s)
	}
}

// DedupOptions configures one pass
type DedupOptions struct {
	Policy Policy
}

// Ref identifies an entity in a report
type Ref struct {
	Kind entity.Kind `json:"kind"`
	ID   uint        `json:"id"`
	Name string      `json:"name"`
}

// Collision is a group of entities whose loose keys coincide
type Collision struct {
	Key      string `json:"key"`
	Survivor Ref    `json:"survivor"`
	Losers   []Ref  `json:"losers"`
}

// DedupReport summarizes a pass
type DedupReport struct {
	Policy            Policy      `json:"policy"`
	Collisions        []Collision `json:"collisions"`
	Fragments         []Ref       `json:"fragments"`
	Merged            int         `json:"merged"`
	Deleted           int         `json:"deleted"`
	AssociationsMoved int         `json:"associations_moved"`
}

// Dedup finds entities that collide on a loose natural key, and clubs whose
// names now classify as fragments. Under PolicyMerge collisions are merged
// into one survivor (allow-listed name first, then oldest) and fragments are
// deleted; under PolicyReport nothing is modified.
func (e *Engine) Dedup(ctx context.Context, opts DedupOptions) (*DedupReport, error) {
	if e.classifier == nil {
		return nil, fmt.Errorf("dedup requires a classifier")
	}
	policy := opts.Policy
	if policy == "" {
		policy = PolicyMerge
	}
	report := &DedupReport{Policy: policy}

	if err := e.dedupClubs(ctx, report); err != nil {
		return report, err
	}
	if err := e.dedupEvents(ctx, report); err != nil {
		return report, err
	}

	logger.Info("Dedup pass finished", logger.Fields{
		"policy":             policy,
		"collisions":         len(report.Collisions),
		"fragments":          len(report.Fragments),
		"merged":             report.Merged,
		"deleted":            report.Deleted,
		"associations_moved": report.AssociationsMoved,
	})
	return report, nil
}

func (e *Engine) dedupClubs(ctx context.Context, report *DedupReport) error {
	clubs, err := e.store.ListClubs(ctx)
	if err != nil {
		return err
	}

	groups, order := groupBy(clubs, func(c entity.Club) string { return entity.LooseKey(c.Name) })
	merged := make(map[uint]bool)

	for _, key := range order {
		group := groups[key]
		if len(group) < 2 {
			continue
		}

		survivor := e.pickClubSurvivor(group)
		col := Collision{Key: key, Survivor: clubRef(survivor)}
		for _, c := range group {
			if c.ID != survivor.ID {
				col.Losers = append(col.Losers, clubRef(c))
			}
		}
		report.Collisions = append(report.Collisions, col)

		logger.Warn("Club name collision", logger.Fields{
			"key":      key,
			"survivor": survivor.Name,
			"losers":   refNames(col.Losers),
			"policy":   report.Policy,
		})
		if report.Policy != PolicyMerge {
			continue
		}

		if err := e.mergeClubs(ctx, survivor, group, report); err != nil {
			return err
		}
		for _, l := range col.Losers {
			merged[l.ID] = true
		}
	}

	for _, c := range clubs {
		if merged[c.ID] {
			continue
		}
		v := e.classifier.Classify(c.Name, c.Purpose)
		if v.Legitimate {
			continue
		}
		ref := clubRef(c)
		report.Fragments = append(report.Fragments, ref)

		logger.Warn("Club name classifies as fragment", logger.Fields{
			"club":    c.Name,
			"id":      c.ID,
			"verdict": v.String(),
			"policy":  report.Policy,
		})
		if report.Policy != PolicyMerge {
			continue
		}

		if err := e.store.Transaction(ctx, func(tx *storage.Storage) error {
			return tx.DeleteClub(ctx, c.ID)
		}); err != nil {
			return fmt.Errorf("deleting fragment club %d: %w", c.ID, err)
		}
		report.Deleted++
		e.metrics.DedupAction(string(entity.KindClub), "deleted")
		logger.Info("Deleted fragment club", logger.Fields{"club": c.Name, "id": c.ID})
	}

	return nil
}

// pickClubSurvivor prefers an allow-listed name, then the oldest row.
// group is already in creation order.
func (e *Engine) pickClubSurvivor(group []entity.Club) entity.Club {
	for _, c := range group {
		if v := e.classifier.Classify(c.Name, ""); v.Rule == classify.RuleAllowList {
			return c
		}
	}
	return group[0]
}

func (e *Engine) mergeClubs(ctx context.Context, survivor entity.Club, group []entity.Club, report *DedupReport) error {
	return e.store.Transaction(ctx, func(tx *storage.Storage) error {
		next := survivor
		for _, loser := range group {
			if loser.ID == survivor.ID {
				continue
			}

			moved, err := tx.MoveAssociations(ctx, entity.KindClub, loser.ID, survivor.ID)
			if err != nil {
				return err
			}
			fillClub(&next, loser)

			if err := tx.DeleteClub(ctx, loser.ID); err != nil {
				return err
			}

			report.Merged++
			report.AssociationsMoved += moved
			e.metrics.DedupAction(string(entity.KindClub), "merged")
			logger.Info("Merged duplicate club", logger.Fields{
				"survivor":    survivor.Name,
				"survivor_id": survivor.ID,
				"loser":       loser.Name,
				"loser_id":    loser.ID,
				"moved":       moved,
			})
		}

		if len(entity.DiffClub(&survivor, &next)) > 0 || next.PurposeSynthesized != survivor.PurposeSynthesized {
			return tx.SaveClub(ctx, &next)
		}
		return nil
	})
}

// fillClub copies real values from a merged-away club into gaps of the survivor
func fillClub(dst *entity.Club, src entity.Club) {
	if (dst.Purpose == "" || dst.PurposeSynthesized) && src.Purpose != "" && !src.PurposeSynthesized {
		dst.Purpose = src.Purpose
		dst.PurposeSynthesized = false
	}
	if dst.ContactName == "" {
		dst.ContactName = src.ContactName
	}
	if dst.ContactEmail == "" {
		dst.ContactEmail = src.ContactEmail
	}
	if dst.CategoryLabel == "" {
		dst.CategoryLabel = src.CategoryLabel
	}
}

func (e *Engine) dedupEvents(ctx context.Context, report *DedupReport) error {
	events, err := e.store.ListEvents(ctx, storage.EventFilter{})
	if err != nil {
		return err
	}

	// ListEvents orders by start time; group in creation order instead so
	// the oldest row survives.
	byAge := make([]entity.Event, len(events))
	copy(byAge, events)
	sortEventsByCreation(byAge)

	groups, order := groupBy(byAge, func(ev entity.Event) string {
		when := ""
		if ev.StartTime != nil {
			when = ev.StartTime.UTC().Format(time.RFC3339)
		}
		return entity.LooseKey(ev.Title) + "|" + when
	})

	for _, key := range order {
		group := groups[key]
		if len(group) < 2 {
			continue
		}

		survivor := group[0]
		col := Collision{Key: key, Survivor: eventRef(survivor)}
		for _, ev := range group[1:] {
			col.Losers = append(col.Losers, eventRef(ev))
		}
		report.Collisions = append(report.Collisions, col)

		logger.Warn("Event collision", logger.Fields{
			"key":      key,
			"survivor": survivor.Title,
			"losers":   refNames(col.Losers),
			"policy":   report.Policy,
		})
		if report.Policy != PolicyMerge {
			continue
		}

		err := e.store.Transaction(ctx, func(tx *storage.Storage) error {
			for _, loser := range group[1:] {
				moved, err := tx.MoveAssociations(ctx, entity.KindEvent, loser.ID, survivor.ID)
				if err != nil {
					return err
				}
				if err := tx.DeleteEvent(ctx, loser.ID); err != nil {
					return err
				}
				report.Merged++
				report.AssociationsMoved += moved
				e.metrics.DedupAction(string(entity.KindEvent), "merged")
				logger.Info("Merged duplicate event", logger.Fields{
					"survivor_id": survivor.ID,
					"loser_id":    loser.ID,
					"title":       loser.Title,
				})
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("merging events for key %s: %w", key, err)
		}
	}
	return nil
}

func groupBy[T any](items []T, key func(T) string) (map[string][]T, []string) {
	groups := make(map[string][]T)
	var order []string
	for _, it := range items {
		k := key(it)
		if _, seen := groups[k]; !seen {
			order = append(order, k)
		}
		groups[k] = append(groups[k], it)
	}
	return groups, order
}

func clubRef(c entity.Club) Ref {
	return Ref{Kind: entity.KindClub, ID: c.ID, Name: c.Name}
}

func eventRef(ev entity.Event) Ref {
	return Ref{Kind: entity.KindEvent, ID: ev.ID, Name: ev.Title}
}

func refNames(refs []Ref) []string {
	names := make([]string, 0, len(refs))
	for _, r := range refs {
		names = append(names, r.Name)
	}
	return names
}
