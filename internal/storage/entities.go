package storage

import (
	"context"
	"fmt"

	"github.com/pfrederiksen/club-sync/internal/entity"
)

// FindClubByKey returns the club with the given natural key, or nil
func (s *Storage) FindClubByKey(ctx context.Context, nameKey string) (*entity.Club, error) {
	var c entity.Club
	ok, err := first(s.db.WithContext(ctx).Where("name_key = ?", nameKey), &c)
	if err != nil {
		return nil, fmt.Errorf("finding club %q: %w", nameKey, err)
	}
	if !ok {
		return nil, nil
	}
	return &c, nil
}

// CreateClub inserts a new club
func (s *Storage) CreateClub(ctx context.Context, c *entity.Club) error {
	if err := s.db.WithContext(ctx).Create(c).Error; err != nil {
		return fmt.Errorf("creating club %q: %w", c.Name, err)
	}
	return nil
}

// SaveClub writes every column of an existing club
func (s *Storage) SaveClub(ctx context.Context, c *entity.Club) error {
	if err := s.db.WithContext(ctx).Save(c).Error; err != nil {
		return fmt.Errorf("saving club %d: %w", c.ID, err)
	}
	return nil
}

// ListClubs returns all clubs in creation order
func (s *Storage) ListClubs(ctx context.Context) ([]entity.Club, error) {
	var clubs []entity.Club
	if err := s.db.WithContext(ctx).Order("created_at, id").Find(&clubs).Error; err != nil {
		return nil, fmt.Errorf("listing clubs: %w", err)
	}
	return clubs, nil
}

// DeleteClub removes a club and its associations
func (s *Storage) DeleteClub(ctx context.Context, id uint) error {
	return s.deleteEntity(ctx, entity.KindClub, id, &entity.Club{})
}

// FindEventByKey returns the event with the given natural key, or nil
func (s *Storage) FindEventByKey(ctx context.Context, naturalKey string) (*entity.Event, error) {
	var e entity.Event
	ok, err := first(s.db.WithContext(ctx).Where("natural_key = ?", naturalKey), &e)
	if err != nil {
		return nil, fmt.Errorf("finding event %s: %w", naturalKey, err)
	}
	if !ok {
		return nil, nil
	}
	return &e, nil
}

// CreateEvent inserts a new event
func (s *Storage) CreateEvent(ctx context.Context, e *entity.Event) error {
	if err := s.db.WithContext(ctx).Create(e).Error; err != nil {
		return fmt.Errorf("creating event %q: %w", e.Title, err)
	}
	return nil
}

// SaveEvent writes every column of an existing event
func (s *Storage) SaveEvent(ctx context.Context, e *entity.Event) error {
	if err := s.db.WithContext(ctx).Save(e).Error; err != nil {
		return fmt.Errorf("saving event %d: %w", e.ID, err)
	}
	return nil
}

// EventFilter narrows ListEvents
type EventFilter struct {
	Status entity.Status // empty matches any
	Limit  int           // zero means no limit
}

// ListEvents returns events ordered by start time, undated events last
func (s *Storage) ListEvents(ctx context.Context, f EventFilter) ([]entity.Event, error) {
	q := s.db.WithContext(ctx).Order("start_time IS NULL, start_time, id")
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}

	var events []entity.Event
	if err := q.Find(&events).Error; err != nil {
		return nil, fmt.Errorf("listing events: %w", err)
	}
	return events, nil
}

// DeleteEvent removes an event and its associations
func (s *Storage) DeleteEvent(ctx context.Context, id uint) error {
	return s.deleteEntity(ctx, entity.KindEvent, id, &entity.Event{})
}

func (s *Storage) deleteEntity(ctx context.Context, kind entity.Kind, id uint, model any) error {
	db := s.db.WithContext(ctx)
	if err := db.Where("entity_kind = ? AND entity_id = ?", kind, id).Delete(&entity.Association{}).Error; err != nil {
		return fmt.Errorf("deleting %s %d associations: %w", kind, id, err)
	}
	if err := db.Delete(model, id).Error; err != nil {
		return fmt.Errorf("deleting %s %d: %w", kind, id, err)
	}
	return nil
}
