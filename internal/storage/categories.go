package storage

import (
	"context"
	"fmt"

	"gorm.io/gorm/clause"

	"github.com/pfrederiksen/club-sync/internal/entity"
)

// FindCategory returns the category with the given folded name, or nil
func (s *Storage) FindCategory(ctx context.Context, nameKey string) (*entity.Category, error) {
	var c entity.Category
	ok, err := first(s.db.WithContext(ctx).Where("name_key = ?", nameKey), &c)
	if err != nil {
		return nil, fmt.Errorf("finding category %q: %w", nameKey, err)
	}
	if !ok {
		return nil, nil
	}
	return &c, nil
}

// EnsureCategory returns the category named name, creating it if absent.
// A concurrent insert of the same name is absorbed by the unique index.
func (s *Storage) EnsureCategory(ctx context.Context, name string) (*entity.Category, error) {
	key := entity.FoldName(name)
	db := s.db.WithContext(ctx)

	c := &entity.Category{Name: name, NameKey: key}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(c).Error; err != nil {
		return nil, fmt.Errorf("creating category %q: %w", name, err)
	}

	existing, err := s.FindCategory(ctx, key)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, fmt.Errorf("category %q vanished after insert", name)
	}
	return existing, nil
}

// ListCategories returns the vocabulary ordered by name
func (s *Storage) ListCategories(ctx context.Context) ([]entity.Category, error) {
	var cats []entity.Category
	if err := s.db.WithContext(ctx).Order("name_key").Find(&cats).Error; err != nil {
		return nil, fmt.Errorf("listing categories: %w", err)
	}
	return cats, nil
}

// AssociateCategory links an entity to a category if not already linked.
// created reports whether a new row was written.
func (s *Storage) AssociateCategory(ctx context.Context, kind entity.Kind, entityID, categoryID uint) (bool, error) {
	a := &entity.Association{EntityKind: kind, EntityID: entityID, CategoryID: categoryID}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(a)
	if res.Error != nil {
		return false, fmt.Errorf("associating %s %d with category %d: %w", kind, entityID, categoryID, res.Error)
	}
	return res.RowsAffected > 0, nil
}

// EntityCategories returns the categories linked to one entity
func (s *Storage) EntityCategories(ctx context.Context, kind entity.Kind, entityID uint) ([]entity.Category, error) {
	var cats []entity.Category
	err := s.db.WithContext(ctx).
		Joins("JOIN entity_categories ec ON ec.category_id = categories.id").
		Where("ec.entity_kind = ? AND ec.entity_id = ?", kind, entityID).
		Order("categories.name_key").
		Find(&cats).Error
	if err != nil {
		return nil, fmt.Errorf("loading categories of %s %d: %w", kind, entityID, err)
	}
	return cats, nil
}

// CountAssociations counts association rows for one entity
func (s *Storage) CountAssociations(ctx context.Context, kind entity.Kind, entityID uint) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&entity.Association{}).
		Where("entity_kind = ? AND entity_id = ?", kind, entityID).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("counting associations of %s %d: %w", kind, entityID, err)
	}
	return n, nil
}

// MoveAssociations re-points every association of fromID to toID, skipping
// links toID already has, and removes the originals. Returns how many links
// were added to toID.
func (s *Storage) MoveAssociations(ctx context.Context, kind entity.Kind, fromID, toID uint) (int, error) {
	db := s.db.WithContext(ctx)

	var links []entity.Association
	if err := db.Where("entity_kind = ? AND entity_id = ?", kind, fromID).Find(&links).Error; err != nil {
		return 0, fmt.Errorf("loading associations of %s %d: %w", kind, fromID, err)
	}

	moved := 0
	for _, l := range links {
		created, err := s.AssociateCategory(ctx, kind, toID, l.CategoryID)
		if err != nil {
			return moved, err
		}
		if created {
			moved++
		}
	}

	if err := db.Where("entity_kind = ? AND entity_id = ?", kind, fromID).Delete(&entity.Association{}).Error; err != nil {
		return moved, fmt.Errorf("removing associations of %s %d: %w", kind, fromID, err)
	}
	return moved, nil
}
