// Package category maps free-text category labels onto the canonical
// category vocabulary.
package category

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/pfrederiksen/club-sync/internal/entity"
	"github.com/pfrederiksen/club-sync/internal/logger"
)

// Repository is the subset of storage the normalizer needs
type Repository interface {
	FindCategory(ctx context.Context, nameKey string) (*entity.Category, error)
	EnsureCategory(ctx context.Context, name string) (*entity.Category, error)
}

// Normalizer resolves labels to categories. Resolutions are memoized for
// the lifetime of the cache TTL.
type Normalizer struct {
	repo     Repository
	synonyms map[string]string // folded label -> canonical name
	memo     *cache.Cache
}

// NewNormalizer builds a normalizer. Synonym keys are folded here, so the
// table may be written in any case. A non-positive ttl disables memoization.
func NewNormalizer(repo Repository, synonyms map[string]string, ttl time.Duration) *Normalizer {
	folded := make(map[string]string, len(synonyms))
	for label, canonical := range synonyms {
		folded[entity.FoldName(label)] = strings.Join(strings.Fields(canonical), " ")
	}

	n := &Normalizer{repo: repo, synonyms: folded}
	if ttl > 0 {
		n.memo = cache.New(ttl, 2*ttl)
	}
	return n
}

// Canonical returns the canonical name a label maps to without touching the
// store: the synonym target if one exists, else the cleaned label. Empty
// labels return "".
func (n *Normalizer) Canonical(label string) string {
	cleaned := strings.Join(strings.Fields(label), " ")
	if cleaned == "" {
		return ""
	}
	if mapped, ok := n.synonyms[entity.FoldName(cleaned)]; ok {
		return mapped
	}
	return cleaned
}

// Resolve returns the canonical category for label, creating it when no
// synonym or existing category matches. An empty label yields (nil, nil);
// the caller decides the fallback.
func (n *Normalizer) Resolve(ctx context.Context, label string) (*entity.Category, error) {
	name := n.Canonical(label)
	if name == "" {
		return nil, nil
	}
	key := entity.FoldName(name)

	if n.memo != nil {
		if c, ok := n.memo.Get(key); ok {
			cat := c.(entity.Category)
			return &cat, nil
		}
	}

	cat, err := n.repo.FindCategory(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("resolving category %q: %w", label, err)
	}
	if cat == nil {
		cat, err = n.repo.EnsureCategory(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("resolving category %q: %w", label, err)
		}
		logger.Info("Category created", logger.Fields{
			"category": cat.Name,
			"label":    label,
		})
	}

	if n.memo != nil {
		n.memo.SetDefault(key, *cat)
	}
	return cat, nil
}

// ResolveOrFallback resolves label, substituting fallback when label is empty
func (n *Normalizer) ResolveOrFallback(ctx context.Context, label, fallback string) (*entity.Category, error) {
	cat, err := n.Resolve(ctx, label)
	if err != nil || cat != nil {
		return cat, err
	}
	return n.Resolve(ctx, fallback)
}

// Forget drops memoized resolutions
func (n *Normalizer) Forget() {
	if n.memo != nil {
		n.memo.Flush()
	}
}
