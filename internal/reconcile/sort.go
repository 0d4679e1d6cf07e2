package reconcile

import (
	"sort"

	"github.com/pfrederiksen/club-sync/internal/entity"
)

// sortEventsByCreation orders events oldest first, breaking ties by id
func sortEventsByCreation(events []entity.Event) {
	sort.SliceStable(events, func(i, j int) bool {
		if !events[i].CreatedAt.Equal(events[j].CreatedAt) {
			return events[i].CreatedAt.Before(events[j].CreatedAt)
		}
		return events[i].ID < events[j].ID
	})
}
