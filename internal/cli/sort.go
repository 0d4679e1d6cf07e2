package cli

import (
	"sort"

	"github.com/pfrederiksen/club-sync/internal/entity"
)

// SortOrder represents the available sorting options
type SortOrder string

const (
	SortByCreated SortOrder = "created"
	SortByType    SortOrder = "type"
	SortByStatus  SortOrder = "status"
)

func (o SortOrder) valid() bool {
	return o == SortByCreated || o == SortByType || o == SortByStatus
}

// statusRank orders live jobs ahead of finished ones
var statusRank = map[entity.JobStatus]int{
	entity.JobRunning:   0,
	entity.JobPending:   1,
	entity.JobFailed:    2,
	entity.JobCompleted: 3,
}

// sortJobs sorts jobs in place; ties fall back to newest first
func sortJobs(list []entity.Job, order SortOrder) {
	switch order {
	case SortByCreated:
		sort.SliceStable(list, func(i, j int) bool {
			return newer(&list[i], &list[j])
		})
	case SortByType:
		sort.SliceStable(list, func(i, j int) bool {
			if list[i].Type != list[j].Type {
				return list[i].Type < list[j].Type
			}
			return newer(&list[i], &list[j])
		})
	case SortByStatus:
		sort.SliceStable(list, func(i, j int) bool {
			ri, rj := statusRank[list[i].Status], statusRank[list[j].Status]
			if ri != rj {
				return ri < rj
			}
			return newer(&list[i], &list[j])
		})
	}
}

// newer reports whether job i was created after job j
func newer(i, j *entity.Job) bool {
	if !i.CreatedAt.Equal(j.CreatedAt) {
		return i.CreatedAt.After(j.CreatedAt)
	}
	return i.ID > j.ID
}
