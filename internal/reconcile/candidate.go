package reconcile

import (
	"time"

	"github.com/pfrederiksen/club-sync/internal/entity"
	"github.com/pfrederiksen/club-sync/internal/rows"
)

// Candidate is one incoming record, before it is matched against the store
type Candidate struct {
	Kind          entity.Kind
	Name          string // club name or event title
	Description   string // club purpose or event description
	CategoryLabel string
	ContactName   string
	ContactEmail  string
	Source        string
	Synthesized   bool // Description is generated filler, not source text

	// Event-only fields
	StartTime *time.Time
	Location  string
	TimeText  string
	Sponsor   string
	SourceURL string
}

// ClubFromRow builds a club candidate from a roster row
func ClubFromRow(row rows.SourceRow, source string) Candidate {
	return Candidate{
		Kind:          entity.KindClub,
		Name:          row.Value(rows.FieldName),
		Description:   row.Value(rows.FieldPurpose),
		CategoryLabel: row.Value(rows.FieldCategory),
		ContactName:   row.Value(rows.FieldContactName),
		ContactEmail:  row.Value(rows.FieldContactEmail),
		Source:        source,
	}
}

// Key returns the natural key the candidate would be stored under
func (c Candidate) Key() string {
	if c.Kind == entity.KindEvent {
		return entity.EventKey(c.Name, c.StartTime)
	}
	return entity.ClubKey(c.Name)
}
