package entity

import "time"

// Change represents a field whose value differs between two versions of an entity
type Change struct {
	Field    string `json:"field"`
	OldValue string `json:"old_value"`
	NewValue string `json:"new_value"`
}

// DiffClub compares two versions of a club field by field.
// Identity and bookkeeping fields (ID, timestamps) are ignored.
func DiffClub(previous, current *Club) []Change {
	var changes []Change
	changes = appendChange(changes, "name", previous.Name, current.Name)
	changes = appendChange(changes, "purpose", previous.Purpose, current.Purpose)
	changes = appendChange(changes, "category_label", previous.CategoryLabel, current.CategoryLabel)
	changes = appendChange(changes, "contact_name", previous.ContactName, current.ContactName)
	changes = appendChange(changes, "contact_email", previous.ContactEmail, current.ContactEmail)
	changes = appendChange(changes, "status", string(previous.Status), string(current.Status))
	return changes
}

// DiffEvent compares two versions of an event field by field
func DiffEvent(previous, current *Event) []Change {
	var changes []Change
	changes = appendChange(changes, "title", previous.Title, current.Title)
	changes = appendChange(changes, "start_time", formatTime(previous.StartTime), formatTime(current.StartTime))
	changes = appendChange(changes, "description", previous.Description, current.Description)
	changes = appendChange(changes, "location", previous.Location, current.Location)
	changes = appendChange(changes, "time_text", previous.TimeText, current.TimeText)
	changes = appendChange(changes, "sponsor", previous.Sponsor, current.Sponsor)
	changes = appendChange(changes, "source_url", previous.SourceURL, current.SourceURL)
	changes = appendChange(changes, "category_label", previous.CategoryLabel, current.CategoryLabel)
	changes = appendChange(changes, "status", string(previous.Status), string(current.Status))
	return changes
}

func appendChange(changes []Change, field, oldValue, newValue string) []Change {
	if oldValue == newValue {
		return changes
	}
	return append(changes, Change{Field: field, OldValue: oldValue, NewValue: newValue})
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// ChangedFields returns just the field names of a change list
func ChangedFields(changes []Change) []string {
	fields := make([]string, 0, len(changes))
	for _, c := range changes {
		fields = append(fields, c.Field)
	}
	return fields
}
