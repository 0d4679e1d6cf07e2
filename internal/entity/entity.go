package entity

import (
	"time"

	"gorm.io/datatypes"
)

// Kind identifies the type of a canonical entity
type Kind string

const (
	KindClub  Kind = "club"
	KindEvent Kind = "event"
)

// Status is the moderation state of a canonical entity
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusApproved Status = "APPROVED"
)

// Club is a registered student organization
type Club struct {
	ID                 uint      `gorm:"primaryKey" json:"id"`
	Name               string    `gorm:"size:255;not null" json:"name"`
	NameKey            string    `gorm:"size:255;not null;uniqueIndex" json:"-"` // case-folded natural key
	Purpose            string    `gorm:"type:text" json:"purpose"`
	PurposeSynthesized bool      `gorm:"not null;default:false" json:"purpose_synthesized"`
	CategoryLabel      string    `gorm:"size:255" json:"category_label,omitempty"`
	ContactName        string    `gorm:"size:255" json:"contact_name,omitempty"`
	ContactEmail       string    `gorm:"size:255" json:"contact_email,omitempty"`
	Status             Status    `gorm:"size:16;not null;index" json:"status"`
	Source             string    `gorm:"size:64" json:"source,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// TableName returns the table name for GORM.
func (Club) TableName() string {
	return "clubs"
}

// Event is a scheduled happening scraped from an event listing
type Event struct {
	ID                     uint       `gorm:"primaryKey" json:"id"`
	Title                  string     `gorm:"size:255;not null" json:"title"`
	StartTime              *time.Time `gorm:"index" json:"start_time,omitempty"`
	NaturalKey             string     `gorm:"size:40;not null;uniqueIndex" json:"-"` // sha1 of (title, start time)
	Description            string     `gorm:"type:text" json:"description"`
	DescriptionSynthesized bool       `gorm:"not null;default:false" json:"description_synthesized"`
	Location               string     `gorm:"size:255" json:"location,omitempty"`
	TimeText               string     `gorm:"size:255" json:"time_text,omitempty"`
	Sponsor                string     `gorm:"size:255" json:"sponsor,omitempty"`
	SourceURL              string     `gorm:"size:1024" json:"source_url,omitempty"`
	CategoryLabel          string     `gorm:"size:255" json:"category_label,omitempty"`
	Status                 Status     `gorm:"size:16;not null;index" json:"status"`
	CreatedAt              time.Time  `json:"created_at"`
	UpdatedAt              time.Time  `json:"updated_at"`
}

// TableName returns the table name for GORM.
func (Event) TableName() string {
	return "events"
}

// Category is one entry of the canonical category vocabulary
type Category struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"size:255;not null" json:"name"`
	NameKey   string    `gorm:"size:255;not null;uniqueIndex" json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the table name for GORM.
func (Category) TableName() string {
	return "categories"
}

// Association joins an entity of either kind to a category.
// The (EntityKind, EntityID, CategoryID) triple is unique.
type Association struct {
	ID         uint      `gorm:"primaryKey"`
	EntityKind Kind      `gorm:"size:16;not null;uniqueIndex:idx_entity_category"`
	EntityID   uint      `gorm:"not null;uniqueIndex:idx_entity_category"`
	CategoryID uint      `gorm:"not null;uniqueIndex:idx_entity_category;index"`
	CreatedAt  time.Time
}

// TableName returns the table name for GORM.
func (Association) TableName() string {
	return "entity_categories"
}

// JobType names a refresh pipeline
type JobType string

const (
	JobClubRefresh  JobType = "CLUB_REFRESH"
	JobEventRefresh JobType = "EVENT_REFRESH"
)

// JobStatus is the ledger state of a job
type JobStatus string

const (
	JobPending   JobStatus = "PENDING"
	JobRunning   JobStatus = "RUNNING"
	JobCompleted JobStatus = "COMPLETED"
	JobFailed    JobStatus = "FAILED"
)

// Terminal reports whether no further transition is possible from s
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// JobResult is the outcome payload stored on a finalized job.
// Exactly one of Message or Error is set.
type JobResult struct {
	Message     string `json:"message,omitempty"`
	Count       int    `json:"count,omitempty"`
	Error       string `json:"error,omitempty"`
	Diagnostics string `json:"diagnostics,omitempty"`
}

// Job is a row of the refresh ledger
type Job struct {
	ID         uint                          `gorm:"primaryKey" json:"id"`
	Type       JobType                       `gorm:"size:32;not null;index" json:"type"`
	Status     JobStatus                     `gorm:"size:16;not null;index:idx_jobs_status_created" json:"status"`
	CreatedAt  time.Time                     `gorm:"index:idx_jobs_status_created" json:"created_at"`
	StartedAt  *time.Time                    `json:"started_at,omitempty"`
	EndedAt    *time.Time                    `json:"ended_at,omitempty"`
	ClaimToken string                        `gorm:"size:36" json:"-"`
	Result     datatypes.JSONType[JobResult] `json:"result"`
}

// TableName returns the table name for GORM.
func (Job) TableName() string {
	return "jobs"
}

// Models lists every persisted type, in migration order
func Models() []any {
	return []any{&Club{}, &Event{}, &Category{}, &Association{}, &Job{}}
}
