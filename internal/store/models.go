package store

import (
	"encoding/json"
	"time"
)

type User struct {
	ID           string
	Email        string
	DisplayName  string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Resume is the mutable document being versioned. Content is the full
// schema-flexible JSON blob (personal info, experience, education, skills).
type Resume struct {
	ID         string
	OwnerID    string
	Title      string
	TemplateID string
	Content    json.RawMessage
	DeletedAt  *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// ResumeVersion is an immutable snapshot of a resume. Seq is unique and
// strictly increasing per resume; content and seq are never mutated after
// insert, only deletion is permitted.
type ResumeVersion struct {
	ID            string
	ResumeID      string
	OwnerID       string
	Seq           int
	Name          string
	Content       json.RawMessage
	TemplateID    string
	CreatedBy     string
	ChangeSummary string
	CreatedAt     time.Time
}
