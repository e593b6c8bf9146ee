// Package export renders resume snapshots to PDF and DOCX.
package export

import (
	"errors"
	"time"
)

// Format represents the export output format
type Format string

const (
	FormatPDF  Format = "pdf"
	FormatDOCX Format = "docx"
)

// Request contains parameters for an export operation. An empty VersionID
// exports the resume's current content; otherwise that snapshot is rendered.
type Request struct {
	ResumeID  string
	OwnerID   string
	VersionID string
	Format    Format
}

// ResumeInfo holds the resume metadata needed for export.
type ResumeInfo struct {
	ID         string
	Title      string
	TemplateID string
	UpdatedAt  time.Time
}

// Result contains the export output
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

var (
	// ErrContentUnavailable indicates resume content could not be loaded for export.
	ErrContentUnavailable = errors.New("export content unavailable")
	// ErrPDFDependencyMissing indicates PDF export runtime dependencies are unavailable.
	ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
	// ErrDOCXDependencyMissing indicates DOCX export runtime dependencies are unavailable.
	ErrDOCXDependencyMissing = errors.New("export docx dependency missing")
)
