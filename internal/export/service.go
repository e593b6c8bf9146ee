package export

import (
	"context"
	"encoding/json"
	"fmt"
)

// DataStore defines the data access the export service needs. GetResumeContent
// returns the snapshot's content and sequence number, or the current content
// and seq 0 for an empty versionID.
type DataStore interface {
	GetResume(ctx context.Context, resumeID, ownerID string) (ResumeInfo, error)
	GetResumeContent(ctx context.Context, resumeID, ownerID, versionID string) (json.RawMessage, int, error)
}

// Service renders resume snapshots into downloadable documents.
type Service struct {
	store DataStore
}

// NewService creates a new export service
func NewService(store DataStore) *Service {
	return &Service{store: store}
}

// Export generates an export in the requested format
func (s *Service) Export(ctx context.Context, req Request) (*Result, error) {
	info, err := s.store.GetResume(ctx, req.ResumeID, req.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("get resume: %w", err)
	}

	raw, seq, err := s.store.GetResumeContent(ctx, req.ResumeID, req.OwnerID, req.VersionID)
	if err != nil {
		return nil, fmt.Errorf("get resume content: %w", err)
	}

	content, extras, err := parseContent(raw)
	if err != nil {
		return nil, err
	}

	data := TemplateData{
		Title:      info.Title,
		Name:       content.Basics.Name,
		Headline:   content.Basics.Headline,
		Email:      content.Basics.Email,
		Phone:      content.Basics.Phone,
		Location:   content.Basics.Location,
		Website:    content.Basics.Website,
		Summary:    content.Summary,
		Experience: content.Experience,
		Education:  content.Education,
		Skills:     content.Skills,
		Projects:   content.Projects,
		Extras:     extras,
		UpdatedAt:  info.UpdatedAt,
		VersionSeq: seq,
	}

	html, err := RenderResumeHTML(data)
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	switch req.Format {
	case FormatPDF:
		return exportPDF(html, info.Title)
	case FormatDOCX:
		return exportDOCX(html, info.Title)
	default:
		return nil, fmt.Errorf("unsupported format: %s", req.Format)
	}
}
