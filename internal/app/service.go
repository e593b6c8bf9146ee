package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"resumedeck/api/internal/archive"
	"resumedeck/api/internal/auth"
	"resumedeck/api/internal/authpw"
	"resumedeck/api/internal/config"
	"resumedeck/api/internal/diff"
	"resumedeck/api/internal/export"
	"resumedeck/api/internal/search"
	"resumedeck/api/internal/store"
	"resumedeck/api/internal/util"
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	JTI          string
	ExpiresAt    time.Time
}

type ResumeInput struct {
	Title      string          `json:"title"`
	TemplateID string          `json:"templateId"`
	Content    json.RawMessage `json:"content"`
}

type CreateVersionInput struct {
	Name          string `json:"name"`
	ChangeSummary string `json:"changeSummary"`
}

type dataStore interface {
	Ping(context.Context) error
	GetUserByID(context.Context, string) (store.User, error)
	RevokeAccessToken(context.Context, string, time.Time) error
	IsAccessTokenRevoked(context.Context, string) (bool, error)
	InsertResume(context.Context, store.Resume) error
	GetResume(context.Context, string, string) (store.Resume, error)
	ListResumes(context.Context, string) ([]store.Resume, error)
	UpdateResume(context.Context, string, string, string, json.RawMessage, string) error
	UpdateResumeContent(context.Context, string, string, json.RawMessage, string) error
	SoftDeleteResume(context.Context, string, string) error
	InsertVersion(ctx context.Context, id, resumeID, ownerID, name, createdBy, changeSummary string) (store.ResumeVersion, error)
	ListVersions(context.Context, string, string) ([]store.ResumeVersion, error)
	GetVersion(context.Context, string, string, string) (store.ResumeVersion, error)
	DeleteVersion(context.Context, string, string, string) error
	DeleteVersionsKeeping(context.Context, string, string, int) (int, error)
}

// sessionStore holds refresh tokens. Backed by Redis when configured, the
// Postgres store otherwise.
type sessionStore interface {
	SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
}

type searchService interface {
	Search(q search.Query) search.Response
	IndexResume(record search.ResumeRecord)
	RemoveResume(id string)
}

type archiveService interface {
	ArchiveResume(ctx context.Context, bundle archive.Bundle) (string, error)
	ListKeys(ctx context.Context, ownerID string) ([]string, error)
}

type Service struct {
	cfg      config.Config
	store    dataStore
	sessions sessionStore
	authpw   *authpw.Service
	search   searchService
	archiver archiveService
	exporter *export.Service
}

// New wires the application service. sessions may be nil, in which case
// refresh tokens live in Postgres; searchSvc and archiver are optional.
func New(cfg config.Config, pg *store.PostgresStore, sessions sessionStore, searchSvc *search.Service, archiver *archive.Service) *Service {
	s := &Service{
		cfg:      cfg,
		store:    pg,
		sessions: sessions,
		authpw:   authpw.NewService(pg),
	}
	if sessions == nil {
		s.sessions = pg
	}
	if searchSvc != nil {
		s.search = searchSvc
	}
	if archiver != nil {
		s.archiver = archiver
	}
	s.exporter = export.NewService(exportStore{store: s.store})
	return s
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) AuthPasswordService() *authpw.Service {
	return s.authpw
}

// CreateSession issues a fresh access/refresh token pair for the user.
func (s *Service) CreateSession(ctx context.Context, userID string) (Session, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	user, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, err
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	if user.DisplayName == "" {
		if full, err := s.store.GetUserByID(ctx, user.ID); err == nil {
			user = full
		}
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), auth.Claims{
		Sub:  user.ID,
		Name: user.DisplayName,
		JTI:  jti,
		Exp:  expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft") + util.NewID("")
	refreshExpires := now.Add(s.cfg.RefreshTTL)
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user.ID, refreshExpires); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		UserName:     user.DisplayName,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.store.IsAccessTokenRevoked(ctx, claims.JTI)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}

	user, err := s.store.GetUserByID(ctx, claims.Sub)
	if err != nil {
		return Session{}, err
	}

	return Session{
		Token:     token,
		UserID:    user.ID,
		UserName:  user.DisplayName,
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

func (s *Service) Logout(ctx context.Context, session Session, refreshToken string) error {
	if session.JTI != "" {
		_ = s.store.RevokeAccessToken(ctx, session.JTI, session.ExpiresAt)
	}
	if refreshToken != "" {
		_ = s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
	}
	return nil
}

// Resume operations

func (s *Service) CreateResume(ctx context.Context, ownerID, createdBy string, input ResumeInput) (map[string]any, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		title = "Untitled Resume"
	}
	content := input.Content
	if len(content) == 0 {
		content = json.RawMessage(`{}`)
	}

	item := store.Resume{
		ID:         util.NewID("rsm"),
		OwnerID:    ownerID,
		Title:      title,
		TemplateID: input.TemplateID,
		Content:    content,
	}
	if err := s.store.InsertResume(ctx, item); err != nil {
		return nil, err
	}

	created, err := s.store.GetResume(ctx, item.ID, ownerID)
	if err != nil {
		return nil, err
	}
	s.indexResume(created)
	return resumePayload(created), nil
}

func (s *Service) ListResumes(ctx context.Context, ownerID string) ([]map[string]any, error) {
	resumes, err := s.store.ListResumes(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(resumes))
	for _, item := range resumes {
		items = append(items, resumeSummaryPayload(item))
	}
	return items, nil
}

func (s *Service) GetResume(ctx context.Context, resumeID, ownerID string) (map[string]any, error) {
	item, err := s.store.GetResume(ctx, resumeID, ownerID)
	if err != nil {
		return nil, err
	}
	return resumePayload(item), nil
}

func (s *Service) UpdateResume(ctx context.Context, resumeID, ownerID string, input ResumeInput) (map[string]any, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "title is required", nil)
	}
	if err := s.store.UpdateResume(ctx, resumeID, ownerID, title, input.Content, input.TemplateID); err != nil {
		return nil, err
	}
	item, err := s.store.GetResume(ctx, resumeID, ownerID)
	if err != nil {
		return nil, err
	}
	s.indexResume(item)
	return resumePayload(item), nil
}

// DeleteResume archives the full version history before soft-deleting, so
// deletion stays recoverable even after the retention sweep would have
// discarded snapshots.
func (s *Service) DeleteResume(ctx context.Context, resumeID, ownerID string) error {
	item, err := s.store.GetResume(ctx, resumeID, ownerID)
	if err != nil {
		return err
	}

	if s.archiver != nil {
		versions, err := s.store.ListVersions(ctx, resumeID, ownerID)
		if err != nil {
			return err
		}
		if _, err := s.archiver.ArchiveResume(ctx, archiveBundle(item, versions, "resume deleted")); err != nil {
			return fmt.Errorf("archive before delete: %w", err)
		}
	}

	if err := s.store.SoftDeleteResume(ctx, resumeID, ownerID); err != nil {
		return err
	}
	if s.search != nil {
		s.search.RemoveResume(resumeID)
	}
	return nil
}

// Version operations

func (s *Service) CreateVersion(ctx context.Context, resumeID, ownerID, createdBy string, input CreateVersionInput) (map[string]any, error) {
	version, err := s.store.InsertVersion(ctx, util.NewID("ver"), resumeID, ownerID,
		strings.TrimSpace(input.Name), createdBy, strings.TrimSpace(input.ChangeSummary))
	if err != nil {
		return nil, err
	}
	return versionPayload(version, true), nil
}

func (s *Service) ListVersions(ctx context.Context, resumeID, ownerID string) (map[string]any, error) {
	versions, err := s.store.ListVersions(ctx, resumeID, ownerID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(versions))
	for _, version := range versions {
		items = append(items, versionPayload(version, false))
	}
	return map[string]any{"versions": items}, nil
}

func (s *Service) GetVersion(ctx context.Context, resumeID, versionID, ownerID string) (map[string]any, error) {
	version, err := s.store.GetVersion(ctx, resumeID, versionID, ownerID)
	if err != nil {
		return nil, err
	}
	return versionPayload(version, true), nil
}

func (s *Service) DeleteVersion(ctx context.Context, resumeID, versionID, ownerID string) error {
	return s.store.DeleteVersion(ctx, resumeID, versionID, ownerID)
}

// RestoreVersion snapshots the current state before overwriting the resume
// with the target snapshot's content. The safety snapshot always comes
// first: if it cannot be written the resume is left untouched.
func (s *Service) RestoreVersion(ctx context.Context, resumeID, versionID, ownerID, userName string) (map[string]any, error) {
	target, err := s.store.GetVersion(ctx, resumeID, versionID, ownerID)
	if err != nil {
		return nil, err
	}

	safety, err := s.store.InsertVersion(ctx, util.NewID("ver"), resumeID, ownerID,
		"Pre-restore snapshot", userName,
		fmt.Sprintf("Automatic snapshot before restoring to version %d", target.Seq))
	if err != nil {
		return nil, fmt.Errorf("safety snapshot: %w", err)
	}

	if err := s.store.UpdateResumeContent(ctx, resumeID, ownerID, target.Content, target.TemplateID); err != nil {
		return nil, err
	}

	item, err := s.store.GetResume(ctx, resumeID, ownerID)
	if err != nil {
		return nil, err
	}
	s.indexResume(item)

	return map[string]any{
		"resume":         resumePayload(item),
		"restoredFrom":   versionPayload(target, false),
		"safetySnapshot": versionPayload(safety, false),
	}, nil
}

// CompareVersions diffs two snapshots. Chronological direction comes from
// the sequence numbers, not the argument order.
func (s *Service) CompareVersions(ctx context.Context, resumeID, versionID1, versionID2, ownerID string) (map[string]any, error) {
	first, err := s.store.GetVersion(ctx, resumeID, versionID1, ownerID)
	if err != nil {
		return nil, err
	}
	second, err := s.store.GetVersion(ctx, resumeID, versionID2, ownerID)
	if err != nil {
		return nil, err
	}

	older, newer := first, second
	if older.Seq > newer.Seq {
		older, newer = newer, older
	}

	result, err := diff.Compute(older.Content, newer.Content)
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"oldVersion": versionPayload(older, false),
		"newVersion": versionPayload(newer, false),
		"diff": map[string]any{
			"added":    result.Added,
			"removed":  result.Removed,
			"modified": result.Modified,
		},
	}, nil
}

// PruneVersions deletes everything outside the newest keepCount snapshots.
// A nil keepCount uses the configured default; values below 1 are rejected
// rather than clamped so a bad request can never thin history to nothing.
func (s *Service) PruneVersions(ctx context.Context, resumeID, ownerID string, keepCount *int) (map[string]any, error) {
	keep := s.cfg.DefaultKeepVersions
	if keepCount != nil {
		keep = *keepCount
	}
	if keep < 1 {
		return nil, domainError(http.StatusConflict, "INVALID_OPERATION", "keepCount must be at least 1", nil)
	}

	deleted, err := s.store.DeleteVersionsKeeping(ctx, resumeID, ownerID, keep)
	if err != nil {
		return nil, err
	}
	return map[string]any{"deletedCount": deleted, "keepCount": keep}, nil
}

// Search

func (s *Service) Search(ctx context.Context, ownerID, text string, limit, offset int) (map[string]any, error) {
	if s.search == nil {
		return nil, domainError(http.StatusServiceUnavailable, "SEARCH_UNAVAILABLE", "Search is not configured", nil)
	}
	response := s.search.Search(search.Query{
		OwnerID: ownerID,
		Text:    text,
		Limit:   limit,
		Offset:  offset,
	})
	return map[string]any{
		"results": response.Results,
		"total":   response.Total,
		"query":   response.Query,
	}, nil
}

func (s *Service) indexResume(item store.Resume) {
	if s.search == nil {
		return
	}
	s.search.IndexResume(search.ResumeRecord{
		ID:      item.ID,
		OwnerID: item.OwnerID,
		Title:   item.Title,
		Body:    contentText(item.Content),
	})
}

// Export

func (s *Service) Export(ctx context.Context, resumeID, versionID, ownerID string, format export.Format) (*export.Result, error) {
	return s.exporter.Export(ctx, export.Request{
		ResumeID:  resumeID,
		OwnerID:   ownerID,
		VersionID: versionID,
		Format:    format,
	})
}

// Archive

func (s *Service) ArchiveResume(ctx context.Context, resumeID, ownerID string) (map[string]any, error) {
	if s.archiver == nil {
		return nil, domainError(http.StatusServiceUnavailable, "ARCHIVE_UNAVAILABLE", "Archiving is not configured", nil)
	}
	item, err := s.store.GetResume(ctx, resumeID, ownerID)
	if err != nil {
		return nil, err
	}
	versions, err := s.store.ListVersions(ctx, resumeID, ownerID)
	if err != nil {
		return nil, err
	}
	key, err := s.archiver.ArchiveResume(ctx, archiveBundle(item, versions, "manual archive"))
	if err != nil {
		return nil, err
	}
	return map[string]any{"key": key, "versionCount": len(versions)}, nil
}

func (s *Service) ListArchives(ctx context.Context, ownerID string) (map[string]any, error) {
	if s.archiver == nil {
		return nil, domainError(http.StatusServiceUnavailable, "ARCHIVE_UNAVAILABLE", "Archiving is not configured", nil)
	}
	keys, err := s.archiver.ListKeys(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if keys == nil {
		keys = []string{}
	}
	return map[string]any{"archives": keys}, nil
}

func archiveBundle(item store.Resume, versions []store.ResumeVersion, reason string) archive.Bundle {
	snapshots := make([]archive.VersionSnapshot, 0, len(versions))
	for _, version := range versions {
		snapshots = append(snapshots, archive.VersionSnapshot{
			ID:            version.ID,
			Seq:           version.Seq,
			Name:          version.Name,
			Content:       version.Content,
			ChangeSummary: version.ChangeSummary,
			CreatedAt:     version.CreatedAt,
		})
	}
	return archive.Bundle{
		ResumeID:   item.ID,
		OwnerID:    item.OwnerID,
		Title:      item.Title,
		TemplateID: item.TemplateID,
		Content:    item.Content,
		Versions:   snapshots,
		Reason:     reason,
	}
}

// exportStore adapts the data store to the export service's interface.
type exportStore struct {
	store dataStore
}

func (e exportStore) GetResume(ctx context.Context, resumeID, ownerID string) (export.ResumeInfo, error) {
	item, err := e.store.GetResume(ctx, resumeID, ownerID)
	if err != nil {
		return export.ResumeInfo{}, err
	}
	return export.ResumeInfo{
		ID:         item.ID,
		Title:      item.Title,
		TemplateID: item.TemplateID,
		UpdatedAt:  item.UpdatedAt,
	}, nil
}

func (e exportStore) GetResumeContent(ctx context.Context, resumeID, ownerID, versionID string) (json.RawMessage, int, error) {
	if versionID == "" {
		item, err := e.store.GetResume(ctx, resumeID, ownerID)
		if err != nil {
			return nil, 0, err
		}
		return item.Content, 0, nil
	}
	version, err := e.store.GetVersion(ctx, resumeID, versionID, ownerID)
	if err != nil {
		return nil, 0, err
	}
	return version.Content, version.Seq, nil
}

// Payload shaping

func resumeSummaryPayload(item store.Resume) map[string]any {
	return map[string]any{
		"id":         item.ID,
		"title":      item.Title,
		"templateId": item.TemplateID,
		"createdAt":  item.CreatedAt,
		"updatedAt":  item.UpdatedAt,
	}
}

func resumePayload(item store.Resume) map[string]any {
	payload := resumeSummaryPayload(item)
	payload["content"] = item.Content
	return payload
}

func versionPayload(version store.ResumeVersion, includeContent bool) map[string]any {
	payload := map[string]any{
		"id":            version.ID,
		"resumeId":      version.ResumeID,
		"seq":           version.Seq,
		"name":          version.Name,
		"templateId":    version.TemplateID,
		"createdBy":     version.CreatedBy,
		"changeSummary": version.ChangeSummary,
		"createdAt":     version.CreatedAt,
	}
	if includeContent {
		payload["content"] = version.Content
	}
	return payload
}

// contentText flattens the content blob's string values for search indexing.
func contentText(raw json.RawMessage) string {
	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return ""
	}
	var parts []string
	collectStrings(value, &parts)
	return strings.Join(parts, " ")
}

func collectStrings(value any, parts *[]string) {
	switch v := value.(type) {
	case string:
		if strings.TrimSpace(v) != "" {
			*parts = append(*parts, v)
		}
	case []any:
		for _, item := range v {
			collectStrings(item, parts)
		}
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			collectStrings(v[k], parts)
		}
	}
}
