package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"resumedeck/api/internal/archive"
	"resumedeck/api/internal/config"
	"resumedeck/api/internal/store"
)

type fakeStore struct {
	getUserByIDFn           func(context.Context, string) (store.User, error)
	getResumeFn             func(context.Context, string, string) (store.Resume, error)
	listResumesFn           func(context.Context, string) ([]store.Resume, error)
	insertResumeFn          func(context.Context, store.Resume) error
	updateResumeFn          func(context.Context, string, string, string, json.RawMessage, string) error
	updateResumeContentFn   func(context.Context, string, string, json.RawMessage, string) error
	softDeleteResumeFn      func(context.Context, string, string) error
	insertVersionFn         func(ctx context.Context, id, resumeID, ownerID, name, createdBy, changeSummary string) (store.ResumeVersion, error)
	listVersionsFn          func(context.Context, string, string) ([]store.ResumeVersion, error)
	getVersionFn            func(context.Context, string, string, string) (store.ResumeVersion, error)
	deleteVersionFn         func(context.Context, string, string, string) error
	deleteVersionsKeepingFn func(context.Context, string, string, int) (int, error)
}

func (f *fakeStore) Ping(context.Context) error { return nil }
func (f *fakeStore) GetUserByID(ctx context.Context, userID string) (store.User, error) {
	if f.getUserByIDFn != nil {
		return f.getUserByIDFn(ctx, userID)
	}
	return store.User{ID: userID, DisplayName: "Test User"}, nil
}
func (f *fakeStore) RevokeAccessToken(context.Context, string, time.Time) error { return nil }
func (f *fakeStore) IsAccessTokenRevoked(context.Context, string) (bool, error) {
	return false, nil
}
func (f *fakeStore) SaveRefreshSession(context.Context, string, string, time.Time) error {
	return nil
}
func (f *fakeStore) LookupRefreshSession(context.Context, string) (store.User, error) {
	return store.User{}, sql.ErrNoRows
}
func (f *fakeStore) RevokeRefreshSession(context.Context, string) error { return nil }
func (f *fakeStore) InsertResume(ctx context.Context, item store.Resume) error {
	if f.insertResumeFn != nil {
		return f.insertResumeFn(ctx, item)
	}
	return nil
}
func (f *fakeStore) GetResume(ctx context.Context, resumeID, ownerID string) (store.Resume, error) {
	if f.getResumeFn != nil {
		return f.getResumeFn(ctx, resumeID, ownerID)
	}
	return store.Resume{}, sql.ErrNoRows
}
func (f *fakeStore) ListResumes(ctx context.Context, ownerID string) ([]store.Resume, error) {
	if f.listResumesFn != nil {
		return f.listResumesFn(ctx, ownerID)
	}
	return nil, nil
}
func (f *fakeStore) UpdateResume(ctx context.Context, resumeID, ownerID, title string, content json.RawMessage, templateID string) error {
	if f.updateResumeFn != nil {
		return f.updateResumeFn(ctx, resumeID, ownerID, title, content, templateID)
	}
	return nil
}
func (f *fakeStore) UpdateResumeContent(ctx context.Context, resumeID, ownerID string, content json.RawMessage, templateID string) error {
	if f.updateResumeContentFn != nil {
		return f.updateResumeContentFn(ctx, resumeID, ownerID, content, templateID)
	}
	return nil
}
func (f *fakeStore) SoftDeleteResume(ctx context.Context, resumeID, ownerID string) error {
	if f.softDeleteResumeFn != nil {
		return f.softDeleteResumeFn(ctx, resumeID, ownerID)
	}
	return nil
}
func (f *fakeStore) InsertVersion(ctx context.Context, id, resumeID, ownerID, name, createdBy, changeSummary string) (store.ResumeVersion, error) {
	if f.insertVersionFn != nil {
		return f.insertVersionFn(ctx, id, resumeID, ownerID, name, createdBy, changeSummary)
	}
	return store.ResumeVersion{}, nil
}
func (f *fakeStore) ListVersions(ctx context.Context, resumeID, ownerID string) ([]store.ResumeVersion, error) {
	if f.listVersionsFn != nil {
		return f.listVersionsFn(ctx, resumeID, ownerID)
	}
	return nil, nil
}
func (f *fakeStore) GetVersion(ctx context.Context, resumeID, versionID, ownerID string) (store.ResumeVersion, error) {
	if f.getVersionFn != nil {
		return f.getVersionFn(ctx, resumeID, versionID, ownerID)
	}
	return store.ResumeVersion{}, sql.ErrNoRows
}
func (f *fakeStore) DeleteVersion(ctx context.Context, resumeID, versionID, ownerID string) error {
	if f.deleteVersionFn != nil {
		return f.deleteVersionFn(ctx, resumeID, versionID, ownerID)
	}
	return nil
}
func (f *fakeStore) DeleteVersionsKeeping(ctx context.Context, resumeID, ownerID string, keep int) (int, error) {
	if f.deleteVersionsKeepingFn != nil {
		return f.deleteVersionsKeepingFn(ctx, resumeID, ownerID, keep)
	}
	return 0, nil
}

func newTestService(fake *fakeStore) *Service {
	return &Service{
		cfg:      config.Config{JWTSecret: "test-secret", AccessTTL: time.Minute, RefreshTTL: time.Hour, DefaultKeepVersions: 10},
		store:    fake,
		sessions: fake,
	}
}

func TestRestoreVersionWritesSafetySnapshotFirst(t *testing.T) {
	currentContent := json.RawMessage(`{"summary":"current state"}`)
	targetContent := json.RawMessage(`{"summary":"old state"}`)

	var safetyContent json.RawMessage
	var safetySummary string
	var restoredContent json.RawMessage
	order := []string{}

	fake := &fakeStore{
		getResumeFn: func(context.Context, string, string) (store.Resume, error) {
			content := currentContent
			if restoredContent != nil {
				content = restoredContent
			}
			return store.Resume{ID: "rsm_1", OwnerID: "usr_1", Title: "Resume", Content: content}, nil
		},
		getVersionFn: func(_ context.Context, resumeID, versionID, ownerID string) (store.ResumeVersion, error) {
			return store.ResumeVersion{ID: versionID, ResumeID: resumeID, Seq: 3, Content: targetContent}, nil
		},
		insertVersionFn: func(_ context.Context, id, resumeID, ownerID, name, createdBy, changeSummary string) (store.ResumeVersion, error) {
			order = append(order, "snapshot")
			safetyContent = currentContent
			safetySummary = changeSummary
			return store.ResumeVersion{ID: id, ResumeID: resumeID, Seq: 4, Name: name, Content: currentContent}, nil
		},
		updateResumeContentFn: func(_ context.Context, resumeID, ownerID string, content json.RawMessage, templateID string) error {
			order = append(order, "overwrite")
			restoredContent = content
			return nil
		},
	}

	svc := newTestService(fake)
	payload, err := svc.RestoreVersion(context.Background(), "rsm_1", "ver_3", "usr_1", "Test User")
	if err != nil {
		t.Fatalf("RestoreVersion: %v", err)
	}

	if len(order) != 2 || order[0] != "snapshot" || order[1] != "overwrite" {
		t.Errorf("operation order = %v, want snapshot before overwrite", order)
	}
	if string(safetyContent) != string(currentContent) {
		t.Errorf("safety snapshot content = %s, want pre-restore state", safetyContent)
	}
	if !strings.Contains(safetySummary, "version 3") {
		t.Errorf("safety summary = %q, want mention of target version number", safetySummary)
	}
	if string(restoredContent) != string(targetContent) {
		t.Errorf("restored content = %s, want target snapshot content", restoredContent)
	}
	if payload["safetySnapshot"] == nil || payload["restoredFrom"] == nil {
		t.Errorf("payload missing snapshot info: %v", payload)
	}
}

func TestRestoreVersionAbortsWhenSafetySnapshotFails(t *testing.T) {
	overwritten := false
	fake := &fakeStore{
		getVersionFn: func(_ context.Context, resumeID, versionID, ownerID string) (store.ResumeVersion, error) {
			return store.ResumeVersion{ID: versionID, Seq: 1, Content: json.RawMessage(`{}`)}, nil
		},
		insertVersionFn: func(context.Context, string, string, string, string, string, string) (store.ResumeVersion, error) {
			return store.ResumeVersion{}, errors.New("insert failed")
		},
		updateResumeContentFn: func(context.Context, string, string, json.RawMessage, string) error {
			overwritten = true
			return nil
		},
	}

	svc := newTestService(fake)
	if _, err := svc.RestoreVersion(context.Background(), "rsm_1", "ver_1", "usr_1", "Test User"); err == nil {
		t.Fatal("expected error when safety snapshot fails")
	}
	if overwritten {
		t.Error("resume content was overwritten despite failed safety snapshot")
	}
}

func TestCompareVersionsOrdersBySequence(t *testing.T) {
	older := store.ResumeVersion{ID: "ver_a", Seq: 2, Content: json.RawMessage(`{"a":1,"b":2}`)}
	newer := store.ResumeVersion{ID: "ver_b", Seq: 5, Content: json.RawMessage(`{"a":1,"b":3,"c":4}`)}

	fake := &fakeStore{
		getVersionFn: func(_ context.Context, resumeID, versionID, ownerID string) (store.ResumeVersion, error) {
			switch versionID {
			case "ver_a":
				return older, nil
			case "ver_b":
				return newer, nil
			}
			return store.ResumeVersion{}, sql.ErrNoRows
		},
	}
	svc := newTestService(fake)

	// Pass arguments newest-first; the result must still be ordered by seq.
	payload, err := svc.CompareVersions(context.Background(), "rsm_1", "ver_b", "ver_a", "usr_1")
	if err != nil {
		t.Fatalf("CompareVersions: %v", err)
	}

	oldVersion := payload["oldVersion"].(map[string]any)
	newVersion := payload["newVersion"].(map[string]any)
	if oldVersion["id"] != "ver_a" || newVersion["id"] != "ver_b" {
		t.Errorf("ordering wrong: old=%v new=%v", oldVersion["id"], newVersion["id"])
	}

	result := payload["diff"].(map[string]any)
	added := result["added"].([]string)
	modified := result["modified"].([]string)
	if len(added) != 1 || added[0] != "c" {
		t.Errorf("added = %v, want [c]", added)
	}
	if len(modified) != 1 || modified[0] != "b" {
		t.Errorf("modified = %v, want [b]", modified)
	}
}

func TestPruneVersionsRejectsKeepBelowOne(t *testing.T) {
	svc := newTestService(&fakeStore{})
	for _, keep := range []int{0, -3} {
		k := keep
		_, err := svc.PruneVersions(context.Background(), "rsm_1", "usr_1", &k)
		var domainErr *DomainError
		if !errors.As(err, &domainErr) {
			t.Fatalf("keep=%d: expected DomainError, got %v", keep, err)
		}
		if domainErr.Code != "INVALID_OPERATION" || domainErr.Status != http.StatusConflict {
			t.Errorf("keep=%d: got %d %s", keep, domainErr.Status, domainErr.Code)
		}
	}
}

func TestPruneVersionsUsesConfiguredDefault(t *testing.T) {
	var gotKeep int
	fake := &fakeStore{
		deleteVersionsKeepingFn: func(_ context.Context, resumeID, ownerID string, keep int) (int, error) {
			gotKeep = keep
			return 0, nil
		},
	}
	svc := newTestService(fake)

	payload, err := svc.PruneVersions(context.Background(), "rsm_1", "usr_1", nil)
	if err != nil {
		t.Fatalf("PruneVersions: %v", err)
	}
	if gotKeep != 10 {
		t.Errorf("keep = %d, want configured default 10", gotKeep)
	}
	if payload["deletedCount"] != 0 {
		t.Errorf("deletedCount = %v, want 0 with no candidates", payload["deletedCount"])
	}
}

func TestPruneVersionsReportsDeletedCount(t *testing.T) {
	fake := &fakeStore{
		deleteVersionsKeepingFn: func(_ context.Context, resumeID, ownerID string, keep int) (int, error) {
			return 4, nil
		},
	}
	svc := newTestService(fake)

	keep := 1
	payload, err := svc.PruneVersions(context.Background(), "rsm_1", "usr_1", &keep)
	if err != nil {
		t.Fatalf("PruneVersions: %v", err)
	}
	if payload["deletedCount"] != 4 {
		t.Errorf("deletedCount = %v, want 4", payload["deletedCount"])
	}
}

// Round-trip: capture, restore, and the diff between the resume content and
// the restored snapshot comes out empty.
func TestRestoreRoundTripYieldsEmptyDiff(t *testing.T) {
	resumeContent := json.RawMessage(`{"summary":"v1","skills":["go"]}`)
	versions := map[string]store.ResumeVersion{}
	seq := 0

	fake := &fakeStore{}
	fake.getResumeFn = func(context.Context, string, string) (store.Resume, error) {
		return store.Resume{ID: "rsm_1", OwnerID: "usr_1", Title: "Resume", Content: resumeContent}, nil
	}
	fake.insertVersionFn = func(_ context.Context, id, resumeID, ownerID, name, createdBy, changeSummary string) (store.ResumeVersion, error) {
		seq++
		version := store.ResumeVersion{ID: id, ResumeID: resumeID, OwnerID: ownerID, Seq: seq, Content: resumeContent}
		versions[id] = version
		return version, nil
	}
	fake.getVersionFn = func(_ context.Context, resumeID, versionID, ownerID string) (store.ResumeVersion, error) {
		version, ok := versions[versionID]
		if !ok {
			return store.ResumeVersion{}, sql.ErrNoRows
		}
		return version, nil
	}
	fake.updateResumeContentFn = func(_ context.Context, resumeID, ownerID string, content json.RawMessage, templateID string) error {
		resumeContent = content
		return nil
	}

	svc := newTestService(fake)
	ctx := context.Background()

	created, err := svc.CreateVersion(ctx, "rsm_1", "usr_1", "Test User", CreateVersionInput{})
	if err != nil {
		t.Fatalf("CreateVersion: %v", err)
	}
	versionID := created["id"].(string)

	// Mutate the resume, then restore back to the captured snapshot.
	resumeContent = json.RawMessage(`{"summary":"v2","skills":["go","sql"],"projects":[]}`)
	if _, err := svc.RestoreVersion(ctx, "rsm_1", versionID, "usr_1", "Test User"); err != nil {
		t.Fatalf("RestoreVersion: %v", err)
	}

	snapshot := versions[versionID]
	if string(resumeContent) != string(snapshot.Content) {
		t.Errorf("resume content = %s, want snapshot content %s", resumeContent, snapshot.Content)
	}
}

func TestMapErrorStoreSentinels(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{sql.ErrNoRows, http.StatusNotFound, "NOT_FOUND"},
		{store.ErrLastVersion, http.StatusConflict, "INVALID_OPERATION"},
		{store.ErrVersionConflict, http.StatusConflict, "CONFLICT"},
		{errors.New("boom"), http.StatusInternalServerError, "SERVER_ERROR"},
	}
	for _, tc := range cases {
		status, code, _, _ := mapError(tc.err)
		if status != tc.status || code != tc.code {
			t.Errorf("mapError(%v) = %d %s, want %d %s", tc.err, status, code, tc.status, tc.code)
		}
	}
}

func TestCreateVersionSurfacesConflict(t *testing.T) {
	fake := &fakeStore{
		insertVersionFn: func(context.Context, string, string, string, string, string, string) (store.ResumeVersion, error) {
			return store.ResumeVersion{}, store.ErrVersionConflict
		},
	}
	svc := newTestService(fake)

	_, err := svc.CreateVersion(context.Background(), "rsm_1", "usr_1", "Test User", CreateVersionInput{})
	if !errors.Is(err, store.ErrVersionConflict) {
		t.Fatalf("err = %v, want ErrVersionConflict", err)
	}
	status, code, _, _ := mapError(err)
	if status != http.StatusConflict || code != "CONFLICT" {
		t.Errorf("mapError = %d %s, want 409 CONFLICT", status, code)
	}
}

func TestDeleteResumeArchivesFirst(t *testing.T) {
	archived := false
	deleted := false

	fake := &fakeStore{
		getResumeFn: func(context.Context, string, string) (store.Resume, error) {
			return store.Resume{ID: "rsm_1", OwnerID: "usr_1", Title: "Resume", Content: json.RawMessage(`{}`)}, nil
		},
		listVersionsFn: func(context.Context, string, string) ([]store.ResumeVersion, error) {
			return []store.ResumeVersion{{ID: "ver_1", Seq: 1}}, nil
		},
		softDeleteResumeFn: func(context.Context, string, string) error {
			if !archived {
				t.Error("soft delete ran before archive upload")
			}
			deleted = true
			return nil
		},
	}
	svc := newTestService(fake)
	svc.archiver = &fakeArchiver{archiveFn: func() (string, error) {
		archived = true
		return "resumes/usr_1/rsm_1/x.json", nil
	}}

	if err := svc.DeleteResume(context.Background(), "rsm_1", "usr_1"); err != nil {
		t.Fatalf("DeleteResume: %v", err)
	}
	if !deleted {
		t.Error("resume was not soft-deleted")
	}
}

func TestDeleteResumeKeepsResumeWhenArchiveFails(t *testing.T) {
	fake := &fakeStore{
		getResumeFn: func(context.Context, string, string) (store.Resume, error) {
			return store.Resume{ID: "rsm_1", OwnerID: "usr_1"}, nil
		},
		softDeleteResumeFn: func(context.Context, string, string) error {
			t.Error("soft delete ran despite failed archive upload")
			return nil
		},
	}
	svc := newTestService(fake)
	svc.archiver = &fakeArchiver{archiveFn: func() (string, error) {
		return "", errors.New("upload failed")
	}}

	if err := svc.DeleteResume(context.Background(), "rsm_1", "usr_1"); err == nil {
		t.Fatal("expected error when archive upload fails")
	}
}

type fakeArchiver struct {
	archiveFn func() (string, error)
}

func (f *fakeArchiver) ArchiveResume(context.Context, archive.Bundle) (string, error) {
	return f.archiveFn()
}

func (f *fakeArchiver) ListKeys(context.Context, string) ([]string, error) {
	return nil, nil
}
