package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrLastVersion is returned when a delete would remove the only
	// remaining snapshot of a resume.
	ErrLastVersion = errors.New("last remaining version")
	// ErrVersionConflict is returned when sequence assignment keeps
	// colliding after retries.
	ErrVersionConflict = errors.New("version sequence conflict")
)

// insertVersionRetries bounds the retry loop around sequence assignment.
// The row lock on the parent resume serializes writers, so the unique
// constraint only fires if an insert sneaks in outside InsertVersion.
const insertVersionRetries = 3

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

// Ping verifies the database connection is alive
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// ---- users ----

func (s *PostgresStore) CreateUser(ctx context.Context, user User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, email, display_name, password_hash)
		VALUES ($1, LOWER($2), $3, $4)
	`, user.ID, user.Email, user.DisplayName, user.PasswordHash)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, display_name, password_hash, created_at, updated_at
		FROM users
		WHERE email = LOWER($1)
	`, email).Scan(&user.ID, &user.Email, &user.DisplayName, &user.PasswordHash, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, display_name, password_hash, created_at, updated_at
		FROM users
		WHERE id = $1
	`, userID).Scan(&user.ID, &user.Email, &user.DisplayName, &user.PasswordHash, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) UpdateUserPassword(ctx context.Context, userID, passwordHash string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET password_hash=$2, updated_at=NOW() WHERE id=$1
	`, userID, passwordHash)
	if err != nil {
		return fmt.Errorf("update user password: %w", err)
	}
	return nil
}

// ---- refresh sessions / token revocation ----

func (s *PostgresStore) SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_sessions (token_hash, user_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_hash) DO UPDATE SET user_id=EXCLUDED.user_id, expires_at=EXCLUDED.expires_at, revoked_at=NULL
	`, tokenHash, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) LookupRefreshSession(ctx context.Context, tokenHash string) (User, error) {
	const query = `
		SELECT u.id, u.email, u.display_name
		FROM refresh_sessions rs
		JOIN users u ON u.id = rs.user_id
		WHERE rs.token_hash = $1
			AND rs.revoked_at IS NULL
			AND rs.expires_at > NOW()
	`
	var user User
	err := s.db.QueryRowContext(ctx, query, tokenHash).Scan(&user.ID, &user.Email, &user.DisplayName)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE refresh_sessions SET revoked_at=NOW() WHERE token_hash=$1`, tokenHash)
	if err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO revoked_access_tokens (jti, expires_at)
		VALUES ($1, $2)
		ON CONFLICT (jti) DO NOTHING
	`, jti, exp)
	if err != nil {
		return fmt.Errorf("revoke access token: %w", err)
	}
	return nil
}

func (s *PostgresStore) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	var revoked bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM revoked_access_tokens WHERE jti=$1)`, jti).Scan(&revoked)
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return revoked, nil
}

// ---- resumes ----

func (s *PostgresStore) InsertResume(ctx context.Context, item Resume) error {
	content := item.Content
	if len(content) == 0 {
		content = json.RawMessage(`{}`)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO resumes (id, owner_id, title, template_id, content)
		VALUES ($1, $2, $3, $4, $5::jsonb)
	`, item.ID, item.OwnerID, item.Title, item.TemplateID, string(content))
	if err != nil {
		return fmt.Errorf("insert resume: %w", err)
	}
	return nil
}

// GetResume returns the resume scoped to its owner. Soft-deleted resumes
// are treated as missing.
func (s *PostgresStore) GetResume(ctx context.Context, resumeID, ownerID string) (Resume, error) {
	var item Resume
	var content []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, title, template_id, content, created_at, updated_at
		FROM resumes
		WHERE id=$1 AND owner_id=$2 AND deleted_at IS NULL
	`, resumeID, ownerID).Scan(&item.ID, &item.OwnerID, &item.Title, &item.TemplateID, &content, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return Resume{}, err
	}
	item.Content = content
	return item, nil
}

func (s *PostgresStore) ListResumes(ctx context.Context, ownerID string) ([]Resume, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_id, title, template_id, content, created_at, updated_at
		FROM resumes
		WHERE owner_id=$1 AND deleted_at IS NULL
		ORDER BY updated_at DESC
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list resumes: %w", err)
	}
	defer rows.Close()

	items := make([]Resume, 0)
	for rows.Next() {
		var item Resume
		var content []byte
		if err := rows.Scan(&item.ID, &item.OwnerID, &item.Title, &item.TemplateID, &content, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan resume: %w", err)
		}
		item.Content = content
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate resumes: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) UpdateResume(ctx context.Context, resumeID, ownerID, title string, content json.RawMessage, templateID string) error {
	if len(content) == 0 {
		content = json.RawMessage(`{}`)
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE resumes
		SET title=$3, content=$4::jsonb, template_id=$5, updated_at=NOW()
		WHERE id=$1 AND owner_id=$2 AND deleted_at IS NULL
	`, resumeID, ownerID, title, string(content), templateID)
	if err != nil {
		return fmt.Errorf("update resume: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update resume rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// UpdateResumeContent overwrites only content and template, used by restore.
func (s *PostgresStore) UpdateResumeContent(ctx context.Context, resumeID, ownerID string, content json.RawMessage, templateID string) error {
	if len(content) == 0 {
		content = json.RawMessage(`{}`)
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE resumes
		SET content=$3::jsonb, template_id=$4, updated_at=NOW()
		WHERE id=$1 AND owner_id=$2 AND deleted_at IS NULL
	`, resumeID, ownerID, string(content), templateID)
	if err != nil {
		return fmt.Errorf("update resume content: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update resume content rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) SoftDeleteResume(ctx context.Context, resumeID, ownerID string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE resumes SET deleted_at=NOW(), updated_at=NOW()
		WHERE id=$1 AND owner_id=$2 AND deleted_at IS NULL
	`, resumeID, ownerID)
	if err != nil {
		return fmt.Errorf("delete resume: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete resume rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ---- versions ----

// lockResume takes a row lock on the resume inside tx, scoped to owner and
// excluding soft-deleted rows. Every multi-step version operation starts
// here so concurrent writers against the same resume serialize.
func lockResume(ctx context.Context, tx *sql.Tx, resumeID, ownerID string) (Resume, error) {
	var item Resume
	var content []byte
	err := tx.QueryRowContext(ctx, `
		SELECT id, owner_id, title, template_id, content
		FROM resumes
		WHERE id=$1 AND owner_id=$2 AND deleted_at IS NULL
		FOR UPDATE
	`, resumeID, ownerID).Scan(&item.ID, &item.OwnerID, &item.Title, &item.TemplateID, &content)
	if err != nil {
		return Resume{}, err
	}
	item.Content = content
	return item, nil
}

// InsertVersion captures the resume's current content as a new immutable
// snapshot. The sequence number is assigned inside the same transaction that
// holds the resume row lock; UNIQUE (resume_id, seq) backstops the
// assignment, and a unique violation triggers a bounded retry before
// surfacing ErrVersionConflict.
func (s *PostgresStore) InsertVersion(ctx context.Context, id, resumeID, ownerID, name, createdBy, changeSummary string) (ResumeVersion, error) {
	var lastErr error
	for attempt := 0; attempt < insertVersionRetries; attempt++ {
		version, err := s.insertVersionOnce(ctx, id, resumeID, ownerID, name, createdBy, changeSummary)
		if err == nil {
			return version, nil
		}
		if !isUniqueViolation(err) {
			return ResumeVersion{}, err
		}
		lastErr = err
	}
	return ResumeVersion{}, fmt.Errorf("%w: %v", ErrVersionConflict, lastErr)
}

func (s *PostgresStore) insertVersionOnce(ctx context.Context, id, resumeID, ownerID, name, createdBy, changeSummary string) (ResumeVersion, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ResumeVersion{}, fmt.Errorf("begin insert version: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	resume, err := lockResume(ctx, tx, resumeID, ownerID)
	if err != nil {
		return ResumeVersion{}, err
	}

	var seq int
	if err := tx.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(seq), 0) + 1 FROM resume_versions WHERE resume_id=$1
	`, resumeID).Scan(&seq); err != nil {
		return ResumeVersion{}, fmt.Errorf("next version seq: %w", err)
	}

	if name == "" {
		name = fmt.Sprintf("Version %d", seq)
	}

	version := ResumeVersion{
		ID:            id,
		ResumeID:      resumeID,
		OwnerID:       ownerID,
		Seq:           seq,
		Name:          name,
		Content:       resume.Content,
		TemplateID:    resume.TemplateID,
		CreatedBy:     createdBy,
		ChangeSummary: changeSummary,
	}
	if err := tx.QueryRowContext(ctx, `
		INSERT INTO resume_versions (id, resume_id, owner_id, seq, name, content, template_id, created_by, change_summary)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7, $8, $9)
		RETURNING created_at
	`, version.ID, version.ResumeID, version.OwnerID, version.Seq, version.Name,
		string(version.Content), version.TemplateID, version.CreatedBy, version.ChangeSummary,
	).Scan(&version.CreatedAt); err != nil {
		return ResumeVersion{}, fmt.Errorf("insert version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return ResumeVersion{}, fmt.Errorf("commit insert version: %w", err)
	}
	return version, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// ListVersions returns all snapshots for the resume, newest first. Returns
// sql.ErrNoRows if the resume is missing, deleted, or not owned by ownerID.
func (s *PostgresStore) ListVersions(ctx context.Context, resumeID, ownerID string) ([]ResumeVersion, error) {
	if _, err := s.GetResume(ctx, resumeID, ownerID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, resume_id, owner_id, seq, name, content, template_id, created_by, change_summary, created_at
		FROM resume_versions
		WHERE resume_id=$1
		ORDER BY seq DESC
	`, resumeID)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	defer rows.Close()

	items := make([]ResumeVersion, 0)
	for rows.Next() {
		var item ResumeVersion
		var content []byte
		if err := rows.Scan(
			&item.ID,
			&item.ResumeID,
			&item.OwnerID,
			&item.Seq,
			&item.Name,
			&content,
			&item.TemplateID,
			&item.CreatedBy,
			&item.ChangeSummary,
			&item.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan version: %w", err)
		}
		item.Content = content
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate versions: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetVersion(ctx context.Context, resumeID, versionID, ownerID string) (ResumeVersion, error) {
	var item ResumeVersion
	var content []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT id, resume_id, owner_id, seq, name, content, template_id, created_by, change_summary, created_at
		FROM resume_versions
		WHERE id=$1 AND resume_id=$2 AND owner_id=$3
	`, versionID, resumeID, ownerID).Scan(
		&item.ID,
		&item.ResumeID,
		&item.OwnerID,
		&item.Seq,
		&item.Name,
		&content,
		&item.TemplateID,
		&item.CreatedBy,
		&item.ChangeSummary,
		&item.CreatedAt,
	)
	if err != nil {
		return ResumeVersion{}, err
	}
	item.Content = content
	return item, nil
}

func (s *PostgresStore) CountVersions(ctx context.Context, resumeID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM resume_versions WHERE resume_id=$1`, resumeID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count versions: %w", err)
	}
	return count, nil
}

// DeleteVersion removes one snapshot. The last remaining snapshot can never
// be deleted; the count check runs under the resume row lock so two
// concurrent deletes cannot both pass it.
func (s *PostgresStore) DeleteVersion(ctx context.Context, resumeID, versionID, ownerID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete version: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := lockResume(ctx, tx, resumeID, ownerID); err != nil {
		return err
	}

	var exists bool
	if err := tx.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM resume_versions WHERE id=$1 AND resume_id=$2 AND owner_id=$3)
	`, versionID, resumeID, ownerID).Scan(&exists); err != nil {
		return fmt.Errorf("check version: %w", err)
	}
	if !exists {
		return sql.ErrNoRows
	}

	var count int
	if err := tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM resume_versions WHERE resume_id=$1
	`, resumeID).Scan(&count); err != nil {
		return fmt.Errorf("count versions: %w", err)
	}
	if count <= 1 {
		return ErrLastVersion
	}

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM resume_versions WHERE id=$1 AND resume_id=$2
	`, versionID, resumeID); err != nil {
		return fmt.Errorf("delete version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete version: %w", err)
	}
	return nil
}

// DeleteVersionsKeeping removes every snapshot outside the newest keep by
// sequence number, as one batch, and reports how many went away. keep must
// be >= 1; the caller validates, the store enforces.
func (s *PostgresStore) DeleteVersionsKeeping(ctx context.Context, resumeID, ownerID string, keep int) (int, error) {
	if keep < 1 {
		return 0, ErrLastVersion
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin prune versions: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := lockResume(ctx, tx, resumeID, ownerID); err != nil {
		return 0, err
	}

	result, err := tx.ExecContext(ctx, `
		DELETE FROM resume_versions
		WHERE resume_id=$1
		  AND id NOT IN (
			SELECT id FROM resume_versions
			WHERE resume_id=$1
			ORDER BY seq DESC
			LIMIT $2
		  )
	`, resumeID, keep)
	if err != nil {
		return 0, fmt.Errorf("prune versions: %w", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune versions rows: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit prune versions: %w", err)
	}
	return int(deleted), nil
}
