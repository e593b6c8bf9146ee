package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS implements Searcher using PostgreSQL full-text search as a fallback.
type PgFTS struct {
	db *sql.DB
}

// NewPgFTS creates a PostgreSQL FTS searcher.
func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true — if Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search queries the resumes table using plainto_tsquery and ts_rank, with
// ts_headline for snippets. Only the caller's non-deleted resumes match.
func (p *PgFTS) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	ctx := context.Background()

	var total int
	if err := p.db.QueryRowContext(ctx, `
		SELECT count(*)
		FROM resumes r
		WHERE r.owner_id = $1
		  AND r.deleted_at IS NULL
		  AND r.fts @@ plainto_tsquery('english', $2)`,
		q.OwnerID, q.Text,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT r.id, r.title,
			ts_headline('english', coalesce(r.content::text, ''), plainto_tsquery('english', $2), 'MaxFragments=1,MaxWords=30') AS snippet
		FROM resumes r
		WHERE r.owner_id = $1
		  AND r.deleted_at IS NULL
		  AND r.fts @@ plainto_tsquery('english', $2)
		ORDER BY ts_rank(r.fts, plainto_tsquery('english', $2)) DESC
		LIMIT %d OFFSET %d`, limit, offset),
		q.OwnerID, q.Text,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.ResumeID, &r.Title, &r.Snippet); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		results = append(results, r)
	}

	return results, total, rows.Err()
}

// LoadAllRecords returns all indexable resumes for full reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]ResumeRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, owner_id, title, coalesce(content::text, '')
		FROM resumes
		WHERE deleted_at IS NULL
	`)
	if err != nil {
		return nil, fmt.Errorf("load resumes: %w", err)
	}
	defer rows.Close()

	records := make([]ResumeRecord, 0)
	for rows.Next() {
		var r ResumeRecord
		if err := rows.Scan(&r.ID, &r.OwnerID, &r.Title, &r.Body); err != nil {
			return nil, fmt.Errorf("scan resume: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate resumes: %w", err)
	}

	return records, nil
}
