package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/davidnkusi/leadscout/internal/leadscout"
)

// TargetStore persists monitoring targets in Postgres.
type TargetStore struct {
	pool dbConn
}

// NewTargetStore constructs a TargetStore over an existing pool.
func NewTargetStore(pool dbConn) (*TargetStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &TargetStore{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *TargetStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

const targetColumns = `id, user_id, platform, type, term, status, next_scrape_at, last_scraped_at, leads_found`

// Create inserts a new target record.
func (s *TargetStore) Create(ctx context.Context, t leadscout.Target) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO targets (`+targetColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		t.ID,
		t.UserID,
		string(t.Platform),
		string(t.Type),
		t.Term,
		string(t.Status),
		t.NextScrapeAt,
		t.LastScrapedAt,
		t.LeadsFound,
	)
	if err != nil {
		return fmt.Errorf("create target: %w", err)
	}
	return nil
}

// DueTargets returns active targets with next_scrape_at <= now, oldest due
// first, capped at limit.
func (s *TargetStore) DueTargets(ctx context.Context, now time.Time, limit int) ([]leadscout.Target, error) {
	rows, err := s.pool.Query(ctx, `
SELECT `+targetColumns+` FROM targets
WHERE status = 'active' AND next_scrape_at <= $1
ORDER BY next_scrape_at ASC, id ASC
LIMIT $2`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("due targets: %w", err)
	}
	defer rows.Close()

	var out []leadscout.Target
	for rows.Next() {
		t, err := scanTarget(rows)
		if err != nil {
			return nil, fmt.Errorf("scan target: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("due targets: %w", err)
	}
	return out, nil
}

// AdvanceNextScrape moves next_scrape_at forward. GREATEST keeps the update
// monotonic under concurrent cycles.
func (s *TargetStore) AdvanceNextScrape(ctx context.Context, targetID string, to time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE targets SET next_scrape_at = GREATEST(next_scrape_at, $2) WHERE id = $1`,
		targetID, to)
	if err != nil {
		return fmt.Errorf("advance next scrape: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return leadscout.ErrTargetNotFound
	}
	return nil
}

// MarkScraped stamps last_scraped_at.
func (s *TargetStore) MarkScraped(ctx context.Context, targetID string, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE targets SET last_scraped_at = $2 WHERE id = $1`, targetID, at)
	if err != nil {
		return fmt.Errorf("mark scraped: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return leadscout.ErrTargetNotFound
	}
	return nil
}

// IncrementLeadsFound bumps the denormalized per-target lead counter.
func (s *TargetStore) IncrementLeadsFound(ctx context.Context, targetID string, n int) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE targets SET leads_found = leads_found + $2 WHERE id = $1`, targetID, n)
	if err != nil {
		return fmt.Errorf("increment leads found: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return leadscout.ErrTargetNotFound
	}
	return nil
}

// Get fetches one target by id.
func (s *TargetStore) Get(ctx context.Context, targetID string) (leadscout.Target, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+targetColumns+` FROM targets WHERE id = $1`, targetID)
	t, err := scanTarget(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return leadscout.Target{}, leadscout.ErrTargetNotFound
		}
		return leadscout.Target{}, fmt.Errorf("get target: %w", err)
	}
	return t, nil
}

// List returns every target ordered by id.
func (s *TargetStore) List(ctx context.Context) ([]leadscout.Target, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+targetColumns+` FROM targets ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list targets: %w", err)
	}
	defer rows.Close()

	var out []leadscout.Target
	for rows.Next() {
		t, err := scanTarget(rows)
		if err != nil {
			return nil, fmt.Errorf("scan target: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list targets: %w", err)
	}
	return out, nil
}

func scanTarget(row pgx.Row) (leadscout.Target, error) {
	var (
		t          leadscout.Target
		platform   string
		targetType string
		status     string
	)
	err := row.Scan(
		&t.ID,
		&t.UserID,
		&platform,
		&targetType,
		&t.Term,
		&status,
		&t.NextScrapeAt,
		&t.LastScrapedAt,
		&t.LeadsFound,
	)
	if err != nil {
		return leadscout.Target{}, err
	}
	t.Platform = leadscout.Platform(platform)
	t.Type = leadscout.TargetType(targetType)
	t.Status = leadscout.TargetStatus(status)
	return t, nil
}
