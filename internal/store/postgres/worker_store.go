package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/davidnkusi/leadscout/internal/leadscout"
)

// WorkerStore persists the worker registry in Postgres. The reservation
// check-and-transition runs as one statement with FOR UPDATE SKIP LOCKED, so
// concurrent scheduling cycles can never take the same idle worker.
type WorkerStore struct {
	pool dbConn
}

// NewWorkerStore constructs a WorkerStore over an existing pool.
func NewWorkerStore(pool dbConn) (*WorkerStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &WorkerStore{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *WorkerStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

const workerColumns = `id, platform, status, requests_today, last_used_at, quarantine_until, ban_reason, credentials_ref`

// Create inserts a new worker record.
func (s *WorkerStore) Create(ctx context.Context, w leadscout.Worker) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO workers (`+workerColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		w.ID,
		string(w.Platform),
		string(w.Status),
		w.RequestsToday,
		w.LastUsedAt,
		w.QuarantineUntil,
		w.BanReason,
		w.CredentialsRef,
	)
	if err != nil {
		return fmt.Errorf("create worker: %w", err)
	}
	return nil
}

const reserveSQL = `
UPDATE workers SET status = 'busy', last_used_at = $2
WHERE id = (
	SELECT id FROM workers
	WHERE platform = $1
	  AND status = 'idle'
	  AND (quarantine_until IS NULL OR quarantine_until <= $2)
	ORDER BY last_used_at ASC NULLS FIRST, id ASC
	LIMIT 1
	FOR UPDATE SKIP LOCKED
)
RETURNING ` + workerColumns

// Reserve atomically transitions one eligible worker to busy and returns it.
// Tie-break is least-recently-used, never-used first, then lowest id.
func (s *WorkerStore) Reserve(ctx context.Context, platform leadscout.Platform, now time.Time) (leadscout.Worker, error) {
	row := s.pool.QueryRow(ctx, reserveSQL, string(platform), now)
	w, err := scanWorker(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return leadscout.Worker{}, leadscout.ErrNoIdleWorker
		}
		return leadscout.Worker{}, fmt.Errorf("reserve worker: %w", err)
	}
	return w, nil
}

// Release returns a busy worker to idle after a failed dispatch.
func (s *WorkerStore) Release(ctx context.Context, workerID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE workers SET status = 'idle' WHERE id = $1 AND status = 'busy'`, workerID)
	if err != nil {
		return fmt.Errorf("release worker: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var status string
		err := s.pool.QueryRow(ctx, `SELECT status FROM workers WHERE id = $1`, workerID).Scan(&status)
		if errors.Is(err, pgx.ErrNoRows) {
			return leadscout.ErrWorkerNotFound
		}
		if err != nil {
			return fmt.Errorf("release worker status check: %w", err)
		}
		return fmt.Errorf("release worker %s: status is %s, want busy", workerID, status)
	}
	return nil
}

// Resolve applies the outcome reducer patch as the final write for the job.
func (s *WorkerStore) Resolve(ctx context.Context, workerID string, outcome leadscout.Outcome, now time.Time) error {
	patch := leadscout.ReduceWorker(outcome, now)
	tag, err := s.pool.Exec(ctx, `
UPDATE workers SET
	status = $2,
	requests_today = requests_today + $3,
	quarantine_until = COALESCE($4, quarantine_until),
	ban_reason = COALESCE($5, ban_reason)
WHERE id = $1`,
		workerID,
		string(patch.Status),
		patch.RequestsTodayAdd,
		patch.QuarantineUntil,
		patch.BanReason,
	)
	if err != nil {
		return fmt.Errorf("resolve worker: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return leadscout.ErrWorkerNotFound
	}
	return nil
}

// SweepQuarantine releases workers whose quarantine window has elapsed.
func (s *WorkerStore) SweepQuarantine(ctx context.Context, now time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `
UPDATE workers SET status = 'idle', quarantine_until = NULL, ban_reason = ''
WHERE status = 'quarantined'
  AND (quarantine_until IS NULL OR quarantine_until <= $1)`, now)
	if err != nil {
		return 0, fmt.Errorf("sweep quarantine: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// ResetDailyCounters zeroes the per-worker request counters.
func (s *WorkerStore) ResetDailyCounters(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `UPDATE workers SET requests_today = 0`); err != nil {
		return fmt.Errorf("reset daily counters: %w", err)
	}
	return nil
}

// Get fetches one worker by id.
func (s *WorkerStore) Get(ctx context.Context, workerID string) (leadscout.Worker, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+workerColumns+` FROM workers WHERE id = $1`, workerID)
	w, err := scanWorker(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return leadscout.Worker{}, leadscout.ErrWorkerNotFound
		}
		return leadscout.Worker{}, fmt.Errorf("get worker: %w", err)
	}
	return w, nil
}

// List returns every worker ordered by id.
func (s *WorkerStore) List(ctx context.Context) ([]leadscout.Worker, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+workerColumns+` FROM workers ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list workers: %w", err)
	}
	defer rows.Close()

	var out []leadscout.Worker
	for rows.Next() {
		w, err := scanWorker(rows)
		if err != nil {
			return nil, fmt.Errorf("scan worker: %w", err)
		}
		out = append(out, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list workers: %w", err)
	}
	return out, nil
}

func scanWorker(row pgx.Row) (leadscout.Worker, error) {
	var (
		w        leadscout.Worker
		platform string
		status   string
	)
	err := row.Scan(
		&w.ID,
		&platform,
		&status,
		&w.RequestsToday,
		&w.LastUsedAt,
		&w.QuarantineUntil,
		&w.BanReason,
		&w.CredentialsRef,
	)
	if err != nil {
		return leadscout.Worker{}, err
	}
	w.Platform = leadscout.Platform(platform)
	w.Status = leadscout.WorkerStatus(status)
	return w, nil
}
