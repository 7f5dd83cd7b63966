package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/newsgraph/newsgraph-go/internal/models"
)

// ErrNoJob is returned by ClaimNext when no pending job could be claimed.
// A lost claim race reports ErrNoJob too: a claim conflict is an idle
// cycle, not a failure.
var ErrNoJob = errors.New("no pending job")

// SettingSyncEnabled is the kill-switch key in pipeline_settings.
const SettingSyncEnabled = "graph_sync_enabled"

// Store is the durable sync-job ledger. It owns its own database
// connection: the queue never shares a transaction or connection scope
// with the article-publishing store.
type Store struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// Open connects the queue store. driver is "sqlite3" (local) or "pgx"
// (deployment), matching the dsn.
func Open(driver, dsn string) (*Store, error) {
	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect queue store: %w", err)
	}

	if driver == "sqlite3" {
		// WAL so the worker's claim updates don't block operator reads
		db.Exec("PRAGMA journal_mode = WAL")
		db.Exec("PRAGMA foreign_keys = ON")
	}

	s := &Store{
		db:     db,
		logger: slog.Default().With("component", "queue"),
	}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init queue schema: %w", err)
	}

	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sync_jobs (
		id TEXT PRIMARY KEY,
		article_reference TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending'
			CHECK (status IN ('pending', 'in_progress', 'done', 'failed', 'manual_review')),
		retry_count INTEGER NOT NULL DEFAULT 0,
		error_message TEXT,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_sync_jobs_status ON sync_jobs(status, updated_at);
	CREATE INDEX IF NOT EXISTS idx_sync_jobs_article ON sync_jobs(article_reference);

	-- The WHERE NOT EXISTS dedup in Enqueue is not race-proof under
	-- read-committed postgres; this index makes at most one active job per
	-- article hold for concurrent enqueuers too.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_sync_jobs_active_article
		ON sync_jobs(article_reference) WHERE status IN ('pending', 'in_progress');

	CREATE TABLE IF NOT EXISTS pipeline_settings (
		setting_key TEXT PRIMARY KEY,
		setting_value TEXT
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	// Seed the kill-switch enabled; operators flip it out of band.
	_, err := s.db.Exec(s.db.Rebind(
		`INSERT INTO pipeline_settings (setting_key, setting_value) VALUES (?, ?)
		 ON CONFLICT (setting_key) DO NOTHING`),
		SettingSyncEnabled, "true")
	return err
}

// Close closes the queue database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Enqueue inserts a pending job for articleRef unless one is already
// pending or in progress for the same article. Returns the created job, or
// nil when the enqueue was deduplicated.
func (s *Store) Enqueue(ctx context.Context, articleRef string) (*models.Job, error) {
	if articleRef == "" {
		return nil, fmt.Errorf("article reference cannot be empty")
	}

	job := models.Job{
		ID:         uuid.New(),
		ArticleRef: articleRef,
		Status:     models.StatusPending,
		CreatedAt:  time.Now().UTC(),
	}
	job.UpdatedAt = job.CreatedAt

	res, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO sync_jobs (id, article_reference, status, retry_count, created_at, updated_at)
		SELECT ?, ?, ?, 0, ?, ?
		WHERE NOT EXISTS (
			SELECT 1 FROM sync_jobs
			WHERE article_reference = ? AND status IN ('pending', 'in_progress')
		)`),
		job.ID, job.ArticleRef, job.Status, job.CreatedAt, job.UpdatedAt, job.ArticleRef)
	if err != nil {
		if isUniqueViolation(err) {
			// A concurrent enqueuer inserted first; same outcome as the
			// WHERE NOT EXISTS dedup.
			s.logger.Debug("enqueue deduplicated", "article", articleRef)
			return nil, nil
		}
		return nil, fmt.Errorf("enqueue job: %w", err)
	}

	rows, _ := res.RowsAffected()
	if rows == 0 {
		s.logger.Debug("enqueue deduplicated", "article", articleRef)
		return nil, nil
	}

	s.logger.Info("job enqueued", "job_id", job.ID, "article", articleRef)
	return &job, nil
}

// ClaimNext atomically transitions the oldest pending job to in_progress
// and returns it. The claim is a compare-and-set on status, so concurrent
// callers can never both claim the same job; the loser sees ErrNoJob.
//
// Pending order is updated_at: a job enters the queue with
// updated_at = created_at and a requeue refreshes it, so retried jobs
// re-enter at the tail behind never-failed work.
func (s *Store) ClaimNext(ctx context.Context) (*models.Job, error) {
	var job models.Job
	err := s.db.GetContext(ctx, &job, `
		SELECT id, article_reference, status, retry_count, error_message, created_at, updated_at
		FROM sync_jobs
		WHERE status = 'pending'
		ORDER BY updated_at ASC, created_at ASC, id ASC
		LIMIT 1`)
	if err == sql.ErrNoRows {
		return nil, ErrNoJob
	}
	if err != nil {
		return nil, fmt.Errorf("select pending job: %w", err)
	}

	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`
		UPDATE sync_jobs SET status = ?, updated_at = ?
		WHERE id = ? AND status = 'pending'`),
		models.StatusInProgress, now, job.ID)
	if err != nil {
		return nil, fmt.Errorf("claim job: %w", err)
	}

	rows, _ := res.RowsAffected()
	if rows == 0 {
		// Another claimer won the race.
		return nil, ErrNoJob
	}

	job.Status = models.StatusInProgress
	job.UpdatedAt = now
	s.logger.Debug("job claimed", "job_id", job.ID, "article", job.ArticleRef, "retry_count", job.RetryCount)
	return &job, nil
}

// Complete marks a job done. No-op if the job is already terminal.
func (s *Store) Complete(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		UPDATE sync_jobs SET status = ?, updated_at = ?
		WHERE id = ? AND status NOT IN ('done', 'manual_review')`),
		models.StatusDone, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	return nil
}

// Requeue returns an in-progress job to pending with the failure recorded.
// updated_at is refreshed, which places the job at the tail of the pending
// set.
func (s *Store) Requeue(ctx context.Context, id uuid.UUID, errMsg string, retryCount int) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`
		UPDATE sync_jobs SET status = ?, retry_count = ?, error_message = ?, updated_at = ?
		WHERE id = ? AND status = 'in_progress'`),
		models.StatusPending, retryCount, errMsg, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("requeue job: %w", err)
	}

	rows, _ := res.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("requeue job %s: not in progress", id)
	}
	return nil
}

// Escalate moves an in-progress job to the terminal manual_review state,
// retaining the last error message for operator inspection.
func (s *Store) Escalate(ctx context.Context, id uuid.UUID, errMsg string, retryCount int) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`
		UPDATE sync_jobs SET status = ?, retry_count = ?, error_message = ?, updated_at = ?
		WHERE id = ? AND status = 'in_progress'`),
		models.StatusManualReview, retryCount, errMsg, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("escalate job: %w", err)
	}

	rows, _ := res.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("escalate job %s: not in progress", id)
	}
	return nil
}

// RecoverInFlight returns every in_progress job to pending and reports how
// many were recovered. Called once at worker startup, before the first
// claim: with a single worker, any in_progress row at that point is a job
// interrupted by a crash or shutdown, not live work.
func (s *Store) RecoverInFlight(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`
		UPDATE sync_jobs SET status = ?, updated_at = ?
		WHERE status = 'in_progress'`),
		models.StatusPending, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("recover in-flight jobs: %w", err)
	}

	rows, _ := res.RowsAffected()
	if rows > 0 {
		s.logger.Warn("recovered interrupted jobs", "count", rows)
	}
	return int(rows), nil
}

// GetJob loads one job by id.
func (s *Store) GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	var job models.Job
	err := s.db.GetContext(ctx, &job, s.db.Rebind(`
		SELECT id, article_reference, status, retry_count, error_message, created_at, updated_at
		FROM sync_jobs WHERE id = ?`), id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("job not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return &job, nil
}

// CountByStatus returns job counts per lifecycle state.
func (s *Store) CountByStatus(ctx context.Context) (map[models.JobStatus]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM sync_jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count jobs: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.JobStatus]int)
	for rows.Next() {
		var status models.JobStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan job count: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// ManualReviewJobs returns the most recently escalated jobs with their
// stored error messages. This is the operator inspection surface; the
// pipeline itself never resolves manual_review jobs.
func (s *Store) ManualReviewJobs(ctx context.Context, limit int) ([]models.Job, error) {
	var jobs []models.Job
	err := s.db.SelectContext(ctx, &jobs, s.db.Rebind(`
		SELECT id, article_reference, status, retry_count, error_message, created_at, updated_at
		FROM sync_jobs
		WHERE status = 'manual_review'
		ORDER BY updated_at DESC
		LIMIT ?`), limit)
	if err != nil {
		return nil, fmt.Errorf("list manual review jobs: %w", err)
	}
	return jobs, nil
}

// Setting reads one pipeline_settings value. Missing keys report ok=false.
func (s *Store) Setting(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.GetContext(ctx, &value, s.db.Rebind(
		`SELECT setting_value FROM pipeline_settings WHERE setting_key = ?`), key)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read setting %s: %w", key, err)
	}
	return value, true, nil
}

// SetSetting writes one pipeline_settings value. Used by the operator CLI,
// never by the dispatcher.
func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO pipeline_settings (setting_key, setting_value) VALUES (?, ?)
		ON CONFLICT (setting_key) DO UPDATE SET setting_value = excluded.setting_value`),
		key, value)
	if err != nil {
		return fmt.Errorf("write setting %s: %w", key, err)
	}
	return nil
}

// isUniqueViolation matches the active-article index rejection across both
// drivers without importing their error types: sqlite reports "UNIQUE
// constraint failed", postgres "duplicate key value violates unique
// constraint".
func isUniqueViolation(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint")
}

// SyncEnabled reads the kill-switch. A missing or malformed value defaults
// to enabled; only an explicit "false" disables the pipeline.
func (s *Store) SyncEnabled(ctx context.Context) bool {
	value, ok, err := s.Setting(ctx, SettingSyncEnabled)
	if err != nil {
		s.logger.Warn("kill-switch read failed, leaving pipeline enabled", "error", err)
		return true
	}
	if !ok {
		return true
	}
	return value != "false"
}
