package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"mediagen/internal/domain"
	"mediagen/internal/infra"
)

// maxStoredErrorLen bounds the error column so provider stack traces never
// land in the store verbatim.
const maxStoredErrorLen = 500

// jobOptionalColumns are columns that older deployments may not have. The
// writer drops them from the insert when the store reports them unknown.
var jobOptionalColumns = map[string]bool{
	"source_path":   true,
	"batch_id":      true,
	"thumbnail_url": true,
	"result_url":    true,
}

// JobRepositoryPG implements domain.JobRepository on PostgreSQL. Inserts are
// schema tolerant: an unknown optional column is dropped and remembered for
// the life of the process, and a foreign-key violation triggers one owner
// provisioning round trip before retrying.
type JobRepositoryPG struct {
	db     infra.SQLExecutor
	owners domain.OwnerProvisioner
	logger zerolog.Logger

	mu      sync.Mutex
	missing map[string]bool
}

// NewJobRepository creates a job repository backed by PostgreSQL.
func NewJobRepository(db infra.SQLExecutor, owners domain.OwnerProvisioner, logger zerolog.Logger) *JobRepositoryPG {
	return &JobRepositoryPG{
		db:      db,
		owners:  owners,
		logger:  logger,
		missing: make(map[string]bool),
	}
}

type jobColumn struct {
	name  string
	value any
}

// Create inserts a new job record, adapting to missing optional columns.
// Attempts are bounded by the number of optional columns plus one.
func (r *JobRepositoryPG) Create(ctx context.Context, job *domain.Job) error {
	cols := []jobColumn{
		{"id", job.ID},
		{"user_id", job.UserID},
		{"kind", string(job.Kind)},
		{"status", string(job.Status)},
		{"model", job.Model},
		{"prompt", job.Prompt},
		{"cost_charged", job.CostCharged},
		{"source_path", nullString(job.SourcePath)},
		{"batch_id", nullString(job.BatchID)},
		{"thumbnail_url", nullString(job.ThumbnailURL)},
		{"result_url", nullString(job.ResultURL)},
	}

	provisioned := false
	maxAttempts := len(jobOptionalColumns) + 1
	for attempt := 0; attempt < maxAttempts; attempt++ {
		query, args := r.buildInsert(cols)
		_, err := r.db.Exec(ctx, query, args...)
		if err == nil {
			return nil
		}

		if col, ok := IsUndefinedColumn(err); ok && jobOptionalColumns[col] {
			r.logger.Warn().Str("column", col).Msg("jobs: store lacks optional column, dropping")
			r.rememberMissing(col)
			continue
		}
		if IsForeignKeyViolation(err) && !provisioned && r.owners != nil {
			provisioned = true
			if provErr := r.owners.EnsureOwner(ctx, job.UserID); provErr != nil {
				return fmt.Errorf("provision owner %s: %w", job.UserID, provErr)
			}
			continue
		}
		return fmt.Errorf("insert job: %w", err)
	}
	return fmt.Errorf("insert job: retries exhausted after %d attempts", maxAttempts)
}

func (r *JobRepositoryPG) buildInsert(cols []jobColumn) (string, []any) {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(cols))
	placeholders := make([]string, 0, len(cols))
	args := make([]any, 0, len(cols))
	for _, c := range cols {
		if r.missing[c.name] {
			continue
		}
		names = append(names, c.name)
		placeholders = append(placeholders, fmt.Sprintf("$%d", len(args)+1))
		args = append(args, c.value)
	}
	query := fmt.Sprintf(
		"INSERT INTO jobs (%s) VALUES (%s)",
		strings.Join(names, ", "),
		strings.Join(placeholders, ", "),
	)
	return query, args
}

func (r *JobRepositoryPG) rememberMissing(col string) {
	r.mu.Lock()
	r.missing[col] = true
	r.mu.Unlock()
}

// MissingColumns returns the optional columns discovered absent so far.
func (r *JobRepositoryPG) MissingColumns() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.missing))
	for col := range r.missing {
		out = append(out, col)
	}
	return out
}

const jobSelectColumns = `id, user_id, kind, status, model, prompt,
COALESCE(task_id, ''), cost_charged, refunded,
COALESCE(source_path, ''), COALESCE(asset_url, ''), COALESCE(result_url, ''),
COALESCE(result_urls, 'null'::jsonb), COALESCE(thumbnail_url, ''),
COALESCE(error, ''), COALESCE(batch_id, ''), created_at, updated_at`

// GetByID fetches a job by its identifier.
func (r *JobRepositoryPG) GetByID(ctx context.Context, jobID string) (*domain.Job, error) {
	query := "SELECT " + jobSelectColumns + " FROM jobs WHERE id = $1"
	row := r.db.QueryRow(ctx, query, jobID)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return job, nil
}

// ListByIDs fetches jobs for a set of identifiers; unknown ids are elided.
func (r *JobRepositoryPG) ListByIDs(ctx context.Context, jobIDs []string) ([]domain.Job, error) {
	if len(jobIDs) == 0 {
		return nil, nil
	}
	query := "SELECT " + jobSelectColumns + " FROM jobs WHERE id = ANY($1)"
	rows, err := r.db.Query(ctx, query, jobIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

// UpdateStatus moves a job along the state machine. A nil errMsg leaves the
// stored error untouched.
func (r *JobRepositoryPG) UpdateStatus(ctx context.Context, jobID string, status domain.JobStatus, errMsg *string) error {
	query := `
UPDATE jobs
SET status = $2,
    error = COALESCE($3, error),
    updated_at = now()
WHERE id = $1`
	var truncated *string
	if errMsg != nil {
		t := truncateError(*errMsg)
		truncated = &t
	}
	tag, err := r.db.Exec(ctx, query, jobID, string(status), truncated)
	if err != nil {
		return fmt.Errorf("update job status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// SetTaskID persists the provider task id and marks the job generating.
func (r *JobRepositoryPG) SetTaskID(ctx context.Context, jobID, taskID string) error {
	query := `
UPDATE jobs
SET task_id = $2,
    status = $3,
    updated_at = now()
WHERE id = $1`
	tag, err := r.db.Exec(ctx, query, jobID, taskID, string(domain.JobStatusGenerating))
	if err != nil {
		return fmt.Errorf("set task id: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// SetResult records terminal success output.
func (r *JobRepositoryPG) SetResult(ctx context.Context, jobID string, resultURLs []string, assetURL string) error {
	urlsJSON, err := json.Marshal(resultURLs)
	if err != nil {
		return fmt.Errorf("encode result urls: %w", err)
	}
	query := `
UPDATE jobs
SET status = $2,
    result_urls = $3,
    asset_url = $4,
    error = NULL,
    updated_at = now()
WHERE id = $1`
	tag, err := r.db.Exec(ctx, query, jobID, string(domain.JobStatusSuccess), urlsJSON, nullString(assetURL))
	if err != nil {
		return fmt.Errorf("set job result: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// FindZombies returns non-terminal jobs with no task id created before cutoff.
func (r *JobRepositoryPG) FindZombies(ctx context.Context, cutoff time.Time, limit int) ([]domain.Job, error) {
	query := "SELECT " + jobSelectColumns + ` FROM jobs
WHERE status IN ($1, $2)
  AND task_id IS NULL
  AND created_at < $3
ORDER BY created_at
LIMIT $4`
	rows, err := r.db.Query(ctx, query,
		string(domain.JobStatusPending), string(domain.JobStatusGenerating), cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

// FindMissingArtifacts returns recently succeeded jobs that have no ready
// artifact yet. The background worker uses it to backfill previews whose
// trigger never arrived.
func (r *JobRepositoryPG) FindMissingArtifacts(ctx context.Context, since time.Time, limit int) ([]domain.Job, error) {
	query := "SELECT " + jobSelectColumns + ` FROM jobs
WHERE status = $1
  AND updated_at > $2
  AND NOT EXISTS (
      SELECT 1 FROM artifacts a
      WHERE a.job_id = jobs.id AND a.status = 'ready'
  )
ORDER BY updated_at
LIMIT $3`
	rows, err := r.db.Query(ctx, query, string(domain.JobStatusSuccess), since, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

func scanJob(row pgx.Row) (*domain.Job, error) {
	var (
		job      domain.Job
		kind     string
		status   string
		urlsJSON []byte
	)
	if err := row.Scan(
		&job.ID,
		&job.UserID,
		&kind,
		&status,
		&job.Model,
		&job.Prompt,
		&job.TaskID,
		&job.CostCharged,
		&job.Refunded,
		&job.SourcePath,
		&job.AssetURL,
		&job.ResultURL,
		&urlsJSON,
		&job.ThumbnailURL,
		&job.Error,
		&job.BatchID,
		&job.CreatedAt,
		&job.UpdatedAt,
	); err != nil {
		return nil, err
	}
	job.Kind = domain.JobKind(kind)
	job.Status = domain.JobStatus(status)
	if len(urlsJSON) > 0 && string(urlsJSON) != "null" {
		if err := json.Unmarshal(urlsJSON, &job.ResultURLs); err != nil {
			return nil, fmt.Errorf("decode result urls: %w", err)
		}
	}
	return &job, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func truncateError(msg string) string {
	if len(msg) <= maxStoredErrorLen {
		return msg
	}
	return msg[:maxStoredErrorLen]
}

var _ domain.JobRepository = (*JobRepositoryPG)(nil)
