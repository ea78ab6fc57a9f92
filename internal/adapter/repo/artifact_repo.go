package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"mediagen/internal/domain"
	"mediagen/internal/infra"
)

// ArtifactRepositoryPG implements domain.ArtifactRepository on PostgreSQL.
type ArtifactRepositoryPG struct {
	db infra.SQLExecutor
}

func NewArtifactRepository(db infra.SQLExecutor) *ArtifactRepositoryPG {
	return &ArtifactRepositoryPG{db: db}
}

// Get fetches the artifact row for a job/kind pair.
func (r *ArtifactRepositoryPG) Get(ctx context.Context, jobID string, kind domain.ArtifactKind) (*domain.Artifact, error) {
	query := `
SELECT job_id, kind, status, COALESCE(storage_path, ''), COALESCE(error, ''), updated_at
FROM artifacts
WHERE job_id = $1 AND kind = $2`
	row := r.db.QueryRow(ctx, query, jobID, string(kind))
	var (
		a      domain.Artifact
		k      string
		status string
	)
	if err := row.Scan(&a.JobID, &k, &status, &a.StoragePath, &a.Error, &a.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	a.Kind = domain.ArtifactKind(k)
	a.Status = domain.ArtifactStatus(status)
	return &a, nil
}

// Claim flips an absent/none/failed artifact to processing in one statement.
// The conditional upsert is the soft lock: a row already processing or ready
// updates nothing and the claim is reported lost.
func (r *ArtifactRepositoryPG) Claim(ctx context.Context, jobID string, kind domain.ArtifactKind) (bool, error) {
	query := `
INSERT INTO artifacts (job_id, kind, status, updated_at)
VALUES ($1, $2, $3, now())
ON CONFLICT (job_id, kind) DO UPDATE
SET status = $3, error = NULL, updated_at = now()
WHERE artifacts.status IN ($4, $5)
RETURNING job_id`
	row := r.db.QueryRow(ctx, query, jobID, string(kind),
		string(domain.ArtifactStatusProcessing),
		string(domain.ArtifactStatusNone), string(domain.ArtifactStatusFailed))
	var id string
	if err := row.Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("claim artifact: %w", err)
	}
	return true, nil
}

func (r *ArtifactRepositoryPG) MarkReady(ctx context.Context, jobID string, kind domain.ArtifactKind, storagePath string) error {
	query := `
UPDATE artifacts
SET status = $3, storage_path = $4, error = NULL, updated_at = now()
WHERE job_id = $1 AND kind = $2`
	tag, err := r.db.Exec(ctx, query, jobID, string(kind), string(domain.ArtifactStatusReady), storagePath)
	if err != nil {
		return fmt.Errorf("mark artifact ready: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *ArtifactRepositoryPG) MarkFailed(ctx context.Context, jobID string, kind domain.ArtifactKind, errMsg string) error {
	query := `
UPDATE artifacts
SET status = $3, error = $4, updated_at = now()
WHERE job_id = $1 AND kind = $2`
	tag, err := r.db.Exec(ctx, query, jobID, string(kind), string(domain.ArtifactStatusFailed), truncateError(errMsg))
	if err != nil {
		return fmt.Errorf("mark artifact failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ResetStuck flips artifacts stuck in processing since before cutoff back to
// none so the next pipeline invocation can pick them up again.
func (r *ArtifactRepositoryPG) ResetStuck(ctx context.Context, cutoff time.Time, limit int) (int, error) {
	query := `
UPDATE artifacts
SET status = $1, updated_at = now()
WHERE (job_id, kind) IN (
    SELECT job_id, kind FROM artifacts
    WHERE status = $2 AND updated_at < $3
    ORDER BY updated_at
    LIMIT $4
)`
	tag, err := r.db.Exec(ctx, query,
		string(domain.ArtifactStatusNone), string(domain.ArtifactStatusProcessing), cutoff, limit)
	if err != nil {
		return 0, fmt.Errorf("reset stuck artifacts: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

var _ domain.ArtifactRepository = (*ArtifactRepositoryPG)(nil)
