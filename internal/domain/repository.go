package domain

import (
	"context"
	"time"
)

// JobRepository defines persistence for job records.
type JobRepository interface {
	// Create inserts a new job. Implementations tolerate schema drift on
	// optional columns and recover from a missing owner row.
	Create(ctx context.Context, job *Job) error
	GetByID(ctx context.Context, jobID string) (*Job, error)
	ListByIDs(ctx context.Context, jobIDs []string) ([]Job, error)
	// UpdateStatus moves a job along the state machine. errMsg, when non-nil,
	// replaces the stored error (truncated by the implementation).
	UpdateStatus(ctx context.Context, jobID string, status JobStatus, errMsg *string) error
	// SetTaskID persists the provider task id and marks the job generating.
	SetTaskID(ctx context.Context, jobID, taskID string) error
	// SetResult records terminal success output.
	SetResult(ctx context.Context, jobID string, resultURLs []string, assetURL string) error
	// FindZombies returns up to limit non-terminal jobs with no task id
	// created before cutoff.
	FindZombies(ctx context.Context, cutoff time.Time, limit int) ([]Job, error)
}

// CreditLedger performs balance reads, charges and refunds for an owner.
// Charge and Refund must be atomic with their transaction record; Refund is
// exactly-once per job across processes.
type CreditLedger interface {
	Balance(ctx context.Context, userID string) (int, error)
	// Charge debits amount and returns the new balance, or
	// ErrInsufficientFunds without side effects.
	Charge(ctx context.Context, userID string, amount int, description string) (int, error)
	// Refund credits amount back, referencing the job and a reason. Returns
	// ErrAlreadyRefunded when the job's charge was refunded before.
	Refund(ctx context.Context, userID, jobID string, amount int, reason string) error
	Grant(ctx context.Context, userID string, amount int, description string) error
}

// OwnerProvisioner creates the owner-side rows (user, zero credit balance)
// that job inserts foreign-key against.
type OwnerProvisioner interface {
	EnsureOwner(ctx context.Context, userID string) error
}

// ArtifactRepository handles persistence for derived artifacts.
type ArtifactRepository interface {
	Get(ctx context.Context, jobID string, kind ArtifactKind) (*Artifact, error)
	// Claim flips none/failed (or absent) to processing. It returns false
	// when another run already owns the artifact or it is ready.
	Claim(ctx context.Context, jobID string, kind ArtifactKind) (bool, error)
	MarkReady(ctx context.Context, jobID string, kind ArtifactKind, storagePath string) error
	MarkFailed(ctx context.Context, jobID string, kind ArtifactKind, errMsg string) error
	// ResetStuck flips artifacts stuck in processing since before cutoff back
	// to none, up to limit rows, returning how many were reset.
	ResetStuck(ctx context.Context, cutoff time.Time, limit int) (int, error)
}
