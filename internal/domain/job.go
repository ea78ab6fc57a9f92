package domain

import "time"

// JobKind enumerates supported generation request categories.
type JobKind string

const (
	JobKindPhoto JobKind = "photo"
	JobKindVideo JobKind = "video"
)

// JobStatus enumerates job lifecycle states. Transitions are monotonic:
// pending -> processing -> generating -> success|failed. Nothing moves a job
// back into pending.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusGenerating JobStatus = "generating"
	JobStatusSuccess    JobStatus = "success"
	JobStatusFailed     JobStatus = "failed"
)

// Terminal reports whether a status is an end state.
func (s JobStatus) Terminal() bool {
	return s == JobStatusSuccess || s == JobStatusFailed
}

// Job is one generation request and its lifecycle record.
type Job struct {
	ID     string
	UserID string
	Kind   JobKind
	Status JobStatus

	Model  string
	Prompt string

	// TaskID is the provider task identifier. Empty until a submission
	// completed successfully.
	TaskID string

	// CostCharged is debited exactly once before the submission attempt.
	// Refunded tracks that the matching refund was issued; it is flipped by
	// the ledger, never by callers.
	CostCharged int
	Refunded    bool

	// Source reference candidates, resolved by priority when the artifact
	// pipeline needs the original media. SourcePath is a storage key inside
	// our own object store; the URL fields come from the provider.
	SourcePath   string
	AssetURL     string
	ResultURL    string
	ResultURLs   []string
	ThumbnailURL string

	Error   string
	BatchID string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// SourceRef resolves the job's source media reference by priority: direct
// storage path, primary asset URL, result URL, first of the result-URL list,
// thumbnail URL. The boolean reports whether the ref is a storage key rather
// than a URL.
func (j *Job) SourceRef() (ref string, isPath bool) {
	switch {
	case j.SourcePath != "":
		return j.SourcePath, true
	case j.AssetURL != "":
		return j.AssetURL, false
	case j.ResultURL != "":
		return j.ResultURL, false
	case len(j.ResultURLs) > 0 && j.ResultURLs[0] != "":
		return j.ResultURLs[0], false
	case j.ThumbnailURL != "":
		return j.ThumbnailURL, false
	}
	return "", false
}
