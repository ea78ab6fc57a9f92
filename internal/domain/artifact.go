package domain

import "time"

// ArtifactKind enumerates derived artifact types.
type ArtifactKind string

const (
	ArtifactKindPreview ArtifactKind = "preview"
	ArtifactKindPoster  ArtifactKind = "poster"
	ArtifactKindClip    ArtifactKind = "clip"
)

// ArtifactStatus enumerates artifact pipeline states. "processing" doubles as
// a soft lock: only one pipeline run may own an artifact at a time.
type ArtifactStatus string

const (
	ArtifactStatusNone       ArtifactStatus = "none"
	ArtifactStatusProcessing ArtifactStatus = "processing"
	ArtifactStatusReady      ArtifactStatus = "ready"
	ArtifactStatusFailed     ArtifactStatus = "failed"
)

// Artifact is a derived preview/poster produced from a completed job's source
// media. Once ready, regeneration is skipped.
type Artifact struct {
	JobID       string
	Kind        ArtifactKind
	Status      ArtifactStatus
	StoragePath string
	Error       string
	UpdatedAt   time.Time
}
