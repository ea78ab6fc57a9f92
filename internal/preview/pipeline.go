package preview

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"mediagen/internal/domain"
)

const (
	clipDuration       = 4 * time.Second
	maxStoredErrorLen  = 500
	maxDownloadBytes   = 256 << 20
	signedRetryTimeout = 15 * time.Minute
)

// AssetStore is the slice of the file store the pipeline needs.
type AssetStore interface {
	Write(ctx context.Context, key string, data []byte) (string, error)
	Read(ctx context.Context, key string) ([]byte, error)
	PublicURL(key string) string
	SignedURL(key string, ttl time.Duration) (string, error)
	KeyFromURL(rawURL string) (string, bool)
}

// Generator derives previews, posters and clips from a finished job's
// output. Failures are recorded on the artifact and swallowed: a broken
// preview must never take the job or its trigger down with it.
type Generator struct {
	Jobs         domain.JobRepository
	Artifacts    domain.ArtifactRepository
	Store        AssetStore
	Frames       FrameSource
	HTTPClient   *http.Client
	MaxDim       int
	ClipsEnabled bool
	Logger       zerolog.Logger
}

// Result maps each attempted artifact kind to its final status.
type Result map[domain.ArtifactKind]domain.ArtifactStatus

// Run derives all artifacts the job's kind calls for. Artifacts already
// ready (or claimed by a concurrent run) are left untouched, so retriggering
// a finished job is cheap and safe.
func (g *Generator) Run(ctx context.Context, jobID string) (Result, error) {
	job, err := g.Jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("load job: %w", err)
	}
	if job.Status != domain.JobStatusSuccess {
		return nil, fmt.Errorf("%w: job %s has no generated output", domain.ErrNoSource, jobID)
	}

	kinds := []domain.ArtifactKind{domain.ArtifactKindPreview}
	if job.Kind == domain.JobKindVideo {
		kinds = []domain.ArtifactKind{domain.ArtifactKindPoster}
		if g.ClipsEnabled {
			kinds = append(kinds, domain.ArtifactKindClip)
		}
	}

	var source []byte
	result := make(Result, len(kinds))
	for _, kind := range kinds {
		claimed, err := g.Artifacts.Claim(ctx, job.ID, kind)
		if err != nil {
			g.Logger.Error().Err(err).Str("job_id", job.ID).Str("kind", string(kind)).
				Msg("claim artifact")
			continue
		}
		if !claimed {
			result[kind] = g.currentStatus(ctx, job.ID, kind)
			continue
		}

		if source == nil {
			source, err = g.fetchSource(ctx, job)
			if err != nil {
				result[kind] = g.fail(ctx, job.ID, kind, err)
				continue
			}
		}

		data, key, err := g.produce(ctx, job, kind, source)
		if err != nil {
			result[kind] = g.fail(ctx, job.ID, kind, err)
			continue
		}
		storedKey, err := g.Store.Write(ctx, key, data)
		if err != nil {
			result[kind] = g.fail(ctx, job.ID, kind, err)
			continue
		}
		if err := g.Artifacts.MarkReady(ctx, job.ID, kind, storedKey); err != nil {
			g.Logger.Error().Err(err).Str("job_id", job.ID).Str("kind", string(kind)).
				Msg("mark artifact ready")
			result[kind] = domain.ArtifactStatusProcessing
			continue
		}
		g.Logger.Info().Str("job_id", job.ID).Str("kind", string(kind)).Str("path", storedKey).
			Msg("artifact ready")
		result[kind] = domain.ArtifactStatusReady
	}
	return result, nil
}

func (g *Generator) produce(ctx context.Context, job *domain.Job, kind domain.ArtifactKind, source []byte) ([]byte, string, error) {
	maxDim := g.MaxDim
	if maxDim <= 0 {
		maxDim = 512
	}
	switch kind {
	case domain.ArtifactKindPreview:
		data, err := RenderPreview(source, maxDim)
		if err != nil {
			return nil, "", err
		}
		return data, fmt.Sprintf("%s/previews/%s_preview.jpg", job.UserID, job.ID), nil
	case domain.ArtifactKindPoster:
		frame, err := g.Frames.BestFrame(ctx, source)
		if err != nil {
			return nil, "", fmt.Errorf("extract poster frame: %w", err)
		}
		data, err := RenderPreview(frame, maxDim)
		if err != nil {
			return nil, "", err
		}
		return data, fmt.Sprintf("%s/posters/%s_poster.jpg", job.UserID, job.ID), nil
	case domain.ArtifactKindClip:
		data, err := g.Frames.Clip(ctx, source, clipDuration)
		if err != nil {
			return nil, "", fmt.Errorf("render clip: %w", err)
		}
		return data, fmt.Sprintf("%s/clips/%s_clip.mp4", job.UserID, job.ID), nil
	default:
		return nil, "", fmt.Errorf("unknown artifact kind %q", kind)
	}
}

// fetchSource resolves the job's output media. Stored keys are read from the
// file store; remote URLs are downloaded. A 400/403 on a URL pointing into
// our own store usually means an expired signature, so those get one retry
// with a fresh signed URL.
func (g *Generator) fetchSource(ctx context.Context, job *domain.Job) ([]byte, error) {
	ref, isPath := job.SourceRef()
	if ref == "" {
		return nil, domain.ErrNoSource
	}
	if isPath {
		data, err := g.Store.Read(ctx, ref)
		if err != nil {
			return nil, fmt.Errorf("read stored source: %w", err)
		}
		return data, nil
	}

	data, status, err := g.download(ctx, ref)
	if err == nil {
		return data, nil
	}
	if status != http.StatusForbidden && status != http.StatusBadRequest {
		return nil, err
	}
	key, ok := g.Store.KeyFromURL(ref)
	if !ok {
		return nil, err
	}
	signed, signErr := g.Store.SignedURL(key, signedRetryTimeout)
	if signErr != nil {
		return nil, err
	}
	g.Logger.Debug().Str("job_id", job.ID).Msg("source url rejected, retrying with fresh signature")
	data, _, err = g.download(ctx, signed)
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (g *Generator) download(ctx context.Context, rawURL string) ([]byte, int, error) {
	client := g.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("build download request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("download source: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, resp.StatusCode, fmt.Errorf("download source: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDownloadBytes))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read source body: %w", err)
	}
	return data, resp.StatusCode, nil
}

func (g *Generator) fail(ctx context.Context, jobID string, kind domain.ArtifactKind, cause error) domain.ArtifactStatus {
	msg := cause.Error()
	if len(msg) > maxStoredErrorLen {
		msg = msg[:maxStoredErrorLen]
	}
	g.Logger.Warn().Str("job_id", jobID).Str("kind", string(kind)).Str("cause", msg).
		Msg("artifact generation failed")
	if err := g.Artifacts.MarkFailed(ctx, jobID, kind, msg); err != nil {
		g.Logger.Error().Err(err).Str("job_id", jobID).Str("kind", string(kind)).
			Msg("mark artifact failed")
	}
	return domain.ArtifactStatusFailed
}

func (g *Generator) currentStatus(ctx context.Context, jobID string, kind domain.ArtifactKind) domain.ArtifactStatus {
	artifact, err := g.Artifacts.Get(ctx, jobID, kind)
	if err != nil {
		return domain.ArtifactStatusNone
	}
	return artifact.Status
}
