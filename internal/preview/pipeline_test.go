package preview

import (
	"context"
	"image/color"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"mediagen/internal/domain"
	"mediagen/internal/storage"
)

type stubJobs struct {
	jobs map[string]*domain.Job
}

func (s *stubJobs) Create(context.Context, *domain.Job) error { return nil }

func (s *stubJobs) GetByID(_ context.Context, id string) (*domain.Job, error) {
	job, ok := s.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *job
	return &copied, nil
}

func (s *stubJobs) ListByIDs(context.Context, []string) ([]domain.Job, error) { return nil, nil }
func (s *stubJobs) UpdateStatus(context.Context, string, domain.JobStatus, *string) error {
	return nil
}
func (s *stubJobs) SetTaskID(context.Context, string, string) error        { return nil }
func (s *stubJobs) SetResult(context.Context, string, []string, string) error { return nil }
func (s *stubJobs) FindZombies(context.Context, time.Time, int) ([]domain.Job, error) {
	return nil, nil
}

type memArtifacts struct {
	mu    sync.Mutex
	items map[string]*domain.Artifact
}

func newMemArtifacts() *memArtifacts {
	return &memArtifacts{items: make(map[string]*domain.Artifact)}
}

func artifactKey(jobID string, kind domain.ArtifactKind) string {
	return jobID + "/" + string(kind)
}

func (m *memArtifacts) Get(_ context.Context, jobID string, kind domain.ArtifactKind) (*domain.Artifact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.items[artifactKey(jobID, kind)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *a
	return &copied, nil
}

func (m *memArtifacts) Claim(_ context.Context, jobID string, kind domain.ArtifactKind) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := artifactKey(jobID, kind)
	a, ok := m.items[key]
	if !ok {
		m.items[key] = &domain.Artifact{JobID: jobID, Kind: kind, Status: domain.ArtifactStatusProcessing}
		return true, nil
	}
	if a.Status == domain.ArtifactStatusNone || a.Status == domain.ArtifactStatusFailed {
		a.Status = domain.ArtifactStatusProcessing
		return true, nil
	}
	return false, nil
}

func (m *memArtifacts) MarkReady(_ context.Context, jobID string, kind domain.ArtifactKind, storagePath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := m.items[artifactKey(jobID, kind)]
	a.Status = domain.ArtifactStatusReady
	a.StoragePath = storagePath
	a.Error = ""
	return nil
}

func (m *memArtifacts) MarkFailed(_ context.Context, jobID string, kind domain.ArtifactKind, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := m.items[artifactKey(jobID, kind)]
	a.Status = domain.ArtifactStatusFailed
	a.Error = errMsg
	return nil
}

func (m *memArtifacts) ResetStuck(context.Context, time.Time, int) (int, error) { return 0, nil }

type stubFrames struct {
	frame []byte
	clip  []byte
}

func (s *stubFrames) BestFrame(context.Context, []byte) ([]byte, error) {
	return s.frame, nil
}

func (s *stubFrames) Clip(context.Context, []byte, time.Duration) ([]byte, error) {
	return s.clip, nil
}

func successJob(id string, kind domain.JobKind, assetURL string) *domain.Job {
	return &domain.Job{
		ID:       id,
		UserID:   "user-1",
		Kind:     kind,
		Status:   domain.JobStatusSuccess,
		AssetURL: assetURL,
	}
}

func newGenerator(t *testing.T, jobs *stubJobs, artifacts *memArtifacts, store *storage.FileStore) *Generator {
	t.Helper()
	return &Generator{
		Jobs:       jobs,
		Artifacts:  artifacts,
		Store:      store,
		Frames:     &stubFrames{},
		HTTPClient: &http.Client{Timeout: 5 * time.Second},
		MaxDim:     512,
		Logger:     zerolog.Nop(),
	}
}

func TestRunPhotoPreview(t *testing.T) {
	source := encodePNG(t, solidImage(1024, 1024, color.NRGBA{R: 180, G: 90, B: 40, A: 255}))
	var downloads atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		downloads.Add(1)
		w.Write(source)
	}))
	defer server.Close()

	store, err := storage.NewFileStore(t.TempDir(), "http://localhost/files", "secret")
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	jobs := &stubJobs{jobs: map[string]*domain.Job{
		"job-1": successJob("job-1", domain.JobKindPhoto, server.URL+"/out.png"),
	}}
	artifacts := newMemArtifacts()
	gen := newGenerator(t, jobs, artifacts, store)

	result, err := gen.Run(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result[domain.ArtifactKindPreview] != domain.ArtifactStatusReady {
		t.Fatalf("preview status = %s", result[domain.ArtifactKindPreview])
	}

	stored, err := artifacts.Get(context.Background(), "job-1", domain.ArtifactKindPreview)
	if err != nil {
		t.Fatalf("Get artifact: %v", err)
	}
	if stored.StoragePath != "user-1/previews/job-1_preview.jpg" {
		t.Fatalf("storage path = %q", stored.StoragePath)
	}
	if _, err := store.Read(context.Background(), stored.StoragePath); err != nil {
		t.Fatalf("preview file missing: %v", err)
	}

	// A second trigger finds the artifact ready and downloads nothing.
	result, err = gen.Run(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if result[domain.ArtifactKindPreview] != domain.ArtifactStatusReady {
		t.Fatalf("second run status = %s", result[domain.ArtifactKindPreview])
	}
	if downloads.Load() != 1 {
		t.Fatalf("downloads = %d, want 1", downloads.Load())
	}
}

func TestRunRetriesExpiredSignature(t *testing.T) {
	source := encodePNG(t, solidImage(600, 400, color.NRGBA{R: 100, G: 150, B: 200, A: 255}))
	var downloads atomic.Int64
	mux := http.NewServeMux()
	mux.HandleFunc("/files/", func(w http.ResponseWriter, r *http.Request) {
		downloads.Add(1)
		if r.URL.Query().Get("sig") == "" {
			http.Error(w, "signature required", http.StatusForbidden)
			return
		}
		w.Write(source)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	store, err := storage.NewFileStore(t.TempDir(), server.URL+"/files", "secret")
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	jobs := &stubJobs{jobs: map[string]*domain.Job{
		"job-1": successJob("job-1", domain.JobKindPhoto, server.URL+"/files/user-1/uploads/in.png"),
	}}
	artifacts := newMemArtifacts()
	gen := newGenerator(t, jobs, artifacts, store)

	result, err := gen.Run(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result[domain.ArtifactKindPreview] != domain.ArtifactStatusReady {
		t.Fatalf("preview status = %s", result[domain.ArtifactKindPreview])
	}
	if downloads.Load() != 2 {
		t.Fatalf("downloads = %d, want 2 (403 then signed retry)", downloads.Load())
	}
}

func TestRunFailureIsRecordedNotReturned(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "gone", http.StatusInternalServerError)
	}))
	defer server.Close()

	store, err := storage.NewFileStore(t.TempDir(), "http://localhost/files", "secret")
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	jobs := &stubJobs{jobs: map[string]*domain.Job{
		"job-1": successJob("job-1", domain.JobKindPhoto, server.URL+"/out.png"),
	}}
	artifacts := newMemArtifacts()
	gen := newGenerator(t, jobs, artifacts, store)

	result, err := gen.Run(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if result[domain.ArtifactKindPreview] != domain.ArtifactStatusFailed {
		t.Fatalf("preview status = %s, want failed", result[domain.ArtifactKindPreview])
	}
	stored, _ := artifacts.Get(context.Background(), "job-1", domain.ArtifactKindPreview)
	if !strings.Contains(stored.Error, "status 500") {
		t.Fatalf("stored error = %q", stored.Error)
	}
}

func TestRunVideoPosterAndClip(t *testing.T) {
	frame := encodePNG(t, solidImage(1280, 720, color.NRGBA{R: 220, G: 200, B: 180, A: 255}))
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("fake-video-bytes"))
	}))
	defer server.Close()

	store, err := storage.NewFileStore(t.TempDir(), "http://localhost/files", "secret")
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	jobs := &stubJobs{jobs: map[string]*domain.Job{
		"job-v": successJob("job-v", domain.JobKindVideo, server.URL+"/out.mp4"),
	}}
	artifacts := newMemArtifacts()
	gen := newGenerator(t, jobs, artifacts, store)
	gen.Frames = &stubFrames{frame: frame, clip: []byte("clip-bytes")}
	gen.ClipsEnabled = true

	result, err := gen.Run(context.Background(), "job-v")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result[domain.ArtifactKindPoster] != domain.ArtifactStatusReady {
		t.Fatalf("poster status = %s", result[domain.ArtifactKindPoster])
	}
	if result[domain.ArtifactKindClip] != domain.ArtifactStatusReady {
		t.Fatalf("clip status = %s", result[domain.ArtifactKindClip])
	}

	poster, _ := artifacts.Get(context.Background(), "job-v", domain.ArtifactKindPoster)
	if poster.StoragePath != "user-1/posters/job-v_poster.jpg" {
		t.Fatalf("poster path = %q", poster.StoragePath)
	}
	clip, _ := artifacts.Get(context.Background(), "job-v", domain.ArtifactKindClip)
	if clip.StoragePath != "user-1/clips/job-v_clip.mp4" {
		t.Fatalf("clip path = %q", clip.StoragePath)
	}
}

func TestRunRejectsUnfinishedJob(t *testing.T) {
	job := successJob("job-1", domain.JobKindPhoto, "https://cdn/out.png")
	job.Status = domain.JobStatusGenerating
	jobs := &stubJobs{jobs: map[string]*domain.Job{"job-1": job}}
	store, err := storage.NewFileStore(t.TempDir(), "http://localhost/files", "secret")
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	gen := newGenerator(t, jobs, newMemArtifacts(), store)

	if _, err := gen.Run(context.Background(), "job-1"); err == nil {
		t.Fatalf("unfinished job accepted")
	}
}
