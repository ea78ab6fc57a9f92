package storage

import (
	"context"
	"net/url"
	"strings"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *FileStore {
	t.Helper()
	store, err := NewFileStore(t.TempDir(), "http://localhost:8080/files", "test-secret")
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	return store
}

func TestWriteAndReadRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	key, err := store.Write(ctx, "user-1/previews/job-1_preview.jpg", []byte("jpeg-bytes"))
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if key != "user-1/previews/job-1_preview.jpg" {
		t.Fatalf("key = %q", key)
	}
	data, err := store.Read(ctx, key)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(data) != "jpeg-bytes" {
		t.Fatalf("data = %q", data)
	}
}

func TestWriteRejectsTraversal(t *testing.T) {
	store := newTestStore(t)
	for _, key := range []string{"", "../outside.txt", "a/../../b"} {
		if _, err := store.Write(context.Background(), key, []byte("x")); err == nil {
			t.Fatalf("key %q accepted, want error", key)
		}
	}
}

func TestSignedURLVerifies(t *testing.T) {
	store := newTestStore(t)
	signed, err := store.SignedURL("user-1/previews/p.jpg", time.Minute)
	if err != nil {
		t.Fatalf("SignedURL: %v", err)
	}
	u, err := url.Parse(signed)
	if err != nil {
		t.Fatalf("parse signed url: %v", err)
	}
	key := strings.TrimPrefix(u.Path, "/files/")
	if err := store.VerifySignedQuery(key, u.Query()); err != nil {
		t.Fatalf("VerifySignedQuery: %v", err)
	}

	q := u.Query()
	q.Set("sig", "deadbeef")
	if err := store.VerifySignedQuery(key, q); err == nil {
		t.Fatalf("tampered signature accepted")
	}
}

func TestSignedURLExpires(t *testing.T) {
	store := newTestStore(t)
	signed, err := store.SignedURL("user-1/previews/p.jpg", time.Minute)
	if err != nil {
		t.Fatalf("SignedURL: %v", err)
	}
	u, _ := url.Parse(signed)
	store.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	if err := store.VerifySignedQuery("user-1/previews/p.jpg", u.Query()); err == nil {
		t.Fatalf("expired signature accepted")
	}
}

func TestKeyFromURL(t *testing.T) {
	store := newTestStore(t)

	key, ok := store.KeyFromURL("http://localhost:8080/files/user-1/clips/c.mp4?sig=abc")
	if !ok || key != "user-1/clips/c.mp4" {
		t.Fatalf("KeyFromURL = (%q, %v)", key, ok)
	}
	if _, ok := store.KeyFromURL("https://cdn.provider.example/output.png"); ok {
		t.Fatalf("foreign URL recognized as local")
	}
}
