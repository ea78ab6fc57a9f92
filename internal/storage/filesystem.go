package storage

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// FileStore persists assets onto the local filesystem and hands out
// HMAC-signed URLs for them. It is intended for single-host deployments
// where an object storage service is not available.
type FileStore struct {
	basePath   string
	baseURL    string
	signSecret []byte
	now        func() time.Time
}

// NewFileStore initializes a FileStore rooted at basePath. baseURL is the
// public prefix files are served under, signSecret keys the signed URLs.
func NewFileStore(basePath, baseURL, signSecret string) (*FileStore, error) {
	basePath = strings.TrimSpace(basePath)
	if basePath == "" {
		return nil, errors.New("storage: base path is required")
	}
	if signSecret == "" {
		return nil, errors.New("storage: sign secret is required")
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("storage: ensure base path: %w", err)
	}
	return &FileStore{
		basePath:   basePath,
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		signSecret: []byte(signSecret),
		now:        time.Now,
	}, nil
}

// BasePath returns the configured root directory.
func (s *FileStore) BasePath() string {
	if s == nil {
		return ""
	}
	return s.basePath
}

// Write persists the provided bytes at the given relative key and returns the
// canonicalized storage key. Keys are cleaned to prevent directory traversal.
func (s *FileStore) Write(ctx context.Context, key string, data []byte) (string, error) {
	if s == nil {
		return "", errors.New("storage: no store configured")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return "", err
	}
	fullPath := filepath.Join(s.basePath, filepath.FromSlash(cleanKey))
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return "", fmt.Errorf("storage: ensure directory: %w", err)
	}
	if err := os.WriteFile(fullPath, data, 0o644); err != nil {
		return "", fmt.Errorf("storage: write file: %w", err)
	}
	return cleanKey, nil
}

// Read returns the bytes stored under key.
func (s *FileStore) Read(ctx context.Context, key string) ([]byte, error) {
	if s == nil {
		return nil, errors.New("storage: no store configured")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(s.basePath, filepath.FromSlash(cleanKey)))
	if err != nil {
		return nil, fmt.Errorf("storage: read file: %w", err)
	}
	return data, nil
}

// PublicURL returns the unsigned URL a stored key is served under.
func (s *FileStore) PublicURL(key string) string {
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return ""
	}
	return s.baseURL + "/" + cleanKey
}

// SignedURL returns a URL for key that VerifySignedQuery will accept until
// the ttl elapses.
func (s *FileStore) SignedURL(key string, ttl time.Duration) (string, error) {
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return "", err
	}
	expires := s.now().Add(ttl).Unix()
	sig := s.sign(cleanKey, expires)
	q := url.Values{}
	q.Set("expires", strconv.FormatInt(expires, 10))
	q.Set("sig", sig)
	return s.baseURL + "/" + cleanKey + "?" + q.Encode(), nil
}

// VerifySignedQuery checks the expires/sig pair handed out by SignedURL.
func (s *FileStore) VerifySignedQuery(key string, query url.Values) error {
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return err
	}
	expires, err := strconv.ParseInt(query.Get("expires"), 10, 64)
	if err != nil {
		return errors.New("storage: malformed expiry")
	}
	if s.now().Unix() > expires {
		return errors.New("storage: signature expired")
	}
	want := s.sign(cleanKey, expires)
	if !hmac.Equal([]byte(want), []byte(query.Get("sig"))) {
		return errors.New("storage: signature mismatch")
	}
	return nil
}

// KeyFromURL reports whether rawURL points into this store and, if so, the
// storage key it addresses.
func (s *FileStore) KeyFromURL(rawURL string) (string, bool) {
	if s == nil || s.baseURL == "" {
		return "", false
	}
	trimmed := strings.TrimPrefix(rawURL, s.baseURL+"/")
	if trimmed == rawURL {
		return "", false
	}
	if i := strings.IndexByte(trimmed, '?'); i >= 0 {
		trimmed = trimmed[:i]
	}
	cleanKey, err := sanitizeKey(trimmed)
	if err != nil {
		return "", false
	}
	return cleanKey, true
}

func (s *FileStore) sign(key string, expires int64) string {
	mac := hmac.New(sha256.New, s.signSecret)
	fmt.Fprintf(mac, "%s\n%d", key, expires)
	return hex.EncodeToString(mac.Sum(nil))
}

// sanitizeKey normalizes a key and prevents escaping the storage root.
func sanitizeKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", errors.New("storage: key is required")
	}
	key = strings.ReplaceAll(key, "\\", "/")
	key = strings.TrimPrefix(key, "./")
	key = strings.TrimLeft(key, "/")
	cleaned := filepath.Clean(key)
	cleaned = strings.ReplaceAll(cleaned, "\\", "/")
	if cleaned == "." || strings.HasPrefix(cleaned, "../") {
		return "", errors.New("storage: invalid key")
	}
	return cleaned, nil
}
