package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// ErrBlobNotFound is returned for keys that were never written or were revoked.
var ErrBlobNotFound = errors.New("storage: blob not found")

// Blob is a materialized payload addressable through a local URL.
type Blob struct {
	Key         string
	URL         string
	ContentType string
	Size        int
}

// BlobStore keeps fetched result images on the local filesystem so the
// dashboard can hand the browser a URL instead of the bytes.
type BlobStore struct {
	basePath  string
	urlPrefix string
}

// NewBlobStore initializes a store rooted at basePath. URLs are urlPrefix + "/" + key.
func NewBlobStore(basePath, urlPrefix string) (*BlobStore, error) {
	basePath = strings.TrimSpace(basePath)
	if basePath == "" {
		return nil, errors.New("storage: base path is required")
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("storage: ensure base path: %w", err)
	}
	return &BlobStore{basePath: basePath, urlPrefix: strings.TrimRight(urlPrefix, "/")}, nil
}

// Put writes data under a fresh key and returns its local URL.
func (s *BlobStore) Put(ctx context.Context, data []byte, contentType string) (Blob, error) {
	if s == nil {
		return Blob{}, errors.New("storage: no store configured")
	}
	if err := ctx.Err(); err != nil {
		return Blob{}, err
	}
	key := uuid.NewString() + extensionFor(contentType)
	fullPath := filepath.Join(s.basePath, key)
	if err := os.WriteFile(fullPath, data, 0o644); err != nil {
		return Blob{}, fmt.Errorf("storage: write blob: %w", err)
	}
	return Blob{Key: key, URL: s.URLFor(key), ContentType: contentType, Size: len(data)}, nil
}

// URLFor returns the URL a key is served under.
func (s *BlobStore) URLFor(key string) string {
	return s.urlPrefix + "/" + key
}

// KeyFromURL is the inverse of URLFor. It returns "" for foreign URLs.
func (s *BlobStore) KeyFromURL(url string) string {
	prefix := s.urlPrefix + "/"
	if !strings.HasPrefix(url, prefix) {
		return ""
	}
	return strings.TrimPrefix(url, prefix)
}

// Path resolves a key to its file, refusing keys that escape the root.
func (s *BlobStore) Path(key string) (string, error) {
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return "", err
	}
	fullPath := filepath.Join(s.basePath, filepath.FromSlash(cleanKey))
	if _, err := os.Stat(fullPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", ErrBlobNotFound
		}
		return "", fmt.Errorf("storage: stat blob: %w", err)
	}
	return fullPath, nil
}

// Revoke deletes the blob behind key. Revoking twice is not an error.
func (s *BlobStore) Revoke(key string) error {
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return err
	}
	fullPath := filepath.Join(s.basePath, filepath.FromSlash(cleanKey))
	if err := os.Remove(fullPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("storage: remove blob: %w", err)
	}
	return nil
}

func extensionFor(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	switch mediaType {
	case "image/png":
		return ".png"
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	}
	return ""
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
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", errors.New("storage: invalid key")
	}
	return cleaned, nil
}
