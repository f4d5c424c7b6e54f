// Package core defines the media store contract used to resolve the files
// that Media objects point at.
package core

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"
	"time"
)

// Driver identifies a concrete media store implementation.
type Driver string

const (
	// DriverFilesystem stores media files under a local directory.
	DriverFilesystem Driver = "fs"
	// DriverS3 stores media files in an S3 / MinIO compatible bucket.
	DriverS3 Driver = "s3"
	// DriverMemory keeps media in process memory (tests).
	DriverMemory Driver = "memory"
)

// PutOptions specifies optional parameters for Put.
type PutOptions struct {
	ContentType string
	Metadata    map[string]string
}

// Info describes a stored media file.
type Info struct {
	Key          string            `json:"key"`
	Size         int64             `json:"size_bytes"`
	ContentType  string            `json:"content_type,omitempty"`
	ETag         string            `json:"etag,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	LastModified time.Time         `json:"last_modified"`
}

// Store is a minimal S3-like view over the media files of a tree.
type Store interface {
	// Put stores a new file at key and fails with ErrExists if one is present.
	Put(ctx context.Context, key string, r io.Reader, opts PutOptions) (Info, error)
	Get(ctx context.Context, key string) (Info, io.ReadCloser, error)
	// Head returns metadata only. Missing files yield an error matching ErrNotFound.
	Head(ctx context.Context, key string) (Info, error)
	// Delete removes a file and returns (false, nil) if it was absent.
	Delete(ctx context.Context, key string) (bool, error)
	// List returns files whose key has the prefix, ordered by key.
	List(ctx context.Context, prefix string) ([]Info, error)
	Driver() Driver
}

var (
	// ErrNotFound reports a missing media file.
	ErrNotFound = errors.New("media: not found")
	// ErrExists reports a Put over an existing key.
	ErrExists = errors.New("media: already exists")
	// ErrInvalidKey reports a key that is empty or escapes the store root.
	ErrInvalidKey = errors.New("media: invalid key")
)

// NormalizeKey maps a Media.Path value onto a store key. Backslashes become
// slashes, a leading slash is dropped and the path is cleaned, so
// "/photos/a.jpg" and "photos\\a.jpg" address the same file.
func NormalizeKey(p string) (string, error) {
	k := strings.TrimSpace(strings.ReplaceAll(p, "\\", "/"))
	k = strings.TrimLeft(k, "/")
	if k == "" {
		return "", ErrInvalidKey
	}
	k = path.Clean(k)
	if k == "." || k == ".." || strings.HasPrefix(k, "../") {
		return "", ErrInvalidKey
	}
	return k, nil
}

// Exists reports whether key resolves in store. Errors other than
// ErrNotFound are returned unchanged.
func Exists(ctx context.Context, store Store, key string) (bool, error) {
	_, err := store.Head(ctx, key)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return false, err
}
