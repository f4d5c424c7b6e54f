// Package blob selects and re-exports the media stores that resolve
// Media.Path values. Callers outside the media layer import this package
// rather than the infra implementations.
package blob

import (
	"context"
	"fmt"

	"grampscore/internal/blob/core"
	"grampscore/internal/infra/blob/fs"
	memorystore "grampscore/internal/infra/blob/memory"
	infraS3 "grampscore/internal/infra/blob/s3"
)

type (
	// Driver identifies a media store driver.
	Driver = core.Driver
	// PutOptions configures a media write.
	PutOptions = core.PutOptions
	// Info describes a stored media file.
	Info = core.Info
	// Store is the interface for media stores.
	Store = core.Store
	// S3Config configures the S3 driver.
	S3Config = infraS3.Config
)

const (
	DriverFilesystem = core.DriverFilesystem
	DriverS3         = core.DriverS3
	DriverMemory     = core.DriverMemory
)

var (
	ErrNotFound   = core.ErrNotFound
	ErrExists     = core.ErrExists
	ErrInvalidKey = core.ErrInvalidKey
)

// Config selects and configures a media store.
type Config struct {
	Driver Driver
	// Root is the directory used by the filesystem driver.
	Root string
	S3   S3Config
}

// Open builds the store named by cfg.Driver. An empty driver means filesystem.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case "", DriverFilesystem:
		return NewFilesystem(cfg.Root)
	case DriverS3:
		return NewS3(ctx, cfg.S3)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown media driver %q", cfg.Driver)
	}
}

// NewFilesystem returns a store rooted at root.
func NewFilesystem(root string) (Store, error) { return fs.New(root) }

// NewMemory returns an in-memory store.
func NewMemory() Store { return memorystore.New() }

// NewS3 returns an S3-backed store.
func NewS3(ctx context.Context, cfg S3Config) (Store, error) { return infraS3.New(ctx, cfg) }

// NewMockS3ForTests exposes the fake-transport S3 store for cross-package tests.
func NewMockS3ForTests() Store { return infraS3.NewMockForTests() }

// NormalizeKey maps a Media.Path onto a store key.
func NormalizeKey(p string) (string, error) { return core.NormalizeKey(p) }

// Exists reports whether the file at key is present.
func Exists(ctx context.Context, store Store, key string) (bool, error) {
	return core.Exists(ctx, store, key)
}
