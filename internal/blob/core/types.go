// Package core defines the blob storage contract shared by the savegame archive
// backends.
package core

import (
	"context"
	"errors"
	"io"
	"time"
)

// Driver identifies a concrete blob storage backend implementation.
type Driver string

const (
	// DriverFilesystem stores blobs below a local directory.
	DriverFilesystem Driver = "fs"
	// DriverS3 stores blobs in an S3 / MinIO compatible bucket.
	DriverS3 Driver = "s3"
	// DriverMemory keeps blobs in process memory (tests, ephemeral sessions).
	DriverMemory Driver = "memory"
)

// PutOptions specifies optional parameters for Put.
type PutOptions struct {
	ContentType string
	Metadata    map[string]string
}

// Info describes a stored blob.
type Info struct {
	Key          string            `json:"key"`
	Size         int64             `json:"size_bytes"`
	ContentType  string            `json:"content_type,omitempty"`
	ETag         string            `json:"etag,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	LastModified time.Time         `json:"last_modified"`
}

// Store is a create-only key/value blob store with prefix listing.
type Store interface {
	// Put stores a new blob at key. It fails with ErrExists if the key is taken.
	Put(ctx context.Context, key string, r io.Reader, opts PutOptions) (Info, error)
	// Get returns the blob contents and metadata, ErrNotFound when missing.
	Get(ctx context.Context, key string) (Info, io.ReadCloser, error)
	// Head returns metadata only.
	Head(ctx context.Context, key string) (Info, error)
	// Delete removes a blob. It returns false, nil if the blob did not exist.
	Delete(ctx context.Context, key string) (bool, error)
	// List returns blobs whose key starts with prefix, ordered by key.
	List(ctx context.Context, prefix string) ([]Info, error)
	Driver() Driver
}

var (
	// ErrNotFound is returned when a key holds no blob.
	ErrNotFound = errors.New("blob not found")
	// ErrExists is returned when Put targets a key that is already taken.
	ErrExists = errors.New("blob already exists")
)
