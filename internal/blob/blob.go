// Package blob selects the blob backend that holds savegame archives. Packages
// outside the blob tree depend on blob.Store only.
package blob

import (
	"context"
	"fmt"
	"os"

	"tbtr/internal/blob/core"
	"tbtr/internal/infra/blob/fs"
	memorystore "tbtr/internal/infra/blob/memory"
	infraS3 "tbtr/internal/infra/blob/s3"
)

type (
	// Driver identifies a blob backend driver.
	Driver = core.Driver
	// PutOptions configures a blob write.
	PutOptions = core.PutOptions
	// Info describes stored blob metadata.
	Info = core.Info
	// Store is the interface for blob storage backends.
	Store = core.Store
	// S3Config configures the S3 backend.
	S3Config = infraS3.Config
)

const (
	DriverFilesystem = core.DriverFilesystem
	DriverS3         = core.DriverS3
	DriverMemory     = core.DriverMemory
)

var (
	// ErrNotFound is returned when a key holds no blob.
	ErrNotFound = core.ErrNotFound
	// ErrExists is returned when Put targets a key that is already taken.
	ErrExists = core.ErrExists
)

// Open selects a Store implementation using environment variables.
//
//	TBTR_BLOB_DRIVER: fs|s3|memory (default fs)
//	TBTR_BLOB_FS_ROOT: directory root when driver=fs (default ./tbtr-blobs)
//	(S3 specific variables documented in the s3 backend)
func Open(ctx context.Context) (Store, error) {
	driver := os.Getenv("TBTR_BLOB_DRIVER")
	if driver == "" {
		driver = string(DriverFilesystem)
	}
	switch Driver(driver) {
	case DriverFilesystem:
		return NewFilesystem(os.Getenv("TBTR_BLOB_FS_ROOT"))
	case DriverS3:
		s, err := infraS3.OpenFromEnv(ctx)
		if err != nil {
			return nil, err
		}
		return s, nil
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %s", driver)
	}
}

// NewFilesystem constructs a filesystem-backed Store rooted at root.
func NewFilesystem(root string) (Store, error) {
	s, err := fs.New(root)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// NewMemory returns an in-memory Store.
func NewMemory() Store { return memorystore.New() }

// NewS3 constructs an S3-backed Store from cfg.
func NewS3(ctx context.Context, cfg S3Config) (Store, error) {
	s, err := infraS3.New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return s, nil
}
