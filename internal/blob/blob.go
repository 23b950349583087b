// Package blob is the facade over the blob backends: snapshot documents and archived
// source exports are written through Store and never through a backend package.
package blob

import (
	"context"
	"platecore/internal/blob/core"
	"platecore/internal/infra/blob/fs"
	memorystore "platecore/internal/infra/blob/memory"
	infraS3 "platecore/internal/infra/blob/s3"
)

type (
	Driver     = core.Driver
	PutOptions = core.PutOptions
	Info       = core.Info
	Store      = core.Store
	// S3Config carries bucket, region, endpoint and static credentials.
	S3Config = infraS3.Config
)

const (
	DriverFilesystem = core.DriverFilesystem
	DriverS3         = core.DriverS3
	DriverMemory     = core.DriverMemory
)

var (
	ErrNotFound = core.ErrNotFound
	ErrExists   = core.ErrExists
)

// NewFilesystem opens a store rooted at root, creating the directory when needed.
func NewFilesystem(root string) (Store, error) {
	s, err := fs.New(root)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// NewMemory returns a process-local store.
func NewMemory() Store { return memorystore.New() }

// NewS3 connects to the bucket named in cfg.
func NewS3(ctx context.Context, cfg S3Config) (Store, error) {
	s, err := infraS3.New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// NewMockS3ForTests returns the S3 store wired to an in-process fake bucket.
func NewMockS3ForTests() Store { return infraS3.NewMockForTests() }
