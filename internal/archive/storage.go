// Package archive exports project history and variance reports to a local
// directory or an S3 bucket.
package archive

import (
	"context"
	"errors"
	"fmt"

	"portfolio/internal/config"
)

// ErrNotFound is returned when a requested path does not exist in storage.
var ErrNotFound = errors.New("not found")

// Storage is a flat key-value view over files or objects.
type Storage interface {
	Read(ctx context.Context, path string) ([]byte, error)
	Write(ctx context.Context, path string, data []byte) error
	List(ctx context.Context, prefix string) ([]string, error)
	Exists(ctx context.Context, path string) (bool, error)
}

// New picks the backend configured by env.
func New(ctx context.Context, env config.ArchiveEnv) (Storage, error) {
	switch env.Type {
	case "", "local":
		return NewLocalStorage(env.Dir)
	case "s3":
		return NewS3Storage(ctx, env.S3Bucket, env.S3Prefix, env.S3Region)
	default:
		return nil, fmt.Errorf("unknown archive type %q", env.Type)
	}
}
