// Package storage provides pluggable object storage for finalized uploads
package storage

import (
	"context"
	"io"
)

// Provider is the interface implemented by all storage backends:
// local filesystem, Amazon S3, and Google Cloud Storage.
type Provider interface {
	// Initialize sets up the provider with configuration
	Initialize(config map[string]string) error

	// Store saves an object and returns its unique identifier
	Store(ctx context.Context, name string, content io.Reader, size int64, metadata map[string]string) (string, error)

	// Retrieve returns the object's content and metadata
	Retrieve(ctx context.Context, id string) (io.ReadCloser, map[string]string, error)

	// Delete removes the object
	Delete(ctx context.Context, id string) error

	// List returns objects whose name matches the given prefix
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
}

// ObjectInfo represents metadata about a stored object
type ObjectInfo struct {
	ID          string
	Name        string
	Size        int64
	ContentType string
	ModifiedAt  int64
	Metadata    map[string]string
}
