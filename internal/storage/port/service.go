package port

import (
	"context"
	"io"

	"github.com/anthanhphan/go-blob-store/internal/storage/domain"
)

//go:generate mockgen -destination=../service/mocks/service_mock.go -package=mocks -source=service.go

// BlobStore is the storage surface shared by the HTTP API and the CLI.
type BlobStore interface {
	// ListFiles returns all published files in upload order.
	ListFiles(ctx context.Context) ([]domain.FileMetadata, error)

	// Stat returns metadata for one file.
	Stat(ctx context.Context, id string) (*domain.FileMetadata, error)

	// Upload consumes r and publishes the file once the stream ends cleanly.
	Upload(ctx context.Context, r io.Reader, req domain.UploadRequest) (*domain.FileMetadata, error)

	// Download opens a lazy stream over the file content. The caller must close it.
	Download(ctx context.Context, id string) (*domain.FileMetadata, io.ReadCloser, error)

	// Delete removes the chunks of a file, then its metadata.
	Delete(ctx context.Context, id string) error

	// Reconcile removes metadata left behind by interrupted deletions.
	Reconcile(ctx context.Context) (domain.ReconcileReport, error)
}

// IDGenerator allocates unique, never reused file identifiers.
type IDGenerator interface {
	NewID() (string, error)
}
