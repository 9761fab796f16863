package port

import (
	"context"

	"github.com/anthanhphan/go-blob-store/internal/storage/domain"
)

//go:generate mockgen -destination=../service/mocks/catalog_mock.go -package=mocks -source=catalog.go

// MetadataCatalog keeps one metadata record per published file.
type MetadataCatalog interface {
	// ListAll returns every record ordered by upload time ascending.
	ListAll(ctx context.Context) ([]domain.FileMetadata, error)

	// Get returns the record for id or domain.ErrNotFound.
	Get(ctx context.Context, id string) (*domain.FileMetadata, error)

	// Publish inserts a new record; an existing id yields domain.ErrAlreadyExists.
	Publish(ctx context.Context, meta domain.FileMetadata) error

	// Remove deletes the record for id or returns domain.ErrNotFound.
	Remove(ctx context.Context, id string) error
}
