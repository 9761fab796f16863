package port

import (
	"context"

	"github.com/anthanhphan/go-blob-store/internal/storage/domain"
)

//go:generate mockgen -destination=../service/mocks/storage_mock.go -package=mocks -source=storage.go

// ChunkStore persists fixed-size chunks addressed by (file ID, sequence number).
type ChunkStore interface {
	// PutChunk stores one chunk. Payloads above the configured maximum are
	// rejected with domain.ErrChunkTooLarge. Rewriting the same chunk is idempotent.
	// The payload buffer is reused by the caller once PutChunk returns.
	PutChunk(ctx context.Context, fileID string, seq int, payload []byte) error

	// GetChunksInOrder returns a fresh iterator starting at sequence 0.
	// It fails with domain.ErrNotFound when no chunk exists for fileID.
	GetChunksInOrder(ctx context.Context, fileID string) (domain.ChunkIterator, error)

	// DeleteChunks removes every chunk of fileID and reports how many were removed.
	// Unknown IDs are not an error.
	DeleteChunks(ctx context.Context, fileID string) (int, error)
}

// Compactor is implemented by chunk stores that reclaim space lazily.
type Compactor interface {
	Compact() error
}
