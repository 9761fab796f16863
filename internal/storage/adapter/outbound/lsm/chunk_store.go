package lsm

import (
	"context"
	"fmt"

	"github.com/anthanhphan/go-blob-store/internal/storage/domain"
	"github.com/anthanhphan/go-blob-store/internal/storage/port"
)

const chunkKeyPrefix = "chunk:"

// ChunkStore keeps chunks in the segment log, grouped by file ID.
type ChunkStore struct {
	engine   *Engine
	maxChunk int
}

var (
	_ port.ChunkStore = (*ChunkStore)(nil)
	_ port.Compactor  = (*ChunkStore)(nil)
)

// NewChunkStore stores chunks of at most maxChunk bytes in engine.
func NewChunkStore(engine *Engine, maxChunk int) *ChunkStore {
	return &ChunkStore{engine: engine, maxChunk: maxChunk}
}

func chunkKey(fileID string, seq int) string {
	return fmt.Sprintf("%s%s:%010d", chunkKeyPrefix, fileID, seq)
}

func (s *ChunkStore) PutChunk(ctx context.Context, fileID string, seq int, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := domain.ValidateChunk(fileID, seq, payload, s.maxChunk); err != nil {
		return err
	}
	return s.engine.Put(chunkKey(fileID, seq), fileID, payload)
}

func (s *ChunkStore) GetChunksInOrder(ctx context.Context, fileID string) (domain.ChunkIterator, error) {
	return domain.NewSequentialIterator(ctx, fileID, s.fetch)
}

func (s *ChunkStore) fetch(ctx context.Context, fileID string, seq int) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	return s.engine.Get(chunkKey(fileID, seq))
}

func (s *ChunkStore) DeleteChunks(ctx context.Context, fileID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return s.engine.DeleteByParent(fileID)
}

// Compact reclaims space held by deleted chunks.
func (s *ChunkStore) Compact() error {
	return s.engine.Compact()
}
