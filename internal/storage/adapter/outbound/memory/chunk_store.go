package memory

import (
	"context"
	"sync"

	"github.com/anthanhphan/go-blob-store/internal/storage/domain"
	"github.com/anthanhphan/go-blob-store/internal/storage/port"
)

// ChunkStore keeps chunks in process memory. It backs tests and the
// "memory" backend.
type ChunkStore struct {
	mu       sync.RWMutex
	maxChunk int
	files    map[string]map[int][]byte
}

var _ port.ChunkStore = (*ChunkStore)(nil)

// NewChunkStore creates an empty store rejecting payloads above maxChunk bytes.
func NewChunkStore(maxChunk int) *ChunkStore {
	return &ChunkStore{maxChunk: maxChunk, files: make(map[string]map[int][]byte)}
}

func (s *ChunkStore) PutChunk(ctx context.Context, fileID string, seq int, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := domain.ValidateChunk(fileID, seq, payload, s.maxChunk); err != nil {
		return err
	}

	stored := make([]byte, len(payload))
	copy(stored, payload)

	s.mu.Lock()
	defer s.mu.Unlock()
	chunks, ok := s.files[fileID]
	if !ok {
		chunks = make(map[int][]byte)
		s.files[fileID] = chunks
	}
	chunks[seq] = stored
	return nil
}

func (s *ChunkStore) GetChunksInOrder(ctx context.Context, fileID string) (domain.ChunkIterator, error) {
	return domain.NewSequentialIterator(ctx, fileID, s.fetch)
}

func (s *ChunkStore) fetch(ctx context.Context, fileID string, seq int) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	payload, ok := s.files[fileID][seq]
	return payload, ok, nil
}

func (s *ChunkStore) DeleteChunks(ctx context.Context, fileID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.files[fileID])
	delete(s.files, fileID)
	return n, nil
}

// ChunkCount reports how many chunks are stored for fileID.
func (s *ChunkStore) ChunkCount(fileID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.files[fileID])
}

// ChunkSizes returns the payload length of every chunk of fileID in sequence order.
func (s *ChunkStore) ChunkSizes(fileID string) []int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	chunks := s.files[fileID]
	sizes := make([]int, 0, len(chunks))
	for seq := 0; ; seq++ {
		payload, ok := chunks[seq]
		if !ok {
			return sizes
		}
		sizes = append(sizes, len(payload))
	}
}

// TotalChunks reports how many chunks are stored across all files.
func (s *ChunkStore) TotalChunks() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := 0
	for _, chunks := range s.files {
		total += len(chunks)
	}
	return total
}
