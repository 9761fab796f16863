package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/anthanhphan/go-blob-store/internal/storage/domain"
	"github.com/anthanhphan/go-blob-store/pkg/resilience"
	"github.com/anthanhphan/gosdk/logger"
)

// chunkWriteService writes single chunks with retry and a circuit breaker
// shared by all uploads of the process.
type chunkWriteService struct {
	core    *BlobService
	breaker *resilience.CircuitBreaker
}

// newChunkWriteService creates the chunk write use-case service.
func newChunkWriteService(core *BlobService) *chunkWriteService {
	return &chunkWriteService{
		core: core,
		breaker: resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			Name:             "chunk-store",
			FailureThreshold: 5,
			Ignore:           isPermanentWriteError,
			OnStateChange: func(name string, from, to resilience.CircuitBreakerState) {
				logger.Warnw("Circuit breaker state changed", "name", name, "from", string(from), "to", string(to))
			},
		}),
	}
}

// writeChunk stores one chunk. Rejected payloads are not retried.
func (s *chunkWriteService) writeChunk(ctx context.Context, fileID string, seq int, payload []byte) error {
	err := resilience.Retry(ctx, s.core.retryPolicy(), func(attemptCtx context.Context) error {
		err := s.breaker.Execute(attemptCtx, func(execCtx context.Context) error {
			return s.core.chunks.PutChunk(execCtx, fileID, seq, payload)
		})
		if isPermanentWriteError(err) {
			return resilience.Permanent(err)
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("chunk %d: %w", seq, err)
	}
	return nil
}

// deleteChunks removes a file's chunks with the same retry policy as writes.
func (s *chunkWriteService) deleteChunks(ctx context.Context, fileID string) (int, error) {
	var removed int
	err := resilience.Retry(ctx, s.core.retryPolicy(), func(attemptCtx context.Context) error {
		n, err := s.core.chunks.DeleteChunks(attemptCtx, fileID)
		removed = n
		return err
	})
	return removed, err
}

func isPermanentWriteError(err error) bool {
	return errors.Is(err, domain.ErrChunkTooLarge)
}
