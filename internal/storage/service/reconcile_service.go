package service

import (
	"context"
	"errors"
	"sync"

	"github.com/anthanhphan/go-blob-store/internal/storage/domain"
	"github.com/anthanhphan/go-blob-store/internal/storage/port"
	"github.com/anthanhphan/go-blob-store/pkg/resilience"
	"github.com/anthanhphan/gosdk/logger"
)

// reconcileService removes metadata whose chunks are gone, the leftover of a
// deletion interrupted between its two steps.
type reconcileService struct {
	core *BlobService
}

// newReconcileService creates the reconciliation use-case service.
func newReconcileService(core *BlobService) *reconcileService {
	return &reconcileService{core: core}
}

// reconcile probes every non-empty file and sweeps orphaned records.
// Individual probe failures are counted, not returned.
func (s *reconcileService) reconcile(ctx context.Context) (domain.ReconcileReport, error) {
	var report domain.ReconcileReport

	files, err := s.core.catalog.ListAll(ctx)
	if err != nil {
		return report, err
	}
	report.Scanned = len(files)
	logger.Infow("Reconciliation started", "files", len(files))

	workers := s.core.reconcileWorkers()
	pool := resilience.NewWorkerPool(workers, workers*2)

	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		firstErr error
	)
	for _, meta := range files {
		if meta.SizeBytes == 0 {
			continue
		}

		fileID := meta.ID
		wg.Add(1)
		if err := pool.Submit(ctx, func() {
			defer wg.Done()
			removed, err := s.sweep(ctx, fileID)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				report.Failed++
				logger.Warnw("Reconciliation probe failed", "file_id", fileID, "error", err.Error())
			case removed:
				report.Removed++
			}
		}); err != nil {
			wg.Done()
			firstErr = err
			break
		}
	}
	wg.Wait()
	pool.Close()
	pool.Wait()

	if report.Removed > 0 {
		s.maybeCompact()
	}

	logger.Infow("Reconciliation finished", "scanned", report.Scanned, "removed", report.Removed, "failed", report.Failed)
	return report, firstErr
}

// sweep removes the record of fileID if the chunk store has nothing for it.
func (s *reconcileService) sweep(ctx context.Context, fileID string) (bool, error) {
	it, err := s.core.chunks.GetChunksInOrder(ctx, fileID)
	if err == nil {
		_ = it.Close()
		return false, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return false, err
	}

	if err := s.core.catalog.Remove(ctx, fileID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			// deleted concurrently
			return false, nil
		}
		return false, err
	}
	logger.Infow("Reconciliation removed orphaned metadata", "file_id", fileID)
	return true, nil
}

// maybeCompact reclaims space on stores that delete lazily.
func (s *reconcileService) maybeCompact() {
	compactor, ok := s.core.chunks.(port.Compactor)
	if !ok {
		return
	}
	if err := compactor.Compact(); err != nil {
		logger.Warnw("Compaction after reconciliation failed", "error", err.Error())
	}
}
