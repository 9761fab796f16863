package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/anthanhphan/go-blob-store/internal/storage/domain"
	"github.com/anthanhphan/gosdk/logger"
)

// deleteService removes content first and metadata second. A crash between
// the two leaves metadata without chunks, which reconciliation sweeps.
type deleteService struct {
	core *BlobService
}

// newDeleteService creates the deletion use-case service.
func newDeleteService(core *BlobService) *deleteService {
	return &deleteService{core: core}
}

func (s *deleteService) delete(ctx context.Context, fileID string) error {
	if _, err := s.core.catalog.Get(ctx, fileID); err != nil {
		return err
	}

	removed, err := s.core.chunkWriter.deleteChunks(ctx, fileID)
	if err != nil {
		logger.Errorw("Delete chunks failed", "file_id", fileID, "error", err.Error())
		return fmt.Errorf("delete chunks of %s: %w", fileID, err)
	}

	if err := s.core.catalog.Remove(ctx, fileID); err != nil {
		// A reconciliation pass may have removed the record in between.
		if !errors.Is(err, domain.ErrNotFound) {
			logger.Errorw("Delete metadata failed", "file_id", fileID, "chunks_removed", removed, "error", err.Error())
			return fmt.Errorf("remove metadata of %s: %w", fileID, err)
		}
	}

	logger.Infow("File deleted", "file_id", fileID, "chunks_removed", removed)
	return nil
}
