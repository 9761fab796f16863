package service

import (
	"bufio"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/anthanhphan/go-blob-store/internal/storage/domain"
	"github.com/anthanhphan/go-blob-store/pkg/resilience"
	"github.com/anthanhphan/gosdk/logger"
	"github.com/zeebo/blake3"
)

// cleanupTimeout bounds the removal of a failed upload's chunks.
const cleanupTimeout = time.Minute

// uploadService streams input into chunks and publishes metadata at the end.
type uploadService struct {
	core        *BlobService
	chunkWriter *chunkWriteService
}

// uploadStats tracks aggregate stats while processing file chunks.
type uploadStats struct {
	totalSize  int64
	chunkCount int
	digest     string
}

// newUploadService creates the upload use-case service.
func newUploadService(core *BlobService, chunkWriter *chunkWriteService) *uploadService {
	return &uploadService{core: core, chunkWriter: chunkWriter}
}

// upload performs the full upload workflow from stream to published metadata.
// On any failure nothing stays visible: written chunks are removed before
// upload returns.
func (s *uploadService) upload(ctx context.Context, r io.Reader, req domain.UploadRequest) (*domain.FileMetadata, error) {
	fileID, err := s.core.ids.NewID()
	if err != nil {
		return nil, &domain.UploadError{Cause: fmt.Errorf("allocate file id: %w", err)}
	}

	logger.Infow("Upload started", "file_id", fileID, "file_name", req.Name)

	br := bufio.NewReaderSize(r, sniffLen)
	contentType, err := s.core.types.resolve(req.ContentType, br)
	if err != nil {
		logger.Warnw("Upload rejected", "file_id", fileID, "error", err.Error())
		if errors.Is(err, domain.ErrUnsupportedType) {
			return nil, err
		}
		return nil, &domain.UploadError{FileID: fileID, Cause: err}
	}

	stats, err := s.streamChunks(ctx, fileID, br)
	if err != nil {
		logger.Errorw("Upload failed", "file_id", fileID, "chunks", stats.chunkCount, "error", err.Error())
		s.cleanupUpload(ctx, fileID, stats.chunkCount)
		if errors.Is(err, domain.ErrTooLarge) {
			return nil, err
		}
		return nil, &domain.UploadError{FileID: fileID, Cause: err}
	}

	meta := domain.FileMetadata{
		ID:          fileID,
		Name:        req.Name,
		SizeBytes:   stats.totalSize,
		ContentType: contentType,
		UploadedAt:  s.core.publishStamp(),
		Tags:        copyTags(req.Tags),
		ChunkSize:   int64(s.core.chunkSize()),
		Digest:      stats.digest,
	}
	if err := s.core.catalog.Publish(ctx, meta); err != nil {
		logger.Errorw("Metadata publish failed", "file_id", fileID, "error", err.Error())
		s.cleanupUpload(ctx, fileID, stats.chunkCount)
		return nil, &domain.UploadError{FileID: fileID, Cause: fmt.Errorf("publish metadata: %w", err)}
	}

	logger.Infow("Upload completed", "file_id", fileID, "chunks", stats.chunkCount, "size_bytes", stats.totalSize)
	return &meta, nil
}

// streamChunks reads fixed windows from r and hands them to a single writer
// so chunks land in sequence order. The ceiling is checked before every write.
func (s *uploadService) streamChunks(ctx context.Context, fileID string, r io.Reader) (uploadStats, error) {
	chunkSize := s.core.chunkSize()
	limit := s.core.maxUploadSize()

	writer := resilience.NewWorkerPool(1, s.core.readAhead())
	defer func() {
		writer.Close()
		writer.Wait()
	}()
	group, groupCtx := writer.NewGroup(ctx)

	var stats uploadStats
	hasher := blake3.New()

	for groupCtx.Err() == nil {
		buffer := s.core.pool.Get().(*[]byte)
		readN, readErr := io.ReadFull(r, (*buffer)[:chunkSize])
		if readErr != nil && readErr != io.EOF && readErr != io.ErrUnexpectedEOF {
			// A window cut short by a broken stream is never written.
			s.core.pool.Put(buffer)
			group.Abort(fmt.Errorf("read error: %w", readErr))
			break
		}

		if readN > 0 {
			if stats.totalSize+int64(readN) > limit {
				s.core.pool.Put(buffer)
				group.Abort(fmt.Errorf("%w: limit is %d bytes", domain.ErrTooLarge, limit))
				break
			}

			data := (*buffer)[:readN]
			_, _ = hasher.Write(data)
			seq := stats.chunkCount
			if err := group.Go(func(writeCtx context.Context) error {
				defer s.core.pool.Put(buffer)
				return s.chunkWriter.writeChunk(writeCtx, fileID, seq, data)
			}); err != nil {
				s.core.pool.Put(buffer)
				break
			}
			stats.totalSize += int64(readN)
			stats.chunkCount++
		} else {
			s.core.pool.Put(buffer)
		}

		if readErr != nil {
			break
		}
	}

	if err := group.Wait(); err != nil {
		return stats, err
	}
	stats.digest = hex.EncodeToString(hasher.Sum(nil))
	return stats, nil
}

// cleanupUpload removes every chunk written for fileID. It runs on a context
// detached from the request so a canceled client still gets cleaned up.
func (s *uploadService) cleanupUpload(ctx context.Context, fileID string, chunkCount int) {
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()

	removed, err := s.chunkWriter.deleteChunks(cleanupCtx, fileID)
	if err != nil {
		logger.Warnw("Cleanup upload failed", "file_id", fileID, "chunks", chunkCount, "error", err.Error())
		return
	}
	logger.Infow("Cleanup upload finished", "file_id", fileID, "chunks", chunkCount, "removed", removed)
}

func copyTags(tags map[string]string) map[string]string {
	if len(tags) == 0 {
		return nil
	}
	out := make(map[string]string, len(tags))
	for k, v := range tags {
		out[k] = v
	}
	return out
}
