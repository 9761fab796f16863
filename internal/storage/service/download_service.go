package service

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"sync"

	"github.com/anthanhphan/go-blob-store/internal/storage/domain"
	"github.com/anthanhphan/gosdk/logger"
	"github.com/zeebo/blake3"
)

var errReaderClosed = errors.New("blob reader closed")

// downloadService opens lazy content streams over stored chunks.
type downloadService struct {
	core *BlobService
}

// newDownloadService creates the download use-case service.
func newDownloadService(core *BlobService) *downloadService {
	return &downloadService{core: core}
}

// open looks up metadata first and then opens the chunk sequence. Content is
// read on demand by the returned reader.
func (s *downloadService) open(ctx context.Context, fileID string) (*domain.FileMetadata, io.ReadCloser, error) {
	meta, err := s.core.catalog.Get(ctx, fileID)
	if err != nil {
		return nil, nil, err
	}

	if meta.SizeBytes == 0 {
		return meta, io.NopCloser(bytes.NewReader(nil)), nil
	}

	it, err := s.core.chunks.GetChunksInOrder(ctx, fileID)
	if errors.Is(err, domain.ErrNotFound) {
		logger.Warnw("Metadata without chunks", "file_id", fileID, "size_bytes", meta.SizeBytes)
		return nil, nil, domain.Corruptedf("file %s has no chunks", fileID)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("open chunks of %s: %w", fileID, err)
	}

	logger.Infow("Download started", "file_id", fileID, "size_bytes", meta.SizeBytes)
	return meta, newBlobReader(ctx, meta, it), nil
}

// blobReader pulls one chunk per demand and never emits more than the
// recorded size. Short content, extra content and digest mismatch end the
// stream with domain.ErrCorrupted instead of io.EOF.
type blobReader struct {
	mu      sync.Mutex
	ctx     context.Context
	meta    *domain.FileMetadata
	it      domain.ChunkIterator
	hasher  hash.Hash
	pending []byte
	emitted int64
	err     error // sticky, io.EOF on success
	closed  bool
}

func newBlobReader(ctx context.Context, meta *domain.FileMetadata, it domain.ChunkIterator) *blobReader {
	return &blobReader{ctx: ctx, meta: meta, it: it, hasher: blake3.New()}
}

func (r *blobReader) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return 0, errReaderClosed
	}
	if len(p) == 0 {
		return 0, nil
	}

	for len(r.pending) == 0 {
		if r.err != nil {
			return 0, r.err
		}
		r.pull()
	}

	n := copy(p, r.pending)
	r.pending = r.pending[n:]
	return n, nil
}

// pull fetches the next chunk into pending or records the terminal error.
func (r *blobReader) pull() {
	chunk, err := r.it.Next(r.ctx)
	if errors.Is(err, io.EOF) {
		r.err = r.finish()
		return
	}
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			err = domain.Corruptedf("file %s lost chunks while reading: %v", r.meta.ID, err)
		}
		r.err = err
		return
	}

	remaining := r.meta.SizeBytes - r.emitted
	if int64(len(chunk.Payload)) > remaining {
		r.err = domain.Corruptedf("file %s: chunk %d exceeds recorded size %d", r.meta.ID, chunk.Seq, r.meta.SizeBytes)
		return
	}

	_, _ = r.hasher.Write(chunk.Payload)
	r.emitted += int64(len(chunk.Payload))
	r.pending = chunk.Payload
}

// finish validates the stream once the chunk sequence ended.
func (r *blobReader) finish() error {
	if r.emitted != r.meta.SizeBytes {
		logger.Warnw("Download truncated", "file_id", r.meta.ID, "size_bytes", r.meta.SizeBytes, "emitted", r.emitted)
		return domain.Corruptedf("file %s: expected %d bytes, read %d", r.meta.ID, r.meta.SizeBytes, r.emitted)
	}
	if r.meta.Digest != "" {
		if got := hex.EncodeToString(r.hasher.Sum(nil)); got != r.meta.Digest {
			return domain.Corruptedf("file %s: digest mismatch", r.meta.ID)
		}
	}
	logger.Infow("Download completed", "file_id", r.meta.ID, "size_bytes", r.emitted)
	return io.EOF
}

// Close releases the chunk iterator. It is safe to call more than once.
func (r *blobReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true
	r.pending = nil
	return r.it.Close()
}
