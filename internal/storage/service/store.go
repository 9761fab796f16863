package service

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/anthanhphan/go-blob-store/internal/storage/config"
	"github.com/anthanhphan/go-blob-store/internal/storage/domain"
	"github.com/anthanhphan/go-blob-store/internal/storage/port"
	"github.com/anthanhphan/go-blob-store/pkg/resilience"
)

// BlobService is the facade that wires the use-case services of the store.
type BlobService struct {
	cfg     *config.Config
	chunks  port.ChunkStore
	catalog port.MetadataCatalog
	ids     port.IDGenerator
	types   *contentTypeFilter
	pool    *sync.Pool
	now     func() time.Time

	stampMu   sync.Mutex
	lastStamp time.Time

	uploadUseCase    *uploadService
	downloadUseCase  *downloadService
	deleteUseCase    *deleteService
	reconcileUseCase *reconcileService
	chunkWriter      *chunkWriteService
}

// Ensure BlobService implements port.BlobStore.
var _ port.BlobStore = (*BlobService)(nil)

// NewBlobService builds the store facade and all use-case services.
func NewBlobService(cfg *config.Config, chunks port.ChunkStore, catalog port.MetadataCatalog, ids port.IDGenerator) *BlobService {
	svc := &BlobService{
		cfg:     cfg,
		chunks:  chunks,
		catalog: catalog,
		ids:     ids,
		types:   newContentTypeFilter(cfg.Store.AllowedContentTypes, cfg.Store.SniffContentType),
		now:     time.Now,
	}
	chunkSize := svc.chunkSize()
	svc.pool = &sync.Pool{
		New: func() any {
			// One window per in-flight chunk write.
			b := make([]byte, chunkSize)
			return &b
		},
	}

	svc.chunkWriter = newChunkWriteService(svc)
	svc.uploadUseCase = newUploadService(svc, svc.chunkWriter)
	svc.downloadUseCase = newDownloadService(svc)
	svc.deleteUseCase = newDeleteService(svc)
	svc.reconcileUseCase = newReconcileService(svc)

	return svc
}

// ListFiles returns every published file in upload order.
func (s *BlobService) ListFiles(ctx context.Context) ([]domain.FileMetadata, error) {
	files, err := s.catalog.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	if files == nil {
		files = []domain.FileMetadata{}
	}
	return files, nil
}

// Stat returns the metadata of one file.
func (s *BlobService) Stat(ctx context.Context, id string) (*domain.FileMetadata, error) {
	return s.catalog.Get(ctx, id)
}

// Upload delegates to the upload use-case service.
func (s *BlobService) Upload(ctx context.Context, r io.Reader, req domain.UploadRequest) (*domain.FileMetadata, error) {
	return s.uploadUseCase.upload(ctx, r, req)
}

// Download delegates to the download use-case service.
func (s *BlobService) Download(ctx context.Context, id string) (*domain.FileMetadata, io.ReadCloser, error) {
	return s.downloadUseCase.open(ctx, id)
}

// Delete delegates to the deletion use-case service.
func (s *BlobService) Delete(ctx context.Context, id string) error {
	return s.deleteUseCase.delete(ctx, id)
}

// Reconcile delegates to the reconciliation use-case service.
func (s *BlobService) Reconcile(ctx context.Context) (domain.ReconcileReport, error) {
	return s.reconcileUseCase.reconcile(ctx)
}

// publishStamp returns the UploadedAt of a file being published. Stamps are
// strictly increasing per store, so files published within one millisecond
// still list in publish order whatever their IDs look like.
func (s *BlobService) publishStamp() time.Time {
	s.stampMu.Lock()
	defer s.stampMu.Unlock()

	stamp := domain.Timestamp(s.now())
	if !stamp.After(s.lastStamp) {
		stamp = s.lastStamp.Add(time.Millisecond)
	}
	s.lastStamp = stamp
	return stamp
}

func (s *BlobService) chunkSize() int {
	if s.cfg.Store.ChunkSize > 0 {
		return int(s.cfg.Store.ChunkSize)
	}
	return domain.DefaultChunkSize
}

func (s *BlobService) maxUploadSize() int64 {
	if s.cfg.Store.MaxUploadSize > 0 {
		return s.cfg.Store.MaxUploadSize
	}
	return domain.DefaultMaxUploadSize
}

// readAhead is how many chunks may be buffered ahead of the writer.
func (s *BlobService) readAhead() int {
	if s.cfg.Store.ReadAhead > 0 {
		return s.cfg.Store.ReadAhead
	}
	return 4
}

func (s *BlobService) reconcileWorkers() int {
	if s.cfg.Store.ReconcileWorkers > 0 {
		return s.cfg.Store.ReconcileWorkers
	}
	return 4
}

// retryPolicy bounds each chunk write to one write timeout window.
func (s *BlobService) retryPolicy() resilience.RetryPolicy {
	timeout := 15 * time.Second
	if s.cfg.Store.WriteTimeoutMS > 0 {
		timeout = time.Duration(s.cfg.Store.WriteTimeoutMS) * time.Millisecond
	}
	attempts := s.cfg.Store.MaxRetries
	if attempts <= 0 {
		attempts = 3
	}
	return resilience.RetryPolicy{
		Attempts:       attempts,
		AttemptTimeout: timeout,
		Budget:         timeout,
		BaseDelay:      100 * time.Millisecond,
	}
}
