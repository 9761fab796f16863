// Package s3 stores chunks as objects in an S3-compatible bucket.
package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"

	"github.com/anthanhphan/go-blob-store/internal/storage/config"
	"github.com/anthanhphan/go-blob-store/internal/storage/domain"
	"github.com/anthanhphan/go-blob-store/internal/storage/port"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ChunkStore writes each chunk to <prefix>/<file id>/<seq>.
type ChunkStore struct {
	cl       *minio.Client
	bucket   string
	prefix   string
	maxChunk int
}

var _ port.ChunkStore = (*ChunkStore)(nil)

func New(cfg config.S3Config, maxChunk int) (*ChunkStore, error) {
	opts := &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	}
	if cfg.PathStyle {
		opts.BucketLookup = minio.BucketLookupPath
	}
	cl, err := minio.New(cfg.Endpoint, opts)
	if err != nil {
		return nil, fmt.Errorf("create s3 client: %w", err)
	}
	return &ChunkStore{cl: cl, bucket: cfg.Bucket, prefix: cfg.Prefix, maxChunk: maxChunk}, nil
}

// EnsureBucket creates the bucket when it does not exist yet.
func (s *ChunkStore) EnsureBucket(ctx context.Context, region string) error {
	exists, err := s.cl.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.cl.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: region}); err != nil {
		return fmt.Errorf("create bucket %s: %w", s.bucket, err)
	}
	return nil
}

func (s *ChunkStore) fileDir(fileID string) string {
	return path.Join(s.prefix, fileID) + "/"
}

func (s *ChunkStore) objectKey(fileID string, seq int) string {
	return fmt.Sprintf("%s%010d", s.fileDir(fileID), seq)
}

func (s *ChunkStore) PutChunk(ctx context.Context, fileID string, seq int, payload []byte) error {
	if err := domain.ValidateChunk(fileID, seq, payload, s.maxChunk); err != nil {
		return err
	}
	_, err := s.cl.PutObject(ctx, s.bucket, s.objectKey(fileID, seq), bytes.NewReader(payload), int64(len(payload)), minio.PutObjectOptions{
		ContentType: domain.DefaultContentType,
	})
	if err != nil {
		return fmt.Errorf("put chunk %s/%d: %w", fileID, seq, err)
	}
	return nil
}

func (s *ChunkStore) GetChunksInOrder(ctx context.Context, fileID string) (domain.ChunkIterator, error) {
	return domain.NewSequentialIterator(ctx, fileID, s.fetch)
}

func (s *ChunkStore) fetch(ctx context.Context, fileID string, seq int) ([]byte, bool, error) {
	obj, err := s.cl.GetObject(ctx, s.bucket, s.objectKey(fileID, seq), minio.GetObjectOptions{})
	if err != nil {
		return nil, false, fmt.Errorf("get chunk %s/%d: %w", fileID, seq, err)
	}
	defer func() { _ = obj.Close() }()

	payload, err := io.ReadAll(obj)
	if isNotFound(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read chunk %s/%d: %w", fileID, seq, err)
	}
	return payload, true, nil
}

func (s *ChunkStore) DeleteChunks(ctx context.Context, fileID string) (int, error) {
	listCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	removed := 0
	for obj := range s.cl.ListObjects(listCtx, s.bucket, minio.ListObjectsOptions{Prefix: s.fileDir(fileID), Recursive: true}) {
		if obj.Err != nil {
			return removed, fmt.Errorf("list chunks of %s: %w", fileID, obj.Err)
		}
		if err := s.cl.RemoveObject(ctx, s.bucket, obj.Key, minio.RemoveObjectOptions{}); err != nil && !isNotFound(err) {
			return removed, fmt.Errorf("remove %s: %w", obj.Key, err)
		}
		removed++
	}
	return removed, nil
}

func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	code := minio.ToErrorResponse(err).Code
	return code == "NoSuchKey" || code == "NotFound"
}
