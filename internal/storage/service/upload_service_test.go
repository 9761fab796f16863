package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/anthanhphan/go-blob-store/internal/storage/config"
	"github.com/anthanhphan/go-blob-store/internal/storage/domain"
	"github.com/anthanhphan/go-blob-store/internal/storage/service/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

// failingReader returns data and then a read error.
type failingReader struct {
	data []byte
	err  error
}

func (r *failingReader) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, r.err
	}
	n := copy(p, r.data)
	r.data = r.data[n:]
	return n, nil
}

func newMockedService(ctrl *gomock.Controller) (*BlobService, *mocks.MockChunkStore, *mocks.MockMetadataCatalog, *mocks.MockIDGenerator) {
	cfg := config.DefaultConfig()
	cfg.Store.ChunkSize = 4
	cfg.Store.MaxRetries = 1
	cfg.Store.AllowedContentTypes = nil

	chunks := mocks.NewMockChunkStore(ctrl)
	catalog := mocks.NewMockMetadataCatalog(ctrl)
	ids := mocks.NewMockIDGenerator(ctrl)
	return NewBlobService(cfg, chunks, catalog, ids), chunks, catalog, ids
}

func TestUploadService_Upload(t *testing.T) {
	type mockSetup func(chunks *mocks.MockChunkStore, catalog *mocks.MockMetadataCatalog, ids *mocks.MockIDGenerator)

	tests := []struct {
		name        string
		input       io.Reader
		contentType string
		setup       mockSetup
		wantErr     error
		errContains string
	}{
		{
			name:  "Success",
			input: strings.NewReader("abcdefghij"),
			setup: func(chunks *mocks.MockChunkStore, catalog *mocks.MockMetadataCatalog, ids *mocks.MockIDGenerator) {
				ids.EXPECT().NewID().Return("42", nil)
				gomock.InOrder(
					chunks.EXPECT().PutChunk(gomock.Any(), "42", 0, []byte("abcd")).Return(nil),
					chunks.EXPECT().PutChunk(gomock.Any(), "42", 1, []byte("efgh")).Return(nil),
					chunks.EXPECT().PutChunk(gomock.Any(), "42", 2, []byte("ij")).Return(nil),
				)
				catalog.EXPECT().Publish(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, meta domain.FileMetadata) error {
					assert.Equal(t, "42", meta.ID)
					assert.Equal(t, int64(10), meta.SizeBytes)
					assert.Equal(t, int64(4), meta.ChunkSize)
					assert.True(t, strings.HasPrefix(meta.ContentType, "text/plain"), meta.ContentType)
					return nil
				})
			},
		},
		{
			name:  "IDGenerationFailure",
			input: strings.NewReader("abcd"),
			setup: func(chunks *mocks.MockChunkStore, catalog *mocks.MockMetadataCatalog, ids *mocks.MockIDGenerator) {
				ids.EXPECT().NewID().Return("", errors.New("clock moved backwards"))
			},
			wantErr:     domain.ErrUploadFailed,
			errContains: "clock moved backwards",
		},
		{
			name:  "ChunkFailure",
			input: strings.NewReader("abcdefgh"),
			setup: func(chunks *mocks.MockChunkStore, catalog *mocks.MockMetadataCatalog, ids *mocks.MockIDGenerator) {
				ids.EXPECT().NewID().Return("42", nil)
				chunks.EXPECT().PutChunk(gomock.Any(), "42", 0, gomock.Any()).Return(nil)
				chunks.EXPECT().PutChunk(gomock.Any(), "42", 1, gomock.Any()).Return(errors.New("disk full"))
				chunks.EXPECT().DeleteChunks(gomock.Any(), "42").Return(1, nil)
			},
			wantErr:     domain.ErrUploadFailed,
			errContains: "disk full",
		},
		{
			name:  "RejectedChunkIsNotRetried",
			input: strings.NewReader("abcd"),
			setup: func(chunks *mocks.MockChunkStore, catalog *mocks.MockMetadataCatalog, ids *mocks.MockIDGenerator) {
				ids.EXPECT().NewID().Return("42", nil)
				chunks.EXPECT().PutChunk(gomock.Any(), "42", 0, gomock.Any()).Return(domain.ErrChunkTooLarge).Times(1)
				chunks.EXPECT().DeleteChunks(gomock.Any(), "42").Return(0, nil)
			},
			wantErr: domain.ErrChunkTooLarge,
		},
		{
			name:        "ReadFailure",
			input:       &failingReader{data: []byte("abcdef"), err: errors.New("connection reset")},
			contentType: "text/plain",
			setup: func(chunks *mocks.MockChunkStore, catalog *mocks.MockMetadataCatalog, ids *mocks.MockIDGenerator) {
				ids.EXPECT().NewID().Return("42", nil)
				// the first window may be skipped once the group is aborted
				chunks.EXPECT().PutChunk(gomock.Any(), "42", 0, []byte("abcd")).Return(nil).MaxTimes(1)
				chunks.EXPECT().DeleteChunks(gomock.Any(), "42").Return(1, nil)
			},
			wantErr:     domain.ErrUploadFailed,
			errContains: "connection reset",
		},
		{
			name:  "MetadataPublishFailure",
			input: strings.NewReader("abcd"),
			setup: func(chunks *mocks.MockChunkStore, catalog *mocks.MockMetadataCatalog, ids *mocks.MockIDGenerator) {
				ids.EXPECT().NewID().Return("42", nil)
				chunks.EXPECT().PutChunk(gomock.Any(), "42", 0, gomock.Any()).Return(nil)
				catalog.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(errors.New("db error"))
				chunks.EXPECT().DeleteChunks(gomock.Any(), "42").Return(1, nil)
			},
			wantErr:     domain.ErrUploadFailed,
			errContains: "db error",
		},
		{
			name:  "CleanupFailureStillReportsUploadError",
			input: strings.NewReader("abcd"),
			setup: func(chunks *mocks.MockChunkStore, catalog *mocks.MockMetadataCatalog, ids *mocks.MockIDGenerator) {
				ids.EXPECT().NewID().Return("42", nil)
				chunks.EXPECT().PutChunk(gomock.Any(), "42", 0, gomock.Any()).Return(errors.New("timeout"))
				chunks.EXPECT().DeleteChunks(gomock.Any(), "42").Return(0, errors.New("still down"))
			},
			wantErr:     domain.ErrUploadFailed,
			errContains: "timeout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			svc, chunks, catalog, ids := newMockedService(ctrl)
			if tt.setup != nil {
				tt.setup(chunks, catalog, ids)
			}

			meta, err := svc.Upload(context.Background(), tt.input, domain.UploadRequest{Name: "notes.txt", ContentType: tt.contentType})
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.Nil(t, meta)
				assert.ErrorIs(t, err, tt.wantErr)
				if tt.errContains != "" {
					assert.Contains(t, err.Error(), tt.errContains)
				}
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "42", meta.ID)
		})
	}
}

func TestUploadService_UploadErrorCarriesFileID(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc, chunks, catalog, ids := newMockedService(ctrl)

	cause := errors.New("bucket gone")
	ids.EXPECT().NewID().Return("7", nil)
	chunks.EXPECT().PutChunk(gomock.Any(), "7", 0, gomock.Any()).Return(nil)
	catalog.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(cause)
	chunks.EXPECT().DeleteChunks(gomock.Any(), "7").Return(1, nil)

	_, err := svc.Upload(context.Background(), bytes.NewReader([]byte("data")), domain.UploadRequest{Name: "x"})

	var uploadErr *domain.UploadError
	require.ErrorAs(t, err, &uploadErr)
	assert.Equal(t, "7", uploadErr.FileID)
	assert.ErrorIs(t, err, cause)
}

func TestUploadService_CanceledContextCleansUp(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc, chunks, _, ids := newMockedService(ctrl)

	ctx, cancel := context.WithCancel(context.Background())
	ids.EXPECT().NewID().Return("9", nil)
	chunks.EXPECT().PutChunk(gomock.Any(), "9", 0, gomock.Any()).DoAndReturn(func(context.Context, string, int, []byte) error {
		cancel()
		return nil
	})
	chunks.EXPECT().PutChunk(gomock.Any(), "9", gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
	chunks.EXPECT().DeleteChunks(gomock.Any(), "9").DoAndReturn(func(cleanupCtx context.Context, _ string) (int, error) {
		assert.NoError(t, cleanupCtx.Err(), "cleanup must outlive the request")
		return 1, nil
	})

	_, err := svc.Upload(ctx, strings.NewReader(strings.Repeat("x", 64)), domain.UploadRequest{Name: "x"})
	assert.ErrorIs(t, err, domain.ErrUploadFailed)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestUploadService_SniffReadFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc, _, _, ids := newMockedService(ctrl)

	ids.EXPECT().NewID().Return("5", nil)

	_, err := svc.Upload(context.Background(), &failingReader{err: errors.New("broken pipe")}, domain.UploadRequest{Name: "x"})
	assert.ErrorIs(t, err, domain.ErrUploadFailed)
	assert.Contains(t, err.Error(), "broken pipe")
}

func TestChunkWriteService_Retries(t *testing.T) {
	transient := errors.New("transient")

	tests := []struct {
		name    string
		results []error
		wantErr error
	}{
		{name: "transient failure recovers", results: []error{transient, nil}},
		{name: "rejected payload stops at once", results: []error{domain.ErrChunkTooLarge}, wantErr: domain.ErrChunkTooLarge},
		{name: "attempts exhausted", results: []error{transient, transient, transient}, wantErr: transient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			svc, chunks, _, _ := newMockedService(ctrl)
			svc.cfg.Store.MaxRetries = 3

			calls := make([]any, 0, len(tt.results))
			for _, res := range tt.results {
				calls = append(calls, chunks.EXPECT().PutChunk(gomock.Any(), "f", 0, gomock.Any()).Return(res))
			}
			gomock.InOrder(calls...)

			err := svc.chunkWriter.writeChunk(context.Background(), "f", 0, []byte("ab"))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
