package service

import (
	"context"
	"errors"
	"testing"

	"github.com/anthanhphan/go-blob-store/internal/storage/config"
	"github.com/anthanhphan/go-blob-store/internal/storage/domain"
	"github.com/anthanhphan/go-blob-store/internal/storage/service/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

// compactingStore is a chunk store that also reclaims space lazily.
type compactingStore struct {
	*mocks.MockChunkStore
	*mocks.MockCompactor
}

type nopIterator struct{}

func (nopIterator) Next(context.Context) (*domain.Chunk, error) { return nil, nil }
func (nopIterator) Close() error                                { return nil }

func TestReconcileService_Reconcile(t *testing.T) {
	type mockSetup func(chunks *mocks.MockChunkStore, compactor *mocks.MockCompactor, catalog *mocks.MockMetadataCatalog)

	files := []domain.FileMetadata{
		{ID: "live", SizeBytes: 10},
		{ID: "empty", SizeBytes: 0},
		{ID: "orphan", SizeBytes: 10},
	}

	tests := []struct {
		name       string
		setup      mockSetup
		wantReport domain.ReconcileReport
		wantErr    bool
	}{
		{
			name: "RemovesOrphansAndCompacts",
			setup: func(chunks *mocks.MockChunkStore, compactor *mocks.MockCompactor, catalog *mocks.MockMetadataCatalog) {
				catalog.EXPECT().ListAll(gomock.Any()).Return(files, nil)
				chunks.EXPECT().GetChunksInOrder(gomock.Any(), "live").Return(nopIterator{}, nil)
				chunks.EXPECT().GetChunksInOrder(gomock.Any(), "orphan").Return(nil, domain.ErrNotFound)
				catalog.EXPECT().Remove(gomock.Any(), "orphan").Return(nil)
				compactor.EXPECT().Compact().Return(nil)
			},
			wantReport: domain.ReconcileReport{Scanned: 3, Removed: 1},
		},
		{
			name: "NothingToDo",
			setup: func(chunks *mocks.MockChunkStore, compactor *mocks.MockCompactor, catalog *mocks.MockMetadataCatalog) {
				catalog.EXPECT().ListAll(gomock.Any()).Return(files[:2], nil)
				chunks.EXPECT().GetChunksInOrder(gomock.Any(), "live").Return(nopIterator{}, nil)
				// no removal, no compaction
			},
			wantReport: domain.ReconcileReport{Scanned: 2},
		},
		{
			name: "ProbeFailureIsCounted",
			setup: func(chunks *mocks.MockChunkStore, compactor *mocks.MockCompactor, catalog *mocks.MockMetadataCatalog) {
				catalog.EXPECT().ListAll(gomock.Any()).Return(files, nil)
				chunks.EXPECT().GetChunksInOrder(gomock.Any(), "live").Return(nil, errors.New("timeout"))
				chunks.EXPECT().GetChunksInOrder(gomock.Any(), "orphan").Return(nil, domain.ErrNotFound)
				catalog.EXPECT().Remove(gomock.Any(), "orphan").Return(errors.New("catalog offline"))
			},
			wantReport: domain.ReconcileReport{Scanned: 3, Failed: 2},
		},
		{
			name: "ConcurrentDeleteWins",
			setup: func(chunks *mocks.MockChunkStore, compactor *mocks.MockCompactor, catalog *mocks.MockMetadataCatalog) {
				catalog.EXPECT().ListAll(gomock.Any()).Return(files[2:], nil)
				chunks.EXPECT().GetChunksInOrder(gomock.Any(), "orphan").Return(nil, domain.ErrNotFound)
				catalog.EXPECT().Remove(gomock.Any(), "orphan").Return(domain.ErrNotFound)
			},
			wantReport: domain.ReconcileReport{Scanned: 1},
		},
		{
			name: "CompactionFailureIsLogged",
			setup: func(chunks *mocks.MockChunkStore, compactor *mocks.MockCompactor, catalog *mocks.MockMetadataCatalog) {
				catalog.EXPECT().ListAll(gomock.Any()).Return(files[2:], nil)
				chunks.EXPECT().GetChunksInOrder(gomock.Any(), "orphan").Return(nil, domain.ErrNotFound)
				catalog.EXPECT().Remove(gomock.Any(), "orphan").Return(nil)
				compactor.EXPECT().Compact().Return(errors.New("disk full"))
			},
			wantReport: domain.ReconcileReport{Scanned: 1, Removed: 1},
		},
		{
			name: "ListFailure",
			setup: func(chunks *mocks.MockChunkStore, compactor *mocks.MockCompactor, catalog *mocks.MockMetadataCatalog) {
				catalog.EXPECT().ListAll(gomock.Any()).Return(nil, errors.New("catalog offline"))
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			chunks := mocks.NewMockChunkStore(ctrl)
			compactor := mocks.NewMockCompactor(ctrl)
			catalog := mocks.NewMockMetadataCatalog(ctrl)
			tt.setup(chunks, compactor, catalog)

			cfg := config.DefaultConfig()
			cfg.Store.ReconcileWorkers = 2
			svc := NewBlobService(cfg, compactingStore{chunks, compactor}, catalog, mocks.NewMockIDGenerator(ctrl))

			report, err := svc.Reconcile(context.Background())
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantReport, report)
		})
	}
}
