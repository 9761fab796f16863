package redis

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/anthanhphan/go-blob-store/internal/storage/domain"
	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var uploadedAt = time.Date(2025, 5, 6, 7, 8, 9, 0, time.UTC)

func sampleMeta(id string, at time.Time) domain.FileMetadata {
	return domain.FileMetadata{
		ID:          id,
		Name:        id + ".png",
		SizeBytes:   10,
		ContentType: "image/png",
		UploadedAt:  at,
		Tags:        map[string]string{"uploadedBy": "anonymous"},
		ChunkSize:   domain.DefaultChunkSize,
	}
}

func encode(t *testing.T, meta domain.FileMetadata) string {
	t.Helper()
	raw, err := json.Marshal(meta)
	require.NoError(t, err)
	return string(raw)
}

func TestCatalog_Publish(t *testing.T) {
	meta := sampleMeta("a", uploadedAt)
	z := redis.Z{Score: float64(uploadedAt.UnixMilli()), Member: "a"}

	tests := []struct {
		name    string
		setup   func(mock redismock.ClientMock, raw string)
		wantErr error
	}{
		{
			name: "Success",
			setup: func(mock redismock.ClientMock, raw string) {
				mock.ExpectSetNX("bs:meta:a", raw, 0).SetVal(true)
				mock.ExpectZAdd("bs:files", z).SetVal(1)
			},
		},
		{
			name: "AlreadyExists",
			setup: func(mock redismock.ClientMock, raw string) {
				mock.ExpectSetNX("bs:meta:a", raw, 0).SetVal(false)
			},
			wantErr: domain.ErrAlreadyExists,
		},
		{
			name: "IndexFailureRollsBack",
			setup: func(mock redismock.ClientMock, raw string) {
				mock.ExpectSetNX("bs:meta:a", raw, 0).SetVal(true)
				mock.ExpectZAdd("bs:files", z).SetErr(errors.New("boom"))
				mock.ExpectDel("bs:meta:a").SetVal(1)
			},
			wantErr: errors.New("boom"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := redismock.NewClientMock()
			tt.setup(mock, encode(t, meta))

			err := NewCatalog(db, "bs").Publish(context.Background(), meta)
			switch {
			case tt.wantErr == nil:
				assert.NoError(t, err)
			case errors.Is(tt.wantErr, domain.ErrAlreadyExists):
				assert.ErrorIs(t, err, tt.wantErr)
			default:
				assert.ErrorContains(t, err, tt.wantErr.Error())
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestCatalog_Get(t *testing.T) {
	db, mock := redismock.NewClientMock()
	catalog := NewCatalog(db, "bs")
	meta := sampleMeta("a", uploadedAt)

	mock.ExpectGet("bs:meta:a").SetVal(encode(t, meta))
	mock.ExpectGet("bs:meta:b").RedisNil()

	got, err := catalog.Get(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, "a.png", got.Name)
	assert.True(t, got.UploadedAt.Equal(uploadedAt))

	_, err = catalog.Get(context.Background(), "b")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCatalog_ListAll(t *testing.T) {
	db, mock := redismock.NewClientMock()
	catalog := NewCatalog(db, "bs")
	first := sampleMeta("a", uploadedAt)
	second := sampleMeta("c", uploadedAt.Add(time.Minute))

	mock.ExpectZRange("bs:files", 0, -1).SetVal([]string{"a", "b", "c"})
	mock.ExpectMGet("bs:meta:a", "bs:meta:b", "bs:meta:c").SetVal([]interface{}{encode(t, first), nil, encode(t, second)})
	mock.ExpectZRem("bs:files", "b").SetVal(1)

	files, err := catalog.ListAll(context.Background())
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "a", files[0].ID)
	assert.Equal(t, "c", files[1].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCatalog_ListAllEmpty(t *testing.T) {
	db, mock := redismock.NewClientMock()
	mock.ExpectZRange("bs:files", 0, -1).SetVal([]string{})

	files, err := NewCatalog(db, "bs").ListAll(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, files)
	assert.Empty(t, files)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCatalog_Remove(t *testing.T) {
	tests := []struct {
		name    string
		deleted int64
		wantErr error
	}{
		{name: "Removed", deleted: 1},
		{name: "Missing", deleted: 0, wantErr: domain.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := redismock.NewClientMock()
			mock.ExpectTxPipeline()
			mock.ExpectDel("bs:meta:a").SetVal(tt.deleted)
			mock.ExpectZRem("bs:files", "a").SetVal(tt.deleted)
			mock.ExpectTxPipelineExec()

			err := NewCatalog(db, "bs").Remove(context.Background(), "a")
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}
