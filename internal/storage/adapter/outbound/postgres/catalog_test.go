package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/anthanhphan/go-blob-store/internal/storage/domain"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var uploadedAt = time.Date(2025, 7, 8, 9, 10, 11, 0, time.UTC)

func newMock(t *testing.T) (pgxmock.PgxPoolIface, *Catalog) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock, NewCatalog(mock, "file_metadata")
}

func metaRows() *pgxmock.Rows {
	return pgxmock.NewRows(columns)
}

func TestCatalog_Publish(t *testing.T) {
	meta := domain.FileMetadata{
		ID: "a", Name: "a.pdf", SizeBytes: 3, ContentType: "application/pdf",
		UploadedAt: uploadedAt, Tags: map[string]string{"uploadedBy": "CLI"}, ChunkSize: 4,
	}
	insert := regexp.QuoteMeta("INSERT INTO file_metadata (id,name,size_bytes,content_type,uploaded_at,tags,chunk_size,digest) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)")

	tests := []struct {
		name    string
		execErr error
		wantErr error
	}{
		{name: "Success"},
		{name: "Duplicate", execErr: &pgconn.PgError{Code: uniqueViolation}, wantErr: domain.ErrAlreadyExists},
		{name: "Failure", execErr: errors.New("connection reset"), wantErr: errors.New("connection reset")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, catalog := newMock(t)
			exp := mock.ExpectExec(insert).
				WithArgs("a", "a.pdf", int64(3), "application/pdf", uploadedAt, []byte(`{"uploadedBy":"CLI"}`), int64(4), "")
			if tt.execErr != nil {
				exp.WillReturnError(tt.execErr)
			} else {
				exp.WillReturnResult(pgxmock.NewResult("INSERT", 1))
			}

			err := catalog.Publish(context.Background(), meta)
			switch {
			case tt.wantErr == nil:
				assert.NoError(t, err)
			case errors.Is(tt.wantErr, domain.ErrAlreadyExists):
				assert.ErrorIs(t, err, domain.ErrAlreadyExists)
			default:
				assert.ErrorContains(t, err, tt.wantErr.Error())
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestCatalog_Get(t *testing.T) {
	mock, catalog := newMock(t)
	query := regexp.QuoteMeta("SELECT id, name, size_bytes, content_type, uploaded_at, tags, chunk_size, digest FROM file_metadata WHERE id = $1")

	mock.ExpectQuery(query).WithArgs("a").
		WillReturnRows(metaRows().AddRow("a", "a.pdf", int64(3), "application/pdf", uploadedAt, []byte(`{"uploadedBy":"CLI"}`), int64(4), "d1"))
	mock.ExpectQuery(query).WithArgs("b").WillReturnRows(metaRows())

	got, err := catalog.Get(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, "a.pdf", got.Name)
	assert.Equal(t, "CLI", got.Tags["uploadedBy"])
	assert.Equal(t, "d1", got.Digest)
	assert.True(t, got.UploadedAt.Equal(uploadedAt))

	_, err = catalog.Get(context.Background(), "b")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCatalog_ListAll(t *testing.T) {
	mock, catalog := newMock(t)
	query := regexp.QuoteMeta("FROM file_metadata ORDER BY uploaded_at, id")

	mock.ExpectQuery(query).WillReturnRows(metaRows().
		AddRow("a", "a.pdf", int64(1), "application/pdf", uploadedAt, []byte(nil), int64(4), "").
		AddRow("b", "b.pdf", int64(2), "application/pdf", uploadedAt.Add(time.Second), []byte(`{}`), int64(4), ""))
	mock.ExpectQuery(query).WillReturnRows(metaRows())

	files, err := catalog.ListAll(context.Background())
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "a", files[0].ID)
	assert.Nil(t, files[0].Tags)
	assert.Equal(t, "b", files[1].ID)

	files, err = catalog.ListAll(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, files)
	assert.Empty(t, files)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCatalog_Remove(t *testing.T) {
	mock, catalog := newMock(t)
	del := regexp.QuoteMeta("DELETE FROM file_metadata WHERE id = $1")

	mock.ExpectExec(del).WithArgs("a").WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec(del).WithArgs("a").WillReturnResult(pgxmock.NewResult("DELETE", 0))

	require.NoError(t, catalog.Remove(context.Background(), "a"))
	assert.ErrorIs(t, catalog.Remove(context.Background(), "a"), domain.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCatalog_EnsureSchema(t *testing.T) {
	mock, catalog := newMock(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS file_metadata").WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))

	require.NoError(t, catalog.EnsureSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
