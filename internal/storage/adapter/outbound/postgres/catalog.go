// Package postgres keeps the metadata catalog in a PostgreSQL table.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/anthanhphan/go-blob-store/internal/storage/domain"
	"github.com/anthanhphan/go-blob-store/internal/storage/port"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

var columns = []string{"id", "name", "size_bytes", "content_type", "uploaded_at", "tags", "chunk_size", "digest"}

// Querier is the subset of pgxpool.Pool the catalog uses.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Connect opens a connection pool for dsn and pings it.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

// Catalog implements port.MetadataCatalog on one table.
type Catalog struct {
	db    Querier
	table string
}

var _ port.MetadataCatalog = (*Catalog)(nil)

func NewCatalog(db Querier, table string) *Catalog {
	return &Catalog{db: db, table: table}
}

func (c *Catalog) qb() sq.StatementBuilderType {
	return sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
}

// EnsureSchema creates the table and its listing index when missing.
func (c *Catalog) EnsureSchema(ctx context.Context) error {
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %[1]s (
	id           TEXT PRIMARY KEY,
	name         TEXT NOT NULL,
	size_bytes   BIGINT NOT NULL,
	content_type TEXT NOT NULL,
	uploaded_at  TIMESTAMPTZ NOT NULL,
	tags         JSONB,
	chunk_size   BIGINT NOT NULL,
	digest       TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS %[1]s_uploaded_at_idx ON %[1]s (uploaded_at, id);`, c.table)
	if _, err := c.db.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("create table %s: %w", c.table, err)
	}
	return nil
}

func (c *Catalog) ListAll(ctx context.Context) ([]domain.FileMetadata, error) {
	sqlStr, args, err := c.qb().Select(columns...).From(c.table).OrderBy("uploaded_at", "id").ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := c.db.Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	defer rows.Close()

	files := make([]domain.FileMetadata, 0)
	for rows.Next() {
		meta, err := scanMetadata(rows)
		if err != nil {
			return nil, err
		}
		files = append(files, meta)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	return files, nil
}

func (c *Catalog) Get(ctx context.Context, id string) (*domain.FileMetadata, error) {
	sqlStr, args, err := c.qb().Select(columns...).From(c.table).Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, err
	}
	meta, err := scanMetadata(c.db.QueryRow(ctx, sqlStr, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get file %s: %w", id, err)
	}
	return &meta, nil
}

func (c *Catalog) Publish(ctx context.Context, meta domain.FileMetadata) error {
	var tags []byte
	if meta.Tags != nil {
		raw, err := json.Marshal(meta.Tags)
		if err != nil {
			return fmt.Errorf("encode tags of %s: %w", meta.ID, err)
		}
		tags = raw
	}

	sqlStr, args, err := c.qb().Insert(c.table).
		Columns(columns...).
		Values(meta.ID, meta.Name, meta.SizeBytes, meta.ContentType, domain.Timestamp(meta.UploadedAt), tags, meta.ChunkSize, meta.Digest).
		ToSql()
	if err != nil {
		return err
	}

	_, err = c.db.Exec(ctx, sqlStr, args...)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return domain.ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("publish file %s: %w", meta.ID, err)
	}
	return nil
}

func (c *Catalog) Remove(ctx context.Context, id string) error {
	sqlStr, args, err := c.qb().Delete(c.table).Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return err
	}
	tag, err := c.db.Exec(ctx, sqlStr, args...)
	if err != nil {
		return fmt.Errorf("remove file %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanMetadata(row pgx.Row) (domain.FileMetadata, error) {
	var (
		meta       domain.FileMetadata
		uploadedAt time.Time
		tags       []byte
	)
	if err := row.Scan(&meta.ID, &meta.Name, &meta.SizeBytes, &meta.ContentType, &uploadedAt, &tags, &meta.ChunkSize, &meta.Digest); err != nil {
		return domain.FileMetadata{}, err
	}
	meta.UploadedAt = uploadedAt.UTC()
	if len(tags) > 0 {
		if err := json.Unmarshal(tags, &meta.Tags); err != nil {
			return domain.FileMetadata{}, fmt.Errorf("decode tags of %s: %w", meta.ID, err)
		}
	}
	return meta, nil
}
