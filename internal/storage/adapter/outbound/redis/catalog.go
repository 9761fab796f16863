// Package redis keeps the metadata catalog in Redis: one JSON string per file
// plus a sorted set of file IDs scored by upload time.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/anthanhphan/go-blob-store/internal/storage/config"
	"github.com/anthanhphan/go-blob-store/internal/storage/domain"
	"github.com/anthanhphan/go-blob-store/internal/storage/port"
	"github.com/anthanhphan/gosdk/logger"
	"github.com/redis/go-redis/v9"
)

const pingTimeout = 3 * time.Second

// NewClient connects to cfg.Addr and verifies the server answers.
func NewClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", cfg.Addr, err)
	}
	return client, nil
}

// Catalog implements port.MetadataCatalog on Redis.
type Catalog struct {
	client redis.Cmdable
	prefix string
}

var _ port.MetadataCatalog = (*Catalog)(nil)

func NewCatalog(client redis.Cmdable, prefix string) *Catalog {
	return &Catalog{client: client, prefix: prefix}
}

func (c *Catalog) metaKey(id string) string { return c.prefix + ":meta:" + id }
func (c *Catalog) indexKey() string         { return c.prefix + ":files" }

func (c *Catalog) ListAll(ctx context.Context) ([]domain.FileMetadata, error) {
	ids, err := c.client.ZRange(ctx, c.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list file ids: %w", err)
	}
	files := make([]domain.FileMetadata, 0, len(ids))
	if len(ids) == 0 {
		return files, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = c.metaKey(id)
	}
	values, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load metadata: %w", err)
	}

	var stale []any
	for i, value := range values {
		raw, ok := value.(string)
		if !ok {
			stale = append(stale, ids[i])
			continue
		}
		var meta domain.FileMetadata
		if err := json.Unmarshal([]byte(raw), &meta); err != nil {
			return nil, fmt.Errorf("decode metadata %s: %w", ids[i], err)
		}
		files = append(files, meta)
	}
	if len(stale) > 0 {
		if err := c.client.ZRem(ctx, c.indexKey(), stale...).Err(); err != nil {
			logger.Warnw("Failed to drop stale catalog index entries", "count", len(stale), "error", err.Error())
		}
	}

	domain.SortByUploadTime(files)
	return files, nil
}

func (c *Catalog) Get(ctx context.Context, id string) (*domain.FileMetadata, error) {
	raw, err := c.client.Get(ctx, c.metaKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get metadata %s: %w", id, err)
	}
	var meta domain.FileMetadata
	if err := json.Unmarshal([]byte(raw), &meta); err != nil {
		return nil, fmt.Errorf("decode metadata %s: %w", id, err)
	}
	return &meta, nil
}

func (c *Catalog) Publish(ctx context.Context, meta domain.FileMetadata) error {
	raw, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("encode metadata %s: %w", meta.ID, err)
	}

	created, err := c.client.SetNX(ctx, c.metaKey(meta.ID), string(raw), 0).Result()
	if err != nil {
		return fmt.Errorf("publish metadata %s: %w", meta.ID, err)
	}
	if !created {
		return domain.ErrAlreadyExists
	}

	score := float64(domain.Timestamp(meta.UploadedAt).UnixMilli())
	if err := c.client.ZAdd(ctx, c.indexKey(), redis.Z{Score: score, Member: meta.ID}).Err(); err != nil {
		// Without an index entry the record would never be listed.
		if delErr := c.client.Del(context.WithoutCancel(ctx), c.metaKey(meta.ID)).Err(); delErr != nil {
			logger.Errorw("Failed to roll back metadata", "file_id", meta.ID, "error", delErr.Error())
		}
		return fmt.Errorf("index metadata %s: %w", meta.ID, err)
	}
	return nil
}

func (c *Catalog) Remove(ctx context.Context, id string) error {
	var del *redis.IntCmd
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, c.metaKey(id))
		pipe.ZRem(ctx, c.indexKey(), id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("remove metadata %s: %w", id, err)
	}
	if del.Val() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
