package lsm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthanhphan/go-blob-store/internal/storage/domain"
	"github.com/anthanhphan/go-blob-store/internal/storage/port"
)

const metaKeyPrefix = "meta:"

// Catalog stores metadata records as JSON values in the segment log.
type Catalog struct {
	engine *Engine
}

var _ port.MetadataCatalog = (*Catalog)(nil)

func NewCatalog(engine *Engine) *Catalog {
	return &Catalog{engine: engine}
}

func (c *Catalog) ListAll(ctx context.Context) ([]domain.FileMetadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	keys := c.engine.Keys(metaKeyPrefix)
	files := make([]domain.FileMetadata, 0, len(keys))
	for _, key := range keys {
		raw, found, err := c.engine.Get(key)
		if err != nil {
			return nil, err
		}
		if !found {
			continue // removed since Keys
		}
		var meta domain.FileMetadata
		if err := json.Unmarshal(raw, &meta); err != nil {
			return nil, fmt.Errorf("decode %s: %w", key, err)
		}
		files = append(files, meta)
	}
	domain.SortByUploadTime(files)
	return files, nil
}

func (c *Catalog) Get(ctx context.Context, id string) (*domain.FileMetadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	raw, found, err := c.engine.Get(metaKeyPrefix + id)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, domain.ErrNotFound
	}
	var meta domain.FileMetadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("decode metadata %s: %w", id, err)
	}
	return &meta, nil
}

func (c *Catalog) Publish(ctx context.Context, meta domain.FileMetadata) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("encode metadata %s: %w", meta.ID, err)
	}
	written, err := c.engine.PutIfAbsent(metaKeyPrefix+meta.ID, "", raw)
	if err != nil {
		return err
	}
	if !written {
		return domain.ErrAlreadyExists
	}
	return nil
}

func (c *Catalog) Remove(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	removed, err := c.engine.Delete(metaKeyPrefix + id)
	if err != nil {
		return err
	}
	if !removed {
		return domain.ErrNotFound
	}
	return nil
}
