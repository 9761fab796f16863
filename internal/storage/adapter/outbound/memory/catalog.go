package memory

import (
	"context"
	"sync"

	"github.com/anthanhphan/go-blob-store/internal/storage/domain"
	"github.com/anthanhphan/go-blob-store/internal/storage/port"
)

// Catalog is an in-memory metadata catalog.
type Catalog struct {
	mu    sync.RWMutex
	files map[string]domain.FileMetadata
}

var _ port.MetadataCatalog = (*Catalog)(nil)

func NewCatalog() *Catalog {
	return &Catalog{files: make(map[string]domain.FileMetadata)}
}

func (c *Catalog) ListAll(ctx context.Context) ([]domain.FileMetadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.RLock()
	out := make([]domain.FileMetadata, 0, len(c.files))
	for _, meta := range c.files {
		out = append(out, meta.Clone())
	}
	c.mu.RUnlock()

	domain.SortByUploadTime(out)
	return out, nil
}

func (c *Catalog) Get(ctx context.Context, id string) (*domain.FileMetadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	meta, ok := c.files[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	out := meta.Clone()
	return &out, nil
}

func (c *Catalog) Publish(ctx context.Context, meta domain.FileMetadata) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.files[meta.ID]; ok {
		return domain.ErrAlreadyExists
	}
	meta.UploadedAt = domain.Timestamp(meta.UploadedAt)
	c.files[meta.ID] = meta.Clone()
	return nil
}

func (c *Catalog) Remove(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.files[id]; !ok {
		return domain.ErrNotFound
	}
	delete(c.files, id)
	return nil
}
