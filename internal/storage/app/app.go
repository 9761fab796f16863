// Package app assembles a blob store from configuration. The HTTP API and
// the CLI both open their store through here.
package app

import (
	"context"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/anthanhphan/go-blob-store/internal/storage/adapter/outbound/lsm"
	"github.com/anthanhphan/go-blob-store/internal/storage/adapter/outbound/memory"
	"github.com/anthanhphan/go-blob-store/internal/storage/adapter/outbound/mongo"
	"github.com/anthanhphan/go-blob-store/internal/storage/adapter/outbound/postgres"
	"github.com/anthanhphan/go-blob-store/internal/storage/adapter/outbound/redis"
	"github.com/anthanhphan/go-blob-store/internal/storage/adapter/outbound/s3"
	"github.com/anthanhphan/go-blob-store/internal/storage/config"
	"github.com/anthanhphan/go-blob-store/internal/storage/port"
	"github.com/anthanhphan/go-blob-store/internal/storage/service"
	"github.com/anthanhphan/go-blob-store/pkg/idgen"
	"github.com/anthanhphan/gosdk/logger"
)

// Store is an opened blob store together with the connections it owns.
type Store struct {
	*service.BlobService
	cfg     *config.Config
	closers []closer
}

type closer struct {
	name string
	fn   func() error
}

// wiring collects shared connections while backends are selected.
type wiring struct {
	ctx    context.Context
	cfg    *config.Config
	store  *Store
	engine *lsm.Engine
	mongo  *mongo.Client
	redis  *goredis.Client
}

// Open connects every configured backend and returns a ready store.
// On error, everything opened so far is released.
func Open(ctx context.Context, cfg *config.Config) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	w := &wiring{ctx: ctx, cfg: cfg, store: &Store{cfg: cfg}}

	chunks, err := w.chunkStore()
	if err != nil {
		_ = w.store.Close()
		return nil, err
	}
	catalog, err := w.catalog()
	if err != nil {
		_ = w.store.Close()
		return nil, err
	}
	ids, err := w.idGenerator()
	if err != nil {
		_ = w.store.Close()
		return nil, err
	}

	w.store.BlobService = service.NewBlobService(cfg, chunks, catalog, ids)
	logger.Infow("Blob store opened",
		"chunks", cfg.Backend.Chunks,
		"catalog", cfg.Backend.Catalog,
		"id_scheme", cfg.Store.IDScheme,
		"chunk_size", cfg.Store.ChunkSize,
		"max_upload_size", cfg.Store.MaxUploadSize)
	return w.store, nil
}

// Config returns the configuration the store was opened with.
func (s *Store) Config() *config.Config { return s.cfg }

// Close releases connections in reverse order of opening.
func (s *Store) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		c := s.closers[i]
		if err := c.fn(); err != nil {
			logger.Warnw("Failed to close backend", "backend", c.name, "error", err.Error())
			errs = append(errs, fmt.Errorf("close %s: %w", c.name, err))
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

func (w *wiring) onClose(name string, fn func() error) {
	w.store.closers = append(w.store.closers, closer{name: name, fn: fn})
}

func (w *wiring) lsmEngine() (*lsm.Engine, error) {
	if w.engine != nil {
		return w.engine, nil
	}
	engine, err := lsm.Open(w.cfg.LSM)
	if err != nil {
		return nil, fmt.Errorf("failed to open lsm engine: %w", err)
	}
	w.engine = engine
	w.onClose("lsm", engine.Close)
	return engine, nil
}

func (w *wiring) mongoClient() (*mongo.Client, error) {
	if w.mongo != nil {
		return w.mongo, nil
	}
	client, err := mongo.Connect(w.ctx, w.cfg.Mongo)
	if err != nil {
		return nil, err
	}
	w.onClose("mongo", func() error { return client.Close(context.Background()) })
	if err := client.EnsureIndexes(w.ctx); err != nil {
		return nil, err
	}
	w.mongo = client
	return client, nil
}

func (w *wiring) redisClient() (*goredis.Client, error) {
	if w.redis != nil {
		return w.redis, nil
	}
	client, err := redis.NewClient(w.ctx, w.cfg.Redis)
	if err != nil {
		return nil, err
	}
	w.redis = client
	w.onClose("redis", client.Close)
	return client, nil
}

func (w *wiring) chunkStore() (port.ChunkStore, error) {
	maxChunk := int(w.cfg.Store.ChunkSize)

	switch w.cfg.Backend.Chunks {
	case config.BackendMemory:
		return memory.NewChunkStore(maxChunk), nil
	case config.BackendLSM:
		engine, err := w.lsmEngine()
		if err != nil {
			return nil, err
		}
		return lsm.NewChunkStore(engine, maxChunk), nil
	case config.BackendMongo:
		client, err := w.mongoClient()
		if err != nil {
			return nil, err
		}
		return mongo.NewChunkStore(client.Database(), client.Bucket(), maxChunk), nil
	case config.BackendS3:
		store, err := s3.New(w.cfg.S3, maxChunk)
		if err != nil {
			return nil, err
		}
		if err := store.EnsureBucket(w.ctx, w.cfg.S3.Region); err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown chunk backend %q", w.cfg.Backend.Chunks)
	}
}

func (w *wiring) catalog() (port.MetadataCatalog, error) {
	switch w.cfg.Backend.Catalog {
	case config.BackendMemory:
		return memory.NewCatalog(), nil
	case config.BackendLSM:
		engine, err := w.lsmEngine()
		if err != nil {
			return nil, err
		}
		return lsm.NewCatalog(engine), nil
	case config.BackendMongo:
		client, err := w.mongoClient()
		if err != nil {
			return nil, err
		}
		return mongo.NewCatalog(client.Database(), client.Bucket()), nil
	case config.BackendRedis:
		client, err := w.redisClient()
		if err != nil {
			return nil, err
		}
		return redis.NewCatalog(client, w.cfg.Redis.KeyPrefix), nil
	case config.BackendPostgres:
		pool, err := postgres.Connect(w.ctx, w.cfg.Postgres.DSN)
		if err != nil {
			return nil, err
		}
		w.onClose("postgres", func() error { pool.Close(); return nil })
		catalog := postgres.NewCatalog(pool, w.cfg.Postgres.Table)
		if err := catalog.EnsureSchema(w.ctx); err != nil {
			return nil, err
		}
		return catalog, nil
	default:
		return nil, fmt.Errorf("unknown catalog backend %q", w.cfg.Backend.Catalog)
	}
}

func (w *wiring) idGenerator() (port.IDGenerator, error) {
	switch w.cfg.Store.IDScheme {
	case config.IDSchemeUUID:
		return idgen.UUID{}, nil
	case config.IDSchemeSnowflake:
		var clock idgen.Clock = idgen.SystemClock{}
		if w.cfg.Redis.UseClock {
			client, err := w.redisClient()
			if err != nil {
				return nil, err
			}
			clock = idgen.NewRedisClock(client)
		}
		gen, err := idgen.New(w.cfg.Store.NodeID, clock)
		if err != nil {
			return nil, fmt.Errorf("failed to init snowflake: %w", err)
		}
		return gen, nil
	default:
		return nil, fmt.Errorf("unknown id scheme %q", w.cfg.Store.IDScheme)
	}
}
