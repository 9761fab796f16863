// Package mongo stores chunks and metadata using the GridFS collection layout:
// <bucket>.files holds one document per published file and <bucket>.chunks
// holds {files_id, n, data} documents.
package mongo

import (
	"context"
	"fmt"
	"time"

	"github.com/anthanhphan/go-blob-store/internal/storage/config"
	"github.com/anthanhphan/gosdk/logger"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const defaultTimeout = 10 * time.Second

var (
	connectMongo = func(ctx context.Context, opts *options.ClientOptions) (*mongo.Client, error) {
		return mongo.Connect(ctx, opts)
	}
	pingMongo = func(ctx context.Context, cli *mongo.Client) error {
		return cli.Ping(ctx, readpref.Primary())
	}
)

// Client owns the connection shared by ChunkStore and Catalog.
type Client struct {
	cli    *mongo.Client
	db     *mongo.Database
	bucket string
}

// Connect dials cfg.URI and verifies the primary is reachable.
func Connect(ctx context.Context, cfg config.MongoConfig) (*Client, error) {
	timeout := time.Duration(cfg.TimeoutMS) * time.Millisecond
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	opts := options.Client().
		ApplyURI(cfg.URI).
		SetConnectTimeout(timeout).
		SetServerSelectionTimeout(timeout)

	cli, err := connectMongo(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := pingMongo(pingCtx, cli); err != nil {
		_ = cli.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	logger.Infow("Connected to MongoDB", "database", cfg.Database, "bucket", cfg.Bucket)
	return &Client{cli: cli, db: cli.Database(cfg.Database), bucket: cfg.Bucket}, nil
}

// Database returns the database holding the bucket collections.
func (c *Client) Database() *mongo.Database { return c.db }

// Bucket returns the collection prefix.
func (c *Client) Bucket() string { return c.bucket }

// EnsureIndexes creates the indexes GridFS readers expect.
func (c *Client) EnsureIndexes(ctx context.Context) error {
	return EnsureIndexes(ctx, c.db, c.bucket)
}

func (c *Client) Close(ctx context.Context) error {
	return c.cli.Disconnect(ctx)
}

// EnsureIndexes creates a unique (files_id, n) index on the chunks collection
// and an upload-date index on the files collection.
func EnsureIndexes(ctx context.Context, db *mongo.Database, bucket string) error {
	_, err := db.Collection(chunksCollection(bucket)).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "files_id", Value: 1}, {Key: "n", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("create chunks index: %w", err)
	}
	_, err = db.Collection(filesCollection(bucket)).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "uploadDate", Value: 1}, {Key: "_id", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("create files index: %w", err)
	}
	return nil
}

func filesCollection(bucket string) string  { return bucket + ".files" }
func chunksCollection(bucket string) string { return bucket + ".chunks" }
