package mongo

import (
	"context"
	"errors"
	"fmt"

	"github.com/anthanhphan/go-blob-store/internal/storage/domain"
	"github.com/anthanhphan/go-blob-store/internal/storage/port"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type chunkDocument struct {
	FilesID string `bson:"files_id"`
	N       int    `bson:"n"`
	Data    []byte `bson:"data"`
}

// ChunkStore keeps chunks in <bucket>.chunks.
type ChunkStore struct {
	col      *mongo.Collection
	maxChunk int
}

var _ port.ChunkStore = (*ChunkStore)(nil)

func NewChunkStore(db *mongo.Database, bucket string, maxChunk int) *ChunkStore {
	return &ChunkStore{col: db.Collection(chunksCollection(bucket)), maxChunk: maxChunk}
}

// PutChunk upserts on (files_id, n) so a retried write replaces itself.
func (s *ChunkStore) PutChunk(ctx context.Context, fileID string, seq int, payload []byte) error {
	if err := domain.ValidateChunk(fileID, seq, payload, s.maxChunk); err != nil {
		return err
	}
	filter := bson.D{{Key: "files_id", Value: fileID}, {Key: "n", Value: seq}}
	doc := chunkDocument{FilesID: fileID, N: seq, Data: payload}
	if _, err := s.col.ReplaceOne(ctx, filter, doc, options.Replace().SetUpsert(true)); err != nil {
		return fmt.Errorf("put chunk %s/%d: %w", fileID, seq, err)
	}
	return nil
}

func (s *ChunkStore) GetChunksInOrder(ctx context.Context, fileID string) (domain.ChunkIterator, error) {
	return domain.NewSequentialIterator(ctx, fileID, s.fetch)
}

func (s *ChunkStore) fetch(ctx context.Context, fileID string, seq int) ([]byte, bool, error) {
	var doc chunkDocument
	err := s.col.FindOne(ctx, bson.D{{Key: "files_id", Value: fileID}, {Key: "n", Value: seq}}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get chunk %s/%d: %w", fileID, seq, err)
	}
	return doc.Data, true, nil
}

func (s *ChunkStore) DeleteChunks(ctx context.Context, fileID string) (int, error) {
	res, err := s.col.DeleteMany(ctx, bson.D{{Key: "files_id", Value: fileID}})
	if err != nil {
		return 0, fmt.Errorf("delete chunks of %s: %w", fileID, err)
	}
	return int(res.DeletedCount), nil
}
