package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/anthanhphan/go-blob-store/internal/storage/domain"
	"github.com/anthanhphan/go-blob-store/internal/storage/port"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// fileDocument mirrors a GridFS files entry. Tags live under metadata.
type fileDocument struct {
	ID          string            `bson:"_id"`
	Filename    string            `bson:"filename"`
	Length      int64             `bson:"length"`
	ChunkSize   int64             `bson:"chunkSize"`
	UploadDate  time.Time         `bson:"uploadDate"`
	ContentType string            `bson:"contentType"`
	Metadata    map[string]string `bson:"metadata,omitempty"`
	Digest      string            `bson:"digest,omitempty"`
}

func toDocument(meta domain.FileMetadata) fileDocument {
	return fileDocument{
		ID:          meta.ID,
		Filename:    meta.Name,
		Length:      meta.SizeBytes,
		ChunkSize:   meta.ChunkSize,
		UploadDate:  domain.Timestamp(meta.UploadedAt),
		ContentType: meta.ContentType,
		Metadata:    meta.Tags,
		Digest:      meta.Digest,
	}
}

func (d fileDocument) toDomain() domain.FileMetadata {
	return domain.FileMetadata{
		ID:          d.ID,
		Name:        d.Filename,
		SizeBytes:   d.Length,
		ContentType: d.ContentType,
		UploadedAt:  d.UploadDate.UTC(),
		Tags:        d.Metadata,
		ChunkSize:   d.ChunkSize,
		Digest:      d.Digest,
	}
}

// Catalog keeps metadata in <bucket>.files.
type Catalog struct {
	col *mongo.Collection
}

var _ port.MetadataCatalog = (*Catalog)(nil)

func NewCatalog(db *mongo.Database, bucket string) *Catalog {
	return &Catalog{col: db.Collection(filesCollection(bucket))}
}

func (c *Catalog) ListAll(ctx context.Context) ([]domain.FileMetadata, error) {
	opts := options.Find().SetSort(bson.D{{Key: "uploadDate", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := c.col.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	defer func() { _ = cur.Close(ctx) }()

	var docs []fileDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode files: %w", err)
	}
	files := make([]domain.FileMetadata, 0, len(docs))
	for _, doc := range docs {
		files = append(files, doc.toDomain())
	}
	// Server order is authoritative only with the index in place.
	domain.SortByUploadTime(files)
	return files, nil
}

func (c *Catalog) Get(ctx context.Context, id string) (*domain.FileMetadata, error) {
	var doc fileDocument
	err := c.col.FindOne(ctx, bson.D{{Key: "_id", Value: id}}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get file %s: %w", id, err)
	}
	meta := doc.toDomain()
	return &meta, nil
}

func (c *Catalog) Publish(ctx context.Context, meta domain.FileMetadata) error {
	_, err := c.col.InsertOne(ctx, toDocument(meta))
	if mongo.IsDuplicateKeyError(err) {
		return domain.ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("publish file %s: %w", meta.ID, err)
	}
	return nil
}

func (c *Catalog) Remove(ctx context.Context, id string) error {
	res, err := c.col.DeleteOne(ctx, bson.D{{Key: "_id", Value: id}})
	if err != nil {
		return fmt.Errorf("remove file %s: %w", id, err)
	}
	if res.DeletedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}
