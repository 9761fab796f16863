package domain

import (
	"context"
	"fmt"
)

const (
	// DefaultChunkSize is the reference chunk window (255 KiB).
	DefaultChunkSize = 255 * 1024

	// DefaultMaxUploadSize is the reference upload ceiling (15 MiB).
	DefaultMaxUploadSize = 15 * 1024 * 1024
)

// Chunk is one bounded slice of a file's content.
// Sequence numbers are zero-based and contiguous within a file.
type Chunk struct {
	FileID  string
	Seq     int
	Payload []byte
}

// NewChunk validates a chunk against the configured maximum payload size.
// Oversized payloads are rejected, never truncated.
func NewChunk(fileID string, seq int, payload []byte, maxSize int) (*Chunk, error) {
	if err := ValidateChunk(fileID, seq, payload, maxSize); err != nil {
		return nil, err
	}
	return &Chunk{FileID: fileID, Seq: seq, Payload: payload}, nil
}

// ValidateChunk checks addressing and size bounds of a chunk.
func ValidateChunk(fileID string, seq int, payload []byte, maxSize int) error {
	if fileID == "" {
		return fmt.Errorf("empty file id")
	}
	if seq < 0 {
		return fmt.Errorf("negative sequence number %d", seq)
	}
	if maxSize > 0 && len(payload) > maxSize {
		return fmt.Errorf("%w: %d > %d bytes", ErrChunkTooLarge, len(payload), maxSize)
	}
	return nil
}

// ChunkIterator yields a file's chunks in ascending sequence order.
// Next returns io.EOF once the sequence is exhausted.
type ChunkIterator interface {
	Next(ctx context.Context) (*Chunk, error)
	Close() error
}

// ChunkFetchFunc loads a single chunk payload. found is false when no chunk
// is stored under (fileID, seq).
type ChunkFetchFunc func(ctx context.Context, fileID string, seq int) (payload []byte, found bool, err error)
