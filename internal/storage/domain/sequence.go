package domain

import (
	"context"
	"errors"
	"io"
	"sync"
)

// SequentialIterator walks seq 0,1,2,... through a fetch function and stops at
// the first missing sequence number. Every Next hits the backing store again,
// so chunks removed after the iterator was opened are observed.
type SequentialIterator struct {
	mu     sync.Mutex
	fileID string
	fetch  ChunkFetchFunc
	next   int
	head   []byte
	done   bool
	closed bool
}

var errIteratorClosed = errors.New("chunk iterator closed")

// NewSequentialIterator opens an iterator over fileID. It probes seq 0 so that
// a file without chunks fails fast with ErrNotFound; the probed payload is
// handed out by the first Next.
func NewSequentialIterator(ctx context.Context, fileID string, fetch ChunkFetchFunc) (*SequentialIterator, error) {
	head, found, err := fetch(ctx, fileID, 0)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrNotFound
	}
	return &SequentialIterator{fileID: fileID, fetch: fetch, head: head}, nil
}

// Next returns the next chunk or io.EOF.
func (it *SequentialIterator) Next(ctx context.Context) (*Chunk, error) {
	it.mu.Lock()
	defer it.mu.Unlock()

	if it.closed {
		return nil, errIteratorClosed
	}
	if it.done {
		return nil, io.EOF
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var (
		payload []byte
		found   bool
		err     error
	)
	if it.next == 0 && it.head != nil {
		payload, found = it.head, true
		it.head = nil
	} else {
		payload, found, err = it.fetch(ctx, it.fileID, it.next)
		if err != nil {
			return nil, err
		}
	}
	if !found {
		it.done = true
		return nil, io.EOF
	}

	chunk := &Chunk{FileID: it.fileID, Seq: it.next, Payload: payload}
	it.next++
	return chunk, nil
}

// Close releases the iterator. Further Next calls fail.
func (it *SequentialIterator) Close() error {
	it.mu.Lock()
	it.closed = true
	it.mu.Unlock()
	return nil
}
