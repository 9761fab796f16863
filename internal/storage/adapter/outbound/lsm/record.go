package lsm

import (
	"encoding/binary"
	"errors"
	"io"

	"github.com/spaolacci/murmur3"
)

// Record layout, big endian:
//
//	Op(1) | KeyLen(4) | Key | ParentLen(4) | Parent | DataLen(4) | Data | Checksum(4)
//
// Checksum is murmur3-32 over every byte before it.
const (
	opPut    byte = 1
	opDelete byte = 2

	maxKeyLen  = 1024
	maxDataLen = 64 * 1024 * 1024
)

var (
	// errBadRecord means the framing itself is unreadable, so the next
	// record boundary is unknown.
	errBadRecord  = errors.New("malformed record")
	// errTornRecord means input ended inside a record.
	errTornRecord = errors.New("partial record")
	// errChecksum means the record is framed correctly but its bytes changed.
	// The returned size still locates the next record.
	errChecksum   = errors.New("record checksum mismatch")
)

type record struct {
	op     byte
	key    string
	parent string
	data   []byte
}

func (r record) encodedLen() int {
	return 1 + 4 + len(r.key) + 4 + len(r.parent) + 4 + len(r.data) + 4
}

// encode serializes r into a buffer that is written with a single Write.
func (r record) encode() []byte {
	buf := make([]byte, r.encodedLen())
	buf[0] = r.op
	off := 1
	for _, field := range [][]byte{[]byte(r.key), []byte(r.parent), r.data} {
		binary.BigEndian.PutUint32(buf[off:], uint32(len(field))) // #nosec G115
		off += 4
		off += copy(buf[off:], field)
	}
	binary.BigEndian.PutUint32(buf[off:], murmur3.Sum32(buf[:off]))
	return buf
}

// readRecord decodes one record from r. A clean end of input before the
// first byte yields io.EOF. On errChecksum the record size is still returned.
func readRecord(r io.Reader) (record, int64, error) {
	hasher := murmur3.New32()
	tee := io.TeeReader(r, hasher)

	var op [1]byte
	if _, err := io.ReadFull(tee, op[:]); err != nil {
		return record{}, 0, err
	}
	if op[0] != opPut && op[0] != opDelete {
		return record{}, 0, errBadRecord
	}

	key, err := readField(tee, maxKeyLen)
	if err != nil {
		return record{}, 0, err
	}
	if len(key) == 0 {
		return record{}, 0, errBadRecord
	}
	parent, err := readField(tee, maxKeyLen)
	if err != nil {
		return record{}, 0, err
	}
	data, err := readField(tee, maxDataLen)
	if err != nil {
		return record{}, 0, err
	}

	want := hasher.Sum32()
	var sum [4]byte
	if _, err := io.ReadFull(r, sum[:]); err != nil {
		return record{}, 0, readErr(err)
	}

	rec := record{op: op[0], key: string(key), parent: string(parent), data: data}
	size := int64(rec.encodedLen())
	if binary.BigEndian.Uint32(sum[:]) != want {
		return record{}, size, errChecksum
	}
	return rec, size, nil
}

func readField(r io.Reader, limit uint32) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, readErr(err)
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > limit {
		return nil, errBadRecord
	}
	field := make([]byte, n)
	if _, err := io.ReadFull(r, field); err != nil {
		return nil, readErr(err)
	}
	return field, nil
}

// readErr maps an end of input inside a record to errTornRecord.
func readErr(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return errTornRecord
	}
	return err
}
