package lsm

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/anthanhphan/go-blob-store/internal/storage/config"
	"github.com/anthanhphan/go-blob-store/internal/storage/domain"
	"github.com/anthanhphan/gosdk/logger"
	"github.com/gofrs/flock"
)

const (
	// DefaultMaxSegmentSize is 64MB
	DefaultMaxSegmentSize = 64 * 1024 * 1024
	SegmentPrefix         = "segment_"
	SegmentSuffix         = ".log"
	// LockFile guards a data directory against a second engine.
	LockFile              = "LOCK"
)

var errEngineClosed = errors.New("lsm engine closed")

// ErrDirLocked is returned by Open when another engine, usually in another
// process, already owns the data directory.
var ErrDirLocked = errors.New("lsm data directory is in use by another process")

// IndexEntry stores the location of a live record in a specific segment file.
type IndexEntry struct {
	SegmentID uint64
	Offset    int64
	Size      int64
	Parent    string
}

// Engine is an append-only segmented log with an in-memory index. Deletes are
// written as tombstones so they survive a restart; Compact rewrites live
// records and drops everything else.
type Engine struct {
	indexMu      sync.RWMutex
	fileMu       sync.Mutex
	compactionMu sync.Mutex
	background   sync.WaitGroup

	dirPath        string
	dirLock        *flock.Flock
	activeFile     *os.File
	activeFileID   uint64
	activeSize     int64
	segmentCount   int
	maxSegmentSize int64

	index    map[string]IndexEntry
	children map[string]map[string]struct{}

	fsync               bool
	compactionThreshold int
	closed              bool
}

// Open initializes the engine in cfg.DataDir and rebuilds the index by
// replaying every segment. The directory stays locked until Close; the index
// lives in memory, so one directory serves exactly one engine.
func Open(cfg config.LSMConfig) (*Engine, error) {
	if err := os.MkdirAll(cfg.DataDir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	dirLock := flock.New(filepath.Join(cfg.DataDir, LockFile))
	locked, err := dirLock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to lock storage directory: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: %s", ErrDirLocked, cfg.DataDir)
	}

	maxSegment := cfg.MaxSegmentSize
	if maxSegment <= 0 {
		maxSegment = DefaultMaxSegmentSize
	}

	e := &Engine{
		dirPath:             filepath.Clean(cfg.DataDir),
		dirLock:             dirLock,
		maxSegmentSize:      maxSegment,
		index:               make(map[string]IndexEntry),
		children:            make(map[string]map[string]struct{}),
		fsync:               cfg.FSync,
		compactionThreshold: cfg.CompactionThreshold,
	}

	if err := e.replayLogs(); err != nil {
		_ = e.releaseDir()
		return nil, fmt.Errorf("failed to replay logs: %w", err)
	}
	return e, nil
}

func (e *Engine) segmentPath(id uint64) string {
	return filepath.Join(e.dirPath, fmt.Sprintf("%s%05d%s", SegmentPrefix, id, SegmentSuffix))
}

func (e *Engine) segmentIDs() ([]uint64, error) {
	matches, err := filepath.Glob(filepath.Join(e.dirPath, SegmentPrefix+"*"+SegmentSuffix))
	if err != nil {
		return nil, err
	}
	ids := make([]uint64, 0, len(matches))
	for _, m := range matches {
		var id uint64
		if _, err := fmt.Sscanf(filepath.Base(m), SegmentPrefix+"%d"+SegmentSuffix, &id); err == nil {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (e *Engine) replayLogs() error {
	ids, err := e.segmentIDs()
	if err != nil {
		return err
	}

	e.activeFileID = 1
	for i, id := range ids {
		if err := e.replaySegment(id, i == len(ids)-1); err != nil {
			return err
		}
		e.activeFileID = id
	}
	e.segmentCount = len(ids)
	if e.segmentCount == 0 {
		e.segmentCount = 1
	}
	return e.openActiveFileLocked()
}

// replaySegment applies every record of one segment to the index. Records
// whose checksum fails are skipped. A partial record at the end of the last
// segment is the remnant of an interrupted append and is cut off; anywhere
// else it means the log is damaged and replay stops.
func (e *Engine) replaySegment(id uint64, last bool) error {
	file, err := os.OpenFile(e.segmentPath(id), os.O_RDWR, 0600) // #nosec G304
	if err != nil {
		return err
	}
	defer func() { _ = file.Close() }()

	reader := bufio.NewReader(file)
	offset := int64(0)
	skipped := 0

	for {
		rec, size, err := readRecord(reader)
		switch {
		case err == nil:
			e.applyLocked(rec, IndexEntry{SegmentID: id, Offset: offset, Size: size, Parent: rec.parent})
			offset += size
			continue
		case err == io.EOF:
		case errors.Is(err, errChecksum):
			logger.Warnw("Skipping corrupt record during replay", "segment_id", id, "offset", offset, "size", size)
			skipped++
			offset += size
			continue
		case errors.Is(err, errTornRecord) && last:
			if err := file.Truncate(offset); err != nil {
				return fmt.Errorf("failed to truncate partial segment %d: %w", id, err)
			}
			logger.Warnw("Truncated partial segment tail during replay", "segment_id", id, "valid_bytes", offset)
		case errors.Is(err, errTornRecord), errors.Is(err, errBadRecord):
			return domain.Corruptedf("segment %d offset %d: %v", id, offset, err)
		default:
			return fmt.Errorf("failed to read segment %d: %w", id, err)
		}
		break
	}

	if skipped > 0 {
		logger.Warnw("Segment replayed with corrupt records", "segment_id", id, "skipped", skipped)
	}
	return nil
}

func (e *Engine) openActiveFileLocked() error {
	f, err := os.OpenFile(e.segmentPath(e.activeFileID), os.O_RDWR|os.O_CREATE|os.O_APPEND, 0600) // #nosec G304
	if err != nil {
		return fmt.Errorf("failed to open active segment: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return err
	}
	e.activeFile = f
	e.activeSize = info.Size()
	return nil
}

// applyLocked updates the index for a replayed or freshly appended record.
// Callers hold fileMu; readers are excluded here.
func (e *Engine) applyLocked(rec record, entry IndexEntry) {
	e.indexMu.Lock()
	defer e.indexMu.Unlock()

	if old, ok := e.index[rec.key]; ok {
		e.unlinkChild(old.Parent, rec.key)
	}
	switch rec.op {
	case opPut:
		e.index[rec.key] = entry
		if rec.parent != "" {
			set, ok := e.children[rec.parent]
			if !ok {
				set = make(map[string]struct{})
				e.children[rec.parent] = set
			}
			set[rec.key] = struct{}{}
		}
	case opDelete:
		delete(e.index, rec.key)
	}
}

func (e *Engine) unlinkChild(parent, key string) {
	if parent == "" {
		return
	}
	set := e.children[parent]
	delete(set, key)
	if len(set) == 0 {
		delete(e.children, parent)
	}
}

// appendLocked writes recs as one contiguous write and indexes them.
func (e *Engine) appendLocked(recs ...record) error {
	if e.closed {
		return errEngineClosed
	}

	var buf bytes.Buffer
	for _, rec := range recs {
		if len(rec.key) == 0 || len(rec.key) > maxKeyLen || len(rec.parent) > maxKeyLen {
			return fmt.Errorf("invalid key length for %q", rec.key)
		}
		if len(rec.data) > maxDataLen {
			return fmt.Errorf("record %q exceeds %d bytes", rec.key, maxDataLen)
		}
		buf.Write(rec.encode())
	}

	if _, err := e.activeFile.Write(buf.Bytes()); err != nil {
		if truncErr := e.activeFile.Truncate(e.activeSize); truncErr != nil {
			logger.Errorw("Failed to roll back partial append", "segment_id", e.activeFileID, "error", truncErr.Error())
		}
		return fmt.Errorf("failed to append to segment %d: %w", e.activeFileID, err)
	}
	if e.fsync {
		if err := e.activeFile.Sync(); err != nil {
			return fmt.Errorf("failed to sync segment %d: %w", e.activeFileID, err)
		}
	}

	offset := e.activeSize
	for _, rec := range recs {
		size := int64(rec.encodedLen())
		e.applyLocked(rec, IndexEntry{SegmentID: e.activeFileID, Offset: offset, Size: size, Parent: rec.parent})
		offset += size
	}
	e.activeSize = offset

	if e.activeSize >= e.maxSegmentSize {
		return e.rotateLocked()
	}
	return nil
}

func (e *Engine) rotateLocked() error {
	_ = e.activeFile.Sync()
	if err := e.activeFile.Close(); err != nil {
		return err
	}
	e.activeFileID++
	if err := e.openActiveFileLocked(); err != nil {
		return err
	}
	e.segmentCount++

	if e.compactionThreshold > 0 && e.segmentCount > e.compactionThreshold {
		e.background.Add(1)
		go func() {
			defer e.background.Done()
			if err := e.Compact(); err != nil && !errors.Is(err, errEngineClosed) {
				logger.Errorw("Background compaction failed", "error", err.Error())
			}
		}()
	}
	return nil
}

// Put stores data under key. parent groups keys for DeleteByParent.
func (e *Engine) Put(key, parent string, data []byte) error {
	e.fileMu.Lock()
	defer e.fileMu.Unlock()
	return e.appendLocked(record{op: opPut, key: key, parent: parent, data: data})
}

// PutIfAbsent stores data only when key is not live. It reports whether the
// record was written.
func (e *Engine) PutIfAbsent(key, parent string, data []byte) (bool, error) {
	e.fileMu.Lock()
	defer e.fileMu.Unlock()

	e.indexMu.RLock()
	_, exists := e.index[key]
	e.indexMu.RUnlock()
	if exists {
		return false, nil
	}
	if err := e.appendLocked(record{op: opPut, key: key, parent: parent, data: data}); err != nil {
		return false, err
	}
	return true, nil
}

// Get returns the value of key. found is false for unknown or deleted keys.
func (e *Engine) Get(key string) ([]byte, bool, error) {
	e.indexMu.RLock()
	defer e.indexMu.RUnlock()

	if e.closed {
		return nil, false, errEngineClosed
	}
	entry, ok := e.index[key]
	if !ok {
		return nil, false, nil
	}
	rec, err := e.readEntry(entry)
	if err != nil {
		return nil, false, err
	}
	if rec.key != key {
		return nil, false, domain.Corruptedf("segment %d offset %d holds %q, want %q", entry.SegmentID, entry.Offset, rec.key, key)
	}
	return rec.data, true, nil
}

func (e *Engine) readEntry(entry IndexEntry) (record, error) {
	f, err := os.Open(e.segmentPath(entry.SegmentID)) // #nosec G304
	if err != nil {
		return record{}, err
	}
	defer func() { _ = f.Close() }()

	buf := make([]byte, entry.Size)
	if _, err := f.ReadAt(buf, entry.Offset); err != nil {
		return record{}, fmt.Errorf("failed to read segment %d: %w", entry.SegmentID, err)
	}
	rec, _, err := readRecord(bytes.NewReader(buf))
	if err != nil {
		return record{}, domain.Corruptedf("segment %d offset %d: checksum mismatch", entry.SegmentID, entry.Offset)
	}
	return rec, nil
}

// Delete writes a tombstone for key. It reports whether key was live.
func (e *Engine) Delete(key string) (bool, error) {
	e.fileMu.Lock()
	defer e.fileMu.Unlock()

	e.indexMu.RLock()
	_, exists := e.index[key]
	e.indexMu.RUnlock()
	if !exists {
		return false, nil
	}
	if err := e.appendLocked(record{op: opDelete, key: key}); err != nil {
		return false, err
	}
	return true, nil
}

// DeleteByParent tombstones every live key grouped under parent.
func (e *Engine) DeleteByParent(parent string) (int, error) {
	if parent == "" {
		return 0, nil
	}

	e.fileMu.Lock()
	defer e.fileMu.Unlock()

	e.indexMu.RLock()
	keys := make([]string, 0, len(e.children[parent]))
	for key := range e.children[parent] {
		keys = append(keys, key)
	}
	e.indexMu.RUnlock()
	if len(keys) == 0 {
		return 0, nil
	}
	sort.Strings(keys)

	tombstones := make([]record, len(keys))
	for i, key := range keys {
		tombstones[i] = record{op: opDelete, key: key}
	}
	if err := e.appendLocked(tombstones...); err != nil {
		return 0, err
	}
	return len(keys), nil
}

// Keys returns the live keys starting with prefix in lexical order.
func (e *Engine) Keys(prefix string) []string {
	e.indexMu.RLock()
	defer e.indexMu.RUnlock()
	keys := make([]string, 0)
	for key := range e.index {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of live keys.
func (e *Engine) Len() int {
	e.indexMu.RLock()
	defer e.indexMu.RUnlock()
	return len(e.index)
}

// Compact rewrites live records into fresh segments above the active one and
// removes every older segment. Writes block until it finishes.
func (e *Engine) Compact() error {
	e.compactionMu.Lock()
	defer e.compactionMu.Unlock()
	e.fileMu.Lock()
	defer e.fileMu.Unlock()

	if e.closed {
		return errEngineClosed
	}

	oldIDs, err := e.segmentIDs()
	if err != nil {
		return err
	}
	oldActiveID := e.activeFileID
	logger.Infow("Compaction started", "max_segment_id", oldActiveID, "segments", len(oldIDs))

	_ = e.activeFile.Sync()
	if err := e.activeFile.Close(); err != nil {
		return err
	}

	newIndex, lastID, err := e.rewriteLive(oldActiveID + 1)
	if err != nil {
		for id := oldActiveID + 1; id <= lastID; id++ {
			_ = os.Remove(e.segmentPath(id))
		}
		if reopenErr := e.openActiveFileLocked(); reopenErr != nil {
			e.markClosedLocked()
			return errors.Join(err, reopenErr)
		}
		return err
	}

	children := make(map[string]map[string]struct{})
	for key, entry := range newIndex {
		if entry.Parent == "" {
			continue
		}
		if children[entry.Parent] == nil {
			children[entry.Parent] = make(map[string]struct{})
		}
		children[entry.Parent][key] = struct{}{}
	}

	e.indexMu.Lock()
	e.index = newIndex
	e.children = children
	e.activeFileID = lastID + 1
	e.indexMu.Unlock()
	if err := e.openActiveFileLocked(); err != nil {
		e.markClosedLocked()
		return err
	}
	e.segmentCount = int(e.activeFileID - oldActiveID)

	// Ascending order keeps every tombstone on disk for as long as the
	// records it shadows.
	for _, id := range oldIDs {
		if id > oldActiveID {
			continue
		}
		if err := os.Remove(e.segmentPath(id)); err != nil && !os.IsNotExist(err) {
			logger.Warnw("Failed to remove compacted segment", "segment_id", id, "error", err.Error())
		}
	}

	logger.Infow("Compaction finished", "compacted_segments_upto", oldActiveID, "live_keys", len(newIndex))
	return nil
}

// rewriteLive copies every live record into segments numbered from firstID.
// It returns the new index and the last segment ID it created.
func (e *Engine) rewriteLive(firstID uint64) (map[string]IndexEntry, uint64, error) {
	keys := make([]string, 0, len(e.index))
	for key := range e.index {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	newIndex := make(map[string]IndexEntry, len(keys))
	curID := firstID
	var (
		out    *os.File
		offset int64
	)
	closeOut := func() error {
		if out == nil {
			return nil
		}
		if err := out.Sync(); err != nil {
			_ = out.Close()
			return err
		}
		return out.Close()
	}

	for _, key := range keys {
		entry := e.index[key]
		rec, err := e.readEntry(entry)
		if errors.Is(err, domain.ErrCorrupted) {
			logger.Warnw("Dropping corrupt record during compaction", "key", key, "segment_id", entry.SegmentID, "error", err.Error())
			continue
		}
		if err != nil {
			_ = closeOut()
			return nil, curID, fmt.Errorf("failed to copy %q: %w", key, err)
		}

		if out != nil && offset >= e.maxSegmentSize {
			if err := closeOut(); err != nil {
				return nil, curID, err
			}
			out = nil
			curID++
		}
		if out == nil {
			out, err = os.OpenFile(e.segmentPath(curID), os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600) // #nosec G304
			if err != nil {
				return nil, curID, err
			}
			offset = 0
		}

		encoded := rec.encode()
		if _, err := out.Write(encoded); err != nil {
			_ = closeOut()
			return nil, curID, err
		}
		newIndex[key] = IndexEntry{SegmentID: curID, Offset: offset, Size: int64(len(encoded)), Parent: entry.Parent}
		offset += int64(len(encoded))
	}

	if err := closeOut(); err != nil {
		return nil, curID, err
	}
	if out == nil {
		// Nothing live; the new active segment takes firstID.
		return newIndex, firstID - 1, nil
	}
	return newIndex, curID, nil
}

// Close waits for background compaction, releases the active segment and
// unlocks the data directory.
func (e *Engine) Close() error {
	e.fileMu.Lock()
	if e.closed {
		defer e.fileMu.Unlock()
		return e.releaseDir()
	}
	e.fileMu.Unlock()

	e.background.Wait()

	e.fileMu.Lock()
	defer e.fileMu.Unlock()
	e.markClosedLocked()
	var err error
	if e.activeFile != nil {
		_ = e.activeFile.Sync()
		err = e.activeFile.Close()
		e.activeFile = nil
	}
	return errors.Join(err, e.releaseDir())
}

func (e *Engine) markClosedLocked() {
	e.indexMu.Lock()
	e.closed = true
	e.indexMu.Unlock()
}

func (e *Engine) releaseDir() error {
	if e.dirLock == nil {
		return nil
	}
	err := e.dirLock.Unlock()
	e.dirLock = nil
	return err
}
