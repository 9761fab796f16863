package domain

import (
	"sort"
	"time"
)

// DefaultContentType is stored when neither the uploader nor sniffing
// provides a content type.
const DefaultContentType = "application/octet-stream"

// FileMetadata stores information about a file in the system.
// A record exists only for uploads that completed without error.
type FileMetadata struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	SizeBytes   int64             `json:"size_bytes"`
	ContentType string            `json:"content_type"`
	UploadedAt  time.Time         `json:"uploaded_at"`
	Tags        map[string]string `json:"tags,omitempty"`
	ChunkSize   int64             `json:"chunk_size"`
	Digest      string            `json:"digest,omitempty"`
}

// ChunkCount returns how many chunks a published file must have.
func (m FileMetadata) ChunkCount() int {
	if m.SizeBytes == 0 || m.ChunkSize <= 0 {
		return 0
	}
	return int((m.SizeBytes + m.ChunkSize - 1) / m.ChunkSize)
}

// Clone returns a copy that shares no mutable state with m.
func (m FileMetadata) Clone() FileMetadata {
	out := m
	if m.Tags != nil {
		out.Tags = make(map[string]string, len(m.Tags))
		for k, v := range m.Tags {
			out.Tags[k] = v
		}
	}
	return out
}

// UploadRequest carries the uploader-declared attributes of a file.
type UploadRequest struct {
	Name        string
	ContentType string
	Tags        map[string]string
}

// ReconcileReport summarizes one reconciliation pass.
type ReconcileReport struct {
	Scanned int `json:"scanned"`
	Removed int `json:"removed"`
	Failed  int `json:"failed"`
}

// Timestamp normalizes t to the precision every catalog backend can store.
func Timestamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}

// SortByUploadTime orders records by upload time, then by ID. One store never
// stamps two files with the same time; ties only arise between processes
// publishing in the same millisecond, and for uuid IDs their order is arbitrary.
func SortByUploadTime(files []FileMetadata) {
	sort.SliceStable(files, func(i, j int) bool {
		if files[i].UploadedAt.Equal(files[j].UploadedAt) {
			return files[i].ID < files[j].ID
		}
		return files[i].UploadedAt.Before(files[j].UploadedAt)
	})
}
