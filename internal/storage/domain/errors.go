package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound        = errors.New("file not found")
	ErrUnsupportedType = errors.New("content type not allowed")
	ErrTooLarge        = errors.New("file exceeds maximum upload size")
	ErrUploadFailed    = errors.New("upload failed")
	ErrCorrupted       = errors.New("stored file is corrupted")
	ErrAlreadyExists   = errors.New("file already exists")
	ErrChunkTooLarge   = errors.New("chunk exceeds maximum size")
)

// UploadError reports an I/O failure during upload with its cause attached.
type UploadError struct {
	FileID string
	Cause  error
}

func (e *UploadError) Error() string {
	if e.FileID == "" {
		return fmt.Sprintf("%v: %v", ErrUploadFailed, e.Cause)
	}
	return fmt.Sprintf("%v for %s: %v", ErrUploadFailed, e.FileID, e.Cause)
}

func (e *UploadError) Is(target error) bool {
	return target == ErrUploadFailed
}

func (e *UploadError) Unwrap() error {
	return e.Cause
}

// Corruptedf wraps ErrCorrupted with detail.
func Corruptedf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrCorrupted, fmt.Sprintf(format, args...))
}
