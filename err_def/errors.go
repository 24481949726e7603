// Package err_def defines the error values used across EmberKV.
package err_def

import (
	"errors"
)

var (
	ErrStorageClosed    = errors.New("storage is closed")
	ErrKeyNotFound      = errors.New("key not found")
	ErrDirNotFound      = errors.New("directory does not exist")
	ErrDuplicateKey     = errors.New("duplicate key in index file")
	ErrMalformedRecord  = errors.New("malformed log record")
	ErrWriteFailed      = errors.New("write failed")
	ErrReadFailed       = errors.New("read failed")
	ErrEmptyKey         = errors.New("empty key")
	ErrKeyTooLarge      = errors.New("key too large")
	ErrValueTooLarge    = errors.New("value too large")
	ErrCompactorRunning = errors.New("compaction is already running")
)
