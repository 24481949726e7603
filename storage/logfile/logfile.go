// Package logfile implements the append log: an on-disk sequence of
// length-prefixed (key, value) records written only at the tail. Offsets
// handed out by Append point at the value's length prefix and stay valid
// until the log is rewritten by compaction.
package logfile

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"EmberKV/err_def"
	"EmberKV/storage"
)

// headerLen is the u32 length prefix in front of each key and each value.
const headerLen = 4

// LogFile is safe for concurrent positioned reads and serialized appends.
// All I/O uses explicit offsets (ReadAt/WriteAt), never a shared cursor.
type LogFile struct {
	path string
	file *os.File
	size atomic.Int64

	syncTicker *time.Ticker
	stopChan   chan struct{}
	wg         sync.WaitGroup

	mu sync.Mutex // guards file handle swaps (Replace, Close)
}

// Open opens or creates the log at path. A non-zero syncInterval starts a
// background fsync ticker, same cadence policy as flush-time syncs.
func Open(path string, syncInterval time.Duration) (*LogFile, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("stat log file: %w", err)
	}

	lf := &LogFile{
		path:     path,
		file:     file,
		stopChan: make(chan struct{}),
	}
	lf.size.Store(stat.Size())

	if syncInterval > 0 {
		lf.syncTicker = time.NewTicker(syncInterval)
		lf.wg.Add(1)
		go lf.autoSync()
	}
	return lf, nil
}

// Append writes one record to the tail and returns the byte offset of the
// value's length prefix.
func (lf *LogFile) Append(key, value []byte) (int64, error) {
	if len(key) == 0 {
		return 0, err_def.ErrEmptyKey
	}
	if len(key) > storage.MaxKeySize {
		return 0, fmt.Errorf("%w: key length %d exceeds maximum %d",
			err_def.ErrKeyTooLarge, len(key), storage.MaxKeySize)
	}
	if len(value) > storage.MaxValueSize {
		return 0, fmt.Errorf("%w: value length %d exceeds maximum %d",
			err_def.ErrValueTooLarge, len(value), storage.MaxValueSize)
	}

	recordSize := headerLen + len(key) + headerLen + len(value)
	buf := make([]byte, recordSize)
	binary.BigEndian.PutUint32(buf[0:headerLen], uint32(len(key)))
	copy(buf[headerLen:], key)
	valuePos := headerLen + len(key)
	binary.BigEndian.PutUint32(buf[valuePos:valuePos+headerLen], uint32(len(value)))
	copy(buf[valuePos+headerLen:], value)

	// Reserve the write position up front so the size counter never lies
	// even if the write below fails.
	newSize := lf.size.Add(int64(recordSize))
	writePos := newSize - int64(recordSize)

	n, err := lf.file.WriteAt(buf, writePos)
	if err != nil || n != recordSize {
		if err == nil {
			err = io.ErrShortWrite
		}
		return 0, fmt.Errorf("%w: %v", err_def.ErrWriteFailed, err)
	}
	return writePos + int64(valuePos), nil
}

// ReadValueAt reads the value whose length prefix starts at offset.
func (lf *LogFile) ReadValueAt(offset int64) ([]byte, error) {
	header := make([]byte, headerLen)
	if _, err := lf.file.ReadAt(header, offset); err != nil {
		return nil, fmt.Errorf("%w: value header at %d: %v", err_def.ErrReadFailed, offset, err)
	}
	valueLen := binary.BigEndian.Uint32(header)
	if valueLen > uint32(storage.MaxValueSize) {
		return nil, fmt.Errorf("%w: value length %d at offset %d",
			err_def.ErrMalformedRecord, valueLen, offset)
	}
	value := make([]byte, valueLen)
	if _, err := lf.file.ReadAt(value, offset+headerLen); err != nil {
		return nil, fmt.Errorf("%w: value body at %d: %v", err_def.ErrReadFailed, offset, err)
	}
	return value, nil
}

// Scan replays the log from the start. fn receives each record's key, the
// offset of its value prefix, and the value bytes; returning false stops the
// scan. A truncated tail (partial record from a crashed append) ends the
// scan without error: everything before it was durably written.
func (lf *LogFile) Scan(fn func(key []byte, valueOffset int64, value []byte) bool) error {
	var offset int64
	end := lf.size.Load()
	header := make([]byte, headerLen)

	for offset < end {
		n, err := lf.file.ReadAt(header, offset)
		if err == io.EOF && n < headerLen {
			break
		}
		if err != nil {
			return fmt.Errorf("%w: key header at %d: %v", err_def.ErrReadFailed, offset, err)
		}
		keyLen := binary.BigEndian.Uint32(header)
		if keyLen == 0 || keyLen > uint32(storage.MaxKeySize) {
			return fmt.Errorf("%w: key length %d at offset %d",
				err_def.ErrMalformedRecord, keyLen, offset)
		}
		if offset+headerLen+int64(keyLen)+headerLen > end {
			break // truncated tail
		}

		key := make([]byte, keyLen)
		if _, err := lf.file.ReadAt(key, offset+headerLen); err != nil {
			return fmt.Errorf("%w: key at %d: %v", err_def.ErrReadFailed, offset, err)
		}

		valueOffset := offset + headerLen + int64(keyLen)
		if _, err := lf.file.ReadAt(header, valueOffset); err != nil {
			return fmt.Errorf("%w: value header at %d: %v", err_def.ErrReadFailed, valueOffset, err)
		}
		valueLen := binary.BigEndian.Uint32(header)
		if valueLen > uint32(storage.MaxValueSize) {
			return fmt.Errorf("%w: value length %d at offset %d",
				err_def.ErrMalformedRecord, valueLen, valueOffset)
		}
		if valueOffset+headerLen+int64(valueLen) > end {
			break // truncated tail
		}
		value := make([]byte, valueLen)
		if _, err := lf.file.ReadAt(value, valueOffset+headerLen); err != nil {
			return fmt.Errorf("%w: value at %d: %v", err_def.ErrReadFailed, valueOffset, err)
		}

		if !fn(key, valueOffset, value) {
			return nil
		}
		offset = valueOffset + headerLen + int64(valueLen)
	}
	return nil
}

// Size returns the current logical length of the log in bytes.
func (lf *LogFile) Size() int64 {
	return lf.size.Load()
}

// Path returns the log's file path.
func (lf *LogFile) Path() string {
	return lf.path
}

// Sync flushes the log to stable storage.
func (lf *LogFile) Sync() error {
	return lf.file.Sync()
}

// ReplaceWith promotes the fully written file at tmpPath over this log:
// rename, directory fsync, reopen. Callers must have synced tmpPath and hold
// exclusive access; no reader may touch the log mid-replace.
func (lf *LogFile) ReplaceWith(tmpPath string) error {
	lf.mu.Lock()
	defer lf.mu.Unlock()

	if err := lf.file.Close(); err != nil {
		return fmt.Errorf("close old log: %w", err)
	}
	if err := os.Rename(tmpPath, lf.path); err != nil {
		// Reopen the old log so the store stays usable.
		if file, openErr := os.OpenFile(lf.path, os.O_CREATE|os.O_RDWR, 0644); openErr == nil {
			lf.file = file
		}
		return fmt.Errorf("promote compacted log: %w", err)
	}
	if dir, err := os.Open(filepath.Dir(lf.path)); err == nil {
		_ = dir.Sync()
		_ = dir.Close()
	}

	file, err := os.OpenFile(lf.path, os.O_RDWR, 0644)
	if err != nil {
		return fmt.Errorf("reopen promoted log: %w", err)
	}
	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return fmt.Errorf("stat promoted log: %w", err)
	}
	lf.file = file
	lf.size.Store(stat.Size())
	return nil
}

func (lf *LogFile) autoSync() {
	defer lf.wg.Done()
	for {
		select {
		case <-lf.syncTicker.C:
			lf.mu.Lock()
			_ = lf.file.Sync()
			lf.mu.Unlock()
		case <-lf.stopChan:
			return
		}
	}
}

// Close stops the background sync, flushes and releases the file handle.
func (lf *LogFile) Close() error {
	if lf.syncTicker != nil {
		lf.syncTicker.Stop()
	}
	close(lf.stopChan)
	lf.wg.Wait()

	lf.mu.Lock()
	defer lf.mu.Unlock()
	if err := lf.file.Sync(); err != nil {
		return fmt.Errorf("sync log on close: %w", err)
	}
	return lf.file.Close()
}
