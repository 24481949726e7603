package index

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"EmberKV/codec"
	"EmberKV/err_def"
	"EmberKV/storage"
)

// Index file layout: a sequence of `u32 keyLen | keyBytes | i64 offset`
// records, terminated by end-of-file. Written once at close, consumed at
// the next open.

// Save writes the table to path atomically: temp file, fsync, rename,
// directory fsync. A crash mid-save leaves the previous state intact.
func Save[K comparable](path string, idx storage.MemIndex[K], keyCodec codec.Codec[K]) error {
	tmpPath := path + ".tmp"
	file, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("create index file: %w", err)
	}

	w := bufio.NewWriter(file)
	var header [4]byte
	var offsetBuf [8]byte
	var encodeErr error

	idx.Foreach(func(key K, offset int64) bool {
		keyBytes, err := keyCodec.Serialize(key)
		if err != nil {
			encodeErr = fmt.Errorf("serialize key: %w", err)
			return false
		}
		binary.BigEndian.PutUint32(header[:], uint32(len(keyBytes)))
		binary.BigEndian.PutUint64(offsetBuf[:], uint64(offset))
		if _, err := w.Write(header[:]); err != nil {
			encodeErr = err
			return false
		}
		if _, err := w.Write(keyBytes); err != nil {
			encodeErr = err
			return false
		}
		if _, err := w.Write(offsetBuf[:]); err != nil {
			encodeErr = err
			return false
		}
		return true
	})

	if encodeErr == nil {
		encodeErr = w.Flush()
	}
	if encodeErr == nil {
		encodeErr = file.Sync()
	}
	if err := file.Close(); err != nil && encodeErr == nil {
		encodeErr = err
	}
	if encodeErr != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write index file: %w", encodeErr)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("promote index file: %w", err)
	}
	if dir, err := os.Open(filepath.Dir(path)); err == nil {
		_ = dir.Sync()
		_ = dir.Close()
	}
	return nil
}

// Load reads a saved table back. The same key appearing twice means the
// file is corrupt and loading fails with ErrDuplicateKey; the caller is
// expected to fall back to a full log scan only when no index file exists,
// not when it is damaged.
func Load[K comparable](path string, keyCodec codec.Codec[K]) (*SwissIndex[K], error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	idx := NewSwissIndex[K](1 << 10)
	r := bufio.NewReader(file)
	var header [4]byte
	var offsetBuf [8]byte

	for {
		if _, err := io.ReadFull(r, header[:]); err != nil {
			if err == io.EOF {
				return idx, nil
			}
			return nil, fmt.Errorf("%w: index entry header: %v", err_def.ErrReadFailed, err)
		}
		keyLen := binary.BigEndian.Uint32(header[:])
		if keyLen == 0 || keyLen > uint32(storage.MaxKeySize) {
			return nil, fmt.Errorf("%w: key length %d in index file",
				err_def.ErrMalformedRecord, keyLen)
		}
		keyBytes := make([]byte, keyLen)
		if _, err := io.ReadFull(r, keyBytes); err != nil {
			return nil, fmt.Errorf("%w: index entry key: %v", err_def.ErrReadFailed, err)
		}
		if _, err := io.ReadFull(r, offsetBuf[:]); err != nil {
			return nil, fmt.Errorf("%w: index entry offset: %v", err_def.ErrReadFailed, err)
		}

		key, err := keyCodec.Deserialize(keyBytes)
		if err != nil {
			return nil, fmt.Errorf("%w: decode index key: %v", err_def.ErrMalformedRecord, err)
		}
		if idx.Contains(key) {
			return nil, fmt.Errorf("%w: %v", err_def.ErrDuplicateKey, key)
		}
		idx.Put(key, int64(binary.BigEndian.Uint64(offsetBuf[:])))
	}
}

// Exists reports whether an index file is present at path.
func Exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, err
}
