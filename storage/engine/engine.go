// Package engine implements the storage engine facade: a disk-resident
// key-value store backed by an append log, an in-memory key->offset index,
// a weight-bounded read cache and a triggered compactor.
//
// One read-write lock guards the index, cache, pending buffer and counters
// as a single unit. Reads share the lock; writes, deletes, flushes,
// compaction and close take it exclusively. Log reads are positioned
// (ReadAt) and the log only changes at the tail outside of compaction, so
// they are safe under the read lock.
package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/klauspost/compress/s2"

	"EmberKV/codec"
	"EmberKV/err_def"
	"EmberKV/storage"
	"EmberKV/storage/cache"
	"EmberKV/storage/index"
	"EmberKV/storage/logfile"
	"EmberKV/util"
)

// Engine is a single-process embedded store. All operations are
// synchronous; after Close every operation fails with ErrStorageClosed.
type Engine[K comparable, V any] struct {
	cfg *storage.Options
	dir string

	keyCodec   codec.Codec[K]
	valueCodec codec.Codec[V]

	log      *logfile.LogFile
	memIndex storage.MemIndex[K]
	memCache storage.MemCache[K, V]
	filter   *util.ShardedBloom

	// pending holds upserts not yet appended to the log. Keys present here
	// carry the OffsetPending sentinel in the index.
	pending       map[K]V
	pendingWeight int

	// deleteCount is the number of deletes since the last compaction.
	deleteCount int

	closed bool
	mu     sync.RWMutex
}

// Open opens the store rooted at dir. The directory must already exist.
// If an index file from a clean shutdown is present it is loaded and then
// removed, so that a later crash can never leave it shadowing newer log
// records; otherwise the index is rebuilt by scanning the log once.
func Open[K comparable, V any](
	dir string,
	keyCodec codec.Codec[K],
	valueCodec codec.Codec[V],
	options ...storage.Option,
) (*Engine[K, V], error) {
	cfg := storage.DefaultOptions()
	for _, opt := range options {
		opt(cfg)
	}

	stat, err := os.Stat(dir)
	if err != nil || !stat.IsDir() {
		return nil, fmt.Errorf("%w: %s", err_def.ErrDirNotFound, dir)
	}

	log, err := logfile.Open(filepath.Join(dir, storage.LogFileName), cfg.SyncInterval)
	if err != nil {
		return nil, fmt.Errorf("open append log: %w", err)
	}

	filter, err := util.NewShardedBloom(util.BloomConfig{
		ExpectedElements:  1 << 10,
		FalsePositiveRate: 0.01,
	})
	if err != nil {
		log.Close()
		return nil, fmt.Errorf("create filter: %w", err)
	}

	eng := &Engine[K, V]{
		cfg:        cfg,
		dir:        dir,
		keyCodec:   keyCodec,
		valueCodec: valueCodec,
		log:        log,
		filter:     filter,
		pending:    make(map[K]V),
	}
	if cfg.CacheEnabled {
		eng.memCache = cache.NewWeightedLRU[K, V](cfg.CacheCapacity,
			func(key K, value V) int {
				return keyCodec.SizeOf(key) + valueCodec.SizeOf(value)
			})
	}

	if err := eng.loadIndex(); err != nil {
		log.Close()
		return nil, err
	}
	return eng, nil
}

// loadIndex restores the index table, preferring the persisted index file
// over a full log scan.
func (e *Engine[K, V]) loadIndex() error {
	idxPath := filepath.Join(e.dir, storage.IndexFileName)
	hasIndexFile, err := index.Exists(idxPath)
	if err != nil {
		return fmt.Errorf("stat index file: %w", err)
	}

	if hasIndexFile {
		idx, err := index.Load(idxPath, e.keyCodec)
		if err != nil {
			return fmt.Errorf("load index file: %w", err)
		}
		e.memIndex = idx
		// From here on the file is stale relative to new writes; remove it
		// so a crash forces the next open onto the log scan path.
		if err := os.Remove(idxPath); err != nil {
			return fmt.Errorf("remove consumed index file: %w", err)
		}
	} else {
		idx := index.NewSwissIndex[K](1 << 10)
		var scanErr error
		err := e.log.Scan(func(keyBytes []byte, valueOffset int64, _ []byte) bool {
			key, err := e.keyCodec.Deserialize(keyBytes)
			if err != nil {
				scanErr = fmt.Errorf("%w: decode key during replay: %v",
					err_def.ErrMalformedRecord, err)
				return false
			}
			// A later record for the same key supersedes the earlier one.
			idx.Put(key, valueOffset)
			return true
		})
		if err == nil {
			err = scanErr
		}
		if err != nil {
			return fmt.Errorf("rebuild index from log: %w", err)
		}
		e.memIndex = idx
	}

	e.seedFilter()
	return nil
}

func (e *Engine[K, V]) seedFilter() {
	e.memIndex.Foreach(func(key K, _ int64) bool {
		if keyBytes, err := e.keyCodec.Serialize(key); err == nil {
			e.filter.Add(keyBytes)
		}
		return true
	})
}

// Read returns the value for key, or (zero, false, nil) when the key is
// absent. Decode and I/O failures on an existing key are also reported as
// absence; only ErrStorageClosed surfaces as an error.
func (e *Engine[K, V]) Read(key K) (V, bool, error) {
	var zero V

	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.closed {
		return zero, false, err_def.ErrStorageClosed
	}

	keyBytes, err := e.keyCodec.Serialize(key)
	if err != nil || len(keyBytes) == 0 {
		return zero, false, nil
	}
	if !e.filter.Contains(keyBytes) {
		return zero, false, nil
	}

	if e.memCache != nil {
		if value, ok := e.memCache.Find(key); ok {
			return value, true, nil
		}
	}
	if value, ok := e.pending[key]; ok {
		return value, true, nil
	}

	offset, ok := e.memIndex.Get(key)
	if !ok || offset == storage.OffsetPending {
		return zero, false, nil
	}

	raw, err := e.log.ReadValueAt(offset)
	if err != nil {
		return zero, false, nil
	}
	raw, err = e.decodeValueBytes(raw)
	if err != nil {
		return zero, false, nil
	}
	value, err := e.valueCodec.Deserialize(raw)
	if err != nil {
		return zero, false, nil
	}

	if e.memCache != nil {
		e.memCache.Insert(key, value)
	}
	return value, true, nil
}

// Write upserts a key. The pair lands in the pending buffer and the index
// immediately; the buffer is flushed to the log once its accumulated weight
// exceeds MaxPendingWeight.
func (e *Engine[K, V]) Write(key K, value V) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return err_def.ErrStorageClosed
	}

	keyBytes, err := e.keyCodec.Serialize(key)
	if err != nil {
		return fmt.Errorf("serialize key: %w", err)
	}
	if len(keyBytes) == 0 {
		return err_def.ErrEmptyKey
	}

	e.pending[key] = value
	e.pendingWeight += e.keyCodec.SizeOf(key) + e.valueCodec.SizeOf(value)
	e.memIndex.Put(key, storage.OffsetPending)
	if e.memCache != nil {
		e.memCache.Insert(key, value)
	}
	e.filter.Add(keyBytes)

	if e.pendingWeight > e.cfg.MaxPendingWeight {
		if err := e.flushPendingLocked(); err != nil {
			return err
		}
	}
	return nil
}

// Delete removes key from the index, cache and pending buffer. The log
// record, if any, stays behind as garbage until compaction; crossing the
// deletion threshold triggers it right away.
func (e *Engine[K, V]) Delete(key K) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return err_def.ErrStorageClosed
	}

	if _, ok := e.pending[key]; ok {
		e.pendingWeight -= e.keyCodec.SizeOf(key) + e.valueCodec.SizeOf(e.pending[key])
		delete(e.pending, key)
	}
	e.memIndex.Del(key)
	if e.memCache != nil {
		e.memCache.Delete(key)
	}
	e.deleteCount++

	if float64(e.deleteCount) > e.cfg.CompactThreshold*float64(e.memIndex.Size()) {
		if err := e.flushPendingLocked(); err != nil {
			return err
		}
		return e.compactLocked()
	}
	return nil
}

// Exists reports whether key is live: present in the cache, the pending
// buffer, or the index table.
func (e *Engine[K, V]) Exists(key K) (bool, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.closed {
		return false, err_def.ErrStorageClosed
	}

	keyBytes, err := e.keyCodec.Serialize(key)
	if err != nil || len(keyBytes) == 0 {
		return false, nil
	}
	if !e.filter.Contains(keyBytes) {
		return false, nil
	}
	if e.memCache != nil && e.memCache.Exist(key) {
		return true, nil
	}
	if _, ok := e.pending[key]; ok {
		return true, nil
	}
	return e.memIndex.Contains(key), nil
}

// Size returns the number of distinct live keys. Buffered writes are
// already counted: they hold index entries with the pending sentinel.
func (e *Engine[K, V]) Size() (int, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.closed {
		return 0, err_def.ErrStorageClosed
	}
	return e.memIndex.Size(), nil
}

// ReadKeys flushes the pending buffer and snapshots all live keys.
func (e *Engine[K, V]) ReadKeys() ([]K, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil, err_def.ErrStorageClosed
	}
	if err := e.flushPendingLocked(); err != nil {
		return nil, err
	}

	keys := make([]K, 0, e.memIndex.Size())
	e.memIndex.Foreach(func(key K, _ int64) bool {
		keys = append(keys, key)
		return true
	})
	return keys, nil
}

// Compact flushes buffered writes and rewrites the log, dropping records
// that are superseded or deleted.
func (e *Engine[K, V]) Compact() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return err_def.ErrStorageClosed
	}
	if err := e.flushPendingLocked(); err != nil {
		return err
	}
	return e.compactLocked()
}

// Sync flushes buffered writes and fsyncs the log.
func (e *Engine[K, V]) Sync() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return err_def.ErrStorageClosed
	}
	if err := e.flushPendingLocked(); err != nil {
		return err
	}
	return e.log.Sync()
}

// Close flushes buffered writes, compacts if any deletes are outstanding,
// persists the index table and releases file handles. A second Close fails
// with ErrStorageClosed, as does every other operation afterwards.
func (e *Engine[K, V]) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return err_def.ErrStorageClosed
	}
	e.closed = true

	if err := e.flushPendingLocked(); err != nil {
		_ = e.log.Close()
		return err
	}
	if e.deleteCount > 0 {
		if err := e.compactLocked(); err != nil {
			_ = e.log.Close()
			return err
		}
	}
	if err := index.Save(filepath.Join(e.dir, storage.IndexFileName), e.memIndex, e.keyCodec); err != nil {
		_ = e.log.Close()
		return err
	}

	if e.memCache != nil {
		e.memCache.Purge()
	}
	return e.log.Close()
}

// flushPendingLocked appends every buffered pair to the log, remapping the
// index from the pending sentinel to real offsets, then syncs once. Pairs
// are removed from the buffer as they land so a mid-flush failure leaves
// only unwritten pairs behind.
func (e *Engine[K, V]) flushPendingLocked() error {
	if len(e.pending) == 0 {
		return nil
	}

	for key, value := range e.pending {
		keyBytes, err := e.keyCodec.Serialize(key)
		if err != nil {
			return fmt.Errorf("serialize key: %w", err)
		}
		valueBytes, err := e.valueCodec.Serialize(value)
		if err != nil {
			return fmt.Errorf("serialize value: %w", err)
		}
		valueBytes = e.encodeValueBytes(valueBytes)

		offset, err := e.log.Append(keyBytes, valueBytes)
		if err != nil {
			return fmt.Errorf("flush pending write: %w", err)
		}
		e.memIndex.Put(key, offset)
		delete(e.pending, key)
		e.pendingWeight -= e.keyCodec.SizeOf(key) + e.valueCodec.SizeOf(value)
	}
	e.pendingWeight = 0

	if err := e.log.Sync(); err != nil {
		return fmt.Errorf("sync after flush: %w", err)
	}
	return nil
}

func (e *Engine[K, V]) encodeValueBytes(raw []byte) []byte {
	if !e.cfg.Compression {
		return raw
	}
	return s2.Encode(nil, raw)
}

func (e *Engine[K, V]) decodeValueBytes(raw []byte) ([]byte, error) {
	if !e.cfg.Compression {
		return raw, nil
	}
	return s2.Decode(nil, raw)
}
