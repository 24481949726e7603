// Package storage holds the shared contracts and constants of the EmberKV
// storage engine: file naming, record size limits, and the interfaces the
// engine's in-memory index and cache implementations satisfy.
package storage

var (
	// LogFileName is the append log, the single authoritative data file.
	LogFileName = "ember.log"
	// IndexFileName is the key->offset table persisted at close.
	IndexFileName = "ember.idx"
	// CompactSuffix names the rewrite target during compaction; it is
	// renamed over the log once complete.
	CompactSuffix = ".compact"

	// MaxKeySize caps a serialized key at 32MB.
	MaxKeySize = 32 << 20
	// MaxValueSize caps a serialized value at 32MB.
	MaxValueSize = 32 << 20
)

// OffsetPending marks an index entry whose value sits in the pending write
// buffer and has not been appended to the log yet.
const OffsetPending int64 = -1

// MemIndex is the in-memory key->offset table. Implementations synchronize
// internally; the engine still serializes mutation through its own lock so
// that index, cache and pending buffer change as one unit.
type MemIndex[K comparable] interface {
	Put(key K, offset int64)
	Get(key K) (int64, bool)
	Del(key K) bool
	Contains(key K) bool
	Foreach(f func(key K, offset int64) bool)
	Size() int
	Clear()
}

// MemCache is a bounded cache of decoded values. It is purely an
// acceleration structure: entries may vanish at any time and are never
// authoritative.
type MemCache[K comparable, V any] interface {
	Insert(key K, value V)
	Find(key K) (V, bool)
	Delete(key K)
	Exist(key K) bool
	Weight() int
	Purge()
}
