// Package util holds small supporting structures for the storage engine.
package util

import (
	"fmt"
	"hash"
	"hash/fnv"
	"math"
	"sync"
)

const (
	// shard count must be a power of two
	defaultShards   = 16
	minHashFuncs    = 4
	defaultCapacity = 1 << 10
)

// ShardedBloom is a sharded bloom filter keyed on serialized key bytes.
// It answers "definitely absent" without touching the index; membership
// answers may be false positives, never false negatives. Deletes are not
// supported, so the engine rebuilds the filter after compaction.
type ShardedBloom struct {
	shards    []bloomShard
	k         uint32 // hash function count
	m         uint64 // total bits
	shardMask uint32
	shardBits uint64
	hashPool  *sync.Pool
}

type bloomShard struct {
	bits []uint64
	sync.RWMutex
}

// BloomConfig sizes the filter. Zero values fall back to defaults.
type BloomConfig struct {
	ExpectedElements  uint64
	FalsePositiveRate float64
}

// NewShardedBloom builds a filter sized for the expected element count and
// target false positive rate.
func NewShardedBloom(cfg BloomConfig) (*ShardedBloom, error) {
	if cfg.ExpectedElements == 0 {
		cfg.ExpectedElements = defaultCapacity
	}
	if cfg.FalsePositiveRate == 0 {
		cfg.FalsePositiveRate = 0.01
	}
	if cfg.FalsePositiveRate < 0 || cfg.FalsePositiveRate >= 1 {
		return nil, fmt.Errorf("false positive rate must be in (0,1)")
	}

	m := optimalBits(cfg.ExpectedElements, cfg.FalsePositiveRate)
	k := optimalHashes(cfg.ExpectedElements, m)

	shardBits := nextPowerOf2(m / defaultShards)
	if shardBits < 64 {
		shardBits = 64
	}

	shards := make([]bloomShard, defaultShards)
	for i := range shards {
		shards[i].bits = make([]uint64, shardBits/64)
	}

	return &ShardedBloom{
		shards:    shards,
		k:         k,
		m:         uint64(defaultShards) * shardBits,
		shardMask: defaultShards - 1,
		shardBits: shardBits,
		hashPool: &sync.Pool{
			New: func() interface{} { return fnv.New64a() },
		},
	}, nil
}

// Add marks data as present.
func (bf *ShardedBloom) Add(data []byte) {
	if len(data) == 0 {
		return
	}
	h1, h2 := bf.baseHashes(data)
	for i := uint32(0); i < bf.k; i++ {
		combined := h1 + uint64(i)*h2
		shard := &bf.shards[uint32(combined)&bf.shardMask]
		bitIndex := (combined >> bf.k) % bf.shardBits
		shard.Lock()
		shard.bits[bitIndex/64] |= 1 << (bitIndex % 64)
		shard.Unlock()
	}
}

// Contains reports whether data may have been added. False means certainly
// not added since the last Reset.
func (bf *ShardedBloom) Contains(data []byte) bool {
	if len(data) == 0 {
		return false
	}
	h1, h2 := bf.baseHashes(data)
	for i := uint32(0); i < bf.k; i++ {
		combined := h1 + uint64(i)*h2
		shard := &bf.shards[uint32(combined)&bf.shardMask]
		bitIndex := (combined >> bf.k) % bf.shardBits
		shard.RLock()
		isSet := shard.bits[bitIndex/64]&(1<<(bitIndex%64)) != 0
		shard.RUnlock()
		if !isSet {
			return false
		}
	}
	return true
}

// Reset clears every bit.
func (bf *ShardedBloom) Reset() {
	for i := range bf.shards {
		bf.shards[i].Lock()
		for j := range bf.shards[i].bits {
			bf.shards[i].bits[j] = 0
		}
		bf.shards[i].Unlock()
	}
}

func (bf *ShardedBloom) baseHashes(data []byte) (uint64, uint64) {
	hashFunc := bf.hashPool.Get().(hash.Hash64)
	defer bf.hashPool.Put(hashFunc)
	hashFunc.Reset()
	hashFunc.Write(data)
	h1 := hashFunc.Sum64()
	h2 := h1>>17 | h1<<47
	return h1, h2
}

func optimalBits(n uint64, p float64) uint64 {
	return uint64(math.Ceil(-float64(n) * math.Log(p) / math.Pow(math.Log(2), 2)))
}

func optimalHashes(n, m uint64) uint32 {
	k := uint32(math.Round(float64(m/n) * math.Log(2)))
	if k < minHashFuncs {
		k = minHashFuncs
	}
	return k
}

func nextPowerOf2(x uint64) uint64 {
	if x == 0 {
		return 1
	}
	x--
	x |= x >> 1
	x |= x >> 2
	x |= x >> 4
	x |= x >> 8
	x |= x >> 16
	x |= x >> 32
	x++
	return x
}
