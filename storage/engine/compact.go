package engine

import (
	"fmt"
	"os"

	"EmberKV/err_def"
	"EmberKV/storage"
	"EmberKV/storage/logfile"
)

// compactLocked rewrites the append log, keeping exactly one record per
// live key. It replays the old log sequentially; a record is live iff the
// index table still points at its value offset. Live records are written
// to a sibling file which is fsynced and then atomically renamed over the
// log, so a crash at any point leaves either the old or the new log fully
// intact. Must be called with the write lock held and the pending buffer
// already flushed.
func (e *Engine[K, V]) compactLocked() error {
	tmpPath := e.log.Path() + storage.CompactSuffix
	_ = os.Remove(tmpPath) // leftover from an interrupted run

	tmp, err := logfile.Open(tmpPath, 0)
	if err != nil {
		return fmt.Errorf("create compact target: %w", err)
	}

	newOffsets := make(map[K]int64, e.memIndex.Size())
	var rewriteErr error
	scanErr := e.log.Scan(func(keyBytes []byte, valueOffset int64, value []byte) bool {
		key, err := e.keyCodec.Deserialize(keyBytes)
		if err != nil {
			rewriteErr = fmt.Errorf("%w: decode key during compaction: %v",
				err_def.ErrMalformedRecord, err)
			return false
		}
		current, ok := e.memIndex.Get(key)
		if !ok || current != valueOffset {
			return true // superseded or deleted, drop it
		}
		newOffset, err := tmp.Append(keyBytes, value)
		if err != nil {
			rewriteErr = fmt.Errorf("rewrite live record: %w", err)
			return false
		}
		newOffsets[key] = newOffset
		return true
	})
	if scanErr == nil {
		scanErr = rewriteErr
	}
	if scanErr == nil && len(newOffsets) != e.memIndex.Size() {
		scanErr = fmt.Errorf("%w: %d live keys but %d records found in log",
			err_def.ErrMalformedRecord, e.memIndex.Size(), len(newOffsets))
	}
	if scanErr == nil {
		scanErr = tmp.Sync()
	}
	if err := tmp.Close(); err != nil && scanErr == nil {
		scanErr = err
	}
	if scanErr != nil {
		_ = os.Remove(tmpPath)
		return scanErr
	}

	if err := e.log.ReplaceWith(tmpPath); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}

	for key, offset := range newOffsets {
		e.memIndex.Put(key, offset)
	}

	// Bloom filters cannot forget; rebuild from the surviving keys so the
	// false positive rate does not degrade across delete-heavy workloads.
	e.filter.Reset()
	e.seedFilter()

	e.deleteCount = 0
	return nil
}
