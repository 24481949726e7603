package logfile

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"EmberKV/err_def"
	"errors"
)

func openTestLog(t *testing.T) *LogFile {
	t.Helper()
	lf, err := Open(filepath.Join(t.TempDir(), "test.log"), 0)
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	return lf
}

func TestAppendAndReadValueAt(t *testing.T) {
	lf := openTestLog(t)
	defer lf.Close()

	off1, err := lf.Append([]byte("alpha"), []byte("one"))
	if err != nil {
		t.Fatalf("append alpha: %v", err)
	}
	off2, err := lf.Append([]byte("beta"), []byte("two!"))
	if err != nil {
		t.Fatalf("append beta: %v", err)
	}
	if off2 <= off1 {
		t.Fatalf("offsets must grow: %d then %d", off1, off2)
	}

	got, err := lf.ReadValueAt(off1)
	if err != nil {
		t.Fatalf("read value at %d: %v", off1, err)
	}
	if !bytes.Equal(got, []byte("one")) {
		t.Fatalf("want %q got %q", "one", got)
	}
	got, err = lf.ReadValueAt(off2)
	if err != nil {
		t.Fatalf("read value at %d: %v", off2, err)
	}
	if !bytes.Equal(got, []byte("two!")) {
		t.Fatalf("want %q got %q", "two!", got)
	}

	// value offset = record start + 4 + keyLen
	if off1 != 4+5 {
		t.Fatalf("first value offset: want %d got %d", 4+5, off1)
	}
}

func TestAppendEmptyValue(t *testing.T) {
	lf := openTestLog(t)
	defer lf.Close()

	off, err := lf.Append([]byte("k"), nil)
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	got, err := lf.ReadValueAt(off)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty value, got %q", got)
	}
}

func TestAppendRejectsEmptyKey(t *testing.T) {
	lf := openTestLog(t)
	defer lf.Close()

	if _, err := lf.Append(nil, []byte("v")); !errors.Is(err, err_def.ErrEmptyKey) {
		t.Fatalf("expected ErrEmptyKey, got %v", err)
	}
}

func TestScanReplaysAllRecords(t *testing.T) {
	lf := openTestLog(t)
	defer lf.Close()

	want := map[string]string{"a": "1", "b": "22", "c": "333"}
	offsets := make(map[string]int64)
	for k, v := range want {
		off, err := lf.Append([]byte(k), []byte(v))
		if err != nil {
			t.Fatalf("append %s: %v", k, err)
		}
		offsets[k] = off
	}

	seen := make(map[string]string)
	err := lf.Scan(func(key []byte, valueOffset int64, value []byte) bool {
		seen[string(key)] = string(value)
		if offsets[string(key)] != valueOffset {
			t.Fatalf("offset mismatch for %s: want %d got %d",
				key, offsets[string(key)], valueOffset)
		}
		return true
	})
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(seen) != len(want) {
		t.Fatalf("scan saw %d records, want %d", len(seen), len(want))
	}
	for k, v := range want {
		if seen[k] != v {
			t.Fatalf("scan mismatch for %s: want %q got %q", k, v, seen[k])
		}
	}
}

func TestScanStopsAtTruncatedTail(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.log")
	lf, err := Open(path, 0)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := lf.Append([]byte("good"), []byte("record")); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := lf.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	// Simulate a crashed append: a header promising more bytes than exist.
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		t.Fatalf("reopen raw: %v", err)
	}
	if _, err := f.Write([]byte{0, 0, 0, 9, 'p', 'a', 'r'}); err != nil {
		t.Fatalf("write partial: %v", err)
	}
	f.Close()

	lf, err = Open(path, 0)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer lf.Close()

	var count int
	if err := lf.Scan(func([]byte, int64, []byte) bool {
		count++
		return true
	}); err != nil {
		t.Fatalf("scan over truncated tail: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 complete record, saw %d", count)
	}
}

func TestReplaceWith(t *testing.T) {
	dir := t.TempDir()
	lf, err := Open(filepath.Join(dir, "test.log"), 0)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer lf.Close()

	if _, err := lf.Append([]byte("old"), []byte("stale")); err != nil {
		t.Fatalf("append: %v", err)
	}

	tmpPath := filepath.Join(dir, "test.log.compact")
	tmp, err := Open(tmpPath, 0)
	if err != nil {
		t.Fatalf("open tmp: %v", err)
	}
	off, err := tmp.Append([]byte("new"), []byte("fresh"))
	if err != nil {
		t.Fatalf("append tmp: %v", err)
	}
	if err := tmp.Close(); err != nil {
		t.Fatalf("close tmp: %v", err)
	}

	if err := lf.ReplaceWith(tmpPath); err != nil {
		t.Fatalf("replace: %v", err)
	}

	got, err := lf.ReadValueAt(off)
	if err != nil {
		t.Fatalf("read after replace: %v", err)
	}
	if !bytes.Equal(got, []byte("fresh")) {
		t.Fatalf("want %q got %q", "fresh", got)
	}
	if lf.Size() != 4+3+4+5 {
		t.Fatalf("size after replace: want %d got %d", 4+3+4+5, lf.Size())
	}
	if _, err := os.Stat(tmpPath); !os.IsNotExist(err) {
		t.Fatalf("compact temp file should be gone after rename")
	}
}
