package index

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"EmberKV/codec"
	"EmberKV/err_def"
)

func TestSwissIndexBasicOps(t *testing.T) {
	idx := NewSwissIndex[string](16)

	if _, ok := idx.Get("missing"); ok {
		t.Fatalf("empty index must not contain keys")
	}

	idx.Put("a", 0)
	idx.Put("b", 17)
	idx.Put("a", 42) // overwrite

	if off, ok := idx.Get("a"); !ok || off != 42 {
		t.Fatalf("get a: want (42,true) got (%d,%v)", off, ok)
	}
	if !idx.Contains("b") {
		t.Fatalf("contains b: want true")
	}
	if idx.Size() != 2 {
		t.Fatalf("size: want 2 got %d", idx.Size())
	}

	if !idx.Del("a") {
		t.Fatalf("del a: want true")
	}
	if idx.Contains("a") {
		t.Fatalf("a still present after delete")
	}
	if idx.Size() != 1 {
		t.Fatalf("size after delete: want 1 got %d", idx.Size())
	}

	idx.Clear()
	if idx.Size() != 0 {
		t.Fatalf("size after clear: want 0 got %d", idx.Size())
	}
}

func TestSwissIndexForeachEarlyStop(t *testing.T) {
	idx := NewSwissIndex[string](16)
	for _, k := range []string{"a", "b", "c", "d"} {
		idx.Put(k, 1)
	}

	var visited int
	idx.Foreach(func(string, int64) bool {
		visited++
		return visited < 2
	})
	if visited != 2 {
		t.Fatalf("foreach should stop after callback returns false, visited %d", visited)
	}
}

func TestIndexFileSaveLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.idx")

	idx := NewSwissIndex[string](16)
	want := map[string]int64{"alpha": 0, "beta": 1234, "gamma": 1 << 40}
	for k, off := range want {
		idx.Put(k, off)
	}

	if err := Save[string](path, idx, codec.String{}); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := Load[string](path, codec.String{})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Size() != len(want) {
		t.Fatalf("loaded size: want %d got %d", len(want), loaded.Size())
	}
	for k, off := range want {
		got, ok := loaded.Get(k)
		if !ok || got != off {
			t.Fatalf("loaded %s: want (%d,true) got (%d,%v)", k, off, got, ok)
		}
	}
}

func TestIndexFileLoadRejectsDuplicateKey(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dup.idx")

	// Two records for the same key, built by hand.
	record := []byte{0, 0, 0, 1, 'x', 0, 0, 0, 0, 0, 0, 0, 7}
	data := append(append([]byte{}, record...), record...)
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	if _, err := Load[string](path, codec.String{}); !errors.Is(err, err_def.ErrDuplicateKey) {
		t.Fatalf("expected ErrDuplicateKey, got %v", err)
	}
}

func TestIndexFileExists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "maybe.idx")

	ok, err := Exists(path)
	if err != nil || ok {
		t.Fatalf("missing file: want (false,nil) got (%v,%v)", ok, err)
	}

	if err := os.WriteFile(path, nil, 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	ok, err = Exists(path)
	if err != nil || !ok {
		t.Fatalf("present file: want (true,nil) got (%v,%v)", ok, err)
	}
}

func TestIndexFileSaveIsAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "atomic.idx")

	idx := NewSwissIndex[string](16)
	idx.Put("k", 9)
	if err := Save[string](path, idx, codec.String{}); err != nil {
		t.Fatalf("save: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "atomic.idx" {
		t.Fatalf("expected only atomic.idx in dir, got %v", entries)
	}
}
