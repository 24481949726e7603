package cache

import (
	"testing"
)

func byteWeigher(key string, value string) int {
	return len(key) + len(value)
}

func TestInsertAndFind(t *testing.T) {
	c := NewWeightedLRU[string, string](100, byteWeigher)

	c.Insert("a", "one")
	got, ok := c.Find("a")
	if !ok || got != "one" {
		t.Fatalf("find a: want (one,true) got (%q,%v)", got, ok)
	}
	if _, ok := c.Find("missing"); ok {
		t.Fatalf("missing key must be a miss")
	}
	if c.Weight() != 4 {
		t.Fatalf("weight: want 4 got %d", c.Weight())
	}
}

func TestUpdateAdjustsWeight(t *testing.T) {
	c := NewWeightedLRU[string, string](100, byteWeigher)

	c.Insert("k", "short")
	c.Insert("k", "much-longer-value")
	if got, _ := c.Find("k"); got != "much-longer-value" {
		t.Fatalf("update lost: got %q", got)
	}
	if c.Weight() != 1+len("much-longer-value") {
		t.Fatalf("weight after update: want %d got %d", 1+len("much-longer-value"), c.Weight())
	}
}

func TestEvictsLeastRecentlyUsed(t *testing.T) {
	c := NewWeightedLRU[string, string](10, byteWeigher)

	c.Insert("a", "1234") // weight 5
	c.Insert("b", "1234") // weight 5, total 10

	// Touch a so b becomes the eviction candidate.
	if _, ok := c.Find("a"); !ok {
		t.Fatalf("a should be cached")
	}

	c.Insert("c", "1234") // pushes over capacity
	if c.Exist("b") {
		t.Fatalf("b should have been evicted")
	}
	if !c.Exist("a") || !c.Exist("c") {
		t.Fatalf("a and c should survive")
	}
	if c.Weight() > 10 {
		t.Fatalf("weight %d exceeds capacity", c.Weight())
	}
}

func TestOverweightEntryNotCached(t *testing.T) {
	c := NewWeightedLRU[string, string](4, byteWeigher)

	c.Insert("k", "way-too-heavy")
	if c.Exist("k") {
		t.Fatalf("entry heavier than capacity must not be cached")
	}
	if c.Weight() != 0 {
		t.Fatalf("weight must stay 0, got %d", c.Weight())
	}
}

func TestDeleteAndPurge(t *testing.T) {
	c := NewWeightedLRU[string, string](100, byteWeigher)

	c.Insert("a", "1")
	c.Insert("b", "2")

	c.Delete("a")
	c.Delete("never-there") // no-op
	if c.Exist("a") {
		t.Fatalf("a survived delete")
	}
	if c.Weight() != 2 {
		t.Fatalf("weight after delete: want 2 got %d", c.Weight())
	}

	c.Purge()
	if c.Exist("b") || c.Weight() != 0 {
		t.Fatalf("purge left state behind")
	}
}
