package cache

import (
	"testing"
	"time"
)

func TestMemoryCache_SetGet(t *testing.T) {
	c := NewMemoryCache(time.Minute, time.Minute)

	if err := c.Set("k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("set failed: %v", err)
	}

	val, found := c.Get("k")
	if !found {
		t.Fatal("expected a hit")
	}
	if string(val) != "v" {
		t.Errorf("unexpected value: %s", val)
	}

	if _, found := c.Get("missing"); found {
		t.Error("expected a miss for an unknown key")
	}
}

func TestMemoryCache_Expiry(t *testing.T) {
	c := NewMemoryCache(time.Minute, time.Minute)

	if err := c.Set("k", []byte("v"), 10*time.Millisecond); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	time.Sleep(30 * time.Millisecond)

	if _, found := c.Get("k"); found {
		t.Error("expected the entry to expire")
	}
}

func TestMemoryCache_DeleteAndClear(t *testing.T) {
	c := NewMemoryCache(time.Minute, time.Minute)

	_ = c.Set("a", []byte("1"), time.Minute)
	_ = c.Set("b", []byte("2"), time.Minute)

	if err := c.Delete("a"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, found := c.Get("a"); found {
		t.Error("expected deleted key to miss")
	}

	if err := c.Clear(); err != nil {
		t.Fatalf("clear failed: %v", err)
	}
	if _, found := c.Get("b"); found {
		t.Error("expected cleared cache to miss")
	}
}

func TestKey(t *testing.T) {
	a := Key("same text")
	b := Key("same text")
	c := Key("different text")

	if a != b {
		t.Error("identical input must produce identical keys")
	}
	if a == c {
		t.Error("different input must produce different keys")
	}
	if len(a) == 0 {
		t.Error("expected a non-empty key")
	}
}
