// Watchpost - Camera Event Anomaly Scoring and Alert Dispatch
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchpost

package cache

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestLRU_GetAdd(t *testing.T) {
	c := NewLRU[int](2, time.Minute)

	c.Add("a", 1)
	c.Add("b", 2)
	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Fatalf("Get(a) = %v, %v", v, ok)
	}

	// "b" is now least recently used and gets evicted.
	c.Add("c", 3)
	if _, ok := c.Get("b"); ok {
		t.Error("expected b to be evicted")
	}
	if c.Len() != 2 {
		t.Errorf("Len() = %d, want 2", c.Len())
	}
}

func TestLRU_Expiry(t *testing.T) {
	c := NewLRU[string](10, time.Minute)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	c.Add("k", "v")
	now = now.Add(2 * time.Minute)

	if _, ok := c.Get("k"); ok {
		t.Error("expected expired entry to be missing")
	}
	if c.Len() != 0 {
		t.Errorf("expired entry should be dropped on access, Len() = %d", c.Len())
	}
}

func TestLRU_SeenOrAdd(t *testing.T) {
	c := NewLRU[struct{}](100, time.Minute)

	if c.SeenOrAdd("evt-1", struct{}{}) {
		t.Error("first sighting reported as seen")
	}
	if !c.SeenOrAdd("evt-1", struct{}{}) {
		t.Error("second sighting not reported as seen")
	}
	if !c.Remove("evt-1") {
		t.Error("Remove should report presence")
	}
	if c.SeenOrAdd("evt-1", struct{}{}) {
		t.Error("removed key reported as seen")
	}
}

func TestLRU_SeenOrAddConcurrent(t *testing.T) {
	c := NewLRU[struct{}](1000, time.Minute)
	var firsts atomic.Int64
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				if !c.SeenOrAdd(fmt.Sprintf("evt-%d", j), struct{}{}) {
					firsts.Add(1)
				}
			}
		}()
	}
	wg.Wait()

	if firsts.Load() != 10 {
		t.Errorf("expected exactly one first sighting per key, got %d", firsts.Load())
	}
}

func TestLRU_Purge(t *testing.T) {
	c := NewLRU[int](10, time.Minute)
	c.Add("a", 1)
	c.Purge()
	if c.Len() != 0 {
		t.Errorf("Len() after Purge = %d", c.Len())
	}
	c.Add("b", 2)
	if v, ok := c.Get("b"); !ok || v != 2 {
		t.Error("cache unusable after Purge")
	}
}
