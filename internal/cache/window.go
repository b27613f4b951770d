// AccessGuard - Access Pattern Anomaly Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/accessguard

package cache

import (
	"context"
	"sync"
	"time"
)

const (
	defaultMaxKeys = 10000
	defaultWindow  = time.Hour
)

// windowEntry is a node in the list ordered by window start, oldest first.
type windowEntry struct {
	key   string
	start time.Time
	count int64
	prev  *windowEntry
	next  *windowEntry
}

// Stats reports counter activity.
type Stats struct {
	Keys      int
	Evictions int64
	Expired   int64
	LastSweep time.Time
}

// WindowCounter is a bounded map of per-key fixed-window counters.
type WindowCounter struct {
	mu sync.Mutex

	window  time.Duration
	maxKeys int
	items   map[string]*windowEntry

	// head.next is the oldest window, tail.prev the newest.
	head *windowEntry
	tail *windowEntry

	now   func() time.Time
	stats Stats
}

// NewWindowCounter creates a counter. Non-positive arguments use a one-hour
// window and 10000 keys.
func NewWindowCounter(window time.Duration, maxKeys int) *WindowCounter {
	if window <= 0 {
		window = defaultWindow
	}
	if maxKeys <= 0 {
		maxKeys = defaultMaxKeys
	}

	c := &WindowCounter{
		window:  window,
		maxKeys: maxKeys,
		items:   make(map[string]*windowEntry),
		head:    &windowEntry{},
		tail:    &windowEntry{},
		now:     time.Now,
	}
	c.head.next = c.tail
	c.tail.prev = c.head
	return c
}

// SetClock replaces the time source. Intended for tests.
func (c *WindowCounter) SetClock(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

// Window returns the configured window length.
func (c *WindowCounter) Window() time.Duration {
	return c.window
}

// Increment adds one to key's current window and returns the new count.
// A count of 1 means this is the first occurrence in a fresh window.
func (c *WindowCounter) Increment(key string) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if e, ok := c.items[key]; ok {
		if now.Sub(e.start) < c.window {
			e.count++
			return e.count
		}
		// Window over: restart it at the back of the list.
		c.unlink(e)
		e.start = now
		e.count = 1
		c.pushBack(e)
		c.stats.Expired++
		return 1
	}

	if len(c.items) >= c.maxKeys {
		c.sweepLocked(now)
		for len(c.items) >= c.maxKeys {
			c.evictOldest()
		}
	}

	e := &windowEntry{key: key, start: now, count: 1}
	c.pushBack(e)
	c.items[key] = e
	return 1
}

// Count returns key's count in its current window, 0 when absent or expired.
func (c *WindowCounter) Count(key string) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.items[key]
	if !ok || c.now().Sub(e.start) >= c.window {
		return 0
	}
	return e.count
}

// Reset forgets key.
func (c *WindowCounter) Reset(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.items[key]; ok {
		c.unlink(e)
		delete(c.items, key)
	}
}

// Len returns the number of tracked keys, including expired ones not yet swept.
func (c *WindowCounter) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Sweep drops every expired window and returns how many were removed.
func (c *WindowCounter) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sweepLocked(c.now())
}

// Stats returns a snapshot of counter activity.
func (c *WindowCounter) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.stats
	s.Keys = len(c.items)
	return s
}

// Serve sweeps expired windows every half window until ctx is canceled.
func (c *WindowCounter) Serve(ctx context.Context) error {
	ticker := time.NewTicker(c.window / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			c.Sweep()
		}
	}
}

func (c *WindowCounter) String() string {
	return "window-counter"
}

// sweepLocked walks from the oldest window. Must be called with lock held.
func (c *WindowCounter) sweepLocked(now time.Time) int {
	removed := 0
	for e := c.head.next; e != c.tail; {
		if now.Sub(e.start) < c.window {
			break
		}
		next := e.next
		c.unlink(e)
		delete(c.items, e.key)
		removed++
		e = next
	}
	c.stats.Expired += int64(removed)
	c.stats.LastSweep = now
	return removed
}

func (c *WindowCounter) evictOldest() {
	oldest := c.head.next
	if oldest == c.tail {
		return
	}
	c.unlink(oldest)
	delete(c.items, oldest.key)
	c.stats.Evictions++
}

func (c *WindowCounter) pushBack(e *windowEntry) {
	e.prev = c.tail.prev
	e.next = c.tail
	c.tail.prev.next = e
	c.tail.prev = e
}

func (c *WindowCounter) unlink(e *windowEntry) {
	e.prev.next = e.next
	e.next.prev = e.prev
	e.prev = nil
	e.next = nil
}
