// Package testutil holds fixtures shared by package tests: a controllable
// clock, sequential guids, and builders for change payloads and records.
package testutil

import (
	"sync"
	"time"
)

// Epoch is the default starting instant for test clocks.
var Epoch = time.Date(2024, 1, 15, 8, 30, 0, 0, time.UTC)

// DeterministicClock is a manually driven wall clock for tests.
//
// Now always returns the same instant until Advance or Set moves it, so a
// test decides exactly which timestamps end up in stored rows.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type DeterministicClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewDeterministicClock creates a clock reading Epoch.
func NewDeterministicClock() *DeterministicClock {
	return &DeterministicClock{now: Epoch}
}

// Now returns the current reading.
func (c *DeterministicClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d and returns the new reading.
func (c *DeterministicClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

// Set moves the clock to t (in UTC).
func (c *DeterministicClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t.UTC()
}

// Reset moves the clock back to Epoch.
func (c *DeterministicClock) Reset() {
	c.Set(Epoch)
}
