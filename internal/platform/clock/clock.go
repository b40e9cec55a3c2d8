// Copyright (c) 2026 Meridian Labs. All rights reserved.
// Author: platform@meridianhq.io

/*
Package clock provides an injectable time source.

Every component that compares against "now" (token expiry, lockout windows,
refresh-token rotation) receives a [Clock] instead of calling [time.Now]
directly, so expiry logic is deterministically testable with [Fake].
*/
package clock

import (
	"sync"
	"time"
)

// Clock is the minimal time source consumed by services and repositories.
type Clock interface {
	// Now returns the current time.
	Now() time.Time
}

// # System Clock

// System is the production [Clock] backed by [time.Now].
type System struct{}

// Now implements [Clock].
func (System) Now() time.Time { return time.Now() }

// # Fake Clock

// Fake is a manually-advanced [Clock] for tests.
//
// # Concurrency
//
// Fake is safe for concurrent use; Advance and Now may be called from
// different goroutines.
type Fake struct {
	mu  sync.Mutex
	now time.Time
}

// NewFake creates a [Fake] pinned to the given instant.
func NewFake(now time.Time) *Fake {
	return &Fake{now: now}
}

// Now implements [Clock].
func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Advance moves the fake clock forward by the given duration.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

// Set pins the fake clock to an exact instant.
func (f *Fake) Set(now time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = now
}
