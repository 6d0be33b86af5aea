// Copyright 2026 The Strata Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time abstraction for testability.
//
// Every timestamp the engine persists (inode atime/mtime/ctime, dataset
// creation times) and every background cadence (tombstone drain pacing)
// goes through a Clock instead of the time package. In production,
// Real() provides standard library behavior. In tests, Fake() provides
// a deterministic clock that advances only when Advance is called.
//
// # Wiring Pattern
//
// Components carry a Clock field:
//
//	type TombstoneQueue struct {
//	    clock clock.Clock
//	    // ...
//	}
//
// In tests:
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	q := NewTombstoneQueue(..., c)
//	// ... start the drain goroutine ...
//	c.WaitForTimers(1)             // drain registered its ticker
//	c.Advance(drainInterval)       // fire one drain pass deterministically
//
// When a goroutine calls Sleep, After, or NewTicker on a FakeClock it
// registers a pending waiter. WaitForTimers blocks until a given number
// of waiters are registered, eliminating the race between registration
// and advancement.
package clock
