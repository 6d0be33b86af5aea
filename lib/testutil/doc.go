// Copyright 2026 The Strata Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared helpers for Strata tests.
//
// The channel helpers (RequireReceive, RequireClosed) encapsulate the
// timeout safety valve pattern for tests that coordinate with
// background goroutines — the tombstone drain — so individual tests
// never hang the suite on a missed
// signal.
package testutil
