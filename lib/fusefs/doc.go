// Copyright 2026 The Strata Authors
// SPDX-License-Identifier: Apache-2.0

// Package fusefs mounts a Strata dataset as a FUSE filesystem.
//
// The adapter is a thin errno-translation layer: the kernel resolves
// paths component by component, each FUSE request carries the caller's
// uid/gid, and every operation maps one-to-one onto an engine
// operation on the mounted View. No filesystem semantics live here.
//
// "." and ".." are synthesized by the kernel; the engine does not
// store them.
package fusefs
