// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package registry is the in-memory agent pool of one coordination
// node: every agent the node currently knows about, when each was last
// heard from, and a load-weighted random selector over them.
//
// # Concurrency
//
// The registration map is guarded by a single exclusive section that
// is acquired with a bounded wait ([Options].LockTimeout). Nothing
// else is locked. Two derived views, the agent [Snapshot] and the
// weight-interval table used by [Registry.SelectWeighted], are
// immutable once built and published through atomic pointers. Every
// insert, replace, or removal clears both pointers; the next reader
// rebuilds. A reader holding an old snapshot keeps a consistent view
// for as long as it likes.
//
// Re-registering a structurally identical descriptor only refreshes
// its last-seen time and does not clear the views. That is the
// steady-state heartbeat path and it must stay cheap.
//
// # Selection
//
// SelectWeighted draws a uniform integer in [0, total weight) and
// binary-searches the cumulative interval starts. Agents with weight
// zero are kept out of the interval table entirely, so they can never
// be drawn. [Registry.SelectReady] wraps selection in the caller-side
// retry loop: it checks readiness and backs off (bounded, woken early
// by registry changes) instead of spinning.
package registry
