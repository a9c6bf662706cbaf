// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for buildmesh packages.
//
// [RequireReceive] and [RequireClosed] wrap the select-with-timeout
// safety valve so that a test waiting on a goroutine fails instead of
// hanging. They are the only place tests touch the wall clock.
//
// [UniqueID] produces distinct agent IDs and names across tests that
// share a process.
//
// This package has no buildmesh-internal dependencies.
package testutil
