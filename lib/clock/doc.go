// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock abstracts the two time operations buildmesh needs:
// reading the current time and waiting for a duration. Registry
// timestamps, eviction cutoffs, readiness cooldowns, selection backoff
// and the gossip loop's idle sleep all go through a [Clock], so tests
// drive them with [Fake] instead of sleeping.
//
// Waits are always expressed as [Clock.After] inside a select with the
// caller's context, which keeps every wait cancellable:
//
//	select {
//	case <-ctx.Done():
//		return ctx.Err()
//	case <-clock.After(backoff):
//	}
package clock
