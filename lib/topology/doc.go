// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package topology runs the gossip loop that lets independently
// started nodes find each other.
//
// A [Builder] keeps a table of known pool endpoints (peers' agent pool
// services). Each iteration it:
//
//  1. pushes this node's descriptor to every known pool in the
//     background, counting consecutive failures per endpoint;
//  2. registers itself in the local registry and sweeps out agents
//     that have been silent longer than the silence limit;
//  3. when the local roster changed, the table grew, or the rebuild
//     interval elapsed, pulls GetAgents from every known pool (the
//     local registry included) and registers with the pools of agents
//     it has not reached yet, repeating while a pass finds new pools;
//  4. idles for the rest of the period, then cancels whatever pushes
//     are still outstanding and forgets endpoints whose breaker
//     tripped.
//
// Configured seed endpoints are retried every iteration until one of
// them is in the table, which is how a fresh node joins.
package topology
