// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package proxy gives the rest of buildmesh one way to talk to an
// agent, whether it is this node or a peer.
//
// An [Agent] offers two handles. [Agent.CompilerHandle] returns a
// [Compiler] for running jobs; [Agent.CoordinatorHandle] returns a
// [Coordinator] for gossip. A coordinator that also implements [Pool]
// (it can answer GetAgents) belongs to an agent that advertises pool
// endpoints; agents that only compile yield a [PeerHandle], which can
// receive registrations but cannot be queried.
//
// [Remote] reaches a peer over lib/rpc. Every remote handle fails over
// across the descriptor's endpoints: the endpoint that last answered
// is tried first, then each advertised endpoint in order, and the
// first success becomes the new preferred endpoint. When every
// endpoint fails the call returns an [*AggregateError] holding each
// endpoint's error. Coordinator handles also keep a consecutive
// failure count; [Coordinator.Bad] reports when it reaches the breaker
// threshold, which is the topology builder's cue to forget the pool.
//
// Compiler handles are cached per agent. Once the cached handle stops
// reporting ready, a fresh endpoint search runs at most once per
// readiness cooldown; inside the cooldown the caller gets the stale
// handle together with [ErrCoolingDown].
//
// [Local] wraps this node's own registry and compile backend so the
// node can treat itself as one more agent without a network round
// trip.
package proxy
