// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package proxy

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/bureau-foundation/buildmesh/lib/agent"
	"github.com/bureau-foundation/buildmesh/lib/rpc"
)

// Coordinator receives gossip registrations.
type Coordinator interface {
	// RegisterAgent upserts descriptor into the agent's registry.
	RegisterAgent(ctx context.Context, descriptor agent.Descriptor) error

	// Bad reports whether the handle has failed at least the breaker
	// threshold number of consecutive calls.
	Bad() bool

	// State is the handle's connection lifecycle state.
	State() State

	// Endpoint is the endpoint that answered last, or "" if none has.
	Endpoint() string
}

// Pool is a Coordinator that can also report the agents it knows.
type Pool interface {
	Coordinator
	GetAgents(ctx context.Context) ([]agent.Descriptor, error)
}

// breaker counts consecutive failures. A call the caller cancelled
// says nothing about the peer and is not counted; a call that ran out
// its deadline is, since a peer that never answers looks exactly like
// that.
type breaker struct {
	failures  atomic.Int32
	threshold int32
}

func (b *breaker) record(ctx context.Context, err error) error {
	switch {
	case err == nil:
		b.failures.Store(0)
	case errors.Is(ctx.Err(), context.Canceled):
	default:
		b.failures.Add(1)
	}
	return err
}

// Bad reports whether consecutive failures reached the threshold.
func (b *breaker) Bad() bool {
	return b.failures.Load() >= b.threshold
}

// Failures returns the current consecutive failure count.
func (b *breaker) Failures() int {
	return int(b.failures.Load())
}

// coordinatorHandle is the RegisterAgent half shared by PoolHandle and
// PeerHandle.
type coordinatorHandle struct {
	*endpointSet[*rpc.Client]
	breaker
}

func newCoordinatorHandle(endpoints []string, options Options) coordinatorHandle {
	options = options.withDefaults()
	return coordinatorHandle{
		endpointSet: newEndpointSet(endpoints, func(endpoint string) *rpc.Client {
			return rpc.NewClient(endpoint, options.Dialer)
		}, options.Logger),
		breaker: breaker{threshold: int32(options.BreakerThreshold)},
	}
}

func (h *coordinatorHandle) RegisterAgent(ctx context.Context, descriptor agent.Descriptor) error {
	_, err := failover(ctx, h.endpointSet, rpc.ActionRegisterAgent,
		func(ctx context.Context, client *rpc.Client) (struct{}, error) {
			return struct{}{}, client.RegisterAgent(ctx, descriptor)
		})
	return h.record(ctx, err)
}

// PoolHandle talks to an agent's coordination service, which both
// accepts registrations and answers GetAgents.
type PoolHandle struct {
	coordinatorHandle
}

// NewPoolHandle creates a pool handle over endpoints.
func NewPoolHandle(endpoints []string, options Options) *PoolHandle {
	return &PoolHandle{coordinatorHandle: newCoordinatorHandle(endpoints, options)}
}

// GetAgents returns the agents the pool knows.
func (h *PoolHandle) GetAgents(ctx context.Context) ([]agent.Descriptor, error) {
	agents, err := failover(ctx, h.endpointSet, rpc.ActionGetAgents,
		func(ctx context.Context, client *rpc.Client) ([]agent.Descriptor, error) {
			return client.GetAgents(ctx)
		})
	return agents, h.record(ctx, err)
}

// PeerHandle reaches an agent that does not relay gossip. It accepts
// registrations on the agent's compiler endpoints and nothing else.
type PeerHandle struct {
	coordinatorHandle
}

// NewPeerHandle creates a peer handle over endpoints.
func NewPeerHandle(endpoints []string, options Options) *PeerHandle {
	return &PeerHandle{coordinatorHandle: newCoordinatorHandle(endpoints, options)}
}
