// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package proxy

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bureau-foundation/buildmesh/lib/agent"
	"github.com/bureau-foundation/buildmesh/lib/rpc"
)

// Remote is an Agent reached over the network.
type Remote struct {
	descriptor agent.Descriptor
	options    Options

	compilers *endpointSet[*remoteCompiler]

	// searchMu serializes compiler endpoint searches so concurrent
	// callers share one search per cooldown window.
	searchMu   sync.Mutex
	lastSearch time.Time
	lastErr    error

	coordinator func() Coordinator
}

// NewRemote creates a proxy for descriptor. No connection is made
// until a handle is used.
func NewRemote(descriptor agent.Descriptor, options Options) *Remote {
	options = options.withDefaults()
	descriptor = descriptor.Normalize()
	remote := &Remote{
		descriptor: descriptor,
		options:    options,
		compilers: newEndpointSet(descriptor.CompilerEndpoints, func(endpoint string) *remoteCompiler {
			return &remoteCompiler{client: rpc.NewClient(endpoint, options.Dialer)}
		}, options.Logger),
	}
	remote.coordinator = sync.OnceValue(func() Coordinator {
		if descriptor.IsPool() {
			return NewPoolHandle(descriptor.PoolEndpoints, options)
		}
		return NewPeerHandle(descriptor.CompilerEndpoints, options)
	})
	return remote
}

// Descriptor returns the descriptor the proxy was built from.
func (r *Remote) Descriptor() agent.Descriptor {
	return r.descriptor
}

// CoordinatorHandle returns the agent's coordinator: a *PoolHandle when
// the descriptor advertises pool endpoints, otherwise a *PeerHandle on
// its compiler endpoints. The handle is created once and shared.
func (r *Remote) CoordinatorHandle() Coordinator {
	return r.coordinator()
}

// CompilerHandle returns a handle to a ready compiler endpoint.
//
// A cached handle that still reports ready is returned as is. When it
// is not ready (or nothing is cached), a new search over the compiler
// endpoints runs unless one already ran within the readiness cooldown;
// in that case the stale handle, or nil if there is none, is returned
// with ErrCoolingDown.
func (r *Remote) CompilerHandle(ctx context.Context) (Compiler, error) {
	cached, endpoint := r.compilers.begin()
	if endpoint != "" {
		ready, err := cached.IsReady(ctx)
		if err == nil && ready {
			return cached, nil
		}
		r.options.Logger.Debug("cached compiler not ready",
			"agent_id", r.descriptor.ID,
			"endpoint", endpoint,
			"error", err,
		)
	}

	r.searchMu.Lock()
	defer r.searchMu.Unlock()

	now := r.options.Clock.Now()
	if !r.lastSearch.IsZero() && now.Sub(r.lastSearch) < r.options.ReadinessCooldown {
		if endpoint != "" {
			return cached, ErrCoolingDown
		}
		if r.lastErr != nil {
			return nil, fmt.Errorf("%w: last search: %w", ErrCoolingDown, r.lastErr)
		}
		// A concurrent search succeeded while this caller waited.
		if cached, endpoint := r.compilers.begin(); endpoint != "" {
			return cached, nil
		}
		return nil, ErrCoolingDown
	}
	r.lastSearch = now

	handle, err := failover(ctx, r.compilers, rpc.ActionIsReady, checkReady)
	r.lastErr = err
	if err != nil {
		return nil, fmt.Errorf("agent %s: %w", r.descriptor.ID, err)
	}
	return handle, nil
}

// CompilerState is the lifecycle state of the compiler endpoint set.
func (r *Remote) CompilerState() State {
	return r.compilers.State()
}
