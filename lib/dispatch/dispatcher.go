// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/bureau-foundation/buildmesh/lib/agent"
	"github.com/bureau-foundation/buildmesh/lib/artifactstream"
	"github.com/bureau-foundation/buildmesh/lib/compiler"
	"github.com/bureau-foundation/buildmesh/lib/proxy"
	"github.com/bureau-foundation/buildmesh/lib/registry"
)

// DefaultAttempts is how many agents a job is tried on before the
// dispatcher gives up.
const DefaultAttempts = 3

// Options configures a Dispatcher.
type Options struct {
	Registry *registry.Registry

	// Self is this node; jobs drawn for it run on the local backend.
	Self *proxy.Local

	// Proxy configures handles to remote agents.
	Proxy proxy.Options

	// Backoff bounds each agent selection. Zero means
	// registry.DefaultBackoff.
	Backoff registry.Backoff

	// Attempts is the number of agents a job may fail on before the
	// dispatch fails. Zero means DefaultAttempts.
	Attempts int

	Logger *slog.Logger
}

// Outcome describes where a job ran and how it ended.
type Outcome struct {
	AgentID  string
	Endpoint string
	Status   compiler.Status
	ExitCode int
	Cookies  []artifactstream.Cookie
}

// Dispatcher sends jobs to selected agents. Safe for concurrent use.
type Dispatcher struct {
	registry *registry.Registry
	self     *proxy.Local
	options  Options
	logger   *slog.Logger

	// remotes caches one proxy per agent ID so compiler handles
	// survive across jobs. Entries for agents that left the registry
	// are dropped by forgetDeparted.
	remotes sync.Map
	pruned  atomic.Pointer[registry.Snapshot]
}

// New creates a dispatcher.
func New(options Options) (*Dispatcher, error) {
	if options.Registry == nil {
		return nil, fmt.Errorf("dispatch: Registry is required")
	}
	if options.Self == nil {
		return nil, fmt.Errorf("dispatch: Self is required")
	}
	if options.Attempts <= 0 {
		options.Attempts = DefaultAttempts
	}
	if options.Backoff == (registry.Backoff{}) {
		options.Backoff = registry.DefaultBackoff
	}
	if options.Logger == nil {
		options.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if options.Proxy.Logger == nil {
		options.Proxy.Logger = options.Logger
	}
	return &Dispatcher{
		registry: options.Registry,
		self:     options.Self,
		options:  options,
		logger:   options.Logger,
	}, nil
}

// agentFor returns the proxy for descriptor. A cached remote proxy is
// reused while the agent's endpoints are unchanged.
func (d *Dispatcher) agentFor(descriptor agent.Descriptor) proxy.Agent {
	if descriptor.ID == d.self.Descriptor().ID {
		return d.self
	}
	if cached, ok := d.remotes.Load(descriptor.ID); ok {
		remote := cached.(*proxy.Remote)
		if sameEndpoints(remote.Descriptor(), descriptor) {
			return remote
		}
	}
	remote := proxy.NewRemote(descriptor, d.options.Proxy)
	d.remotes.Store(descriptor.ID, remote)
	return remote
}

// forgetDeparted drops cached proxies for agents missing from the
// current registry snapshot. It walks the cache only when the snapshot
// has changed since the last walk.
func (d *Dispatcher) forgetDeparted(ctx context.Context) {
	snapshot, err := d.registry.ListAgents(ctx)
	if err != nil {
		return
	}
	if d.pruned.Swap(snapshot) == snapshot {
		return
	}
	d.remotes.Range(func(key, _ any) bool {
		if id := key.(string); !snapshot.Contains(id) {
			d.remotes.Delete(id)
			d.logger.Debug("dropped proxy for departed agent", "agent_id", id)
		}
		return true
	})
}

func sameEndpoints(a, b agent.Descriptor) bool {
	return slices.Equal(a.CompilerEndpoints, b.CompilerEndpoints) &&
		slices.Equal(a.PoolEndpoints, b.PoolEndpoints)
}

// Dispatch runs job on a ready agent and writes its artifacts to
// destinations, which must cover every artifact type the job
// produces. A job that compiled with errors is not a dispatch failure:
// the outcome carries StatusFailed and the diagnostics go to the
// Stderr destination.
func (d *Dispatcher) Dispatch(ctx context.Context, job compiler.Job, destinations map[artifactstream.Type]io.Writer) (*Outcome, error) {
	d.forgetDeparted(ctx)
	var failures []error
	for attempt := 1; attempt <= d.options.Attempts; attempt++ {
		descriptor, handle, err := d.selectHandle(ctx)
		if err != nil {
			return nil, errors.Join(append(failures, fmt.Errorf("dispatching job %s: %w", job.ID, err))...)
		}

		output, err := handle.Compile(ctx, job)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("dispatching job %s: %w", job.ID, ctx.Err())
			}
			d.logger.Warn("compile on agent failed, retrying elsewhere",
				"job_id", job.ID,
				"agent_id", descriptor.ID,
				"endpoint", handle.Endpoint(),
				"attempt", attempt,
				"error", err,
			)
			failures = append(failures, fmt.Errorf("agent %s: %w", descriptor.ID, err))
			continue
		}
		if output.Status == compiler.StatusRejected {
			failures = append(failures, fmt.Errorf("agent %s: %w", descriptor.ID, compiler.ErrNotReady))
			continue
		}

		if err := output.Unpack(destinations); err != nil {
			return nil, fmt.Errorf("job %s from agent %s: %w", job.ID, descriptor.ID, err)
		}
		d.logger.Debug("job compiled",
			"job_id", job.ID,
			"agent_id", descriptor.ID,
			"endpoint", handle.Endpoint(),
			"status", output.Status.String(),
		)
		return &Outcome{
			AgentID:  descriptor.ID,
			Endpoint: handle.Endpoint(),
			Status:   output.Status,
			ExitCode: output.ExitCode,
			Cookies:  output.Cookies,
		}, nil
	}
	return nil, fmt.Errorf("dispatching job %s: gave up after %d attempts: %w",
		job.ID, d.options.Attempts, errors.Join(failures...))
}

// selectHandle draws agents until one yields a ready compiler handle.
func (d *Dispatcher) selectHandle(ctx context.Context) (agent.Descriptor, proxy.Compiler, error) {
	var handle proxy.Compiler
	descriptor, err := d.registry.SelectReady(ctx, d.options.Backoff,
		func(ctx context.Context, candidate agent.Descriptor) bool {
			candidateHandle, err := d.agentFor(candidate).CompilerHandle(ctx)
			if err != nil {
				d.logger.Debug("agent not ready", "agent_id", candidate.ID, "error", err)
				return false
			}
			handle = candidateHandle
			return true
		})
	if err != nil {
		return agent.Descriptor{}, nil, err
	}
	return descriptor, handle, nil
}
