// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package proxy

import (
	"context"
	"fmt"
	"slices"
	"sync/atomic"

	"github.com/bureau-foundation/buildmesh/lib/agent"
	"github.com/bureau-foundation/buildmesh/lib/artifactstream"
	"github.com/bureau-foundation/buildmesh/lib/compiler"
	"github.com/bureau-foundation/buildmesh/lib/registry"
	"github.com/bureau-foundation/buildmesh/lib/rpc"
)

// LocalEndpoint is the Endpoint of every Local handle.
const LocalEndpoint = "local"

// Local is this node viewed as an Agent. Its coordinator is the node's
// own registry and its compiler is the node's own backend.
type Local struct {
	descriptor atomic.Pointer[agent.Descriptor]
	pool       *localPool
	compiler   *localCompiler
}

// NewLocal creates the local agent.
func NewLocal(descriptor agent.Descriptor, agents *registry.Registry, backend compiler.Backend) *Local {
	local := &Local{
		pool:     &localPool{registry: agents},
		compiler: &localCompiler{backend: backend},
	}
	local.SetDescriptor(descriptor)
	return local
}

// Descriptor returns the node's current descriptor.
func (l *Local) Descriptor() agent.Descriptor {
	return *l.descriptor.Load()
}

// SetDescriptor replaces the node's descriptor, e.g. after a CPU
// sample.
func (l *Local) SetDescriptor(descriptor agent.Descriptor) {
	descriptor = descriptor.Normalize()
	l.descriptor.Store(&descriptor)
}

// CompilerHandle returns the node's own backend, with
// compiler.ErrNotReady when the backend cannot take a job now.
func (l *Local) CompilerHandle(context.Context) (Compiler, error) {
	if !l.compiler.backend.IsReady() {
		return l.compiler, compiler.ErrNotReady
	}
	return l.compiler, nil
}

// CoordinatorHandle returns the node's own registry as a Pool.
func (l *Local) CoordinatorHandle() Coordinator {
	return l.pool
}

type localPool struct {
	registry *registry.Registry
}

func (p *localPool) RegisterAgent(ctx context.Context, descriptor agent.Descriptor) error {
	return p.registry.Register(ctx, descriptor)
}

func (p *localPool) GetAgents(ctx context.Context) ([]agent.Descriptor, error) {
	snapshot, err := p.registry.ListAgents(ctx)
	if err != nil {
		return nil, err
	}
	return slices.Clone(snapshot.Agents), nil
}

func (p *localPool) Bad() bool        { return false }
func (p *localPool) State() State     { return Connected }
func (p *localPool) Endpoint() string { return LocalEndpoint }

type localCompiler struct {
	backend compiler.Backend
}

func (c *localCompiler) Endpoint() string { return LocalEndpoint }

func (c *localCompiler) IsReady(context.Context) (bool, error) {
	return c.backend.IsReady(), nil
}

func (c *localCompiler) Compile(ctx context.Context, job compiler.Job) (*rpc.CompileOutput, error) {
	result, err := c.backend.Compile(ctx, job)
	if err != nil {
		return nil, err
	}
	payload, cookies, err := artifactstream.Pack(result.Artifacts)
	if err != nil {
		return nil, fmt.Errorf("packing artifacts of job %s: %w", job.ID, err)
	}
	return &rpc.CompileOutput{
		Status:   result.Status,
		ExitCode: result.ExitCode,
		Cookies:  cookies,
		Payload:  payload,
	}, nil
}
