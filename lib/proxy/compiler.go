// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package proxy

import (
	"context"

	"github.com/bureau-foundation/buildmesh/lib/compiler"
	"github.com/bureau-foundation/buildmesh/lib/rpc"
)

// Compiler runs jobs on one agent's backend.
type Compiler interface {
	// Endpoint names where jobs go: a compiler endpoint address, or
	// "local" for this node's own backend.
	Endpoint() string

	// IsReady asks the backend whether it accepts jobs.
	IsReady(ctx context.Context) (bool, error)

	// Compile runs job and returns its verified artifact payload.
	Compile(ctx context.Context, job compiler.Job) (*rpc.CompileOutput, error)
}

// remoteCompiler is a Compiler bound to one compiler endpoint.
type remoteCompiler struct {
	client *rpc.Client
}

func (c *remoteCompiler) Endpoint() string { return c.client.Address() }

func (c *remoteCompiler) IsReady(ctx context.Context) (bool, error) {
	return c.client.IsReady(ctx)
}

func (c *remoteCompiler) Compile(ctx context.Context, job compiler.Job) (*rpc.CompileOutput, error) {
	return c.client.Compile(ctx, job)
}

// checkReady is the failover call used to find a compiler endpoint:
// reachable but busy counts as a failure.
func checkReady(ctx context.Context, c *remoteCompiler) (*remoteCompiler, error) {
	ready, err := c.IsReady(ctx)
	if err != nil {
		return nil, err
	}
	if !ready {
		return nil, compiler.ErrNotReady
	}
	return c, nil
}
