// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package node

import (
	"context"
	"fmt"

	"github.com/bureau-foundation/buildmesh/lib/rpc"
)

func (n *Node) registerHandlers() {
	n.server.Handle(rpc.ActionRegisterAgent, n.handleRegisterAgent)
	n.server.Handle(rpc.ActionGetAgents, n.handleGetAgents)
	n.server.Handle(rpc.ActionGetDescription, n.handleGetDescription)
	n.server.Handle(rpc.ActionIsReady, n.handleIsReady)
	n.server.Handle(rpc.ActionCompile, n.handleCompile)
}

func (n *Node) handleRegisterAgent(ctx context.Context, raw []byte) (any, error) {
	descriptor, err := rpc.DecodeRegisterAgent(raw)
	if err != nil {
		return nil, err
	}
	if err := descriptor.Validate(); err != nil {
		return nil, err
	}
	if err := n.registry.Register(ctx, descriptor); err != nil {
		return nil, err
	}
	return nil, nil
}

func (n *Node) handleGetAgents(ctx context.Context, raw []byte) (any, error) {
	snapshot, err := n.registry.ListAgents(ctx)
	if err != nil {
		return nil, err
	}
	// Encoded as the response; the shared snapshot is only read.
	return snapshot.Agents, nil
}

func (n *Node) handleGetDescription(ctx context.Context, raw []byte) (any, error) {
	return n.local.Descriptor(), nil
}

func (n *Node) handleIsReady(ctx context.Context, raw []byte) (any, error) {
	return rpc.ReadyResponse{Ready: n.backend.IsReady()}, nil
}

func (n *Node) handleCompile(ctx context.Context, raw []byte) (any, error) {
	job, err := rpc.DecodeCompile(raw)
	if err != nil {
		return nil, err
	}
	result, err := n.backend.Compile(ctx, job)
	if err != nil {
		return nil, fmt.Errorf("job %s: %w", job.ID, err)
	}
	n.logger.Debug("compiled job for peer",
		"job_id", job.ID,
		"source", job.SourceName,
		"status", result.Status.String(),
	)
	return rpc.EncodeCompileResult(result, n.compression)
}
