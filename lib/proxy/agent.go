// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package proxy

import (
	"context"

	"github.com/bureau-foundation/buildmesh/lib/agent"
)

// Agent is anything jobs and gossip can be sent to. The variants are
// *Remote and *Local.
type Agent interface {
	Descriptor() agent.Descriptor
	CompilerHandle(ctx context.Context) (Compiler, error)
	CoordinatorHandle() Coordinator
}

var (
	_ Agent = (*Remote)(nil)
	_ Agent = (*Local)(nil)
	_ Pool  = (*PoolHandle)(nil)
	_ Pool  = (*localPool)(nil)

	_ Coordinator = (*PeerHandle)(nil)
)
