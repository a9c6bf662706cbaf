// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package node assembles one buildmesh node from its parts.
//
// A [Node] owns the agent registry, this node's descriptor, the RPC
// server that answers peers, the topology builder that gossips with
// them, and a dispatcher for compile jobs submitted on this node. The
// registry is owned here and handed down; nothing below the node holds
// a reference back up.
//
// The compile backend is supplied by the embedder. A node without one
// still coordinates: it gossips and answers queries but reports itself
// not ready for compiles.
package node
