// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package transport carries node-to-node connections for buildmesh.
//
// [Listener] accepts inbound connections from peer nodes and [Dialer]
// opens outbound ones. The RPC layer (lib/rpc) runs one request and
// one response over each connection and does not care how the bytes
// travel. The only implementation today is plain TCP ([TCPListener],
// [TCPDialer]), which requires direct reachability between nodes, the
// normal situation for a build farm on one LAN.
package transport
