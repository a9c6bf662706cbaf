// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package rpc is buildmesh's node-to-node request/response protocol.
//
// Each call opens one connection, writes one CBOR request, reads one
// CBOR response, and closes. A request is a CBOR map with an "action"
// key plus action-specific fields; a response is a [Response]
// envelope {ok, error, data}. The compile action is the one streamed
// call: after the envelope, the server writes the packed artifact
// payload as a second CBOR value (a byte string) whose layout the
// envelope's data describes (see lib/artifactstream).
//
// Actions:
//
//	register-agent   {descriptor}  -> none
//	get-agents       {}            -> [descriptor...]
//	get-description  {}            -> descriptor
//	is-ready         {}            -> {ready}
//	compile          {job}         -> CompileResponse + payload
//
// [Server] dispatches actions to registered [ActionFunc]s; [Client]
// calls them. Every client call honours its context: cancelling the
// context closes the connection, so a hung peer cannot hold a caller
// past its deadline.
package rpc
