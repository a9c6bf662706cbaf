// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec holds buildmesh's one CBOR configuration. Every node
// speaks the same encoding on the wire: agent descriptors, compile
// requests, artifact envelopes and response envelopes all pass
// through [Marshal], [Unmarshal], or the stream helpers.
//
// Buffer-oriented use:
//
//	data, err := codec.Marshal(descriptor)
//	err = codec.Unmarshal(data, &descriptor)
//
// Stream-oriented use (one RPC connection):
//
//	codec.NewEncoder(conn).Encode(request)
//	codec.NewDecoder(conn).Decode(&response)
//
// Types that are also printed by the CLI carry `json` tags;
// fxamacker/cbor reads them when no `cbor` tag is present, so a single
// tag names the field in both formats. Wire-only envelopes use `cbor`
// tags. Never put both on one field.
package codec
