// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package rpc

import (
	"fmt"

	"github.com/bureau-foundation/buildmesh/lib/artifactstream"
	"github.com/bureau-foundation/buildmesh/lib/codec"
	"github.com/bureau-foundation/buildmesh/lib/compiler"
)

// Action names.
const (
	ActionRegisterAgent  = "register-agent"
	ActionGetAgents      = "get-agents"
	ActionGetDescription = "get-description"
	ActionIsReady        = "is-ready"
	ActionCompile        = "compile"
)

// Response is the envelope of every reply.
type Response struct {
	OK    bool             `cbor:"ok"`
	Error string           `cbor:"error,omitempty"`
	Data  codec.RawMessage `cbor:"data,omitempty"`
}

// Streamed is returned by an ActionFunc whose reply carries a payload
// after the envelope. Data goes in Response.Data; Body follows as a
// CBOR byte string.
type Streamed struct {
	Data any
	Body []byte
}

// RemoteError is a failure reported by the peer (ok=false), as opposed
// to a failure to reach it.
type RemoteError struct {
	Action  string
	Address string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s on %s: %s", e.Action, e.Address, e.Message)
}

// ReadyResponse is the data of an is-ready reply.
type ReadyResponse struct {
	Ready bool `cbor:"ready"`
}

// CompileResponse is the data of a compile reply. The payload that
// follows it is described by Envelope.
type CompileResponse struct {
	Status   compiler.Status         `cbor:"status"`
	ExitCode int                     `cbor:"exit_code"`
	Envelope artifactstream.Envelope `cbor:"envelope"`
}

// EncodeCompileResult packs a backend result for the wire.
func EncodeCompileResult(result compiler.Result, compression artifactstream.Compression) (*Streamed, error) {
	payload, cookies, err := artifactstream.Pack(result.Artifacts)
	if err != nil {
		return nil, fmt.Errorf("packing artifacts: %w", err)
	}
	envelope, body, err := artifactstream.Seal(payload, cookies, compression)
	if err != nil {
		return nil, fmt.Errorf("sealing artifacts: %w", err)
	}
	return &Streamed{
		Data: CompileResponse{
			Status:   result.Status,
			ExitCode: result.ExitCode,
			Envelope: envelope,
		},
		Body: body,
	}, nil
}
