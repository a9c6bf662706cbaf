// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package rpc

import (
	"bytes"
	"fmt"
	"io"

	"github.com/bureau-foundation/buildmesh/lib/agent"
	"github.com/bureau-foundation/buildmesh/lib/codec"
	"github.com/bureau-foundation/buildmesh/lib/compiler"
)

func newByteReader(data []byte) io.Reader {
	return bytes.NewReader(data)
}

// DecodeRegisterAgent extracts the descriptor of a register-agent
// request.
func DecodeRegisterAgent(raw []byte) (agent.Descriptor, error) {
	var request struct {
		Descriptor *agent.Descriptor `cbor:"descriptor"`
	}
	if err := codec.Unmarshal(raw, &request); err != nil {
		return agent.Descriptor{}, fmt.Errorf("decoding %s request: %w", ActionRegisterAgent, err)
	}
	if request.Descriptor == nil {
		return agent.Descriptor{}, fmt.Errorf("%s request missing descriptor", ActionRegisterAgent)
	}
	return request.Descriptor.Normalize(), nil
}

// DecodeCompile extracts the job of a compile request.
func DecodeCompile(raw []byte) (compiler.Job, error) {
	var request struct {
		Job *compiler.Job `cbor:"job"`
	}
	if err := codec.Unmarshal(raw, &request); err != nil {
		return compiler.Job{}, fmt.Errorf("decoding %s request: %w", ActionCompile, err)
	}
	if request.Job == nil {
		return compiler.Job{}, fmt.Errorf("%s request missing job", ActionCompile)
	}
	return *request.Job, nil
}
