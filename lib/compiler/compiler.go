// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package compiler

import (
	"context"
	"errors"

	"github.com/bureau-foundation/buildmesh/lib/artifactstream"
)

// ErrNotReady is returned by Compile when the backend cannot take a
// job right now. Dispatchers treat it as "pick another agent".
var ErrNotReady = errors.New("compile backend not ready")

// Job is one translation unit to compile.
type Job struct {
	// ID correlates logs across the dispatching and compiling nodes.
	ID string `cbor:"id"`

	// SourceName is the file name the compiler should report in
	// diagnostics (e.g. "src/main.c").
	SourceName string `cbor:"source_name"`

	// Source is the preprocessed translation unit.
	Source []byte `cbor:"source"`

	// Arguments are the already-translated backend arguments. Their
	// meaning belongs to the backend.
	Arguments []string `cbor:"arguments,omitempty"`

	// DebugInfo requests a separate debug-info artifact.
	DebugInfo bool `cbor:"debug_info,omitempty"`
}

// Status classifies a finished job.
type Status uint8

const (
	// StatusSucceeded means the compiler exited zero.
	StatusSucceeded Status = 0

	// StatusFailed means the compiler ran and reported errors. Its
	// stderr artifact carries the diagnostics.
	StatusFailed Status = 1

	// StatusRejected means the backend refused the job without running
	// the compiler (not ready, shutting down).
	StatusRejected Status = 2
)

func (s Status) String() string {
	switch s {
	case StatusSucceeded:
		return "succeeded"
	case StatusFailed:
		return "failed"
	case StatusRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Result is what a backend produces. Artifacts are packed in order
// with artifactstream.Pack.
type Result struct {
	Status    Status
	ExitCode  int
	Artifacts []artifactstream.Artifact
}

// Backend runs compile jobs on this machine.
type Backend interface {
	// IsReady reports whether Compile would accept a job now.
	IsReady() bool

	// Compile runs job. Compiler errors are reported through
	// Result.Status and the stderr artifact, not through err; err is
	// for failures to run at all.
	Compile(ctx context.Context, job Job) (Result, error)
}

// Unavailable is the backend of a node that coordinates but does not
// compile.
type Unavailable struct{}

func (Unavailable) IsReady() bool { return false }

func (Unavailable) Compile(context.Context, Job) (Result, error) {
	return Result{Status: StatusRejected}, ErrNotReady
}
