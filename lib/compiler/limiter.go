// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package compiler

import (
	"context"
	"sync/atomic"
)

// Limiter caps the number of jobs running concurrently on a backend.
// It reports not-ready while every slot is taken, which makes remote
// dispatchers move on to another agent instead of queueing here.
type Limiter struct {
	backend Backend
	slots   chan struct{}
	running atomic.Int32
}

// NewLimiter wraps backend with the given number of slots (at least 1).
func NewLimiter(backend Backend, slots int) *Limiter {
	if slots < 1 {
		slots = 1
	}
	return &Limiter{
		backend: backend,
		slots:   make(chan struct{}, slots),
	}
}

// IsReady is true when a slot is free and the wrapped backend is ready.
func (l *Limiter) IsReady() bool {
	return len(l.slots) < cap(l.slots) && l.backend.IsReady()
}

// Running returns the number of jobs in flight.
func (l *Limiter) Running() int {
	return int(l.running.Load())
}

// Compile runs job if a slot is free and rejects it otherwise.
func (l *Limiter) Compile(ctx context.Context, job Job) (Result, error) {
	select {
	case l.slots <- struct{}{}:
	default:
		return Result{Status: StatusRejected}, ErrNotReady
	}
	l.running.Add(1)
	defer func() {
		l.running.Add(-1)
		<-l.slots
	}()
	return l.backend.Compile(ctx, job)
}
