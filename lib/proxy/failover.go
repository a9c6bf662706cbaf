// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package proxy

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
)

// State is where a handle stands in its connection lifecycle.
type State int

const (
	// Uninitialized: no endpoint has answered yet, or the last call
	// exhausted every endpoint.
	Uninitialized State = iota

	// Connected: the preferred endpoint answered the last call.
	Connected

	// Disconnected: the preferred endpoint failed and a search over
	// the remaining endpoints is in progress.
	Disconnected

	// AllEndpointsFailed: the last call failed on every endpoint. The
	// next call starts over from Uninitialized.
	AllEndpointsFailed
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Connected:
		return "connected"
	case Disconnected:
		return "disconnected"
	case AllEndpointsFailed:
		return "all-endpoints-failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// endpointSet is the failover state shared by one handle's calls: the
// candidate endpoints, the connection to the endpoint that last
// answered, and the lifecycle state.
type endpointSet[C any] struct {
	endpoints []string
	connect   func(endpoint string) C
	logger    *slog.Logger

	mu       sync.Mutex
	cached   C
	endpoint string // empty when nothing is cached
	state    State
}

func newEndpointSet[C any](endpoints []string, connect func(string) C, logger *slog.Logger) *endpointSet[C] {
	return &endpointSet[C]{
		endpoints: slices.Clone(endpoints),
		connect:   connect,
		logger:    logger,
	}
}

// begin returns the cached connection, if any, and moves an exhausted
// handle back to Uninitialized.
func (s *endpointSet[C]) begin() (C, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == AllEndpointsFailed {
		s.state = Uninitialized
	}
	return s.cached, s.endpoint
}

func (s *endpointSet[C]) adopt(endpoint string, conn C) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cached = conn
	s.endpoint = endpoint
	s.state = Connected
}

func (s *endpointSet[C]) setState(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

func (s *endpointSet[C]) exhausted() {
	s.mu.Lock()
	defer s.mu.Unlock()
	var zero C
	s.cached = zero
	s.endpoint = ""
	s.state = AllEndpointsFailed
}

// State returns the current lifecycle state.
func (s *endpointSet[C]) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Endpoint returns the endpoint that answered last, or "".
func (s *endpointSet[C]) Endpoint() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.endpoint
}

// failover runs call against the cached connection, then against a
// fresh connection to each other endpoint in order. The first success
// is cached and its result returned. If everything fails the result is
// an *AggregateError with one error per attempt.
//
// Cancellation stops the search between attempts; the context error is
// recorded as the final attempt.
func failover[C, R any](ctx context.Context, set *endpointSet[C], operation string, call func(context.Context, C) (R, error)) (R, error) {
	var zero R
	var attempts []error

	cached, cachedEndpoint := set.begin()
	if cachedEndpoint != "" {
		result, err := call(ctx, cached)
		if err == nil {
			set.adopt(cachedEndpoint, cached)
			return result, nil
		}
		attempts = append(attempts, fmt.Errorf("%s: %w", cachedEndpoint, err))
		set.setState(Disconnected)
		set.logger.Debug("preferred endpoint failed, searching",
			"operation", operation,
			"endpoint", cachedEndpoint,
			"error", err,
		)
	}

	if len(set.endpoints) == 0 {
		attempts = append(attempts, ErrNoEndpoints)
	}

	for _, endpoint := range set.endpoints {
		if endpoint == cachedEndpoint {
			continue
		}
		if err := ctx.Err(); err != nil {
			attempts = append(attempts, err)
			break
		}
		conn := set.connect(endpoint)
		result, err := call(ctx, conn)
		if err == nil {
			set.adopt(endpoint, conn)
			return result, nil
		}
		attempts = append(attempts, fmt.Errorf("%s: %w", endpoint, err))
		set.logger.Debug("endpoint failed",
			"operation", operation,
			"endpoint", endpoint,
			"error", err,
		)
	}

	set.exhausted()
	return zero, &AggregateError{Operation: operation, Errors: attempts}
}
