// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package registry

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/bureau-foundation/buildmesh/lib/agent"
)

// weightTable maps cumulative weight intervals to agents. starts[i] is
// the first integer of agents[i]'s interval; the interval ends where
// the next begins, or at total. Only agents with positive weight are
// present, so starts is strictly increasing.
type weightTable struct {
	agents     []agent.Descriptor
	starts     []int64
	total      int64
	registered int
}

func (r *Registry) weightTable(ctx context.Context) (*weightTable, error) {
	if table := r.weights.Load(); table != nil {
		return table, nil
	}

	if err := r.acquire(ctx, "select"); err != nil {
		return nil, err
	}
	defer r.release()

	// Cumulative sums follow map iteration order. Positions carry no
	// meaning; only interval widths do.
	fresh := &weightTable{registered: len(r.agents)}
	for _, entry := range r.agents {
		weight := entry.Descriptor.Weight()
		if weight <= 0 {
			continue
		}
		fresh.agents = append(fresh.agents, entry.Descriptor)
		fresh.starts = append(fresh.starts, fresh.total)
		fresh.total += weight
	}
	if r.weights.CompareAndSwap(nil, fresh) {
		return fresh, nil
	}
	return r.weights.Load(), nil
}

// pick returns the agent whose interval contains target.
func (t *weightTable) pick(target int64) agent.Descriptor {
	index, found := slices.BinarySearch(t.starts, target)
	if !found {
		// The interval whose start is the largest value <= target.
		index--
	}
	return t.agents[index]
}

// SelectWeighted draws one agent with probability weight/totalWeight.
// It says nothing about whether the agent's backend is reachable; use
// SelectReady for that. Returns ErrEmpty for an empty registry and
// ErrNoEligibleAgent when every registered agent has weight zero.
func (r *Registry) SelectWeighted(ctx context.Context) (agent.Descriptor, error) {
	table, err := r.weightTable(ctx)
	if err != nil {
		return agent.Descriptor{}, err
	}
	if table.registered == 0 {
		return agent.Descriptor{}, ErrEmpty
	}
	if table.total == 0 {
		return agent.Descriptor{}, ErrNoEligibleAgent
	}
	return table.pick(r.random(table.total)), nil
}

// Backoff bounds SelectReady's retry loop.
type Backoff struct {
	// Initial is the first wait after a failed attempt.
	Initial time.Duration
	// Max caps the doubling wait.
	Max time.Duration
	// Attempts is the total number of selections tried.
	Attempts int
}

// DefaultBackoff waits 10ms, 20ms, ... up to 1s between attempts, for
// at most 20 attempts (roughly ten seconds in the worst case).
var DefaultBackoff = Backoff{
	Initial:  10 * time.Millisecond,
	Max:      time.Second,
	Attempts: 20,
}

// ReadyFunc reports whether the selected agent can take a job now.
type ReadyFunc func(ctx context.Context, descriptor agent.Descriptor) bool

// SelectReady repeats SelectWeighted until ready accepts the drawn
// agent. Between attempts it waits with exponential backoff, waking
// early if the registry changes. Fails with ErrNoReadyAgent once the
// attempts are spent, or with the context's error if ctx ends first.
// Lock timeouts are returned immediately.
func (r *Registry) SelectReady(ctx context.Context, backoff Backoff, ready ReadyFunc) (agent.Descriptor, error) {
	if backoff.Attempts <= 0 {
		backoff.Attempts = DefaultBackoff.Attempts
	}
	if backoff.Initial <= 0 {
		backoff.Initial = DefaultBackoff.Initial
	}
	if backoff.Max < backoff.Initial {
		backoff.Max = backoff.Initial
	}

	wait := backoff.Initial
	var lastErr error
	for attempt := 0; attempt < backoff.Attempts; attempt++ {
		if attempt > 0 {
			changed := r.Changed()
			select {
			case <-ctx.Done():
				return agent.Descriptor{}, ctx.Err()
			case <-changed:
			case <-r.clock.After(wait):
			}
			wait = min(wait*2, backoff.Max)
		}

		descriptor, err := r.SelectWeighted(ctx)
		switch {
		case errors.Is(err, ErrLockTimeout):
			return agent.Descriptor{}, err
		case err != nil:
			lastErr = err
			continue
		}

		if ready(ctx, descriptor) {
			return descriptor, nil
		}
		lastErr = fmt.Errorf("agent %s not ready", descriptor)
	}

	if lastErr == nil {
		return agent.Descriptor{}, ErrNoReadyAgent
	}
	return agent.Descriptor{}, fmt.Errorf("%w after %d attempts: %w", ErrNoReadyAgent, backoff.Attempts, lastErr)
}
