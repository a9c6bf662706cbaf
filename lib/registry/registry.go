// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bureau-foundation/buildmesh/lib/agent"
	"github.com/bureau-foundation/buildmesh/lib/clock"
)

var (
	// ErrLockTimeout means the registration map's exclusive section
	// could not be entered within Options.LockTimeout. The section is
	// short, so this indicates a stuck holder.
	ErrLockTimeout = errors.New("registry lock acquisition timed out")

	// ErrEmpty means the registry holds no agents.
	ErrEmpty = errors.New("registry is empty")

	// ErrNoEligibleAgent means agents are registered but every one of
	// them has weight zero.
	ErrNoEligibleAgent = errors.New("no agent has positive weight")

	// ErrNoReadyAgent means SelectReady exhausted its attempts without
	// finding an agent whose backend reported ready.
	ErrNoReadyAgent = errors.New("no ready agent")
)

// Options configures a Registry. Zero fields take defaults.
type Options struct {
	// Clock supplies last-seen timestamps and backoff waits.
	// Default: clock.Real().
	Clock clock.Clock

	// Logger receives registration and eviction events.
	// Default: slog.Default().
	Logger *slog.Logger

	// LockTimeout bounds the wait for the registration map's
	// exclusive section. Default: one minute.
	LockTimeout time.Duration

	// SilenceLimit is how long an agent may go without re-registering
	// before Sweep evicts it. Default: DefaultSilenceLimit.
	SilenceLimit time.Duration

	// Random returns a uniform integer in [0, n). Tests inject a
	// seeded source. Default: math/rand/v2 Int64N.
	Random func(n int64) int64
}

// DefaultSilenceLimit is the default Options.SilenceLimit.
const DefaultSilenceLimit = 10 * time.Second

// RegisteredAgent is a descriptor plus the time it was last registered.
type RegisteredAgent struct {
	Descriptor agent.Descriptor
	LastSeen   time.Time
}

// Snapshot is an immutable list of registered agents. The registry
// publishes a new *Snapshot whenever its membership or any descriptor
// changes, so callers detect change by comparing pointers. Snapshots
// are shared between readers: Agents must not be modified.
type Snapshot struct {
	Agents []agent.Descriptor
	byID   map[string]int
}

// Contains reports whether the snapshot holds id.
func (s *Snapshot) Contains(id string) bool {
	_, ok := s.byID[id]
	return ok
}

// Lookup returns the descriptor for id.
func (s *Snapshot) Lookup(id string) (agent.Descriptor, bool) {
	index, ok := s.byID[id]
	if !ok {
		return agent.Descriptor{}, false
	}
	return s.Agents[index], true
}

// Registry is a concurrent agent pool. Create with New.
type Registry struct {
	clock        clock.Clock
	logger       *slog.Logger
	lockTimeout  time.Duration
	silenceLimit time.Duration
	random       func(n int64) int64

	// lock is a one-slot semaphore rather than a sync.Mutex so that
	// acquisition can be bounded by a timeout and a context.
	lock   chan struct{}
	agents map[string]*RegisteredAgent

	snapshot atomic.Pointer[Snapshot]
	weights  atomic.Pointer[weightTable]

	notifyMu sync.Mutex
	changed  chan struct{}
}

// New creates an empty registry.
func New(options Options) *Registry {
	if options.Clock == nil {
		options.Clock = clock.Real()
	}
	if options.Logger == nil {
		options.Logger = slog.Default()
	}
	if options.LockTimeout <= 0 {
		options.LockTimeout = time.Minute
	}
	if options.SilenceLimit <= 0 {
		options.SilenceLimit = DefaultSilenceLimit
	}
	if options.Random == nil {
		options.Random = rand.Int64N
	}
	return &Registry{
		clock:        options.Clock,
		logger:       options.Logger,
		lockTimeout:  options.LockTimeout,
		silenceLimit: options.SilenceLimit,
		random:       options.Random,
		lock:         make(chan struct{}, 1),
		agents:       make(map[string]*RegisteredAgent),
		changed:      make(chan struct{}),
	}
}

// acquire enters the exclusive section. The uncontended path takes no
// timer.
func (r *Registry) acquire(ctx context.Context, operation string) error {
	select {
	case r.lock <- struct{}{}:
		return nil
	default:
	}

	select {
	case r.lock <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("registry %s: %w", operation, ctx.Err())
	case <-r.clock.After(r.lockTimeout):
		return fmt.Errorf("registry %s after %v: %w", operation, r.lockTimeout, ErrLockTimeout)
	}
}

func (r *Registry) release() {
	<-r.lock
}

// invalidate clears both derived views and wakes Changed waiters. Must
// be called inside the exclusive section.
func (r *Registry) invalidate() {
	r.snapshot.Store(nil)
	r.weights.Store(nil)

	r.notifyMu.Lock()
	close(r.changed)
	r.changed = make(chan struct{})
	r.notifyMu.Unlock()
}

// Changed returns a channel that is closed the next time the registry's
// membership or any descriptor changes. Heartbeat refreshes do not
// close it.
func (r *Registry) Changed() <-chan struct{} {
	r.notifyMu.Lock()
	defer r.notifyMu.Unlock()
	return r.changed
}

// Register upserts descriptor. A new identity is inserted; an identity
// whose descriptor is structurally equal only has its last-seen time
// refreshed; a differing descriptor replaces the entry.
func (r *Registry) Register(ctx context.Context, descriptor agent.Descriptor) error {
	descriptor = descriptor.Normalize()
	if err := descriptor.Validate(); err != nil {
		return err
	}

	if err := r.acquire(ctx, "register"); err != nil {
		return err
	}
	defer r.release()

	now := r.clock.Now()
	existing, ok := r.agents[descriptor.ID]
	switch {
	case !ok:
		r.agents[descriptor.ID] = &RegisteredAgent{Descriptor: descriptor, LastSeen: now}
		r.invalidate()
		r.logger.Info("agent registered",
			"agent_id", descriptor.ID,
			"name", descriptor.Name,
			"cores", descriptor.Cores,
			"total_agents", len(r.agents),
		)
	case existing.Descriptor.Equal(descriptor):
		existing.LastSeen = now
	default:
		r.agents[descriptor.ID] = &RegisteredAgent{Descriptor: descriptor, LastSeen: now}
		r.invalidate()
		r.logger.Debug("agent descriptor replaced",
			"agent_id", descriptor.ID,
			"cpu_usage_percent", descriptor.CPUUsagePercent,
		)
	}
	return nil
}

// Evict removes every agent last seen strictly before olderThan and
// returns how many were removed. Eviction of a silent agent is the
// expected outcome of it leaving; it is logged at debug level.
func (r *Registry) Evict(ctx context.Context, olderThan time.Time) (int, error) {
	if err := r.acquire(ctx, "evict"); err != nil {
		return 0, err
	}
	defer r.release()

	removed := 0
	for id, entry := range r.agents {
		if entry.LastSeen.Before(olderThan) {
			delete(r.agents, id)
			removed++
			r.logger.Debug("agent evicted",
				"agent_id", id,
				"name", entry.Descriptor.Name,
				"last_seen", entry.LastSeen,
			)
		}
	}
	if removed > 0 {
		r.invalidate()
	}
	return removed, nil
}

// Sweep evicts agents that have been silent for longer than the
// silence limit as of asOf: it is Evict(asOf - SilenceLimit).
func (r *Registry) Sweep(ctx context.Context, asOf time.Time) (int, error) {
	return r.Evict(ctx, asOf.Add(-r.silenceLimit))
}

// SilenceLimit returns the configured silence limit.
func (r *Registry) SilenceLimit() time.Duration {
	return r.silenceLimit
}

// LastSeen returns when id last registered.
func (r *Registry) LastSeen(ctx context.Context, id string) (time.Time, bool, error) {
	if err := r.acquire(ctx, "last-seen"); err != nil {
		return time.Time{}, false, err
	}
	defer r.release()

	entry, ok := r.agents[id]
	if !ok {
		return time.Time{}, false, nil
	}
	return entry.LastSeen, true, nil
}

// ListAgents returns the current agent snapshot, rebuilding it if a
// change cleared it. Concurrent rebuilds are harmless: the first to
// publish wins and the others return the published snapshot.
func (r *Registry) ListAgents(ctx context.Context) (*Snapshot, error) {
	if snapshot := r.snapshot.Load(); snapshot != nil {
		return snapshot, nil
	}

	if err := r.acquire(ctx, "list"); err != nil {
		return nil, err
	}
	defer r.release()

	// Publishing inside the exclusive section means no invalidation
	// can land between building and publishing.
	fresh := &Snapshot{
		Agents: make([]agent.Descriptor, 0, len(r.agents)),
		byID:   make(map[string]int, len(r.agents)),
	}
	for id, entry := range r.agents {
		fresh.byID[id] = len(fresh.Agents)
		fresh.Agents = append(fresh.Agents, entry.Descriptor)
	}
	if r.snapshot.CompareAndSwap(nil, fresh) {
		return fresh, nil
	}
	return r.snapshot.Load(), nil
}

// Contains reports whether id is registered. A registry that cannot be
// read in time reports false.
func (r *Registry) Contains(id string) bool {
	snapshot, err := r.ListAgents(context.Background())
	if err != nil {
		r.logger.Warn("registry contains check failed", "agent_id", id, "error", err)
		return false
	}
	return snapshot.Contains(id)
}

// Len returns the number of registered agents.
func (r *Registry) Len() int {
	snapshot, err := r.ListAgents(context.Background())
	if err != nil {
		return 0
	}
	return len(snapshot.Agents)
}
