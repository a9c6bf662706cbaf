// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package topology

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bureau-foundation/buildmesh/lib/agent"
	"github.com/bureau-foundation/buildmesh/lib/clock"
	"github.com/bureau-foundation/buildmesh/lib/proxy"
	"github.com/bureau-foundation/buildmesh/lib/registry"
)

// Defaults for Options fields left zero.
const (
	DefaultPeriod          = 2 * time.Second
	DefaultRebuildInterval = 30 * time.Second
)

// Options configures a Builder.
type Options struct {
	// Self is this node. Its descriptor is read at the start of every
	// iteration and its coordinator is the local registry.
	Self *proxy.Local

	// Registry is the node's agent registry (the one behind Self).
	Registry *registry.Registry

	// Seeds are pool endpoints to join through.
	Seeds []string

	// Period is the target duration of one iteration.
	Period time.Duration

	// RebuildInterval forces a convergence pass this often even when
	// nothing changed locally.
	RebuildInterval time.Duration

	// CallTimeout bounds every gossip RPC. It must be shorter than
	// Period so that a peer that never answers fails its call (and
	// counts against its breaker) before the iteration is cancelled.
	// Zero means half of Period.
	CallTimeout time.Duration

	// SkipOverlappingPools skips agents that share any pool endpoint
	// with a pool already in the table. When false only the endpoints
	// not yet in the table are tried.
	SkipOverlappingPools bool

	// BeforeIteration, if set, runs at the start of every iteration
	// (the node uses it to refresh its CPU reading).
	BeforeIteration func(ctx context.Context)

	// Proxy configures the pool handles the builder creates. Its
	// BreakerThreshold decides when an endpoint is dropped.
	Proxy proxy.Options

	Clock  clock.Clock
	Logger *slog.Logger
}

// knownPool is one row of the known-pool table.
type knownPool struct {
	endpoint string
	handle   *proxy.PoolHandle
}

// Builder maintains the known-pool table. Create with New and drive
// with Run (or Iterate in tests).
type Builder struct {
	self     *proxy.Local
	registry *registry.Registry
	seeds    []string
	options  Options
	clock    clock.Clock
	logger   *slog.Logger

	// pools maps endpoint to *knownPool.
	pools       sync.Map
	poolsGrown  atomic.Uint64
	removalMu   sync.Mutex
	removals    []string
	lastPass    *registry.Snapshot
	lastGrowth  uint64
	nextRebuild time.Time

	// seen holds the pool agents gathered by the last uninterrupted
	// convergence. Only the iterating goroutine touches it.
	seen map[string]struct{}
}

// New creates a builder. Self and Registry are required.
func New(options Options) (*Builder, error) {
	if options.Self == nil {
		return nil, fmt.Errorf("topology: Self is required")
	}
	if options.Registry == nil {
		return nil, fmt.Errorf("topology: Registry is required")
	}
	if options.Clock == nil {
		options.Clock = clock.Real()
	}
	if options.Logger == nil {
		options.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if options.Period <= 0 {
		options.Period = DefaultPeriod
	}
	if options.RebuildInterval <= 0 {
		options.RebuildInterval = DefaultRebuildInterval
	}
	if options.CallTimeout <= 0 || options.CallTimeout >= options.Period {
		options.CallTimeout = options.Period / 2
	}
	if options.Proxy.Clock == nil {
		options.Proxy.Clock = options.Clock
	}
	if options.Proxy.Logger == nil {
		options.Proxy.Logger = options.Logger
	}
	return &Builder{
		self:     options.Self,
		registry: options.Registry,
		seeds:    slices.Clone(options.Seeds),
		options:  options,
		clock:    options.Clock,
		logger:   options.Logger,
		seen:     make(map[string]struct{}),
	}, nil
}

// KnownPools returns the endpoints in the known-pool table, sorted.
func (b *Builder) KnownPools() []string {
	var endpoints []string
	b.pools.Range(func(key, _ any) bool {
		endpoints = append(endpoints, key.(string))
		return true
	})
	slices.Sort(endpoints)
	return endpoints
}

func (b *Builder) knownPools() []*knownPool {
	var pools []*knownPool
	b.pools.Range(func(_, value any) bool {
		pools = append(pools, value.(*knownPool))
		return true
	})
	return pools
}

func (b *Builder) known(endpoint string) bool {
	_, ok := b.pools.Load(endpoint)
	return ok
}

// addPool puts handle in the table unless the endpoint is already
// there. Reports whether it was added.
func (b *Builder) addPool(endpoint string, handle *proxy.PoolHandle) bool {
	if _, loaded := b.pools.LoadOrStore(endpoint, &knownPool{endpoint: endpoint, handle: handle}); loaded {
		return false
	}
	b.poolsGrown.Add(1)
	b.logger.Info("pool endpoint added", "endpoint", endpoint)
	return true
}

func (b *Builder) queueRemoval(endpoint string) {
	b.removalMu.Lock()
	defer b.removalMu.Unlock()
	if !slices.Contains(b.removals, endpoint) {
		b.removals = append(b.removals, endpoint)
	}
}

func (b *Builder) drainRemovals() {
	b.removalMu.Lock()
	removals := b.removals
	b.removals = nil
	b.removalMu.Unlock()

	for _, endpoint := range removals {
		if _, loaded := b.pools.LoadAndDelete(endpoint); loaded {
			b.logger.Info("pool endpoint removed after consecutive failures", "endpoint", endpoint)
		}
	}
}

// Run iterates until ctx is cancelled. Each iteration's background
// calls are cancelled when the iteration ends. Run returns nil on
// shutdown.
func (b *Builder) Run(ctx context.Context) error {
	b.logger.Info("topology builder started",
		"period", b.options.Period,
		"seeds", b.seeds,
	)
	for {
		start := b.clock.Now()
		iterationCtx, cancel := context.WithCancel(ctx)
		pushes := b.iterate(iterationCtx)

		if remaining := b.options.Period - b.clock.Now().Sub(start); remaining > 0 {
			select {
			case <-ctx.Done():
			case <-b.clock.After(remaining):
			}
		}

		cancel()
		pushes.Wait()
		b.drainRemovals()

		if ctx.Err() != nil {
			b.logger.Info("topology builder stopped")
			return nil
		}
	}
}

// Iterate runs one iteration and waits for its background pushes to
// finish instead of idling for the period. It must not be called while
// Run is running.
func (b *Builder) Iterate(ctx context.Context) {
	iterationCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	pushes := b.iterate(iterationCtx)
	pushes.Wait()
	b.drainRemovals()
}

// iterate runs the synchronous part of an iteration and returns the
// group of pushes it left running.
func (b *Builder) iterate(ctx context.Context) *sync.WaitGroup {
	if b.options.BeforeIteration != nil {
		b.options.BeforeIteration(ctx)
	}
	self := b.self.Descriptor()

	pushes := &sync.WaitGroup{}
	b.push(ctx, self, pushes)
	b.joinSeeds(ctx, self, pushes)

	now := b.clock.Now()
	if err := b.registry.Register(ctx, self); err != nil {
		b.logger.Warn("registering self failed", "error", err)
	}
	if evicted, err := b.registry.Sweep(ctx, now); err != nil {
		b.logger.Warn("sweeping registry failed", "error", err)
	} else if evicted > 0 {
		b.logger.Debug("evicted silent agents", "count", evicted)
	}

	snapshot, err := b.registry.ListAgents(ctx)
	if err != nil {
		b.logger.Warn("listing registry failed", "error", err)
		return pushes
	}
	grown := b.poolsGrown.Load()
	rebuildDue := !now.Before(b.nextRebuild)
	if snapshot == b.lastPass && grown == b.lastGrowth && !rebuildDue {
		return pushes
	}
	b.lastPass = snapshot
	b.lastGrowth = grown
	b.nextRebuild = now.Add(b.options.RebuildInterval)

	// A pass forced by the rebuild interval considers every agent, so
	// pools dropped by the breaker are found again once they answer.
	filterSeen := !rebuildDue
	gathered := make(map[string]struct{})
	for ctx.Err() == nil {
		if added := b.converge(ctx, self, filterSeen, gathered); added == 0 {
			break
		}
		filterSeen = false
	}
	// An interrupted pass may not have heard from every pool.
	if ctx.Err() == nil {
		maps.DeleteFunc(b.seen, func(id string, _ struct{}) bool {
			_, ok := gathered[id]
			return !ok
		})
	}
	return pushes
}

// push registers self with every known pool in the background. A pool
// whose breaker trips is queued for removal.
func (b *Builder) push(ctx context.Context, self agent.Descriptor, pushes *sync.WaitGroup) {
	for _, pool := range b.knownPools() {
		pushes.Add(1)
		go func() {
			defer pushes.Done()
			callCtx, cancel := context.WithTimeout(ctx, b.options.CallTimeout)
			err := pool.handle.RegisterAgent(callCtx, self)
			cancel()
			if err == nil {
				return
			}
			if ctx.Err() == nil {
				b.logger.Debug("push to pool failed", "endpoint", pool.endpoint, "error", err)
			}
			if pool.handle.Bad() {
				b.queueRemoval(pool.endpoint)
			}
		}()
	}
}

// joinSeeds tries every seed in the background while none of them is
// in the table.
func (b *Builder) joinSeeds(ctx context.Context, self agent.Descriptor, pushes *sync.WaitGroup) {
	if slices.ContainsFunc(b.seeds, b.known) {
		return
	}
	for _, seed := range b.seeds {
		pushes.Add(1)
		go func() {
			defer pushes.Done()
			handle := proxy.NewPoolHandle([]string{seed}, b.options.Proxy)
			callCtx, cancel := context.WithTimeout(ctx, b.options.CallTimeout)
			defer cancel()
			if err := handle.RegisterAgent(callCtx, self); err != nil {
				if ctx.Err() == nil {
					b.logger.Debug("seed unreachable", "endpoint", seed, "error", err)
				}
				return
			}
			b.addPool(seed, handle)
		}()
	}
}

// converge runs one convergence pass and returns the number of pools
// added. With filterSeen, agents seen by an earlier pass are skipped.
// Every pool agent considered is recorded in gathered.
func (b *Builder) converge(ctx context.Context, self agent.Descriptor, filterSeen bool, gathered map[string]struct{}) int {
	candidates := b.gather(ctx)

	added := 0
	for _, candidate := range candidates {
		if candidate.ID == self.ID || !candidate.IsPool() {
			continue
		}
		gathered[candidate.ID] = struct{}{}
		_, seen := b.seen[candidate.ID]
		b.seen[candidate.ID] = struct{}{}
		if filterSeen && seen {
			continue
		}

		endpoints := candidate.PoolEndpoints
		if slices.ContainsFunc(endpoints, b.known) {
			if b.options.SkipOverlappingPools {
				continue
			}
			endpoints = slices.DeleteFunc(slices.Clone(endpoints), b.known)
		}

		for _, endpoint := range endpoints {
			if ctx.Err() != nil {
				return added
			}
			handle := proxy.NewPoolHandle([]string{endpoint}, b.options.Proxy)
			callCtx, cancel := context.WithTimeout(ctx, b.options.CallTimeout)
			err := handle.RegisterAgent(callCtx, self)
			cancel()
			if err != nil {
				b.logger.Debug("registering with discovered pool failed",
					"agent_id", candidate.ID,
					"endpoint", endpoint,
					"error", err,
				)
				continue
			}
			if b.addPool(endpoint, handle) {
				added++
			}
			break
		}
	}
	return added
}

// gather queries GetAgents from every known pool and the local
// registry concurrently and returns the union, first occurrence of
// each ID winning.
func (b *Builder) gather(ctx context.Context) []agent.Descriptor {
	pools := b.knownPools()
	results := make([][]agent.Descriptor, len(pools)+1)

	var queries sync.WaitGroup
	for i, pool := range pools {
		queries.Add(1)
		go func() {
			defer queries.Done()
			callCtx, cancel := context.WithTimeout(ctx, b.options.CallTimeout)
			defer cancel()
			agents, err := pool.handle.GetAgents(callCtx)
			if err != nil {
				if ctx.Err() == nil {
					b.logger.Debug("querying pool failed", "endpoint", pool.endpoint, "error", err)
				}
				if pool.handle.Bad() {
					b.queueRemoval(pool.endpoint)
				}
				return
			}
			results[i] = agents
		}()
	}

	if local, ok := b.self.CoordinatorHandle().(proxy.Pool); ok {
		agents, err := local.GetAgents(ctx)
		if err != nil {
			b.logger.Warn("querying local registry failed", "error", err)
		}
		results[len(pools)] = agents
	}
	queries.Wait()

	seen := make(map[string]struct{})
	var union []agent.Descriptor
	for _, agents := range results {
		for _, descriptor := range agents {
			if _, dup := seen[descriptor.ID]; dup {
				continue
			}
			seen[descriptor.ID] = struct{}{}
			union = append(union, descriptor)
		}
	}
	return union
}
