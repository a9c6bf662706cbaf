// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package node

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/bureau-foundation/buildmesh/lib/agent"
	"github.com/bureau-foundation/buildmesh/lib/artifactstream"
	"github.com/bureau-foundation/buildmesh/lib/clock"
	"github.com/bureau-foundation/buildmesh/lib/compiler"
	"github.com/bureau-foundation/buildmesh/lib/config"
	"github.com/bureau-foundation/buildmesh/lib/dispatch"
	"github.com/bureau-foundation/buildmesh/lib/hwinfo"
	"github.com/bureau-foundation/buildmesh/lib/proxy"
	"github.com/bureau-foundation/buildmesh/lib/registry"
	"github.com/bureau-foundation/buildmesh/lib/rpc"
	"github.com/bureau-foundation/buildmesh/lib/topology"
	"github.com/bureau-foundation/buildmesh/lib/version"
	"github.com/bureau-foundation/buildmesh/transport"
)

// CPUSampler reports current CPU utilization as a percentage, or
// agent.UnknownCPU.
type CPUSampler interface {
	Sample() int
}

// Options supplies the parts of a node that are not configuration.
type Options struct {
	// Backend compiles jobs. Nil means compiler.Unavailable.
	Backend compiler.Backend

	// Sampler refreshes the advertised CPU usage every gossip
	// iteration. Nil means hwinfo.NewSampler.
	Sampler CPUSampler

	// Dialer connects to peers. Nil means TCP with the configured
	// dial timeout.
	Dialer transport.Dialer

	Clock  clock.Clock
	Logger *slog.Logger
}

// Node is one running buildmesh node.
type Node struct {
	registry    *registry.Registry
	local       *proxy.Local
	backend     *compiler.Limiter
	builder     *topology.Builder
	dispatcher  *dispatch.Dispatcher
	server      *rpc.Server
	listener    transport.Listener
	compression artifactstream.Compression
	logger      *slog.Logger
}

// New binds the listen address and assembles the node. The node does
// nothing until Run. cfg must already be validated.
func New(cfg *config.Config, options Options) (*Node, error) {
	if options.Backend == nil {
		options.Backend = compiler.Unavailable{}
	}
	if options.Sampler == nil {
		options.Sampler = hwinfo.NewSampler()
	}
	if options.Clock == nil {
		options.Clock = clock.Real()
	}
	if options.Logger == nil {
		options.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if options.Dialer == nil {
		options.Dialer = &transport.TCPDialer{Timeout: cfg.Proxy.DialTimeout.Std()}
	}

	compression, err := artifactstream.ParseCompression(cfg.Artifacts.Compression)
	if err != nil {
		return nil, err
	}

	listener, err := transport.NewTCPListener(cfg.ListenAddress)
	if err != nil {
		return nil, err
	}

	poolEndpoints := cfg.AdvertisePoolEndpoints
	if len(poolEndpoints) == 0 {
		advertised, err := advertiseAddress(listener.Address())
		if err != nil {
			listener.Close()
			return nil, err
		}
		poolEndpoints = []string{advertised}
	}
	compilerEndpoints := cfg.AdvertiseCompilerEndpoints
	if len(compilerEndpoints) == 0 {
		compilerEndpoints = poolEndpoints
	}

	cores := cfg.Node.Cores
	if cores == 0 {
		cores = hwinfo.Cores()
	}
	name := cfg.Node.Name
	if name == "" {
		name, _ = os.Hostname()
	}
	slots := cfg.Compiler.Slots
	if slots == 0 {
		slots = cores
	}

	logger := options.Logger
	descriptor := agent.New(cfg.Node.ID, name, cores, agent.UnknownCPU, poolEndpoints, compilerEndpoints)
	logger = logger.With("agent_id", descriptor.ID)

	agents := registry.New(registry.Options{
		Clock:        options.Clock,
		Logger:       logger,
		LockTimeout:  cfg.Registry.LockTimeout.Std(),
		SilenceLimit: cfg.Gossip.SilenceLimit.Std(),
	})
	backend := compiler.NewLimiter(options.Backend, slots)
	local := proxy.NewLocal(descriptor, agents, backend)

	proxyOptions := proxy.Options{
		Dialer:            options.Dialer,
		Clock:             options.Clock,
		Logger:            logger,
		ReadinessCooldown: cfg.Proxy.ReadinessCooldown.Std(),
		BreakerThreshold:  cfg.Gossip.BreakerThreshold,
	}

	sampler := options.Sampler
	builder, err := topology.New(topology.Options{
		Self:                 local,
		Registry:             agents,
		Seeds:                cfg.Seeds,
		Period:               cfg.Gossip.Period.Std(),
		RebuildInterval:      cfg.Gossip.RebuildInterval.Std(),
		CallTimeout:          cfg.Gossip.CallTimeout.Std(),
		SkipOverlappingPools: cfg.Gossip.SkipOverlappingPools,
		BeforeIteration: func(context.Context) {
			local.SetDescriptor(local.Descriptor().WithCPUUsage(sampler.Sample()))
		},
		Proxy:  proxyOptions,
		Clock:  options.Clock,
		Logger: logger,
	})
	if err != nil {
		listener.Close()
		return nil, err
	}

	dispatcher, err := dispatch.New(dispatch.Options{
		Registry: agents,
		Self:     local,
		Proxy:    proxyOptions,
		Logger:   logger,
	})
	if err != nil {
		listener.Close()
		return nil, err
	}

	node := &Node{
		registry:    agents,
		local:       local,
		backend:     backend,
		builder:     builder,
		dispatcher:  dispatcher,
		server:      rpc.NewServer(logger),
		listener:    listener,
		compression: compression,
		logger:      logger,
	}
	node.registerHandlers()
	return node, nil
}

// advertiseAddress turns a bound listen address into one peers can
// dial: an unspecified host (0.0.0.0, ::) becomes the hostname.
func advertiseAddress(bound string) (string, error) {
	host, port, err := net.SplitHostPort(bound)
	if err != nil {
		return "", fmt.Errorf("parsing listen address %q: %w", bound, err)
	}
	if ip := net.ParseIP(host); ip != nil && ip.IsUnspecified() {
		hostname, err := os.Hostname()
		if err != nil {
			return "", fmt.Errorf("listening on all interfaces and no hostname to advertise: %w", err)
		}
		host = hostname
	}
	return net.JoinHostPort(host, port), nil
}

// Run serves peers and gossips until ctx is cancelled. It returns nil
// on a clean shutdown.
func (n *Node) Run(ctx context.Context) error {
	descriptor := n.local.Descriptor()
	n.logger.Info("node starting",
		"name", descriptor.Name,
		"address", n.listener.Address(),
		"cores", descriptor.Cores,
		"pool_endpoints", descriptor.PoolEndpoints,
		"version", version.Short(),
	)

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return n.server.Serve(ctx, n.listener)
	})
	group.Go(func() error {
		return n.builder.Run(ctx)
	})
	err := group.Wait()
	n.logger.Info("node stopped")
	return err
}

// Close releases the listener of a node that was never run.
func (n *Node) Close() error {
	return n.listener.Close()
}

// Address returns the bound listen address.
func (n *Node) Address() string {
	return n.listener.Address()
}

// Descriptor returns the node's current descriptor.
func (n *Node) Descriptor() agent.Descriptor {
	return n.local.Descriptor()
}

// Registry returns the node's agent registry.
func (n *Node) Registry() *registry.Registry {
	return n.registry
}

// Dispatcher returns the dispatcher for jobs submitted on this node.
func (n *Node) Dispatcher() *dispatch.Dispatcher {
	return n.dispatcher
}

// KnownPools returns the pool endpoints the node is gossiping with.
func (n *Node) KnownPools() []string {
	return n.builder.KnownPools()
}
