// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// buildmesh-node runs one buildmesh node: it serves the node RPC
// actions, gossips with the peers it is seeded with, and keeps the
// agent registry that compile dispatch draws from.
//
// Configuration comes from --config (or BUILDMESH_CONFIG); flags
// override individual values:
//
//	buildmesh-node --config /etc/buildmesh/node.yaml --seed build-01:7130
//
// Logs are JSON on stderr.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/buildmesh/lib/config"
	"github.com/bureau-foundation/buildmesh/lib/node"
	"github.com/bureau-foundation/buildmesh/lib/process"
	"github.com/bureau-foundation/buildmesh/lib/version"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var (
		configPath  string
		showVersion bool
	)
	overrides := config.Default()

	flagSet := pflag.NewFlagSet("buildmesh-node", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to the node config file (default: $BUILDMESH_CONFIG, else built-in defaults)")
	flagSet.StringVar(&overrides.Node.ID, "id", "", "stable node ID (default: random per start)")
	flagSet.StringVar(&overrides.Node.Name, "name", "", "human-readable node name (default: hostname)")
	flagSet.IntVar(&overrides.Node.Cores, "cores", 0, "cores to advertise (default: detected)")
	flagSet.StringVar(&overrides.ListenAddress, "listen", overrides.ListenAddress, "address to serve node RPC on")
	flagSet.StringSliceVar(&overrides.AdvertisePoolEndpoints, "advertise", nil, "endpoints peers should use to reach this node (default: the listen address)")
	flagSet.StringSliceVar(&overrides.Seeds, "seed", nil, "pool endpoint of an existing node to join through (repeatable)")
	flagSet.StringVar(&overrides.Artifacts.Compression, "compression", overrides.Artifacts.Compression, "compile payload compression: none, lz4, zstd")
	flagSet.StringVar(&overrides.LogLevel, "log-level", overrides.LogLevel, "log level: debug, info, warn, error")
	flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if showVersion {
		fmt.Printf("buildmesh-node %s\n", version.Info())
		return nil
	}
	if flagSet.NArg() > 0 {
		return fmt.Errorf("unexpected argument: %s", flagSet.Arg(0))
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	applyOverrides(cfg, overrides, flagSet)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	level, _ := cfg.Level()
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	meshNode, err := node.New(cfg, node.Options{Logger: logger})
	if err != nil {
		return fmt.Errorf("starting node: %w", err)
	}
	return meshNode.Run(ctx)
}

// loadConfig reads path, or BUILDMESH_CONFIG when path is empty, or
// falls back to defaults when neither is set.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	if os.Getenv("BUILDMESH_CONFIG") != "" {
		return config.Load()
	}
	return config.Default(), nil
}

// applyOverrides copies every flag the user set from overrides into
// cfg.
func applyOverrides(cfg, overrides *config.Config, flagSet *pflag.FlagSet) {
	flagSet.Visit(func(flag *pflag.Flag) {
		switch flag.Name {
		case "id":
			cfg.Node.ID = overrides.Node.ID
		case "name":
			cfg.Node.Name = overrides.Node.Name
		case "cores":
			cfg.Node.Cores = overrides.Node.Cores
		case "listen":
			cfg.ListenAddress = overrides.ListenAddress
		case "advertise":
			cfg.AdvertisePoolEndpoints = overrides.AdvertisePoolEndpoints
		case "seed":
			cfg.Seeds = overrides.Seeds
		case "compression":
			cfg.Artifacts.Compression = overrides.Artifacts.Compression
		case "log-level":
			cfg.LogLevel = overrides.LogLevel
		}
	})
}
