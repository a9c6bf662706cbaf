// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/x/ansi"

	"github.com/bureau-foundation/buildmesh/lib/agent"
	"github.com/bureau-foundation/buildmesh/lib/config"
	"github.com/bureau-foundation/buildmesh/lib/node"
	"github.com/bureau-foundation/buildmesh/lib/testutil"
)

// startNode runs a node with no compiler backend until the test ends.
func startNode(t *testing.T) *node.Node {
	t.Helper()
	cfg := config.Default()
	cfg.Node.Name = "cli-test"
	cfg.Node.Cores = 4
	cfg.ListenAddress = "127.0.0.1:0"
	cfg.Gossip.Period = config.Duration(50 * time.Millisecond)
	meshNode, err := node.New(cfg, node.Options{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("node.New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- meshNode.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		testutil.RequireReceive(t, done, 10*time.Second, "waiting for node to stop")
	})
	return meshNode
}

func TestDescribeJSON(t *testing.T) {
	meshNode := startNode(t)
	var stdout bytes.Buffer
	if err := run(context.Background(), []string{"describe", "--node", meshNode.Address(), "--json"}, &stdout); err != nil {
		t.Fatalf("describe: %v", err)
	}
	var descriptor agent.Descriptor
	if err := json.Unmarshal(stdout.Bytes(), &descriptor); err != nil {
		t.Fatalf("decoding output %q: %v", stdout.String(), err)
	}
	if descriptor.ID != meshNode.Descriptor().ID || descriptor.Cores != 4 {
		t.Errorf("describe = %+v, want the node's descriptor", descriptor)
	}
}

func TestReadyReportsUnavailableBackend(t *testing.T) {
	meshNode := startNode(t)
	var stdout bytes.Buffer
	err := run(context.Background(), []string{"ready", "--node", meshNode.Address()}, &stdout)
	if !errors.Is(err, errNotReady) {
		t.Fatalf("ready error = %v, want errNotReady", err)
	}
	if strings.TrimSpace(stdout.String()) != "false" {
		t.Errorf("ready output = %q, want false", stdout.String())
	}
}

func TestAgentsTable(t *testing.T) {
	meshNode := startNode(t)
	var stdout bytes.Buffer
	if err := run(context.Background(), []string{"agents", "--node", meshNode.Address()}, &stdout); err != nil {
		t.Fatalf("agents: %v", err)
	}
	if !strings.Contains(ansi.Strip(stdout.String()), "CORES") {
		t.Errorf("agents output missing header:\n%s", stdout.String())
	}
}

func TestRenderAgents(t *testing.T) {
	output := ansi.Strip(renderAgents([]agent.Descriptor{
		agent.New("id-1", "alpha", 8, 25, []string{"alpha:7130"}, nil),
		agent.New("id-2", "beta", 2, agent.UnknownCPU, nil, []string{"beta:7131"}),
	}))
	for _, want := range []string{"alpha", "25%", "beta", "?", "beta:7131"} {
		if !strings.Contains(output, want) {
			t.Errorf("rendered table missing %q:\n%s", want, output)
		}
	}
}

func TestUnknownCommand(t *testing.T) {
	err := run(context.Background(), []string{"frobnicate"}, io.Discard)
	if err == nil || !strings.Contains(err.Error(), "unknown command") {
		t.Errorf("error = %v, want unknown command", err)
	}
}

func TestUnreachableNode(t *testing.T) {
	err := run(context.Background(), []string{"describe", "--node", "127.0.0.1:1", "--timeout", "2s"}, io.Discard)
	if err == nil {
		t.Fatal("describe against a closed port succeeded")
	}
}
