// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// buildmesh queries a running buildmesh node.
//
//	buildmesh agents   [--node host:port] [--json]
//	buildmesh describe [--node host:port] [--json]
//	buildmesh ready    [--node host:port]
//
// agents prints the node's registry, describe prints the node's own
// descriptor, and ready exits 0 when the node's compiler backend
// accepts work and 2 when it does not.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/muesli/termenv"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/bureau-foundation/buildmesh/lib/agent"
	"github.com/bureau-foundation/buildmesh/lib/process"
	"github.com/bureau-foundation/buildmesh/lib/rpc"
	"github.com/bureau-foundation/buildmesh/lib/version"
)

const defaultNode = "127.0.0.1:7130"

// errNotReady is returned by the ready command so main can exit with
// a distinct status.
var errNotReady = errors.New("compiler not ready")

func main() {
	err := run(context.Background(), os.Args[1:], os.Stdout)
	if errors.Is(err, errNotReady) {
		process.Exit(2, nil)
	}
	if err != nil {
		process.Fatal(err)
	}
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	if len(args) == 0 {
		printHelp(stdout)
		return nil
	}
	command, rest := args[0], args[1:]
	switch command {
	case "-h", "--help", "help":
		printHelp(stdout)
		return nil
	case "--version", "version":
		fmt.Fprintf(stdout, "buildmesh %s\n", version.Info())
		return nil
	}

	var (
		nodeAddress string
		jsonOutput  bool
		timeout     time.Duration
	)
	flagSet := pflag.NewFlagSet("buildmesh "+command, pflag.ContinueOnError)
	flagSet.StringVar(&nodeAddress, "node", defaultNode, "pool endpoint of the node to query")
	flagSet.BoolVar(&jsonOutput, "json", false, "print JSON instead of a table")
	flagSet.DurationVar(&timeout, "timeout", 10*time.Second, "overall request timeout")
	if err := flagSet.Parse(rest); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if flagSet.NArg() > 0 {
		return fmt.Errorf("unexpected argument: %s", flagSet.Arg(0))
	}

	if !term.IsTerminal(int(os.Stdout.Fd())) {
		lipgloss.SetColorProfile(termenv.Ascii)
	}
	logger := newCommandLogger().With("command", command, "node", nodeAddress)
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	client := rpc.NewClient(nodeAddress, nil)

	switch command {
	case "agents":
		agents, err := client.GetAgents(ctx)
		if err != nil {
			return fmt.Errorf("listing agents: %w", err)
		}
		logger.Debug("listed agents", "count", len(agents))
		slices.SortFunc(agents, func(a, b agent.Descriptor) int {
			return strings.Compare(a.ID, b.ID)
		})
		if jsonOutput {
			return writeJSON(stdout, agents)
		}
		fmt.Fprintln(stdout, renderAgents(agents))
		return nil

	case "describe":
		descriptor, err := client.GetDescription(ctx)
		if err != nil {
			return fmt.Errorf("describing node: %w", err)
		}
		if jsonOutput {
			return writeJSON(stdout, descriptor)
		}
		fmt.Fprintln(stdout, renderAgents([]agent.Descriptor{descriptor}))
		return nil

	case "ready":
		ready, err := client.IsReady(ctx)
		if err != nil {
			return fmt.Errorf("probing readiness: %w", err)
		}
		if jsonOutput {
			if err := writeJSON(stdout, map[string]bool{"ready": ready}); err != nil {
				return err
			}
		} else {
			fmt.Fprintln(stdout, strconv.FormatBool(ready))
		}
		if !ready {
			return errNotReady
		}
		return nil

	default:
		return fmt.Errorf("unknown command %q (run \"buildmesh help\")", command)
	}
}

// newCommandLogger writes text logs to a terminal and JSON logs
// everywhere else.
func newCommandLogger() *slog.Logger {
	options := &slog.HandlerOptions{Level: slog.LevelInfo}
	if term.IsTerminal(int(os.Stderr.Fd())) {
		return slog.New(slog.NewTextHandler(os.Stderr, options))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, options))
}

func writeJSON(w io.Writer, value any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}

var headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
var cellStyle = lipgloss.NewStyle().Padding(0, 1)

func renderAgents(agents []agent.Descriptor) string {
	rows := make([][]string, 0, len(agents))
	for _, descriptor := range agents {
		cpu := strconv.Itoa(descriptor.CPUUsagePercent) + "%"
		if descriptor.CPUUsagePercent == agent.UnknownCPU {
			cpu = "?"
		}
		rows = append(rows, []string{
			descriptor.ID,
			descriptor.Name,
			strconv.Itoa(descriptor.Cores),
			cpu,
			strings.Join(descriptor.PoolEndpoints, ","),
			strings.Join(descriptor.CompilerEndpoints, ","),
		})
	}
	return table.New().
		Border(lipgloss.NormalBorder()).
		Headers("ID", "NAME", "CORES", "CPU", "POOL", "COMPILER").
		Rows(rows...).
		StyleFunc(func(row, column int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		Render()
}

func printHelp(w io.Writer) {
	fmt.Fprint(w, `buildmesh queries a running buildmesh node.

Usage:
  buildmesh agents   [--node host:port] [--json]   list the node's registry
  buildmesh describe [--node host:port] [--json]   show the node's own descriptor
  buildmesh ready    [--node host:port] [--json]   exit 0 if the compiler is ready, 2 if not
  buildmesh version                                print version information

Flags:
  --node     pool endpoint of the node to query (default 127.0.0.1:7130)
  --json     print JSON instead of a table
  --timeout  overall request timeout (default 10s)
`)
}
