// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package rpc

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/bureau-foundation/buildmesh/lib/agent"
	"github.com/bureau-foundation/buildmesh/lib/artifactstream"
	"github.com/bureau-foundation/buildmesh/lib/compiler"
	"github.com/bureau-foundation/buildmesh/lib/testutil"
	"github.com/bureau-foundation/buildmesh/transport"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startServer serves server on a loopback port until the test ends and
// returns a client for it.
func startServer(t *testing.T, server *Server) *Client {
	t.Helper()
	listener, err := transport.NewTCPListener("127.0.0.1:0")
	if err != nil {
		t.Fatalf("NewTCPListener: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- server.Serve(ctx, listener) }()
	t.Cleanup(func() {
		cancel()
		testutil.RequireReceive(t, done, 5*time.Second, "waiting for Serve to return")
	})
	return NewClient(listener.Address(), nil)
}

func TestRegisterAndListAgents(t *testing.T) {
	server := NewServer(discardLogger())
	var registered []agent.Descriptor
	received := make(chan struct{}, 1)
	server.Handle(ActionRegisterAgent, func(ctx context.Context, raw []byte) (any, error) {
		descriptor, err := DecodeRegisterAgent(raw)
		if err != nil {
			return nil, err
		}
		registered = append(registered, descriptor)
		received <- struct{}{}
		return nil, nil
	})
	server.Handle(ActionGetAgents, func(ctx context.Context, raw []byte) (any, error) {
		return registered, nil
	})
	client := startServer(t, server)

	descriptor := agent.New("a-1", "alpha", 8, 25, []string{"10.0.0.1:7000"}, []string{"10.0.0.1:7001"})
	if err := client.RegisterAgent(context.Background(), descriptor); err != nil {
		t.Fatalf("RegisterAgent: %v", err)
	}
	testutil.RequireReceive(t, received, 5*time.Second, "waiting for register-agent handler")

	agents, err := client.GetAgents(context.Background())
	if err != nil {
		t.Fatalf("GetAgents: %v", err)
	}
	if len(agents) != 1 {
		t.Fatalf("GetAgents returned %d agents, want 1", len(agents))
	}
	if !agents[0].Equal(descriptor) {
		t.Errorf("GetAgents = %v, want %v", agents[0], descriptor)
	}
}

func TestGetDescriptionAndReady(t *testing.T) {
	self := agent.New("self", "self-node", 4, agent.UnknownCPU, []string{"127.0.0.1:1"}, nil)

	server := NewServer(discardLogger())
	server.Handle(ActionGetDescription, func(ctx context.Context, raw []byte) (any, error) {
		return self, nil
	})
	server.Handle(ActionIsReady, func(ctx context.Context, raw []byte) (any, error) {
		return ReadyResponse{Ready: true}, nil
	})
	client := startServer(t, server)

	got, err := client.GetDescription(context.Background())
	if err != nil {
		t.Fatalf("GetDescription: %v", err)
	}
	if !got.Equal(self) {
		t.Errorf("GetDescription = %v, want %v", got, self)
	}
	if got.CPUUsagePercent != agent.UnknownCPU {
		t.Errorf("CPUUsagePercent = %d, want %d", got.CPUUsagePercent, agent.UnknownCPU)
	}

	ready, err := client.IsReady(context.Background())
	if err != nil {
		t.Fatalf("IsReady: %v", err)
	}
	if !ready {
		t.Error("IsReady = false, want true")
	}
}

func TestCompileStreamsArtifacts(t *testing.T) {
	for _, compression := range []artifactstream.Compression{
		artifactstream.CompressionNone,
		artifactstream.CompressionLZ4,
		artifactstream.CompressionZstd,
	} {
		t.Run(compression.String(), func(t *testing.T) {
			object := bytes.Repeat([]byte("object code "), 200)

			server := NewServer(discardLogger())
			server.Handle(ActionCompile, func(ctx context.Context, raw []byte) (any, error) {
				job, err := DecodeCompile(raw)
				if err != nil {
					return nil, err
				}
				if job.SourceName != "main.c" || string(job.Source) != "int main(void){return 0;}" {
					return nil, errors.New("job did not survive the wire")
				}
				return EncodeCompileResult(compiler.Result{
					Status: compiler.StatusSucceeded,
					Artifacts: []artifactstream.Artifact{
						{Type: artifactstream.Stdout, Source: strings.NewReader("hello\n")},
						{Type: artifactstream.Stderr},
						{Type: artifactstream.Obj, Name: "main.o", Source: bytes.NewReader(object)},
					},
				}, compression)
			})
			client := startServer(t, server)

			output, err := client.Compile(context.Background(), compiler.Job{
				ID:         "job-1",
				SourceName: "main.c",
				Source:     []byte("int main(void){return 0;}"),
			})
			if err != nil {
				t.Fatalf("Compile: %v", err)
			}
			if output.Status != compiler.StatusSucceeded {
				t.Errorf("Status = %v, want succeeded", output.Status)
			}

			var stdout, stderr, obj bytes.Buffer
			err = output.Unpack(map[artifactstream.Type]io.Writer{
				artifactstream.Stdout: &stdout,
				artifactstream.Stderr: &stderr,
				artifactstream.Obj:    &obj,
			})
			if err != nil {
				t.Fatalf("Unpack: %v", err)
			}
			if stdout.String() != "hello\n" {
				t.Errorf("stdout = %q, want %q", stdout.String(), "hello\n")
			}
			if stderr.Len() != 0 {
				t.Errorf("stderr = %q, want empty", stderr.String())
			}
			if !bytes.Equal(obj.Bytes(), object) {
				t.Errorf("object = %d bytes, want %d", obj.Len(), len(object))
			}
		})
	}
}

func TestRemoteErrors(t *testing.T) {
	server := NewServer(discardLogger())
	server.Handle(ActionIsReady, func(ctx context.Context, raw []byte) (any, error) {
		return nil, errors.New("backend on fire")
	})
	client := startServer(t, server)

	_, err := client.IsReady(context.Background())
	var remote *RemoteError
	if !errors.As(err, &remote) {
		t.Fatalf("IsReady error = %v, want *RemoteError", err)
	}
	if remote.Message != "backend on fire" {
		t.Errorf("Message = %q, want %q", remote.Message, "backend on fire")
	}

	_, err = client.GetAgents(context.Background())
	if !errors.As(err, &remote) {
		t.Fatalf("GetAgents error = %v, want *RemoteError", err)
	}
	if !strings.Contains(remote.Message, "unknown action") {
		t.Errorf("Message = %q, want unknown action", remote.Message)
	}
}

func TestRegisterAgentMissingDescriptor(t *testing.T) {
	server := NewServer(discardLogger())
	server.Handle(ActionRegisterAgent, func(ctx context.Context, raw []byte) (any, error) {
		_, err := DecodeRegisterAgent(raw)
		return nil, err
	})
	client := startServer(t, server)

	err := client.Call(context.Background(), ActionRegisterAgent, nil, nil)
	var remote *RemoteError
	if !errors.As(err, &remote) {
		t.Fatalf("error = %v, want *RemoteError", err)
	}
}

func TestCallHonorsContext(t *testing.T) {
	release := make(chan struct{})
	server := NewServer(discardLogger())
	server.Handle(ActionIsReady, func(ctx context.Context, raw []byte) (any, error) {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return ReadyResponse{Ready: true}, nil
	})
	client := startServer(t, server)
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err := client.IsReady(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("IsReady error = %v, want context.DeadlineExceeded", err)
	}
}

func TestDialFailure(t *testing.T) {
	listener, err := transport.NewTCPListener("127.0.0.1:0")
	if err != nil {
		t.Fatalf("NewTCPListener: %v", err)
	}
	address := listener.Address()
	listener.Close()

	client := NewClient(address, nil)
	_, err = client.IsReady(context.Background())
	if err == nil {
		t.Fatal("IsReady against closed port succeeded")
	}
	var remote *RemoteError
	if errors.As(err, &remote) {
		t.Errorf("dial failure reported as RemoteError: %v", err)
	}
}
