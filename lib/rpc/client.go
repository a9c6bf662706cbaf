// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package rpc

import (
	"context"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/bureau-foundation/buildmesh/lib/agent"
	"github.com/bureau-foundation/buildmesh/lib/artifactstream"
	"github.com/bureau-foundation/buildmesh/lib/codec"
	"github.com/bureau-foundation/buildmesh/lib/compiler"
	"github.com/bureau-foundation/buildmesh/transport"
)

// DefaultDialTimeout covers only the connect phase.
const DefaultDialTimeout = 5 * time.Second

// DefaultCallTimeout bounds a coordination call (everything except
// compile) when the context has no earlier deadline.
const DefaultCallTimeout = 45 * time.Second

// DefaultCompileTimeout bounds a compile call when the context has no
// earlier deadline.
const DefaultCompileTimeout = 10 * time.Minute

// maxResponseSize bounds the response envelope. Agent lists are the
// largest envelopes.
const maxResponseSize = 16 * 1024 * 1024

// maxBodySize bounds a compile payload.
const maxBodySize = artifactstream.MaxPayloadSize

// Client calls one peer node at a fixed address. It holds no
// connection between calls and is safe for concurrent use.
type Client struct {
	address        string
	dialer         transport.Dialer
	callTimeout    time.Duration
	compileTimeout time.Duration
}

// NewClient creates a client for the node at address. A nil dialer
// means TCP with DefaultDialTimeout.
func NewClient(address string, dialer transport.Dialer) *Client {
	if dialer == nil {
		dialer = &transport.TCPDialer{Timeout: DefaultDialTimeout}
	}
	return &Client{
		address:        address,
		dialer:         dialer,
		callTimeout:    DefaultCallTimeout,
		compileTimeout: DefaultCompileTimeout,
	}
}

// Address returns the peer address this client calls.
func (c *Client) Address() string {
	return c.address
}

// Call sends action with fields and decodes the reply data into result
// (if both are non-nil). A reply with ok=false returns *RemoteError;
// connection and encoding failures are returned as plain wrapped
// errors.
func (c *Client) Call(ctx context.Context, action string, fields map[string]any, result any) error {
	_, err := c.call(ctx, action, fields, result, false, c.callTimeout)
	return err
}

func (c *Client) call(ctx context.Context, action string, fields map[string]any, result any, streamed bool, timeout time.Duration) ([]byte, error) {
	request := make(map[string]any, len(fields)+1)
	for key, value := range fields {
		request[key] = value
	}
	request["action"] = action

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, err := c.dialer.DialContext(ctx, c.address)
	if err != nil {
		return nil, fmt.Errorf("calling %q on %s: connecting: %w", action, c.address, err)
	}
	defer conn.Close()

	// Closing the connection is the only way to interrupt a blocked
	// read or write.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	if err := codec.NewEncoder(conn).Encode(request); err != nil {
		return nil, c.wrap(ctx, action, "writing request", err)
	}
	// Half-close so the server sees a clean end of request.
	if tcpConn, ok := conn.(*net.TCPConn); ok {
		tcpConn.CloseWrite()
	}

	limit := int64(maxResponseSize)
	if streamed {
		limit += maxBodySize
	}
	decoder := codec.NewDecoder(io.LimitReader(conn, limit))

	var response Response
	if err := decoder.Decode(&response); err != nil {
		return nil, c.wrap(ctx, action, "reading response", err)
	}
	if !response.OK {
		return nil, &RemoteError{Action: action, Address: c.address, Message: response.Error}
	}
	if result != nil && len(response.Data) > 0 {
		if err := codec.Unmarshal(response.Data, result); err != nil {
			return nil, fmt.Errorf("decoding %q response from %s: %w", action, c.address, err)
		}
	}

	if !streamed {
		return nil, nil
	}
	var body []byte
	if err := decoder.Decode(&body); err != nil {
		return nil, c.wrap(ctx, action, "reading response body", err)
	}
	return body, nil
}

// wrap prefers the context's error when the connection was closed
// because the context ended.
func (c *Client) wrap(ctx context.Context, action, step string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("calling %q on %s: %s: %w", action, c.address, step, ctxErr)
	}
	return fmt.Errorf("calling %q on %s: %s: %w", action, c.address, step, err)
}

// RegisterAgent upserts descriptor into the peer's registry.
func (c *Client) RegisterAgent(ctx context.Context, descriptor agent.Descriptor) error {
	return c.Call(ctx, ActionRegisterAgent, map[string]any{"descriptor": descriptor}, nil)
}

// GetAgents returns the peer's current agent snapshot.
func (c *Client) GetAgents(ctx context.Context) ([]agent.Descriptor, error) {
	var agents []agent.Descriptor
	if err := c.Call(ctx, ActionGetAgents, nil, &agents); err != nil {
		return nil, err
	}
	for i := range agents {
		agents[i] = agents[i].Normalize()
	}
	return agents, nil
}

// GetDescription returns the peer's own descriptor.
func (c *Client) GetDescription(ctx context.Context) (agent.Descriptor, error) {
	var descriptor agent.Descriptor
	if err := c.Call(ctx, ActionGetDescription, nil, &descriptor); err != nil {
		return agent.Descriptor{}, err
	}
	return descriptor.Normalize(), nil
}

// IsReady asks the peer's compile backend whether it can take a job.
func (c *Client) IsReady(ctx context.Context) (bool, error) {
	var response ReadyResponse
	if err := c.Call(ctx, ActionIsReady, nil, &response); err != nil {
		return false, err
	}
	return response.Ready, nil
}

// CompileOutput is a finished remote job with its verified payload.
type CompileOutput struct {
	Status   compiler.Status
	ExitCode int
	Cookies  []artifactstream.Cookie
	Payload  []byte
}

// Unpack writes each artifact to the destination for its type.
func (o *CompileOutput) Unpack(destinations map[artifactstream.Type]io.Writer) error {
	return artifactstream.Unpack(newByteReader(o.Payload), o.Cookies, destinations)
}

// Compile runs job on the peer's backend.
func (c *Client) Compile(ctx context.Context, job compiler.Job) (*CompileOutput, error) {
	var response CompileResponse
	body, err := c.call(ctx, ActionCompile, map[string]any{"job": job}, &response, true, c.compileTimeout)
	if err != nil {
		return nil, err
	}
	payload, err := artifactstream.Open(response.Envelope, body)
	if err != nil {
		return nil, fmt.Errorf("compile %s on %s: %w", job.ID, c.address, err)
	}
	return &CompileOutput{
		Status:   response.Status,
		ExitCode: response.ExitCode,
		Cookies:  response.Envelope.Cookies,
		Payload:  payload,
	}, nil
}
