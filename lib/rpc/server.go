// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package rpc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/bureau-foundation/buildmesh/lib/codec"
	"github.com/bureau-foundation/buildmesh/lib/netutil"
	"github.com/bureau-foundation/buildmesh/transport"
)

// ActionFunc handles one action. raw is the full CBOR request,
// including the "action" field; the handler decodes its own fields.
//
// Return nil for a bare {ok: true}, a value to place in Response.Data,
// a *Streamed to follow the envelope with a payload, or an error for
// {ok: false}.
type ActionFunc func(ctx context.Context, raw []byte) (any, error)

// readTimeout is how long the server waits for the request. Compile
// requests carry a preprocessed source file and may take a moment on a
// busy link.
const readTimeout = 30 * time.Second

// writeTimeout bounds writing the reply, payload included.
const writeTimeout = 2 * time.Minute

// maxRequestSize bounds a single request. The largest legitimate
// request is a compile job carrying preprocessed source.
const maxRequestSize = 256 * 1024 * 1024

// Server serves the action protocol on a transport.Listener.
type Server struct {
	handlers map[string]ActionFunc
	logger   *slog.Logger

	activeConnections sync.WaitGroup
}

// NewServer creates a server. Register actions with Handle before Serve.
func NewServer(logger *slog.Logger) *Server {
	return &Server{
		handlers: make(map[string]ActionFunc),
		logger:   logger,
	}
}

// Handle registers handler for action. Panics on a duplicate action.
func (s *Server) Handle(action string, handler ActionFunc) {
	if _, exists := s.handlers[action]; exists {
		panic(fmt.Sprintf("rpc.Server: duplicate handler for action %q", action))
	}
	s.handlers[action] = handler
}

// Serve accepts connections until ctx is cancelled, then closes the
// listener and waits for in-flight requests. Handlers receive a
// context that is cancelled at the same time.
func (s *Server) Serve(ctx context.Context, listener transport.Listener) error {
	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	s.logger.Info("rpc server listening", "address", listener.Address())

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			s.logger.Error("accept failed", "error", err)
			continue
		}

		s.activeConnections.Add(1)
		go func() {
			defer s.activeConnections.Done()
			s.handleConnection(ctx, conn)
		}()
	}

	s.activeConnections.Wait()
	return nil
}

func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	// A shutdown must not wait on a client that stopped talking.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	conn.SetReadDeadline(time.Now().Add(readTimeout))

	var raw codec.RawMessage
	if err := codec.NewDecoder(io.LimitReader(conn, maxRequestSize)).Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return
		}
		s.writeError(conn, fmt.Sprintf("invalid request: %v", err))
		return
	}

	var header struct {
		Action string `cbor:"action"`
	}
	if err := codec.Unmarshal(raw, &header); err != nil {
		s.writeError(conn, fmt.Sprintf("invalid request: %v", err))
		return
	}
	if header.Action == "" {
		s.writeError(conn, "missing required field: action")
		return
	}

	handler, exists := s.handlers[header.Action]
	if !exists {
		s.writeError(conn, fmt.Sprintf("unknown action %q", header.Action))
		return
	}

	result, err := handler(ctx, []byte(raw))
	if err != nil {
		s.logger.Debug("action failed",
			"action", header.Action,
			"remote", conn.RemoteAddr().String(),
			"error", err,
		)
		s.writeError(conn, err.Error())
		return
	}

	s.writeSuccess(conn, result)
}

func (s *Server) writeError(conn net.Conn, message string) {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := codec.NewEncoder(conn).Encode(Response{OK: false, Error: message}); err != nil {
		s.logWriteFailure("error response", err)
	}
}

func (s *Server) writeSuccess(conn net.Conn, result any) {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))

	var body []byte
	streamed, isStreamed := result.(*Streamed)
	if isStreamed {
		result = streamed.Data
		body = streamed.Body
	}

	response := Response{OK: true}
	if result != nil {
		data, err := codec.Marshal(result)
		if err != nil {
			s.writeError(conn, fmt.Sprintf("internal: marshaling response: %v", err))
			return
		}
		response.Data = data
	}

	encoder := codec.NewEncoder(conn)
	if err := encoder.Encode(response); err != nil {
		s.logWriteFailure("success response", err)
		return
	}
	if isStreamed {
		if err := encoder.Encode(body); err != nil {
			s.logWriteFailure("response body", err)
		}
	}
}

// logWriteFailure keeps peers that hang up early out of the warning
// log. Anything else (a write timeout, a codec failure) is worth seeing.
func (s *Server) logWriteFailure(what string, err error) {
	if netutil.IsExpectedCloseError(err) {
		s.logger.Debug("peer closed before "+what+" was written", "error", err)
		return
	}
	s.logger.Warn("failed to write "+what, "error", err)
}
