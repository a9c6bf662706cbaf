// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"net"
)

// Listener accepts inbound connections from peer nodes.
type Listener interface {
	// Accept waits for the next connection. After Close it returns an
	// error wrapping net.ErrClosed.
	Accept() (net.Conn, error)

	// Address is the address to advertise to peers, in the format the
	// matching Dialer accepts ("192.168.1.10:7600" for TCP).
	Address() string

	// Close stops accepting. Connections already returned by Accept
	// are unaffected.
	Close() error
}

// Dialer opens connections to peer nodes.
type Dialer interface {
	// DialContext connects to the peer at address. The address format
	// matches what the peer's Listener.Address returns.
	DialContext(ctx context.Context, address string) (net.Conn, error)
}
