// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package proxy

import (
	"io"
	"log/slog"
	"time"

	"github.com/bureau-foundation/buildmesh/lib/clock"
	"github.com/bureau-foundation/buildmesh/transport"
)

// DefaultReadinessCooldown is how long a not-ready compiler handle is
// kept before another endpoint search.
const DefaultReadinessCooldown = time.Minute

// DefaultBreakerThreshold is the number of consecutive failures after
// which a coordinator handle reports Bad.
const DefaultBreakerThreshold = 3

// Options configures handles. Zero fields take defaults.
type Options struct {
	// Dialer connects to peer endpoints. Nil means TCP with
	// rpc.DefaultDialTimeout.
	Dialer transport.Dialer

	Clock  clock.Clock
	Logger *slog.Logger

	ReadinessCooldown time.Duration
	BreakerThreshold  int
}

func (o Options) withDefaults() Options {
	if o.Clock == nil {
		o.Clock = clock.Real()
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if o.ReadinessCooldown <= 0 {
		o.ReadinessCooldown = DefaultReadinessCooldown
	}
	if o.BreakerThreshold <= 0 {
		o.BreakerThreshold = DefaultBreakerThreshold
	}
	return o
}
