// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package proxy

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"
)

// fakeConn is a connection to a named endpoint whose calls succeed or
// fail according to the test's table.
type fakeConn struct {
	endpoint string
}

type fakeNetwork struct {
	down  map[string]bool
	calls []string
}

func (n *fakeNetwork) set(endpoints ...string) *endpointSet[*fakeConn] {
	return newEndpointSet(endpoints, func(endpoint string) *fakeConn {
		return &fakeConn{endpoint: endpoint}
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

var errDown = errors.New("connection refused")

func (n *fakeNetwork) call(ctx context.Context, conn *fakeConn) (string, error) {
	n.calls = append(n.calls, conn.endpoint)
	if n.down[conn.endpoint] {
		return "", errDown
	}
	return conn.endpoint, nil
}

func TestFailoverPicksFirstWorkingEndpoint(t *testing.T) {
	network := &fakeNetwork{down: map[string]bool{"a": true}}
	set := network.set("a", "b", "c")

	if state := set.State(); state != Uninitialized {
		t.Fatalf("initial State = %v, want uninitialized", state)
	}

	got, err := failover(context.Background(), set, "op", network.call)
	if err != nil {
		t.Fatalf("failover: %v", err)
	}
	if got != "b" {
		t.Errorf("result = %q, want b", got)
	}
	if set.State() != Connected || set.Endpoint() != "b" {
		t.Errorf("State = %v at %q, want connected at b", set.State(), set.Endpoint())
	}

	// The cached endpoint is tried first on the next call.
	network.calls = nil
	if _, err := failover(context.Background(), set, "op", network.call); err != nil {
		t.Fatalf("second failover: %v", err)
	}
	if len(network.calls) != 1 || network.calls[0] != "b" {
		t.Errorf("second call tried %v, want [b]", network.calls)
	}
}

func TestFailoverMovesOffFailedCache(t *testing.T) {
	network := &fakeNetwork{down: map[string]bool{}}
	set := network.set("a", "b")

	if _, err := failover(context.Background(), set, "op", network.call); err != nil {
		t.Fatalf("failover: %v", err)
	}
	if set.Endpoint() != "a" {
		t.Fatalf("cached endpoint = %q, want a", set.Endpoint())
	}

	network.down["a"] = true
	network.calls = nil
	got, err := failover(context.Background(), set, "op", network.call)
	if err != nil {
		t.Fatalf("failover after cache failure: %v", err)
	}
	if got != "b" {
		t.Errorf("result = %q, want b", got)
	}
	want := []string{"a", "b"}
	if len(network.calls) != len(want) || network.calls[0] != want[0] || network.calls[1] != want[1] {
		t.Errorf("calls = %v, want %v (cached endpoint tried once)", network.calls, want)
	}
}

func TestFailoverAggregatesEveryFailure(t *testing.T) {
	network := &fakeNetwork{down: map[string]bool{"a": true, "b": true, "c": true}}
	set := network.set("a", "b", "c")

	_, err := failover(context.Background(), set, "register-agent", network.call)
	var aggregate *AggregateError
	if !errors.As(err, &aggregate) {
		t.Fatalf("error = %v, want *AggregateError", err)
	}
	if len(aggregate.Errors) != 3 {
		t.Errorf("aggregated %d errors, want 3: %v", len(aggregate.Errors), aggregate)
	}
	if !errors.Is(err, errDown) {
		t.Error("errors.Is(err, errDown) = false, want the underlying errors reachable")
	}
	if aggregate.Operation != "register-agent" {
		t.Errorf("Operation = %q, want register-agent", aggregate.Operation)
	}
	if set.State() != AllEndpointsFailed {
		t.Errorf("State = %v, want all-endpoints-failed", set.State())
	}

	// The next call starts over and can succeed.
	delete(network.down, "c")
	got, err := failover(context.Background(), set, "register-agent", network.call)
	if err != nil {
		t.Fatalf("failover after recovery: %v", err)
	}
	if got != "c" || set.State() != Connected {
		t.Errorf("result %q state %v, want c connected", got, set.State())
	}
}

func TestFailoverWithoutEndpoints(t *testing.T) {
	network := &fakeNetwork{}
	set := network.set()

	_, err := failover(context.Background(), set, "op", network.call)
	if !errors.Is(err, ErrNoEndpoints) {
		t.Fatalf("error = %v, want ErrNoEndpoints", err)
	}
}

func TestFailoverStopsOnCancellation(t *testing.T) {
	network := &fakeNetwork{down: map[string]bool{"a": true, "b": true}}
	set := network.set("a", "b", "c")

	ctx, cancel := context.WithCancel(context.Background())
	call := func(ctx context.Context, conn *fakeConn) (string, error) {
		result, err := network.call(ctx, conn)
		if conn.endpoint == "a" {
			cancel()
		}
		return result, err
	}

	_, err := failover(ctx, set, "op", call)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled among attempts", err)
	}
	if len(network.calls) != 1 {
		t.Errorf("calls = %v, want only the attempt before cancellation", network.calls)
	}
}

func TestBreaker(t *testing.T) {
	b := breaker{threshold: 3}
	failure := errors.New("boom")
	ctx := context.Background()

	b.record(ctx, failure)
	b.record(ctx, failure)
	if b.Bad() {
		t.Fatal("Bad after 2 failures, want false")
	}
	b.record(ctx, nil)
	b.record(ctx, failure)
	b.record(ctx, failure)
	if b.Bad() {
		t.Fatal("Bad after success reset and 2 failures, want false")
	}
	b.record(ctx, failure)
	if !b.Bad() {
		t.Fatal("Bad after 3 consecutive failures = false, want true")
	}
	if b.Failures() != 3 {
		t.Errorf("Failures = %d, want 3", b.Failures())
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	b.record(ctx, nil)
	b.record(cancelled, context.Canceled)
	if b.Failures() != 0 {
		t.Errorf("Failures after a cancelled call = %d, want 0", b.Failures())
	}

	expired, cancelExpired := context.WithDeadline(ctx, time.Unix(0, 0))
	defer cancelExpired()
	b.record(expired, context.DeadlineExceeded)
	if b.Failures() != 1 {
		t.Errorf("Failures after a call that hit its deadline = %d, want 1", b.Failures())
	}
}
