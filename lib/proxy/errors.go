// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package proxy

import (
	"errors"
	"fmt"
	"strings"
)

// ErrCoolingDown is returned by CompilerHandle when the agent's
// compiler is not ready and the last endpoint search was less than one
// readiness cooldown ago.
var ErrCoolingDown = errors.New("compiler handle cooling down")

// ErrNoEndpoints is returned when a handle has no endpoints to try.
var ErrNoEndpoints = errors.New("no endpoints advertised")

// AggregateError reports that every endpoint tried for an operation
// failed. Errors holds one entry per attempt, in attempt order.
type AggregateError struct {
	Operation string
	Errors    []error
}

func (e *AggregateError) Error() string {
	messages := make([]string, len(e.Errors))
	for i, err := range e.Errors {
		messages[i] = err.Error()
	}
	return fmt.Sprintf("%s: all %d attempts failed: %s",
		e.Operation, len(e.Errors), strings.Join(messages, "; "))
}

// Unwrap exposes every underlying error to errors.Is and errors.As.
func (e *AggregateError) Unwrap() []error {
	return e.Errors
}
