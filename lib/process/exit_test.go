// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"bytes"
	"errors"
	"testing"
)

func TestReport(t *testing.T) {
	var buffer bytes.Buffer
	report(&buffer, nil)
	if buffer.Len() != 0 {
		t.Errorf("nil error wrote %q", buffer.String())
	}
	report(&buffer, errors.New("dial 10.0.0.1:7130: refused"))
	if got, want := buffer.String(), "error: dial 10.0.0.1:7130: refused\n"; got != want {
		t.Errorf("report = %q, want %q", got, want)
	}
}
