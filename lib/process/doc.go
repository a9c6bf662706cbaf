// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package process holds the exit path shared by the buildmesh
// binaries: main calls run, and any error run returns is reported on
// stderr here because the structured logger may not exist yet.
package process
