// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package compiler defines the boundary between buildmesh's
// coordination layer and the compile backend that actually runs a
// compiler: the [Backend] interface, the [Job] sent to it, and the
// [Result] it returns.
//
// Translating compiler command lines and launching the native compiler
// are not part of buildmesh; a deployment supplies a Backend that
// does both. This package ships two small backends of its own:
// [Unavailable] for nodes that only coordinate, and [Limiter], which
// wraps another backend and reports not-ready once every core is busy.
package compiler
