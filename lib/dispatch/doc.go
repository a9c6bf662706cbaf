// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package dispatch routes compile jobs to agents.
//
// A [Dispatcher] draws an agent from the registry with
// [registry.Registry.SelectReady], using the agent's compiler handle
// (lib/proxy) as the readiness check, runs the job there, and unpacks
// the returned artifacts into the caller's writers. A job whose chosen
// agent fails mid-compile is retried on another draw a bounded number
// of times; when no agent is ready the job fails with
// [registry.ErrNoReadyAgent] instead of blocking.
package dispatch
