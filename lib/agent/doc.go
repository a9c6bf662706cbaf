// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package agent defines [Descriptor], the identity and capability
// snapshot every buildmesh node advertises about itself and relays
// about others.
//
// A descriptor is a value: it is never mutated after construction. A
// fresh CPU reading produces a new descriptor via
// [Descriptor.WithCPUUsage]. Registries compare descriptors with
// [Descriptor.Equal], which treats the endpoint lists as sets, so a
// peer that reorders its endpoints between heartbeats does not look
// like a changed agent.
//
// [Descriptor.Weight] is the load-proportional selection weight:
// cores * (100 - cpu_usage_percent), floored at zero.
package agent
