// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"fmt"
	"slices"

	"github.com/google/uuid"
)

// UnknownCPU is the CPUUsagePercent of an agent that has not reported a
// reading.
const UnknownCPU = -1

// Descriptor identifies one node and what it offers. PoolEndpoints are
// the addresses of its coordination service (agent pool: GetAgents and
// RegisterAgent). CompilerEndpoints are the addresses of its compile
// backend. A node with no pool endpoints is a compile worker that does
// not relay gossip.
//
// Fields are exported for the wire codec. Code that builds descriptors
// goes through New so the invariants hold; code that receives them
// from the network calls Normalize.
type Descriptor struct {
	ID                string   `json:"id"`
	Name              string   `json:"name"`
	Cores             int      `json:"cores"`
	CPUUsagePercent   int      `json:"cpu_usage_percent"`
	PoolEndpoints     []string `json:"pool_endpoints,omitempty"`
	CompilerEndpoints []string `json:"compiler_endpoints,omitempty"`
}

// New builds a normalized descriptor. An empty id is replaced with a
// random UUID.
func New(id, name string, cores, cpuUsagePercent int, poolEndpoints, compilerEndpoints []string) Descriptor {
	if id == "" {
		id = uuid.NewString()
	}
	return Descriptor{
		ID:                id,
		Name:              name,
		Cores:             cores,
		CPUUsagePercent:   cpuUsagePercent,
		PoolEndpoints:     slices.Clone(poolEndpoints),
		CompilerEndpoints: slices.Clone(compilerEndpoints),
	}.Normalize()
}

// Normalize returns a copy with Cores at least 1 and CPUUsagePercent
// clamped to [UnknownCPU, 100]. The endpoint slices are cloned so the
// result shares no memory with d.
func (d Descriptor) Normalize() Descriptor {
	if d.Cores < 1 {
		d.Cores = 1
	}
	if d.CPUUsagePercent < UnknownCPU {
		d.CPUUsagePercent = UnknownCPU
	}
	if d.CPUUsagePercent > 100 {
		d.CPUUsagePercent = 100
	}
	d.PoolEndpoints = slices.Clone(d.PoolEndpoints)
	d.CompilerEndpoints = slices.Clone(d.CompilerEndpoints)
	return d
}

// Validate reports whether d can be registered.
func (d Descriptor) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("agent descriptor has empty id")
	}
	if d.Cores < 1 {
		return fmt.Errorf("agent %s: cores must be at least 1, got %d", d.ID, d.Cores)
	}
	if d.CPUUsagePercent < UnknownCPU || d.CPUUsagePercent > 100 {
		return fmt.Errorf("agent %s: cpu usage %d outside [-1, 100]", d.ID, d.CPUUsagePercent)
	}
	return nil
}

// WithCPUUsage returns a copy of d carrying a new CPU reading.
func (d Descriptor) WithCPUUsage(percent int) Descriptor {
	d.CPUUsagePercent = percent
	return d.Normalize()
}

// Weight is the selection weight: cores * (100 - cpu), floored at
// zero. A fully loaded agent has weight zero and is never selected.
// An unknown reading (-1) is applied literally and yields cores * 101.
func (d Descriptor) Weight() int64 {
	weight := int64(d.Cores) * int64(100-d.CPUUsagePercent)
	if weight < 0 {
		return 0
	}
	return weight
}

// IsPool reports whether d relays gossip (advertises pool endpoints).
func (d Descriptor) IsPool() bool {
	return len(d.PoolEndpoints) > 0
}

// Equal reports structural equality. Endpoint lists compare as sets:
// order and duplicates are ignored.
func (d Descriptor) Equal(other Descriptor) bool {
	return d.ID == other.ID &&
		d.Name == other.Name &&
		d.Cores == other.Cores &&
		d.CPUUsagePercent == other.CPUUsagePercent &&
		sameSet(d.PoolEndpoints, other.PoolEndpoints) &&
		sameSet(d.CompilerEndpoints, other.CompilerEndpoints)
}

// String is used in log attributes.
func (d Descriptor) String() string {
	if d.Name == "" {
		return d.ID
	}
	return d.Name + "/" + d.ID
}

func sameSet(a, b []string) bool {
	if len(a) == 0 && len(b) == 0 {
		return true
	}
	left := make(map[string]struct{}, len(a))
	for _, value := range a {
		left[value] = struct{}{}
	}
	right := make(map[string]struct{}, len(b))
	for _, value := range b {
		if _, ok := left[value]; !ok {
			return false
		}
		right[value] = struct{}{}
	}
	return len(left) == len(right)
}
