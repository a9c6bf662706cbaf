// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"testing"

	"github.com/bureau-foundation/buildmesh/lib/codec"
)

func TestEqualTreatsEndpointsAsSets(t *testing.T) {
	base := New("a1", "builder", 8, 20,
		[]string{"10.0.0.1:7600", "10.0.0.2:7600"},
		[]string{"10.0.0.1:7601"})

	tests := []struct {
		name  string
		other Descriptor
		want  bool
	}{
		{
			name:  "identical",
			other: New("a1", "builder", 8, 20, []string{"10.0.0.1:7600", "10.0.0.2:7600"}, []string{"10.0.0.1:7601"}),
			want:  true,
		},
		{
			name:  "reordered pool endpoints",
			other: New("a1", "builder", 8, 20, []string{"10.0.0.2:7600", "10.0.0.1:7600"}, []string{"10.0.0.1:7601"}),
			want:  true,
		},
		{
			name:  "duplicated endpoint",
			other: New("a1", "builder", 8, 20, []string{"10.0.0.2:7600", "10.0.0.1:7600", "10.0.0.1:7600"}, []string{"10.0.0.1:7601"}),
			want:  true,
		},
		{
			name:  "cpu changed",
			other: New("a1", "builder", 8, 21, []string{"10.0.0.1:7600", "10.0.0.2:7600"}, []string{"10.0.0.1:7601"}),
			want:  false,
		},
		{
			name:  "endpoint missing",
			other: New("a1", "builder", 8, 20, []string{"10.0.0.1:7600"}, []string{"10.0.0.1:7601"}),
			want:  false,
		},
		{
			name:  "different id",
			other: New("a2", "builder", 8, 20, []string{"10.0.0.1:7600", "10.0.0.2:7600"}, []string{"10.0.0.1:7601"}),
			want:  false,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := base.Equal(test.other); got != test.want {
				t.Errorf("Equal() = %v, want %v", got, test.want)
			}
			if got := test.other.Equal(base); got != test.want {
				t.Errorf("reverse Equal() = %v, want %v", got, test.want)
			}
		})
	}
}

func TestWeight(t *testing.T) {
	tests := []struct {
		cores, cpu int
		want       int64
	}{
		{cores: 4, cpu: 0, want: 400},
		{cores: 4, cpu: 75, want: 100},
		{cores: 1, cpu: 100, want: 0},
		{cores: 2, cpu: UnknownCPU, want: 202},
	}
	for _, test := range tests {
		descriptor := New("w", "", test.cores, test.cpu, nil, nil)
		if got := descriptor.Weight(); got != test.want {
			t.Errorf("Weight(cores=%d, cpu=%d) = %d, want %d", test.cores, test.cpu, got, test.want)
		}
	}
}

func TestNewNormalizes(t *testing.T) {
	descriptor := New("", "fresh", 0, 250, nil, nil)
	if descriptor.ID == "" {
		t.Error("New with empty id did not generate one")
	}
	if descriptor.Cores != 1 {
		t.Errorf("Cores = %d, want 1", descriptor.Cores)
	}
	if descriptor.CPUUsagePercent != 100 {
		t.Errorf("CPUUsagePercent = %d, want 100", descriptor.CPUUsagePercent)
	}
	if err := descriptor.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestWithCPUUsageDoesNotMutate(t *testing.T) {
	endpoints := []string{"10.0.0.9:7600"}
	original := New("a9", "n", 2, 10, endpoints, nil)
	updated := original.WithCPUUsage(60)

	if original.CPUUsagePercent != 10 {
		t.Errorf("original mutated: cpu = %d", original.CPUUsagePercent)
	}
	if updated.CPUUsagePercent != 60 {
		t.Errorf("updated cpu = %d, want 60", updated.CPUUsagePercent)
	}
	updated.PoolEndpoints[0] = "changed"
	if original.PoolEndpoints[0] != "10.0.0.9:7600" {
		t.Error("WithCPUUsage shares endpoint storage with the original")
	}
	endpoints[0] = "caller-changed"
	if original.PoolEndpoints[0] != "10.0.0.9:7600" {
		t.Error("New shares endpoint storage with the caller")
	}
}

func TestDescriptorWireRoundTrip(t *testing.T) {
	original := New("a3", "wire", 16, 42, []string{"h:1"}, []string{"h:2", "h:3"})
	data, err := codec.Marshal(original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded Descriptor
	if err := codec.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !decoded.Equal(original) {
		t.Errorf("decoded %+v, want %+v", decoded, original)
	}
}
