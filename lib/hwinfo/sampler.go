// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package hwinfo

import (
	"math"
	"sync"

	"github.com/bureau-foundation/buildmesh/lib/agent"
)

// Sampler reports CPU utilization as an integer percentage suitable
// for agent.Descriptor.CPUUsagePercent. Safe for concurrent use.
type Sampler struct {
	read    func() (*CPUReading, error)
	loadavg func() (float64, bool)
	cores   int

	mu       sync.Mutex
	previous *CPUReading
}

// NewSampler creates a sampler over /proc/stat and sysinfo(2). The
// first reading is taken immediately so the first Sample already has a
// baseline.
func NewSampler() *Sampler {
	return newSampler(ReadCPUStats, loadAverage, Cores())
}

func newSampler(read func() (*CPUReading, error), loadavg func() (float64, bool), cores int) *Sampler {
	if cores < 1 {
		cores = 1
	}
	sampler := &Sampler{read: read, loadavg: loadavg, cores: cores}
	sampler.previous = sampler.reading()
	return sampler
}

// Sample returns utilization since the previous call, in [0, 100], or
// agent.UnknownCPU when nothing can be measured.
func (s *Sampler) Sample() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.reading()
	previous := s.previous
	s.previous = current
	if previous != nil && current != nil {
		return clampPercent(CPUPercent(previous, current))
	}

	if load, ok := s.loadavg(); ok {
		return clampPercent(load / float64(s.cores) * 100)
	}
	return agent.UnknownCPU
}

// reading is nil when /proc/stat cannot be read; Sample then falls
// back to the load average.
func (s *Sampler) reading() *CPUReading {
	reading, err := s.read()
	if err != nil {
		return nil
	}
	return reading
}

func clampPercent(percent float64) int {
	return int(math.Round(min(max(percent, 0), 100)))
}
