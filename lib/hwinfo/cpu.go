// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package hwinfo

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"strconv"
	"strings"
)

// procStat is where the aggregate CPU counters live on Linux.
const procStat = "/proc/stat"

// CPUReading is a snapshot of cumulative CPU time, in jiffies, summed
// over all CPUs. Two readings give utilization over the interval
// between them.
type CPUReading struct {
	Busy uint64
	Idle uint64
}

// ReadCPUStats takes a reading from /proc/stat.
func ReadCPUStats() (*CPUReading, error) {
	file, err := os.Open(procStat)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return parseCPUStat(file)
}

// parseCPUStat reads the aggregate "cpu" line, which comes first:
//
//	cpu  user nice system idle iowait irq softirq steal guest guest_nice
//
// iowait counts as idle. guest time is already inside user and nice.
func parseCPUStat(r io.Reader) (*CPUReading, error) {
	scanner := bufio.NewScanner(r)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, err
		}
		return nil, errors.New("empty cpu stat")
	}
	fields := strings.Fields(scanner.Text())
	if len(fields) == 0 || fields[0] != "cpu" {
		return nil, fmt.Errorf("first line is %q, want the aggregate cpu line", scanner.Text())
	}
	counters := fields[1:]
	if len(counters) < 8 {
		return nil, fmt.Errorf("aggregate cpu line has %d counters, want at least 8", len(counters))
	}

	var jiffies [8]uint64
	for i := range jiffies {
		value, err := strconv.ParseUint(counters[i], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("cpu counter %d: %w", i, err)
		}
		jiffies[i] = value
	}
	const (
		user = iota
		nice
		system
		idle
		iowait
		irq
		softirq
		steal
	)
	return &CPUReading{
		Busy: jiffies[user] + jiffies[nice] + jiffies[system] + jiffies[irq] + jiffies[softirq] + jiffies[steal],
		Idle: jiffies[idle] + jiffies[iowait],
	}, nil
}

// CPUPercent returns busy time as a percentage of all time elapsed
// between two readings. It is 0 when either reading is missing, when
// no time passed, or when a counter went backwards (a wrapped counter
// or a reading from another boot).
func CPUPercent(previous, current *CPUReading) float64 {
	if previous == nil || current == nil {
		return 0
	}
	if current.Busy < previous.Busy || current.Idle < previous.Idle {
		return 0
	}
	busy := current.Busy - previous.Busy
	total := busy + current.Idle - previous.Idle
	if total == 0 {
		return 0
	}
	return float64(busy) * 100 / float64(total)
}

// Cores returns the number of CPUs usable by this process.
func Cores() int {
	return runtime.NumCPU()
}
