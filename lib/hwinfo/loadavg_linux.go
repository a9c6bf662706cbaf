// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package hwinfo

import "golang.org/x/sys/unix"

// loadScale is 1<<SI_LOAD_SHIFT: sysinfo(2) load averages are fixed
// point with 16 fractional bits.
const loadScale = 1 << 16

// loadAverage returns the one-minute load average.
func loadAverage() (float64, bool) {
	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err != nil {
		return 0, false
	}
	return float64(info.Loads[0]) / loadScale, true
}
