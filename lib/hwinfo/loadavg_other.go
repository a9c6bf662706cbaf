// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build !linux

package hwinfo

func loadAverage() (float64, bool) {
	return 0, false
}
