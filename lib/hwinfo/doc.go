// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package hwinfo measures what a node advertises about itself: its
// core count and how busy its CPUs are.
//
// CPU utilization comes from deltas between two /proc/stat readings
// ([ReadCPUStats], [CPUPercent]). A [Sampler] keeps the previous
// reading between calls so each gossip iteration gets the utilization
// since the last one. Where /proc/stat is unavailable the sampler
// falls back to the one-minute load average from sysinfo(2), scaled
// by core count, and where that is unavailable too it reports
// agent.UnknownCPU.
package hwinfo
