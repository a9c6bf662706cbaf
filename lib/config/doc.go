// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads buildmesh node configuration.
//
// Configuration is loaded from a single file specified by either the
// BUILDMESH_CONFIG environment variable (via [Load]) or a --config flag
// (via [LoadFile]). There is no search path. A file ending in .json or
// .jsonc is read as JSON with comments; anything else is YAML. Both
// use the same snake_case keys.
//
// Durations are strings in time.ParseDuration syntax ("2s", "1m30s").
// ${VAR} and ${VAR:-default} are expanded in the node name, listen
// address, and endpoint lists, so one file can serve many hosts:
//
//	node:
//	  name: ${HOSTNAME:-worker}
//	listen_address: 0.0.0.0:7130
//	seeds: [build-01:7130]
//
// Command-line flags override file values after loading; see
// cmd/buildmesh-node.
//
// This package depends on no other buildmesh packages.
package config
