// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// Config is the configuration of one buildmesh node.
type Config struct {
	// Node identifies this node.
	Node NodeConfig `yaml:"node"`

	// ListenAddress is where the node serves its RPC actions.
	ListenAddress string `yaml:"listen_address"`

	// AdvertisePoolEndpoints are the addresses peers use for gossip.
	// Empty means the listen address, when it names a concrete host.
	AdvertisePoolEndpoints []string `yaml:"advertise_pool_endpoints"`

	// AdvertiseCompilerEndpoints are the addresses peers send compile
	// jobs to. Empty means the same as the pool endpoints.
	AdvertiseCompilerEndpoints []string `yaml:"advertise_compiler_endpoints"`

	// Seeds are pool endpoints of existing nodes to join through.
	Seeds []string `yaml:"seeds"`

	Gossip    GossipConfig    `yaml:"gossip"`
	Proxy     ProxyConfig     `yaml:"proxy"`
	Registry  RegistryConfig  `yaml:"registry"`
	Compiler  CompilerConfig  `yaml:"compiler"`
	Artifacts ArtifactsConfig `yaml:"artifacts"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`
}

// NodeConfig identifies this node.
type NodeConfig struct {
	// ID is the node's stable identity. Empty means a random UUID per
	// process start.
	ID string `yaml:"id"`

	// Name is a human-readable label.
	Name string `yaml:"name"`

	// Cores overrides the detected core count. Zero means detect.
	Cores int `yaml:"cores"`
}

// GossipConfig configures the topology builder.
type GossipConfig struct {
	// Period is the target duration of one gossip iteration.
	Period Duration `yaml:"period"`

	// SilenceLimit is how long an agent may go without re-registering
	// before it is evicted.
	SilenceLimit Duration `yaml:"silence_limit"`

	// RebuildInterval forces a convergence pass this often.
	RebuildInterval Duration `yaml:"rebuild_interval"`

	// CallTimeout bounds each gossip RPC. Zero means half of Period.
	CallTimeout Duration `yaml:"call_timeout"`

	// BreakerThreshold is the number of consecutive failures after
	// which a pool endpoint is forgotten.
	BreakerThreshold int `yaml:"breaker_threshold"`

	// SkipOverlappingPools skips discovered agents that share a pool
	// endpoint with a known pool.
	SkipOverlappingPools bool `yaml:"skip_overlapping_pools"`
}

// ProxyConfig configures connections to peers.
type ProxyConfig struct {
	// ReadinessCooldown is the minimum time between compiler endpoint
	// searches for an agent whose compiler is not ready.
	ReadinessCooldown Duration `yaml:"readiness_cooldown"`

	// DialTimeout bounds connecting to a peer.
	DialTimeout Duration `yaml:"dial_timeout"`
}

// RegistryConfig configures the agent registry.
type RegistryConfig struct {
	// LockTimeout bounds waiting for the registry's critical section.
	LockTimeout Duration `yaml:"lock_timeout"`
}

// CompilerConfig configures the local compile backend.
type CompilerConfig struct {
	// Slots is the number of jobs run concurrently. Zero means one per
	// core.
	Slots int `yaml:"slots"`
}

// ArtifactsConfig configures artifact transport.
type ArtifactsConfig struct {
	// Compression is applied to compile payloads: none, lz4, or zstd.
	Compression string `yaml:"compression"`
}

// Duration is a time.Duration written as a string in config files.
type Duration time.Duration

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

// UnmarshalYAML parses a duration string.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var text string
	if err := node.Decode(&text); err != nil {
		return fmt.Errorf("line %d: duration must be a string like \"2s\": %w", node.Line, err)
	}
	parsed, err := time.ParseDuration(text)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML writes the duration as a string.
func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

// Default returns the configuration used for every field the file
// does not set.
func Default() *Config {
	return &Config{
		ListenAddress: "0.0.0.0:7130",
		Gossip: GossipConfig{
			Period:               Duration(2 * time.Second),
			SilenceLimit:         Duration(10 * time.Second),
			RebuildInterval:      Duration(30 * time.Second),
			BreakerThreshold:     3,
			SkipOverlappingPools: true,
		},
		Proxy: ProxyConfig{
			ReadinessCooldown: Duration(time.Minute),
			DialTimeout:       Duration(5 * time.Second),
		},
		Registry: RegistryConfig{
			LockTimeout: Duration(time.Minute),
		},
		Artifacts: ArtifactsConfig{
			Compression: "zstd",
		},
		LogLevel: "info",
	}
}

// Load loads configuration from the file named by BUILDMESH_CONFIG.
func Load() (*Config, error) {
	configPath := os.Getenv("BUILDMESH_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("BUILDMESH_CONFIG environment variable not set; " +
			"set it to the path of your node config file, or use --config flag")
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from path over Default and expands
// variables. It does not validate; call Validate after applying any
// flag overrides.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}
	cfg.expandVariables()
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		// JSON is a subset of YAML, so once comments and trailing
		// commas are gone the YAML decoder handles it.
		data = jsonc.ToJSON(data)
	}

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(c); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("parsing config %s: %w", path, err)
	}
	return nil
}

// expandVariables expands ${VAR} and ${VAR:-default} in host-specific
// fields.
func (c *Config) expandVariables() {
	c.Node.ID = expandVars(c.Node.ID)
	c.Node.Name = expandVars(c.Node.Name)
	c.ListenAddress = expandVars(c.ListenAddress)
	for _, list := range [][]string{c.AdvertisePoolEndpoints, c.AdvertiseCompilerEndpoints, c.Seeds} {
		for i := range list {
			list[i] = expandVars(list[i])
		}
	}
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if value := os.Getenv(parts[1]); value != "" {
			return value
		}
		return parts[2]
	})
}

// Validate checks the configuration and reports every problem found.
func (c *Config) Validate() error {
	var errs []error

	if c.ListenAddress == "" {
		errs = append(errs, errors.New("listen_address is required"))
	}
	if c.Node.Cores < 0 {
		errs = append(errs, fmt.Errorf("node.cores must not be negative, got %d", c.Node.Cores))
	}
	if c.Compiler.Slots < 0 {
		errs = append(errs, fmt.Errorf("compiler.slots must not be negative, got %d", c.Compiler.Slots))
	}

	durations := []struct {
		name  string
		value Duration
	}{
		{"gossip.period", c.Gossip.Period},
		{"gossip.silence_limit", c.Gossip.SilenceLimit},
		{"gossip.rebuild_interval", c.Gossip.RebuildInterval},
		{"proxy.readiness_cooldown", c.Proxy.ReadinessCooldown},
		{"proxy.dial_timeout", c.Proxy.DialTimeout},
		{"registry.lock_timeout", c.Registry.LockTimeout},
	}
	for _, duration := range durations {
		if duration.value <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", duration.name, duration.value))
		}
	}
	if c.Gossip.SilenceLimit > 0 && c.Gossip.SilenceLimit <= c.Gossip.Period {
		errs = append(errs, fmt.Errorf("gossip.silence_limit (%s) must exceed gossip.period (%s), or agents are evicted between pushes",
			c.Gossip.SilenceLimit, c.Gossip.Period))
	}
	if c.Gossip.CallTimeout < 0 || (c.Gossip.CallTimeout > 0 && c.Gossip.CallTimeout >= c.Gossip.Period) {
		errs = append(errs, fmt.Errorf("gossip.call_timeout (%s) must be shorter than gossip.period (%s), or hung peers are never counted as failed",
			c.Gossip.CallTimeout, c.Gossip.Period))
	}
	if c.Gossip.BreakerThreshold < 1 {
		errs = append(errs, fmt.Errorf("gossip.breaker_threshold must be at least 1, got %d", c.Gossip.BreakerThreshold))
	}

	switch c.Artifacts.Compression {
	case "", "none", "lz4", "zstd":
	default:
		errs = append(errs, fmt.Errorf("artifacts.compression must be none, lz4, or zstd, got %q", c.Artifacts.Compression))
	}

	if _, err := c.Level(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// Level parses LogLevel.
func (c *Config) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("log_level: %w", err)
	}
	return level, nil
}
