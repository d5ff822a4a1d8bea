// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the options that drive execution strategy
// selection.
//
// Configuration is loaded from a single file specified by:
//   - BUREAU_SPAWN_CONFIG environment variable, or
//   - --config flag passed to the command
//
// The file is YAML unless its name ends in .json or .jsonc, in which case
// it is parsed as JSON with comments and trailing commas allowed. Values
// in the file are layered onto [Default]. The only expansion performed is
// ${VAR} and ${VAR:-default} in path fields.
//
// Consumers do not read [Config] directly. They receive an [Options]
// registry and ask it for the sections they need; a section that was
// never registered is a programming error reported as
// [ErrOptionsNotRegistered].
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// Config is the full option set for one build invocation.
type Config struct {
	// Execution configures local process execution.
	Execution ExecutionOptions `yaml:"execution" json:"execution"`

	// Sandbox configures the namespace sandbox and its rootfs image.
	Sandbox SandboxOptions `yaml:"sandbox" json:"sandbox"`

	// Remote configures action caching and remote execution.
	Remote RemoteOptions `yaml:"remote" json:"remote"`

	// Worker configures the persistent worker pool.
	Worker WorkerOptions `yaml:"worker" json:"worker"`
}

// ExecutionOptions configures how local processes are run.
type ExecutionOptions struct {
	// VerboseFailures includes the full command line in failure
	// messages.
	VerboseFailures bool `yaml:"verbose_failures" json:"verbose_failures"`

	// LocalSigkillGraceSeconds is how long a cancelled local action has
	// between SIGTERM and SIGKILL. Zero sends SIGKILL immediately.
	// Default: 15
	LocalSigkillGraceSeconds int `yaml:"local_sigkill_grace_seconds" json:"local_sigkill_grace_seconds"`

	// LocalJobs is the number of local actions that may run at once.
	// Zero means one per CPU.
	LocalJobs int `yaml:"local_jobs" json:"local_jobs"`
}

// GracePeriod returns LocalSigkillGraceSeconds as a duration.
func (o *ExecutionOptions) GracePeriod() time.Duration {
	return time.Duration(o.LocalSigkillGraceSeconds) * time.Second
}

// SandboxOptions configures sandboxed execution.
type SandboxOptions struct {
	// BaseDir is where per-build sandbox directories are created. When
	// empty, they live under the output base. When set, each output
	// base gets its own subdirectory so concurrent builds do not
	// collide.
	BaseDir string `yaml:"base_dir" json:"base_dir"`

	// Rootfs is the URL or absolute path of a gzip-compressed tar
	// archive to use as the sandbox root filesystem. When empty,
	// sandboxed actions see the host root read-only.
	Rootfs string `yaml:"rootfs" json:"rootfs"`

	// ImagesDir is where extracted rootfs images are cached.
	// Default: ~/.cache/bureau-spawn/rootfs
	ImagesDir string `yaml:"images_dir" json:"images_dir"`

	// ProductName prefixes the sandbox directory name.
	// Default: bureau
	ProductName string `yaml:"product_name" json:"product_name"`

	// BlockNetwork runs sandboxed actions in a fresh network namespace.
	BlockNetwork bool `yaml:"block_network" json:"block_network"`
}

// RemoteOptions configures the action cache and remote executor.
type RemoteOptions struct {
	// SpawnCache enables the remote action cache.
	SpawnCache bool `yaml:"spawn_cache" json:"spawn_cache"`

	// DiskCache is the directory of a local disk action cache. Non-empty
	// enables it.
	DiskCache string `yaml:"disk_cache" json:"disk_cache"`

	// Endpoint is the remote cache/executor address, passed through to
	// the connection factory.
	Endpoint string `yaml:"endpoint" json:"endpoint"`

	// Executor enables remote execution when a work executor is
	// available.
	Executor bool `yaml:"executor" json:"executor"`
}

// CacheEnabled reports whether any action cache is configured.
func (o *RemoteOptions) CacheEnabled() bool {
	return o.SpawnCache || o.DiskCache != ""
}

// WorkerOptions configures the persistent worker pool. They are consumed
// by the worker pool provider, not interpreted here.
type WorkerOptions struct {
	// MaxInstances is the maximum number of idle workers kept per key.
	// Default: 4
	MaxInstances int `yaml:"max_instances" json:"max_instances"`

	// QuitAfterBuild shuts workers down when the build finishes.
	QuitAfterBuild bool `yaml:"quit_after_build" json:"quit_after_build"`

	// Mnemonics limits worker use to these action mnemonics. Empty
	// allows any mnemonic whose spawn declares worker support.
	Mnemonics []string `yaml:"mnemonics" json:"mnemonics"`
}

// AllowsMnemonic reports whether actions with mnemonic may use a worker.
func (o *WorkerOptions) AllowsMnemonic(mnemonic string) bool {
	if len(o.Mnemonics) == 0 {
		return true
	}
	for _, allowed := range o.Mnemonics {
		if allowed == mnemonic {
			return true
		}
	}
	return false
}

// Default returns the default configuration.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()

	return &Config{
		Execution: ExecutionOptions{
			LocalSigkillGraceSeconds: 15,
		},
		Sandbox: SandboxOptions{
			ImagesDir:   filepath.Join(homeDir, ".cache", "bureau-spawn", "rootfs"),
			ProductName: "bureau",
		},
		Worker: WorkerOptions{
			MaxInstances: 4,
		},
	}
}

// Load loads configuration from the BUREAU_SPAWN_CONFIG environment
// variable. There is no search path: if the variable is not set, this
// fails.
func Load() (*Config, error) {
	configPath := os.Getenv("BUREAU_SPAWN_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("BUREAU_SPAWN_CONFIG environment variable not set; " +
			"set it to the path of your config file, or use --config flag")
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}

	cfg.expandVariables()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// loadFile merges a single configuration file into c.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		if err := json.Unmarshal(jsonc.ToJSON(data), c); err != nil {
			return fmt.Errorf("parsing %s: %w", path, err)
		}
	default:
		if err := yaml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("parsing %s: %w", path, err)
		}
	}
	return nil
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}

	c.Sandbox.BaseDir = expandVars(c.Sandbox.BaseDir, vars)
	c.Sandbox.Rootfs = expandVars(c.Sandbox.Rootfs, vars)
	c.Sandbox.ImagesDir = expandVars(c.Sandbox.ImagesDir, vars)
	c.Remote.DiskCache = expandVars(c.Remote.DiskCache, vars)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Execution.LocalSigkillGraceSeconds < 0 {
		errs = append(errs, fmt.Errorf("execution.local_sigkill_grace_seconds must not be negative"))
	}
	if c.Execution.LocalJobs < 0 {
		errs = append(errs, fmt.Errorf("execution.local_jobs must not be negative"))
	}
	if rootfs := c.Sandbox.Rootfs; rootfs != "" && !isURL(rootfs) && !filepath.IsAbs(rootfs) {
		errs = append(errs, fmt.Errorf("sandbox.rootfs must be a URL or an absolute path, got %q", rootfs))
	}
	if c.Sandbox.Rootfs != "" && c.Sandbox.ImagesDir == "" {
		errs = append(errs, fmt.Errorf("sandbox.images_dir is required when sandbox.rootfs is set"))
	}
	if c.Sandbox.ProductName == "" {
		errs = append(errs, fmt.Errorf("sandbox.product_name is required"))
	}
	if c.Worker.MaxInstances < 0 {
		errs = append(errs, fmt.Errorf("worker.max_instances must not be negative"))
	}

	return errors.Join(errs...)
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}
