// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/bureau-foundation/spawn/lib/clock"
	"github.com/bureau-foundation/spawn/lib/governor"
	"github.com/bureau-foundation/spawn/lib/process"
	"github.com/bureau-foundation/spawn/lib/spawn"
	"github.com/bureau-foundation/spawn/local"
)

// Config holds configuration for creating a new Runner.
type Config struct {
	// WorkRoot holds per-execution scratch directories. Created if it
	// does not exist.
	WorkRoot string

	// RootfsImage is an extracted image used as the sandbox root. Empty
	// shares the host root read-only.
	RootfsImage string

	// BwrapPath overrides discovery of the bwrap binary.
	BwrapPath string

	// BlockNetwork runs spawns without network access.
	BlockNetwork bool

	// GracePeriod is the SIGTERM to SIGKILL delay on cancellation.
	GracePeriod time.Duration

	// Governor limits concurrent executions. Share it with the local
	// runner.
	Governor *governor.Governor

	// Environment computes each spawn's environment.
	Environment local.EnvironmentProvider

	// VerboseFailures includes the full command line in errors.
	VerboseFailures bool

	// Clock defaults to clock.Real().
	Clock clock.Clock

	// Logger for sandbox operations.
	Logger *slog.Logger
}

// Runner is the sandboxed backend.
type Runner struct {
	bwrapPath       string
	workRoot        string
	rootfsImage     string
	blockNetwork    bool
	gracePeriod     time.Duration
	governor        *governor.Governor
	environment     local.EnvironmentProvider
	verboseFailures bool
	clock           clock.Clock
	logger          *slog.Logger
}

// NewRunner creates a new Runner. It fails when bwrap cannot be found
// or WorkRoot cannot be prepared.
func NewRunner(config Config) (*Runner, error) {
	if config.WorkRoot == "" {
		return nil, fmt.Errorf("work root is required")
	}
	workRoot, err := filepath.Abs(config.WorkRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve work root: %w", err)
	}

	bwrapPath := config.BwrapPath
	if bwrapPath == "" {
		bwrapPath, err = BwrapPath()
		if err != nil {
			return nil, err
		}
	} else if _, err := os.Stat(bwrapPath); err != nil {
		return nil, fmt.Errorf("bwrap at %s: %w", bwrapPath, err)
	}

	if config.RootfsImage != "" {
		info, err := os.Stat(config.RootfsImage)
		if err != nil {
			return nil, fmt.Errorf("rootfs image: %w", err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("rootfs image %s is not a directory", config.RootfsImage)
		}
	}

	if err := os.MkdirAll(workRoot, 0755); err != nil {
		return nil, fmt.Errorf("creating sandbox work root: %w", err)
	}

	runner := &Runner{
		bwrapPath:       bwrapPath,
		workRoot:        workRoot,
		rootfsImage:     config.RootfsImage,
		blockNetwork:    config.BlockNetwork,
		gracePeriod:     config.GracePeriod,
		governor:        config.Governor,
		environment:     config.Environment,
		verboseFailures: config.VerboseFailures,
		clock:           config.Clock,
		logger:          config.Logger,
	}
	if runner.governor == nil {
		runner.governor = governor.New(0)
	}
	if runner.environment == nil {
		runner.environment = local.ProviderFor(runtime.GOOS, nil)
	}
	if runner.clock == nil {
		runner.clock = clock.Real()
	}
	if runner.logger == nil {
		runner.logger = slog.Default()
	}
	return runner, nil
}

// Kind implements spawn.Backend.
func (r *Runner) Kind() spawn.Kind { return spawn.KindSandboxed }

// Name implements spawn.Backend.
func (r *Runner) Name() string {
	if r.rootfsImage != "" {
		return "sandboxed(" + filepath.Base(r.rootfsImage) + ")"
	}
	return "sandboxed"
}

// WorkRoot returns the directory holding per-execution scratch space.
func (r *Runner) WorkRoot() string { return r.workRoot }

// Command returns the full bwrap invocation for s with the given scratch
// directory, without running it.
func (r *Runner) Command(s *spawn.Spawn, scratch string) ([]string, error) {
	env := make(map[string]string)
	for _, pair := range r.environment.Environment(s) {
		key, value, _ := strings.Cut(pair, "=")
		env[key] = value
	}

	builder := NewBwrapBuilder()
	args, err := builder.Build(&BwrapOptions{
		RootfsImage:  r.rootfsImage,
		ExecRoot:     s.WorkingDir,
		Scratch:      scratch,
		Env:          env,
		BlockNetwork: r.blockNetwork,
		Command:      s.Args,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build bwrap command: %w", err)
	}
	return append([]string{r.bwrapPath}, args...), nil
}

// Execute runs s inside a bwrap sandbox. Problems preparing or starting
// the sandbox are infrastructure failures; the command's own exit status
// is returned in the result.
func (r *Runner) Execute(ctx context.Context, s *spawn.Spawn) (*spawn.Result, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if err := r.governor.Acquire(ctx); err != nil {
		return nil, spawn.Failed(s, err, r.verboseFailures)
	}
	defer r.governor.Release()

	scratch, err := os.MkdirTemp(r.workRoot, "spawn-")
	if err != nil {
		return nil, spawn.Failed(s, spawn.Infrastructure(spawn.KindSandboxed,
			fmt.Errorf("creating scratch directory: %w", err)), r.verboseFailures)
	}
	defer func() {
		if err := os.RemoveAll(scratch); err != nil {
			r.logger.Warn("failed to remove sandbox scratch directory", "path", scratch, "error", err)
		}
	}()

	fullCmd, err := r.Command(s, scratch)
	if err != nil {
		return nil, spawn.Failed(s, spawn.Infrastructure(spawn.KindSandboxed, err), r.verboseFailures)
	}

	r.logger.Debug("running sandboxed spawn",
		"mnemonic", s.Mnemonic,
		"exec_root", s.WorkingDir,
		"rootfs", r.rootfsImage,
	)

	started := r.clock.Now()
	outcome, err := process.Run(ctx, process.Command{
		Path: fullCmd[0],
		Args: fullCmd[1:],
		// bwrap's own environment is visible in /proc/<pid>/environ from
		// inside the sandbox; keep it minimal. The spawn's environment
		// travels through --setenv.
		Env: []string{"PATH=/usr/local/bin:/usr/bin:/bin"},
		Dir: s.WorkingDir,
	}, process.Options{GracePeriod: r.gracePeriod, Clock: r.clock})
	if err != nil {
		if ctx.Err() != nil {
			return nil, spawn.Failed(s, err, r.verboseFailures)
		}
		return nil, spawn.Failed(s, spawn.Infrastructure(spawn.KindSandboxed, err), r.verboseFailures)
	}

	return &spawn.Result{
		ExitCode: outcome.ExitCode,
		Stdout:   outcome.Stdout,
		Stderr:   outcome.Stderr,
		Backend:  spawn.KindSandboxed,
		Duration: r.clock.Now().Sub(started),
	}, nil
}
