// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package local

import (
	"context"
	"log/slog"
	"runtime"
	"time"

	"github.com/bureau-foundation/spawn/lib/clock"
	"github.com/bureau-foundation/spawn/lib/governor"
	"github.com/bureau-foundation/spawn/lib/process"
	"github.com/bureau-foundation/spawn/lib/spawn"
)

// Config holds configuration for creating a new Runner.
type Config struct {
	// Governor limits concurrent local executions. Defaults to a
	// governor sized to the CPU count; pass the shared instance so the
	// limit also covers sandboxed executions.
	Governor *governor.Governor

	// Environment computes each spawn's environment. Defaults to the
	// provider for runtime.GOOS with an empty client environment.
	Environment EnvironmentProvider

	// GracePeriod is the SIGTERM to SIGKILL delay on cancellation.
	GracePeriod time.Duration

	// VerboseFailures includes the full command line in errors.
	VerboseFailures bool

	// Clock defaults to clock.Real().
	Clock clock.Clock

	// Logger for runner operations.
	Logger *slog.Logger
}

// Runner is the plain local backend.
type Runner struct {
	governor        *governor.Governor
	environment     EnvironmentProvider
	gracePeriod     time.Duration
	verboseFailures bool
	clock           clock.Clock
	logger          *slog.Logger
}

// NewRunner creates a new Runner.
func NewRunner(config Config) *Runner {
	runner := &Runner{
		governor:        config.Governor,
		environment:     config.Environment,
		gracePeriod:     config.GracePeriod,
		verboseFailures: config.VerboseFailures,
		clock:           config.Clock,
		logger:          config.Logger,
	}
	if runner.governor == nil {
		runner.governor = governor.New(0)
	}
	if runner.environment == nil {
		runner.environment = ProviderFor(runtime.GOOS, nil)
	}
	if runner.clock == nil {
		runner.clock = clock.Real()
	}
	if runner.logger == nil {
		runner.logger = slog.Default()
	}
	return runner
}

// Kind implements spawn.Backend.
func (r *Runner) Kind() spawn.Kind { return spawn.KindLocal }

// Name implements spawn.Backend.
func (r *Runner) Name() string { return "local" }

// Execute runs s as a child process. Failures to start are returned as
// plain errors: nothing sits behind the local runner to fall back to.
func (r *Runner) Execute(ctx context.Context, s *spawn.Spawn) (*spawn.Result, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if err := r.governor.Acquire(ctx); err != nil {
		return nil, spawn.Failed(s, err, r.verboseFailures)
	}
	defer r.governor.Release()

	started := r.clock.Now()
	outcome, err := process.Run(ctx, process.Command{
		Path: s.Args[0],
		Args: s.Args[1:],
		Env:  r.environment.Environment(s),
		Dir:  s.WorkingDir,
	}, process.Options{GracePeriod: r.gracePeriod, Clock: r.clock})
	if err != nil {
		return nil, spawn.Failed(s, err, r.verboseFailures)
	}

	result := &spawn.Result{
		ExitCode: outcome.ExitCode,
		Stdout:   outcome.Stdout,
		Stderr:   outcome.Stderr,
		Backend:  spawn.KindLocal,
		Duration: r.clock.Now().Sub(started),
	}
	r.logger.Debug("local spawn finished",
		"mnemonic", s.Mnemonic,
		"exit_code", result.ExitCode,
		"duration", result.Duration,
	)
	return result, nil
}
