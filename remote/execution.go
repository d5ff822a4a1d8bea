// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package remote

import (
	"context"
	"errors"
	"log/slog"

	"github.com/bureau-foundation/spawn/lib/spawn"
)

// ErrNoExecutor is the infrastructure cause reported when remote
// execution has no executor to send spawns to.
var ErrNoExecutor = errors.New("no remote executor configured")

// WorkExecutor runs a spawn on a remote service. A non-zero exit is a
// result, not an error; errors mean the service could not run the spawn.
type WorkExecutor interface {
	Execute(ctx context.Context, spawn *spawn.Spawn, identifiers Identifiers) (*spawn.Result, error)
}

// ExecutionConfig holds configuration for creating a new ExecutionRunner.
type ExecutionConfig struct {
	// Executor runs spawns remotely. Nil makes every spawn an
	// infrastructure failure, so the fallback runs it.
	Executor WorkExecutor

	// Identifiers are passed to the executor with every spawn.
	Identifiers Identifiers

	// Logger for executor operations.
	Logger *slog.Logger
}

// ExecutionRunner is the remote-execution backend.
type ExecutionRunner struct {
	executor    WorkExecutor
	identifiers Identifiers
	logger      *slog.Logger
}

// NewExecutionRunner creates a new ExecutionRunner.
func NewExecutionRunner(config ExecutionConfig) *ExecutionRunner {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &ExecutionRunner{
		executor:    config.Executor,
		identifiers: config.Identifiers,
		logger:      logger,
	}
}

// Kind implements spawn.Backend.
func (r *ExecutionRunner) Kind() spawn.Kind { return spawn.KindRemoteExecution }

// Name implements spawn.Backend.
func (r *ExecutionRunner) Name() string { return spawn.KindRemoteExecution.String() }

// Execute sends s to the executor. Executor errors are reported as
// infrastructure failures unless ctx was cancelled.
func (r *ExecutionRunner) Execute(ctx context.Context, s *spawn.Spawn) (*spawn.Result, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if r.executor == nil {
		return nil, spawn.Infrastructure(spawn.KindRemoteExecution, ErrNoExecutor)
	}

	result, err := r.executor.Execute(ctx, s, r.identifiers)
	if err != nil {
		if ctx.Err() != nil || spawn.IsInfrastructure(err) {
			return nil, err
		}
		return nil, spawn.Infrastructure(spawn.KindRemoteExecution, err)
	}
	if result == nil {
		return nil, spawn.Infrastructure(spawn.KindRemoteExecution, errors.New("executor returned no result"))
	}
	result.Backend = spawn.KindRemoteExecution
	r.logger.Debug("remote spawn finished",
		"mnemonic", s.Mnemonic,
		"command_id", r.identifiers.CommandID,
		"exit_code", result.ExitCode,
	)
	return result, nil
}
