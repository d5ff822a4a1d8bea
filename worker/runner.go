// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/bureau-foundation/spawn/lib/clock"
	"github.com/bureau-foundation/spawn/lib/config"
	"github.com/bureau-foundation/spawn/lib/spawn"
)

// ErrNotEligible is the infrastructure cause for spawns that cannot run
// on a worker.
var ErrNotEligible = errors.New("spawn is not eligible for a persistent worker")

// Config holds configuration for creating a new Runner.
type Config struct {
	// Provider builds the worker pool. Defaults to Unavailable.
	Provider Provider

	// Options are passed to the provider and decide which mnemonics
	// may use workers.
	Options *config.WorkerOptions

	// Clock defaults to clock.Real().
	Clock clock.Clock

	// Logger for worker operations.
	Logger *slog.Logger
}

// Runner is the persistent-worker backend.
type Runner struct {
	pool    Pool
	poolErr error
	options *config.WorkerOptions
	clock   clock.Clock
	logger  *slog.Logger

	closeOnce sync.Once
	closeErr  error
}

// NewRunner creates a new Runner. A provider that cannot build a pool
// does not fail construction: the error is logged and every spawn is
// reported as an infrastructure failure.
func NewRunner(config Config) *Runner {
	runner := &Runner{
		options: config.Options,
		clock:   config.Clock,
		logger:  config.Logger,
	}
	if runner.options == nil {
		runner.options = defaultOptions()
	}
	if runner.clock == nil {
		runner.clock = clock.Real()
	}
	if runner.logger == nil {
		runner.logger = slog.Default()
	}

	provider := config.Provider
	if provider == nil {
		provider = Unavailable{}
	}
	runner.pool, runner.poolErr = provider.Pool(runner.options)
	if runner.poolErr == nil && runner.pool == nil {
		runner.poolErr = errors.New("worker provider returned no pool")
	}
	if runner.poolErr != nil {
		runner.logger.Info("persistent workers disabled", "error", runner.poolErr)
	}
	return runner
}

func defaultOptions() *config.WorkerOptions { return &config.WorkerOptions{} }

// Kind implements spawn.Backend.
func (r *Runner) Kind() spawn.Kind { return spawn.KindWorker }

// Name implements spawn.Backend.
func (r *Runner) Name() string { return spawn.KindWorker.String() }

// Execute runs s on a pooled worker.
func (r *Runner) Execute(ctx context.Context, s *spawn.Spawn) (*spawn.Result, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if r.poolErr != nil {
		return nil, spawn.Infrastructure(spawn.KindWorker, r.poolErr)
	}
	if err := r.eligible(s); err != nil {
		return nil, spawn.Infrastructure(spawn.KindWorker, err)
	}

	startup, flagfile := s.Args[:len(s.Args)-1], flagfilePath(s.Args[len(s.Args)-1])
	arguments, err := readFlagfile(filepath.Join(s.WorkingDir, flagfile))
	if err != nil {
		return nil, spawn.Infrastructure(spawn.KindWorker, err)
	}

	key := NewKey(s.Mnemonic, s.WorkingDir, startup, s.EnvList())
	started := r.clock.Now()

	worker, err := r.pool.Borrow(ctx, key)
	if err != nil {
		return nil, r.failure(ctx, fmt.Errorf("borrowing %s worker: %w", s.Mnemonic, err))
	}
	response, err := worker.Do(ctx, Request{Arguments: arguments, Inputs: s.Inputs})
	if err == nil && response == nil {
		err = errors.New("worker returned no response")
	}
	if err != nil {
		r.pool.Invalidate(key, worker)
		return nil, r.failure(ctx, fmt.Errorf("%s worker request: %w", s.Mnemonic, err))
	}
	r.pool.Return(key, worker)

	return &spawn.Result{
		ExitCode: response.ExitCode,
		Stderr:   []byte(response.Output),
		Backend:  spawn.KindWorker,
		Duration: r.clock.Now().Sub(started),
	}, nil
}

// BuildComplete closes the pool when the options ask for workers to
// stop at the end of each build. It is safe to call more than once.
func (r *Runner) BuildComplete() error {
	if !r.options.QuitAfterBuild {
		return nil
	}
	return r.Close()
}

// Close stops every pooled worker. Calls after the first return the
// first result.
func (r *Runner) Close() error {
	r.closeOnce.Do(func() {
		if r.pool != nil {
			r.closeErr = r.pool.Close()
		}
	})
	return r.closeErr
}

func (r *Runner) eligible(s *spawn.Spawn) error {
	if !s.HasInfo(spawn.InfoSupportsWorkers) {
		return fmt.Errorf("%w: %s spawn does not declare %s", ErrNotEligible, s.Mnemonic, spawn.InfoSupportsWorkers)
	}
	if !r.options.AllowsMnemonic(s.Mnemonic) {
		return fmt.Errorf("%w: mnemonic %s is not enabled for workers", ErrNotEligible, s.Mnemonic)
	}
	if flagfilePath(s.Args[len(s.Args)-1]) == "" {
		return fmt.Errorf("%w: %s spawn has no flagfile argument", ErrNotEligible, s.Mnemonic)
	}
	return nil
}

// failure classifies a pool or worker error. Cancellation is returned
// as is so the fallback does not rerun a cancelled spawn.
func (r *Runner) failure(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return err
	}
	return spawn.Infrastructure(spawn.KindWorker, err)
}

// flagfilePath returns the path named by a flagfile argument, or "" if
// arg is not one.
func flagfilePath(arg string) string {
	switch {
	case strings.HasPrefix(arg, "@") && len(arg) > 1:
		return arg[1:]
	case strings.HasPrefix(arg, "--flagfile="):
		return strings.TrimPrefix(arg, "--flagfile=")
	}
	return ""
}

func readFlagfile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading flagfile: %w", err)
	}
	var arguments []string
	for _, line := range strings.Split(string(data), "\n") {
		if line = strings.TrimSuffix(line, "\r"); line != "" {
			arguments = append(arguments, line)
		}
	}
	return arguments, nil
}
