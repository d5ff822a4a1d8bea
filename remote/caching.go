// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package remote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/bureau-foundation/spawn/lib/atomicfile"
	"github.com/bureau-foundation/spawn/lib/clock"
	"github.com/bureau-foundation/spawn/lib/digest"
	"github.com/bureau-foundation/spawn/lib/spawn"
)

// Identifiers correlate remote requests with the build that issued
// them. They are passed through, never interpreted.
type Identifiers struct {
	BuildRequestID string
	CommandID      string
}

// CachingConfig holds configuration for creating a new CachingRunner.
type CachingConfig struct {
	// Cache is the action cache. Nil disables caching: every spawn goes
	// straight to Delegate.
	Cache ActionCache

	// Delegate runs spawns that miss the cache. Required.
	Delegate spawn.Backend

	// Identifiers are recorded with stored entries.
	Identifiers Identifiers

	// Clock defaults to clock.Real().
	Clock clock.Clock

	// Logger for cache operations.
	Logger *slog.Logger
}

// CachingRunner is the cache-augmented backend.
type CachingRunner struct {
	cache       ActionCache
	delegate    spawn.Backend
	identifiers Identifiers
	clock       clock.Clock
	logger      *slog.Logger
}

// NewCachingRunner creates a new CachingRunner.
func NewCachingRunner(config CachingConfig) (*CachingRunner, error) {
	if config.Delegate == nil {
		return nil, fmt.Errorf("delegate backend is required")
	}
	runner := &CachingRunner{
		cache:       config.Cache,
		delegate:    config.Delegate,
		identifiers: config.Identifiers,
		clock:       config.Clock,
		logger:      config.Logger,
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
func (r *CachingRunner) Kind() spawn.Kind { return spawn.KindRemoteCache }

// Name implements spawn.Backend.
func (r *CachingRunner) Name() string {
	return spawn.KindRemoteCache.String() + " -> " + r.delegate.Name()
}

// Cache returns the action cache, or nil when caching is disabled.
func (r *CachingRunner) Cache() ActionCache { return r.cache }

// Execute serves s from the cache or runs it on the delegate.
func (r *CachingRunner) Execute(ctx context.Context, s *spawn.Spawn) (*spawn.Result, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if _, noCache := s.ExecutionInfo[spawn.InfoNoCache]; noCache || r.cache == nil {
		return r.delegate.Execute(ctx, s)
	}

	logger := r.logger.With("mnemonic", s.Mnemonic, "command_id", r.identifiers.CommandID)

	key, err := ActionKey(s)
	if err != nil {
		logger.Warn("cannot compute action key, running uncached", "error", err)
		return r.delegate.Execute(ctx, s)
	}
	logger = logger.With("action_key", key.String())

	started := r.clock.Now()
	entry, found, err := r.cache.Lookup(ctx, key)
	switch {
	case err != nil:
		logger.Warn("action cache lookup failed", "error", err)
	case found:
		if err := r.materialize(ctx, s, entry); err != nil {
			logger.Warn("cached outputs unavailable, running action", "error", err)
			break
		}
		logger.Debug("action cache hit")
		return &spawn.Result{
			ExitCode: entry.ExitCode,
			Stdout:   entry.Stdout,
			Stderr:   entry.Stderr,
			Backend:  spawn.KindRemoteCache,
			CacheHit: true,
			Duration: r.clock.Now().Sub(started),
		}, nil
	}

	result, err := r.delegate.Execute(ctx, s)
	if err != nil {
		return nil, err
	}
	if result.Succeeded() {
		if err := r.store(ctx, s, key, result); err != nil {
			logger.Warn("failed to store action result", "error", err)
		}
	}
	return result, nil
}

// materialize writes every output of entry into the spawn's working
// directory, replacing existing files. Nothing is written unless every
// entry path is one of the spawn's declared outputs.
func (r *CachingRunner) materialize(ctx context.Context, s *spawn.Spawn, entry *Entry) error {
	if err := checkEntryOutputs(s, entry); err != nil {
		return err
	}
	for _, output := range entry.Outputs {
		target := filepath.Join(s.WorkingDir, filepath.FromSlash(output.Path))
		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return err
		}
		reader, err := r.cache.Blob(ctx, output.Digest)
		if err != nil {
			return fmt.Errorf("fetching %s: %w", output.Path, err)
		}
		_, err = atomicfile.WriteFrom(target, reader, os.FileMode(output.Mode)&os.ModePerm)
		reader.Close()
		if err != nil {
			return err
		}
		written, err := digest.File(target)
		if err != nil {
			return err
		}
		if written != output.Digest {
			return fmt.Errorf("output %s has digest %s, cache recorded %s", output.Path, written, output.Digest)
		}
	}
	return nil
}

// checkEntryOutputs rejects entries naming paths outside the working
// directory or outputs the spawn does not declare.
func checkEntryOutputs(s *spawn.Spawn, entry *Entry) error {
	declared := make(map[string]bool, len(s.Outputs))
	for _, output := range s.Outputs {
		declared[outputPath(output)] = true
	}
	for _, output := range entry.Outputs {
		if !filepath.IsLocal(filepath.FromSlash(output.Path)) {
			return fmt.Errorf("cache entry output %q escapes the working directory", output.Path)
		}
		if !declared[output.Path] {
			return fmt.Errorf("cache entry output %q is not a declared output", output.Path)
		}
	}
	return nil
}

// outputPath is the slash-separated form outputs are recorded under.
func outputPath(output string) string {
	return filepath.ToSlash(filepath.Clean(output))
}

// store records a successful result. Every declared output must exist.
func (r *CachingRunner) store(ctx context.Context, s *spawn.Spawn, key digest.Hash, result *spawn.Result) error {
	entry := &Entry{
		ExitCode:  result.ExitCode,
		Stdout:    result.Stdout,
		Stderr:    result.Stderr,
		Outputs:   make([]OutputFile, 0, len(s.Outputs)),
		CommandID: r.identifiers.CommandID,
	}
	blobs := make(map[digest.Hash]string, len(s.Outputs))
	for _, output := range s.Outputs {
		path := filepath.Join(s.WorkingDir, output)
		info, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("declared output %s: %w", output, err)
		}
		if !info.Mode().IsRegular() {
			return errors.New("declared output " + output + " is not a regular file")
		}
		hash, err := digest.File(path)
		if err != nil {
			return err
		}
		entry.Outputs = append(entry.Outputs, OutputFile{
			Path:   outputPath(output),
			Digest: hash,
			Size:   info.Size(),
			Mode:   uint32(info.Mode().Perm()),
		})
		blobs[hash] = path
	}
	return r.cache.Store(ctx, key, entry, blobs)
}
