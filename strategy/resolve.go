// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package strategy

import (
	"context"
	"errors"
	"sync"

	"github.com/bureau-foundation/spawn/lib/config"
	"github.com/bureau-foundation/spawn/lib/spawn"
	"github.com/bureau-foundation/spawn/remote"
	"github.com/bureau-foundation/spawn/remote/diskcache"
	"github.com/bureau-foundation/spawn/worker"
)

// Resolution is the set of backends resolved for one build, plus the
// resources they hold until the execution phase ends.
type Resolution struct {
	backends []spawn.Backend
	cache    remote.ActionCache
	workers  *worker.Runner

	completeOnce sync.Once
	completeErr  error
}

// Backends returns the resolved backends in preference order.
func (r *Resolution) Backends() []spawn.Backend {
	return append([]spawn.Backend(nil), r.backends...)
}

// ExecutionPhaseComplete releases the action cache connection and, when
// configured to, the persistent workers. Only the first call does
// anything; later calls return the first call's error.
func (r *Resolution) ExecutionPhaseComplete() error {
	r.completeOnce.Do(func() {
		var errs []error
		if r.workers != nil {
			if err := r.workers.BuildComplete(); err != nil {
				errs = append(errs, err)
			}
		}
		if r.cache != nil {
			if err := r.cache.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		r.completeErr = errors.Join(errs...)
	})
	return r.completeErr
}

// Resolve builds the backends for one build. The identifiers are passed
// through to remote services.
//
// When an action cache is enabled the result is a single caching backend
// over a local/sandboxed chain. Otherwise it is a remote-execution
// backend followed by a persistent-worker backend, both falling back to
// one shared local/sandboxed chain. Unregistered option sections fail
// with config.ErrOptionsNotRegistered before anything is built.
func Resolve(ctx context.Context, env *Environment, buildRequestID, commandID string) (*Resolution, error) {
	remoteOptions, err := env.Options.Remote()
	if err != nil {
		return nil, err
	}
	execution, err := env.Options.Execution()
	if err != nil {
		return nil, err
	}
	sandboxOptions, err := env.Options.Sandbox()
	if err != nil {
		return nil, err
	}

	logger := env.logger()
	identifiers := remote.Identifiers{BuildRequestID: buildRequestID, CommandID: commandID}

	if remoteOptions.CacheEnabled() {
		cache := openCache(ctx, env, remoteOptions)
		caching, err := remote.NewCachingRunner(remote.CachingConfig{
			Cache:       cache,
			Delegate:    buildFallbackChain(ctx, env, execution, sandboxOptions),
			Identifiers: identifiers,
			Clock:       env.Clock,
			Logger:      logger,
		})
		if err != nil {
			if cache != nil {
				cache.Close()
			}
			return nil, err
		}
		return &Resolution{backends: []spawn.Backend{caching}, cache: cache}, nil
	}

	workerOptions, err := env.Options.Worker()
	if err != nil {
		return nil, err
	}

	chain := buildFallbackChain(ctx, env, execution, sandboxOptions)

	executor := env.WorkExecutor
	if !remoteOptions.Executor {
		executor = nil
	}
	remoteRunner := remote.NewExecutionRunner(remote.ExecutionConfig{
		Executor:    executor,
		Identifiers: identifiers,
		Logger:      logger,
	})
	workers := worker.NewRunner(worker.Config{
		Provider: env.WorkerProvider,
		Options:  workerOptions,
		Clock:    env.Clock,
		Logger:   logger,
	})

	return &Resolution{
		backends: []spawn.Backend{
			WithFallback(remoteRunner, chain, logger),
			WithFallback(workers, chain, logger),
		},
		workers: workers,
	}, nil
}

// openCache opens every configured cache tier: the local disk cache
// first, then the remote cache. Tiers that cannot be opened are logged
// and skipped; with none left the caching backend runs uncached.
func openCache(ctx context.Context, env *Environment, options *config.RemoteOptions) remote.ActionCache {
	logger := env.logger()
	var tiers []remote.ActionCache

	if options.DiskCache != "" {
		disk, err := diskcache.Open(options.DiskCache)
		if err != nil {
			logger.Warn("disk cache unavailable", "path", options.DiskCache, "error", err)
		} else {
			tiers = append(tiers, disk)
		}
	}

	if options.SpawnCache {
		if env.RemoteCache == nil {
			logger.Warn("remote spawn cache enabled but no remote cache client is available")
		} else if cache, err := env.RemoteCache(ctx, options); err != nil {
			logger.Warn("remote cache unavailable", "endpoint", options.Endpoint, "error", err)
		} else if cache != nil {
			tiers = append(tiers, cache)
		}
	}

	switch len(tiers) {
	case 0:
		logger.Warn("no action cache could be opened, running uncached")
		return nil
	case 1:
		return tiers[0]
	default:
		return remote.Tiered(tiers...)
	}
}
