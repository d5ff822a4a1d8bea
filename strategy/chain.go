// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package strategy

import (
	"context"
	"log/slog"
	"path/filepath"
	"runtime"

	"github.com/bureau-foundation/spawn/lib/clock"
	"github.com/bureau-foundation/spawn/lib/config"
	"github.com/bureau-foundation/spawn/lib/digest"
	"github.com/bureau-foundation/spawn/lib/governor"
	"github.com/bureau-foundation/spawn/lib/spawn"
	"github.com/bureau-foundation/spawn/local"
	"github.com/bureau-foundation/spawn/remote"
	"github.com/bureau-foundation/spawn/rootfs"
	"github.com/bureau-foundation/spawn/sandbox"
	"github.com/bureau-foundation/spawn/worker"
)

// RemoteCacheFactory opens the remote action cache described by the
// remote options. The resolver closes what it returns at the end of the
// execution phase.
type RemoteCacheFactory func(ctx context.Context, options *config.RemoteOptions) (remote.ActionCache, error)

// Environment is everything strategy construction depends on. Nothing is
// looked up globally.
type Environment struct {
	// Options is the option registry. Required.
	Options *config.Options

	// OutputBase is the build's output base directory. Sandbox work
	// directories are derived from it.
	OutputBase string

	// ClientEnv is the environment of the build client.
	ClientEnv map[string]string

	// GOOS selects the environment provider. Defaults to runtime.GOOS.
	GOOS string

	// Governor is shared by the local and sandboxed backends. Defaults
	// to a governor sized by the execution options.
	Governor *governor.Governor

	// WorkerProvider supplies persistent worker pools. Defaults to
	// worker.Unavailable.
	WorkerProvider worker.Provider

	// RemoteCache opens the remote action cache when spawn_cache is
	// enabled. Nil means no remote cache can be reached.
	RemoteCache RemoteCacheFactory

	// WorkExecutor runs spawns remotely. Nil makes remote execution
	// fall back for every spawn.
	WorkExecutor remote.WorkExecutor

	// BwrapPath overrides discovery of the bwrap binary.
	BwrapPath string

	// Reporter receives rootfs extraction progress.
	Reporter rootfs.Reporter

	// Clock defaults to clock.Real().
	Clock clock.Clock

	// Logger for strategy construction and the backends built.
	Logger *slog.Logger
}

func (e *Environment) logger() *slog.Logger {
	if e.Logger == nil {
		return slog.Default()
	}
	return e.Logger
}

func (e *Environment) goos() string {
	if e.GOOS == "" {
		return runtime.GOOS
	}
	return e.GOOS
}

func (e *Environment) clock() clock.Clock {
	if e.Clock == nil {
		return clock.Real()
	}
	return e.Clock
}

// SandboxRoot returns the directory holding sandbox work directories.
// Without a base directory it lives in the output base. With one, it is
// namespaced by the MD5 of the output base so concurrent builds sharing
// the base do not collide.
func SandboxRoot(outputBase, baseDir, productName string) string {
	name := productName + "-sandbox"
	if baseDir == "" {
		return filepath.Join(outputBase, name)
	}
	return filepath.Join(baseDir, name, digest.MD5Hex(outputBase))
}

// BuildFallbackChain builds the local/sandboxed backend. Failing to set
// up the sandbox or its rootfs image degrades to the plain local runner;
// the only error is an unregistered option section.
func BuildFallbackChain(ctx context.Context, env *Environment) (spawn.Backend, error) {
	execution, err := env.Options.Execution()
	if err != nil {
		return nil, err
	}
	sandboxOptions, err := env.Options.Sandbox()
	if err != nil {
		return nil, err
	}
	return buildFallbackChain(ctx, env, execution, sandboxOptions), nil
}

func buildFallbackChain(ctx context.Context, env *Environment, execution *config.ExecutionOptions, sandboxOptions *config.SandboxOptions) spawn.Backend {
	logger := env.logger()
	shared := env.Governor
	if shared == nil {
		shared = governor.New(execution.LocalJobs)
	}
	environment := local.ProviderFor(env.goos(), env.ClientEnv)

	localRunner := func() spawn.Backend {
		return local.NewRunner(local.Config{
			Governor:        shared,
			Environment:     environment,
			GracePeriod:     execution.GracePeriod(),
			VerboseFailures: execution.VerboseFailures,
			Clock:           env.Clock,
			Logger:          logger,
		})
	}

	if env.goos() != "linux" {
		return localRunner()
	}

	image, err := rootfsImage(ctx, env, sandboxOptions)
	if err != nil {
		logger.Warn("sandbox rootfs unavailable, using local execution",
			"rootfs", sandboxOptions.Rootfs,
			"error", err,
		)
		return localRunner()
	}

	runner, err := sandbox.NewRunner(sandbox.Config{
		WorkRoot:        SandboxRoot(env.OutputBase, sandboxOptions.BaseDir, sandboxOptions.ProductName),
		RootfsImage:     image,
		BwrapPath:       env.BwrapPath,
		BlockNetwork:    sandboxOptions.BlockNetwork,
		GracePeriod:     execution.GracePeriod(),
		Governor:        shared,
		Environment:     environment,
		VerboseFailures: execution.VerboseFailures,
		Clock:           env.Clock,
		Logger:          logger,
	})
	if err != nil {
		logger.Warn("sandboxed execution unavailable, using local execution", "error", err)
		return localRunner()
	}
	return runner
}

// rootfsImage extracts (or finds) the configured rootfs image. No
// configured rootfs is not an error: the sandbox shares the host root.
func rootfsImage(ctx context.Context, env *Environment, options *config.SandboxOptions) (string, error) {
	if options.Rootfs == "" {
		return "", nil
	}
	cache, err := rootfs.New(rootfs.Config{
		ImagesRoot: options.ImagesDir,
		Reporter:   env.Reporter,
		Logger:     env.logger(),
	})
	if err != nil {
		return "", err
	}
	return cache.ImagePathFor(ctx, options.Rootfs)
}
