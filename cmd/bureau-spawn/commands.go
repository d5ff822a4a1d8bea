// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/pflag"

	"github.com/bureau-foundation/spawn/lib/spawn"
	"github.com/bureau-foundation/spawn/local"
	"github.com/bureau-foundation/spawn/rootfs"
	"github.com/bureau-foundation/spawn/sandbox"
	"github.com/bureau-foundation/spawn/strategy"
)

func runCommand(ctx context.Context, args []string) error {
	var common commonFlags
	var mnemonic string
	var inputs, outputs []string
	var noCache bool

	flagSet := pflag.NewFlagSet("run", pflag.ContinueOnError)
	common.register(flagSet)
	flagSet.StringVar(&mnemonic, "mnemonic", "Run", "action mnemonic")
	flagSet.StringSliceVar(&inputs, "input", nil, "declared input file, relative to the current directory (repeatable)")
	flagSet.StringSliceVar(&outputs, "output", nil, "declared output file, relative to the current directory (repeatable)")
	flagSet.BoolVar(&noCache, "no-cache", false, "bypass the action cache")
	if proceed, err := parseFlags(flagSet, args); !proceed {
		return err
	}

	command := flagSet.Args()
	if len(command) == 0 {
		return fmt.Errorf("run requires a command (use -- before the command)")
	}

	logger := newLogger()
	env, err := common.environment(logger)
	if err != nil {
		return err
	}
	workingDir, err := os.Getwd()
	if err != nil {
		return err
	}

	resolution, err := strategy.Resolve(ctx, env, newID("build"), newID("command"))
	if err != nil {
		return err
	}
	defer func() {
		if err := resolution.ExecutionPhaseComplete(); err != nil {
			logger.Warn("releasing execution resources", "error", err)
		}
	}()

	s := &spawn.Spawn{
		Mnemonic:   mnemonic,
		Args:       command,
		Env:        local.ClientEnvironment(os.Environ()),
		Inputs:     inputs,
		Outputs:    outputs,
		WorkingDir: workingDir,
	}
	if noCache {
		s.ExecutionInfo = map[string]string{spawn.InfoNoCache: ""}
	}

	backend := resolution.Backends()[0]
	logger.Debug("running spawn", "backend", backend.Name(), "command", s.CommandLine())

	result, err := backend.Execute(ctx, s)
	if err != nil {
		return err
	}
	os.Stdout.Write(result.Stdout)
	os.Stderr.Write(result.Stderr)
	logger.Debug("spawn finished",
		"backend", result.Backend.String(),
		"exit_code", result.ExitCode,
		"cache_hit", result.CacheHit,
		"duration", result.Duration,
	)
	if !result.Succeeded() {
		return &spawn.ExitError{Code: result.ExitCode}
	}
	return nil
}

func strategiesCommand(ctx context.Context, args []string) error {
	var common commonFlags
	flagSet := pflag.NewFlagSet("strategies", pflag.ContinueOnError)
	common.register(flagSet)
	if proceed, err := parseFlags(flagSet, args); !proceed {
		return err
	}

	env, err := common.environment(newLogger())
	if err != nil {
		return err
	}
	resolution, err := strategy.Resolve(ctx, env, newID("build"), newID("command"))
	if err != nil {
		return err
	}
	defer resolution.ExecutionPhaseComplete()

	for index, backend := range resolution.Backends() {
		fmt.Printf("%d. %s\n", index+1, backend.Name())
	}
	if caps := sandbox.DetectCapabilities(); !caps.Usable() {
		fmt.Printf("sandbox unavailable: %s\n", caps.SkipReason())
	} else if !caps.Network {
		fmt.Println("sandbox cannot block network access on this host")
	}
	return nil
}

func rootfsCommand(ctx context.Context, args []string) error {
	if len(args) == 0 || args[0] != "fetch" {
		return fmt.Errorf("usage: bureau-spawn rootfs fetch [flags] <url|path>")
	}

	var common commonFlags
	var imagesDir string
	flagSet := pflag.NewFlagSet("rootfs fetch", pflag.ContinueOnError)
	common.register(flagSet)
	flagSet.StringVar(&imagesDir, "images-dir", "", "image cache directory (default: sandbox.images_dir)")
	if proceed, err := parseFlags(flagSet, args[1:]); !proceed {
		return err
	}
	if flagSet.NArg() != 1 {
		return fmt.Errorf("rootfs fetch requires exactly one archive URL or path")
	}

	cfg, err := common.loadConfig()
	if err != nil {
		return err
	}
	if imagesDir == "" {
		imagesDir = cfg.Sandbox.ImagesDir
	}

	logger := newLogger()
	cache, err := rootfs.New(rootfs.Config{
		ImagesRoot: imagesDir,
		Reporter:   rootfs.LogReporter{Logger: logger},
		Logger:     logger,
	})
	if err != nil {
		return err
	}
	image, err := cache.ImagePathFor(ctx, flagSet.Arg(0))
	if err != nil {
		return err
	}
	for _, diagnostic := range cache.Diagnostics() {
		fmt.Fprintf(os.Stderr, "skipped %s\n", diagnostic)
	}
	fmt.Println(image)
	return nil
}

// newID returns an identifier for correlating this invocation's remote
// requests.
func newID(kind string) string {
	return kind + "-" + uuid.NewString()
}
