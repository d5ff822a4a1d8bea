// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/spawn/lib/config"
	"github.com/bureau-foundation/spawn/local"
	"github.com/bureau-foundation/spawn/strategy"
	"github.com/bureau-foundation/spawn/worker"
)

// commonFlags are accepted by every subcommand that resolves strategies.
type commonFlags struct {
	configPath      string
	outputBase      string
	verboseFailures bool
}

func (f *commonFlags) register(flagSet *pflag.FlagSet) {
	flagSet.StringVar(&f.configPath, "config", "", "config file (default: $BUREAU_SPAWN_CONFIG, else built-in defaults)")
	flagSet.StringVar(&f.outputBase, "output-base", "", "build output base (default: ~/.cache/bureau-spawn/output)")
	flagSet.BoolVar(&f.verboseFailures, "verbose-failures", false, "include the full command line in failure messages")
}

// loadConfig reads the config file named by --config or
// BUREAU_SPAWN_CONFIG. With neither, the defaults are used.
func (f *commonFlags) loadConfig() (*config.Config, error) {
	path := f.configPath
	if path == "" {
		path = os.Getenv("BUREAU_SPAWN_CONFIG")
	}
	var cfg *config.Config
	if path == "" {
		cfg = config.Default()
	} else {
		loaded, err := config.LoadFile(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if f.verboseFailures {
		cfg.Execution.VerboseFailures = true
	}
	return cfg, nil
}

func (f *commonFlags) resolvedOutputBase() (string, error) {
	if f.outputBase != "" {
		return filepath.Abs(f.outputBase)
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("determining output base: %w", err)
	}
	return filepath.Join(homeDir, ".cache", "bureau-spawn", "output"), nil
}

// environment assembles the strategy environment for this process.
func (f *commonFlags) environment(logger *slog.Logger) (*strategy.Environment, error) {
	cfg, err := f.loadConfig()
	if err != nil {
		return nil, err
	}
	outputBase, err := f.resolvedOutputBase()
	if err != nil {
		return nil, err
	}
	return &strategy.Environment{
		Options:        cfg.Options(),
		OutputBase:     outputBase,
		ClientEnv:      local.ClientEnvironment(os.Environ()),
		WorkerProvider: worker.Unavailable{},
		Logger:         logger,
	}, nil
}

// parseFlags parses args, printing usage for --help. It reports false
// when the caller should return without running.
func parseFlags(flagSet *pflag.FlagSet, args []string) (bool, error) {
	flagSet.BoolP("help", "h", false, "show help")
	if err := flagSet.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			flagSet.PrintDefaults()
			return false, nil
		}
		return false, err
	}
	if help, _ := flagSet.GetBool("help"); help {
		fmt.Fprintf(os.Stderr, "Usage of %s:\n", flagSet.Name())
		flagSet.PrintDefaults()
		return false, nil
	}
	return true, nil
}
