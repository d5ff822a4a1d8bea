// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// bureau-spawn resolves execution strategies and runs commands through
// them.
//
// Usage:
//
//	bureau-spawn run [flags] -- <command> [args...]
//	bureau-spawn strategies [flags]
//	bureau-spawn rootfs fetch [flags] <url|path>
//	bureau-spawn version
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/bureau-foundation/spawn/lib/process"
	"github.com/bureau-foundation/spawn/lib/spawn"
	"github.com/bureau-foundation/spawn/lib/version"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	command := os.Args[1]
	args := os.Args[2:]

	var err error
	switch command {
	case "run":
		err = runCommand(ctx, args)
	case "strategies":
		err = strategiesCommand(ctx, args)
	case "rootfs":
		err = rootfsCommand(ctx, args)
	case "version", "--version", "-v":
		fmt.Printf("bureau-spawn %s\n", version.Full())
		return
	case "help", "--help", "-h":
		printUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		stop()
		if code, ok := spawn.IsExitError(err); ok {
			os.Exit(code)
		}
		process.Fatal(err)
	}
}

func printUsage() {
	fmt.Print(`bureau-spawn - Run commands through resolved execution strategies

USAGE
    bureau-spawn <command> [flags] [-- <args>...]

COMMANDS
    run           Run a command through the first resolved backend
    strategies    Print the resolved backend chain
    rootfs fetch  Extract a rootfs archive into the image cache
    version       Show version

EXAMPLES
    # Run a command in the sandbox (or locally if bwrap is missing)
    bureau-spawn run -- make -C src

    # Show which backends a config resolves to
    bureau-spawn strategies --config ~/.config/bureau-spawn.yaml

    # Pre-populate the rootfs image cache
    bureau-spawn rootfs fetch https://example.com/rootfs.tar.gz

ENVIRONMENT
    BUREAU_SPAWN_CONFIG  Path to the config file (overridden by --config)
    BUREAU_DEBUG         Enable debug logging
`)
}
