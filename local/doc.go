// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package local runs spawns as plain child processes on this machine.
//
// [Runner] is the last link of every fallback chain: when neither the
// sandbox nor any remote service can take a spawn, it runs here. Each
// execution holds a slot of the shared [governor.Governor], runs in its
// own process group, and on cancellation is stopped with SIGTERM followed
// by SIGKILL after the configured grace period.
//
// The environment a command sees is the spawn's own Env plus whatever
// the platform's [EnvironmentProvider] adds. [ProviderFor] picks the
// provider for a GOOS value: [DarwinEnvironment] on macOS, which exposes
// the Xcode developer directory to spawns that ask for it, and
// [PosixEnvironment] everywhere else.
package local
