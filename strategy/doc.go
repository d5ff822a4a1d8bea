// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package strategy decides which backends run a build's spawns.
//
// [Resolve] reads the option registry and returns the ordered backends
// for one build:
//
//   - With an action cache configured (remote spawn cache or local disk
//     cache), a single caching backend whose delegate is a fresh
//     local/sandboxed chain.
//   - Otherwise, a remote-execution backend and a persistent-worker
//     backend, both falling back to one shared local/sandboxed chain.
//
// [BuildFallbackChain] builds that local/sandboxed chain. It prefers the
// bubblewrap sandbox (with a rootfs image when one is configured) and
// degrades to plain local execution when the sandbox cannot be set up.
// Degradation is logged, never returned. An option section that was
// never registered is different: it is a wiring bug and both functions
// return [config.ErrOptionsNotRegistered] without building anything.
//
// [WithFallback] composes two backends. The secondary only runs spawns
// the primary could not attempt (infrastructure failures); a command
// that ran and failed is the build's answer and is never retried.
package strategy
