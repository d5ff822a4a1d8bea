// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package worker runs spawns on persistent worker processes.
//
// A worker is a long-lived tool process (a compiler server, say) that
// accepts one request per action instead of being started per action.
// This package does not start or speak to workers itself. A [Provider]
// supplies a [Pool] built from the worker options, and [Runner] borrows a
// [Worker] for each eligible spawn, sends it a [Request], and returns it
// to the pool.
//
// A spawn is eligible when it sets the supports-workers execution info to
// "1", its mnemonic is allowed by the worker options, and its last
// argument names a flagfile (@path or --flagfile=path). The flagfile's
// lines become the request arguments; everything before it is the
// worker's startup command line and part of its [Key]. Ineligible spawns
// and every pool or worker failure are reported as infrastructure errors
// so the composed fallback runs the spawn instead.
package worker
