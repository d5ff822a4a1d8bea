// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package remote provides the cache-augmented and remote-execution
// backends.
//
// The wire protocol to a remote service is not implemented here. The
// backends talk to two injected interfaces: [ActionCache], a store of
// completed action results keyed by [ActionKey], and [WorkExecutor],
// which runs a spawn somewhere else. The disk cache in package
// remote/diskcache implements ActionCache locally; [Tiered] layers
// several caches.
//
// [CachingRunner] serves a spawn from the cache when it can and otherwise
// runs it on its delegate (the local or sandboxed chain), storing
// successful results for next time. Cache problems never fail a spawn:
// a lookup error is a miss and a store error is logged.
//
// [ExecutionRunner] forwards spawns to the executor. Without an executor,
// or when the executor fails, it reports an infrastructure failure so a
// fallback decorator runs the spawn locally instead.
package remote
