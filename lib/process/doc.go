// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package process runs commands for execution backends and provides the
// binary entrypoint error handler.
//
// [Run] starts a command in its own process group with captured output.
// When the context is cancelled the whole group receives SIGTERM, and
// SIGKILL follows once the grace period has elapsed. A zero grace period
// sends SIGKILL straight away. Signalling the group rather than the
// leader matters for build actions: compilers and shell wrappers fork
// children that would otherwise keep the output pipes open and block the
// caller after the leader has exited.
//
// [Fatal] reports an error to stderr when the structured logger may not
// be initialized, and exits.
package process
