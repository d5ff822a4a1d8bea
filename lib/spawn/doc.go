// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package spawn defines the unit of work that execution backends run and
// the contract every backend implements.
//
// A [Spawn] is one command invocation: arguments, environment, declared
// inputs and outputs, and a working directory. It is treated as immutable
// for the duration of an execution attempt. A [Backend] runs a Spawn and
// returns a [Result]. The set of backend variants is closed and tagged by
// [Kind]; callers dispatch through [Backend.Execute] and never inspect
// concrete types.
//
// Failures fall into two classes that the rest of the system treats very
// differently:
//
//   - Action failures: the command ran and exited non-zero. These are
//     reported as a Result with a non-zero ExitCode and a nil error. They
//     are the action's outcome and never trigger a fallback backend.
//   - Infrastructure failures: the execution mechanism itself failed
//     (remote service unreachable, worker crashed, spawn not eligible for
//     the backend). These are returned as [*InfrastructureError] and are
//     the only errors a fallback decorator reacts to.
//
// Any other error (an invalid Spawn, a cancelled context) propagates
// unchanged.
package spawn
