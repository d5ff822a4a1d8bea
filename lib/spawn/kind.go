// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package spawn

import "fmt"

// Kind tags the closed set of backend variants.
type Kind uint8

const (
	// KindLocal runs the command as a plain child process.
	KindLocal Kind = iota + 1

	// KindSandboxed runs the command inside a Linux namespace sandbox.
	KindSandboxed

	// KindRemoteCache consults an action cache before delegating.
	KindRemoteCache

	// KindRemoteExecution sends the command to a remote executor.
	KindRemoteExecution

	// KindWorker sends the command to a persistent worker process.
	KindWorker
)

// String returns the strategy name used in logs and CLI output.
func (k Kind) String() string {
	switch k {
	case KindLocal:
		return "local"
	case KindSandboxed:
		return "sandboxed"
	case KindRemoteCache:
		return "remote-cache"
	case KindRemoteExecution:
		return "remote"
	case KindWorker:
		return "worker"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}
