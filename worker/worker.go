// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package worker

import (
	"context"
	"errors"
	"strings"

	"github.com/bureau-foundation/spawn/lib/config"
)

// ErrUnavailable is returned by the Unavailable provider.
var ErrUnavailable = errors.New("no persistent worker runtime available")

// Provider builds worker pools. The strategy resolver calls Pool once
// per resolution.
type Provider interface {
	Pool(options *config.WorkerOptions) (Pool, error)
}

// Pool hands out workers by key. Implementations must be safe for
// concurrent use.
type Pool interface {
	// Borrow returns an idle worker for key, starting one if needed.
	Borrow(ctx context.Context, key Key) (Worker, error)

	// Return gives a healthy worker back to the pool.
	Return(key Key, worker Worker)

	// Invalidate discards a worker that failed. The pool stops it.
	Invalidate(key Key, worker Worker)

	// Close stops every worker.
	Close() error
}

// Worker is one persistent worker process.
type Worker interface {
	Do(ctx context.Context, request Request) (*Response, error)
}

// Key identifies interchangeable workers: same mnemonic, same startup
// command line, same environment and directory. Keys are comparable so
// pools can use them as map keys.
type Key struct {
	Mnemonic   string
	WorkingDir string

	// args and env are NUL-joined so the key stays comparable.
	args string
	env  string
}

// NewKey builds a key from a startup command line and a sorted
// KEY=VALUE environment.
func NewKey(mnemonic, workingDir string, args, env []string) Key {
	return Key{
		Mnemonic:   mnemonic,
		WorkingDir: workingDir,
		args:       strings.Join(args, "\x00"),
		env:        strings.Join(env, "\x00"),
	}
}

// Args returns the worker's startup command line.
func (k Key) Args() []string { return split(k.args) }

// Env returns the worker's environment as KEY=VALUE pairs.
func (k Key) Env() []string { return split(k.env) }

func split(joined string) []string {
	if joined == "" {
		return nil
	}
	return strings.Split(joined, "\x00")
}

// Request is one unit of work sent to a worker.
type Request struct {
	// Arguments are the flagfile contents, one argument per line.
	Arguments []string

	// Inputs are the spawn's declared inputs, relative to the key's
	// working directory.
	Inputs []string
}

// Response is a worker's answer to a Request.
type Response struct {
	ExitCode int

	// Output is the worker's diagnostics for this request. It is
	// reported as the spawn's stderr.
	Output string
}

// Unavailable is the Provider used when no worker runtime is linked in.
// Every pool request fails, so every worker-eligible spawn falls back.
type Unavailable struct{}

// Pool implements Provider.
func (Unavailable) Pool(*config.WorkerOptions) (Pool, error) {
	return nil, ErrUnavailable
}
