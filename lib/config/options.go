// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
)

// ErrOptionsNotRegistered reports that a component asked for an option
// section nobody registered. It is a wiring bug in the caller, never a
// user error, and is not recoverable by defaulting.
var ErrOptionsNotRegistered = errors.New("options not registered")

// Options is the registry of option sections available to strategy
// construction. Sections are pointers; a nil section was not registered.
type Options struct {
	execution *ExecutionOptions
	sandbox   *SandboxOptions
	remote    *RemoteOptions
	worker    *WorkerOptions
}

// Options registers every section of c.
func (c *Config) Options() *Options {
	return &Options{
		execution: &c.Execution,
		sandbox:   &c.Sandbox,
		remote:    &c.Remote,
		worker:    &c.Worker,
	}
}

// NewOptions returns an empty registry. Use the Register methods to add
// sections; this is mostly useful in tests and embedders that build
// options without a file.
func NewOptions() *Options {
	return &Options{}
}

// RegisterExecution adds the execution section.
func (o *Options) RegisterExecution(section *ExecutionOptions) *Options {
	o.execution = section
	return o
}

// RegisterSandbox adds the sandbox section.
func (o *Options) RegisterSandbox(section *SandboxOptions) *Options {
	o.sandbox = section
	return o
}

// RegisterRemote adds the remote section.
func (o *Options) RegisterRemote(section *RemoteOptions) *Options {
	o.remote = section
	return o
}

// RegisterWorker adds the worker section.
func (o *Options) RegisterWorker(section *WorkerOptions) *Options {
	o.worker = section
	return o
}

// Execution returns the execution section.
func (o *Options) Execution() (*ExecutionOptions, error) {
	if o == nil || o.execution == nil {
		return nil, notRegistered("execution")
	}
	return o.execution, nil
}

// Sandbox returns the sandbox section.
func (o *Options) Sandbox() (*SandboxOptions, error) {
	if o == nil || o.sandbox == nil {
		return nil, notRegistered("sandbox")
	}
	return o.sandbox, nil
}

// Remote returns the remote section.
func (o *Options) Remote() (*RemoteOptions, error) {
	if o == nil || o.remote == nil {
		return nil, notRegistered("remote")
	}
	return o.remote, nil
}

// Worker returns the worker section.
func (o *Options) Worker() (*WorkerOptions, error) {
	if o == nil || o.worker == nil {
		return nil, notRegistered("worker")
	}
	return o.worker, nil
}

func notRegistered(section string) error {
	return fmt.Errorf("%s: %w", section, ErrOptionsNotRegistered)
}
