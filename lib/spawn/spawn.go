// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package spawn

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Execution info keys recognised by the backends.
const (
	// InfoSupportsWorkers marks a spawn as eligible for a persistent
	// worker. The value must be "1".
	InfoSupportsWorkers = "supports-workers"

	// InfoRequiresDarwin asks the Darwin environment provider to expose
	// the Xcode developer directory and SDK root to the command.
	InfoRequiresDarwin = "requires-darwin"

	// InfoNoCache excludes a spawn from action caching.
	InfoNoCache = "no-cache"
)

// Spawn is one command invocation.
type Spawn struct {
	// Mnemonic is a short label for the kind of action ("GoCompile",
	// "Genrule"). Used for worker keys and log output.
	Mnemonic string

	// Args is the command and its arguments. Args[0] is the program.
	Args []string

	// Env is the complete environment for the command. Backends do not
	// inherit the build tool's own environment beyond what an
	// environment provider adds.
	Env map[string]string

	// Inputs are the declared input files, relative to WorkingDir.
	Inputs []string

	// Outputs are the declared output files, relative to WorkingDir.
	Outputs []string

	// WorkingDir is the absolute directory the command runs in.
	WorkingDir string

	// ExecutionInfo carries per-spawn execution hints (see the Info*
	// constants).
	ExecutionInfo map[string]string
}

// Validate checks the fields every backend relies on.
func (s *Spawn) Validate() error {
	if s == nil {
		return fmt.Errorf("spawn is nil")
	}
	if len(s.Args) == 0 || s.Args[0] == "" {
		return fmt.Errorf("spawn has no command")
	}
	if s.WorkingDir == "" {
		return fmt.Errorf("spawn %q has no working directory", s.Args[0])
	}
	if !filepath.IsAbs(s.WorkingDir) {
		return fmt.Errorf("spawn working directory %q is not absolute", s.WorkingDir)
	}
	for _, output := range s.Outputs {
		cleaned := filepath.Clean(output)
		if filepath.IsAbs(output) || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
			return fmt.Errorf("spawn output %q escapes the working directory", output)
		}
	}
	return nil
}

// HasInfo reports whether the execution info key is set to "1".
func (s *Spawn) HasInfo(key string) bool {
	return s.ExecutionInfo[key] == "1"
}

// EnvList returns Env as sorted KEY=VALUE pairs.
func (s *Spawn) EnvList() []string {
	keys := make([]string, 0, len(s.Env))
	for key := range s.Env {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	list := make([]string, 0, len(keys))
	for _, key := range keys {
		list = append(list, key+"="+s.Env[key])
	}
	return list
}

// CommandLine renders the spawn as a shell-like command line for
// diagnostics. Arguments containing whitespace or quotes are single
// quoted.
func (s *Spawn) CommandLine() string {
	var builder strings.Builder
	if s.WorkingDir != "" {
		builder.WriteString("(cd ")
		builder.WriteString(quote(s.WorkingDir))
		builder.WriteString(" && ")
	}
	for _, line := range s.EnvList() {
		builder.WriteString(quote(line))
		builder.WriteByte(' ')
	}
	for index, arg := range s.Args {
		if index > 0 {
			builder.WriteByte(' ')
		}
		builder.WriteString(quote(arg))
	}
	if s.WorkingDir != "" {
		builder.WriteByte(')')
	}
	return builder.String()
}

func quote(arg string) string {
	if arg != "" && !strings.ContainsAny(arg, " \t\n'\"\\$") {
		return arg
	}
	return "'" + strings.ReplaceAll(arg, "'", `'\''`) + "'"
}

// Result is the outcome of a spawn that ran to completion.
type Result struct {
	// ExitCode is the command's exit status. Non-zero is an action
	// failure.
	ExitCode int

	// Stdout and Stderr are the captured output streams.
	Stdout []byte
	Stderr []byte

	// Backend is the variant that produced this result. For results
	// produced by a fallback, this is the fallback's kind.
	Backend Kind

	// CacheHit is true when the result was served from an action cache
	// without running the command.
	CacheHit bool

	// Duration is the wall time spent producing the result.
	Duration time.Duration
}

// Succeeded reports whether the command exited zero.
func (r *Result) Succeeded() bool {
	return r != nil && r.ExitCode == 0
}

// Backend runs spawns. Implementations must be safe for concurrent use.
type Backend interface {
	// Kind returns the backend's variant tag.
	Kind() Kind

	// Name returns a human-readable description of the backend, including
	// any fallback it delegates to.
	Name() string

	// Execute runs the spawn and blocks until a result is available or
	// the attempt has failed. See the package documentation for the
	// error contract.
	Execute(ctx context.Context, spawn *Spawn) (*Result, error)
}
