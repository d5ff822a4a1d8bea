// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bureau-foundation/spawn/lib/governor"
	"github.com/bureau-foundation/spawn/lib/spawn"
	"github.com/bureau-foundation/spawn/local"
)

func TestNewRunnerMissingBwrap(t *testing.T) {
	_, err := NewRunner(Config{
		WorkRoot:  t.TempDir(),
		BwrapPath: filepath.Join(t.TempDir(), "bwrap"),
	})
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("NewRunner = %v, want an os.ErrNotExist failure", err)
	}
}

func TestNewRunnerUnpreparableWorkRoot(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(blocker, nil, 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	// Any existing file stands in for bwrap; the work root check fails
	// first because its parent is a regular file.
	_, err := NewRunner(Config{
		WorkRoot:  filepath.Join(blocker, "sandbox"),
		BwrapPath: blocker,
	})
	if err == nil || !strings.Contains(err.Error(), "work root") {
		t.Fatalf("NewRunner = %v, want work root failure", err)
	}
}

func TestNewRunnerRejectsMissingImage(t *testing.T) {
	fakeBwrap := filepath.Join(t.TempDir(), "bwrap")
	if err := os.WriteFile(fakeBwrap, nil, 0755); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	_, err := NewRunner(Config{
		WorkRoot:    t.TempDir(),
		BwrapPath:   fakeBwrap,
		RootfsImage: filepath.Join(t.TempDir(), "absent"),
	})
	if err == nil {
		t.Fatal("NewRunner accepted a missing rootfs image")
	}
}

func TestRunnerCommand(t *testing.T) {
	fakeBwrap := filepath.Join(t.TempDir(), "bwrap")
	if err := os.WriteFile(fakeBwrap, nil, 0755); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	runner, err := NewRunner(Config{
		WorkRoot:    t.TempDir(),
		BwrapPath:   fakeBwrap,
		Environment: local.PosixEnvironment{},
	})
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}
	if runner.Kind() != spawn.KindSandboxed {
		t.Errorf("Kind() = %v", runner.Kind())
	}

	command, err := runner.Command(&spawn.Spawn{
		Args:       []string{"gcc", "-c", "main.c"},
		Env:        map[string]string{"PATH": "/usr/bin"},
		WorkingDir: "/work",
	}, "/scratch")
	if err != nil {
		t.Fatalf("Command: %v", err)
	}
	if command[0] != fakeBwrap {
		t.Errorf("command[0] = %q, want %q", command[0], fakeBwrap)
	}
	joined := strings.Join(command, " ")
	if !strings.Contains(joined, "--setenv TMPDIR /tmp") {
		t.Errorf("environment provider not applied: %s", joined)
	}
	if !strings.HasSuffix(joined, "-- gcc -c main.c") {
		t.Errorf("command = %s", joined)
	}
}

func TestRunnerStartFailureIsInfrastructure(t *testing.T) {
	// A file that exists but cannot be executed passes construction and
	// fails at start.
	notExecutable := filepath.Join(t.TempDir(), "bwrap")
	if err := os.WriteFile(notExecutable, []byte("not a binary"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	runner, err := NewRunner(Config{WorkRoot: t.TempDir(), BwrapPath: notExecutable})
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}

	_, err = runner.Execute(context.Background(), &spawn.Spawn{
		Args:       []string{"true"},
		WorkingDir: t.TempDir(),
	})
	if !spawn.IsInfrastructure(err) {
		t.Fatalf("Execute = %v, want infrastructure failure", err)
	}
	entries, _ := os.ReadDir(runner.WorkRoot())
	if len(entries) != 0 {
		t.Errorf("scratch directories left behind: %d", len(entries))
	}
}

func requireSandbox(t *testing.T) {
	t.Helper()
	caps := DetectCapabilities()
	if !caps.Usable() {
		t.Skipf("sandbox unavailable: %s", caps.SkipReason())
	}
}

func TestRunnerExecute(t *testing.T) {
	requireSandbox(t)

	runner, err := NewRunner(Config{
		WorkRoot: t.TempDir(),
		Governor: governor.New(1),
	})
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}

	execRoot := t.TempDir()
	result, err := runner.Execute(context.Background(), &spawn.Spawn{
		Mnemonic: "Genrule",
		Args: []string{"/bin/sh", "-c",
			`echo sandboxed > out.txt; echo hello; ls /tmp | wc -l; exit 4`},
		Env:        map[string]string{"PATH": "/usr/bin:/bin"},
		WorkingDir: execRoot,
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.ExitCode != 4 {
		t.Errorf("ExitCode = %d, want 4 (stderr %q)", result.ExitCode, result.Stderr)
	}
	if result.Backend != spawn.KindSandboxed {
		t.Errorf("Backend = %v", result.Backend)
	}
	lines := strings.Fields(string(result.Stdout))
	if len(lines) < 1 || lines[0] != "hello" {
		t.Errorf("Stdout = %q", result.Stdout)
	}
	content, err := os.ReadFile(filepath.Join(execRoot, "out.txt"))
	if err != nil || string(content) != "sandboxed\n" {
		t.Errorf("output file = %q, %v", content, err)
	}
}

func TestRunnerHostRootIsReadOnly(t *testing.T) {
	requireSandbox(t)

	runner, err := NewRunner(Config{WorkRoot: t.TempDir()})
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}
	outside := t.TempDir()
	result, err := runner.Execute(context.Background(), &spawn.Spawn{
		Args: []string{"/bin/sh", "-c", "touch " + filepath.Join(outside, "escaped")},
		Env:  map[string]string{"PATH": "/usr/bin:/bin"},
		// The exec root is the only writable host path.
		WorkingDir: t.TempDir(),
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.ExitCode == 0 {
		t.Error("write outside the exec root succeeded")
	}
	if _, err := os.Stat(filepath.Join(outside, "escaped")); err == nil {
		t.Error("file created on the host outside the exec root")
	}
}
