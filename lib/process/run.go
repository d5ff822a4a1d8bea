// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/bureau-foundation/spawn/lib/clock"
)

// Command describes one process to start.
type Command struct {
	// Path is the program to execute. Resolved through PATH when it
	// contains no slash.
	Path string

	// Args are the arguments after the program name.
	Args []string

	// Env is the complete environment. A nil Env is treated as empty;
	// the caller's environment is never inherited.
	Env []string

	// Dir is the working directory.
	Dir string

	// Stdin is connected to the process's standard input. Nil reads
	// from the null device.
	Stdin io.Reader
}

// Outcome is the observed termination of a process that was started.
type Outcome struct {
	// ExitCode is the exit status. A process killed by a signal reports
	// 128 plus the signal number, as shells do.
	ExitCode int

	Stdout []byte
	Stderr []byte
}

// Options controls termination on cancellation.
type Options struct {
	// GracePeriod is how long the process group has to exit after
	// SIGTERM before SIGKILL is sent. Zero sends SIGKILL immediately.
	GracePeriod time.Duration

	// Clock schedules the SIGKILL escalation. Defaults to clock.Real().
	Clock clock.Clock
}

// Run starts command and waits for it to exit. A non-zero exit is
// reported in the Outcome with a nil error. The error is non-nil when
// the process could not be started, or when ctx was cancelled (the
// error then wraps ctx.Err()).
func Run(ctx context.Context, command Command, options Options) (*Outcome, error) {
	clk := options.Clock
	if clk == nil {
		clk = clock.Real()
	}

	cmd := exec.CommandContext(ctx, command.Path, command.Args...)
	cmd.Dir = command.Dir
	cmd.Env = command.Env
	if cmd.Env == nil {
		cmd.Env = []string{}
	}
	cmd.Stdin = command.Stdin

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	var escalation *clock.Timer
	cmd.Cancel = func() error {
		processGroupID := -cmd.Process.Pid
		if options.GracePeriod <= 0 {
			return unix.Kill(processGroupID, unix.SIGKILL)
		}
		if err := unix.Kill(processGroupID, unix.SIGTERM); err != nil {
			return unix.Kill(processGroupID, unix.SIGKILL)
		}
		escalation = clk.AfterFunc(options.GracePeriod, func() {
			// ESRCH once the group has exited is expected.
			_ = unix.Kill(processGroupID, unix.SIGKILL)
		})
		return nil
	}

	err := cmd.Run()
	if escalation != nil {
		escalation.Stop()
	}

	if ctx.Err() != nil {
		return nil, fmt.Errorf("%s interrupted: %w", command.Path, ctx.Err())
	}
	if err == nil {
		return &Outcome{ExitCode: 0, Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}, nil
	}

	var exitError *exec.ExitError
	if errors.As(err, &exitError) {
		return &Outcome{
			ExitCode: exitCode(exitError),
			Stdout:   stdout.Bytes(),
			Stderr:   stderr.Bytes(),
		}, nil
	}
	return nil, fmt.Errorf("starting %s: %w", command.Path, err)
}

func exitCode(exitError *exec.ExitError) int {
	if status, ok := exitError.Sys().(syscall.WaitStatus); ok && status.Signaled() {
		return 128 + int(status.Signal())
	}
	return exitError.ExitCode()
}
