// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"bytes"
	"os"
	"os/exec"
	"strings"
)

// Capabilities is the result of probing the host for sandbox support.
type Capabilities struct {
	// BwrapPath is the bwrap binary probed. Empty when none was found.
	BwrapPath string

	// Version is the output of bwrap --version.
	Version string

	// Namespaces is true when bwrap created the PID, IPC and UTS
	// namespaces every sandboxed spawn runs in.
	Namespaces bool

	// Network is true when a network namespace can also be created,
	// as BlockNetwork requires.
	Network bool

	// Reason says why Namespaces is false.
	Reason string
}

// DetectCapabilities probes the bwrap found by BwrapPath.
func DetectCapabilities() *Capabilities {
	path, err := BwrapPath()
	if err != nil {
		return &Capabilities{Reason: "bubblewrap not installed"}
	}
	return probeBwrap(path)
}

// Usable reports whether sandboxed spawns can run on this host.
func (c *Capabilities) Usable() bool {
	return c.Namespaces
}

// SkipReason returns Reason when the sandbox is unusable, for test
// skips and diagnostics. It is empty when the sandbox works.
func (c *Capabilities) SkipReason() string {
	if c.Usable() {
		return ""
	}
	return c.Reason
}

func probeBwrap(path string) *Capabilities {
	caps := &Capabilities{BwrapPath: path}
	if out, err := exec.Command(path, "--version").Output(); err == nil {
		caps.Version = strings.TrimSpace(string(out))
	} else {
		caps.Reason = "running " + path + ": " + err.Error()
		return caps
	}

	data, err := os.ReadFile("/proc/sys/kernel/unprivileged_userns_clone")
	if err == nil && strings.TrimSpace(string(data)) == "0" {
		caps.Reason = "unprivileged user namespaces disabled (kernel.unprivileged_userns_clone=0)"
		return caps
	}

	if message, ok := tryNamespaces(path, false); !ok {
		caps.Reason = "bwrap cannot create namespaces: " + message
		return caps
	}
	caps.Namespaces = true
	_, caps.Network = tryNamespaces(path, true)
	return caps
}

// tryNamespaces runs true under the namespace flags Build emits.
func tryNamespaces(path string, blockNetwork bool) (string, bool) {
	builder := NewBwrapBuilder()
	builder.addNamespaces(blockNetwork)
	args := append(builder.args, "--ro-bind", "/", "/", "--", "true")

	var stderr bytes.Buffer
	cmd := exec.Command(path, args...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		message := strings.TrimSpace(stderr.String())
		if message == "" {
			message = err.Error()
		}
		return message, false
	}
	return "", true
}
