// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"fmt"
	"os"
	"sort"
)

// HostManagedDirs are created empty inside a rootfs image. The image
// cache never extracts archive content there, so the sandbox supplies
// them itself.
var HostManagedDirs = []string{"/home", "/mnt", "/root", "/srv"}

// BwrapOptions holds options for building a bwrap command.
type BwrapOptions struct {
	// RootfsImage is an extracted image directory used as the sandbox
	// root. Empty shares the host root read-only.
	RootfsImage string

	// ExecRoot is the spawn's working directory. It is bind-mounted
	// read-write at the same path and becomes the initial directory.
	ExecRoot string

	// Scratch is a per-execution directory mounted at /tmp. Empty
	// mounts a tmpfs instead.
	Scratch string

	// Env is the complete environment inside the sandbox.
	Env map[string]string

	// BlockNetwork unshares the network namespace.
	BlockNetwork bool

	// Command is the command to run inside the sandbox.
	Command []string
}

// BwrapBuilder builds bubblewrap command-line arguments.
type BwrapBuilder struct {
	args []string
}

// NewBwrapBuilder creates a new builder.
func NewBwrapBuilder() *BwrapBuilder {
	return &BwrapBuilder{}
}

// Build constructs the bwrap arguments from options.
func (b *BwrapBuilder) Build(opts *BwrapOptions) ([]string, error) {
	if opts.ExecRoot == "" {
		return nil, fmt.Errorf("exec root is required")
	}
	if len(opts.Command) == 0 {
		return nil, fmt.Errorf("command is required")
	}

	b.args = []string{}

	b.addNamespaces(opts.BlockNetwork)

	b.args = append(b.args, "--new-session", "--die-with-parent")

	b.addRoot(opts.RootfsImage)

	if opts.Scratch != "" {
		b.args = append(b.args, "--bind", opts.Scratch, "/tmp")
	} else {
		b.args = append(b.args, "--tmpfs", "/tmp")
	}

	b.args = append(b.args,
		"--bind", opts.ExecRoot, opts.ExecRoot,
		"--chdir", opts.ExecRoot,
	)

	b.args = append(b.args, "--clearenv")
	env := opts.Env
	if opts.RootfsImage != "" {
		// The host TMPDIR need not exist inside the image.
		env = withoutKey(env, "TMPDIR")
	}
	keys := make([]string, 0, len(env))
	for key := range env {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		b.args = append(b.args, "--setenv", key, env[key])
	}

	b.args = append(b.args, "--")
	b.args = append(b.args, opts.Command...)

	return b.args, nil
}

// addNamespaces adds namespace unsharing options. The user namespace is
// left to bwrap, which creates one when it is not setuid.
func (b *BwrapBuilder) addNamespaces(blockNetwork bool) {
	b.args = append(b.args, "--unshare-pid", "--unshare-ipc", "--unshare-uts")
	if blockNetwork {
		b.args = append(b.args, "--unshare-net")
	}
}

// addRoot mounts the sandbox root filesystem. With an image the host
// provides /dev, /proc and a read-only /sys on top of it.
func (b *BwrapBuilder) addRoot(image string) {
	if image == "" {
		b.args = append(b.args,
			"--ro-bind", "/", "/",
			"--dev", "/dev",
			"--proc", "/proc",
		)
		return
	}
	b.args = append(b.args,
		"--bind", image, "/",
		"--dev", "/dev",
		"--proc", "/proc",
		"--ro-bind", "/sys", "/sys",
	)
	for _, dir := range HostManagedDirs {
		b.args = append(b.args, "--dir", dir)
	}
}

func withoutKey(env map[string]string, drop string) map[string]string {
	if _, ok := env[drop]; !ok {
		return env
	}
	filtered := make(map[string]string, len(env)-1)
	for key, value := range env {
		if key != drop {
			filtered[key] = value
		}
	}
	return filtered
}

// BwrapPath returns the path to the bwrap executable.
func BwrapPath() (string, error) {
	paths := []string{
		"/usr/bin/bwrap",
		"/usr/local/bin/bwrap",
		"/bin/bwrap",
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("bwrap not found in standard locations: %w", os.ErrNotExist)
}
