// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sandbox runs spawns inside bubblewrap (bwrap) Linux namespaces.
//
// [Runner] is the sandboxed backend. Each spawn gets fresh PID, IPC and
// UTS namespaces (and optionally a network namespace), a cleared
// environment rebuilt from the spawn's own variables, and a filesystem
// view assembled by [BwrapBuilder]:
//
//   - With a rootfs image (see package rootfs) the image is bound at /,
//     the host supplies /dev, /proc and a read-only /sys, and the
//     directories the image cache never extracts (/home, /mnt, /root,
//     /srv) are created empty. TMPDIR is dropped from the environment,
//     since the host's temporary directory need not exist in the image.
//   - Without an image the host root is shared read-only.
//
// In both cases /tmp is a scratch directory private to the execution and
// the spawn's working directory is bound read-write at its host path, so
// the command writes its outputs where the build expects them.
//
// [NewRunner] fails when bwrap is missing or the work root cannot be
// created. Callers treat that as a reason to degrade to the plain local
// runner rather than as a fatal error. [Capabilities] probes whether the
// host can run sandboxes at all.
package sandbox
