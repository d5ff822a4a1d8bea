// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package rootfs maintains a content-addressed on-disk cache of extracted
// root filesystem images for the sandbox.
//
// An image is named by the SHA-256 of its source identifier (the URL or
// filesystem path of the archive, as a string) and lives at
// ImagesRoot/<key>. The key is computed before anything is opened, so a
// cache hit performs no network or archive I/O at all: the opener passed
// to [Cache.ImagePath] is never called.
//
// On a miss the archive is streamed, decompressed, and extracted into a
// staging directory next to the final path, then renamed into place. The
// final path therefore only ever holds a complete image; a failed or
// interrupted population deletes the staging directory and returns the
// error, and the next request for the same source starts over.
//
// Extraction deliberately skips archive members under the top-level
// directories the sandbox manages from the host side ([Blacklist]): dev,
// home, mnt, proc, root, srv, sys, tmp. After extraction the host's
// /etc/hosts and /etc/resolv.conf are copied in so sandboxed processes
// keep working name resolution.
//
// Members that cannot be materialised (unrepresentable names, symlinks
// that fail to create, unsupported types such as device nodes, paths that
// would escape the image) do not fail the population. Each is recorded as
// a [Diagnostic], logged, and skipped.
//
// All populations on one Cache are serialised by a single mutex held for
// the whole extraction. Concurrent requests for the same key share one
// population and all observe its result. Requests for different keys wait
// their turn rather than extracting in parallel; this keeps disk and
// network load predictable and is not a correctness requirement.
//
// Images are never updated or deleted by this package. Invalidation is a
// manual operation on ImagesRoot.
package rootfs
