// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers.
//
// [TarGz] and [WriteTarGz] build gzip-compressed tar archives from a list
// of [Entry] values so rootfs and sandbox tests can describe an image
// inline instead of checking binary fixtures into the tree. [Compress]
// re-wraps an uncompressed tar stream for the other supported formats.
//
// [FailingReader] delivers a prefix of a byte stream and then fails, for
// exercising cleanup of interrupted extractions.
//
// All helpers call t.Fatalf on failure rather than returning errors,
// since test setup failures are not recoverable.
//
// This package has no dependencies on other packages in this module.
package testutil
