// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package remote

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/bureau-foundation/spawn/lib/digest"
)

// ErrBlobNotFound is returned (wrapped) by ActionCache.Blob for unknown
// digests.
var ErrBlobNotFound = errors.New("blob not found")

// Entry is a cached action result.
type Entry struct {
	ExitCode int          `cbor:"exit_code"`
	Stdout   []byte       `cbor:"stdout,omitempty"`
	Stderr   []byte       `cbor:"stderr,omitempty"`
	Outputs  []OutputFile `cbor:"outputs"`

	// CommandID identifies the command that produced the entry, for
	// correlation only.
	CommandID string `cbor:"command_id,omitempty"`
}

// OutputFile is one declared output of a cached action.
type OutputFile struct {
	// Path is relative to the spawn's working directory.
	Path   string      `cbor:"path"`
	Digest digest.Hash `cbor:"digest"`
	Size   int64       `cbor:"size"`
	Mode   uint32      `cbor:"mode"`
}

// ActionCache stores action results and the output blobs they
// reference. Implementations must be safe for concurrent use.
type ActionCache interface {
	// Lookup returns the entry for key. A missing entry is (nil, false,
	// nil).
	Lookup(ctx context.Context, key digest.Hash) (*Entry, bool, error)

	// Store records entry under key. blobs maps each output digest to
	// the local file holding its content.
	Store(ctx context.Context, key digest.Hash, entry *Entry, blobs map[digest.Hash]string) error

	// Blob opens the content of a stored output.
	Blob(ctx context.Context, blob digest.Hash) (io.ReadCloser, error)

	// Close releases the connection or files held by the cache.
	io.Closer
}

// Tiered returns an ActionCache that looks up in order and stores to
// every tier. Blobs are read from the first tier that has them. Lookup
// errors in one tier fall through to the next.
func Tiered(caches ...ActionCache) ActionCache {
	return tiered(caches)
}

type tiered []ActionCache

func (t tiered) Lookup(ctx context.Context, key digest.Hash) (*Entry, bool, error) {
	var errs []error
	for _, cache := range t {
		entry, found, err := cache.Lookup(ctx, key)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if found {
			return entry, true, nil
		}
	}
	return nil, false, errors.Join(errs...)
}

func (t tiered) Store(ctx context.Context, key digest.Hash, entry *Entry, blobs map[digest.Hash]string) error {
	var errs []error
	for _, cache := range t {
		if err := cache.Store(ctx, key, entry, blobs); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (t tiered) Blob(ctx context.Context, blob digest.Hash) (io.ReadCloser, error) {
	var errs []error
	for _, cache := range t {
		reader, err := cache.Blob(ctx, blob)
		if err == nil {
			return reader, nil
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return nil, fmt.Errorf("%s: %w", blob, ErrBlobNotFound)
	}
	return nil, errors.Join(errs...)
}

func (t tiered) Close() error {
	var errs []error
	for _, cache := range t {
		if err := cache.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
