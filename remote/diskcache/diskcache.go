// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package diskcache is an action cache kept in a local directory.
//
// Layout under the cache root:
//
//	ac/<hex[:2]>/<hex>    CBOR-encoded remote.Entry, keyed by action key
//	cas/<hex[:2]>/<hex>   lz4-framed output content, keyed by blob digest
//
// Every file is written to a temporary name and renamed into place, so a
// reader never sees a partial entry or blob. Blobs are stored before the
// entry that references them. Nothing is ever evicted.
package diskcache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/pierrec/lz4/v4"

	"github.com/bureau-foundation/spawn/lib/atomicfile"
	"github.com/bureau-foundation/spawn/lib/codec"
	"github.com/bureau-foundation/spawn/lib/digest"
	"github.com/bureau-foundation/spawn/remote"
)

// Cache is a directory-backed remote.ActionCache. It is safe for
// concurrent use, including by several processes sharing the directory.
type Cache struct {
	root string
}

var _ remote.ActionCache = (*Cache)(nil)

// Open creates the cache directories under dir if needed and returns
// the cache.
func Open(dir string) (*Cache, error) {
	if dir == "" {
		return nil, fmt.Errorf("disk cache directory is required")
	}
	for _, sub := range []string{"ac", "cas"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("creating disk cache directory: %w", err)
		}
	}
	return &Cache{root: dir}, nil
}

// Root returns the cache directory.
func (c *Cache) Root() string { return c.root }

// Lookup implements remote.ActionCache.
func (c *Cache) Lookup(ctx context.Context, key digest.Hash) (*remote.Entry, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	data, err := os.ReadFile(c.entryPath(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading cache entry %s: %w", key, err)
	}
	var entry remote.Entry
	if err := codec.Unmarshal(data, &entry); err != nil {
		return nil, false, fmt.Errorf("decoding cache entry %s: %w", key, err)
	}
	return &entry, true, nil
}

// Store implements remote.ActionCache. Blobs already present are not
// rewritten.
func (c *Cache) Store(ctx context.Context, key digest.Hash, entry *remote.Entry, blobs map[digest.Hash]string) error {
	for hash, path := range blobs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := c.storeBlob(hash, path); err != nil {
			return err
		}
	}

	data, err := codec.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encoding cache entry %s: %w", key, err)
	}
	target := c.entryPath(key)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	if err := atomicfile.Write(target, data, 0o644); err != nil {
		return fmt.Errorf("writing cache entry %s: %w", key, err)
	}
	return nil
}

func (c *Cache) storeBlob(hash digest.Hash, source string) error {
	target := c.blobPath(hash)
	if _, err := os.Stat(target); err == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}

	file, err := os.Open(source)
	if err != nil {
		return fmt.Errorf("opening blob source: %w", err)
	}
	defer file.Close()

	var compressed bytes.Buffer
	writer := lz4.NewWriter(&compressed)
	if _, err := io.Copy(writer, file); err != nil {
		return fmt.Errorf("compressing %s: %w", source, err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("compressing %s: %w", source, err)
	}
	if err := atomicfile.Write(target, compressed.Bytes(), 0o644); err != nil {
		return fmt.Errorf("writing blob %s: %w", hash, err)
	}
	return nil
}

// Blob implements remote.ActionCache.
func (c *Cache) Blob(ctx context.Context, blob digest.Hash) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	file, err := os.Open(c.blobPath(blob))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", blob, remote.ErrBlobNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("opening blob %s: %w", blob, err)
	}
	return &blobReader{Reader: lz4.NewReader(file), file: file}, nil
}

// Close implements remote.ActionCache. The disk cache holds no open
// resources between calls.
func (c *Cache) Close() error { return nil }

func (c *Cache) entryPath(key digest.Hash) string {
	hex := key.String()
	return filepath.Join(c.root, "ac", hex[:2], hex)
}

func (c *Cache) blobPath(blob digest.Hash) string {
	hex := blob.String()
	return filepath.Join(c.root, "cas", hex[:2], hex)
}

type blobReader struct {
	*lz4.Reader
	file *os.File
}

func (r *blobReader) Close() error { return r.file.Close() }
