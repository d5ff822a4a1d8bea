// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package remote

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/bureau-foundation/spawn/lib/digest"
)

func TestTieredLookupOrder(t *testing.T) {
	ctx := context.Background()
	near, far := newMemoryCache(), newMemoryCache()
	key := digest.Bytes(digest.ActionDomain, []byte("action"))
	far.entries[key] = &Entry{ExitCode: 0, CommandID: "far"}

	cache := Tiered(near, far)
	entry, found, err := cache.Lookup(ctx, key)
	if err != nil || !found || entry.CommandID != "far" {
		t.Fatalf("Lookup = %+v, %v, %v; want far entry", entry, found, err)
	}

	near.entries[key] = &Entry{CommandID: "near"}
	entry, _, _ = cache.Lookup(ctx, key)
	if entry.CommandID != "near" {
		t.Errorf("Lookup returned %q, want the first tier", entry.CommandID)
	}
}

func TestTieredLookupFallsThroughErrors(t *testing.T) {
	broken, healthy := newMemoryCache(), newMemoryCache()
	broken.lookupErr = errUnavailable
	key := digest.Bytes(digest.ActionDomain, []byte("action"))
	healthy.entries[key] = &Entry{}

	_, found, err := Tiered(broken, healthy).Lookup(context.Background(), key)
	if err != nil || !found {
		t.Fatalf("Lookup = %v, %v; want hit from the healthy tier", found, err)
	}

	_, found, err = Tiered(broken, newMemoryCache()).Lookup(context.Background(), key)
	if found || !errors.Is(err, errUnavailable) {
		t.Errorf("Lookup = %v, %v; want miss reporting the tier error", found, err)
	}
}

func TestTieredStoreAndBlob(t *testing.T) {
	ctx := context.Background()
	near, far := newMemoryCache(), newMemoryCache()
	cache := Tiered(near, far)

	path := filepath.Join(t.TempDir(), "blob")
	if err := os.WriteFile(path, []byte("content"), 0644); err != nil {
		t.Fatal(err)
	}
	blob, err := digest.File(path)
	if err != nil {
		t.Fatal(err)
	}
	key := digest.Bytes(digest.ActionDomain, []byte("action"))
	if err := cache.Store(ctx, key, &Entry{}, map[digest.Hash]string{blob: path}); err != nil {
		t.Fatalf("Store: %v", err)
	}
	if near.stores != 1 || far.stores != 1 {
		t.Errorf("stores = %d, %d; want both tiers", near.stores, far.stores)
	}

	delete(near.blobs, blob)
	reader, err := cache.Blob(ctx, blob)
	if err != nil {
		t.Fatalf("Blob: %v", err)
	}
	data, _ := io.ReadAll(reader)
	reader.Close()
	if string(data) != "content" {
		t.Errorf("Blob = %q", data)
	}

	if _, err := Tiered().Blob(ctx, blob); !errors.Is(err, ErrBlobNotFound) {
		t.Errorf("empty Tiered Blob err = %v, want ErrBlobNotFound", err)
	}

	if err := cache.Close(); err != nil {
		t.Fatal(err)
	}
	if near.closed != 1 || far.closed != 1 {
		t.Errorf("Close reached %d, %d tiers", near.closed, far.closed)
	}
}
