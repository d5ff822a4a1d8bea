// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/bureau-foundation/spawn/lib/digest"
	"github.com/bureau-foundation/spawn/lib/spawn"
)

// memoryCache is an in-process ActionCache. Blob content is read from
// the source files at Store time.
type memoryCache struct {
	mu        sync.Mutex
	entries   map[digest.Hash]*Entry
	blobs     map[digest.Hash][]byte
	lookupErr error
	stores    int
	closed    int
}

func newMemoryCache() *memoryCache {
	return &memoryCache{
		entries: make(map[digest.Hash]*Entry),
		blobs:   make(map[digest.Hash][]byte),
	}
}

func (m *memoryCache) Lookup(_ context.Context, key digest.Hash) (*Entry, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lookupErr != nil {
		return nil, false, m.lookupErr
	}
	entry, found := m.entries[key]
	return entry, found, nil
}

func (m *memoryCache) Store(_ context.Context, key digest.Hash, entry *Entry, blobs map[digest.Hash]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for hash, path := range blobs {
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		m.blobs[hash] = data
	}
	m.entries[key] = entry
	m.stores++
	return nil
}

func (m *memoryCache) Blob(_ context.Context, blob digest.Hash) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, found := m.blobs[blob]
	if !found {
		return nil, fmt.Errorf("%s: %w", blob, ErrBlobNotFound)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memoryCache) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed++
	return nil
}

// fakeBackend runs spawns through fn and counts calls.
type fakeBackend struct {
	kind  spawn.Kind
	mu    sync.Mutex
	calls int
	fn    func(*spawn.Spawn) (*spawn.Result, error)
}

func (f *fakeBackend) Kind() spawn.Kind { return f.kind }
func (f *fakeBackend) Name() string     { return f.kind.String() }

func (f *fakeBackend) Execute(_ context.Context, s *spawn.Spawn) (*spawn.Result, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.fn(s)
}

func (f *fakeBackend) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

var errUnavailable = errors.New("service unavailable")
