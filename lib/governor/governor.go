// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package governor limits how many local actions run at once.
//
// One [Governor] is shared by every backend that starts processes on this
// machine (the plain local runner and the sandboxed runner), so the limit
// holds across strategies. Remote and worker backends do not acquire it.
package governor

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/semaphore"
)

// Governor is a process-wide counting semaphore.
type Governor struct {
	capacity int64
	slots    *semaphore.Weighted
}

// New returns a Governor admitting capacity concurrent actions. A
// capacity of zero or less uses runtime.NumCPU().
func New(capacity int) *Governor {
	if capacity <= 0 {
		capacity = runtime.NumCPU()
	}
	return &Governor{
		capacity: int64(capacity),
		slots:    semaphore.NewWeighted(int64(capacity)),
	}
}

// Capacity returns the number of concurrent actions admitted.
func (g *Governor) Capacity() int {
	return int(g.capacity)
}

// Acquire blocks until a slot is free or ctx is done.
func (g *Governor) Acquire(ctx context.Context) error {
	if err := g.slots.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("waiting for local execution slot: %w", err)
	}
	return nil
}

// Release returns a slot taken by Acquire.
func (g *Governor) Release() {
	g.slots.Release(1)
}

// Run calls fn while holding a slot.
func (g *Governor) Run(ctx context.Context, fn func() error) error {
	if err := g.Acquire(ctx); err != nil {
		return err
	}
	defer g.Release()
	return fn()
}
