// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package governor

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
)

func TestDefaultCapacity(t *testing.T) {
	if got := New(0).Capacity(); got != runtime.NumCPU() {
		t.Errorf("Capacity() = %d, want NumCPU %d", got, runtime.NumCPU())
	}
	if got := New(3).Capacity(); got != 3 {
		t.Errorf("Capacity() = %d, want 3", got)
	}
}

func TestRunBoundsConcurrency(t *testing.T) {
	governor := New(2)

	var running, peak atomic.Int32
	release := make(chan struct{})
	var wg sync.WaitGroup
	started := make(chan struct{}, 5)

	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = governor.Run(context.Background(), func() error {
				current := running.Add(1)
				for {
					old := peak.Load()
					if current <= old || peak.CompareAndSwap(old, current) {
						break
					}
				}
				started <- struct{}{}
				<-release
				running.Add(-1)
				return nil
			})
		}()
	}

	// Two callers get in; the rest wait on the semaphore.
	<-started
	<-started
	close(release)
	wg.Wait()

	if peak.Load() > 2 {
		t.Errorf("peak concurrency %d exceeds capacity 2", peak.Load())
	}
}

func TestAcquireHonoursContext(t *testing.T) {
	governor := New(1)
	if err := governor.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer governor.Release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := governor.Acquire(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Acquire on full governor with cancelled ctx = %v, want context.Canceled", err)
	}
}

func TestRunPropagatesError(t *testing.T) {
	want := errors.New("boom")
	if err := New(1).Run(context.Background(), func() error { return want }); !errors.Is(err, want) {
		t.Errorf("Run() = %v, want %v", err, want)
	}
}
