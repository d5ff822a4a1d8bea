// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package remote

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/bureau-foundation/spawn/lib/digest"
	"github.com/bureau-foundation/spawn/lib/spawn"
)

// buildSpawn returns a spawn whose fake execution writes out/result.txt.
func buildSpawn(t *testing.T) *spawn.Spawn {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "main.c"), []byte("int main;"), 0644); err != nil {
		t.Fatal(err)
	}
	return &spawn.Spawn{
		Mnemonic:   "CppCompile",
		Args:       []string{"cc", "-o", "out/result.txt", "main.c"},
		Inputs:     []string{"main.c"},
		Outputs:    []string{"out/result.txt"},
		WorkingDir: dir,
	}
}

func writingBackend(exitCode int) *fakeBackend {
	return &fakeBackend{kind: spawn.KindSandboxed, fn: func(s *spawn.Spawn) (*spawn.Result, error) {
		output := filepath.Join(s.WorkingDir, "out", "result.txt")
		if err := os.MkdirAll(filepath.Dir(output), 0755); err != nil {
			return nil, err
		}
		if err := os.WriteFile(output, []byte("compiled"), 0755); err != nil {
			return nil, err
		}
		return &spawn.Result{ExitCode: exitCode, Stdout: []byte("ok\n"), Backend: spawn.KindSandboxed}, nil
	}}
}

func newCaching(t *testing.T, cache ActionCache, delegate spawn.Backend) *CachingRunner {
	t.Helper()
	runner, err := NewCachingRunner(CachingConfig{
		Cache:       cache,
		Delegate:    delegate,
		Identifiers: Identifiers{BuildRequestID: "build-1", CommandID: "command-1"},
	})
	if err != nil {
		t.Fatalf("NewCachingRunner: %v", err)
	}
	return runner
}

func TestCachingRunnerRequiresDelegate(t *testing.T) {
	if _, err := NewCachingRunner(CachingConfig{Cache: newMemoryCache()}); err == nil {
		t.Fatal("NewCachingRunner succeeded without a delegate")
	}
}

func TestCachingRunnerMissThenHit(t *testing.T) {
	cache := newMemoryCache()
	delegate := writingBackend(0)
	runner := newCaching(t, cache, delegate)
	s := buildSpawn(t)

	first, err := runner.Execute(context.Background(), s)
	if err != nil {
		t.Fatalf("first Execute: %v", err)
	}
	if first.CacheHit || first.Backend != spawn.KindSandboxed {
		t.Errorf("first result = %+v, want delegate result", first)
	}
	if cache.stores != 1 {
		t.Fatalf("stores = %d, want 1", cache.stores)
	}

	output := filepath.Join(s.WorkingDir, "out", "result.txt")
	if err := os.RemoveAll(filepath.Join(s.WorkingDir, "out")); err != nil {
		t.Fatal(err)
	}

	second, err := runner.Execute(context.Background(), s)
	if err != nil {
		t.Fatalf("second Execute: %v", err)
	}
	if !second.CacheHit || second.Backend != spawn.KindRemoteCache {
		t.Errorf("second result = %+v, want cache hit", second)
	}
	if string(second.Stdout) != "ok\n" {
		t.Errorf("cached Stdout = %q", second.Stdout)
	}
	if delegate.callCount() != 1 {
		t.Errorf("delegate ran %d times, want 1", delegate.callCount())
	}

	content, err := os.ReadFile(output)
	if err != nil || string(content) != "compiled" {
		t.Fatalf("materialised output = %q, %v", content, err)
	}
	info, err := os.Stat(output)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0755 {
		t.Errorf("materialised mode = %o, want 755", info.Mode().Perm())
	}
}

func TestCachingRunnerDoesNotStoreFailures(t *testing.T) {
	cache := newMemoryCache()
	runner := newCaching(t, cache, writingBackend(1))

	result, err := runner.Execute(context.Background(), buildSpawn(t))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.ExitCode != 1 {
		t.Errorf("ExitCode = %d, want 1", result.ExitCode)
	}
	if cache.stores != 0 {
		t.Errorf("failed action was stored")
	}
}

func TestCachingRunnerNoCacheInfo(t *testing.T) {
	cache := newMemoryCache()
	delegate := writingBackend(0)
	runner := newCaching(t, cache, delegate)
	s := buildSpawn(t)
	s.ExecutionInfo = map[string]string{spawn.InfoNoCache: ""}

	for range 2 {
		if _, err := runner.Execute(context.Background(), s); err != nil {
			t.Fatalf("Execute: %v", err)
		}
	}
	if delegate.callCount() != 2 || cache.stores != 0 {
		t.Errorf("delegate calls = %d, stores = %d; want 2, 0", delegate.callCount(), cache.stores)
	}
}

func TestCachingRunnerLookupErrorRunsDelegate(t *testing.T) {
	cache := newMemoryCache()
	cache.lookupErr = errUnavailable
	delegate := writingBackend(0)
	runner := newCaching(t, cache, delegate)

	result, err := runner.Execute(context.Background(), buildSpawn(t))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.CacheHit || delegate.callCount() != 1 {
		t.Errorf("result = %+v, delegate calls = %d", result, delegate.callCount())
	}
}

func TestCachingRunnerMissingBlobRunsDelegate(t *testing.T) {
	cache := newMemoryCache()
	delegate := writingBackend(0)
	runner := newCaching(t, cache, delegate)
	s := buildSpawn(t)

	if _, err := runner.Execute(context.Background(), s); err != nil {
		t.Fatal(err)
	}
	cache.blobs = make(map[digest.Hash][]byte)

	result, err := runner.Execute(context.Background(), s)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.CacheHit || delegate.callCount() != 2 {
		t.Errorf("result = %+v, delegate calls = %d; want delegate rerun", result, delegate.callCount())
	}
}

func TestCachingRunnerPropagatesDelegateError(t *testing.T) {
	failure := spawn.Infrastructure(spawn.KindSandboxed, errUnavailable)
	delegate := &fakeBackend{kind: spawn.KindSandboxed, fn: func(*spawn.Spawn) (*spawn.Result, error) {
		return nil, failure
	}}
	runner := newCaching(t, newMemoryCache(), delegate)

	_, err := runner.Execute(context.Background(), buildSpawn(t))
	if !errors.Is(err, errUnavailable) || !spawn.IsInfrastructure(err) {
		t.Errorf("err = %v, want the delegate's infrastructure error", err)
	}
}

func TestCachingRunnerWithoutCache(t *testing.T) {
	delegate := writingBackend(0)
	runner := newCaching(t, nil, delegate)

	result, err := runner.Execute(context.Background(), buildSpawn(t))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.CacheHit || delegate.callCount() != 1 {
		t.Errorf("result = %+v", result)
	}
	if runner.Name() != "remote-cache -> sandboxed" {
		t.Errorf("Name = %q", runner.Name())
	}
}

func TestCachingRunnerRejectsUndeclaredEntryOutputs(t *testing.T) {
	for _, path := range []string{"../escaped.txt", "/tmp/absolute.txt", "out/other.txt", "out/../../escaped.txt"} {
		t.Run(path, func(t *testing.T) {
			cache := newMemoryCache()
			delegate := writingBackend(0)
			runner := newCaching(t, cache, delegate)
			s := buildSpawn(t)

			key, err := ActionKey(s)
			if err != nil {
				t.Fatal(err)
			}
			body := []byte("planted")
			hash := digest.Bytes(digest.BlobDomain, body)
			cache.blobs[hash] = body
			cache.entries[key] = &Entry{
				Outputs: []OutputFile{
					{Path: "out/result.txt", Digest: hash, Size: int64(len(body)), Mode: 0644},
					{Path: path, Digest: hash, Size: int64(len(body)), Mode: 0644},
				},
			}

			result, err := runner.Execute(context.Background(), s)
			if err != nil {
				t.Fatalf("Execute: %v", err)
			}
			if result.CacheHit || delegate.callCount() != 1 {
				t.Errorf("result = %+v, delegate calls = %d; want the entry treated as a miss", result, delegate.callCount())
			}

			outside := filepath.Join(filepath.Dir(s.WorkingDir), "escaped.txt")
			if _, err := os.Lstat(outside); !errors.Is(err, os.ErrNotExist) {
				t.Errorf("cache entry wrote %s outside the working directory", outside)
			}
			if _, err := os.Lstat(filepath.Join(s.WorkingDir, "out", "other.txt")); !errors.Is(err, os.ErrNotExist) {
				t.Error("cache entry wrote an undeclared output")
			}
			content, err := os.ReadFile(filepath.Join(s.WorkingDir, "out", "result.txt"))
			if err != nil || string(content) != "compiled" {
				t.Errorf("out/result.txt = %q, %v; want the delegate's output", content, err)
			}
		})
	}
}
