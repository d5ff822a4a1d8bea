// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package strategy

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"testing"

	"github.com/bureau-foundation/spawn/lib/config"
	"github.com/bureau-foundation/spawn/lib/digest"
	"github.com/bureau-foundation/spawn/lib/spawn"
	"github.com/bureau-foundation/spawn/remote"
)

type closeCounter struct {
	closed int
}

func (c *closeCounter) Lookup(context.Context, digest.Hash) (*remote.Entry, bool, error) {
	return nil, false, nil
}

func (c *closeCounter) Store(context.Context, digest.Hash, *remote.Entry, map[digest.Hash]string) error {
	return nil
}

func (c *closeCounter) Blob(_ context.Context, blob digest.Hash) (io.ReadCloser, error) {
	return nil, remote.ErrBlobNotFound
}

func (c *closeCounter) Close() error {
	c.closed++
	return nil
}

func TestResolveFailsFastOnUnregisteredOptions(t *testing.T) {
	cfg := config.Default()
	tests := []struct {
		name    string
		options *config.Options
	}{
		{"nothing", config.NewOptions()},
		{"no remote", config.NewOptions().RegisterExecution(&cfg.Execution).RegisterSandbox(&cfg.Sandbox).RegisterWorker(&cfg.Worker)},
		{"no execution", config.NewOptions().RegisterRemote(&cfg.Remote).RegisterSandbox(&cfg.Sandbox).RegisterWorker(&cfg.Worker)},
		{"no sandbox", config.NewOptions().RegisterRemote(&cfg.Remote).RegisterExecution(&cfg.Execution).RegisterWorker(&cfg.Worker)},
		{"no worker", config.NewOptions().RegisterRemote(&cfg.Remote).RegisterExecution(&cfg.Execution).RegisterSandbox(&cfg.Sandbox)},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			env := &Environment{Options: test.options, OutputBase: t.TempDir(), Logger: quietLogger()}
			resolution, err := Resolve(context.Background(), env, "build", "command")
			if !errors.Is(err, config.ErrOptionsNotRegistered) {
				t.Fatalf("Resolve = %v, %v; want ErrOptionsNotRegistered", resolution, err)
			}
		})
	}
}

func TestResolveCacheMode(t *testing.T) {
	env, cfg := testEnvironment(t)
	cfg.Remote.SpawnCache = true
	cfg.Remote.DiskCache = filepath.Join(t.TempDir(), "disk-cache")
	remoteCache := &closeCounter{}
	env.RemoteCache = func(context.Context, *config.RemoteOptions) (remote.ActionCache, error) {
		return remoteCache, nil
	}

	resolution, err := Resolve(context.Background(), env, "build-1", "command-1")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	backends := resolution.Backends()
	if len(backends) != 1 || backends[0].Kind() != spawn.KindRemoteCache {
		t.Fatalf("backends = %v, want one caching backend", kinds(backends))
	}
	if backends[0].Name() != "remote-cache -> local" {
		t.Errorf("Name = %q", backends[0].Name())
	}

	for range 3 {
		if err := resolution.ExecutionPhaseComplete(); err != nil {
			t.Fatalf("ExecutionPhaseComplete: %v", err)
		}
	}
	if remoteCache.closed != 1 {
		t.Errorf("remote cache closed %d times, want 1", remoteCache.closed)
	}
}

func TestResolveCacheModeWithoutConnection(t *testing.T) {
	env, cfg := testEnvironment(t)
	cfg.Remote.SpawnCache = true
	env.RemoteCache = func(context.Context, *config.RemoteOptions) (remote.ActionCache, error) {
		return nil, errors.New("connection refused")
	}

	resolution, err := Resolve(context.Background(), env, "build-1", "command-1")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if kind := resolution.Backends()[0].Kind(); kind != spawn.KindRemoteCache {
		t.Fatalf("Kind = %v", kind)
	}
	if err := resolution.ExecutionPhaseComplete(); err != nil {
		t.Errorf("ExecutionPhaseComplete with no cache: %v", err)
	}
}

func TestResolveDefaultMode(t *testing.T) {
	env, _ := testEnvironment(t)
	resolution, err := Resolve(context.Background(), env, "build-1", "command-1")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	backends := resolution.Backends()
	if len(backends) != 2 || backends[0].Kind() != spawn.KindRemoteExecution || backends[1].Kind() != spawn.KindWorker {
		t.Fatalf("backends = %v, want remote then worker", kinds(backends))
	}

	chainA := backends[0].(*Fallback).Secondary()
	chainB := backends[1].(*Fallback).Secondary()
	if chainA != chainB {
		t.Error("remote and worker backends do not share one fallback chain")
	}

	s := &spawn.Spawn{
		Mnemonic:   "Genrule",
		Args:       []string{"/bin/sh", "-c", "echo fell back"},
		Env:        map[string]string{"PATH": "/usr/bin:/bin"},
		WorkingDir: t.TempDir(),
	}
	for _, backend := range backends {
		result, err := backend.Execute(context.Background(), s)
		if err != nil {
			t.Fatalf("%s: Execute: %v", backend.Name(), err)
		}
		if result.Backend != spawn.KindLocal || string(result.Stdout) != "fell back\n" {
			t.Errorf("%s: result = %+v, want the local fallback's output", backend.Name(), result)
		}
	}
	if err := resolution.ExecutionPhaseComplete(); err != nil {
		t.Errorf("ExecutionPhaseComplete: %v", err)
	}
}

func kinds(backends []spawn.Backend) []string {
	names := make([]string, len(backends))
	for index, backend := range backends {
		names[index] = backend.Kind().String()
	}
	return names
}
