// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package strategy

import (
	"context"
	"errors"
	"testing"

	"github.com/bureau-foundation/spawn/lib/spawn"
)

type stubBackend struct {
	kind   spawn.Kind
	result *spawn.Result
	err    error
	calls  int
}

func (b *stubBackend) Kind() spawn.Kind { return b.kind }
func (b *stubBackend) Name() string     { return b.kind.String() }

func (b *stubBackend) Execute(context.Context, *spawn.Spawn) (*spawn.Result, error) {
	b.calls++
	return b.result, b.err
}

func testSpawn() *spawn.Spawn {
	return &spawn.Spawn{Mnemonic: "Genrule", Args: []string{"true"}, WorkingDir: "/work"}
}

func TestFallbackSkipsSecondaryOnActionFailure(t *testing.T) {
	primary := &stubBackend{kind: spawn.KindRemoteExecution, result: &spawn.Result{ExitCode: 1}}
	secondary := &stubBackend{kind: spawn.KindLocal, result: &spawn.Result{}}

	result, err := WithFallback(primary, secondary, nil).Execute(context.Background(), testSpawn())
	if err != nil || result.ExitCode != 1 {
		t.Fatalf("Execute = %+v, %v; want the primary's failed result", result, err)
	}
	if secondary.calls != 0 {
		t.Error("secondary ran after an action failure")
	}
}

func TestFallbackRunsSecondaryOnInfrastructureFailure(t *testing.T) {
	primary := &stubBackend{kind: spawn.KindWorker, err: spawn.Infrastructure(spawn.KindWorker, errors.New("no pool"))}
	secondary := &stubBackend{kind: spawn.KindSandboxed, result: &spawn.Result{Backend: spawn.KindSandboxed}}

	fallback := WithFallback(primary, secondary, nil)
	result, err := fallback.Execute(context.Background(), testSpawn())
	if err != nil || result.Backend != spawn.KindSandboxed {
		t.Fatalf("Execute = %+v, %v; want the secondary's result", result, err)
	}
	if fallback.Kind() != spawn.KindWorker {
		t.Errorf("Kind = %v, want the primary's kind", fallback.Kind())
	}
	if fallback.Name() != "worker -> sandboxed" {
		t.Errorf("Name = %q", fallback.Name())
	}
}

func TestFallbackReturnsOtherErrors(t *testing.T) {
	plain := errors.New("invalid spawn")
	primary := &stubBackend{kind: spawn.KindRemoteExecution, err: plain}
	secondary := &stubBackend{kind: spawn.KindLocal}

	if _, err := WithFallback(primary, secondary, nil).Execute(context.Background(), testSpawn()); !errors.Is(err, plain) {
		t.Fatalf("err = %v, want %v", err, plain)
	}
	if secondary.calls != 0 {
		t.Error("secondary ran for a non-infrastructure error")
	}
}

func TestFallbackNotAfterCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	primary := &stubBackend{kind: spawn.KindRemoteExecution, err: spawn.Infrastructure(spawn.KindRemoteExecution, context.Canceled)}
	secondary := &stubBackend{kind: spawn.KindLocal}

	if _, err := WithFallback(primary, secondary, nil).Execute(ctx, testSpawn()); err == nil {
		t.Fatal("Execute succeeded after cancellation")
	}
	if secondary.calls != 0 {
		t.Error("secondary ran after cancellation")
	}
}

func TestFallbackWithoutSecondary(t *testing.T) {
	failure := spawn.Infrastructure(spawn.KindWorker, errors.New("down"))
	fallback := WithFallback(&stubBackend{kind: spawn.KindWorker, err: failure}, nil, nil)
	if _, err := fallback.Execute(context.Background(), testSpawn()); !spawn.IsInfrastructure(err) {
		t.Fatalf("err = %v, want the primary's infrastructure error", err)
	}
	if fallback.Name() != "worker" {
		t.Errorf("Name = %q", fallback.Name())
	}
}
