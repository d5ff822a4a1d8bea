// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package strategy

import (
	"context"
	"log/slog"

	"github.com/bureau-foundation/spawn/lib/spawn"
)

// Fallback runs spawns on a primary backend and retries infrastructure
// failures on a secondary. It is immutable once built.
type Fallback struct {
	primary   spawn.Backend
	secondary spawn.Backend
	logger    *slog.Logger
}

// WithFallback composes primary and secondary. A nil secondary returns
// spawns' infrastructure failures unchanged.
func WithFallback(primary, secondary spawn.Backend, logger *slog.Logger) *Fallback {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fallback{primary: primary, secondary: secondary, logger: logger}
}

// Kind implements spawn.Backend. It is the primary's kind.
func (f *Fallback) Kind() spawn.Kind { return f.primary.Kind() }

// Name implements spawn.Backend.
func (f *Fallback) Name() string {
	if f.secondary == nil {
		return f.primary.Name()
	}
	return f.primary.Name() + " -> " + f.secondary.Name()
}

// Primary returns the backend tried first.
func (f *Fallback) Primary() spawn.Backend { return f.primary }

// Secondary returns the fallback backend, or nil.
func (f *Fallback) Secondary() spawn.Backend { return f.secondary }

// Execute implements spawn.Backend.
func (f *Fallback) Execute(ctx context.Context, s *spawn.Spawn) (*spawn.Result, error) {
	result, err := f.primary.Execute(ctx, s)
	if err == nil || f.secondary == nil || !spawn.IsInfrastructure(err) || ctx.Err() != nil {
		return result, err
	}
	f.logger.Debug("falling back",
		"mnemonic", s.Mnemonic,
		"backend", f.primary.Kind().String(),
		"fallback", f.secondary.Name(),
		"error", err,
	)
	return f.secondary.Execute(ctx, s)
}
