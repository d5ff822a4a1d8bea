// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package remote

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/bureau-foundation/spawn/lib/codec"
	"github.com/bureau-foundation/spawn/lib/digest"
	"github.com/bureau-foundation/spawn/lib/spawn"
)

// actionRecord is the canonical form hashed into an action key. The
// working directory is deliberately absent: the same action in two
// checkouts shares cache entries.
type actionRecord struct {
	Mnemonic string            `cbor:"mnemonic"`
	Args     []string          `cbor:"args"`
	Env      map[string]string `cbor:"env"`
	Inputs   []inputRecord     `cbor:"inputs"`
	Outputs  []string          `cbor:"outputs"`
}

type inputRecord struct {
	Path   string      `cbor:"path"`
	Digest digest.Hash `cbor:"digest"`
}

// ActionKey derives the cache key of s from its command, environment,
// declared outputs, and the content of its declared inputs. Input paths
// are resolved against s.WorkingDir; a missing input is an error.
func ActionKey(s *spawn.Spawn) (digest.Hash, error) {
	inputs := make([]inputRecord, 0, len(s.Inputs))
	for _, input := range s.Inputs {
		hash, err := digest.File(filepath.Join(s.WorkingDir, input))
		if err != nil {
			return digest.Hash{}, fmt.Errorf("digesting input %s: %w", input, err)
		}
		inputs = append(inputs, inputRecord{Path: filepath.ToSlash(filepath.Clean(input)), Digest: hash})
	}
	sort.Slice(inputs, func(i, j int) bool { return inputs[i].Path < inputs[j].Path })

	outputs := make([]string, 0, len(s.Outputs))
	for _, output := range s.Outputs {
		outputs = append(outputs, filepath.ToSlash(filepath.Clean(output)))
	}
	sort.Strings(outputs)

	env := s.Env
	if env == nil {
		env = map[string]string{}
	}

	encoded, err := codec.Marshal(actionRecord{
		Mnemonic: s.Mnemonic,
		Args:     s.Args,
		Env:      env,
		Inputs:   inputs,
		Outputs:  outputs,
	})
	if err != nil {
		return digest.Hash{}, fmt.Errorf("encoding action: %w", err)
	}
	return digest.Bytes(digest.ActionDomain, encoded), nil
}
