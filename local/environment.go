// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package local

import (
	"sort"
	"strings"

	"github.com/bureau-foundation/spawn/lib/spawn"
)

// EnvironmentProvider computes the final environment of a spawn as
// sorted KEY=VALUE pairs.
type EnvironmentProvider interface {
	Environment(spawn *spawn.Spawn) []string
}

// PosixEnvironment passes the spawn's environment through and fills in
// TMPDIR when the spawn does not set it: the client's TMPDIR if it has
// one, /tmp otherwise.
type PosixEnvironment struct {
	// ClientEnv is the environment of the build client, consulted for
	// defaults. It is never passed through wholesale.
	ClientEnv map[string]string
}

// Environment implements EnvironmentProvider.
func (p PosixEnvironment) Environment(s *spawn.Spawn) []string {
	return render(p.base(s))
}

func (p PosixEnvironment) base(s *spawn.Spawn) map[string]string {
	env := make(map[string]string, len(s.Env)+1)
	for key, value := range s.Env {
		env[key] = value
	}
	if _, ok := env["TMPDIR"]; !ok {
		tmpdir := strings.TrimRight(p.ClientEnv["TMPDIR"], "/")
		if tmpdir == "" {
			tmpdir = "/tmp"
		}
		env["TMPDIR"] = tmpdir
	}
	return env
}

// DarwinEnvironment is PosixEnvironment plus DEVELOPER_DIR and SDKROOT
// for spawns carrying the requires-darwin execution info key. The values
// come from the client environment; a spawn's own settings win.
type DarwinEnvironment struct {
	ClientEnv map[string]string
}

// Environment implements EnvironmentProvider.
func (d DarwinEnvironment) Environment(s *spawn.Spawn) []string {
	env := PosixEnvironment{ClientEnv: d.ClientEnv}.base(s)
	if _, ok := s.ExecutionInfo[spawn.InfoRequiresDarwin]; ok {
		for _, key := range []string{"DEVELOPER_DIR", "SDKROOT"} {
			if _, set := env[key]; set {
				continue
			}
			if value := d.ClientEnv[key]; value != "" {
				env[key] = value
			}
		}
	}
	return render(env)
}

// ProviderFor returns the environment provider for goos.
func ProviderFor(goos string, clientEnv map[string]string) EnvironmentProvider {
	if goos == "darwin" {
		return DarwinEnvironment{ClientEnv: clientEnv}
	}
	return PosixEnvironment{ClientEnv: clientEnv}
}

// ClientEnvironment converts os.Environ-style pairs into a map. Entries
// without '=' are dropped.
func ClientEnvironment(pairs []string) map[string]string {
	env := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			continue
		}
		env[key] = value
	}
	return env
}

func render(env map[string]string) []string {
	list := make([]string, 0, len(env))
	for key, value := range env {
		list = append(list, key+"="+value)
	}
	sort.Strings(list)
	return list
}
