// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package local

import (
	"slices"
	"testing"

	"github.com/bureau-foundation/spawn/lib/spawn"
)

func TestPosixEnvironmentTMPDIR(t *testing.T) {
	tests := []struct {
		name      string
		spawnEnv  map[string]string
		clientEnv map[string]string
		want      string
	}{
		{"default", nil, nil, "TMPDIR=/tmp"},
		{"client", nil, map[string]string{"TMPDIR": "/var/tmp/"}, "TMPDIR=/var/tmp"},
		{"spawn wins", map[string]string{"TMPDIR": "/scratch"}, map[string]string{"TMPDIR": "/var/tmp"}, "TMPDIR=/scratch"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			provider := PosixEnvironment{ClientEnv: test.clientEnv}
			env := provider.Environment(&spawn.Spawn{Env: test.spawnEnv})
			if !slices.Contains(env, test.want) {
				t.Errorf("Environment() = %v, want %s", env, test.want)
			}
		})
	}
}

func TestPosixEnvironmentDoesNotLeakClient(t *testing.T) {
	provider := PosixEnvironment{ClientEnv: map[string]string{"SECRET_TOKEN": "hunter2"}}
	env := provider.Environment(&spawn.Spawn{Env: map[string]string{"PATH": "/bin", "LANG": "C"}})

	want := []string{"LANG=C", "PATH=/bin", "TMPDIR=/tmp"}
	if !slices.Equal(env, want) {
		t.Errorf("Environment() = %v, want %v", env, want)
	}
}

func TestDarwinEnvironmentXcode(t *testing.T) {
	client := map[string]string{
		"DEVELOPER_DIR": "/Applications/Xcode.app/Contents/Developer",
		"SDKROOT":       "/sdk/MacOSX.sdk",
	}
	provider := DarwinEnvironment{ClientEnv: client}

	plain := provider.Environment(&spawn.Spawn{})
	if slices.ContainsFunc(plain, func(entry string) bool { return entry == "SDKROOT=/sdk/MacOSX.sdk" }) {
		t.Errorf("SDKROOT exposed to a spawn that did not ask for Xcode: %v", plain)
	}

	xcode := provider.Environment(&spawn.Spawn{
		Env:           map[string]string{"SDKROOT": "/custom.sdk"},
		ExecutionInfo: map[string]string{spawn.InfoRequiresDarwin: ""},
	})
	if !slices.Contains(xcode, "DEVELOPER_DIR=/Applications/Xcode.app/Contents/Developer") {
		t.Errorf("DEVELOPER_DIR missing: %v", xcode)
	}
	if !slices.Contains(xcode, "SDKROOT=/custom.sdk") {
		t.Errorf("spawn SDKROOT overridden: %v", xcode)
	}
}

func TestProviderFor(t *testing.T) {
	if _, ok := ProviderFor("darwin", nil).(DarwinEnvironment); !ok {
		t.Error("darwin did not select DarwinEnvironment")
	}
	for _, goos := range []string{"linux", "freebsd"} {
		if _, ok := ProviderFor(goos, nil).(PosixEnvironment); !ok {
			t.Errorf("%s did not select PosixEnvironment", goos)
		}
	}
}

func TestClientEnvironment(t *testing.T) {
	env := ClientEnvironment([]string{"A=1", "B=x=y", "malformed", "=orphan"})
	if len(env) != 2 || env["A"] != "1" || env["B"] != "x=y" {
		t.Errorf("ClientEnvironment = %v", env)
	}
}
