package buildinfo

import (
	"runtime"
	"strings"
	"testing"
)

func TestGet(t *testing.T) {
	info := Get()

	tests := []struct {
		name  string
		value string
	}{
		{"Version", info.Version},
		{"Commit", info.Commit},
		{"BuildTime", info.BuildTime},
		{"GoVersion", info.GoVersion},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.value == "" {
				t.Errorf("%s field should not be empty", tt.name)
			}
		})
	}

	if info.GoVersion != runtime.Version() {
		t.Errorf("GoVersion = %q, want %q", info.GoVersion, runtime.Version())
	}
}

func TestGet_LdflagsWin(t *testing.T) {
	prevVersion, prevCommit := Version, Commit
	defer func() { Version, Commit = prevVersion, prevCommit }()

	Version, Commit = "v1.2.3", "abcdef0"
	info := Get()
	if info.Version != "v1.2.3" || info.Commit != "abcdef0" {
		t.Errorf("Get() = %+v, want injected values", info)
	}
}

func TestString(t *testing.T) {
	s := String()
	info := Get()

	if !strings.HasPrefix(s, info.Version+" ("+info.Commit) {
		t.Errorf("String() = %q, want version and commit prefix", s)
	}
	if !strings.Contains(s, "built at "+info.BuildTime) {
		t.Errorf("String() = %q, missing build time", s)
	}
}

func TestShortRevision(t *testing.T) {
	if got := shortRevision("0123456789abcdef0123"); got != "0123456789ab" {
		t.Errorf("shortRevision = %q", got)
	}
	if got := shortRevision("abc"); got != "abc" {
		t.Errorf("shortRevision = %q", got)
	}
}
