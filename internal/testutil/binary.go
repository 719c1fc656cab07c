package testutil

import (
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"
)

// FakeBinary writes an executable shell script named name into a temp
// directory and returns its path. The test is skipped on platforms
// without /bin/sh.
func FakeBinary(t *testing.T, name, script string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake binaries need /bin/sh")
	}
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0755); err != nil {
		t.Fatalf("write fake binary: %v", err)
	}
	return path
}

// EchoArgsScript prints each argument on its own line.
const EchoArgsScript = `for a in "$@"; do printf '%s\n' "$a"; done
`

// RequireGit skips the test when git is not on PATH.
func RequireGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
}
