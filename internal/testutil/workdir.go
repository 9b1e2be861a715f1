package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

// WorkDir builds a real scratch directory containing a .cascade/typecheck.sh
// stub, standing in for the checked-out branch diffvalidator.FullCheck
// execs against (spec.md §4.4's CommandTypecheck shells out to
// .cascade/typecheck.sh relative to the command's WorkDir). script is the
// stub's full body, e.g. "exit 0" for an always-passing check or a counter
// script for a fail-then-pass sequence.
func WorkDir(t *testing.T, script string) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, ".cascade"), 0o755); err != nil {
		t.Fatalf("failed to create .cascade dir: %v", err)
	}
	body := "#!/bin/sh\n" + script + "\n"
	if err := os.WriteFile(filepath.Join(dir, ".cascade", "typecheck.sh"), []byte(body), 0o755); err != nil {
		t.Fatalf("failed to write typecheck.sh: %v", err)
	}
	return dir
}

// FlakyTypecheckWorkDir writes a typecheck.sh that fails for the first
// failUntil invocations (tracked via a counter file alongside the script)
// and passes thereafter, for scenarios that need a diff to fail validation
// N times before succeeding.
func FlakyTypecheckWorkDir(t *testing.T, failUntil int) string {
	t.Helper()
	script := fmt.Sprintf(`
count_file="$(dirname "$0")/count"
n=0
if [ -f "$count_file" ]; then n=$(cat "$count_file"); fi
n=$((n + 1))
echo "$n" > "$count_file"
if [ "$n" -le %d ]; then
  exit 1
fi
exit 0
`, failUntil)
	return WorkDir(t, script)
}
