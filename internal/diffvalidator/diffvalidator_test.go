package diffvalidator_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/avery-holt/cascade/internal/diffvalidator"
)

const validDiff = "--- a/greet.ts\n" +
	"+++ b/greet.ts\n" +
	"@@ -1,2 +1,2 @@\n" +
	" export function greet() {\n" +
	"-  return 'hi'\n" +
	"+  return 'hello'\n"

func TestQuickCheckAcceptsWellFormedDiff(t *testing.T) {
	res := diffvalidator.QuickCheck(validDiff)
	require.True(t, res.Valid, "errors: %v", res.Errors)
	require.Empty(t, res.Errors)
}

func TestQuickCheckRejectsUnbalancedHunk(t *testing.T) {
	broken := "--- a/greet.ts\n" +
		"+++ b/greet.ts\n" +
		"@@ -1,5 +1,5 @@\n" +
		" export function greet() {\n" +
		"-  return 'hi'\n"
	res := diffvalidator.QuickCheck(broken)
	require.False(t, res.Valid)
	require.NotEmpty(t, res.Errors)
}

func TestQuickCheckSanitizesLeakedMergeMarkers(t *testing.T) {
	leaky := "--- a/greet.ts\n" +
		"+++ b/greet.ts\n" +
		"@@ -1,1 +1,1 @@\n" +
		"<<<<<<< ours\n" +
		"-old\n" +
		"+new\n"
	res := diffvalidator.QuickCheck(leaky)
	require.NotEmpty(t, res.Rewrites)
	require.NotEmpty(t, res.Warnings)
}

// TestQuickCheckIsIdempotent covers invariant 6 (spec.md §8): running
// QuickCheck twice over its own (already-sanitized) output must yield the
// same verdict, since sanitization neither introduces nor removes
// structural errors it didn't already report.
func TestQuickCheckIsIdempotent(t *testing.T) {
	first := diffvalidator.QuickCheck(validDiff)
	second := diffvalidator.QuickCheck(diffvalidator.Sanitize(validDiff).Diff)
	require.Equal(t, first.Valid, second.Valid)
	require.Equal(t, first.Errors, second.Errors)
}
