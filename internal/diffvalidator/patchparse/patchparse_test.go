package patchparse_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/avery-holt/cascade/internal/diffvalidator/patchparse"
)

func TestParseMultiFileDiff(t *testing.T) {
	diff := "--- a/a.go\n" +
		"+++ b/a.go\n" +
		"@@ -1,2 +1,3 @@\n" +
		" package main\n" +
		"-func old() {}\n" +
		"+func new() {}\n" +
		"+func extra() {}\n" +
		"--- a/b.go\n" +
		"+++ /dev/null\n" +
		"@@ -1,1 +0,0 @@\n" +
		"-package removed\n"

	files, err := patchparse.Parse(diff)
	require.NoError(t, err)
	require.Len(t, files, 2)

	require.Equal(t, "a.go", files[0].Path)
	require.False(t, files[0].Deleted)
	require.Len(t, files[0].Hunks, 1)
	require.Equal(t, 1, files[0].Hunks[0].OldStart)
	require.Equal(t, 2, files[0].Hunks[0].OldCount)
	require.Equal(t, 1, files[0].Hunks[0].NewStart)
	require.Equal(t, 3, files[0].Hunks[0].NewCount)

	require.True(t, files[1].Deleted)
}

func TestParseRejectsEmptyDiff(t *testing.T) {
	_, err := patchparse.Parse("")
	require.Error(t, err)
}

func TestBalancedHunksDetectsMismatch(t *testing.T) {
	diff := "--- a/a.go\n" +
		"+++ b/a.go\n" +
		"@@ -1,9 +1,9 @@\n" +
		" package main\n"
	files, err := patchparse.Parse(diff)
	require.NoError(t, err)
	require.False(t, patchparse.BalancedHunks(files[0]))
}

func TestParseSingleLineHunkHeaderDefaultsCountToOne(t *testing.T) {
	diff := "--- a/a.go\n" +
		"+++ b/a.go\n" +
		"@@ -5 +5 @@\n" +
		"-old\n" +
		"+new\n"
	files, err := patchparse.Parse(diff)
	require.NoError(t, err)
	require.Equal(t, 1, files[0].Hunks[0].OldCount)
	require.Equal(t, 1, files[0].Hunks[0].NewCount)
	require.True(t, patchparse.BalancedHunks(files[0]))
}
