package batch_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/avery-holt/cascade/internal/batch"
)

func TestCombineMergesNonOverlappingFiles(t *testing.T) {
	diffA := "--- a/x.go\n+++ b/x.go\n@@ -1,3 +1,3 @@\n line1\n-line2\n+line2-changed\n line3\n"
	diffB := "--- a/y.go\n+++ b/y.go\n@@ -1,2 +1,2 @@\n-old\n+new\n"

	members := []batch.MemberDiff{
		{TaskID: uuid.New(), Issue: 1, Diff: diffA},
		{TaskID: uuid.New(), Issue: 2, Diff: diffB},
	}

	result, err := batch.Combine("acme/x", members)
	require.NoError(t, err)
	require.Empty(t, result.Conflicts)
	require.Contains(t, result.Diff, "x.go")
	require.Contains(t, result.Diff, "y.go")
	require.Contains(t, result.Title, "#1")
	require.Contains(t, result.Title, "#2")
	require.Contains(t, result.Body, "Closes #1")
	require.Contains(t, result.Body, "Closes #2")
}

func TestCombineDetectsConflictOnOverlappingDeletes(t *testing.T) {
	diffA := "--- a/x.go\n+++ b/x.go\n@@ -1,3 +1,3 @@\n line1\n-line2\n+line2-a\n line3\n"
	diffB := "--- a/x.go\n+++ b/x.go\n@@ -1,3 +1,3 @@\n line1\n-line2\n+line2-b\n line3\n"

	members := []batch.MemberDiff{
		{TaskID: uuid.New(), Issue: 1, Diff: diffA},
		{TaskID: uuid.New(), Issue: 2, Diff: diffB},
	}

	result, err := batch.Combine("acme/x", members)
	require.NoError(t, err)
	require.NotEmpty(t, result.Conflicts)
	require.Empty(t, result.Diff)
	require.Equal(t, "manual", result.Conflicts[0].Resolution)
}

func TestCombineAllowsAdjacentNonConflictingHunksInSameFile(t *testing.T) {
	diffA := "--- a/x.go\n+++ b/x.go\n@@ -1,2 +1,2 @@\n-a1\n+a2\n line3\n"
	diffB := "--- a/x.go\n+++ b/x.go\n@@ -10,2 +10,2 @@\n-b1\n+b2\n line13\n"

	members := []batch.MemberDiff{
		{TaskID: uuid.New(), Issue: 1, Diff: diffA},
		{TaskID: uuid.New(), Issue: 2, Diff: diffB},
	}

	result, err := batch.Combine("acme/x", members)
	require.NoError(t, err)
	require.Empty(t, result.Conflicts)
	require.NotEmpty(t, result.Diff)
}
