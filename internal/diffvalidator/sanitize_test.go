package diffvalidator_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/avery-holt/cascade/internal/diffvalidator"
)

func TestSanitizeStripsCodeFence(t *testing.T) {
	diff := "```diff\n" +
		"--- a/x\n" +
		"+++ b/x\n" +
		"@@ -1,1 +1,1 @@\n" +
		"-old\n" +
		"+new\n" +
		"```\n"
	res := diffvalidator.Sanitize(diff)
	require.Len(t, res.Rewrites, 2)
	require.NotContains(t, res.Diff, "```")
}

func TestSanitizeLeavesLegitimateContentLinesAlone(t *testing.T) {
	diff := "--- a/x\n" +
		"+++ b/x\n" +
		"@@ -1,1 +1,1 @@\n" +
		"-const marker = \"===\"\n" +
		"+const marker = \"----\"\n"
	res := diffvalidator.Sanitize(diff)
	require.Empty(t, res.Rewrites)
	require.Equal(t, diff, res.Diff)
}

func TestTextSimilarityIdenticalIsOne(t *testing.T) {
	require.Equal(t, 1.0, diffvalidator.TextSimilarity("abc", "abc"))
}

func TestTextSimilarityDivergesWithEdits(t *testing.T) {
	sim := diffvalidator.TextSimilarity("hello world", "goodbye world")
	require.Less(t, sim, 1.0)
	require.Greater(t, sim, 0.0)
}
