package diffvalidator

import (
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// leakedMarkers are lines an agent sometimes echoes verbatim from a prompt
// or from its own scratch reasoning, that are not valid unified-diff syntax
// at that position (e.g. a stray "<<<<<<< ours" merge-conflict marker, or a
// markdown code fence wrapped around the diff).
var leakedMarkers = []string{
	"<<<<<<<",
	"=======",
	">>>>>>>",
	"```diff",
	"```patch",
	"```",
}

// SanitizeResult is the outcome of Sanitize.
type SanitizeResult struct {
	Diff     string
	Rewrites []Rewrite
}

// Rewrite records one line the sanitizer altered, so that no content is
// discarded without a record; QuickCheck turns each one into a warning, and
// the sanitizer itself writes nothing to a logger (Open Question decision:
// the sanitizer does not resolve the risk of a
// false-positive rewrite corrupting an intentional diff line, it only makes
// every rewrite auditable).
type Rewrite struct {
	LineNumber int
	Before     string
	After      string
}

// Sanitize strips leaked fencing/merge-conflict markers an agent may have
// embedded around or inside an otherwise valid unified diff, returning the
// cleaned diff plus a record of every line it touched. It never rewrites a
// line that is itself a legitimate diff line (starts with ' ', '+', '-',
// "@@", "---", "+++") to avoid corrupting content lines that happen to
// start with one of the matched substrings.
func Sanitize(diff string) SanitizeResult {
	lines := strings.Split(diff, "\n")
	var out []string
	var rewrites []Rewrite

	for i, line := range lines {
		if isDiffSyntaxLine(line) {
			out = append(out, line)
			continue
		}
		if marker := matchLeakedMarker(line); marker != "" {
			rewrites = append(rewrites, Rewrite{LineNumber: i + 1, Before: line, After: ""})
			continue
		}
		out = append(out, line)
	}
	return SanitizeResult{Diff: strings.Join(out, "\n"), Rewrites: rewrites}
}

func isDiffSyntaxLine(line string) bool {
	switch {
	case strings.HasPrefix(line, "@@"):
		return true
	case strings.HasPrefix(line, "--- "):
		return true
	case strings.HasPrefix(line, "+++ "):
		return true
	case strings.HasPrefix(line, "diff --git "):
		return true
	case strings.HasPrefix(line, "index "):
		return true
	case line == "":
		return true
	case line[0] == ' ' || line[0] == '+' || line[0] == '-':
		return true
	default:
		return false
	}
}

func matchLeakedMarker(line string) string {
	trimmed := strings.TrimSpace(line)
	for _, m := range leakedMarkers {
		if strings.HasPrefix(trimmed, m) {
			return m
		}
	}
	return ""
}

// TextSimilarity reports 1 minus diffmatchpatch's Levenshtein distance
// between before and after divided by the longer of the two lengths (1 when
// both are empty). It is used by internal/memory to match pattern triggers.
func TextSimilarity(before, after string) float64 {
	if before == "" && after == "" {
		return 1
	}
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(before, after, false)
	distance := dmp.DiffLevenshtein(diffs)
	maxLen := len(before)
	if len(after) > maxLen {
		maxLen = len(after)
	}
	if maxLen == 0 {
		return 1
	}
	return 1 - float64(distance)/float64(maxLen)
}
