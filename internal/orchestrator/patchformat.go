package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/hexops/gotextdiff"
	"github.com/hexops/gotextdiff/myers"
	"github.com/hexops/gotextdiff/span"

	"github.com/avery-holt/cascade/internal/cerr"
	"github.com/avery-holt/cascade/internal/vcs"
)

// Alternate-patch-format markers. A coder using this format emits one block
// per touched file: the path, then a SEARCH/REPLACE pair naming the exact
// text to find in the current file content and what to replace it with.
// normalizePatch converts this into a real unified diff so the rest of the
// pipeline (gate.CodingComplete, diffvalidator, DiffCombiner) never has to
// know a second format exists.
const (
	altFileMarker    = "### FILE: "
	altSearchMarker  = "<<<<<<< SEARCH"
	altDividerMarker = "======="
	altReplaceMarker = ">>>>>>> REPLACE"
)

type altBlock struct {
	Path    string
	Search  string
	Replace string
}

// normalizePatch converts diff into a unified diff if format is "alternate",
// or returns it unchanged for "unified" (or unset, treated as unified).
func normalizePatch(ctx context.Context, host vcs.Host, repo, branch, format, diff string) (string, error) {
	if format != "alternate" {
		return diff, nil
	}

	blocks, err := parseAltBlocks(diff)
	if err != nil {
		return "", err
	}
	if len(blocks) == 0 {
		return "", cerr.New(cerr.InvalidDiff, "alternate patch format diff contained no SEARCH/REPLACE blocks", "", true)
	}

	paths := make([]string, 0, len(blocks))
	seen := make(map[string]bool)
	for _, b := range blocks {
		if !seen[b.Path] {
			seen[b.Path] = true
			paths = append(paths, b.Path)
		}
	}

	originals, err := host.GetFilesContent(ctx, repo, paths, branch)
	if err != nil {
		return "", cerr.Wrap(cerr.InvalidDiff, "failed to load file content for alternate-format patch conversion", "", true, err)
	}

	after := make(map[string]string, len(paths))
	for _, p := range paths {
		after[p] = originals[p]
	}
	for _, b := range blocks {
		cur := after[b.Path]
		if !strings.Contains(cur, b.Search) {
			return "", cerr.Newf(cerr.InvalidDiff, "", true, "%s: SEARCH block not found in current file content", b.Path)
		}
		after[b.Path] = strings.Replace(cur, b.Search, b.Replace, 1)
	}

	var combined strings.Builder
	for _, p := range paths {
		before := originals[p]
		uri := span.URIFromPath(p)
		edits := myers.ComputeEdits(uri, before, after[p])
		unified := gotextdiff.ToUnified("a/"+p, "b/"+p, before, edits)
		fmt.Fprint(&combined, unified)
	}
	return combined.String(), nil
}

// parseAltBlocks scans diff for the "### FILE:" / SEARCH / REPLACE grammar
// described above. Malformed blocks (a marker with no matching close) are
// reported as cerr.InvalidDiff rather than silently dropped.
func parseAltBlocks(diff string) ([]altBlock, error) {
	lines := strings.Split(diff, "\n")
	var blocks []altBlock

	i := 0
	for i < len(lines) {
		line := lines[i]
		if !strings.HasPrefix(line, altFileMarker) {
			i++
			continue
		}
		path := strings.TrimSpace(strings.TrimPrefix(line, altFileMarker))
		i++

		for i < len(lines) && strings.TrimSpace(lines[i]) != altSearchMarker {
			i++
		}
		if i >= len(lines) {
			return nil, cerr.Newf(cerr.InvalidDiff, "", true, "%s: missing SEARCH marker", path)
		}
		i++

		var search, replace []string
		for i < len(lines) && strings.TrimSpace(lines[i]) != altDividerMarker {
			search = append(search, lines[i])
			i++
		}
		if i >= len(lines) {
			return nil, cerr.Newf(cerr.InvalidDiff, "", true, "%s: missing ======= divider", path)
		}
		i++

		for i < len(lines) && strings.TrimSpace(lines[i]) != altReplaceMarker {
			replace = append(replace, lines[i])
			i++
		}
		if i >= len(lines) {
			return nil, cerr.Newf(cerr.InvalidDiff, "", true, "%s: missing REPLACE marker", path)
		}
		i++

		blocks = append(blocks, altBlock{
			Path:    path,
			Search:  strings.Join(search, "\n"),
			Replace: strings.Join(replace, "\n"),
		})
	}
	return blocks, nil
}
