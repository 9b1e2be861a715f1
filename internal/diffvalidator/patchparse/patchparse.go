// Package patchparse implements the explicit multi-file unified-diff parser
// spec.md §9 calls for ("use an explicit parser producing
// [{path, hunks:[{oldStart,oldCount,newStart,newCount,lines[]}]}]; do not
// rely on regex slicing for correctness across edge cases"). gotextdiff
// (wired elsewhere in this module for hunk-header recomputation) only
// generates unified diffs, it doesn't parse them back, so this parser is
// hand-rolled against the same unified-diff grammar it emits.
package patchparse

import (
	"strconv"
	"strings"

	"github.com/avery-holt/cascade/internal/cerr"
)

// Hunk is one @@ ... @@ block of a unified diff.
type Hunk struct {
	OldStart int
	OldCount int
	NewStart int
	NewCount int
	Lines    []string // including the leading ' '/'+'/'-' marker
}

// File is one file's worth of hunks within a multi-file diff.
type File struct {
	Path       string
	Deleted    bool
	Renamed    bool
	NoNewlineAtEOF bool
	Hunks      []Hunk
}

// Parse splits diff into per-file hunk sets. It recognizes standard
// `--- a/path` / `+++ b/path` headers, `@@ -o,oc +n,nc @@` hunk headers,
// `Binary files ... differ` (skipped, reported via File.Deleted=false but
// no hunks), rename headers (`rename from`/`rename to`), and a trailing
// `\ No newline at end of file` marker.
func Parse(diff string) ([]File, error) {
	lines := strings.Split(diff, "\n")
	var files []File
	var cur *File
	var curHunk *Hunk

	flushHunk := func() {
		if cur != nil && curHunk != nil {
			cur.Hunks = append(cur.Hunks, *curHunk)
			curHunk = nil
		}
	}
	flushFile := func() {
		flushHunk()
		if cur != nil {
			files = append(files, *cur)
			cur = nil
		}
	}

	for i := 0; i < len(lines); i++ {
		line := lines[i]
		switch {
		case strings.HasPrefix(line, "--- "):
			flushFile()
			cur = &File{}
		case strings.HasPrefix(line, "+++ "):
			if cur == nil {
				cur = &File{}
			}
			path := strings.TrimPrefix(line, "+++ ")
			path = strings.TrimPrefix(path, "b/")
			if path == "/dev/null" {
				cur.Deleted = true
			}
			cur.Path = path
		case strings.HasPrefix(line, "rename from "):
			if cur == nil {
				cur = &File{}
			}
			cur.Renamed = true
		case strings.HasPrefix(line, "rename to "):
			if cur == nil {
				cur = &File{}
			}
			cur.Renamed = true
			cur.Path = strings.TrimPrefix(line, "rename to ")
		case strings.HasPrefix(line, "@@"):
			flushHunk()
			h, err := parseHunkHeader(line)
			if err != nil {
				return nil, err
			}
			curHunk = &h
		case strings.HasPrefix(line, "\\ No newline at end of file"):
			if cur != nil {
				cur.NoNewlineAtEOF = true
			}
		case curHunk != nil:
			if line == "" && i == len(lines)-1 {
				continue
			}
			curHunk.Lines = append(curHunk.Lines, line)
		}
	}
	flushFile()

	if len(files) == 0 {
		return nil, cerr.New(cerr.InvalidDiff, "no file headers found in diff", "", true)
	}
	return files, nil
}

// parseHunkHeader parses "@@ -oldStart,oldCount +newStart,newCount @@ ..."
// tolerating the single-line form ("@@ -5 +5 @@", count defaults to 1).
func parseHunkHeader(line string) (Hunk, error) {
	parts := strings.SplitN(line, "@@", 3)
	if len(parts) < 2 {
		return Hunk{}, cerr.New(cerr.InvalidDiff, "malformed hunk header: "+line, "", true)
	}
	ranges := strings.Fields(parts[1])
	if len(ranges) < 2 {
		return Hunk{}, cerr.New(cerr.InvalidDiff, "malformed hunk header ranges: "+line, "", true)
	}
	oldStart, oldCount, err := parseRange(ranges[0], "-")
	if err != nil {
		return Hunk{}, err
	}
	newStart, newCount, err := parseRange(ranges[1], "+")
	if err != nil {
		return Hunk{}, err
	}
	return Hunk{OldStart: oldStart, OldCount: oldCount, NewStart: newStart, NewCount: newCount}, nil
}

func parseRange(token, sign string) (start, count int, err error) {
	token = strings.TrimPrefix(token, sign)
	fields := strings.SplitN(token, ",", 2)
	start, err = strconv.Atoi(fields[0])
	if err != nil {
		return 0, 0, cerr.Wrap(cerr.InvalidDiff, "malformed hunk range start: "+token, "", true, err)
	}
	count = 1
	if len(fields) == 2 {
		count, err = strconv.Atoi(fields[1])
		if err != nil {
			return 0, 0, cerr.Wrap(cerr.InvalidDiff, "malformed hunk range count: "+token, "", true, err)
		}
	}
	return start, count, nil
}

// BalancedHunks reports whether every hunk's declared OldCount/NewCount
// matches the number of context/removed and context/added lines it actually
// carries (the "balanced hunks" quick check from spec.md §4.3).
func BalancedHunks(f File) bool {
	for _, h := range f.Hunks {
		oldLines, newLines := 0, 0
		for _, l := range h.Lines {
			if l == "" {
				continue
			}
			switch l[0] {
			case ' ':
				oldLines++
				newLines++
			case '-':
				oldLines++
			case '+':
				newLines++
			}
		}
		if oldLines != h.OldCount || newLines != h.NewCount {
			return false
		}
	}
	return true
}
