package batch

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/hexops/gotextdiff"
	"github.com/hexops/gotextdiff/myers"
	"github.com/hexops/gotextdiff/span"

	"github.com/avery-holt/cascade/internal/cerr"
	"github.com/avery-holt/cascade/internal/diffvalidator/patchparse"
)

// MemberDiff is one batch member's contribution to the combine.
type MemberDiff struct {
	TaskID uuid.UUID
	Issue  int
	Diff   string
}

// Conflict records two member hunks touching the same region of a file,
// where at least one deletes lines (spec.md §4.9's DiffCombiner rule).
type Conflict struct {
	File       string
	Line       int
	TaskIDs    []uuid.UUID
	Resolution string
}

// Result is what Combine produces for a ready batch.
type Result struct {
	Diff          string
	Conflicts     []Conflict
	Title         string
	CommitMessage string
	Body          string
}

type taggedHunk struct {
	hunk   patchparse.Hunk
	taskID uuid.UUID
}

// Combine parses every member's diff, detects cross-member hunk conflicts
// per file, and on success emits one recomputed unified diff plus a combined
// title/commit message/PR body. If any file has a conflict the whole batch
// fails (spec.md §4.9): callers must fall back every member to an individual
// PR rather than using Result.Diff.
func Combine(repo string, members []MemberDiff) (Result, error) {
	byFile := make(map[string][]taggedHunk)
	var order []string

	for _, m := range members {
		files, err := patchparse.Parse(m.Diff)
		if err != nil {
			return Result{}, cerr.Wrap(cerr.InvalidDiff, "failed to parse member diff", m.TaskID.String(), true, err)
		}
		for _, f := range files {
			if _, ok := byFile[f.Path]; !ok {
				order = append(order, f.Path)
			}
			for _, h := range f.Hunks {
				byFile[f.Path] = append(byFile[f.Path], taggedHunk{hunk: h, taskID: m.TaskID})
			}
		}
	}
	sort.Strings(order)

	var conflicts []Conflict
	for _, path := range order {
		hunks := byFile[path]
		sort.SliceStable(hunks, func(i, j int) bool { return hunks[i].hunk.OldStart < hunks[j].hunk.OldStart })
		conflicts = append(conflicts, detectConflicts(path, hunks)...)
	}
	if len(conflicts) > 0 {
		return Result{Conflicts: conflicts}, nil
	}

	var combined strings.Builder
	for _, path := range order {
		hunks := byFile[path]
		sort.SliceStable(hunks, func(i, j int) bool { return hunks[i].hunk.OldStart < hunks[j].hunk.OldStart })
		section, err := recomputeFile(path, hunks)
		if err != nil {
			return Result{}, err
		}
		combined.WriteString(section)
	}

	issues := make([]int, 0, len(members))
	for _, m := range members {
		issues = append(issues, m.Issue)
	}
	return Result{
		Diff:          combined.String(),
		Title:         combinedTitle(issues),
		CommitMessage: combinedCommitMessage(repo, issues),
		Body:          combinedBody(issues),
	}, nil
}

// detectConflicts flags any pair of hunks in the same file whose old-line
// ranges overlap where at least one hunk deletes lines.
func detectConflicts(path string, hunks []taggedHunk) []Conflict {
	var out []Conflict
	for i := 0; i < len(hunks); i++ {
		for j := i + 1; j < len(hunks); j++ {
			a, b := hunks[i], hunks[j]
			if !rangesOverlap(a.hunk, b.hunk) {
				continue
			}
			if !deletesLines(a.hunk) && !deletesLines(b.hunk) {
				continue
			}
			out = append(out, Conflict{
				File:       path,
				Line:       b.hunk.OldStart,
				TaskIDs:    []uuid.UUID{a.taskID, b.taskID},
				Resolution: "manual",
			})
		}
	}
	return out
}

func rangesOverlap(a, b patchparse.Hunk) bool {
	aEnd := a.OldStart + a.OldCount
	bEnd := b.OldStart + b.OldCount
	return a.OldStart < bEnd && b.OldStart < aEnd
}

func deletesLines(h patchparse.Hunk) bool {
	for _, l := range h.Lines {
		if strings.HasPrefix(l, "-") {
			return true
		}
	}
	return false
}

// recomputeFile reconstructs a before/after text per file from its
// non-conflicting hunks (context+removed for before, context+added for
// after) and hands the pair to gotextdiff, so header renumbering
// (newStart/oldCount/newCount) comes from gotextdiff's own unified-diff
// formatter rather than hand-rolled arithmetic.
func recomputeFile(path string, hunks []taggedHunk) (string, error) {
	var before, after strings.Builder
	for _, th := range hunks {
		for _, l := range th.hunk.Lines {
			if l == "" {
				continue
			}
			switch l[0] {
			case ' ':
				before.WriteString(l[1:])
				before.WriteString("\n")
				after.WriteString(l[1:])
				after.WriteString("\n")
			case '-':
				before.WriteString(l[1:])
				before.WriteString("\n")
			case '+':
				after.WriteString(l[1:])
				after.WriteString("\n")
			}
		}
	}

	uri := span.URIFromPath(path)
	edits := myers.ComputeEdits(uri, before.String(), after.String())
	unified := gotextdiff.ToUnified("a/"+path, "b/"+path, before.String(), edits)
	return fmt.Sprint(unified), nil
}

func combinedTitle(issues []int) string {
	var sb strings.Builder
	sb.WriteString("Batch: ")
	for i, n := range issues {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "#%d", n)
	}
	return sb.String()
}

func combinedCommitMessage(repo string, issues []int) string {
	return fmt.Sprintf("Combine %d issues in %s", len(issues), repo)
}

func combinedBody(issues []int) string {
	var sb strings.Builder
	sb.WriteString("This PR batches the following issues:\n")
	for _, n := range issues {
		fmt.Fprintf(&sb, "- Closes #%d\n", n)
	}
	return sb.String()
}
