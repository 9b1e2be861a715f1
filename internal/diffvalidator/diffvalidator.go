// Package diffvalidator implements the two-stage DiffValidator from
// spec.md §4.3: a quick, I/O-free structural check, followed by a full
// check that syntax- and typechecks the diff against a real toolchain via
// internal/cmdexec.
package diffvalidator

import (
	"context"
	"fmt"
	"strings"

	"github.com/avery-holt/cascade/internal/cerr"
	"github.com/avery-holt/cascade/internal/cmdexec"
	"github.com/avery-holt/cascade/internal/diffvalidator/patchparse"
)

// Result is the (valid, errors[], warnings[]) triple spec.md §4.3 requires.
type Result struct {
	Valid    bool
	Errors   []string
	Warnings []string
	Rewrites []Rewrite
}

// QuickCheck runs the no-I/O stage: sanitizes leaked markers, then parses
// the diff and verifies well-formed headers and balanced hunks. It never
// performs a syntax check or a typecheck — those belong to FullCheck.
func QuickCheck(diff string) Result {
	sanitized := Sanitize(diff)
	res := Result{Rewrites: sanitized.Rewrites}
	for _, rw := range sanitized.Rewrites {
		res.Warnings = append(res.Warnings, fmt.Sprintf("sanitizer rewrote line %d: %q", rw.LineNumber, rw.Before))
	}

	files, err := patchparse.Parse(sanitized.Diff)
	if err != nil {
		res.Errors = append(res.Errors, err.Error())
		return res
	}
	for _, f := range files {
		if f.Path == "" {
			res.Errors = append(res.Errors, "diff contains a file header with no path")
			continue
		}
		if !patchparse.BalancedHunks(f) {
			res.Errors = append(res.Errors, fmt.Sprintf("%s: hunk counts do not match declared ranges", f.Path))
		}
		if leaksMarkersInBody(f) {
			res.Errors = append(res.Errors, fmt.Sprintf("%s: diff-marker lines remain embedded in file content after sanitization", f.Path))
		}
	}
	res.Valid = len(res.Errors) == 0
	return res
}

// leaksMarkersInBody reports whether any context/added line within f's
// hunks still looks like an unintentional diff-syntax fragment (a defense
// in depth check beyond the line-level sanitizer, spec.md §4.3).
func leaksMarkersInBody(f patchparse.File) bool {
	for _, h := range f.Hunks {
		for _, l := range h.Lines {
			body := l
			if len(body) > 0 && (body[0] == ' ' || body[0] == '+' || body[0] == '-') {
				body = body[1:]
			}
			trimmed := strings.TrimSpace(body)
			if strings.HasPrefix(trimmed, "<<<<<<<") || strings.HasPrefix(trimmed, ">>>>>>>") {
				return true
			}
		}
	}
	return false
}

// FullCheck runs the I/O-bearing stage: per-file syntax check, then a
// typecheck via the language-appropriate tool, both delegated to
// internal/cmdexec's enumerated command set (spec.md §4.4). workDir is the
// scratch workspace the diff has already been applied into.
func FullCheck(ctx context.Context, exec *cmdexec.Executor, workDir string, files []patchparse.File) (Result, error) {
	res := Result{Valid: true}
	for _, f := range files {
		if f.Deleted {
			continue
		}
		out, err := exec.Run(ctx, cmdexec.Spec{Command: cmdexec.CommandTypecheck, WorkDir: workDir, Phase: cmdexec.PhaseAfterDiff})
		if err != nil {
			return Result{}, cerr.Wrap(cerr.CommandFailed, "typecheck invocation failed for "+f.Path, "", true, err)
		}
		if !out.Success {
			res.Valid = false
			res.Errors = append(res.Errors, fmt.Sprintf("%s: typecheck failed (exit %d): %s", f.Path, out.ExitCode, out.StderrTail))
		}
	}
	return res, nil
}

// Validate runs QuickCheck, and only proceeds to FullCheck when it passes —
// spec.md §4.3's "a failed quick check increments attempt_count... so the
// next tick invokes Fix" means FullCheck is never reached on a structurally
// broken diff.
func Validate(ctx context.Context, exec *cmdexec.Executor, workDir, diff string) (Result, error) {
	quick := QuickCheck(diff)
	if !quick.Valid {
		return quick, nil
	}
	files, err := patchparse.Parse(Sanitize(diff).Diff)
	if err != nil {
		return Result{}, err
	}
	full, err := FullCheck(ctx, exec, workDir, files)
	if err != nil {
		return Result{}, err
	}
	full.Warnings = append(quick.Warnings, full.Warnings...)
	full.Rewrites = quick.Rewrites
	return full, nil
}
