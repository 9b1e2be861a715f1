// Package vcs declares the version-control host capability the
// orchestration core requires (spec.md §6.1). The core is host-agnostic; a
// real implementation (GitHub, GitLab, ...) lives outside this module. A
// deterministic in-memory fake for tests lives in internal/testutil.
package vcs

import "context"

// Issue is the minimal issue shape the planner needs.
type Issue struct {
	Title string
	Body  string
	URL   string
}

// PRRequest is the input to CreatePR.
type PRRequest struct {
	Title string
	Body  string
	Head  string
	Base  string
}

// PRResult is the output of CreatePR.
type PRResult struct {
	Number int
	URL    string
}

// PRUpdate carries the fields an UpdatePR call may change.
type PRUpdate struct {
	Body *string
}

// ConflictingPR names a PR that conflicts with a candidate file set.
type ConflictingPR struct {
	Number            int
	Title             string
	ConflictingFiles  []string
}

// CheckResult is the outcome of waiting on CI.
type CheckResult struct {
	Success      bool
	ErrorSummary string
}

// DiffFile is one file extracted from a parsed diff.
type DiffFile struct {
	Path    string
	Content string
	Deleted bool
}

// Host is the capability set spec.md §6.1 requires from a version-control
// host. Every operation accepts a context so callers can enforce the
// per-call timeout required by the concurrency model (spec.md §5).
type Host interface {
	GetIssue(ctx context.Context, repo string, number int) (Issue, error)
	GetRepoContext(ctx context.Context, repo string, paths []string) (string, error)
	GetFilesContent(ctx context.Context, repo string, paths []string, branch string) (map[string]string, error)
	GetSourceFiles(ctx context.Context, repo string, ref string, maxFiles int) (map[string]string, error)

	CreateBranch(ctx context.Context, repo, name string) error
	CreateBranchFromMain(ctx context.Context, repo, name string) error
	EnsureBranchExists(ctx context.Context, repo, name string) error

	ApplyDiff(ctx context.Context, repo, branch, diff, commitMsg string) (commitSHA string, err error)

	CreatePR(ctx context.Context, repo string, req PRRequest) (PRResult, error)
	UpdatePR(ctx context.Context, repo string, number int, update PRUpdate) error
	AddComment(ctx context.Context, repo string, number int, body string) error
	AddLabels(ctx context.Context, repo string, number int, labels []string) error

	DetectConflictingPRs(ctx context.Context, repo string, files []string, excludeBranch string) ([]ConflictingPR, error)
	WaitForChecks(ctx context.Context, repo, branch string, timeoutMs int) (CheckResult, error)
	ParseDiffToFiles(ctx context.Context, repo, branch, diff string) ([]DiffFile, error)
}
