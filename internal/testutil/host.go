// Package testutil provides deterministic fakes for the orchestration
// core's external collaborators (spec.md §6: vcs.Host, the six agent
// families) plus a store.Locker, modeled on the teacher's test_helpers.go/
// test_data_factory.go fixture pattern (seen across the jordigilh-kubernaut
// pack member) and adapted to Cascade's own capability interfaces. Tests
// compose these with internal/store/memory.Store directly rather than a
// second store fake.
package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/avery-holt/cascade/internal/vcs"
)

// FakeHost is an in-memory vcs.Host: every PR, branch, and check outcome is
// driven by the test rather than a real provider. PRNumbers counts up from
// 1 across the fake's lifetime so assertions can check "PR creation called
// exactly once" (spec.md §8 scenario 1).
type FakeHost struct {
	mu sync.Mutex

	branches map[string]bool
	diffs    []AppliedDiff
	prs      []vcs.PRRequest
	nextPR   int

	// CheckResults queues WaitForChecks outcomes per repo/branch key; when
	// empty for a key, WaitForChecks returns a passing result.
	CheckResults map[string][]vcs.CheckResult

	// Files backs GetFilesContent/GetSourceFiles/GetRepoContext.
	Files map[string]string

	// ConflictingPRs backs DetectConflictingPRs.
	ConflictingPRs []vcs.ConflictingPR
}

// AppliedDiff records one ApplyDiff call for assertions.
type AppliedDiff struct {
	Repo      string
	Branch    string
	Diff      string
	CommitMsg string
}

// NewFakeHost builds an empty FakeHost.
func NewFakeHost() *FakeHost {
	return &FakeHost{
		branches:     make(map[string]bool),
		CheckResults: make(map[string][]vcs.CheckResult),
		Files:        make(map[string]string),
	}
}

var _ vcs.Host = (*FakeHost)(nil)

func (h *FakeHost) GetIssue(ctx context.Context, repo string, number int) (vcs.Issue, error) {
	return vcs.Issue{Title: fmt.Sprintf("issue #%d", number)}, nil
}

func (h *FakeHost) GetRepoContext(ctx context.Context, repo string, paths []string) (string, error) {
	return "", nil
}

func (h *FakeHost) GetFilesContent(ctx context.Context, repo string, paths []string, branch string) (map[string]string, error) {
	out := make(map[string]string, len(paths))
	for _, p := range paths {
		if content, ok := h.Files[p]; ok {
			out[p] = content
		}
	}
	return out, nil
}

func (h *FakeHost) GetSourceFiles(ctx context.Context, repo string, ref string, maxFiles int) (map[string]string, error) {
	return h.Files, nil
}

func (h *FakeHost) CreateBranch(ctx context.Context, repo, name string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.branches[repo+"/"+name] = true
	return nil
}

func (h *FakeHost) CreateBranchFromMain(ctx context.Context, repo, name string) error {
	return h.CreateBranch(ctx, repo, name)
}

func (h *FakeHost) EnsureBranchExists(ctx context.Context, repo, name string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.branches[repo+"/"+name] = true
	return nil
}

func (h *FakeHost) ApplyDiff(ctx context.Context, repo, branch, diff, commitMsg string) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.diffs = append(h.diffs, AppliedDiff{Repo: repo, Branch: branch, Diff: diff, CommitMsg: commitMsg})
	return fmt.Sprintf("sha-%d", len(h.diffs)), nil
}

func (h *FakeHost) CreatePR(ctx context.Context, repo string, req vcs.PRRequest) (vcs.PRResult, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextPR++
	h.prs = append(h.prs, req)
	return vcs.PRResult{Number: h.nextPR, URL: fmt.Sprintf("https://example.invalid/%s/pull/%d", repo, h.nextPR)}, nil
}

func (h *FakeHost) UpdatePR(ctx context.Context, repo string, number int, update vcs.PRUpdate) error {
	return nil
}

func (h *FakeHost) AddComment(ctx context.Context, repo string, number int, body string) error {
	return nil
}

func (h *FakeHost) AddLabels(ctx context.Context, repo string, number int, labels []string) error {
	return nil
}

func (h *FakeHost) DetectConflictingPRs(ctx context.Context, repo string, files []string, excludeBranch string) ([]vcs.ConflictingPR, error) {
	return h.ConflictingPRs, nil
}

func (h *FakeHost) WaitForChecks(ctx context.Context, repo, branch string, timeoutMs int) (vcs.CheckResult, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	key := repo + "/" + branch
	queue := h.CheckResults[key]
	if len(queue) == 0 {
		return vcs.CheckResult{Success: true}, nil
	}
	next := queue[0]
	h.CheckResults[key] = queue[1:]
	return next, nil
}

func (h *FakeHost) ParseDiffToFiles(ctx context.Context, repo, branch, diff string) ([]vcs.DiffFile, error) {
	return nil, nil
}

// PRCount reports how many CreatePR calls this host has received.
func (h *FakeHost) PRCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.prs)
}

// PRs returns a copy of every CreatePR request received so far.
func (h *FakeHost) PRs() []vcs.PRRequest {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]vcs.PRRequest, len(h.prs))
	copy(out, h.prs)
	return out
}

// AppliedDiffs returns a copy of every ApplyDiff call received so far.
func (h *FakeHost) AppliedDiffs() []AppliedDiff {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]AppliedDiff, len(h.diffs))
	copy(out, h.diffs)
	return out
}

// QueueCheck appends a WaitForChecks outcome for repo/branch.
func (h *FakeHost) QueueCheck(repo, branch string, result vcs.CheckResult) {
	h.mu.Lock()
	defer h.mu.Unlock()
	key := repo + "/" + branch
	h.CheckResults[key] = append(h.CheckResults[key], result)
}
