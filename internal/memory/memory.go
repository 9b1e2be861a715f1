// Package memory implements the MemorySubsystem from spec.md §3: recording
// Observations as tasks progress, reinforcing or creating fix/convention/
// failure Patterns on reuse, and retrieving archival knowledge scoped to a
// repo or global. Grounded on ODSapper-CLIAIMONITOR's layered memory
// interface style (separate read paths for recent context vs. long-lived
// knowledge) over the task.Observation/Pattern/Archive data model.
package memory

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/avery-holt/cascade/internal/diffvalidator"
	"github.com/avery-holt/cascade/internal/store"
	"github.com/avery-holt/cascade/internal/task"
)

// patternMatchThreshold is the minimum trigger similarity (per
// diffvalidator.TextSimilarity) for an existing pattern to be considered a
// match worth reinforcing instead of superseding with a new one.
const patternMatchThreshold = 0.75

// Subsystem wraps store.MemoryStore with the reinforcement and retrieval
// behavior spec.md §3 describes.
type Subsystem struct {
	store store.MemoryStore
}

// New builds a Subsystem over s.
func New(s store.MemoryStore) *Subsystem {
	return &Subsystem{store: s}
}

// Observe records one Observation for taskID, used by every orchestrator
// handler to leave a trail of decisions/errors behind a task (spec.md §3).
func (m *Subsystem) Observe(ctx context.Context, taskID uuid.UUID, agent string, typ task.ObservationType, content string, tags ...string) error {
	return m.store.CreateObservation(ctx, task.NewObservation(taskID, typ, agent, content, tags...))
}

// LearnOrReinforce records a successful fix/convention use: if an existing
// pattern in repo with the same kind has a similar trigger, it is
// reinforced (confidence nudged up, success count bumped); otherwise a new
// pattern is created at the given initial confidence.
func (m *Subsystem) LearnOrReinforce(ctx context.Context, repo string, kind task.PatternKind, trigger, solution string, initialConfidence float64) (*task.Pattern, error) {
	existing, err := m.store.GetPatterns(ctx, repo, kind)
	if err != nil {
		return nil, err
	}

	if match := bestMatch(existing, trigger); match != nil {
		match.Reinforce()
		if err := m.store.UpsertPattern(ctx, match); err != nil {
			return nil, err
		}
		return match, nil
	}

	p := task.NewPattern(repo, kind, trigger, solution, initialConfidence)
	if err := m.store.UpsertPattern(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// bestMatch returns the highest-confidence pattern whose trigger is similar
// enough to trigger to be considered the same underlying issue, or nil.
func bestMatch(patterns []*task.Pattern, trigger string) *task.Pattern {
	var best *task.Pattern
	for _, p := range patterns {
		if diffvalidator.TextSimilarity(p.Trigger, trigger) >= patternMatchThreshold &&
			(best == nil || p.Confidence > best.Confidence) {
			best = p
		}
	}
	return best
}

// RelevantPatterns returns repo's patterns of kind sorted by confidence
// descending, for a caller (e.g. the coder prompt builder) to surface the
// most trustworthy fixes/conventions first.
func (m *Subsystem) RelevantPatterns(ctx context.Context, repo string, kind task.PatternKind) ([]*task.Pattern, error) {
	patterns, err := m.store.GetPatterns(ctx, repo, kind)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(patterns, func(i, j int) bool { return patterns[i].Confidence > patterns[j].Confidence })
	return patterns, nil
}

// Archive persists a new archival knowledge entry.
func (m *Subsystem) Archive(ctx context.Context, content, summary, sourceType string, importance float64, repo string) error {
	return m.store.CreateArchive(ctx, task.NewArchive(content, summary, sourceType, importance, repo))
}

// RetrieveArchives returns repo-scoped and global archive entries sorted by
// importance descending, repo-scoped entries taking precedence on ties.
func (m *Subsystem) RetrieveArchives(ctx context.Context, repo string) ([]*task.Archive, error) {
	repoScoped, err := m.store.GetArchives(ctx, repo)
	if err != nil {
		return nil, err
	}
	global, err := m.store.GetArchives(ctx, "")
	if err != nil {
		return nil, err
	}

	out := append(repoScoped, global...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Importance != out[j].Importance {
			return out[i].Importance > out[j].Importance
		}
		return !out[i].IsGlobal() && out[j].IsGlobal()
	})
	return out, nil
}
