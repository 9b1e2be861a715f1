package task

import (
	"time"

	"github.com/google/uuid"
)

// Observation is a single memory record tied to a task (spec.md §3).
type Observation struct {
	ID        uuid.UUID
	TaskID    uuid.UUID
	Type      ObservationType
	Agent     string
	Content   string
	Tags      []string
	Timestamp time.Time
}

// NewObservation builds an Observation for taskID at the current time.
func NewObservation(taskID uuid.UUID, typ ObservationType, agent, content string, tags ...string) *Observation {
	return &Observation{
		ID:        uuid.New(),
		TaskID:    taskID,
		Type:      typ,
		Agent:     agent,
		Content:   content,
		Tags:      tags,
		Timestamp: time.Now(),
	}
}

// Pattern is a repo-scoped fix/convention/failure pattern with a confidence
// score that increases with reinforcement (spec.md §3).
type Pattern struct {
	ID          uuid.UUID
	Repo        string
	Kind        PatternKind
	Trigger     string
	Solution    string
	Confidence  float64
	SuccessCount int
	LastUsed    time.Time
}

// NewPattern builds a Pattern with an initial confidence.
func NewPattern(repo string, kind PatternKind, trigger, solution string, confidence float64) *Pattern {
	return &Pattern{
		ID:         uuid.New(),
		Repo:       repo,
		Kind:       kind,
		Trigger:    trigger,
		Solution:   solution,
		Confidence: clamp01(confidence),
		LastUsed:   time.Now(),
	}
}

// Reinforce records a successful reuse of the pattern, nudging confidence
// toward 1.0 and bumping the success count.
func (p *Pattern) Reinforce() {
	p.SuccessCount++
	p.Confidence = clamp01(p.Confidence + (1-p.Confidence)*0.2)
	p.LastUsed = time.Now()
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Archive is long-lived archival knowledge, either repo-scoped or global
// (spec.md §3).
type Archive struct {
	ID         uuid.UUID
	Content    string
	Summary    string
	SourceType string
	Importance float64
	Repo       string // empty means global scope
}

// NewArchive builds an Archive record.
func NewArchive(content, summary, sourceType string, importance float64, repo string) *Archive {
	return &Archive{
		ID:         uuid.New(),
		Content:    content,
		Summary:    summary,
		SourceType: sourceType,
		Importance: clamp01(importance),
		Repo:       repo,
	}
}

// IsGlobal reports whether the archive entry applies across repos.
func (a *Archive) IsGlobal() bool {
	return a.Repo == ""
}
