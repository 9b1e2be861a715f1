package task

import (
	"time"

	"github.com/google/uuid"
)

// Batch groups approved tasks with overlapping target files into one PR
// (spec.md §3, §4.9).
type Batch struct {
	ID          uuid.UUID
	Repo        string
	BaseBranch  string
	TargetFiles map[string]bool
	Status      BatchStatus
	PRNumber    int
	PRURL       string
	CreatedAt   time.Time
	ProcessedAt *time.Time
}

// NewBatch constructs a pending batch for repo/baseBranch.
func NewBatch(repo, baseBranch string) *Batch {
	return &Batch{
		ID:          uuid.New(),
		Repo:        repo,
		BaseBranch:  baseBranch,
		TargetFiles: make(map[string]bool),
		Status:      BatchPending,
		CreatedAt:   time.Now(),
	}
}

// AddFiles merges files into the batch's target file set.
func (b *Batch) AddFiles(files []string) {
	for _, f := range files {
		b.TargetFiles[f] = true
	}
}

// OverlapsFiles reports whether any of files is already in the batch's set.
func (b *Batch) OverlapsFiles(files []string) bool {
	for _, f := range files {
		if b.TargetFiles[f] {
			return true
		}
	}
	return false
}

// TimedOut reports whether the batch has aged past timeout since creation.
func (b *Batch) TimedOut(timeout time.Duration) bool {
	return time.Since(b.CreatedAt) >= timeout
}

// MarkProcessing transitions a pending batch to processing.
func (b *Batch) MarkProcessing() {
	b.Status = BatchProcessing
}

// MarkCompleted transitions the batch to completed and records the PR.
func (b *Batch) MarkCompleted(prNumber int, prURL string) {
	b.Status = BatchCompleted
	b.PRNumber = prNumber
	b.PRURL = prURL
	now := time.Now()
	b.ProcessedAt = &now
}

// MarkFailed transitions the batch to failed (conflict fallback, §4.9).
func (b *Batch) MarkFailed() {
	b.Status = BatchFailed
	now := time.Now()
	b.ProcessedAt = &now
}

// BatchMembership records a task's insertion into a batch.
type BatchMembership struct {
	TaskID     uuid.UUID
	BatchID    uuid.UUID
	InsertedAt time.Time
}

// NewBatchMembership records taskID joining batchID now.
func NewBatchMembership(taskID, batchID uuid.UUID) BatchMembership {
	return BatchMembership{TaskID: taskID, BatchID: batchID, InsertedAt: time.Now()}
}
