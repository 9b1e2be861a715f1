// Package postgres is the durable reference implementation of store.Store,
// grounded on jordigilh-kubernaut's jackc/pgx + jmoiron/sqlx pairing
// (SPEC_FULL.md §3). It implements task create/get/list/update and task-event
// append/list. The orchestration-state, subtask-status and consensus-decision
// methods and the Batch, Memory and ModelConfig methods of store.Store are
// not implemented, so *Store does not satisfy store.Store.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"

	"github.com/avery-holt/cascade/internal/cerr"
	"github.com/avery-holt/cascade/internal/store"
	"github.com/avery-holt/cascade/internal/task"
)

// Store wraps an *sqlx.DB opened against pgx's stdlib driver.
type Store struct {
	db *sqlx.DB
}

// Open connects to dsn using pgx's database/sql driver, wrapped in sqlx the
// way the teacher's pack member (jordigilh-kubernaut) opens its Postgres
// connections.
func Open(dsn string) (*Store, error) {
	db, err := sqlx.Connect("pgx", dsn)
	if err != nil {
		return nil, cerr.Wrap(cerr.UnknownError, "failed to connect to postgres", "", false, err)
	}
	return &Store{db: db}, nil
}

// New wraps an already-open sqlx.DB (used by tests with go-sqlmock).
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error {
	return s.db.Close()
}

func parseUUID(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.UUID{}, cerr.Wrap(cerr.UnknownError, "failed to parse stored uuid", "", false, err)
	}
	return id, nil
}

type taskRow struct {
	ID               string    `db:"id"`
	Repo             string    `db:"repo"`
	Issue            int       `db:"issue"`
	Status           string    `db:"status"`
	DefinitionOfDone string    `db:"definition_of_done"`
	Plan             string    `db:"plan"`
	TargetFiles      string    `db:"target_files"`
	Complexity       string    `db:"complexity"`
	Effort           string    `db:"effort"`
	Branch           string    `db:"branch"`
	CurrentDiff      string    `db:"current_diff"`
	CommitMessage    string    `db:"commit_message"`
	PRNumber         int       `db:"pr_number"`
	PRURL            string    `db:"pr_url"`
	AttemptCount     int       `db:"attempt_count"`
	MaxAttempts      int       `db:"max_attempts"`
	LastError        string    `db:"last_error"`
	RootCause        string    `db:"root_cause"`
	CreatedAt        time.Time `db:"created_at"`
	UpdatedAt        time.Time `db:"updated_at"`
}

func toRow(t *task.Task) (taskRow, error) {
	dod, err := json.Marshal(t.DefinitionOfDone)
	if err != nil {
		return taskRow{}, err
	}
	plan, err := json.Marshal(t.Plan)
	if err != nil {
		return taskRow{}, err
	}
	files, err := json.Marshal(t.TargetFiles)
	if err != nil {
		return taskRow{}, err
	}
	return taskRow{
		ID: t.ID.String(), Repo: t.Repo, Issue: t.Issue, Status: string(t.Status),
		DefinitionOfDone: string(dod), Plan: string(plan), TargetFiles: string(files),
		Complexity: string(t.Complexity), Effort: string(t.Effort),
		Branch: t.Branch, CurrentDiff: t.CurrentDiff, CommitMessage: t.CommitMessage,
		PRNumber: t.PRNumber, PRURL: t.PRURL,
		AttemptCount: t.AttemptCount, MaxAttempts: t.MaxAttempts,
		LastError: t.LastError, RootCause: t.RootCause,
		CreatedAt: t.CreatedAt, UpdatedAt: t.UpdatedAt,
	}, nil
}

func fromRow(r taskRow) (*task.Task, error) {
	id, err := parseUUID(r.ID)
	if err != nil {
		return nil, err
	}
	t := &task.Task{
		ID: id, Repo: r.Repo, Issue: r.Issue, Status: task.Status(r.Status),
		Complexity: task.Complexity(r.Complexity), Effort: task.Effort(r.Effort),
		Branch: r.Branch, CurrentDiff: r.CurrentDiff, CommitMessage: r.CommitMessage,
		PRNumber: r.PRNumber, PRURL: r.PRURL,
		AttemptCount: r.AttemptCount, MaxAttempts: r.MaxAttempts,
		LastError: r.LastError, RootCause: r.RootCause,
		CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt,
	}
	_ = json.Unmarshal([]byte(r.DefinitionOfDone), &t.DefinitionOfDone)
	_ = json.Unmarshal([]byte(r.Plan), &t.Plan)
	_ = json.Unmarshal([]byte(r.TargetFiles), &t.TargetFiles)
	return t, nil
}

const insertTaskSQL = `
INSERT INTO tasks (
	id, repo, issue, status, definition_of_done, plan, target_files,
	complexity, effort, branch, current_diff, commit_message,
	pr_number, pr_url, attempt_count, max_attempts, last_error, root_cause,
	created_at, updated_at
) VALUES (
	:id, :repo, :issue, :status, :definition_of_done, :plan, :target_files,
	:complexity, :effort, :branch, :current_diff, :commit_message,
	:pr_number, :pr_url, :attempt_count, :max_attempts, :last_error, :root_cause,
	:created_at, :updated_at
)`

func (s *Store) CreateTask(ctx context.Context, t *task.Task) error {
	row, err := toRow(t)
	if err != nil {
		return cerr.Wrap(cerr.UnknownError, "failed to encode task", t.ID.String(), false, err)
	}
	if _, err := s.db.NamedExecContext(ctx, insertTaskSQL, row); err != nil {
		return cerr.Wrap(cerr.UnknownError, "failed to insert task", t.ID.String(), true, err)
	}
	return nil
}

const selectTaskByIDSQL = `SELECT * FROM tasks WHERE id = $1`

func (s *Store) GetTask(ctx context.Context, id uuid.UUID) (*task.Task, error) {
	var row taskRow
	if err := s.db.GetContext(ctx, &row, selectTaskByIDSQL, id.String()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, cerr.New(cerr.MissingField, "task not found", id.String(), true)
		}
		return nil, cerr.Wrap(cerr.UnknownError, "failed to query task", id.String(), true, err)
	}
	return fromRow(row)
}

const selectTaskByIssueSQL = `SELECT * FROM tasks WHERE repo = $1 AND issue = $2`

func (s *Store) GetTaskByIssue(ctx context.Context, repo string, issue int) (*task.Task, error) {
	var row taskRow
	if err := s.db.GetContext(ctx, &row, selectTaskByIssueSQL, repo, issue); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, cerr.New(cerr.MissingField, "task not found", "", true)
		}
		return nil, cerr.Wrap(cerr.UnknownError, "failed to query task by issue", "", true, err)
	}
	return fromRow(row)
}

const selectTasksByStatusSQL = `SELECT * FROM tasks WHERE status = $1 ORDER BY created_at`

func (s *Store) GetTasksByStatus(ctx context.Context, status task.Status) ([]*task.Task, error) {
	var rows []taskRow
	if err := s.db.SelectContext(ctx, &rows, selectTasksByStatusSQL, string(status)); err != nil {
		return nil, cerr.Wrap(cerr.UnknownError, "failed to query tasks by status", "", true, err)
	}
	out := make([]*task.Task, 0, len(rows))
	for _, r := range rows {
		t, err := fromRow(r)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

const selectRecentTasksByRepoSQL = `SELECT * FROM tasks WHERE repo = $1 ORDER BY created_at DESC LIMIT $2`

func (s *Store) GetRecentTasksByRepo(ctx context.Context, repo string, limit int) ([]*task.Task, error) {
	var rows []taskRow
	if err := s.db.SelectContext(ctx, &rows, selectRecentTasksByRepoSQL, repo, limit); err != nil {
		return nil, cerr.Wrap(cerr.UnknownError, "failed to query recent tasks", "", true, err)
	}
	out := make([]*task.Task, 0, len(rows))
	for _, r := range rows {
		t, err := fromRow(r)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

const updateTaskSQL = `
UPDATE tasks SET
	status = :status, definition_of_done = :definition_of_done, plan = :plan,
	target_files = :target_files, complexity = :complexity, effort = :effort,
	branch = :branch, current_diff = :current_diff, commit_message = :commit_message,
	pr_number = :pr_number, pr_url = :pr_url, attempt_count = :attempt_count,
	max_attempts = :max_attempts, last_error = :last_error, root_cause = :root_cause,
	updated_at = :updated_at
WHERE id = :id AND updated_at = to_timestamp(:expected_updated_at)`

// UpdateTask uses optimistic locking on updated_at (spec.md §5): the WHERE
// clause only matches if the stored row hasn't moved since expectedUpdatedAt
// (unix nanos), matching store.ErrStaleWrite's contract.
func (s *Store) UpdateTask(ctx context.Context, t *task.Task, expectedUpdatedAt int64) error {
	row, err := toRow(t)
	if err != nil {
		return cerr.Wrap(cerr.UnknownError, "failed to encode task", t.ID.String(), false, err)
	}
	params := struct {
		taskRow
		ExpectedUpdatedAt float64 `db:"expected_updated_at"`
	}{taskRow: row, ExpectedUpdatedAt: float64(expectedUpdatedAt) / 1e9}

	res, err := s.db.NamedExecContext(ctx, updateTaskSQL, params)
	if err != nil {
		return cerr.Wrap(cerr.UnknownError, "failed to update task", t.ID.String(), true, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return cerr.Wrap(cerr.UnknownError, "failed to read rows affected", t.ID.String(), true, err)
	}
	if n == 0 {
		return store.ErrStaleWrite
	}
	return nil
}

const insertEventSQL = `
INSERT INTO task_events (id, task_id, type, agent, input_summary, output_summary, tokens, duration_ms, metadata, timestamp)
VALUES (:id, :task_id, :type, :agent, :input_summary, :output_summary, :tokens, :duration_ms, :metadata, :timestamp)`

type eventRow struct {
	ID            string `db:"id"`
	TaskID        string `db:"task_id"`
	Type          string `db:"type"`
	Agent         string `db:"agent"`
	InputSummary  string `db:"input_summary"`
	OutputSummary string `db:"output_summary"`
	Tokens        int    `db:"tokens"`
	DurationMs    int64  `db:"duration_ms"`
	Metadata      string `db:"metadata"`
	Timestamp     time.Time `db:"timestamp"`
}

func (s *Store) CreateTaskEvent(ctx context.Context, e *task.TaskEvent) error {
	meta, err := json.Marshal(e.Metadata)
	if err != nil {
		return cerr.Wrap(cerr.UnknownError, "failed to encode event metadata", e.TaskID.String(), false, err)
	}
	row := eventRow{
		ID: e.ID.String(), TaskID: e.TaskID.String(), Type: string(e.Type), Agent: e.Agent,
		InputSummary: e.InputSummary, OutputSummary: e.OutputSummary, Tokens: e.Tokens,
		DurationMs: e.Duration.Milliseconds(), Metadata: string(meta), Timestamp: e.Timestamp,
	}
	if _, err := s.db.NamedExecContext(ctx, insertEventSQL, row); err != nil {
		return cerr.Wrap(cerr.UnknownError, "failed to insert task event", e.TaskID.String(), true, err)
	}
	return nil
}

const selectEventsByTaskSQL = `SELECT * FROM task_events WHERE task_id = $1 ORDER BY timestamp ASC`

func (s *Store) GetTaskEvents(ctx context.Context, taskID uuid.UUID) ([]*task.TaskEvent, error) {
	var rows []eventRow
	if err := s.db.SelectContext(ctx, &rows, selectEventsByTaskSQL, taskID.String()); err != nil {
		return nil, cerr.Wrap(cerr.UnknownError, "failed to query task events", taskID.String(), true, err)
	}
	out := make([]*task.TaskEvent, 0, len(rows))
	for _, r := range rows {
		tid, err := parseUUID(r.TaskID)
		if err != nil {
			return nil, err
		}
		id, err := parseUUID(r.ID)
		if err != nil {
			return nil, err
		}
		ev := &task.TaskEvent{
			ID: id, TaskID: tid, Type: task.EventType(r.Type), Agent: r.Agent,
			InputSummary: r.InputSummary, OutputSummary: r.OutputSummary, Tokens: r.Tokens,
			Duration: time.Duration(r.DurationMs) * time.Millisecond, Timestamp: r.Timestamp,
		}
		_ = json.Unmarshal([]byte(r.Metadata), &ev.Metadata)
		out = append(out, ev)
	}
	return out, nil
}
