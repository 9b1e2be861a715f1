package cliagent

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avery-holt/cascade/internal/agent"
	"github.com/avery-holt/cascade/internal/task"
)

type fakeBackend struct {
	streamJSON string
	err        error
	gotOpts    ExecuteOptions
}

func (f *fakeBackend) Name() string { return "fake" }

func (f *fakeBackend) Execute(ctx context.Context, opts ExecuteOptions) (io.ReadCloser, error) {
	f.gotOpts = opts
	if f.err != nil {
		return nil, f.err
	}
	return io.NopCloser(strings.NewReader(f.streamJSON)), nil
}

func resultEvent(jsonBody string) string {
	return `{"type":"assistant","message":{"content":[{"type":"text","text":"thinking..."}]}}` + "\n" +
		`{"type":"result","result":` + jsonBody + "}\n"
}

func TestPlannerRunDecodesResultEvent(t *testing.T) {
	payload := `"{\"definition_of_done\":[\"done\"],\"plan\":[\"step\"],\"target_files\":[\"a.ts\"],\"complexity\":\"xs\"}"`
	backend := &fakeBackend{streamJSON: resultEvent(payload)}
	p := &Planner{Backend: backend}

	tk := task.New("acme/x", 1, 3)
	out, err := p.Run(context.Background(), agent.Input{Task: tk})
	require.NoError(t, err)
	assert.Equal(t, task.ComplexityXS, out.Complexity)
	assert.Equal(t, []string{"step"}, out.Plan)
}

func TestReviewerRunNormalizesVerdictSynonym(t *testing.T) {
	payload := `"{\"verdict\":\"APPROVE\",\"comments\":\"looks good\"}"`
	backend := &fakeBackend{streamJSON: resultEvent(payload)}
	r := &Reviewer{Backend: backend}

	tk := task.New("acme/x", 2, 3)
	out, err := r.Run(context.Background(), agent.Input{Task: tk})
	require.NoError(t, err)
	assert.Equal(t, agent.VerdictApproved, out.Verdict)
}

func TestRunPropagatesBackendStartError(t *testing.T) {
	backend := &fakeBackend{err: claudeNotFoundError()}
	c := &Coder{Backend: backend}

	tk := task.New("acme/x", 3, 3)
	_, err := c.Run(context.Background(), agent.Input{Task: tk})
	require.Error(t, err)
}

func TestBuildPromptIncludesTaskContext(t *testing.T) {
	tk := task.New("acme/x", 4, 3)
	tk.Plan = []string{"add handler"}
	tk.TargetFiles = []string{"src/a.ts"}

	prompt := buildPrompt(roleCoder, agent.Input{Task: tk, ContextFiles: map[string]string{"src/a.ts": "old content"}})
	assert.Contains(t, prompt, "acme/x")
	assert.Contains(t, prompt, "add handler")
	assert.Contains(t, prompt, "old content")
}
