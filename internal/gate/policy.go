package gate

import (
	"context"
	"encoding/json"

	"github.com/itchyny/gojq"
	"github.com/open-policy-agent/opa/rego"

	"github.com/avery-holt/cascade/internal/cerr"
	"github.com/avery-holt/cascade/internal/task"
)

// PolicyGate is the supplemented feature from SPEC_FULL.md §5.1: an optional
// Rego-backed additional check a repo may attach to ReviewComplete. When no
// policy is configured it is a no-op and changes nothing about the required
// artifacts in spec.md's Gate table.
type PolicyGate struct {
	query rego.PreparedEvalQuery
}

// NoPolicyGate reports whether g is unconfigured (the no-op case).
func (g *PolicyGate) NoPolicyGate() bool {
	return g == nil
}

// NewPolicyGate compiles a Rego policy module whose `data.cascade.allow`
// rule decides whether t may pass ReviewComplete. Grounded on
// jordigilh-kubernaut's open-policy-agent/opa dependency (SPEC_FULL.md §3).
func NewPolicyGate(ctx context.Context, module string) (*PolicyGate, error) {
	q, err := rego.New(
		rego.Query("data.cascade.allow"),
		rego.Module("cascade_gate.rego", module),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, cerr.Wrap(cerr.UnknownError, "failed to compile policy module", "", false, err)
	}
	return &PolicyGate{query: q}, nil
}

// Evaluate runs the compiled policy against an input holding t's target
// files ("target_files") and root cause ("root_cause"). A nil PolicyGate
// always allows.
func (g *PolicyGate) Evaluate(ctx context.Context, t *task.Task) (bool, error) {
	if g.NoPolicyGate() {
		return true, nil
	}
	input := map[string]interface{}{
		"target_files": t.TargetFiles,
		"root_cause":   t.RootCause,
	}
	rs, err := g.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return false, cerr.Wrap(cerr.UnknownError, "policy evaluation failed", t.ID.String(), true, err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return false, nil
	}
	allowed, _ := rs[0].Expressions[0].Value.(bool)
	return allowed, nil
}

// ExtractField pulls a single field out of a tolerant-parsed agent JSON
// payload using a jq-style query (spec.md §9 "Dynamic parsing of
// possibly-malformed JSON from agents"), grounded on jordigilh-kubernaut's
// itchyny/gojq dependency (SPEC_FULL.md §3).
func ExtractField(payloadJSON string, jqExpr string) (interface{}, error) {
	q, err := gojq.Parse(jqExpr)
	if err != nil {
		return nil, cerr.Wrap(cerr.MissingField, "invalid jq expression", "", false, err)
	}
	var data interface{}
	if err := json.Unmarshal([]byte(payloadJSON), &data); err != nil {
		return nil, cerr.Wrap(cerr.MissingField, "payload is not valid JSON", "", true, err)
	}
	iter := q.Run(data)
	v, ok := iter.Next()
	if !ok {
		return nil, cerr.New(cerr.MissingField, "jq query produced no result", "", true)
	}
	if err, ok := v.(error); ok {
		return nil, cerr.Wrap(cerr.MissingField, "jq query failed", "", true, err)
	}
	return v, nil
}
