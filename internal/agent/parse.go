package agent

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/avery-holt/cascade/internal/cerr"
)

var validate = validator.New()

var fencedBlock = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")

// ExtractJSON implements spec.md §9's tolerant parser: strip fenced code
// blocks, fall back to the outermost brace-balanced span, and return the
// best-effort JSON payload text. It does not itself validate the JSON;
// callers decode into a closed record type and run Validate.
func ExtractJSON(raw string) string {
	if m := fencedBlock.FindStringSubmatch(raw); m != nil {
		return strings.TrimSpace(m[1])
	}
	if span := braceBalancedSpan(raw); span != "" {
		return span
	}
	return strings.TrimSpace(raw)
}

// braceBalancedSpan returns the outermost {...} span in s, tracking brace
// depth so nested objects don't truncate the match early.
func braceBalancedSpan(s string) string {
	start := strings.IndexByte(s, '{')
	if start == -1 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
			// inside a string literal; braces here don't count
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

// ParseAndValidate decodes an agent's raw output into a closed record type
// and validates it with struct tags (go-playground/validator), per spec.md
// §9's "treat agent responses as untrusted input: parse-don't-validate."
// A decode or validation failure is reported as cerr.MissingField so the
// calling handler can route it through the normal retry path.
func ParseAndValidate(raw string, taskID string, out interface{}) error {
	payload := ExtractJSON(raw)
	if err := json.Unmarshal([]byte(payload), out); err != nil {
		return cerr.Wrap(cerr.MissingField, "agent output is not valid JSON after tolerant extraction", taskID, true, err)
	}
	if err := validate.Struct(out); err != nil {
		return cerr.Wrap(cerr.MissingField, "agent output failed schema validation", taskID, true, err)
	}
	return nil
}

// NormalizeVerdict maps reviewer synonyms (APPROVE, APPROVED, approve, ...)
// to the closed ReviewVerdict set, per spec.md §9.
func NormalizeVerdict(raw string) ReviewVerdict {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "APPROVE", "APPROVED", "LGTM":
		return VerdictApproved
	default:
		return VerdictRejected
	}
}
