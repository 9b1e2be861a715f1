package cliagent

import (
	"bufio"
	"encoding/json"
	"io"
)

// streamEvent, messageContent and contentBlock mirror the teacher's
// llm.StreamEvent/MessageContent/ContentBlock stream-json shape: assistant
// text/tool_use blocks arrive as "assistant" events, the agent's final
// answer arrives as a single "result" event.
type streamEvent struct {
	Type    string          `json:"type"`
	Message *messageContent `json:"message,omitempty"`
	Result  string          `json:"result,omitempty"`
}

type messageContent struct {
	Content []contentBlock `json:"content,omitempty"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// collectResult drains a Backend's stream-json output and returns the final
// "result" event's text, which is where agent.ParseAndValidate's tolerant
// JSON extraction is pointed. Text content in "assistant" events is
// discarded -- it is the agent's narration, not its structured answer.
func collectResult(r io.Reader) (string, error) {
	scanner := bufio.NewScanner(r)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)

	var result string
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var ev streamEvent
		if err := json.Unmarshal(line, &ev); err != nil {
			continue
		}
		if ev.Type == "result" {
			result = ev.Result
		}
	}
	if err := scanner.Err(); err != nil {
		return result, err
	}
	return result, nil
}
