package agent

import (
	"sort"
	"strings"

	"github.com/BaSui01/flowagent/llm"
	"github.com/BaSui01/flowagent/types"
)

// ExecutionContext is everything one session needs besides its limits.
type ExecutionContext struct {
	History        []types.Message   `json:"history,omitempty"`
	Memory         map[string]string `json:"memory,omitempty"`
	TriggerPayload string            `json:"trigger_payload"`
	SystemPrompt   string            `json:"system_prompt"`
	// Tools names the registered tools this agent may call.
	Tools []string        `json:"tools,omitempty"`
	Model llm.ModelParams `json:"model"`
}

// initialMessages merges the trigger payload, prefixed by the memory block
// when memory is present, into the history as a single user turn.
func (ec ExecutionContext) initialMessages() []types.Message {
	content := ec.TriggerPayload
	if mem := renderMemory(ec.Memory); mem != "" {
		if content == "" {
			content = mem
		} else {
			content = mem + "\n\n" + content
		}
	}
	if content == "" {
		out := make([]types.Message, len(ec.History))
		copy(out, ec.History)
		return out
	}
	return types.AppendUserTurn(ec.History, content)
}

func renderMemory(mem map[string]string) string {
	if len(mem) == 0 {
		return ""
	}
	keys := make([]string, 0, len(mem))
	for k := range mem {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("Relevant memory:")
	for _, k := range keys {
		b.WriteString("\n- ")
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(mem[k])
	}
	return b.String()
}
