package agent

import "context"

// ToolCall is a selector's decision to invoke a tool with arguments
// extracted from the conversation.
type ToolCall struct {
	Name string            `json:"tool"`
	Args map[string]string `json:"args"`
}

// Reply is a selector's answer for one user message: either assistant text
// or a tool call, never both.
type Reply struct {
	Text string
	Tool *ToolCall
}

// Selector maps a user message to a reply. Implementations must return
// tool calls that pass the registry's validation or plain text asking the
// user for what is missing.
type Selector interface {
	Respond(ctx context.Context, message string) (*Reply, error)
}
