package agent

import (
	"context"
	"strings"
)

// intentPhrases maps message substrings to tool names. Order matters only
// for messages naming several operations at once; the first match wins.
var intentPhrases = []struct {
	phrase string
	tool   string
}{
	{"update address", "update_address"},
	{"update email", "update_email"},
	{"update password", "update_password"},
	{"update contact", "update_contact"},
	{"update phone", "update_contact"},
	{"create account", "create_account"},
}

// RuleSelector is the deterministic fallback: keyword intent detection plus
// key=value argument extraction. It needs no network and backs the LLM
// selector when one is configured.
type RuleSelector struct {
	registry *Registry
}

// NewRuleSelector creates a selector over the given tool registry.
func NewRuleSelector(registry *Registry) *RuleSelector {
	return &RuleSelector{registry: registry}
}

// Respond detects an intent phrase and collects key=value pairs from the
// message. A message with no recognizable intent gets the tool listing so
// the user knows what to ask for.
func (s *RuleSelector) Respond(_ context.Context, message string) (*Reply, error) {
	tool := detectIntent(message)
	if tool == "" {
		return &Reply{Text: s.registry.Instruction()}, nil
	}

	args := extractArgs(message)
	if def := s.registry.Get(tool); def != nil && len(args) == 0 {
		return &Reply{Text: "To run " + tool + ", please provide: " +
			strings.Join(def.Required, ", ") +
			" (as key=value pairs in one message)."}, nil
	}

	return &Reply{Tool: &ToolCall{Name: tool, Args: args}}, nil
}

func detectIntent(message string) string {
	lowered := strings.ToLower(message)
	for _, p := range intentPhrases {
		if strings.Contains(lowered, p.phrase) {
			return p.tool
		}
	}
	return ""
}

// extractArgs pulls key=value tokens out of the message. Values run to the
// next whitespace, so multi-word values need the LLM selector.
func extractArgs(message string) map[string]string {
	args := make(map[string]string)
	for _, token := range strings.Fields(message) {
		token = strings.Trim(token, ",;")
		idx := strings.Index(token, "=")
		if idx <= 0 || idx == len(token)-1 {
			continue
		}
		key := strings.ToLower(token[:idx])
		args[key] = token[idx+1:]
	}
	if len(args) == 0 {
		return nil
	}
	return args
}
