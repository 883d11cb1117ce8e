package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"
)

// LLMSelector asks a Gemini model to pick a tool and extract its arguments.
// Any failure along the way (transport, malformed output, unknown tool)
// degrades to the rule selector so a conversation never dead-ends on the
// model.
type LLMSelector struct {
	llm      llms.Model
	registry *Registry
	fallback Selector
}

// NewLLMSelector connects to the Gemini API. model may be empty to use the
// provider default.
func NewLLMSelector(ctx context.Context, apiKey, model string, registry *Registry, fallback Selector) (*LLMSelector, error) {
	opts := []googleai.Option{googleai.WithAPIKey(apiKey)}
	if model != "" {
		opts = append(opts, googleai.WithDefaultModel(model))
	}

	llm, err := googleai.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("initialize Gemini model: %w", err)
	}

	return &LLMSelector{llm: llm, registry: registry, fallback: fallback}, nil
}

// llmReply is the strict JSON shape the model is instructed to produce.
type llmReply struct {
	Reply string            `json:"reply,omitempty"`
	Tool  string            `json:"tool,omitempty"`
	Args  map[string]string `json:"args,omitempty"`
}

func (s *LLMSelector) buildPrompt(message string) string {
	var b strings.Builder
	b.WriteString("You are an Account Manager service agent. You help users with tools:\n")
	for _, name := range s.registry.Names() {
		tool := s.registry.Get(name)
		fmt.Fprintf(&b, "- %s : %s (arguments: %s)\n", tool.Name, tool.Description, strings.Join(tool.Required, ", "))
	}
	b.WriteString(`
Decide what the user wants. Respond with a single JSON object and nothing else.
To invoke a tool when the message carries its arguments:
  {"tool": "<name>", "args": {"<arg>": "<value>", ...}}
Otherwise, to answer in plain language or to ask for missing details:
  {"reply": "<text>"}
Never invent argument values the user did not supply.

User message: `)
	b.WriteString(message)
	return b.String()
}

// Respond sends the message to the model at temperature zero and parses its
// decision.
func (s *LLMSelector) Respond(ctx context.Context, message string) (*Reply, error) {
	completion, err := s.llm.Call(ctx, s.buildPrompt(message), llms.WithTemperature(0))
	if err != nil {
		slog.Warn("LLM call failed, using rule selector", "error", err)
		return s.fallback.Respond(ctx, message)
	}

	parsed, err := parseLLMReply(completion)
	if err != nil {
		slog.Warn("LLM returned unparseable output, using rule selector", "error", err)
		return s.fallback.Respond(ctx, message)
	}

	if parsed.Tool != "" {
		if s.registry.Get(parsed.Tool) == nil {
			slog.Warn("LLM selected unknown tool, using rule selector", "tool", parsed.Tool)
			return s.fallback.Respond(ctx, message)
		}
		return &Reply{Tool: &ToolCall{Name: parsed.Tool, Args: parsed.Args}}, nil
	}

	if parsed.Reply == "" {
		return s.fallback.Respond(ctx, message)
	}
	return &Reply{Text: parsed.Reply}, nil
}

// parseLLMReply decodes the model output, tolerating markdown code fences
// around the JSON.
func parseLLMReply(completion string) (*llmReply, error) {
	text := strings.TrimSpace(completion)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		text = strings.TrimSuffix(strings.TrimSpace(text), "```")
		text = strings.TrimSpace(text)
	}

	var parsed llmReply
	if err := json.Unmarshal([]byte(text), &parsed); err != nil {
		return nil, fmt.Errorf("decode model output: %w", err)
	}
	return &parsed, nil
}
