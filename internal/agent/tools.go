// Package agent turns free-form user messages into validated tool calls,
// either through an LLM or a rule-based fallback.
package agent

import (
	"fmt"
	"sort"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// Tool describes one operation the assistant can invoke on behalf of the
// user. Arguments are validated against the schema before the step-up gate
// ever sees them.
type Tool struct {
	Name        string
	Description string
	Required    []string
	schema      *gojsonschema.Schema
}

// Registry holds the fixed tool set.
type Registry struct {
	tools map[string]*Tool
	order []string
}

type toolSpec struct {
	name        string
	description string
	required    []string
}

var toolSpecs = []toolSpec{
	{
		name:        "create_account",
		description: "creates user account",
		required:    []string{"username", "password", "first_name", "last_name", "email", "phone_number", "address"},
	},
	{
		name:        "update_password",
		description: "update user password",
		required:    []string{"username", "password", "new_password"},
	},
	{
		name:        "update_email",
		description: "update user email",
		required:    []string{"username", "password", "new_email"},
	},
	{
		name:        "update_contact",
		description: "update contact",
		required:    []string{"username", "password", "new_phone_number"},
	},
	{
		name:        "update_address",
		description: "update address",
		required:    []string{"username", "password", "new_address"},
	},
}

// NewRegistry compiles the tool set. It fails only on a malformed schema,
// which is a programming error, so callers may treat an error as fatal.
func NewRegistry() (*Registry, error) {
	r := &Registry{tools: make(map[string]*Tool, len(toolSpecs))}
	for _, spec := range toolSpecs {
		schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(buildSchemaJSON(spec.required)))
		if err != nil {
			return nil, fmt.Errorf("compile schema for %s: %w", spec.name, err)
		}
		r.tools[spec.name] = &Tool{
			Name:        spec.name,
			Description: spec.description,
			Required:    spec.required,
			schema:      schema,
		}
		r.order = append(r.order, spec.name)
	}
	return r, nil
}

// buildSchemaJSON produces an object schema requiring every named argument
// as a non-empty string.
func buildSchemaJSON(required []string) string {
	var b strings.Builder
	b.WriteString(`{"type":"object","properties":{`)
	for i, name := range required {
		if i > 0 {
			b.WriteString(",")
		}
		fmt.Fprintf(&b, `%q:{"type":"string","minLength":1}`, name)
	}
	b.WriteString(`},"required":[`)
	for i, name := range required {
		if i > 0 {
			b.WriteString(",")
		}
		fmt.Fprintf(&b, "%q", name)
	}
	b.WriteString(`]}`)
	return b.String()
}

// Get returns the named tool, or nil when unknown.
func (r *Registry) Get(name string) *Tool {
	return r.tools[name]
}

// Names lists the registered tool names in declaration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Validate checks a selector-produced argument map against the tool's
// schema. Unknown tools and schema violations both return an error naming
// what is missing, suitable for echoing back to the user.
func (r *Registry) Validate(name string, args map[string]string) error {
	tool := r.tools[name]
	if tool == nil {
		return fmt.Errorf("unknown tool %q", name)
	}

	doc := make(map[string]interface{}, len(args))
	for k, v := range args {
		doc[k] = v
	}

	result, err := tool.schema.Validate(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return fmt.Errorf("validate %s arguments: %w", name, err)
	}
	if result.Valid() {
		return nil
	}

	var missing []string
	for _, arg := range tool.Required {
		if args[arg] == "" {
			missing = append(missing, arg)
		}
	}
	sort.Strings(missing)
	if len(missing) > 0 {
		return fmt.Errorf("%s is missing required arguments: %s", name, strings.Join(missing, ", "))
	}
	return fmt.Errorf("%s arguments failed validation: %s", name, result.Errors()[0].String())
}

// Instruction is the greeting shown when a session opens. It mirrors the
// assistant's system prompt so users know which operations exist.
func (r *Registry) Instruction() string {
	var b strings.Builder
	b.WriteString("I am an Account Manager service agent. I can help you with the following tools:\n")
	for _, name := range r.order {
		fmt.Fprintf(&b, "- %s : %s\n", name, r.tools[name].Description)
	}
	b.WriteString("Tell me what you would like to do, for example \"update email\".")
	return b.String()
}
