// Package tool defines the tool abstraction and registry that the step loop,
// StateGraph nodes and team members dispatch against. A tool is named,
// describes its parameters as a JSON schema, and executes without ever
// raising across the public boundary — every failure is encoded as a
// Result with Success=false.
package tool

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Ident is a tool name, unique and stable within a Registry.
type Ident string

type (
	// Spec describes a tool's static shape: its name, human-readable
	// description, and the JSON schema its arguments must satisfy. An
	// optional HumanInputSchema marks the tool as capable of requesting
	// structured user input mid-execution (see Result.NeedsInput).
	Spec struct {
		Name             Ident
		Description      string
		Parameters       json.RawMessage
		HumanInputSchema json.RawMessage
	}

	// Result is the outcome of a tool execution. Content is always a
	// string — richer payloads are rendered to string before being
	// wrapped into a tool message.
	Result struct {
		Success bool
		Content string
		Error   string

		// NeedsInput is set when the tool is parking for human input
		// instead of returning a terminal result. Prompt carries the
		// structured request to surface to the user; the step loop
		// transitions AgentState to WAITING_INPUT rather than
		// appending a tool message.
		NeedsInput bool
		Prompt     json.RawMessage
	}

	// Tool is the executable half of a registered tool. Execute must
	// never panic or return a Go error for ordinary failures — those are
	// encoded in Result. A non-nil error return is reserved for
	// programmer errors (e.g. a cancelled context) that the caller
	// should treat as fatal to the call, not as tool-level failure.
	Tool interface {
		Spec() Spec
		Execute(ctx context.Context, args json.RawMessage) (Result, error)
	}
)

// Failure builds a failed Result from an error, matching the "tool threw"
// containment rule of the step loop: every panic/error boundary crossing
// becomes a Result, never a propagated error.
func Failure(err error) Result {
	return Result{Success: false, Error: err.Error()}
}

// Failuref builds a failed Result from a formatted message.
func Failuref(format string, args ...any) Result {
	return Result{Success: false, Error: fmt.Sprintf(format, args...)}
}

// Success builds a successful Result with the given string content.
func Success(content string) Result {
	return Result{Success: true, Content: content}
}

// NeedsInput builds a Result that parks the calling run for structured user
// input. prompt is an arbitrary JSON payload describing what is requested.
func NeedsInput(prompt json.RawMessage) Result {
	return Result{NeedsInput: true, Prompt: prompt}
}

// Registry is a name-unique collection of tools, constructed once per agent.
// It is read-only after construction and may be shared freely across runs.
type Registry struct {
	tools   map[Ident]Tool
	schemas map[Ident]*jsonschema.Schema
	order   []Ident
}

// NewRegistry builds a Registry from the given tools. Duplicate names are
// rejected at construction, per spec: "duplicate names are rejected at
// construction".
func NewRegistry(tools ...Tool) (*Registry, error) {
	r := &Registry{
		tools:   make(map[Ident]Tool, len(tools)),
		schemas: make(map[Ident]*jsonschema.Schema, len(tools)),
	}
	for _, t := range tools {
		if err := r.add(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) add(t Tool) error {
	spec := t.Spec()
	if spec.Name == "" {
		return fmt.Errorf("tool: empty name not allowed")
	}
	if _, exists := r.tools[spec.Name]; exists {
		return fmt.Errorf("tool: duplicate name %q", spec.Name)
	}
	if len(spec.Parameters) > 0 {
		compiled, err := compileSchema(string(spec.Name), spec.Parameters)
		if err != nil {
			return fmt.Errorf("tool %q: invalid parameters schema: %w", spec.Name, err)
		}
		r.schemas[spec.Name] = compiled
	}
	r.tools[spec.Name] = t
	r.order = append(r.order, spec.Name)
	return nil
}

func compileSchema(name string, raw json.RawMessage) (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	res := "tool://" + name
	if err := c.AddResource(res, doc); err != nil {
		return nil, err
	}
	return c.Compile(res)
}

// Lookup returns the tool registered under name, if any.
func (r *Registry) Lookup(name Ident) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Specs returns the specs of every registered tool in registration order.
func (r *Registry) Specs() []Spec {
	out := make([]Spec, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name].Spec())
	}
	return out
}

// Validate checks args against the tool's declared parameters schema, if
// any. A tool with no schema accepts any arguments.
func (r *Registry) Validate(name Ident, args json.RawMessage) error {
	schema, ok := r.schemas[name]
	if !ok {
		return nil
	}
	var doc any
	if len(args) == 0 {
		doc = map[string]any{}
	} else if err := json.Unmarshal(args, &doc); err != nil {
		return fmt.Errorf("tool %q: arguments are not valid JSON: %w", name, err)
	}
	return schema.Validate(doc)
}

// Execute resolves name in the registry and runs it. Unknown names produce
// the sentinel failure described by the step loop contract rather than an
// error, so callers can append it directly as a tool result.
func (r *Registry) Execute(ctx context.Context, name Ident, args json.RawMessage) (Result, error) {
	t, ok := r.Lookup(name)
	if !ok {
		return Failuref("unknown tool"), nil
	}
	if err := r.Validate(name, args); err != nil {
		return Failure(err), nil
	}
	return t.Execute(ctx, args)
}
