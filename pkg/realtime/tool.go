package realtime

import (
	"context"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
)

// ToolFunc executes a tool invocation. The returned map's fields are merged
// into the outbound result payload.
type ToolFunc func(ctx context.Context, args map[string]any) (map[string]any, error)

// Tool is a named local function the remote side may invoke.
type Tool struct {
	// Name is the function name declared to the remote side.
	Name string

	// Description describes what the function does.
	Description string

	// Parameters is the JSON Schema for the function parameters.
	Parameters *jsonschema.Schema

	// Run executes the tool.
	Run ToolFunc
}

// ToolDecl is the wire representation of a declared tool.
type ToolDecl struct {
	Type        string             `json:"type"` // always "function"
	Name        string             `json:"name"`
	Description string             `json:"description,omitzero"`
	Parameters  *jsonschema.Schema `json:"parameters,omitzero"`
}

// Registry is an immutable name-to-tool table fixed at construction time.
type Registry struct {
	tools map[string]*Tool
	order []string
}

// NewRegistry creates a registry from the given tools. Later tools replace
// earlier ones with the same name.
func NewRegistry(tools ...*Tool) *Registry {
	r := &Registry{tools: make(map[string]*Tool, len(tools))}
	for _, t := range tools {
		if _, exists := r.tools[t.Name]; !exists {
			r.order = append(r.order, t.Name)
		}
		r.tools[t.Name] = t
	}
	return r
}

// Declarations returns the tool schemas in registration order, for the
// session-configure handshake.
func (r *Registry) Declarations() []ToolDecl {
	if r == nil {
		return nil
	}
	decls := make([]ToolDecl, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		decls = append(decls, ToolDecl{
			Type:        "function",
			Name:        t.Name,
			Description: t.Description,
			Parameters:  t.Parameters,
		})
	}
	return decls
}

// Dispatch runs the named tool and wraps its outcome in the flat
// success/error envelope. Unknown names and tool failures both produce a
// failed envelope rather than an error; the caller always has a payload to
// send back.
func (r *Registry) Dispatch(ctx context.Context, name string, args map[string]any) map[string]any {
	if r == nil {
		return failedEnvelope(fmt.Sprintf("unknown tool: %s", name))
	}
	tool, ok := r.tools[name]
	if !ok {
		return failedEnvelope(fmt.Sprintf("unknown tool: %s", name))
	}

	result, err := tool.Run(ctx, args)
	if err != nil {
		return failedEnvelope(err.Error())
	}

	envelope := map[string]any{"success": true}
	for k, v := range result {
		envelope[k] = v
	}
	return envelope
}

func failedEnvelope(msg string) map[string]any {
	return map[string]any{"success": false, "error": msg}
}
