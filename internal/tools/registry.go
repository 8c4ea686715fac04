// Package tools holds the assistant's tool registry and dispatcher. Tools are
// declared with a name, a description the model reads to decide when to call
// them, and a JSON-schema parameter object; the dispatcher executes them by
// name and always hands the model a JSON result, never an error value.
package tools

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/maylavoice/mayla/pkg/realtime"
)

// Handler executes one tool call. args is the decoded argument object; the
// returned value is marshalled to JSON and sent back to the model.
type Handler func(ctx context.Context, args map[string]any) (any, error)

// Tool is one callable capability exposed to the model.
type Tool struct {
	Name        string
	Description string

	// Parameters is the JSON-schema object describing the arguments.
	Parameters map[string]any

	Handler Handler

	// IDArg names the argument holding an email identifier. When set, the
	// identifier integrity guard validates the value before the handler runs.
	IDArg string

	// ConsumeID removes the identifier from the guard after a successful
	// call, forcing the model to re-list before reusing it.
	ConsumeID bool

	// ExtractIDs pulls resource identifiers out of a successful result.
	// When set, the guard's allow-list is replaced with the extracted set.
	ExtractIDs func(result any) []string
}

// Registry is a named collection of tools. Safe for concurrent use;
// registration normally happens once at startup.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*Tool
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]*Tool)}
}

// Register adds a tool. Duplicate names are a programming error.
func (r *Registry) Register(t *Tool) error {
	if t == nil || t.Name == "" {
		return fmt.Errorf("tools: register: tool must have a name")
	}
	if t.Handler == nil {
		return fmt.Errorf("tools: register %q: handler must not be nil", t.Name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[t.Name]; exists {
		return fmt.Errorf("tools: register %q: already registered", t.Name)
	}
	r.tools[t.Name] = t
	return nil
}

// Lookup returns the tool with the given name, or nil.
func (r *Registry) Lookup(name string) *Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name]
}

// Len reports the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Schemas renders every tool as a session-configuration entry, sorted by name
// so the session.update payload is stable across runs.
func (r *Registry) Schemas() []realtime.ToolSchema {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)

	schemas := make([]realtime.ToolSchema, 0, len(names))
	for _, name := range names {
		t := r.tools[name]
		schemas = append(schemas, realtime.ToolSchema{
			Type:        "function",
			Name:        t.Name,
			Description: t.Description,
			Parameters:  t.Parameters,
		})
	}
	return schemas
}

// ── JSON-schema construction helpers ──────────────────────────────────────────

func schemaObject(properties map[string]any, required ...string) map[string]any {
	obj := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		obj["required"] = required
	}
	return obj
}

func schemaString(description string) map[string]any {
	return map[string]any{"type": "string", "description": description}
}

func schemaNumber(description string) map[string]any {
	return map[string]any{"type": "number", "description": description}
}

func schemaEnum(description string, values ...string) map[string]any {
	return map[string]any{"type": "string", "description": description, "enum": values}
}

func schemaStringArray(description string) map[string]any {
	return map[string]any{
		"type":        "array",
		"description": description,
		"items":       map[string]any{"type": "string"},
	}
}
