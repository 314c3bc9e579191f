// Package tools holds the function-calling surface exposed to the voice
// agent: a registry mapping function names to handlers, plus the built-in
// IT helpdesk toolset.
package tools

import (
	"context"
	"sync"

	"github.com/bytedance/sonic"

	"github.com/room4-2/callbridge/voicelive"
)

// Result is what a handler produces for one invocation. Output is the JSON
// string submitted back to the model as the function result. FollowUp, when
// non-empty, becomes per-response instructions for the continuation the
// controller requests after submitting the result.
type Result struct {
	Output   string
	FollowUp string
}

// Handler executes one tool invocation. Args are the decoded function
// arguments. A returned error is reported to the model as a failed call;
// it never ends the session.
type Handler func(ctx context.Context, args map[string]any) (Result, error)

// Registry maps function names to definitions and handlers.
type Registry struct {
	mu       sync.RWMutex
	defs     []voicelive.ToolDef
	handlers map[string]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register adds a tool. Re-registering a name replaces its handler but the
// original definition stays in the handshake list.
func (r *Registry) Register(def voicelive.ToolDef, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[def.Name]; !exists {
		r.defs = append(r.defs, def)
	}
	r.handlers[def.Name] = h
}

// Defs returns the tool definitions for the session configuration handshake.
func (r *Registry) Defs() []voicelive.ToolDef {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]voicelive.ToolDef, len(r.defs))
	copy(out, r.defs)
	return out
}

// Lookup finds the handler for a function name.
func (r *Registry) Lookup(name string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[name]
	return h, ok
}

// JSONOutput marshals v for use as a Result.Output. Marshal failures fall
// back to a generic failure payload so a handler never submits invalid JSON.
func JSONOutput(v any) string {
	raw, err := sonic.Marshal(v)
	if err != nil {
		return FailureOutput("internal error")
	}
	return string(raw)
}

// FailureOutput builds the conventional failure payload.
func FailureOutput(msg string) string {
	raw, _ := sonic.Marshal(map[string]any{"success": false, "error": msg})
	return string(raw)
}
