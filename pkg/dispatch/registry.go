package dispatch

import (
	"encoding/json"
	"sync"

	"github.com/Mindburn-Labs/gatekeeper/pkg/gateerr"
)

// Registry is the static, name-to-handler tool table built once at
// startup. Read-only tools are always registered; mutating tools are
// registered only when the kill-switch is not engaged at boot.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{handlers: map[string]HandlerFunc{}}
}

// Register adds a tool handler under name. Re-registering the same name
// overwrites the prior handler, which only ever happens deliberately at
// startup (never at runtime, from any tool call).
func (r *Registry) Register(name string, h HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = h
}

// Lookup returns the handler for name, if registered.
func (r *Registry) Lookup(name string) (HandlerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[name]
	return h, ok
}

// errorData extracts the JSON-safe structured envelope from err for the
// JSON-RPC error object's Data field, so callers get the full
// gateerr.GateError shape (error_code, invariant_id, plan_hash, ...) and
// not just a flattened message string.
func errorData(err error) any {
	if ge, ok := err.(*gateerr.GateError); ok {
		var m map[string]any
		if jsonErr := json.Unmarshal(ge.MarshalForResponse(), &m); jsonErr == nil {
			return m
		}
	}
	if iv, ok := err.(*gateerr.InvariantViolation); ok {
		return map[string]string{"invariant_id": iv.InvariantID, "detail": iv.Detail}
	}
	return nil
}
