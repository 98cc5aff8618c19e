// Package tools holds the actions a CODE step can run and the dispatcher that executes them.
package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Arguments are the decoded tool_arguments of a step.
type Arguments map[string]any

// String returns the named argument as text, or "" when absent.
func (a Arguments) String(key string) string {
	v, ok := a[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Int returns the named argument as an int. JSON numbers decode as float64.
func (a Arguments) Int(key string) int {
	switch v := a[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

// Require returns an error naming the first missing argument.
func (a Arguments) Require(keys ...string) error {
	for _, k := range keys {
		if a.String(k) == "" {
			return Failf("%s is required", k)
		}
	}
	return nil
}

// Tool defines the interface for all agent capabilities.
type Tool interface {
	Name() string
	Description() string
	Parameters() map[string]any // JSON Schema for the tool's inputs
	Execute(ctx context.Context, args Arguments) (string, error)
}

// Failure is a tool-level failure: the call ran but could not produce a result. It is
// reported as an error result rather than a failed call.
type Failure struct {
	Message string
}

func (f *Failure) Error() string {
	return f.Message
}

func Failf(format string, args ...any) error {
	return &Failure{Message: fmt.Sprintf(format, args...)}
}

// Registry manages the set of available tools. It is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]Tool),
	}
}

func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name()] = t
}

func (r *Registry) Get(name string) Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name]
}

// Names returns the registered tool names in order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Catalog renders one "- name: description" line per tool for the planner prompt.
func (r *Registry) Catalog() string {
	var sb strings.Builder
	for _, name := range r.Names() {
		t := r.Get(name)
		fmt.Fprintf(&sb, "- %s: %s\n", name, t.Description())
	}
	return strings.TrimSuffix(sb.String(), "\n")
}
