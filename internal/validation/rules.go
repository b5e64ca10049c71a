package validation

import (
	"context"
	"fmt"
	"sort"
	"sync"

	dErrors "bastion/pkg/domain-errors"
)

// Rule validates an operation input beyond what struct tags express.
type Rule func(ctx context.Context, input any) error

// Registry maps rule names to rules. Operations reference rules by name.
type Registry struct {
	mu    sync.RWMutex
	rules map[string]Rule
}

func NewRegistry() *Registry {
	r := &Registry{rules: make(map[string]Rule)}
	r.rules["required"] = requireInput
	return r
}

// Register adds a rule. Names are unique.
func (r *Registry) Register(name string, rule Rule) error {
	if name == "" || rule == nil {
		return dErrors.New(dErrors.CodeBadRequest, "rule name and function are required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.rules[name]; exists {
		return dErrors.New(dErrors.CodeConflict, fmt.Sprintf("rule %q already registered", name))
	}
	r.rules[name] = rule
	return nil
}

func (r *Registry) Get(name string) (Rule, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rule, ok := r.rules[name]
	return rule, ok
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.rules))
	for name := range r.rules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func requireInput(_ context.Context, input any) error {
	if input == nil {
		return dErrors.New(dErrors.CodeValidation, "input is required")
	}
	return nil
}
