package agent

import (
	"context"
	"fmt"
	"sync"

	"magictunnel/pkg/mcperrors"
)

// ConfigValidator checks a routing config map against a kind's expected
// shape before it is ever rendered into a Plan. Returning nil means the
// config is acceptable.
type ConfigValidator func(config map[string]any) error

// registration pairs an executor with the validator for its config shape.
type registration struct {
	kind      string
	executor  Executor
	validate  ConfigValidator
	retry     RetryPolicy
	knownKind bool
}

// Registry associates an agent kind with its executor and config
// validator, guarded by a RWMutex the way the teacher's capability
// manager guards its definitions map.
type Registry struct {
	mu    sync.RWMutex
	kinds map[string]registration
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{kinds: make(map[string]registration)}
}

// Register adds an executor for kind. validate may be nil if the kind has
// no config-shape constraints beyond what ValidateTool already enforces.
// A nil retry uses DefaultRetryPolicy.
func (r *Registry) Register(kind string, executor Executor, validate ConfigValidator, retry *RetryPolicy) {
	r.mu.Lock()
	defer r.mu.Unlock()

	policy := DefaultRetryPolicy(kind)
	if retry != nil {
		policy = *retry
	}

	r.kinds[kind] = registration{
		kind:      kind,
		executor:  withPolicy(executor, policy),
		validate:  validate,
		retry:     policy,
		knownKind: true,
	}
}

// KnownKind reports whether kind has a registered executor. Matches the
// catalog.KnownKind signature so it can be passed directly to
// catalog.ValidateTool.
func (r *Registry) KnownKind(kind string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.kinds[kind]
	return ok
}

// Get returns the policy-wrapped executor for kind.
func (r *Registry) Get(kind string) (Executor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	reg, ok := r.kinds[kind]
	if !ok {
		return nil, mcperrors.New(mcperrors.Config, fmt.Sprintf("unknown agent kind %q", kind))
	}
	return reg.executor, nil
}

// ValidateConfig runs the registered ConfigValidator for kind, if any.
func (r *Registry) ValidateConfig(kind string, config map[string]any) error {
	r.mu.RLock()
	reg, ok := r.kinds[kind]
	r.mu.RUnlock()

	if !ok {
		return mcperrors.New(mcperrors.Config, fmt.Sprintf("unknown agent kind %q", kind))
	}
	if reg.validate == nil {
		return nil
	}
	if err := reg.validate(config); err != nil {
		return mcperrors.Wrap(mcperrors.Config, err, fmt.Sprintf("invalid config for kind %q", kind))
	}
	return nil
}

// Kinds lists every registered agent kind, for diagnostics and the
// gateway's config-validation pass at startup.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]string, 0, len(r.kinds))
	for kind := range r.kinds {
		kinds = append(kinds, kind)
	}
	return kinds
}

// Execute renders inv's plan through the registered executor for its kind.
func (r *Registry) Execute(ctx context.Context, inv Invocation) (Result, error) {
	executor, err := r.Get(inv.Plan.Kind)
	if err != nil {
		return Result{}, err
	}
	return executor.Execute(ctx, inv)
}
