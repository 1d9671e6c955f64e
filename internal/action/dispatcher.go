package action

import (
	"context"
	"errors"
	"fmt"
)

// ErrCapabilityNotFound is returned when an action names an operation that
// is not registered. Distinct from a ParseError: the response was well
// formed, the operation simply does not exist.
var ErrCapabilityNotFound = errors.New("capability not found")

// Capability is a single named operation the dispatcher may invoke.
// Implementations receive parameters exactly as parsed; a wrong-typed
// parameter is the capability's own error to raise.
type Capability interface {
	Name() string
	Execute(ctx context.Context, params map[string]any) (any, error)
}

// Registry is the closed set of capabilities resolved at startup.
// It is immutable after construction, so adding a capability is a
// compile-time-visible change rather than a runtime map mutation.
type Registry struct {
	caps map[string]Capability
}

// NewRegistry builds a registry from the given capabilities.
func NewRegistry(caps ...Capability) *Registry {
	m := make(map[string]Capability, len(caps))
	for _, c := range caps {
		m[c.Name()] = c
	}
	return &Registry{caps: m}
}

// Names returns the registered capability names.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.caps))
	for name := range r.caps {
		names = append(names, name)
	}
	return names
}

// Dispatch validates the action against the registry and invokes the
// matching capability. The capability's result or error is returned
// unchanged; the dispatcher itself is stateless.
func (r *Registry) Dispatch(ctx context.Context, act Action) (any, error) {
	cap, ok := r.caps[act.Name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrCapabilityNotFound, act.Name)
	}
	return cap.Execute(ctx, act.Params)
}
