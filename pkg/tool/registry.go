package tool

import (
	"context"
	"fmt"
	"time"

	"github.com/jcode-dev/jcoded/pkg/eventbus"
	"github.com/jcode-dev/jcoded/pkg/registry"
)

// RegistryError wraps a registration failure (empty or duplicate name)
// with the operation and tool name that triggered it, following
// the reference codebase's ToolRegistryError{Op,Name,Err} shape.
type RegistryError struct {
	Op   string
	Name string
	Err  error
}

func (e *RegistryError) Error() string {
	return fmt.Sprintf("tool registry: %s %q: %v", e.Op, e.Name, e.Err)
}

func (e *RegistryError) Unwrap() error { return e.Err }

// Registry is the name->Tool lookup and uniform dispatcher of spec §4.5.
// It holds tools in an insertion-ordered mapping (pkg/registry) so
// List() is deterministic across runs for the same registration order.
type Registry struct {
	base *registry.BaseRegistry[Tool]
	bus  *eventbus.Bus

	// onExecute, if set, is called around every Execute for tracing and
	// metrics (wired to pkg/observability by the daemon, kept as a plain
	// callback here so this package has no observability import).
	onExecute func(ctx context.Context, name string, tc Context, fn func() (Output, error)) (Output, error)
}

// NewRegistry creates an empty Registry publishing tool lifecycle events
// to bus (may be nil, in which case events are simply not published).
func NewRegistry(bus *eventbus.Bus) *Registry {
	return &Registry{
		base: registry.NewBaseRegistry[Tool](),
		bus:  bus,
	}
}

// SetExecuteWrapper installs a callback invoked around every tool
// execution, used by the daemon to add an observability span without
// this package depending on pkg/observability.
func (r *Registry) SetExecuteWrapper(fn func(ctx context.Context, name string, tc Context, do func() (Output, error)) (Output, error)) {
	r.onExecute = fn
}

// Register adds a tool under its own Name(). Re-registering the same
// name is an error, consistent with pkg/registry's Register semantics.
func (r *Registry) Register(t Tool) error {
	if err := r.base.Register(t.Name(), t); err != nil {
		return &RegistryError{Op: "register", Name: t.Name(), Err: err}
	}
	return nil
}

// Get returns the named tool, if registered.
func (r *Registry) Get(name string) (Tool, bool) {
	return r.base.Get(name)
}

// List returns {name, schema, description} for every registered tool, in
// registration order, for handing to providers (spec §4.5).
func (r *Registry) List() []Definition {
	tools := r.base.List()
	defs := make([]Definition, 0, len(tools))
	for _, t := range tools {
		defs = append(defs, Definition{Name: t.Name(), Description: t.Description(), Schema: t.Schema()})
	}
	return defs
}

// Names returns the registered tool names in registration order.
func (r *Registry) Names() []string {
	tools := r.base.List()
	names := make([]string, 0, len(tools))
	for _, t := range tools {
		names = append(names, t.Name())
	}
	return names
}

// Execute validates the name, runs the tool, and emits a pair of
// EventBus events (status=running before, status=done/error after), per
// spec §4.5. Unknown tool names and tool-body panics/errors are
// converted into Output{IsError:true} rather than propagated, so the
// engine can always feed the result back into the next provider turn.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any, tc Context) Output {
	t, ok := r.Get(name)
	if !ok {
		return ErrorOutput(fmt.Sprintf("unknown tool: %q", name))
	}

	r.publish(tc, name, "running")

	run := func() (out Output, err error) {
		defer func() {
			if rec := recover(); rec != nil {
				out = ErrorOutput(fmt.Sprintf("tool %q panicked: %v", name, rec))
				err = nil
			}
		}()
		return t.Execute(ctx, args, tc)
	}

	var out Output
	var err error
	if r.onExecute != nil {
		out, err = r.onExecute(ctx, name, tc, run)
	} else {
		out, err = run()
	}

	if err != nil {
		out = ErrorOutput(err.Error())
	}

	if out.IsError {
		r.publish(tc, name, "error")
	} else {
		r.publish(tc, name, "done")
	}

	return out
}

func (r *Registry) publish(tc Context, name, status string) {
	if r.bus == nil {
		return
	}
	r.bus.Publish(eventbus.Event{
		Kind: eventbus.KindToolStatusChanged,
		Payload: eventbus.ToolStatusChangedPayload{
			SessionID:  tc.SessionID,
			ToolCallID: tc.ToolCallID,
			ToolName:   name,
			Status:     status,
		},
	})
}

// executionTimer is a small helper leaf tools can embed to record
// execution duration in their Output.Metadata, matching the reference
// codebase's ExecutionTime bookkeeping.
func executionTimer() (start time.Time, elapsed func() time.Duration) {
	start = time.Now()
	return start, func() time.Duration { return time.Since(start) }
}
