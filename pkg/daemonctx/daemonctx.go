// Package daemonctx bundles the daemon's process-wide capability handles
// (EventBus, BackgroundMgr, ExternalPool, ToolRegistry, Config,
// observability.Manager) into a single struct, passed explicitly to
// callers instead of being discovered from package-level globals (spec
// §9's design note: "provide a single daemon-context struct that bundles
// them. Tests instantiate their own.").
package daemonctx

import (
	"context"
	"fmt"
	"time"

	"github.com/jcode-dev/jcoded/pkg/background"
	"github.com/jcode-dev/jcoded/pkg/config"
	"github.com/jcode-dev/jcoded/pkg/eventbus"
	"github.com/jcode-dev/jcoded/pkg/externalpool"
	"github.com/jcode-dev/jcoded/pkg/observability"
	"github.com/jcode-dev/jcoded/pkg/tool"
)

// Context bundles the daemon's capability handles. Every field is safe
// to pass around and share across sessions; per-session state (the
// SessionLoop, the Session itself) is built on top of these, not inside
// this struct.
type Context struct {
	Config *config.Config

	Bus        *eventbus.Bus
	Background *background.Manager
	External   *externalpool.Pool
	Tools      *tool.Registry

	Obs *observability.Manager
}

// New builds a Context from cfg (defaults applied and validated if cfg
// is nil or zero-valued), constructs the capability handles, registers
// the built-in leaf tools, and wires the observability Manager into
// ToolRegistry, BackgroundMgr, and ExternalPool via their decoupled
// callback hooks.
func New(ctx context.Context, cfg *config.Config) (*Context, error) {
	if cfg == nil {
		cfg = &config.Config{}
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("daemonctx: %w", err)
	}

	obs, err := observability.NewManager(ctx, toObservabilityConfig(&cfg.Observability))
	if err != nil {
		return nil, fmt.Errorf("daemonctx: observability: %w", err)
	}
	observability.SetGlobalMetrics(obs.Metrics())

	bus := eventbus.New(eventbus.DefaultCapacity)
	bg := background.New(cfg.BackgroundTaskDir, bus)
	ext := externalpool.New()
	tools := tool.NewRegistry(bus)
	registerBuiltinTools(tools, bus, bg)

	dc := &Context{
		Config:     cfg,
		Bus:        bus,
		Background: bg,
		External:   ext,
		Tools:      tools,
		Obs:        obs,
	}
	dc.wireObservability()

	return dc, nil
}

// toObservabilityConfig adapts the daemon's flat config.ObservabilityConfig
// toggle set to pkg/observability's richer Config, filling in the
// stdout-exporter defaults that toggle set doesn't expose.
func toObservabilityConfig(c *config.ObservabilityConfig) *observability.Config {
	return &observability.Config{
		Tracing: observability.TracingConfig{
			Enabled: c.TracingEnabled,
		},
		Metrics: observability.MetricsConfig{
			Enabled: c.MetricsEnabled,
		},
	}
}

// wireObservability installs the Tracer/Metrics hooks into ToolRegistry,
// BackgroundMgr, and ExternalPool. Both dc.Obs.Tracer() and
// dc.Obs.Metrics() may be nil (tracing/metrics disabled); every method on
// both types tolerates a nil receiver, so the hooks below need no extra
// nil-handling beyond what NewManager already produces.
func (dc *Context) wireObservability() {
	tracer := dc.Obs.Tracer()
	metrics := dc.Obs.Metrics()

	dc.Tools.SetExecuteWrapper(func(ctx context.Context, name string, tc tool.Context, do func() (tool.Output, error)) (tool.Output, error) {
		_, span := tracer.StartToolExecution(ctx, tc.SessionID, name)
		defer span.End()

		start := time.Now()
		out, err := do()
		metrics.RecordToolCall(name, time.Since(start))

		if err != nil {
			metrics.RecordToolError(name)
			tracer.RecordError(span, err)
		} else if out.IsError {
			metrics.RecordToolError(name)
		}
		return out, err
	})

	dc.Background.SetHooks(
		func(toolName string) {
			metrics.RecordBackgroundStarted(toolName)
		},
		func(toolName, status string, duration time.Duration) {
			metrics.RecordBackgroundFinished(toolName, status, duration)
		},
	)

	dc.External.SetCallHook(func(ctx context.Context, server, method string, do func() (map[string]any, bool, error)) (map[string]any, bool, error) {
		_, span := tracer.StartExternalCall(ctx, server, method)
		defer span.End()

		start := time.Now()
		result, isErr, err := do()
		dur := time.Since(start)

		recordErr := err
		if recordErr == nil && isErr {
			recordErr = fmt.Errorf("external tool %q on %q returned an error result", method, server)
		}
		metrics.RecordExternalRequest(server, method, dur, recordErr)
		if recordErr != nil {
			tracer.RecordError(span, recordErr)
		}
		return result, isErr, err
	})
}

// TurnHook returns a callback matching session.Loop.SetTurnHook and
// ipc.Server.SetTurnHook's shape, wrapping every SessionLoop turn in a
// tracing span and recording its duration/cancellation in Metrics. The
// daemon installs it on the ipc.Server so every session it creates gets
// per-turn observability.
func (dc *Context) TurnHook() func(ctx context.Context, sessionID, provider string, do func(ctx context.Context) bool) bool {
	tracer := dc.Obs.Tracer()
	metrics := dc.Obs.Metrics()

	return func(ctx context.Context, sessionID, providerName string, do func(ctx context.Context) bool) bool {
		turnCtx, span := tracer.StartSessionTurn(ctx, sessionID)
		defer span.End()

		start := time.Now()
		cancelled := do(turnCtx)
		metrics.RecordSessionTurn(providerName, time.Since(start), cancelled)
		return cancelled
	}
}

// Shutdown releases every capability handle: external server processes
// are terminated and the observability Manager is flushed.
func (dc *Context) Shutdown(ctx context.Context) error {
	dc.External.CloseAll()
	return dc.Obs.Shutdown(ctx)
}

// registerBuiltinTools registers every built-in leaf tool plus the batch
// fan-out tool (spec §4.5, §4.7) into a freshly created Registry.
func registerBuiltinTools(reg *tool.Registry, bus *eventbus.Bus, bg *background.Manager) {
	builtins := []tool.Tool{
		tool.NewReadTool(),
		tool.NewWriteTool(),
		tool.NewEditTool(),
		tool.NewPatchTool(),
		tool.NewLsTool(),
		tool.NewGlobTool(),
		tool.NewGrepTool(),
		tool.NewShellTool(),
		tool.NewTodoTool(bus),
		tool.NewBgTool(bg),
	}
	for _, t := range builtins {
		if err := reg.Register(t); err != nil {
			// Built-in names are fixed and never collide with each other;
			// a failure here means a built-in's Name() was duplicated,
			// which is a programming error worth surfacing loudly.
			panic(fmt.Sprintf("daemonctx: register builtin tool %q: %v", t.Name(), err))
		}
	}
	if err := reg.Register(tool.NewBatchTool(reg)); err != nil {
		panic(fmt.Sprintf("daemonctx: register batch tool: %v", err))
	}
}
