// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jcode-dev/jcoded/pkg/config"
	"github.com/jcode-dev/jcoded/pkg/daemonctx"
	"github.com/jcode-dev/jcoded/pkg/externalpool"
	"github.com/jcode-dev/jcoded/pkg/ipc"
	"github.com/jcode-dev/jcoded/pkg/provider"
	"github.com/jcode-dev/jcoded/pkg/tool"
	"github.com/jcode-dev/jcoded/pkg/transport"
)

// systemPrompt is the instruction every new SessionLoop starts with.
// There is no prompt-authoring surface in this system yet (the engine
// consumes whatever Provider returns); a fixed default keeps sessions
// reproducible until one is added.
const systemPrompt = "You are jcode, a local coding agent. Use the available tools to read, edit, and run code in the working directory."

// ServeCmd starts the daemon: it loads configuration, builds the
// capability handles (daemonctx.Context), launches any configured
// external tool servers, and accepts IPC connections until signalled
// to stop.
type ServeCmd struct {
	SocketPath        string `name:"socket" help:"IPC socket path (overrides config/default)." type:"path"`
	BackgroundTaskDir string `name:"background-dir" help:"Directory for background task status files." type:"path"`
	DefaultProvider   string `name:"provider" help:"Default provider name presented to new sessions."`
	Observe           bool   `help:"Enable tracing and Prometheus metrics."`
	MetricsAddr       string `name:"metrics-addr" help:"Address to serve /metrics on (requires --observe)." default:":9090"`
}

func (c *ServeCmd) Run(cli *CLI) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("jcoded: shutting down")
		cancel()
	}()

	cfg, err := c.loadConfig(cli.Config)
	if err != nil {
		return err
	}
	c.applyOverrides(cfg)

	dc, err := daemonctx.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("jcoded: %w", err)
	}
	defer func() {
		if err := dc.Shutdown(context.Background()); err != nil {
			slog.Error("jcoded: shutdown", "error", err)
		}
	}()

	if err := dc.Background.Recover(); err != nil {
		slog.Warn("jcoded: background task recovery", "error", err)
	}

	if specs := externalServerSpecs(cfg); len(specs) > 0 {
		if err := dc.External.Start(ctx, specs); err != nil {
			slog.Warn("jcoded: external server startup", "error", err)
		}
	}

	if dc.Obs.MetricsEnabled() {
		go c.serveMetrics(dc)
	}

	ln, err := transport.Listen(cfg.SocketPath)
	if err != nil {
		return fmt.Errorf("jcoded: listen on %s: %w", cfg.SocketPath, err)
	}

	newProvider := func() provider.Provider {
		return provider.NewMockProvider(cfg.DefaultProvider)
	}
	toolsFactory := func() *tool.Registry { return dc.Tools }

	server := ipc.New(ln, newProvider, toolsFactory, systemPrompt)
	server.SetTurnHook(dc.TurnHook())
	defer server.Close()

	slog.Info("jcoded: listening", "socket", cfg.SocketPath, "provider", cfg.DefaultProvider)
	return server.Serve(ctx)
}

// loadConfig loads configFile if set; otherwise returns a fresh,
// default-only Config that daemonctx.New will fill in.
func (c *ServeCmd) loadConfig(configFile string) (*config.Config, error) {
	if configFile == "" {
		return &config.Config{}, nil
	}
	loader, err := config.NewLoader(config.LoaderOptions{Path: configFile})
	if err != nil {
		return nil, fmt.Errorf("jcoded: %w", err)
	}
	return loader.Load()
}

// applyOverrides layers ServeCmd's CLI flags on top of the loaded
// config: a non-empty flag replaces the config value, except
// --metrics-addr, which only fills in an empty metrics_addr.
func (c *ServeCmd) applyOverrides(cfg *config.Config) {
	if c.SocketPath != "" {
		cfg.SocketPath = c.SocketPath
	}
	if c.BackgroundTaskDir != "" {
		cfg.BackgroundTaskDir = c.BackgroundTaskDir
	}
	if c.DefaultProvider != "" {
		cfg.DefaultProvider = c.DefaultProvider
	}
	if c.Observe {
		cfg.Observability.TracingEnabled = true
		cfg.Observability.MetricsEnabled = true
		if cfg.Observability.MetricsAddr == "" {
			cfg.Observability.MetricsAddr = c.MetricsAddr
		}
	}
}

func (c *ServeCmd) serveMetrics(dc *daemonctx.Context) {
	addr := dc.Config.Observability.MetricsAddr
	if addr == "" {
		addr = c.MetricsAddr
	}
	mux := http.NewServeMux()
	mux.Handle(dc.Obs.MetricsEndpoint(), dc.Obs.MetricsHandler())
	slog.Info("jcoded: serving metrics", "addr", addr, "path", dc.Obs.MetricsEndpoint())
	if err := http.ListenAndServe(addr, mux); err != nil {
		slog.Error("jcoded: metrics server", "error", err)
	}
}

// externalServerSpecs converts the config's named ExternalServers map
// into the ordered []externalpool.ServerSpec that Pool.Start expects.
func externalServerSpecs(cfg *config.Config) []externalpool.ServerSpec {
	specs := make([]externalpool.ServerSpec, 0, len(cfg.ExternalServers))
	for name, srv := range cfg.ExternalServers {
		specs = append(specs, externalpool.ServerSpec{
			Name:    name,
			Command: srv.Command,
			Args:    srv.Args,
			Env:     srv.Env,
		})
	}
	return specs
}
