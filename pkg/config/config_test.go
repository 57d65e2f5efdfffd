package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoaderLoadAppliesDefaultsAndEnvExpansion(t *testing.T) {
	t.Setenv("JCODE_TEST_PROVIDER", "anthropic")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "default_provider: ${JCODE_TEST_PROVIDER}\ndefault_model: claude\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	loader, err := NewLoader(LoaderOptions{Path: path})
	if err != nil {
		t.Fatalf("NewLoader: %v", err)
	}

	cfg, err := loader.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DefaultProvider != "anthropic" {
		t.Fatalf("expected env-expanded provider, got %q", cfg.DefaultProvider)
	}
	if cfg.SocketPath == "" {
		t.Fatalf("expected SetDefaults to fill socket path")
	}
	if cfg.BackgroundTaskDir == "" {
		t.Fatalf("expected SetDefaults to fill background task dir")
	}
}

func TestLoaderRejectsExternalServerWithoutCommand(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "external_servers:\n  bad:\n    args: [\"--flag\"]\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	loader, err := NewLoader(LoaderOptions{Path: path})
	if err != nil {
		t.Fatalf("NewLoader: %v", err)
	}

	if _, err := loader.Load(); err == nil {
		t.Fatal("expected validation error for missing command")
	}
}

func TestLoaderWatchInvokesOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("default_model: claude\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	changed := make(chan *Config, 1)
	loader, err := NewLoader(LoaderOptions{
		Path:  path,
		Watch: true,
		OnChange: func(cfg *Config) error {
			changed <- cfg
			return nil
		},
	})
	if err != nil {
		t.Fatalf("NewLoader: %v", err)
	}
	defer loader.Stop()

	if _, err := loader.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}

	if err := os.WriteFile(path, []byte("default_model: claude-2\n"), 0o644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}

	select {
	case cfg := <-changed:
		if cfg.DefaultModel != "claude-2" {
			t.Fatalf("unexpected reloaded model: %q", cfg.DefaultModel)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for reload callback")
	}
}
