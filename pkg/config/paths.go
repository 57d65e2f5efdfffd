package config

import (
	"os"
	"path/filepath"
)

// DefaultSocketPath returns the IPC socket path under the user runtime
// directory (spec §6 "IPC socket"), falling back to the system temp
// directory when XDG_RUNTIME_DIR is unset.
func DefaultSocketPath() string {
	dir := os.Getenv("XDG_RUNTIME_DIR")
	if dir == "" {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "jcoded.sock")
}

// DefaultRegistryPath returns "<home>/.jcode/servers.json" (spec §6
// "Registry file").
func DefaultRegistryPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".jcode", "servers.json"), nil
}

// DefaultMCPConfigPaths returns the two locations ExternalPool config is
// probed at, in lookup order (spec §6 "ExternalPool (MCP) config").
func DefaultMCPConfigPaths() ([]string, error) {
	paths := []string{filepath.Join(".claude", "mcp.json")}
	home, err := os.UserHomeDir()
	if err != nil {
		return paths, nil
	}
	return append(paths, filepath.Join(home, ".claude", "mcp.json")), nil
}
