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

// Command jcoded is the local coding-agent daemon.
//
// Usage:
//
//	jcoded serve --config config.yaml
//	jcoded serve --socket /tmp/jcoded.sock
//	jcoded validate --config config.yaml
package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"

	"github.com/jcode-dev/jcoded/pkg/logger"
)

// CLI defines the command-line interface.
type CLI struct {
	Serve    ServeCmd    `cmd:"" help:"Start the daemon and listen for IPC connections."`
	Validate ValidateCmd `cmd:"" help:"Validate a configuration file without starting the daemon."`
	Version  VersionCmd  `cmd:"" help:"Show version information."`

	Config    string `short:"c" help:"Path to config file." type:"path"`
	LogLevel  string `help:"Log level (debug, info, warn, error)." default:"info"`
	LogFile   string `help:"Log file path (empty = stderr)."`
	LogFormat string `help:"Log format (simple, verbose, or custom)." default:"simple"`
}

func main() {
	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("jcoded"),
		kong.Description("Local, multi-session coding-agent daemon."),
		kong.UsageOnError(),
	)

	cleanup, err := initLogger(&cli)
	if err != nil {
		fmt.Fprintln(os.Stderr, "jcoded:", err)
		os.Exit(1)
	}
	if cleanup != nil {
		defer cleanup()
	}

	if err := kctx.Run(&cli); err != nil {
		fmt.Fprintln(os.Stderr, "jcoded:", err)
		os.Exit(1)
	}
}

// initLogger sets up the process-wide slog logger from CLI flags, before
// any command's Run method executes. The returned cleanup closes the log
// file, if one was opened; it is nil when logging to stderr.
func initLogger(cli *CLI) (func(), error) {
	level, err := logger.ParseLevel(cli.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}

	out := os.Stderr
	var cleanup func()
	if cli.LogFile != "" {
		f, closeFile, err := logger.OpenLogFile(cli.LogFile)
		if err != nil {
			return nil, fmt.Errorf("log file: %w", err)
		}
		out = f
		cleanup = closeFile
	}

	logger.Init(level, out, cli.LogFormat)
	return cleanup, nil
}
