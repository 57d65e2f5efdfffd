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
	"fmt"

	"github.com/jcode-dev/jcoded/pkg/config"
)

// ValidateCmd loads and validates a configuration file without
// starting the daemon, reporting the first structural error found.
type ValidateCmd struct{}

func (c *ValidateCmd) Run(cli *CLI) error {
	if cli.Config == "" {
		return fmt.Errorf("--config is required for validate")
	}

	loader, err := config.NewLoader(config.LoaderOptions{Path: cli.Config})
	if err != nil {
		return err
	}
	if _, err := loader.Load(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	fmt.Printf("%s is valid\n", cli.Config)
	return nil
}
