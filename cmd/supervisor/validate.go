// Copyright 2025 LangChain, Inc.
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
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/langchain-ai/oap-agent-supervisor/pkg/config"
)

// ValidateCmd validates a configuration file.
type ValidateCmd struct {
	Config string `arg:"" name:"config" help:"Configuration file path." placeholder:"PATH"`

	Format string `short:"f" help:"Output format: compact, json." default:"compact" enum:"compact,json"`

	// PrintConfig prints the expanded configuration with defaults applied
	// and environment variables resolved.
	PrintConfig bool `short:"p" name:"print-config" help:"Print the expanded configuration."`
}

func (c *ValidateCmd) Run(cli *CLI) error {
	ctx := context.Background()

	cfg, loader, err := config.LoadConfigFile(ctx, c.Config)
	if err != nil {
		if c.Format == "json" {
			_ = json.NewEncoder(os.Stdout).Encode(map[string]any{
				"valid":  false,
				"config": c.Config,
				"error":  err.Error(),
			})
			os.Exit(1)
		}
		return fmt.Errorf("%s: %w", c.Config, err)
	}
	defer loader.Close()

	if c.PrintConfig {
		out, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("failed to marshal config: %w", err)
		}
		fmt.Print(string(out))
		return nil
	}

	if c.Format == "json" {
		return json.NewEncoder(os.Stdout).Encode(map[string]any{
			"valid":  true,
			"config": c.Config,
			"agents": len(cfg.Supervisor.Agents),
		})
	}

	fmt.Printf("%s: valid (%d sub-agents, %s/%s)\n", c.Config, len(cfg.Supervisor.Agents), cfg.LLM.Provider, cfg.LLM.Model)
	return nil
}
