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

// Package config provides configuration types and loading for the
// supervisor server. A single YAML (or JSON) document is the entry point
// for everything: supervisor graph defaults, LLM provider, server,
// sessions, auth, and observability.
package config

import (
	"fmt"
)

// Config is the complete server configuration.
type Config struct {
	// Version and metadata
	Version     string `yaml:"version,omitempty" json:"version,omitempty"`
	Name        string `yaml:"name,omitempty" json:"name,omitempty"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`

	// Supervisor holds the default graph configuration. Requests can
	// override it via their configurable map.
	Supervisor GraphConfig `yaml:"supervisor,omitempty" json:"supervisor,omitempty"`

	// LLM configures the model backing the supervisor.
	LLM LLMConfig `yaml:"llm,omitempty" json:"llm,omitempty"`

	// Server configures the HTTP listener.
	Server ServerConfig `yaml:"server,omitempty" json:"server,omitempty"`

	// Sessions configures conversation persistence.
	Sessions SessionConfig `yaml:"sessions,omitempty" json:"sessions,omitempty"`

	// Tools configures external MCP tool servers, keyed by toolset name.
	Tools map[string]*ToolConfig `yaml:"tools,omitempty" json:"tools,omitempty"`

	// Auth configures JWT validation for incoming requests.
	Auth AuthConfig `yaml:"auth,omitempty" json:"auth,omitempty"`

	// Observability configures tracing and metrics.
	Observability ObservabilityConfig `yaml:"observability,omitempty" json:"observability,omitempty"`

	// Logging configures the process logger.
	Logging LoggingConfig `yaml:"logging,omitempty" json:"logging,omitempty"`
}

// Validate implements validation for Config.
func (c *Config) Validate() error {
	if err := c.Supervisor.Validate(); err != nil {
		return fmt.Errorf("supervisor validation failed: %w", err)
	}
	if err := c.LLM.Validate(); err != nil {
		return fmt.Errorf("llm validation failed: %w", err)
	}
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server validation failed: %w", err)
	}
	if err := c.Sessions.Validate(); err != nil {
		return fmt.Errorf("sessions validation failed: %w", err)
	}
	for name, toolCfg := range c.Tools {
		if err := toolCfg.Validate(); err != nil {
			return fmt.Errorf("tool %q validation failed: %w", name, err)
		}
	}
	if err := c.Auth.Validate(); err != nil {
		return fmt.Errorf("auth validation failed: %w", err)
	}
	if err := c.Observability.Validate(); err != nil {
		return fmt.Errorf("observability validation failed: %w", err)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging validation failed: %w", err)
	}
	return nil
}

// SetDefaults implements defaults for Config.
func (c *Config) SetDefaults() {
	c.Supervisor.SetDefaults()
	c.LLM.SetDefaults()
	c.Server.SetDefaults()
	c.Sessions.SetDefaults()
	for _, toolCfg := range c.Tools {
		toolCfg.SetDefaults()
	}
	c.Auth.SetDefaults()
	c.Observability.SetDefaults()
	c.Logging.SetDefaults()
}
