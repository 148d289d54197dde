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

package config

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/mitchellh/mapstructure"
)

var disallowedNameChars = regexp.MustCompile(`[<|\\/>]`)

// SanitizeAgentName makes an agent name safe for use in tool names.
// Spaces become underscores; <, >, |, \ and / are removed.
func SanitizeAgentName(name string) string {
	sanitized := strings.ReplaceAll(name, " ", "_")
	return disallowedNameChars.ReplaceAllString(sanitized, "")
}

// AgentConfig identifies one remote agent the supervisor can delegate to.
type AgentConfig struct {
	// DeploymentURL is the base URL of the deployment hosting the agent.
	DeploymentURL string `yaml:"deployment_url" json:"deployment_url"`

	// AgentID identifies the agent within the deployment.
	AgentID string `yaml:"agent_id" json:"agent_id"`

	// Name is the display name used to derive the delegation tool name.
	Name string `yaml:"name" json:"name"`
}

// Validate checks that all agent fields are present.
func (c *AgentConfig) Validate() error {
	if c.DeploymentURL == "" {
		return fmt.Errorf("deployment_url is required")
	}
	if c.AgentID == "" {
		return fmt.Errorf("agent_id is required")
	}
	if c.Name == "" {
		return fmt.Errorf("name is required")
	}
	return nil
}

// GraphConfig holds the per-invocation supervisor configuration.
// It can come from the config file or from the request "configurable" map.
type GraphConfig struct {
	// Agents lists the remote agents available for delegation.
	// An empty list is valid: the supervisor then answers everything itself.
	Agents []AgentConfig `yaml:"agents" json:"agents"`

	// SystemPrompt is the editable part of the supervisor system prompt.
	SystemPrompt string `yaml:"system_prompt" json:"system_prompt"`
}

// Validate implements validation for GraphConfig. Agent names must stay
// distinct and non-empty after sanitization, since each one becomes a
// delegation tool name.
func (c *GraphConfig) Validate() error {
	seen := make(map[string]int, len(c.Agents))
	for i, agent := range c.Agents {
		if err := agent.Validate(); err != nil {
			return fmt.Errorf("agent %d validation failed: %w", i, err)
		}
		sanitized := SanitizeAgentName(agent.Name)
		if sanitized == "" {
			return fmt.Errorf("agent %d: name %q sanitizes to an empty string", i, agent.Name)
		}
		if prev, ok := seen[sanitized]; ok {
			return fmt.Errorf("agents %d and %d: duplicate name %q after sanitization", prev, i, sanitized)
		}
		seen[sanitized] = i
	}
	return nil
}

// SetDefaults implements defaults for GraphConfig.
func (c *GraphConfig) SetDefaults() {
	if c.Agents == nil {
		c.Agents = []AgentConfig{}
	}
}

// ConfigurableKeys returns the yaml field names of GraphConfig.
// These keys are stripped from configurable and metadata maps before they
// are forwarded to sub-agents, so graph-level settings never leak down.
func ConfigurableKeys() []string {
	t := reflect.TypeOf(GraphConfig{})
	keys := make([]string, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		tag := t.Field(i).Tag.Get("yaml")
		if tag == "" || tag == "-" {
			continue
		}
		if idx := strings.Index(tag, ","); idx != -1 {
			tag = tag[:idx]
		}
		keys = append(keys, tag)
	}
	return keys
}

// GraphConfigFromMap decodes a GraphConfig from a request configurable map.
// Unknown keys are ignored; defaults are applied after decoding.
func GraphConfigFromMap(input map[string]any) (*GraphConfig, error) {
	cfg := &GraphConfig{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		TagName:          "yaml",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}
	if err := decoder.Decode(input); err != nil {
		return nil, fmt.Errorf("failed to decode graph config: %w", err)
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
