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
	"strings"
	"testing"
)

func TestConfigurableKeys(t *testing.T) {
	keys := ConfigurableKeys()

	want := map[string]bool{"agents": false, "system_prompt": false}
	for _, k := range keys {
		if _, ok := want[k]; !ok {
			t.Errorf("unexpected configurable key: %s", k)
			continue
		}
		want[k] = true
	}
	for k, seen := range want {
		if !seen {
			t.Errorf("missing configurable key: %s", k)
		}
	}
}

func TestGraphConfigFromMap(t *testing.T) {
	cfg, err := GraphConfigFromMap(map[string]any{
		"agents": []any{
			map[string]any{
				"deployment_url": "https://deploy.example.com",
				"agent_id":       "agent-1",
				"name":           "Research Agent",
			},
		},
		"system_prompt": "You coordinate research.",
	})
	if err != nil {
		t.Fatalf("failed to decode graph config: %v", err)
	}

	if len(cfg.Agents) != 1 {
		t.Fatalf("expected 1 agent, got %d", len(cfg.Agents))
	}
	if cfg.Agents[0].DeploymentURL != "https://deploy.example.com" {
		t.Errorf("unexpected deployment_url: %s", cfg.Agents[0].DeploymentURL)
	}
	if cfg.Agents[0].AgentID != "agent-1" {
		t.Errorf("unexpected agent_id: %s", cfg.Agents[0].AgentID)
	}
	if cfg.Agents[0].Name != "Research Agent" {
		t.Errorf("unexpected name: %s", cfg.Agents[0].Name)
	}
	if cfg.SystemPrompt != "You coordinate research." {
		t.Errorf("unexpected system_prompt: %s", cfg.SystemPrompt)
	}
}

func TestGraphConfigFromMap_Defaults(t *testing.T) {
	cfg, err := GraphConfigFromMap(map[string]any{})
	if err != nil {
		t.Fatalf("failed to decode empty graph config: %v", err)
	}

	if cfg.Agents == nil {
		t.Error("expected agents to default to an empty slice")
	}
	if len(cfg.Agents) != 0 {
		t.Errorf("expected 0 agents, got %d", len(cfg.Agents))
	}
}

func TestGraphConfigFromMap_IgnoresUnknownKeys(t *testing.T) {
	cfg, err := GraphConfigFromMap(map[string]any{
		"system_prompt": "hello",
		"thread_id":     "abc-123",
		"user_id":       "user-1",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.SystemPrompt != "hello" {
		t.Errorf("unexpected system_prompt: %s", cfg.SystemPrompt)
	}
}

func TestGraphConfigValidateNames(t *testing.T) {
	tests := []struct {
		name    string
		agents  []AgentConfig
		wantErr string
	}{
		{
			name: "distinct names",
			agents: []AgentConfig{
				{Name: "Math Wizard", DeploymentURL: "http://x", AgentID: "a"},
				{Name: "Researcher", DeploymentURL: "http://y", AgentID: "b"},
			},
		},
		{
			name: "name sanitizes to empty",
			agents: []AgentConfig{
				{Name: "<|/>", DeploymentURL: "http://x", AgentID: "a"},
			},
			wantErr: "sanitizes to an empty string",
		},
		{
			name: "duplicate after sanitization",
			agents: []AgentConfig{
				{Name: "my agent", DeploymentURL: "http://x", AgentID: "a"},
				{Name: "my_agent", DeploymentURL: "http://y", AgentID: "b"},
			},
			wantErr: "duplicate name",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := GraphConfig{Agents: tt.agents}
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestGraphConfigFromMapRejectsDuplicates(t *testing.T) {
	_, err := GraphConfigFromMap(map[string]any{
		"agents": []any{
			map[string]any{"name": "helper one", "deployment_url": "http://x", "agent_id": "a"},
			map[string]any{"name": "helper_one", "deployment_url": "http://y", "agent_id": "b"},
		},
	})
	if err == nil {
		t.Fatal("expected duplicate name error")
	}
}

func TestAgentConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     AgentConfig
		wantErr bool
	}{
		{
			name: "valid",
			cfg: AgentConfig{
				DeploymentURL: "https://deploy.example.com",
				AgentID:       "agent-1",
				Name:          "Agent",
			},
		},
		{
			name:    "missing deployment_url",
			cfg:     AgentConfig{AgentID: "agent-1", Name: "Agent"},
			wantErr: true,
		},
		{
			name:    "missing agent_id",
			cfg:     AgentConfig{DeploymentURL: "https://deploy.example.com", Name: "Agent"},
			wantErr: true,
		},
		{
			name:    "missing name",
			cfg:     AgentConfig{DeploymentURL: "https://deploy.example.com", AgentID: "agent-1"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
