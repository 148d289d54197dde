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

import "fmt"

// ToolConfig configures an external MCP tool server. Tools discovered from
// the server are exposed to the supervisor alongside its delegation tools.
type ToolConfig struct {
	// Enabled controls whether the tool server is active.
	Enabled *bool `yaml:"enabled,omitempty" json:"enabled,omitempty" jsonschema:"title=Enabled,description=Whether the tool server is active,default=true"`

	// URL is the MCP server URL (for HTTP transports).
	URL string `yaml:"url,omitempty" json:"url,omitempty" jsonschema:"title=MCP URL,description=MCP server URL for HTTP transports"`

	// Transport specifies the MCP transport (stdio, sse, streamable-http).
	Transport string `yaml:"transport,omitempty" json:"transport,omitempty" jsonschema:"title=Transport,description=MCP transport type,enum=stdio,enum=sse,enum=streamable-http"`

	// Command for stdio transport.
	Command string `yaml:"command,omitempty" json:"command,omitempty" jsonschema:"title=Command,description=Command to launch the MCP server for stdio transport"`

	// Args for stdio transport.
	Args []string `yaml:"args,omitempty" json:"args,omitempty" jsonschema:"title=Args,description=Arguments for the stdio command"`

	// Env for stdio transport.
	Env map[string]string `yaml:"env,omitempty" json:"env,omitempty" jsonschema:"title=Environment Variables,description=Environment variables for the stdio command"`

	// Filter limits which tools are exposed from the server.
	Filter []string `yaml:"filter,omitempty" json:"filter,omitempty" jsonschema:"title=Filter,description=Limit which tools are exposed from the server"`

	// MaxRetries for HTTP requests.
	MaxRetries int `yaml:"max_retries,omitempty" json:"max_retries,omitempty" jsonschema:"title=Max Retries,description=Retry budget for HTTP requests,default=3"`
}

// SetDefaults applies default values.
func (c *ToolConfig) SetDefaults() {
	if c.Enabled == nil {
		c.Enabled = BoolPtr(true)
	}

	if c.Transport == "" {
		// Auto-detect transport
		if c.URL != "" {
			c.Transport = "streamable-http"
		} else if c.Command != "" {
			c.Transport = "stdio"
		}
	}
}

// Validate checks the tool server configuration.
func (c *ToolConfig) Validate() error {
	if c.URL == "" && c.Command == "" {
		return fmt.Errorf("mcp tool server requires url or command")
	}

	switch c.Transport {
	case "", "stdio", "sse", "streamable-http":
	default:
		return fmt.Errorf("invalid transport %q (valid: stdio, sse, streamable-http)", c.Transport)
	}

	if c.Transport == "stdio" && c.Command == "" {
		return fmt.Errorf("stdio transport requires command")
	}

	return nil
}

// IsEnabled returns whether the tool server is enabled.
func (c *ToolConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// BoolPtr returns a pointer to the given bool.
func BoolPtr(b bool) *bool {
	return &b
}
