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
)

// SessionConfig configures conversation persistence.
type SessionConfig struct {
	// Backend selects the store: "memory", "sqlite", "postgres", or "mysql".
	Backend string `yaml:"backend,omitempty" json:"backend,omitempty"`

	// DSN is the database connection string for SQL backends.
	DSN string `yaml:"dsn,omitempty" json:"dsn,omitempty"`

	// MaxContextTokens caps the token count of history sent to the model.
	// Zero means no windowing.
	MaxContextTokens int `yaml:"max_context_tokens,omitempty" json:"max_context_tokens,omitempty"`

	// TokenModel selects the tokenizer used for windowing.
	TokenModel string `yaml:"token_model,omitempty" json:"token_model,omitempty"`
}

// Validate implements validation for SessionConfig.
func (c *SessionConfig) Validate() error {
	switch c.Backend {
	case "memory":
	case "sqlite", "postgres", "mysql":
		if c.DSN == "" {
			return fmt.Errorf("dsn is required for backend %s", c.Backend)
		}
	default:
		return fmt.Errorf("unsupported session backend: %s", c.Backend)
	}
	if c.MaxContextTokens < 0 {
		return fmt.Errorf("max_context_tokens must not be negative")
	}
	return nil
}

// SetDefaults implements defaults for SessionConfig.
func (c *SessionConfig) SetDefaults() {
	if c.Backend == "" {
		c.Backend = "memory"
	}
	if c.TokenModel == "" {
		c.TokenModel = "gpt-4o"
	}
}
