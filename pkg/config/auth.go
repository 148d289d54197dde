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

// AuthConfig configures JWT validation for incoming requests.
// The server is a JWT consumer: it validates tokens minted by an external
// auth provider and relays them to sub-agents.
type AuthConfig struct {
	Enabled  bool   `yaml:"enabled" json:"enabled"`
	JWKSURL  string `yaml:"jwks_url,omitempty" json:"jwks_url,omitempty"`
	Issuer   string `yaml:"issuer,omitempty" json:"issuer,omitempty"`
	Audience string `yaml:"audience,omitempty" json:"audience,omitempty"`

	// RefreshInterval is the minimum JWKS refresh interval in minutes.
	RefreshInterval int `yaml:"refresh_interval,omitempty" json:"refresh_interval,omitempty"`
}

// Validate implements validation for AuthConfig.
func (c *AuthConfig) Validate() error {
	if c.Enabled {
		if c.JWKSURL == "" {
			return fmt.Errorf("jwks_url is required when auth is enabled")
		}
		if c.Issuer == "" {
			return fmt.Errorf("issuer is required when auth is enabled")
		}
		if c.Audience == "" {
			return fmt.Errorf("audience is required when auth is enabled")
		}
	}
	return nil
}

// SetDefaults implements defaults for AuthConfig. Auth is opt-in.
func (c *AuthConfig) SetDefaults() {
	if c.RefreshInterval == 0 {
		c.RefreshInterval = 15
	}
}
