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

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	// Level: debug, info, warn, or error.
	Level string `yaml:"level,omitempty" json:"level,omitempty"`

	// Format: simple, verbose, or text.
	Format string `yaml:"format,omitempty" json:"format,omitempty"`

	// File writes logs to a file instead of stderr.
	File string `yaml:"file,omitempty" json:"file,omitempty"`
}

// Validate implements validation for LoggingConfig.
func (c *LoggingConfig) Validate() error {
	switch c.Level {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid log level: %s", c.Level)
	}
	switch c.Format {
	case "", "simple", "verbose", "text":
	default:
		return fmt.Errorf("invalid log format: %s", c.Format)
	}
	return nil
}

// SetDefaults implements defaults for LoggingConfig.
func (c *LoggingConfig) SetDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.Format == "" {
		c.Format = "simple"
	}
}
