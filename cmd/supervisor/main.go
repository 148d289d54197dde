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

// Command supervisor runs the agent supervisor: an A2A server that routes
// user requests to remote agents through LLM tool calling.
//
// Usage:
//
//	supervisor serve --config config.yaml
//	supervisor validate config.yaml
//	supervisor schema > config.schema.json
package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"

	oap "github.com/langchain-ai/oap-agent-supervisor"
	"github.com/langchain-ai/oap-agent-supervisor/pkg/config"
)

// CLI defines the command-line interface.
type CLI struct {
	Version  VersionCmd  `cmd:"" help:"Show version information."`
	Serve    ServeCmd    `cmd:"" help:"Start the A2A server."`
	Validate ValidateCmd `cmd:"" help:"Validate a configuration file."`
	Schema   SchemaCmd   `cmd:"" help:"Generate the JSON Schema for the configuration file."`

	Config          string   `short:"c" help:"Path to config file (or key path for remote providers)." type:"path"`
	ConfigProvider  string   `help:"Config provider (file, consul, etcd, zookeeper)." default:"file" enum:"file,consul,etcd,zookeeper"`
	ConfigEndpoints []string `help:"Remote config provider endpoints."`
	LogLevel        string   `help:"Log level (debug, info, warn, error)."`
	LogFile         string   `help:"Log file path (empty = stderr)."`
	LogFormat       string   `help:"Log format (simple, verbose, text)."`
}

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Println(oap.GetVersion().String())
	return nil
}

func main() {
	_ = config.LoadEnvFiles()

	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("supervisor"),
		kong.Description("Agent supervisor - routes requests to remote agents over A2A"),
		kong.UsageOnError(),
	)

	cleanup, err := initLoggerFromCLI(cli.LogLevel, cli.LogFile, cli.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	if cleanup != nil {
		defer cleanup()
	}

	err = ctx.Run(&cli)
	ctx.FatalIfErrorf(err)
}
