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
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/langchain-ai/oap-agent-supervisor/pkg/auth"
	"github.com/langchain-ai/oap-agent-supervisor/pkg/config"
	"github.com/langchain-ai/oap-agent-supervisor/pkg/config/provider"
	"github.com/langchain-ai/oap-agent-supervisor/pkg/model"
	"github.com/langchain-ai/oap-agent-supervisor/pkg/model/gemini"
	"github.com/langchain-ai/oap-agent-supervisor/pkg/model/openai"
	"github.com/langchain-ai/oap-agent-supervisor/pkg/observability"
	"github.com/langchain-ai/oap-agent-supervisor/pkg/runner"
	"github.com/langchain-ai/oap-agent-supervisor/pkg/server"
	"github.com/langchain-ai/oap-agent-supervisor/pkg/session"
	"github.com/langchain-ai/oap-agent-supervisor/pkg/supervisor"
	"github.com/langchain-ai/oap-agent-supervisor/pkg/tool"
	"github.com/langchain-ai/oap-agent-supervisor/pkg/tool/mcptoolset"
)

// ServeCmd starts the A2A server.
type ServeCmd struct {
	Port  int  `help:"Port to listen on (overrides config)."`
	Watch bool `help:"Watch the config source for changes."`
}

func (c *ServeCmd) Run(cli *CLI) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("Shutting down...")
		cancel()
	}()

	if cli.Config == "" {
		return fmt.Errorf("--config is required")
	}

	cfg, loader, err := loadConfig(ctx, cli, func(newCfg *config.Config) {
		slog.Info("Configuration changed; restart to apply", "name", newCfg.Name)
	})
	if err != nil {
		return err
	}
	defer loader.Close()

	if err := applyConfigLogging(cli, &cfg.Logging); err != nil {
		return err
	}

	if c.Port != 0 {
		cfg.Server.Port = c.Port
	}

	if c.Watch {
		go func() {
			if err := loader.Watch(ctx); err != nil && ctx.Err() == nil {
				slog.Error("Config watch error", "error", err)
			}
		}()
	}

	obs := observability.NewManager(cfg.Observability)
	if err := obs.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to initialize observability: %w", err)
	}
	defer func() {
		if err := obs.Shutdown(context.Background()); err != nil {
			slog.Warn("Observability shutdown error", "error", err)
		}
	}()

	validator, err := auth.NewValidatorFromConfig(&cfg.Auth)
	if err != nil {
		return fmt.Errorf("failed to create auth validator: %w", err)
	}
	if jv, ok := validator.(*auth.JWTValidator); ok {
		defer jv.Close()
	}

	llm, err := buildModel(cfg.LLM)
	if err != nil {
		return fmt.Errorf("failed to create model: %w", err)
	}
	defer func() { _ = llm.Close() }()

	sessionSvc, err := session.NewService(&cfg.Sessions)
	if err != nil {
		return fmt.Errorf("failed to create session service: %w", err)
	}

	var window *session.TokenWindow
	if cfg.Sessions.MaxContextTokens > 0 {
		window, err = session.NewTokenWindow(cfg.Sessions.TokenModel, cfg.Sessions.MaxContextTokens)
		if err != nil {
			return fmt.Errorf("failed to create token window: %w", err)
		}
	}

	extraTools, closeToolsets, err := buildToolsets(cfg.Tools)
	if err != nil {
		return fmt.Errorf("failed to connect tool servers: %w", err)
	}
	defer closeToolsets()

	sup, err := supervisor.New(supervisor.Config{
		Graph:       &cfg.Supervisor,
		Model:       llm,
		Description: cfg.Description,
		Tools:       extraTools,
	})
	if err != nil {
		return fmt.Errorf("failed to create supervisor: %w", err)
	}

	appName := cfg.Name
	if appName == "" {
		appName = supervisor.DefaultName
	}
	r, err := runner.New(runner.Config{
		AppName:        appName,
		Agent:          sup,
		SessionService: sessionSvc,
		Window:         window,
	})
	if err != nil {
		return fmt.Errorf("failed to create runner: %w", err)
	}

	executor, err := server.NewExecutor(server.ExecutorConfig{Runner: r})
	if err != nil {
		return fmt.Errorf("failed to create executor: %w", err)
	}

	serverOpts := []server.HTTPServerOption{server.WithObservability(obs)}
	if validator != nil {
		serverOpts = append(serverOpts, server.WithAuthValidator(validator))
	}

	srv := server.NewHTTPServer(cfg, executor, serverOpts...)

	fmt.Printf("\nAgent supervisor ready\n")
	fmt.Printf("   Agent Card:  http://%s/.well-known/agent-card.json\n", srv.Address())
	fmt.Printf("   Discovery:   http://%s/agents\n", srv.Address())
	fmt.Printf("   Endpoint:    http://%s/agents/%s\n", srv.Address(), sup.Name())
	fmt.Printf("   Health:      http://%s/health\n", srv.Address())
	if cfg.Observability.Metrics.Enabled {
		fmt.Printf("   Metrics:     http://%s%s\n", srv.Address(), cfg.Observability.Metrics.Path)
	}
	fmt.Printf("   Model:       %s/%s\n", cfg.LLM.Provider, cfg.LLM.Model)
	fmt.Printf("   Sessions:    %s\n", cfg.Sessions.Backend)
	fmt.Printf("   Sub-agents:  %d\n", len(cfg.Supervisor.Agents))
	fmt.Println("\nPress Ctrl+C to stop")

	return srv.Start(ctx)
}

// loadConfig loads configuration from the selected provider.
func loadConfig(ctx context.Context, cli *CLI, onChange func(*config.Config)) (*config.Config, *config.Loader, error) {
	p, err := provider.New(provider.ProviderConfig{
		Type:      provider.Type(cli.ConfigProvider),
		Path:      cli.Config,
		Endpoints: cli.ConfigEndpoints,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create config provider: %w", err)
	}

	var opts []config.LoaderOption
	if onChange != nil {
		opts = append(opts, config.WithOnChange(onChange))
	}

	loader := config.NewLoader(p, opts...)
	cfg, err := loader.Load(ctx)
	if err != nil {
		_ = p.Close()
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	slog.Info("Loaded configuration", "provider", cli.ConfigProvider, "path", cli.Config)
	return cfg, loader, nil
}

// buildToolsets connects the configured MCP tool servers in parallel and
// collects their tools for the supervisor. The returned func closes every
// connection.
func buildToolsets(cfgs map[string]*config.ToolConfig) ([]tool.Tool, func(), error) {
	names := make([]string, 0, len(cfgs))
	for name, toolCfg := range cfgs {
		if toolCfg.IsEnabled() {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	toolsets := make([]*mcptoolset.Toolset, len(names))
	discovered := make([][]tool.Tool, len(names))
	closeAll := func() {
		for _, ts := range toolsets {
			if ts == nil {
				continue
			}
			if err := ts.Close(); err != nil {
				slog.Warn("Failed to close tool server", "name", ts.Name(), "error", err)
			}
		}
	}

	var g errgroup.Group
	for i, name := range names {
		g.Go(func() error {
			toolCfg := cfgs[name]
			ts, err := mcptoolset.New(mcptoolset.Config{
				Name:       name,
				URL:        toolCfg.URL,
				Transport:  toolCfg.Transport,
				Command:    toolCfg.Command,
				Args:       toolCfg.Args,
				Env:        toolCfg.Env,
				Filter:     toolCfg.Filter,
				MaxRetries: toolCfg.MaxRetries,
			})
			if err != nil {
				return fmt.Errorf("tool server %q: %w", name, err)
			}
			toolsets[i] = ts

			tools, err := ts.Tools(nil)
			if err != nil {
				return fmt.Errorf("tool server %q: %w", name, err)
			}
			discovered[i] = tools

			slog.Info("Attached tool server", "name", name, "tools", len(tools))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		closeAll()
		return nil, nil, err
	}

	var tools []tool.Tool
	for _, d := range discovered {
		tools = append(tools, d...)
	}
	return tools, closeAll, nil
}

// buildModel creates the controller LLM from config.
func buildModel(cfg config.LLMConfig) (model.LLM, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = config.ProviderAPIKey(cfg.Provider)
	}

	switch cfg.Provider {
	case "openai":
		return openai.New(openai.Config{
			APIKey:      apiKey,
			Model:       cfg.Model,
			MaxTokens:   cfg.MaxTokens,
			Temperature: cfg.Temperature,
			BaseURL:     cfg.BaseURL,
			Timeout:     time.Duration(cfg.Timeout) * time.Second,
			MaxRetries:  cfg.MaxRetries,
		})
	case "gemini":
		gcfg := gemini.Config{
			APIKey:    apiKey,
			Model:     cfg.Model,
			MaxTokens: cfg.MaxTokens,
		}
		if cfg.Temperature != nil {
			gcfg.Temperature = *cfg.Temperature
		}
		return gemini.New(gcfg)
	default:
		return nil, fmt.Errorf("unsupported llm provider: %s", cfg.Provider)
	}
}
