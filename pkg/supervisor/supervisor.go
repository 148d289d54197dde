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

// Package supervisor translates a graph configuration into a supervisor
// agent.
//
// The supervisor is an LLM-driven controller. Each configured remote agent
// becomes a delegate_to_<name> tool; for every incoming user message the
// controller either answers itself or hands the query off to one of its
// sub-agents and relays the streamed response. Output is full history: the
// caller sees every controller message, tool call, and sub-agent response.
//
// # Usage
//
//	sup, err := supervisor.New(supervisor.Config{
//	    Graph: graphCfg,
//	    Model: openaiClient,
//	})
package supervisor

import (
	"fmt"
	"iter"
	"time"

	"github.com/langchain-ai/oap-agent-supervisor/pkg/agent"
	"github.com/langchain-ai/oap-agent-supervisor/pkg/config"
	"github.com/langchain-ai/oap-agent-supervisor/pkg/model"
	"github.com/langchain-ai/oap-agent-supervisor/pkg/remoteagent"
	"github.com/langchain-ai/oap-agent-supervisor/pkg/tool"
)

// DefaultName is the supervisor's agent name when none is configured.
const DefaultName = "supervisor"

// defaultMaxIterations is a safety cap on the delegation loop, not the
// primary termination condition. The loop normally ends when the model
// responds without tool calls.
const defaultMaxIterations = 100

// Config contains the configuration for building a supervisor agent.
type Config struct {
	// Graph names the remote agents and the system prompt.
	// A nil or empty graph is valid: the supervisor answers everything
	// itself.
	Graph *config.GraphConfig

	// Model is the controller LLM. Required.
	Model model.LLM

	// Name overrides the supervisor's agent name. Default: "supervisor".
	Name string

	// Description helps callers decide when to route to this supervisor.
	Description string

	// Tools are additional tools available to the controller, alongside
	// the generated delegation tools.
	Tools []tool.Tool

	// GenerateConfig carries generation settings for the controller model.
	GenerateConfig *model.GenerateConfig

	// MaxIterations caps the delegation loop. Default: 100.
	MaxIterations int

	// RemoteTimeout is the per-request timeout for remote agent calls.
	RemoteTimeout time.Duration

	// RemoteMaxRetries for rate limits and transient remote errors.
	RemoteMaxRetries int
}

// New builds a supervisor agent from the given configuration.
//
// For each configured agent it creates a remote deployment handle under the
// sanitized name and a matching delegation tool. Names that sanitize to the
// empty string or collide after sanitization are rejected.
//
// The configured graph is the default. A request whose configurable map
// carries graph keys (agents, system_prompt) gets a flow rebuilt from those
// values for that invocation only.
func New(cfg Config) (agent.Agent, error) {
	if cfg.Model == nil {
		return nil, fmt.Errorf("model is required")
	}

	graph := cfg.Graph
	if graph == nil {
		graph = &config.GraphConfig{}
	}

	name := cfg.Name
	if name == "" {
		name = DefaultName
	}
	maxIterations := cfg.MaxIterations
	if maxIterations <= 0 {
		maxIterations = defaultMaxIterations
	}

	b := &builder{cfg: cfg, maxIterations: maxIterations}
	base, subAgents, err := b.buildFlow(graph)
	if err != nil {
		return nil, err
	}
	b.base = base

	return agent.New(agent.Config{
		Name:        name,
		Description: cfg.Description,
		SubAgents:   subAgents,
		Run:         b.run,
	})
}

// builder holds the startup configuration so the controller flow can be
// rebuilt when a request overrides the graph.
type builder struct {
	cfg           Config
	maxIterations int
	base          *flow
}

func (b *builder) buildFlow(graph *config.GraphConfig) (*flow, []agent.Agent, error) {
	var subAgents []agent.Agent
	var tools []tool.Tool
	seen := make(map[string]bool, len(graph.Agents))

	for _, agentCfg := range graph.Agents {
		sanitized := remoteagent.SanitizeName(agentCfg.Name)
		if sanitized == "" {
			return nil, nil, fmt.Errorf("agent name %q sanitizes to an empty string", agentCfg.Name)
		}
		if seen[sanitized] {
			return nil, nil, fmt.Errorf("duplicate agent name %q after sanitization", sanitized)
		}
		seen[sanitized] = true

		remote, err := remoteagent.New(remoteagent.Config{
			Name:          sanitized,
			DeploymentURL: agentCfg.DeploymentURL,
			AgentID:       agentCfg.AgentID,
			Timeout:       b.cfg.RemoteTimeout,
			MaxRetries:    b.cfg.RemoteMaxRetries,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create remote agent %q: %w", sanitized, err)
		}

		subAgents = append(subAgents, remote)
		tools = append(tools, NewDelegateTool(remote))
	}

	tools = append(tools, b.cfg.Tools...)

	f := &flow{
		model:          b.cfg.Model,
		instruction:    ComposePrompt(graph.SystemPrompt),
		tools:          tools,
		generateConfig: b.cfg.GenerateConfig,
		maxIterations:  b.maxIterations,
	}
	return f, subAgents, nil
}

// run dispatches to the base flow, or to a flow rebuilt from the request's
// graph override when its configurable map carries graph keys.
func (b *builder) run(ctx agent.InvocationContext) iter.Seq2[*agent.Event, error] {
	f := b.base
	if override := graphOverride(ctx.RunConfig()); override != nil {
		graph, err := config.GraphConfigFromMap(override)
		if err != nil {
			return errorSeq(fmt.Errorf("invalid graph override: %w", err))
		}
		rebuilt, _, err := b.buildFlow(graph)
		if err != nil {
			return errorSeq(fmt.Errorf("invalid graph override: %w", err))
		}
		f = rebuilt
	}
	return f.Run(ctx)
}

// graphOverride extracts the graph keys from the request configurable map.
// Returns nil when the request carries none, keeping the base flow in use.
func graphOverride(rc *agent.RunConfig) map[string]any {
	if rc == nil || len(rc.Configurable) == 0 {
		return nil
	}
	override := make(map[string]any)
	for _, key := range config.ConfigurableKeys() {
		if value, ok := rc.Configurable[key]; ok {
			override[key] = value
		}
	}
	if len(override) == 0 {
		return nil
	}
	return override
}

func errorSeq(err error) iter.Seq2[*agent.Event, error] {
	return func(yield func(*agent.Event, error) bool) {
		yield(nil, err)
	}
}
