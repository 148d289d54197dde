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

// Package agent defines the core agent interfaces and event types.
//
// The Agent interface is the fundamental abstraction: an agent consumes an
// InvocationContext and yields a sequence of events. Concrete agents are
// built with New and a Run function, or with higher-level packages such as
// supervisor and remoteagent.
package agent

import (
	"fmt"
	"iter"
)

// Agent is the core abstraction for anything that can handle an invocation.
type Agent interface {
	// Name returns the agent's unique name within the agent tree.
	Name() string

	// Description helps models decide when to delegate to this agent.
	Description() string

	// Run executes the agent and yields events until the invocation ends.
	Run(InvocationContext) iter.Seq2[*Event, error]

	// SubAgents returns the agent's direct children.
	SubAgents() []Agent
}

// RunFunc is the execution function backing an agent.
type RunFunc func(InvocationContext) iter.Seq2[*Event, error]

// Config contains the configuration for creating an agent.
type Config struct {
	// Name must be unique within the agent tree.
	Name string

	// Description helps models decide when to delegate to this agent.
	Description string

	// SubAgents are the agent's direct children.
	SubAgents []Agent

	// Run is the execution function.
	Run RunFunc
}

// New creates an agent from a Config.
func New(config Config) (Agent, error) {
	if config.Name == "" {
		return nil, fmt.Errorf("agent name is required")
	}
	if config.Run == nil {
		return nil, fmt.Errorf("agent run function is required")
	}
	return &baseAgent{
		name:        config.Name,
		description: config.Description,
		subAgents:   config.SubAgents,
		run:         config.Run,
	}, nil
}

type baseAgent struct {
	name        string
	description string
	subAgents   []Agent
	run         RunFunc
}

func (a *baseAgent) Name() string        { return a.name }
func (a *baseAgent) Description() string { return a.description }
func (a *baseAgent) SubAgents() []Agent  { return a.subAgents }

func (a *baseAgent) Run(ctx InvocationContext) iter.Seq2[*Event, error] {
	return a.run(ctx)
}

// FindAgent searches the agent tree rooted at root for an agent by name.
func FindAgent(root Agent, name string) Agent {
	if root == nil {
		return nil
	}
	if root.Name() == name {
		return root
	}
	for _, sub := range root.SubAgents() {
		if found := FindAgent(sub, name); found != nil {
			return found
		}
	}
	return nil
}

var _ Agent = (*baseAgent)(nil)
