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

// Package oap provides an A2A-native supervisor for Open Agent Platform
// deployments.
//
// The supervisor is an LLM-driven controller configured entirely in YAML.
// Each configured remote agent becomes a delegate_to_<name> tool; incoming
// user messages are either answered by the controller itself or handed off
// to a sub-agent, with the full conversation history streamed back to the
// caller over the A2A protocol.
//
// # Quick Start
//
// Install:
//
//	go install github.com/langchain-ai/oap-agent-supervisor/cmd/supervisor@latest
//
// Create a configuration:
//
//	name: "my-supervisor"
//	supervisor:
//	  agents:
//	    - name: "Math Wizard"
//	      deployment_url: "https://math.example.com"
//	      agent_id: "agent"
//	llm:
//	  provider: openai
//	  model: gpt-4o
//
// Start the server:
//
//	supervisor serve --config supervisor.yaml
//
// # Using as a Go Library
//
// Import specific packages:
//
//	import (
//	    "github.com/langchain-ai/oap-agent-supervisor/pkg/supervisor"
//	    "github.com/langchain-ai/oap-agent-supervisor/pkg/runner"
//	    "github.com/langchain-ai/oap-agent-supervisor/pkg/server"
//	)
//
// # Architecture
//
// All outward communication uses the A2A protocol:
//
//	Client → A2A Server → Runner → Supervisor → Remote Agents (LangGraph)
//
// Sessions persist across requests through a pluggable backend (memory,
// SQLite, Postgres, MySQL), and authentication tokens from incoming
// requests are relayed to sub-agents so user-scoped deployments keep
// working behind the supervisor.
package oap
