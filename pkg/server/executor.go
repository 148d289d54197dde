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

package server

import (
	"context"
	"fmt"
	"log/slog"
	"maps"

	"github.com/a2aproject/a2a-go/a2a"
	"github.com/a2aproject/a2a-go/a2asrv"
	"github.com/a2aproject/a2a-go/a2asrv/eventqueue"

	"github.com/langchain-ai/oap-agent-supervisor/pkg/agent"
	"github.com/langchain-ai/oap-agent-supervisor/pkg/auth"
	"github.com/langchain-ai/oap-agent-supervisor/pkg/remoteagent"
	"github.com/langchain-ai/oap-agent-supervisor/pkg/runner"
)

// ExecutorConfig contains the configuration for the A2A executor.
type ExecutorConfig struct {
	// Runner executes supervisor invocations against the session store.
	Runner *runner.Runner

	// RunConfig is the base runtime configuration for every execution.
	// Per-request values (configurable, metadata, access token) are
	// layered on top without mutating it.
	RunConfig agent.RunConfig
}

// Executor implements a2asrv.AgentExecutor to bridge the supervisor to A2A.
//
// Event translation follows these rules:
//   - New task: emit TaskStatusUpdateEvent with TaskStateSubmitted
//   - Before the runner invocation: emit TaskStatusUpdateEvent with TaskStateWorking
//   - For each supervisor event: emit TaskArtifactUpdateEvent with its parts
//   - After the last event: emit TaskArtifactUpdateEvent with LastChunk=true
//   - On error: emit TaskStatusUpdateEvent with TaskStateFailed
//   - On success: emit TaskStatusUpdateEvent with TaskStateCompleted
type Executor struct {
	config ExecutorConfig
}

// NewExecutor creates a new A2A executor.
func NewExecutor(config ExecutorConfig) (*Executor, error) {
	if config.Runner == nil {
		return nil, fmt.Errorf("runner is required")
	}
	return &Executor{config: config}, nil
}

// Execute implements a2asrv.AgentExecutor.
func (e *Executor) Execute(ctx context.Context, reqCtx *a2asrv.RequestContext, queue eventqueue.Queue) error {
	msg := reqCtx.Message
	if msg == nil {
		slog.Error("Execute: message not provided")
		return fmt.Errorf("message not provided")
	}

	slog.Debug("Execute: converting message", "parts", len(msg.Parts), "role", msg.Role)

	content, err := toContent(msg)
	if err != nil {
		slog.Error("Execute: message conversion failed", "error", err)
		return fmt.Errorf("message conversion failed: %w", err)
	}

	// Emit TaskStateSubmitted for new tasks
	if reqCtx.StoredTask == nil {
		event := a2a.NewStatusUpdateEvent(reqCtx, a2a.TaskStateSubmitted, nil)
		if err := queue.Write(ctx, event); err != nil {
			return fmt.Errorf("failed to write submitted event: %w", err)
		}
	}

	meta := toInvocationMeta(ctx, reqCtx)

	// Emit TaskStateWorking
	workingEvent := a2a.NewStatusUpdateEvent(reqCtx, a2a.TaskStateWorking, nil)
	workingEvent.Metadata = meta.eventMeta
	if err := queue.Write(ctx, workingEvent); err != nil {
		return err
	}

	processor := newEventProcessor(reqCtx, meta)
	return e.process(ctx, processor, content, queue)
}

// Cancel implements a2asrv.AgentExecutor.
func (e *Executor) Cancel(ctx context.Context, reqCtx *a2asrv.RequestContext, queue eventqueue.Queue) error {
	event := a2a.NewStatusUpdateEvent(reqCtx, a2a.TaskStateCanceled, nil)
	event.Final = true
	return queue.Write(ctx, event)
}

func (e *Executor) process(ctx context.Context, processor *eventProcessor, content *agent.Content, q eventqueue.Queue) error {
	meta := processor.meta
	runConfig := e.runConfig(ctx, processor.reqCtx)

	for event, err := range e.config.Runner.Run(ctx, meta.userID, meta.sessionID, content, runConfig) {
		if err != nil {
			failedEvent := processor.makeFailedEvent(fmt.Errorf("supervisor run failed: %w", err), nil)
			if writeErr := q.Write(ctx, failedEvent); writeErr != nil {
				return fmt.Errorf("failed to write error event: %w (original: %w)", writeErr, err)
			}
			return nil
		}

		a2aEvent := processor.process(event)
		if a2aEvent != nil {
			if err := q.Write(ctx, a2aEvent); err != nil {
				return fmt.Errorf("failed to write event: %w", err)
			}
		}
	}

	// Write terminal events
	for _, ev := range processor.makeTerminalEvents() {
		if err := q.Write(ctx, ev); err != nil {
			return fmt.Errorf("failed to write terminal event: %w", err)
		}
	}

	return nil
}

// runConfig layers per-request values over the base run configuration.
// A "configurable" map in the message metadata is merged in, so requests can
// override graph settings per the platform convention. The caller's access
// token, stored in the request context by the auth middleware, is relayed to
// sub-agents through the configurable map.
func (e *Executor) runConfig(ctx context.Context, reqCtx *a2asrv.RequestContext) agent.RunConfig {
	rc := e.config.RunConfig

	rc.Configurable = maps.Clone(rc.Configurable)
	if rc.Configurable == nil {
		rc.Configurable = make(map[string]any)
	}
	if reqCtx.Message != nil {
		if configurable, ok := reqCtx.Message.Metadata["configurable"].(map[string]any); ok {
			maps.Copy(rc.Configurable, configurable)
		}
	}
	if token := auth.TokenFromContext(ctx); token != "" {
		if _, ok := rc.Configurable[remoteagent.AccessTokenKey]; !ok {
			rc.Configurable[remoteagent.AccessTokenKey] = token
		}
	}

	if reqCtx.Message != nil && len(reqCtx.Message.Metadata) > 0 {
		merged := maps.Clone(rc.Metadata)
		if merged == nil {
			merged = make(map[string]any)
		}
		maps.Copy(merged, reqCtx.Message.Metadata)
		rc.Metadata = merged
	}

	return rc
}

// Ensure Executor implements a2asrv.AgentExecutor
var _ a2asrv.AgentExecutor = (*Executor)(nil)
