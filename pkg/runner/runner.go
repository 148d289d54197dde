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

// Package runner orchestrates supervisor invocations within sessions: it
// resolves the session for a request, persists the user message and every
// non-partial event the supervisor produces, and cleans up temporary state
// after each turn.
package runner

import (
	"context"
	"fmt"
	"iter"
	"time"

	"github.com/a2aproject/a2a-go/a2a"
	"github.com/google/uuid"

	"github.com/langchain-ai/oap-agent-supervisor/pkg/agent"
	"github.com/langchain-ai/oap-agent-supervisor/pkg/observability"
	"github.com/langchain-ai/oap-agent-supervisor/pkg/session"
)

// Config contains the configuration for creating a Runner.
type Config struct {
	// AppName identifies the application in session storage.
	AppName string

	// Agent is the supervisor agent to run.
	Agent agent.Agent

	// SessionService manages session lifecycle.
	SessionService session.Service

	// Window optionally caps the history handed to the agent by token
	// budget. History beyond the budget stays persisted but is not sent
	// to the model.
	Window *session.TokenWindow
}

// Runner executes the supervisor agent within sessions.
type Runner struct {
	appName        string
	agent          agent.Agent
	sessionService session.Service
	window         *session.TokenWindow
}

// New creates a new Runner.
func New(cfg Config) (*Runner, error) {
	if cfg.Agent == nil {
		return nil, fmt.Errorf("agent is required")
	}
	if cfg.SessionService == nil {
		return nil, fmt.Errorf("session service is required")
	}
	return &Runner{
		appName:        cfg.AppName,
		agent:          cfg.Agent,
		sessionService: cfg.SessionService,
		window:         cfg.Window,
	}, nil
}

// Run executes the supervisor for the given user input, yielding events as
// they are produced. Non-partial events are persisted to the session before
// being yielded; partial (streaming) events pass through unpersisted.
func (r *Runner) Run(ctx context.Context, userID, sessionID string, content *agent.Content, cfg agent.RunConfig) iter.Seq2[*agent.Event, error] {
	return func(yield func(*agent.Event, error) bool) {
		start := time.Now()
		var runErr error
		defer func() {
			observability.GetGlobalMetrics().RecordAgentRun(ctx, r.agent.Name(), time.Since(start), runErr)
		}()

		sess, err := r.getOrCreateSession(ctx, userID, sessionID)
		if err != nil {
			runErr = err
			yield(nil, err)
			return
		}

		// Temp state lives for exactly one invocation.
		defer r.clearTempState(sess)

		// Persist the user message first so the agent's view of history
		// includes it.
		invocationID := uuid.NewString()
		if err := r.appendUserMessage(ctx, sess, content, invocationID); err != nil {
			runErr = err
			yield(nil, err)
			return
		}

		invCtx := agent.NewInvocationContext(ctx, agent.InvocationContextParams{
			Agent:        r.agent,
			Session:      r.agentView(sess),
			InvocationID: invocationID,
			UserContent:  content,
			RunConfig:    &cfg,
		})

		for event, err := range r.agent.Run(invCtx) {
			if err != nil {
				runErr = err
				if !yield(event, err) {
					return
				}
				continue
			}

			if !event.Partial {
				if err := r.sessionService.AppendEvent(ctx, sess, event); err != nil {
					runErr = err
					yield(nil, fmt.Errorf("failed to persist event: %w", err))
					return
				}
			}

			if !yield(event, nil) {
				return
			}
		}
	}
}

// Agent returns the supervisor agent.
func (r *Runner) Agent() agent.Agent {
	return r.agent
}

// AppName returns the application name.
func (r *Runner) AppName() string {
	return r.appName
}

// agentView returns the session the agent should see. When a token window
// is configured the view is budget-capped; the stored session is untouched.
func (r *Runner) agentView(sess session.Session) session.Session {
	if r.window == nil {
		return sess
	}

	var events []*agent.Event
	for ev := range sess.Events().All() {
		events = append(events, ev)
	}
	kept := r.window.FilterEvents(events)
	if len(kept) == len(events) {
		return sess
	}
	return session.WithEvents(sess, kept)
}

func (r *Runner) getOrCreateSession(ctx context.Context, userID, sessionID string) (session.Session, error) {
	resp, err := r.sessionService.Get(ctx, &session.GetRequest{
		AppName:   r.appName,
		UserID:    userID,
		SessionID: sessionID,
	})
	if err == nil && resp != nil {
		return resp.Session, nil
	}

	createResp, err := r.sessionService.Create(ctx, &session.CreateRequest{
		AppName:   r.appName,
		UserID:    userID,
		SessionID: sessionID,
		State:     make(map[string]any),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return createResp.Session, nil
}

func (r *Runner) appendUserMessage(ctx context.Context, sess session.Session, content *agent.Content, invocationID string) error {
	if content == nil {
		return nil
	}

	event := agent.NewEvent(invocationID)
	event.Author = agent.AuthorUser
	event.Message = content.ToMessage()
	if event.Message != nil && event.Message.Role == "" {
		event.Message.Role = a2a.MessageRoleUser
	}

	return r.sessionService.AppendEvent(ctx, sess, event)
}

func (r *Runner) clearTempState(sess session.Session) {
	if clearable, ok := sess.State().(agent.TempClearable); ok {
		clearable.ClearTempKeys()
	}
}
