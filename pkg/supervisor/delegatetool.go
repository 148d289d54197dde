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

package supervisor

import (
	"fmt"
	"iter"
	"time"

	"github.com/a2aproject/a2a-go/a2a"

	"github.com/langchain-ai/oap-agent-supervisor/pkg/agent"
	"github.com/langchain-ai/oap-agent-supervisor/pkg/observability"
	"github.com/langchain-ai/oap-agent-supervisor/pkg/tool"
)

// delegateTool hands a user query off to a sub-agent. It streams the
// sub-agent's partial output so the caller sees progress in real time, and
// returns the aggregated response as the tool result.
type delegateTool struct {
	agent agent.Agent
}

// NewDelegateTool wraps an agent as a delegation tool named
// "delegate_to_<agent name>".
func NewDelegateTool(ag agent.Agent) tool.Tool {
	if ag == nil {
		return nil
	}
	return &delegateTool{agent: ag}
}

func (t *delegateTool) Name() string {
	return HandoffToolPrefix + t.agent.Name()
}

func (t *delegateTool) Description() string {
	desc := fmt.Sprintf("Hand the user's query off to the %s agent.", t.agent.Name())
	if agentDesc := t.agent.Description(); agentDesc != "" {
		desc += " " + agentDesc
	}
	return desc
}

func (t *delegateTool) IsLongRunning() bool {
	return false
}

func (t *delegateTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"user_query": map[string]any{
				"type":        "string",
				"description": "The query to send to the " + t.agent.Name() + " agent",
			},
		},
		"required": []string{"user_query"},
	}
}

// CallStreaming runs the sub-agent with the given query. Partial sub-agent
// events are relayed as streaming chunks; the final chunk carries the full
// aggregated response text.
func (t *delegateTool) CallStreaming(ctx tool.Context, args map[string]any) iter.Seq2[*tool.Result, error] {
	return func(yield func(*tool.Result, error) bool) {
		query, ok := args["user_query"].(string)
		if !ok || query == "" {
			yield(nil, fmt.Errorf("user_query parameter must be a non-empty string"))
			return
		}

		parentCtx, ok := ctx.(agent.InvocationContext)
		if !ok {
			yield(nil, fmt.Errorf("tool context does not carry an invocation context"))
			return
		}

		branch := t.agent.Name()
		if parent := parentCtx.Branch(); parent != "" {
			branch = parent + "." + branch
		}

		childCtx := agent.NewInvocationContext(parentCtx, agent.InvocationContextParams{
			Agent:       t.agent,
			Session:     parentCtx.Session(),
			Branch:      branch,
			UserContent: agent.NewTextContent(query, a2a.MessageRoleUser),
			RunConfig:   parentCtx.RunConfig(),
		})

		start := time.Now()
		var delegationErr error
		defer func() {
			observability.GetGlobalMetrics().RecordDelegation(parentCtx, t.agent.Name(), time.Since(start), delegationErr)
		}()

		var output string
		for event, err := range t.agent.Run(childCtx) {
			if err != nil {
				delegationErr = err
				yield(nil, fmt.Errorf("delegation to %s failed: %w", t.agent.Name(), err))
				return
			}
			if event == nil {
				continue
			}

			if event.ErrorCode != "" {
				delegationErr = fmt.Errorf("%s: %s", event.ErrorCode, event.ErrorMessage)
				result := &tool.Result{
					Content: event.ErrorMessage,
					Error:   event.ErrorMessage,
				}
				yield(result, nil)
				return
			}

			text := event.TextContent()
			if text == "" {
				continue
			}

			if event.Partial {
				if !yield(&tool.Result{Content: text, Streaming: true}, nil) {
					return
				}
				continue
			}
			output = text
		}

		if output == "" {
			output = fmt.Sprintf("Task completed by %s agent", t.agent.Name())
		}

		yield(&tool.Result{
			Content: output,
			Metadata: map[string]any{
				"agent_name":    t.agent.Name(),
				"invocation_id": childCtx.InvocationID(),
			},
		}, nil)
	}
}

var _ tool.StreamingTool = (*delegateTool)(nil)
