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
	"strings"
	"time"

	"github.com/a2aproject/a2a-go/a2a"
	"github.com/google/uuid"

	"github.com/langchain-ai/oap-agent-supervisor/pkg/agent"
	"github.com/langchain-ai/oap-agent-supervisor/pkg/model"
	"github.com/langchain-ai/oap-agent-supervisor/pkg/observability"
	"github.com/langchain-ai/oap-agent-supervisor/pkg/tool"
)

// flow drives the controller reasoning loop: call the model, execute any
// requested tools, feed the results back, and repeat until the model responds
// without tool calls.
//
// Conversation history is read from the session once at the start of a run.
// Events produced during the run are tracked locally, so the loop works the
// same whether or not a runner persists events between iterations.
type flow struct {
	model          model.LLM
	instruction    string
	tools          []tool.Tool
	generateConfig *model.GenerateConfig
	maxIterations  int
}

func (f *flow) Run(ctx agent.InvocationContext) iter.Seq2[*agent.Event, error] {
	return func(yield func(*agent.Event, error) bool) {
		history := f.initialHistory(ctx)

		for iteration := 0; iteration < f.maxIterations; iteration++ {
			var lastEvent *agent.Event

			for event, err := range f.runOneStep(ctx, &history) {
				if err != nil {
					yield(nil, err)
					return
				}
				lastEvent = event
				if !yield(event, nil) {
					return
				}
			}

			if lastEvent == nil || lastEvent.IsFinalResponse() {
				return
			}
			if ctx.Ended() {
				return
			}
		}

		yield(nil, fmt.Errorf("delegation loop safety limit exceeded (%d iterations)", f.maxIterations))
	}
}

// runOneStep performs one model call plus the tool executions it requests.
// Non-partial events are appended to history for the next iteration.
func (f *flow) runOneStep(ctx agent.InvocationContext, history *[]*a2a.Message) iter.Seq2[*agent.Event, error] {
	return func(yield func(*agent.Event, error) bool) {
		req := &model.Request{
			Messages:          *history,
			Tools:             f.toolDefinitions(),
			Config:            f.generateConfig.Clone(),
			SystemInstruction: f.instruction,
		}

		stream := ctx.RunConfig().StreamingMode == agent.StreamingModeSSE

		start := time.Now()
		var final *model.Response
		for resp, err := range f.model.GenerateContent(ctx, req, stream) {
			if err != nil {
				observability.GetGlobalMetrics().RecordLLMCall(ctx, f.model.Name(), time.Since(start), 0, 0, err)
				yield(nil, fmt.Errorf("model call failed: %w", err))
				return
			}
			if resp.Partial {
				if !yield(f.buildPartialEvent(ctx, resp), nil) {
					return
				}
				continue
			}
			final = resp
		}

		var inTokens, outTokens int
		if final != nil && final.Usage != nil {
			inTokens, outTokens = final.Usage.PromptTokens, final.Usage.CompletionTokens
		}
		observability.GetGlobalMetrics().RecordLLMCall(ctx, f.model.Name(), time.Since(start), inTokens, outTokens, nil)

		if final == nil {
			event := f.newEvent(ctx)
			event.TurnComplete = true
			yield(event, nil)
			return
		}

		if final.ErrorCode != "" {
			yield(nil, fmt.Errorf("model error %s: %s", final.ErrorCode, final.ErrorMessage))
			return
		}

		populateToolCallIDs(final.ToolCalls)

		modelEvent := f.buildModelResponseEvent(ctx, final)
		if modelEvent.Message != nil {
			*history = append(*history, modelEvent.Message)
		}
		if !yield(modelEvent, nil) {
			return
		}

		if len(final.ToolCalls) == 0 {
			return
		}

		resultEvent, ok := f.executeToolCalls(ctx, final.ToolCalls, yield)
		if !ok {
			return
		}
		*history = append(*history, resultEvent.Message)
		yield(resultEvent, nil)
	}
}

// initialHistory collects prior conversation messages from the session,
// falling back to the invocation's user content when the session is empty.
func (f *flow) initialHistory(ctx agent.InvocationContext) []*a2a.Message {
	var messages []*a2a.Message

	if session := ctx.Session(); session != nil {
		branch := ctx.Branch()
		for event := range session.Events().All() {
			if event.Message == nil || event.Partial {
				continue
			}
			if !eventBelongsToBranch(branch, event.Branch) {
				continue
			}
			messages = append(messages, event.Message)
		}
	}

	if len(messages) == 0 {
		if content := ctx.UserContent(); content != nil {
			messages = append(messages, content.ToMessage())
		}
	}

	return messages
}

func (f *flow) buildPartialEvent(ctx agent.InvocationContext, resp *model.Response) *agent.Event {
	event := f.newEvent(ctx)
	event.Partial = true
	event.Message = resp.ToMessage()
	return event
}

// buildModelResponseEvent converts the final model response into an event.
// Tool calls become tool_use data parts appended after the text parts, so the
// message round-trips through history in provider-neutral form.
func (f *flow) buildModelResponseEvent(ctx agent.InvocationContext, resp *model.Response) *agent.Event {
	event := f.newEvent(ctx)

	var parts []a2a.Part
	if resp.Content != nil {
		parts = append(parts, resp.Content.Parts...)
	}
	for _, call := range resp.ToolCalls {
		parts = append(parts, a2a.DataPart{Data: map[string]any{
			"type":      "tool_use",
			"id":        call.ID,
			"name":      call.Name,
			"arguments": call.Args,
		}})
		event.ToolCalls = append(event.ToolCalls, agent.ToolCallState{
			ID:     call.ID,
			Name:   call.Name,
			Args:   call.Args,
			Status: "working",
		})
	}

	if len(parts) > 0 {
		event.Message = a2a.NewMessage(a2a.MessageRoleAgent, parts...)
	}
	event.TurnComplete = len(resp.ToolCalls) == 0
	return event
}

// executeToolCalls runs each requested tool and builds the merged tool result
// event. Streaming tools yield intermediate progress events through yield;
// the returned event is not yet yielded. Returns ok=false when the consumer
// stopped the iteration.
func (f *flow) executeToolCalls(ctx agent.InvocationContext, calls []tool.ToolCall, yield func(*agent.Event, error) bool) (*agent.Event, bool) {
	resultEvent := f.newEvent(ctx)

	var parts []a2a.Part
	for _, call := range calls {
		content, isError, ok := f.executeOneTool(ctx, call, yield)
		if !ok {
			return nil, false
		}

		parts = append(parts, a2a.DataPart{Data: map[string]any{
			"type":         "tool_result",
			"tool_call_id": call.ID,
			"tool_name":    call.Name,
			"content":      content,
			"is_error":     isError,
		}})

		status := "success"
		if isError {
			status = "failed"
		}
		resultEvent.ToolResults = append(resultEvent.ToolResults, agent.ToolResultState{
			ToolCallID: call.ID,
			Content:    content,
			Status:     status,
			IsError:    isError,
		})
	}

	// Tool results go back to the model as a user-role message, the shape
	// every provider conversion expects.
	resultEvent.Message = a2a.NewMessage(a2a.MessageRoleUser, parts...)
	return resultEvent, true
}

func (f *flow) executeOneTool(ctx agent.InvocationContext, call tool.ToolCall, yield func(*agent.Event, error) bool) (content string, isError bool, ok bool) {
	t := f.findTool(call.Name)
	if t == nil {
		return fmt.Sprintf("tool %q not found", call.Name), true, true
	}

	toolCtx := &toolContext{
		InvocationContext: ctx,
		functionCallID:    call.ID,
		actions:           &agent.EventActions{StateDelta: make(map[string]any)},
	}

	switch impl := t.(type) {
	case tool.StreamingTool:
		var accumulated strings.Builder
		for result, err := range impl.CallStreaming(toolCtx, call.Args) {
			if err != nil {
				return err.Error(), true, true
			}
			if result == nil {
				continue
			}

			if result.Streaming {
				accumulated.WriteString(formatToolContent(result.Content))

				progress := f.newEvent(ctx)
				progress.Partial = true
				progress.ToolResults = []agent.ToolResultState{{
					ToolCallID: call.ID,
					Content:    accumulated.String(),
					Status:     "working",
				}}
				if !yield(progress, nil) {
					return "", false, false
				}
				continue
			}

			if result.Error != "" {
				return result.Error, true, true
			}
			content = formatToolContent(result.Content)
		}
		if content == "" {
			content = accumulated.String()
		}

	case tool.CallableTool:
		result, err := impl.Call(toolCtx, call.Args)
		if err != nil {
			return err.Error(), true, true
		}
		content = formatToolResult(result)

	default:
		return fmt.Sprintf("tool %q is not callable", call.Name), true, true
	}

	if strings.TrimSpace(content) == "" {
		content = "(no output)"
	}
	return content, false, true
}

func (f *flow) findTool(name string) tool.Tool {
	for _, t := range f.tools {
		if t.Name() == name {
			return t
		}
	}
	return nil
}

func (f *flow) toolDefinitions() []tool.Definition {
	if len(f.tools) == 0 {
		return nil
	}
	defs := make([]tool.Definition, 0, len(f.tools))
	for _, t := range f.tools {
		defs = append(defs, tool.ToDefinition(t))
	}
	return defs
}

func (f *flow) newEvent(ctx agent.InvocationContext) *agent.Event {
	event := agent.NewEvent(ctx.InvocationID())
	event.Author = ctx.AgentName()
	event.Branch = ctx.Branch()
	return event
}

// populateToolCallIDs assigns IDs to tool calls that arrived without one,
// so call/result pairing stays intact through history.
func populateToolCallIDs(calls []tool.ToolCall) {
	for i := range calls {
		if calls[i].ID == "" {
			calls[i].ID = "call-" + uuid.NewString()
		}
	}
}

// formatToolResult extracts presentable text from a callable tool's result
// map. A "content" key wins; otherwise the whole map is formatted.
func formatToolResult(result map[string]any) string {
	if result == nil {
		return ""
	}
	if content, ok := result["content"].(string); ok {
		return strings.TrimSpace(content)
	}
	if content, ok := result["result"].(string); ok {
		return strings.TrimSpace(content)
	}
	return fmt.Sprintf("%v", result)
}

func formatToolContent(content any) string {
	switch c := content.(type) {
	case nil:
		return ""
	case string:
		return c
	default:
		return fmt.Sprintf("%v", c)
	}
}

// eventBelongsToBranch reports whether an event recorded under eventBranch is
// visible to an invocation running under invocationBranch. Ancestor events
// are visible; sibling branches are not. Dot-delimited comparison avoids
// false prefix matches between names like agent_1 and agent_10.
func eventBelongsToBranch(invocationBranch, eventBranch string) bool {
	if invocationBranch == "" || eventBranch == "" {
		return true
	}
	if eventBranch == invocationBranch {
		return true
	}
	return strings.HasPrefix(invocationBranch, eventBranch+".")
}

// toolContext adapts an invocation context for tool execution, carrying the
// per-call ID and an actions accumulator.
type toolContext struct {
	agent.InvocationContext

	functionCallID string
	actions        *agent.EventActions
}

func (c *toolContext) FunctionCallID() string       { return c.functionCallID }
func (c *toolContext) Actions() *agent.EventActions { return c.actions }

var _ tool.Context = (*toolContext)(nil)
