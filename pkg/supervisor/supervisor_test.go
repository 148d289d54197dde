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
	"context"
	"fmt"
	"iter"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/a2aproject/a2a-go/a2a"

	"github.com/langchain-ai/oap-agent-supervisor/pkg/agent"
	"github.com/langchain-ai/oap-agent-supervisor/pkg/config"
	"github.com/langchain-ai/oap-agent-supervisor/pkg/model"
	"github.com/langchain-ai/oap-agent-supervisor/pkg/tool"
)

// fakeLLM replays scripted response batches, one batch per call.
type fakeLLM struct {
	responses [][]*model.Response
	requests  []*model.Request
}

func (f *fakeLLM) Name() string             { return "fake-model" }
func (f *fakeLLM) Provider() model.Provider { return model.ProviderUnknown }
func (f *fakeLLM) Close() error             { return nil }

func (f *fakeLLM) GenerateContent(ctx context.Context, req *model.Request, stream bool) iter.Seq2[*model.Response, error] {
	return func(yield func(*model.Response, error) bool) {
		f.requests = append(f.requests, req)
		if len(f.responses) == 0 {
			yield(nil, fmt.Errorf("no scripted response left"))
			return
		}
		batch := f.responses[0]
		f.responses = f.responses[1:]
		for _, resp := range batch {
			if !yield(resp, nil) {
				return
			}
		}
	}
}

func textResponse(text string) *model.Response {
	return &model.Response{
		Content: &model.Content{
			Parts: []a2a.Part{a2a.TextPart{Text: text}},
			Role:  a2a.MessageRoleAgent,
		},
		TurnComplete: true,
		FinishReason: model.FinishReasonStop,
	}
}

func toolCallResponse(id, name string, args map[string]any) *model.Response {
	return &model.Response{
		ToolCalls:    []tool.ToolCall{{ID: id, Name: name, Args: args}},
		FinishReason: model.FinishReasonToolCalls,
	}
}

func runSupervisor(t *testing.T, sup agent.Agent, query string) []*agent.Event {
	t.Helper()

	ctx := agent.NewInvocationContext(context.Background(), agent.InvocationContextParams{
		Agent:       sup,
		UserContent: agent.NewTextContent(query, a2a.MessageRoleUser),
	})

	var events []*agent.Event
	for event, err := range sup.Run(ctx) {
		if err != nil {
			t.Fatalf("run failed: %v", err)
		}
		events = append(events, event)
	}
	return events
}

func TestComposePrompt(t *testing.T) {
	got := ComposePrompt("")
	if !strings.HasPrefix(got, DefaultSupervisorPrompt) {
		t.Error("empty prompt should fall back to the default")
	}
	if !strings.HasSuffix(got, UneditableSystemPrompt) {
		t.Error("uneditable suffix missing")
	}

	got = ComposePrompt("Route everything to billing.")
	if !strings.HasPrefix(got, "Route everything to billing.") {
		t.Errorf("custom prompt not preserved: %q", got)
	}
	if !strings.HasSuffix(got, UneditableSystemPrompt) {
		t.Error("uneditable suffix missing from custom prompt")
	}
	if !strings.Contains(got, "`delegate_to_<name>(user_query)`") {
		t.Error("delegation format instruction missing")
	}
}

func TestNewValidation(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{
			name:    "missing model",
			cfg:     Config{Graph: &config.GraphConfig{}},
			wantErr: "model is required",
		},
		{
			name: "name sanitizes to empty",
			cfg: Config{
				Model: &fakeLLM{},
				Graph: &config.GraphConfig{Agents: []config.AgentConfig{
					{Name: "<|/>", DeploymentURL: "http://x", AgentID: "a"},
				}},
			},
			wantErr: "sanitizes to an empty string",
		},
		{
			name: "duplicate after sanitization",
			cfg: Config{
				Model: &fakeLLM{},
				Graph: &config.GraphConfig{Agents: []config.AgentConfig{
					{Name: "my agent", DeploymentURL: "http://x", AgentID: "a"},
					{Name: "my_agent", DeploymentURL: "http://y", AgentID: "b"},
				}},
			},
			wantErr: "duplicate agent name",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestSupervisorAnswersDirectly(t *testing.T) {
	llm := &fakeLLM{responses: [][]*model.Response{
		{textResponse("Hello! How can I help?")},
	}}

	sup, err := New(Config{Model: llm})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	events := runSupervisor(t, sup, "hi")
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}

	event := events[0]
	if event.Author != "supervisor" {
		t.Errorf("author = %q, want supervisor", event.Author)
	}
	if !event.TurnComplete {
		t.Error("final event should have TurnComplete set")
	}
	if got := event.TextContent(); got != "Hello! How can I help?" {
		t.Errorf("text = %q", got)
	}
	if !event.IsFinalResponse() {
		t.Error("event should be a final response")
	}

	if len(llm.requests) != 1 {
		t.Fatalf("expected 1 model call, got %d", len(llm.requests))
	}
	req := llm.requests[0]
	if !strings.HasSuffix(req.SystemInstruction, UneditableSystemPrompt) {
		t.Error("system instruction missing the uneditable suffix")
	}
	if len(req.Tools) != 0 {
		t.Errorf("expected no tools with empty graph, got %d", len(req.Tools))
	}
	if len(req.Messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(req.Messages))
	}
}

func TestSupervisorDelegates(t *testing.T) {
	deployment := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/runs/stream" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "event: messages/partial\n")
		fmt.Fprint(w, `data: [{"type":"ai","content":"Quantum"}]`+"\n\n")
		fmt.Fprint(w, "event: messages/partial\n")
		fmt.Fprint(w, `data: [{"type":"ai","content":"Quantum computing uses qubits."}]`+"\n\n")
		fmt.Fprint(w, "event: end\n")
		fmt.Fprint(w, "data: null\n\n")
	}))
	defer deployment.Close()

	llm := &fakeLLM{responses: [][]*model.Response{
		{toolCallResponse("call_1", "delegate_to_researcher", map[string]any{"user_query": "explain quantum computing"})},
		{textResponse("Anything else?")},
	}}

	sup, err := New(Config{
		Model: llm,
		Graph: &config.GraphConfig{Agents: []config.AgentConfig{
			{Name: "researcher", DeploymentURL: deployment.URL, AgentID: "asst_1"},
		}},
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	events := runSupervisor(t, sup, "explain quantum computing")
	if len(events) < 4 {
		t.Fatalf("expected at least 4 events, got %d", len(events))
	}

	callEvent := events[0]
	if len(callEvent.ToolCalls) != 1 {
		t.Fatalf("expected 1 tool call, got %d", len(callEvent.ToolCalls))
	}
	if callEvent.ToolCalls[0].Name != "delegate_to_researcher" {
		t.Errorf("tool call name = %q", callEvent.ToolCalls[0].Name)
	}
	if !callEvent.HasToolCalls() {
		t.Error("model event should carry a tool_use part")
	}
	if callEvent.IsFinalResponse() {
		t.Error("tool call event must not be final")
	}

	// The remote stream surfaces as partial progress events before the
	// merged tool result.
	var sawProgress bool
	var resultEvent *agent.Event
	for _, event := range events[1 : len(events)-1] {
		if event.Partial && len(event.ToolResults) == 1 && event.ToolResults[0].Status == "working" {
			sawProgress = true
		}
		if !event.Partial && len(event.ToolResults) == 1 {
			resultEvent = event
		}
	}
	if !sawProgress {
		t.Error("expected a partial progress event while the tool was running")
	}
	if resultEvent == nil {
		t.Fatal("expected a tool result event")
	}
	result := resultEvent.ToolResults[0]
	if result.ToolCallID != "call_1" {
		t.Errorf("tool result call ID = %q", result.ToolCallID)
	}
	if result.Status != "success" || result.IsError {
		t.Errorf("tool result status = %q (error=%v)", result.Status, result.IsError)
	}
	if !strings.Contains(result.Content, "Quantum computing uses qubits.") {
		t.Errorf("tool result content = %q", result.Content)
	}
	if resultEvent.Message.Role != a2a.MessageRoleUser {
		t.Errorf("tool result message role = %q, want user", resultEvent.Message.Role)
	}
	if !resultEvent.HasToolResults() {
		t.Error("result event should carry a tool_result part")
	}

	final := events[len(events)-1]
	if got := final.TextContent(); got != "Anything else?" {
		t.Errorf("final text = %q", got)
	}
	if !final.IsFinalResponse() {
		t.Error("last event should be final")
	}

	// Full history: the second model call sees the user message, the tool
	// call, and the tool result.
	if len(llm.requests) != 2 {
		t.Fatalf("expected 2 model calls, got %d", len(llm.requests))
	}
	second := llm.requests[1]
	if len(second.Messages) != 3 {
		t.Fatalf("expected 3 history messages, got %d", len(second.Messages))
	}
	if !hasDataPart(second.Messages[1], "tool_use") {
		t.Error("history missing the tool_use message")
	}
	if !hasDataPart(second.Messages[2], "tool_result") {
		t.Error("history missing the tool_result message")
	}

	def := llm.requests[0].Tools[0]
	if def.Name != "delegate_to_researcher" {
		t.Errorf("tool definition name = %q", def.Name)
	}
	required, _ := def.Parameters["required"].([]string)
	if len(required) != 1 || required[0] != "user_query" {
		t.Errorf("tool schema required = %v", required)
	}
}

func TestSupervisorGraphOverride(t *testing.T) {
	llm := &fakeLLM{responses: [][]*model.Response{
		{textResponse("Routed.")},
		{textResponse("Default again.")},
	}}

	sup, err := New(Config{Model: llm})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ctx := agent.NewInvocationContext(context.Background(), agent.InvocationContextParams{
		Agent:       sup,
		UserContent: agent.NewTextContent("hi", a2a.MessageRoleUser),
		RunConfig: &agent.RunConfig{
			Configurable: map[string]any{
				"system_prompt": "Route everything to billing.",
				"agents": []any{
					map[string]any{
						"name":           "billing helper",
						"deployment_url": "http://localhost:0",
						"agent_id":       "asst_billing",
					},
				},
			},
		},
	})
	for _, err := range sup.Run(ctx) {
		if err != nil {
			t.Fatalf("run failed: %v", err)
		}
	}

	if len(llm.requests) != 1 {
		t.Fatalf("expected 1 model call, got %d", len(llm.requests))
	}
	req := llm.requests[0]
	if !strings.HasPrefix(req.SystemInstruction, "Route everything to billing.") {
		t.Errorf("system instruction not overridden: %q", req.SystemInstruction)
	}
	if len(req.Tools) != 1 || req.Tools[0].Name != "delegate_to_billing_helper" {
		t.Errorf("override tools = %+v", req.Tools)
	}

	// A request without graph keys falls back to the configured graph.
	for _, err := range sup.Run(agent.NewInvocationContext(context.Background(), agent.InvocationContextParams{
		Agent:       sup,
		UserContent: agent.NewTextContent("hi again", a2a.MessageRoleUser),
		RunConfig:   &agent.RunConfig{Configurable: map[string]any{"thread_id": "t-1"}},
	})) {
		if err != nil {
			t.Fatalf("second run failed: %v", err)
		}
	}
	if len(llm.requests) != 2 {
		t.Fatalf("expected 2 model calls, got %d", len(llm.requests))
	}
	if len(llm.requests[1].Tools) != 0 {
		t.Errorf("base flow should have no tools, got %d", len(llm.requests[1].Tools))
	}
	if !strings.HasPrefix(llm.requests[1].SystemInstruction, DefaultSupervisorPrompt) {
		t.Error("base flow should use the default prompt")
	}
}

func TestSupervisorGraphOverrideInvalid(t *testing.T) {
	llm := &fakeLLM{responses: [][]*model.Response{
		{textResponse("never reached")},
	}}

	sup, err := New(Config{Model: llm})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ctx := agent.NewInvocationContext(context.Background(), agent.InvocationContextParams{
		Agent:       sup,
		UserContent: agent.NewTextContent("hi", a2a.MessageRoleUser),
		RunConfig: &agent.RunConfig{
			Configurable: map[string]any{
				"agents": []any{
					map[string]any{"name": "no url or id"},
				},
			},
		},
	})

	var runErr error
	for _, err := range sup.Run(ctx) {
		if err != nil {
			runErr = err
			break
		}
	}
	if runErr == nil {
		t.Fatal("expected graph override error")
	}
	if !strings.Contains(runErr.Error(), "invalid graph override") {
		t.Errorf("error = %v", runErr)
	}
	if len(llm.requests) != 0 {
		t.Error("model must not be called for an invalid override")
	}
}

func TestSupervisorToolError(t *testing.T) {
	llm := &fakeLLM{responses: [][]*model.Response{
		{toolCallResponse("call_1", "delegate_to_researcher", map[string]any{})},
		{textResponse("I could not reach the researcher.")},
	}}

	sup, err := New(Config{
		Model: llm,
		Graph: &config.GraphConfig{Agents: []config.AgentConfig{
			{Name: "researcher", DeploymentURL: "http://localhost:0", AgentID: "asst_1"},
		}},
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	events := runSupervisor(t, sup, "hello")

	var resultEvent *agent.Event
	for _, event := range events {
		if !event.Partial && len(event.ToolResults) == 1 {
			resultEvent = event
		}
	}
	if resultEvent == nil {
		t.Fatal("expected a tool result event")
	}
	result := resultEvent.ToolResults[0]
	if !result.IsError || result.Status != "failed" {
		t.Errorf("expected failed result, got status=%q error=%v", result.Status, result.IsError)
	}
	if !strings.Contains(result.Content, "user_query") {
		t.Errorf("error content = %q", result.Content)
	}

	final := events[len(events)-1]
	if got := final.TextContent(); got != "I could not reach the researcher." {
		t.Errorf("final text = %q", got)
	}
}

func TestSupervisorUnknownTool(t *testing.T) {
	llm := &fakeLLM{responses: [][]*model.Response{
		{toolCallResponse("call_1", "delegate_to_ghost", map[string]any{"user_query": "boo"})},
		{textResponse("No such agent.")},
	}}

	sup, err := New(Config{Model: llm})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	events := runSupervisor(t, sup, "hello")

	var resultEvent *agent.Event
	for _, event := range events {
		if len(event.ToolResults) == 1 {
			resultEvent = event
		}
	}
	if resultEvent == nil {
		t.Fatal("expected a tool result event")
	}
	if !resultEvent.ToolResults[0].IsError {
		t.Error("unknown tool should produce an error result")
	}
	if !strings.Contains(resultEvent.ToolResults[0].Content, "not found") {
		t.Errorf("content = %q", resultEvent.ToolResults[0].Content)
	}
}

func TestFlowSafetyLimit(t *testing.T) {
	// The model keeps requesting tools and never produces a final answer.
	llm := &fakeLLM{responses: [][]*model.Response{
		{toolCallResponse("call_1", "missing", map[string]any{})},
		{toolCallResponse("call_2", "missing", map[string]any{})},
		{toolCallResponse("call_3", "missing", map[string]any{})},
	}}

	sup, err := New(Config{Model: llm, MaxIterations: 2})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ctx := agent.NewInvocationContext(context.Background(), agent.InvocationContextParams{
		Agent:       sup,
		UserContent: agent.NewTextContent("hi", a2a.MessageRoleUser),
	})

	var loopErr error
	for _, err := range sup.Run(ctx) {
		if err != nil {
			loopErr = err
			break
		}
	}
	if loopErr == nil {
		t.Fatal("expected safety limit error")
	}
	if !strings.Contains(loopErr.Error(), "safety limit") {
		t.Errorf("error = %v", loopErr)
	}
}

func TestSupervisorIncludesSessionHistory(t *testing.T) {
	llm := &fakeLLM{responses: [][]*model.Response{
		{textResponse("As I said, 42.")},
	}}

	sup, err := New(Config{Model: llm})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	priorUser := agent.NewEvent("inv-0")
	priorUser.Author = agent.AuthorUser
	priorUser.Message = a2a.NewMessage(a2a.MessageRoleUser, a2a.TextPart{Text: "What is the answer?"})

	priorAgent := agent.NewEvent("inv-0")
	priorAgent.Author = "supervisor"
	priorAgent.Message = a2a.NewMessage(a2a.MessageRoleAgent, a2a.TextPart{Text: "42."})

	partial := agent.NewEvent("inv-0")
	partial.Author = "supervisor"
	partial.Partial = true
	partial.Message = a2a.NewMessage(a2a.MessageRoleAgent, a2a.TextPart{Text: "4"})

	currentUser := agent.NewEvent("inv-1")
	currentUser.Author = agent.AuthorUser
	currentUser.Message = a2a.NewMessage(a2a.MessageRoleUser, a2a.TextPart{Text: "Repeat that."})

	sess := &fakeSession{events: fakeEvents{priorUser, priorAgent, partial, currentUser}}

	ctx := agent.NewInvocationContext(context.Background(), agent.InvocationContextParams{
		Agent:   sup,
		Session: sess,
	})

	for _, err := range sup.Run(ctx) {
		if err != nil {
			t.Fatalf("run failed: %v", err)
		}
	}

	if len(llm.requests) != 1 {
		t.Fatalf("expected 1 model call, got %d", len(llm.requests))
	}
	messages := llm.requests[0].Messages
	if len(messages) != 3 {
		t.Fatalf("expected 3 messages (partial skipped), got %d", len(messages))
	}
	if text := partText(messages[1]); text != "42." {
		t.Errorf("second message = %q", text)
	}
}

func TestDelegateToolNaming(t *testing.T) {
	remote, err := agent.New(agent.Config{
		Name:        "math_helper",
		Description: "Solves math problems.",
		Run: func(ctx agent.InvocationContext) iter.Seq2[*agent.Event, error] {
			return func(yield func(*agent.Event, error) bool) {}
		},
	})
	if err != nil {
		t.Fatalf("agent.New failed: %v", err)
	}

	dt := NewDelegateTool(remote)
	if dt.Name() != "delegate_to_math_helper" {
		t.Errorf("name = %q", dt.Name())
	}
	if !strings.Contains(dt.Description(), "math_helper") {
		t.Errorf("description = %q", dt.Description())
	}
	if dt.IsLongRunning() {
		t.Error("delegate tools are not long-running")
	}
}

func hasDataPart(msg *a2a.Message, partType string) bool {
	if msg == nil {
		return false
	}
	for _, part := range msg.Parts {
		if dp, ok := part.(a2a.DataPart); ok {
			if t, _ := dp.Data["type"].(string); t == partType {
				return true
			}
		}
	}
	return false
}

func partText(msg *a2a.Message) string {
	var text string
	for _, part := range msg.Parts {
		if tp, ok := part.(a2a.TextPart); ok {
			text += tp.Text
		}
	}
	return text
}

// fakeSession is a minimal in-memory agent.Session for history tests.
type fakeSession struct {
	events fakeEvents
	state  fakeState
}

func (s *fakeSession) ID() string           { return "session-1" }
func (s *fakeSession) AppName() string      { return "test-app" }
func (s *fakeSession) UserID() string       { return "user-1" }
func (s *fakeSession) Events() agent.Events { return s.events }

func (s *fakeSession) State() agent.State {
	if s.state == nil {
		s.state = fakeState{}
	}
	return s.state
}

type fakeEvents []*agent.Event

func (e fakeEvents) All() iter.Seq[*agent.Event] {
	return func(yield func(*agent.Event) bool) {
		for _, event := range e {
			if !yield(event) {
				return
			}
		}
	}
}

func (e fakeEvents) Len() int              { return len(e) }
func (e fakeEvents) At(i int) *agent.Event { return e[i] }

type fakeState map[string]any

func (s fakeState) Get(key string) (any, error) { return s[key], nil }
func (s fakeState) Set(key string, value any) error {
	s[key] = value
	return nil
}
func (s fakeState) Delete(key string) error {
	delete(s, key)
	return nil
}
func (s fakeState) All() iter.Seq2[string, any] {
	return func(yield func(string, any) bool) {
		for k, v := range s {
			if !yield(k, v) {
				return
			}
		}
	}
}
