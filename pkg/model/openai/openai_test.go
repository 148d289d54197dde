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

package openai

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/a2aproject/a2a-go/a2a"

	"github.com/langchain-ai/oap-agent-supervisor/pkg/model"
)

func TestNewRequiresAPIKey(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("expected error when API key is missing")
	}
}

func TestNewDefaults(t *testing.T) {
	client, err := New(Config{APIKey: "sk-test"})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if client.Name() != "gpt-4o" {
		t.Errorf("expected default model gpt-4o, got %s", client.Name())
	}
	if client.Provider() != model.ProviderOpenAI {
		t.Errorf("expected provider openai, got %s", client.Provider())
	}
}

func TestBuildRequestConversation(t *testing.T) {
	client, err := New(Config{APIKey: "sk-test"})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	messages := []*a2a.Message{
		a2a.NewMessage(a2a.MessageRoleUser, a2a.TextPart{Text: "What is the weather?"}),
		a2a.NewMessage(a2a.MessageRoleAgent, a2a.DataPart{
			Data: map[string]any{
				"type":      "tool_use",
				"id":        "call_123",
				"name":      "get_weather",
				"arguments": map[string]any{"city": "Paris"},
			},
		}),
		a2a.NewMessage(a2a.MessageRoleUser, a2a.DataPart{
			Data: map[string]any{
				"type":         "tool_result",
				"tool_call_id": "call_123",
				"content":      "Sunny, 22C",
			},
		}),
	}

	apiReq := client.buildRequest(&model.Request{
		Messages:          messages,
		SystemInstruction: "You are helpful.",
	}, false)

	if apiReq.Instructions != "You are helpful." {
		t.Errorf("instructions mismatch: %q", apiReq.Instructions)
	}

	inputs, ok := apiReq.Input.([]inputItem)
	if !ok {
		t.Fatalf("Input is not []inputItem")
	}
	if len(inputs) != 3 {
		t.Fatalf("expected 3 input items, got %d", len(inputs))
	}
	if inputs[0].Type != "message" || inputs[0].Role != "user" {
		t.Errorf("item 0 mismatch: type=%s role=%s", inputs[0].Type, inputs[0].Role)
	}
	if inputs[1].Type != "function_call" || inputs[1].CallID != "call_123" || inputs[1].Name != "get_weather" {
		t.Errorf("item 1 mismatch: %+v", inputs[1])
	}
	if inputs[2].Type != "function_call_output" || inputs[2].CallID != "call_123" {
		t.Errorf("item 2 mismatch: %+v", inputs[2])
	}
	if inputs[2].Output == nil || *inputs[2].Output != "Sunny, 22C" {
		t.Errorf("item 2 output mismatch: %v", inputs[2].Output)
	}
}

func TestBuildRequestConfigOverrides(t *testing.T) {
	client, err := New(Config{APIKey: "sk-test", MaxTokens: 1000})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	temp := 0.3
	maxTokens := 256
	apiReq := client.buildRequest(&model.Request{
		Messages: []*a2a.Message{
			a2a.NewMessage(a2a.MessageRoleUser, a2a.TextPart{Text: "hi"}),
		},
		Config: &model.GenerateConfig{
			Temperature: &temp,
			MaxTokens:   &maxTokens,
		},
	}, true)

	if apiReq.Temperature == nil || *apiReq.Temperature != 0.3 {
		t.Errorf("temperature override not applied: %v", apiReq.Temperature)
	}
	if apiReq.MaxOutputTokens == nil || *apiReq.MaxOutputTokens != 256 {
		t.Errorf("max tokens override not applied: %v", apiReq.MaxOutputTokens)
	}
	if !apiReq.Stream {
		t.Error("expected stream=true")
	}
}

func TestGenerateContentNonStreaming(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/responses" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer sk-test" {
			t.Errorf("unexpected auth header: %s", auth)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"id": "resp_1",
			"status": "completed",
			"output": [
				{
					"type": "message",
					"role": "assistant",
					"content": [{"type": "output_text", "text": "Hello there"}]
				}
			],
			"usage": {"input_tokens": 10, "output_tokens": 5, "total_tokens": 15}
		}`)
	}))
	defer server.Close()

	client, err := New(Config{APIKey: "sk-test", BaseURL: server.URL})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	req := &model.Request{
		Messages: []*a2a.Message{
			a2a.NewMessage(a2a.MessageRoleUser, a2a.TextPart{Text: "hi"}),
		},
	}

	var responses []*model.Response
	for resp, err := range client.GenerateContent(context.Background(), req, false) {
		if err != nil {
			t.Fatalf("GenerateContent failed: %v", err)
		}
		responses = append(responses, resp)
	}

	if len(responses) != 1 {
		t.Fatalf("expected 1 response, got %d", len(responses))
	}
	resp := responses[0]
	if resp.Partial {
		t.Error("expected Partial=false")
	}
	if got := resp.TextContent(); got != "Hello there" {
		t.Errorf("expected text 'Hello there', got %q", got)
	}
	if resp.Usage == nil || resp.Usage.TotalTokens != 15 {
		t.Errorf("usage mismatch: %+v", resp.Usage)
	}
}

func TestGenerateContentToolCall(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"id": "resp_2",
			"status": "completed",
			"output": [
				{
					"type": "function_call",
					"call_id": "call_42",
					"name": "get_weather",
					"arguments": "{\"city\": \"Paris\"}"
				}
			],
			"usage": {"input_tokens": 8, "output_tokens": 4, "total_tokens": 12}
		}`)
	}))
	defer server.Close()

	client, err := New(Config{APIKey: "sk-test", BaseURL: server.URL})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	req := &model.Request{
		Messages: []*a2a.Message{
			a2a.NewMessage(a2a.MessageRoleUser, a2a.TextPart{Text: "weather in Paris"}),
		},
	}

	var last *model.Response
	for resp, err := range client.GenerateContent(context.Background(), req, false) {
		if err != nil {
			t.Fatalf("GenerateContent failed: %v", err)
		}
		last = resp
	}

	if last == nil {
		t.Fatal("no response received")
	}
	if len(last.ToolCalls) != 1 {
		t.Fatalf("expected 1 tool call, got %d", len(last.ToolCalls))
	}
	tc := last.ToolCalls[0]
	if tc.ID != "call_42" || tc.Name != "get_weather" {
		t.Errorf("tool call mismatch: %+v", tc)
	}
	if city, _ := tc.Args["city"].(string); city != "Paris" {
		t.Errorf("expected city Paris, got %v", tc.Args["city"])
	}
	if last.FinishReason != model.FinishReasonToolCalls {
		t.Errorf("expected finish reason tool_calls, got %s", last.FinishReason)
	}
}

func TestGenerateContentStreaming(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "event: response.created\n")
		fmt.Fprint(w, "data: {\"type\": \"response.created\"}\n\n")
		fmt.Fprint(w, "event: response.output_text.delta\n")
		fmt.Fprint(w, "data: {\"type\": \"response.output_text.delta\", \"delta\": \"Hello\"}\n\n")
		fmt.Fprint(w, "event: response.output_text.delta\n")
		fmt.Fprint(w, "data: {\"type\": \"response.output_text.delta\", \"delta\": \" world\"}\n\n")
		fmt.Fprint(w, "event: response.completed\n")
		fmt.Fprint(w, "data: {\"type\": \"response.completed\", \"response\": {\"usage\": {\"total_tokens\": 20}}}\n\n")
	}))
	defer server.Close()

	client, err := New(Config{APIKey: "sk-test", BaseURL: server.URL})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	req := &model.Request{
		Messages: []*a2a.Message{
			a2a.NewMessage(a2a.MessageRoleUser, a2a.TextPart{Text: "hi"}),
		},
	}

	var partials []string
	var final *model.Response
	for resp, err := range client.GenerateContent(context.Background(), req, true) {
		if err != nil {
			t.Fatalf("streaming failed: %v", err)
		}
		if resp.Partial {
			partials = append(partials, resp.TextContent())
		} else {
			final = resp
		}
	}

	if len(partials) != 2 {
		t.Fatalf("expected 2 partial responses, got %d", len(partials))
	}
	if partials[0] != "Hello" || partials[1] != " world" {
		t.Errorf("partial deltas mismatch: %v", partials)
	}
	if final == nil {
		t.Fatal("no final aggregated response")
	}
	if got := final.TextContent(); got != "Hello world" {
		t.Errorf("expected aggregated 'Hello world', got %q", got)
	}
	if !final.TurnComplete {
		t.Error("expected TurnComplete on final response")
	}
	if final.Usage == nil || final.Usage.TotalTokens != 20 {
		t.Errorf("usage mismatch: %+v", final.Usage)
	}
}

func TestGenerateContentStreamingToolCall(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "event: response.output_item.added\n")
		fmt.Fprint(w, "data: {\"item\": {\"type\": \"function_call\", \"call_id\": \"call_9\", \"name\": \"lookup\"}}\n\n")
		fmt.Fprint(w, "event: response.function_call_arguments.delta\n")
		fmt.Fprint(w, "data: {\"delta\": \"{\\\"q\\\": \"}\n\n")
		fmt.Fprint(w, "event: response.function_call_arguments.delta\n")
		fmt.Fprint(w, "data: {\"delta\": \"\\\"go\\\"}\"}\n\n")
		fmt.Fprint(w, "event: response.function_call_arguments.done\n")
		fmt.Fprint(w, "data: {}\n\n")
		fmt.Fprint(w, "event: response.completed\n")
		fmt.Fprint(w, "data: {\"response\": {\"usage\": {\"total_tokens\": 9}}}\n\n")
	}))
	defer server.Close()

	client, err := New(Config{APIKey: "sk-test", BaseURL: server.URL})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	req := &model.Request{
		Messages: []*a2a.Message{
			a2a.NewMessage(a2a.MessageRoleUser, a2a.TextPart{Text: "lookup go"}),
		},
	}

	var final *model.Response
	for resp, err := range client.GenerateContent(context.Background(), req, true) {
		if err != nil {
			t.Fatalf("streaming failed: %v", err)
		}
		if !resp.Partial {
			final = resp
		}
	}

	if final == nil {
		t.Fatal("no final aggregated response")
	}
	if len(final.ToolCalls) != 1 {
		t.Fatalf("expected 1 tool call, got %d", len(final.ToolCalls))
	}
	tc := final.ToolCalls[0]
	if tc.ID != "call_9" || tc.Name != "lookup" {
		t.Errorf("tool call mismatch: %+v", tc)
	}
	if q, _ := tc.Args["q"].(string); q != "go" {
		t.Errorf("expected q=go, got %v", tc.Args["q"])
	}
}

func TestGenerateContentAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error": {"message": "invalid api key"}}`)
	}))
	defer server.Close()

	client, err := New(Config{APIKey: "sk-bad", BaseURL: server.URL})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	req := &model.Request{
		Messages: []*a2a.Message{
			a2a.NewMessage(a2a.MessageRoleUser, a2a.TextPart{Text: "hi"}),
		},
	}

	var sawError bool
	for _, err := range client.GenerateContent(context.Background(), req, false) {
		if err != nil {
			sawError = true
		}
	}
	if !sawError {
		t.Error("expected error for HTTP 401")
	}
}
