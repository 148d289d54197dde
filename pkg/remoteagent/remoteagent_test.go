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

package remoteagent

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/a2aproject/a2a-go/a2a"

	"github.com/langchain-ai/oap-agent-supervisor/pkg/agent"
)

func TestNewValidation(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"missing name", Config{DeploymentURL: "http://x", AgentID: "a"}},
		{"missing url", Config{Name: "n", AgentID: "a"}},
		{"missing agent id", Config{Name: "n", DeploymentURL: "http://x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.cfg); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func invoke(t *testing.T, remote agent.Agent, runConfig *agent.RunConfig, query string) []*agent.Event {
	t.Helper()

	ctx := agent.NewInvocationContext(context.Background(), agent.InvocationContextParams{
		Agent:       remote,
		UserContent: agent.NewTextContent(query, a2a.MessageRoleUser),
		RunConfig:   runConfig,
	})

	var events []*agent.Event
	for event, err := range remote.Run(ctx) {
		if err != nil {
			t.Fatalf("run failed: %v", err)
		}
		events = append(events, event)
	}
	return events
}

func TestRunStreamsRemoteResponse(t *testing.T) {
	var gotBody runRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/runs/stream" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("failed to decode body: %v", err)
		}

		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "event: metadata\n")
		fmt.Fprint(w, "data: {\"run_id\": \"run-1\"}\n\n")
		fmt.Fprint(w, "event: messages/partial\n")
		fmt.Fprint(w, "data: [{\"type\": \"ai\", \"content\": \"The answer\"}]\n\n")
		fmt.Fprint(w, "event: messages/partial\n")
		fmt.Fprint(w, "data: [{\"type\": \"ai\", \"content\": \"The answer is 42.\"}]\n\n")
		fmt.Fprint(w, "event: end\n")
		fmt.Fprint(w, "data: {}\n\n")
	}))
	defer server.Close()

	remote, err := New(Config{
		Name:          "math_helper",
		DeploymentURL: server.URL,
		AgentID:       "assistant-1",
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	events := invoke(t, remote, nil, "what is 6*7?")

	if gotBody.AssistantID != "assistant-1" {
		t.Errorf("assistant_id mismatch: %s", gotBody.AssistantID)
	}
	if len(gotBody.Input.Messages) != 1 || gotBody.Input.Messages[0].Content != "what is 6*7?" {
		t.Errorf("input messages mismatch: %+v", gotBody.Input.Messages)
	}

	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	if !events[0].Partial || events[0].TextContent() != "The answer" {
		t.Errorf("first partial mismatch: partial=%v text=%q", events[0].Partial, events[0].TextContent())
	}
	if !events[1].Partial || events[1].TextContent() != " is 42." {
		t.Errorf("second partial mismatch: %q", events[1].TextContent())
	}
	final := events[2]
	if final.Partial || !final.TurnComplete {
		t.Error("expected final non-partial TurnComplete event")
	}
	if final.TextContent() != "The answer is 42." {
		t.Errorf("final text mismatch: %q", final.TextContent())
	}
	if final.Author != "math_helper" {
		t.Errorf("author mismatch: %s", final.Author)
	}
}

func TestRunMultipleAssistantMessages(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "event: messages/partial\n")
		fmt.Fprint(w, "data: [{\"id\": \"msg-1\", \"type\": \"ai\", \"content\": \"Let me check the weather for you first.\"}]\n\n")
		fmt.Fprint(w, "event: messages/partial\n")
		fmt.Fprint(w, "data: [{\"id\": \"msg-1\", \"type\": \"ai\", \"content\": \"Let me check the weather for you first.\"}, "+
			"{\"id\": \"msg-2\", \"type\": \"ai\", \"content\": \"Sunny,\"}]\n\n")
		fmt.Fprint(w, "event: messages/complete\n")
		fmt.Fprint(w, "data: [{\"id\": \"msg-1\", \"type\": \"ai\", \"content\": \"Let me check the weather for you first.\"}, "+
			"{\"id\": \"msg-2\", \"type\": \"ai\", \"content\": \"Sunny, 72F\"}]\n\n")
	}))
	defer server.Close()

	remote, err := New(Config{
		Name:          "weather_helper",
		DeploymentURL: server.URL,
		AgentID:       "assistant-5",
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	events := invoke(t, remote, nil, "weather in SF?")

	final := events[len(events)-1]
	if !final.TurnComplete {
		t.Error("expected final TurnComplete event")
	}
	if final.TextContent() != "Sunny, 72F" {
		t.Errorf("final text = %q, want %q", final.TextContent(), "Sunny, 72F")
	}

	var partials []string
	for _, event := range events[:len(events)-1] {
		if !event.Partial {
			t.Error("expected only partial events before the final one")
		}
		partials = append(partials, event.TextContent())
	}
	want := []string{"Let me check the weather for you first.", "Sunny,", " 72F"}
	if len(partials) != len(want) {
		t.Fatalf("partials = %q, want %q", partials, want)
	}
	for i := range want {
		if partials[i] != want[i] {
			t.Errorf("partial[%d] = %q, want %q", i, partials[i], want[i])
		}
	}
}

func TestRunForwardsAuthHeaders(t *testing.T) {
	var gotAuth, gotToken string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotToken = r.Header.Get("x-supabase-access-token")
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "event: messages/complete\n")
		fmt.Fprint(w, "data: [{\"type\": \"ai\", \"content\": \"ok\"}]\n\n")
	}))
	defer server.Close()

	remote, err := New(Config{
		Name:          "worker",
		DeploymentURL: server.URL,
		AgentID:       "assistant-2",
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	runConfig := &agent.RunConfig{
		Configurable: map[string]any{
			"x-supabase-access-token": "tok_abc",
		},
	}
	invoke(t, remote, runConfig, "hello")

	if gotAuth != "Bearer tok_abc" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotToken != "tok_abc" {
		t.Errorf("x-supabase-access-token = %q", gotToken)
	}
}

func TestRunOmitsAuthHeadersWithoutToken(t *testing.T) {
	var sawAuth, sawToken bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, sawAuth = r.Header["Authorization"]
		_, sawToken = r.Header["X-Supabase-Access-Token"]
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "event: messages/complete\n")
		fmt.Fprint(w, "data: [{\"type\": \"ai\", \"content\": \"ok\"}]\n\n")
	}))
	defer server.Close()

	remote, err := New(Config{
		Name:          "worker",
		DeploymentURL: server.URL,
		AgentID:       "assistant-3",
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	invoke(t, remote, nil, "hello")

	if sawAuth || sawToken {
		t.Errorf("expected no auth headers, got auth=%v token=%v", sawAuth, sawToken)
	}
}

func TestRunSanitizesForwardedConfig(t *testing.T) {
	var gotBody runRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("failed to decode body: %v", err)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "event: messages/complete\n")
		fmt.Fprint(w, "data: [{\"type\": \"ai\", \"content\": \"ok\"}]\n\n")
	}))
	defer server.Close()

	remote, err := New(Config{
		Name:          "worker",
		DeploymentURL: server.URL,
		AgentID:       "assistant-4",
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	runConfig := &agent.RunConfig{
		Configurable: map[string]any{
			"system_prompt": "supervisor only",
			"agents":        []any{},
			"thread_id":     "t-7",
		},
		Metadata: map[string]any{
			"system_prompt": "supervisor only",
			"run_source":    "test",
		},
	}
	invoke(t, remote, runConfig, "hello")

	if _, ok := gotBody.Config.Configurable["system_prompt"]; ok {
		t.Error("system_prompt must not be forwarded to child")
	}
	if _, ok := gotBody.Config.Configurable["agents"]; ok {
		t.Error("agents must not be forwarded to child")
	}
	if gotBody.Config.Configurable["thread_id"] != "t-7" {
		t.Error("thread_id should be forwarded")
	}
	if _, ok := gotBody.Metadata["system_prompt"]; ok {
		t.Error("system_prompt must not be forwarded in metadata")
	}
	if gotBody.Metadata["run_source"] != "test" {
		t.Error("run_source should be forwarded in metadata")
	}
}

func TestRunRemoteError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"detail": "assistant not found"}`)
	}))
	defer server.Close()

	remote, err := New(Config{
		Name:          "worker",
		DeploymentURL: server.URL,
		AgentID:       "missing",
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	events := invoke(t, remote, nil, "hello")
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].ErrorCode != "remote_agent_error" {
		t.Errorf("expected remote_agent_error, got %q", events[0].ErrorCode)
	}
}
