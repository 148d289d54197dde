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

package gemini

import (
	"testing"

	"github.com/a2aproject/a2a-go/a2a"
	"google.golang.org/genai"
)

func TestStableFunctionCallID(t *testing.T) {
	args := map[string]any{"query": "weather"}

	id1 := stableFunctionCallID("search", args)
	id2 := stableFunctionCallID("search", map[string]any{"query": "weather"})
	if id1 != id2 {
		t.Errorf("expected stable IDs, got %s and %s", id1, id2)
	}

	other := stableFunctionCallID("search", map[string]any{"query": "news"})
	if id1 == other {
		t.Error("expected different IDs for different args")
	}
}

func TestMessageToContent(t *testing.T) {
	m := &geminiModel{}

	tests := []struct {
		name     string
		msg      *a2a.Message
		wantRole string
		wantLen  int
	}{
		{
			name:     "user text",
			msg:      a2a.NewMessage(a2a.MessageRoleUser, a2a.TextPart{Text: "hello"}),
			wantRole: "user",
			wantLen:  1,
		},
		{
			name:     "agent text",
			msg:      a2a.NewMessage(a2a.MessageRoleAgent, a2a.TextPart{Text: "hi"}),
			wantRole: "model",
			wantLen:  1,
		},
		{
			name: "tool call",
			msg: a2a.NewMessage(a2a.MessageRoleAgent, a2a.DataPart{
				Data: map[string]any{
					"type":      "tool_use",
					"id":        "call_1",
					"name":      "search",
					"arguments": map[string]any{"q": "go"},
				},
			}),
			wantRole: "model",
			wantLen:  1,
		},
		{
			name: "tool result",
			msg: a2a.NewMessage(a2a.MessageRoleUser, a2a.DataPart{
				Data: map[string]any{
					"type":         "tool_result",
					"tool_call_id": "call_1",
					"tool_name":    "search",
					"content":      "found it",
				},
			}),
			wantRole: "user",
			wantLen:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			content := m.messageToContent(tt.msg)
			if content == nil {
				t.Fatal("expected non-nil content")
			}
			if content.Role != tt.wantRole {
				t.Errorf("expected role %s, got %s", tt.wantRole, content.Role)
			}
			if len(content.Parts) != tt.wantLen {
				t.Errorf("expected %d parts, got %d", tt.wantLen, len(content.Parts))
			}
		})
	}
}

func TestMessageToContentToolResultShape(t *testing.T) {
	m := &geminiModel{}
	content := m.messageToContent(a2a.NewMessage(a2a.MessageRoleUser, a2a.DataPart{
		Data: map[string]any{
			"type":         "tool_result",
			"tool_call_id": "call_7",
			"tool_name":    "lookup",
			"content":      "result text",
		},
	}))
	if content == nil || len(content.Parts) != 1 {
		t.Fatal("expected one part")
	}
	fr := content.Parts[0].FunctionResponse
	if fr == nil {
		t.Fatal("expected function response part")
	}
	if fr.ID != "call_7" || fr.Name != "lookup" {
		t.Errorf("function response mismatch: %+v", fr)
	}
	if got, _ := fr.Response["result"].(string); got != "result text" {
		t.Errorf("expected result text, got %v", fr.Response["result"])
	}
}

func TestToGenaiSchema(t *testing.T) {
	schema := map[string]any{
		"type":        "object",
		"description": "query input",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "the search query",
			},
			"limit": map[string]any{
				"type": "integer",
			},
		},
		"required": []any{"query"},
	}

	s := toGenaiSchema(schema)
	if s.Type != genai.Type("object") {
		t.Errorf("expected object type, got %s", s.Type)
	}
	if len(s.Properties) != 2 {
		t.Fatalf("expected 2 properties, got %d", len(s.Properties))
	}
	if s.Properties["query"].Description != "the search query" {
		t.Errorf("property description mismatch")
	}
	if len(s.Required) != 1 || s.Required[0] != "query" {
		t.Errorf("required mismatch: %v", s.Required)
	}
}
