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

package mcptoolset

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

// fakeMCPServer speaks just enough MCP JSON-RPC for the HTTP transport.
type fakeMCPServer struct {
	t         *testing.T
	sessionID string

	sawSessions []string
	callResult  map[string]any
	sse         bool
}

func (f *fakeMCPServer) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.sawSessions = append(f.sawSessions, r.Header.Get("mcp-session-id"))

		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			f.t.Errorf("bad request body: %v", err)
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}

		var result any
		switch req.Method {
		case "initialize":
			if f.sessionID != "" {
				w.Header().Set("mcp-session-id", f.sessionID)
			}
			result = map[string]any{"protocolVersion": protocolVersion}
		case "tools/list":
			result = map[string]any{
				"tools": []any{
					map[string]any{
						"name":        "get_weather",
						"description": "Get the weather",
						"inputSchema": map[string]any{"type": "object"},
					},
					map[string]any{
						"name":        "get_time",
						"description": "Get the time",
						"inputSchema": map[string]any{"type": "object"},
					},
				},
			}
		case "tools/call":
			result = f.callResult
		default:
			f.t.Errorf("unexpected method %q", req.Method)
			return
		}

		resp := rpcResponse{JSONRPC: "2.0", ID: req.ID, Result: result}
		payload, _ := json.Marshal(resp)

		if f.sse && req.Method == "tools/call" {
			w.Header().Set("Content-Type", "text/event-stream")
			fmt.Fprintf(w, "data: %s\n\n", payload)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(payload)
	}
}

func newTestToolset(t *testing.T, srv *fakeMCPServer) (*Toolset, *httptest.Server) {
	t.Helper()
	httpSrv := httptest.NewServer(srv.handler())
	t.Cleanup(httpSrv.Close)

	ts, err := New(Config{
		Name:      "test",
		URL:       httpSrv.URL,
		Transport: "streamable-http",
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { ts.Close() })
	return ts, httpSrv
}

func TestToolsDiscovery(t *testing.T) {
	srv := &fakeMCPServer{t: t}
	ts, _ := newTestToolset(t, srv)

	tools, err := ts.Tools(nil)
	if err != nil {
		t.Fatalf("Tools failed: %v", err)
	}
	if len(tools) != 2 {
		t.Fatalf("expected 2 tools, got %d", len(tools))
	}
	if tools[0].Name() != "get_weather" {
		t.Errorf("expected get_weather, got %q", tools[0].Name())
	}
	if tools[0].Description() != "Get the weather" {
		t.Errorf("unexpected description %q", tools[0].Description())
	}
	if schema := tools[0].(*remoteTool).Schema(); schema["type"] != "object" {
		t.Errorf("unexpected schema %v", schema)
	}
}

func TestToolsFilter(t *testing.T) {
	srv := &fakeMCPServer{t: t}
	httpSrv := httptest.NewServer(srv.handler())
	defer httpSrv.Close()

	ts, err := New(Config{
		Name:   "test",
		URL:    httpSrv.URL,
		Filter: []string{"get_time"},
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer ts.Close()

	tools, err := ts.Tools(nil)
	if err != nil {
		t.Fatalf("Tools failed: %v", err)
	}
	if len(tools) != 1 || tools[0].Name() != "get_time" {
		t.Fatalf("expected only get_time, got %v", tools)
	}
}

func TestWithFilterView(t *testing.T) {
	srv := &fakeMCPServer{t: t}
	ts, _ := newTestToolset(t, srv)

	view := ts.WithFilter([]string{"get_weather"})
	if view.Name() != "test" {
		t.Errorf("view should keep the toolset name, got %q", view.Name())
	}

	tools, err := view.Tools(nil)
	if err != nil {
		t.Fatalf("Tools failed: %v", err)
	}
	if len(tools) != 1 || tools[0].Name() != "get_weather" {
		t.Fatalf("expected only get_weather, got %d tools", len(tools))
	}
}

func TestCallReturnsResult(t *testing.T) {
	srv := &fakeMCPServer{t: t, callResult: map[string]any{
		"content": []any{
			map[string]any{"type": "text", "text": "sunny"},
		},
	}}
	ts, _ := newTestToolset(t, srv)

	tools, err := ts.Tools(nil)
	if err != nil {
		t.Fatalf("Tools failed: %v", err)
	}

	result, err := tools[0].(*remoteTool).Call(nil, map[string]any{"city": "Berlin"})
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	if result["result"] != "sunny" {
		t.Errorf("expected result 'sunny', got %v", result["result"])
	}
}

func TestCallServerSideError(t *testing.T) {
	srv := &fakeMCPServer{t: t, callResult: map[string]any{
		"isError": true,
		"content": []any{
			map[string]any{"type": "text", "text": "city not found"},
		},
	}}
	ts, _ := newTestToolset(t, srv)

	tools, err := ts.Tools(nil)
	if err != nil {
		t.Fatalf("Tools failed: %v", err)
	}

	result, err := tools[0].(*remoteTool).Call(nil, map[string]any{"city": "Nowhere"})
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	if result["error"] != "city not found" {
		t.Errorf("expected error 'city not found', got %v", result["error"])
	}
}

func TestCallParsesSSEResponse(t *testing.T) {
	srv := &fakeMCPServer{t: t, sse: true, callResult: map[string]any{
		"content": []any{
			map[string]any{"type": "text", "text": "streamed"},
		},
	}}
	ts, _ := newTestToolset(t, srv)

	tools, err := ts.Tools(nil)
	if err != nil {
		t.Fatalf("Tools failed: %v", err)
	}

	result, err := tools[0].(*remoteTool).Call(nil, nil)
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	if result["result"] != "streamed" {
		t.Errorf("expected result 'streamed', got %v", result["result"])
	}
}

func TestSessionIDPropagation(t *testing.T) {
	srv := &fakeMCPServer{t: t, sessionID: "sess-42", callResult: map[string]any{}}
	ts, _ := newTestToolset(t, srv)

	tools, err := ts.Tools(nil)
	if err != nil {
		t.Fatalf("Tools failed: %v", err)
	}
	if _, err := tools[0].(*remoteTool).Call(nil, nil); err != nil {
		t.Fatalf("Call failed: %v", err)
	}

	// initialize has no session yet; every later request must echo it
	if len(srv.sawSessions) < 3 {
		t.Fatalf("expected 3 requests, got %d", len(srv.sawSessions))
	}
	if srv.sawSessions[0] != "" {
		t.Errorf("initialize should carry no session, got %q", srv.sawSessions[0])
	}
	for _, got := range srv.sawSessions[1:] {
		if got != "sess-42" {
			t.Errorf("expected session sess-42, got %q", got)
		}
	}
}

func TestNewRequiresEndpoint(t *testing.T) {
	if _, err := New(Config{Name: "empty"}); err == nil {
		t.Error("expected error when neither url nor command is set")
	}
}

func TestResultToMapMultipleTexts(t *testing.T) {
	out := rpcResultToMap(map[string]any{
		"content": []any{
			map[string]any{"type": "text", "text": "one"},
			map[string]any{"type": "text", "text": "two"},
			map[string]any{"type": "image", "data": "ignored"},
		},
	})

	results, ok := out["results"].([]string)
	if !ok {
		t.Fatalf("expected results slice, got %v", out)
	}
	if len(results) != 2 || results[0] != "one" || results[1] != "two" {
		t.Errorf("unexpected results %v", results)
	}
}
