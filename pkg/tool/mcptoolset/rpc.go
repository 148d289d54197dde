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
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/langchain-ai/oap-agent-supervisor/pkg/httpclient"
)

// rpcClient speaks MCP JSON-RPC over HTTP (sse and streamable-http
// transports). The streamable-http transport assigns a session ID on the
// first response, which must be echoed on every subsequent request.
type rpcClient struct {
	name       string
	url        string
	http       *httpclient.Client
	sseTimeout time.Duration

	mu        sync.RWMutex
	sessionID string
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type rpcResponse struct {
	JSONRPC string    `json:"jsonrpc"`
	ID      int       `json:"id"`
	Result  any       `json:"result,omitempty"`
	Error   *rpcError `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func newRPCClient(cfg Config) *rpcClient {
	return &rpcClient{
		name: cfg.Name,
		url:  cfg.URL,
		http: httpclient.New(
			httpclient.WithHTTPClient(&http.Client{Timeout: 30 * time.Second}),
			httpclient.WithMaxRetries(cfg.MaxRetries),
			httpclient.WithBaseDelay(2*time.Second),
		),
		sseTimeout: cfg.SSETimeout,
	}
}

func (c *rpcClient) initialize(ctx context.Context) error {
	resp, err := c.do(ctx, "initialize", map[string]any{
		"protocolVersion": protocolVersion,
		"clientInfo": map[string]any{
			"name":    clientName,
			"version": clientVersion,
		},
		"capabilities": map[string]any{},
	})
	if err != nil {
		return fmt.Errorf("failed to initialize MCP: %w", err)
	}
	if resp.Error != nil {
		return fmt.Errorf("MCP init error: %s", resp.Error.Message)
	}
	return nil
}

func (c *rpcClient) listTools(ctx context.Context) ([]toolDef, error) {
	resp, err := c.do(ctx, "tools/list", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list tools: %w", err)
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("MCP list error: %s", resp.Error.Message)
	}

	resultMap, ok := resp.Result.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("unexpected result type from tools/list")
	}
	rawTools, ok := resultMap["tools"].([]any)
	if !ok {
		return nil, fmt.Errorf("missing tools in tools/list response")
	}

	defs := make([]toolDef, 0, len(rawTools))
	for _, raw := range rawTools {
		entry, ok := raw.(map[string]any)
		if !ok {
			continue
		}

		def := toolDef{}
		def.name, _ = entry["name"].(string)
		def.desc, _ = entry["description"].(string)
		def.schema, _ = entry["inputSchema"].(map[string]any)
		defs = append(defs, def)
	}
	return defs, nil
}

func (c *rpcClient) callTool(ctx context.Context, name string, args map[string]any) (map[string]any, error) {
	resp, err := c.do(ctx, "tools/call", map[string]any{
		"name":      name,
		"arguments": args,
	})
	if err != nil {
		return nil, fmt.Errorf("MCP call failed: %w", err)
	}
	if resp.Error != nil {
		return map[string]any{"error": resp.Error.Message}, nil
	}

	resultMap, ok := resp.Result.(map[string]any)
	if !ok {
		return map[string]any{"result": resp.Result}, nil
	}
	return rpcResultToMap(resultMap), nil
}

// do sends one JSON-RPC request, handling session propagation and both
// plain JSON and SSE response bodies.
func (c *rpcClient) do(ctx context.Context, method string, params any) (*rpcResponse, error) {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json, text/event-stream")

	c.mu.RLock()
	sessionID := c.sessionID
	c.mu.RUnlock()
	if sessionID != "" {
		httpReq.Header.Set("mcp-session-id", sessionID)
	}

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		slog.Debug("MCP HTTP request failed",
			"source", c.name, "method", method, "error", err.Error())
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer httpResp.Body.Close()

	if newSession := httpResp.Header.Get("mcp-session-id"); newSession != "" {
		c.mu.Lock()
		c.sessionID = newSession
		c.mu.Unlock()
	}

	if httpResp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(httpResp.Body)
		return nil, fmt.Errorf("HTTP error %d: %s (response: %s)",
			httpResp.StatusCode, httpResp.Status, string(respBody))
	}

	if strings.Contains(httpResp.Header.Get("Content-Type"), "text/event-stream") {
		return c.readSSE(httpResp.Body)
	}

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	var resp rpcResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &resp, nil
}

// readSSE extracts the first complete JSON-RPC response from an SSE body.
func (c *rpcClient) readSSE(body io.Reader) (*rpcResponse, error) {
	type outcome struct {
		resp *rpcResponse
		err  error
	}
	ch := make(chan outcome, 1)

	go func() {
		scanner := bufio.NewScanner(body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		var data strings.Builder

		flush := func() *rpcResponse {
			if data.Len() == 0 {
				return nil
			}
			var resp rpcResponse
			if err := json.Unmarshal([]byte(data.String()), &resp); err != nil {
				data.Reset()
				return nil
			}
			return &resp
		}

		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				// Blank line terminates an event
				if resp := flush(); resp != nil {
					ch <- outcome{resp: resp}
					return
				}
				continue
			}
			if after, ok := strings.CutPrefix(line, "data:"); ok {
				data.WriteString(strings.TrimSpace(after))
			}
		}
		if resp := flush(); resp != nil {
			ch <- outcome{resp: resp}
			return
		}
		ch <- outcome{err: fmt.Errorf("SSE stream ended without complete message")}
	}()

	select {
	case out := <-ch:
		return out.resp, out.err
	case <-time.After(c.sseTimeout):
		return nil, fmt.Errorf("timeout reading SSE response after %v", c.sseTimeout)
	}
}

// rpcResultToMap flattens a tools/call result into the map shape tools
// return: error text under "error", one text block under "result", several
// under "results".
func rpcResultToMap(result map[string]any) map[string]any {
	content, _ := result["content"].([]any)

	var texts []string
	for _, raw := range content {
		block, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		if blockType, _ := block["type"].(string); blockType != "" && blockType != "text" {
			continue
		}
		if text, ok := block["text"].(string); ok {
			texts = append(texts, text)
		}
	}

	if isError, _ := result["isError"].(bool); isError {
		if len(texts) > 0 {
			return map[string]any{"error": texts[0]}
		}
		return map[string]any{"error": "unknown error"}
	}

	out := make(map[string]any)
	switch len(texts) {
	case 0:
	case 1:
		out["result"] = texts[0]
	default:
		out["results"] = texts
	}
	return out
}

// stdioResultToMap is the mcp-go typed counterpart of rpcResultToMap.
func stdioResultToMap(resp *mcp.CallToolResult) map[string]any {
	var texts []string
	for _, content := range resp.Content {
		if textContent, ok := content.(mcp.TextContent); ok {
			texts = append(texts, textContent.Text)
		}
	}

	if resp.IsError {
		if len(texts) > 0 {
			return map[string]any{"error": texts[0]}
		}
		return map[string]any{"error": "unknown error"}
	}

	out := make(map[string]any)
	switch len(texts) {
	case 0:
	case 1:
		out["result"] = texts[0]
	default:
		out["results"] = texts
	}
	return out
}

// stdioSchemaToMap converts an mcp-go input schema to a plain map.
func stdioSchemaToMap(schema mcp.ToolInputSchema) map[string]any {
	data, err := json.Marshal(schema)
	if err != nil {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil
	}
	return out
}
