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

// Package mcptoolset exposes MCP servers as Toolsets.
//
// MCP (Model Context Protocol) tool servers can be attached to the
// supervisor alongside its delegation tools. Connections are lazy: nothing
// is dialed until Tools() is first called.
//
// Transport support:
//   - stdio: subprocess communication through the mcp-go library
//   - sse, streamable-http: JSON-RPC over the shared retrying httpclient
package mcptoolset

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/langchain-ai/oap-agent-supervisor/pkg/agent"
	"github.com/langchain-ai/oap-agent-supervisor/pkg/tool"
)

// DefaultSSEResponseTimeout bounds how long a single SSE response may take.
// Five minutes accommodates long-running tool calls.
const DefaultSSEResponseTimeout = 5 * time.Minute

const (
	clientName    = "oap-agent-supervisor"
	clientVersion = "1.0.0"

	protocolVersion = "2024-11-05"
)

// Config configures an MCP toolset.
type Config struct {
	// Name identifies this toolset.
	Name string

	// URL is the MCP server URL (for HTTP transports).
	URL string

	// Transport specifies the MCP transport (sse, streamable-http, stdio).
	Transport string

	// Command for stdio transport.
	Command string

	// Args for stdio transport.
	Args []string

	// Env for stdio transport.
	Env map[string]string

	// Filter limits which tools are exposed.
	Filter []string

	// MaxRetries for HTTP requests (default: 3).
	MaxRetries int

	// SSETimeout for SSE response reading (default: 5m).
	SSETimeout time.Duration
}

// toolDef is a tool as advertised by the server.
type toolDef struct {
	name   string
	desc   string
	schema map[string]any
}

// Toolset is an MCP-backed toolset with lazy initialization.
type Toolset struct {
	cfg    Config
	filter map[string]struct{}

	mu        sync.Mutex
	connected bool
	stdio     *client.Client
	rpc       *rpcClient
	tools     []tool.Tool
}

// New creates a new MCP toolset.
func New(cfg Config) (*Toolset, error) {
	if cfg.URL == "" && cfg.Command == "" {
		return nil, fmt.Errorf("either url or command is required")
	}

	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.SSETimeout == 0 {
		cfg.SSETimeout = DefaultSSEResponseTimeout
	}

	return &Toolset{
		cfg:    cfg,
		filter: toFilterSet(cfg.Filter),
	}, nil
}

func toFilterSet(names []string) map[string]struct{} {
	if len(names) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(names))
	for _, name := range names {
		set[name] = struct{}{}
	}
	return set
}

// Name returns the toolset name.
func (t *Toolset) Name() string {
	return t.cfg.Name
}

// Tools returns the available tools, connecting lazily if needed.
func (t *Toolset) Tools(rctx agent.ReadonlyContext) ([]tool.Tool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.connected {
		if err := t.connect(context.Background()); err != nil {
			return nil, fmt.Errorf("failed to connect to MCP server: %w", err)
		}
	}

	return t.tools, nil
}

// WithFilter returns a view of this toolset restricted to the given tool
// names. The view shares the underlying connection.
func (t *Toolset) WithFilter(filter []string) tool.Toolset {
	return &filteredToolset{parent: t, filter: toFilterSet(filter)}
}

// Close closes the MCP connection.
func (t *Toolset) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	var err error
	if t.stdio != nil {
		err = t.stdio.Close()
		t.stdio = nil
	}
	// HTTP connections need no explicit close
	t.rpc = nil
	t.connected = false
	t.tools = nil
	return err
}

func (t *Toolset) usesStdio() bool {
	return t.cfg.Command != "" || t.cfg.Transport == "stdio"
}

// connect establishes the MCP connection and discovers tools.
func (t *Toolset) connect(ctx context.Context) error {
	var defs []toolDef
	var err error
	if t.usesStdio() {
		defs, err = t.connectStdio(ctx)
	} else {
		defs, err = t.connectRPC(ctx)
	}
	if err != nil {
		return err
	}

	t.tools = t.tools[:0]
	for _, def := range defs {
		if t.filter != nil {
			if _, ok := t.filter[def.name]; !ok {
				continue
			}
		}
		t.tools = append(t.tools, &remoteTool{toolset: t, def: def})
	}
	t.connected = true

	slog.Info("Connected to MCP server",
		"name", t.cfg.Name,
		"transport", t.cfg.Transport,
		"tools", len(t.tools),
	)
	return nil
}

// connectStdio launches the server subprocess and lists its tools.
func (t *Toolset) connectStdio(ctx context.Context) ([]toolDef, error) {
	env := make([]string, 0, len(t.cfg.Env))
	for k, v := range t.cfg.Env {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}

	mcpClient, err := client.NewStdioMCPClient(t.cfg.Command, env, t.cfg.Args...)
	if err != nil {
		return nil, fmt.Errorf("failed to create MCP client: %w", err)
	}

	if err := mcpClient.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start MCP client: %w", err)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ClientInfo = mcp.Implementation{Name: clientName, Version: clientVersion}
	initReq.Params.ProtocolVersion = protocolVersion
	if _, err := mcpClient.Initialize(ctx, initReq); err != nil {
		mcpClient.Close()
		return nil, fmt.Errorf("failed to initialize MCP: %w", err)
	}

	listResp, err := mcpClient.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		mcpClient.Close()
		return nil, fmt.Errorf("failed to list tools: %w", err)
	}

	defs := make([]toolDef, 0, len(listResp.Tools))
	for _, mcpTool := range listResp.Tools {
		defs = append(defs, toolDef{
			name:   mcpTool.Name,
			desc:   mcpTool.Description,
			schema: stdioSchemaToMap(mcpTool.InputSchema),
		})
	}

	t.stdio = mcpClient
	return defs, nil
}

// connectRPC initializes an HTTP session and lists the server's tools.
func (t *Toolset) connectRPC(ctx context.Context) ([]toolDef, error) {
	rpc := newRPCClient(t.cfg)

	if err := rpc.initialize(ctx); err != nil {
		return nil, err
	}
	defs, err := rpc.listTools(ctx)
	if err != nil {
		return nil, err
	}

	t.rpc = rpc
	return defs, nil
}

// call routes a tool invocation through the active transport.
func (t *Toolset) call(ctx context.Context, name string, args map[string]any) (map[string]any, error) {
	t.mu.Lock()
	stdio := t.stdio
	rpc := t.rpc
	t.mu.Unlock()

	if ctx == nil {
		ctx = context.Background()
	}

	switch {
	case stdio != nil:
		req := mcp.CallToolRequest{}
		req.Params.Name = name
		req.Params.Arguments = args

		resp, err := stdio.CallTool(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("MCP call failed: %w", err)
		}
		return stdioResultToMap(resp), nil
	case rpc != nil:
		return rpc.callTool(ctx, name, args)
	default:
		return nil, fmt.Errorf("MCP toolset not connected")
	}
}

// remoteTool exposes one server-side tool as a CallableTool.
type remoteTool struct {
	toolset *Toolset
	def     toolDef
}

func (r *remoteTool) Name() string           { return r.def.name }
func (r *remoteTool) Description() string    { return r.def.desc }
func (r *remoteTool) IsLongRunning() bool    { return false }
func (r *remoteTool) Schema() map[string]any { return r.def.schema }

func (r *remoteTool) Call(ctx tool.Context, args map[string]any) (map[string]any, error) {
	var callCtx context.Context = ctx
	if ctx == nil {
		callCtx = context.Background()
	}
	return r.toolset.call(callCtx, r.def.name, args)
}

// filteredToolset restricts a Toolset to an explicit set of tool names.
type filteredToolset struct {
	parent *Toolset
	filter map[string]struct{}
}

func (f *filteredToolset) Name() string {
	return f.parent.Name()
}

func (f *filteredToolset) Tools(rctx agent.ReadonlyContext) ([]tool.Tool, error) {
	all, err := f.parent.Tools(rctx)
	if err != nil {
		return nil, err
	}

	var out []tool.Tool
	for _, t := range all {
		if _, ok := f.filter[t.Name()]; ok {
			out = append(out, t)
		}
	}
	return out, nil
}

var (
	_ tool.Toolset      = (*Toolset)(nil)
	_ tool.Toolset      = (*filteredToolset)(nil)
	_ tool.CallableTool = (*remoteTool)(nil)
)
