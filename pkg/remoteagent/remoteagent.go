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
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/a2aproject/a2a-go/a2a"

	"github.com/langchain-ai/oap-agent-supervisor/pkg/agent"
	"github.com/langchain-ai/oap-agent-supervisor/pkg/httpclient"
)

const (
	defaultTimeout    = 120 * time.Second
	defaultMaxRetries = 3
)

// Config configures a remote deployment agent.
type Config struct {
	// Name is the local name for this remote agent.
	// Required. Sanitize with SanitizeName before passing.
	Name string

	// Description describes what this remote agent does.
	Description string

	// DeploymentURL is the base URL of the remote deployment.
	// Required. Example: "https://my-deployment.example.com"
	DeploymentURL string

	// AgentID identifies the assistant to run on the deployment.
	// Required.
	AgentID string

	// Headers are static HTTP headers included in every request.
	// Per-request auth headers from the caller's token are added on top.
	Headers map[string]string

	// Timeout is the request timeout. Default: 120s.
	Timeout time.Duration

	// MaxRetries for rate limits and transient server errors. Default: 3.
	MaxRetries int
}

// deploymentAgent is the internal implementation of a remote deployment agent.
type deploymentAgent struct {
	cfg    Config
	client *httpclient.Client
}

// New creates an agent backed by a remote deployment.
//
// The agent sends the user query to the deployment's streaming run endpoint
// and relays streamed chunks as partial events, followed by a final event
// with the aggregated response text.
func New(cfg Config) (agent.Agent, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("name is required")
	}
	if cfg.DeploymentURL == "" {
		return nil, fmt.Errorf("deployment URL is required")
	}
	if cfg.AgentID == "" {
		return nil, fmt.Errorf("agent ID is required")
	}

	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	cfg.DeploymentURL = strings.TrimSuffix(cfg.DeploymentURL, "/")

	remote := &deploymentAgent{
		cfg: cfg,
		client: httpclient.New(
			httpclient.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
			httpclient.WithMaxRetries(cfg.MaxRetries),
		),
	}

	return agent.New(agent.Config{
		Name:        cfg.Name,
		Description: cfg.Description,
		Run: func(ctx agent.InvocationContext) iter.Seq2[*agent.Event, error] {
			return remote.run(ctx)
		},
	})
}

func (d *deploymentAgent) run(ctx agent.InvocationContext) iter.Seq2[*agent.Event, error] {
	return func(yield func(*agent.Event, error) bool) {
		query := d.queryFromContext(ctx)
		if query == "" {
			yield(d.newEvent(ctx), nil)
			return
		}

		runCfg := ctx.RunConfig()
		configurable, metadata := SanitizeConfig(runCfg.Configurable, runCfg.Metadata)
		token := AccessTokenFromConfigurable(runCfg.Configurable)

		body := runRequest{
			AssistantID: d.cfg.AgentID,
			Input: runInput{
				Messages: []runMessage{{Role: "human", Content: query}},
			},
			Config:     runConfig{Configurable: configurable},
			Metadata:   metadata,
			StreamMode: []string{"messages"},
		}

		bodyBytes, err := json.Marshal(body)
		if err != nil {
			yield(nil, fmt.Errorf("failed to marshal run request: %w", err))
			return
		}

		req, err := http.NewRequestWithContext(ctx, "POST", d.cfg.DeploymentURL+"/runs/stream", bytes.NewReader(bodyBytes))
		if err != nil {
			yield(nil, fmt.Errorf("failed to create run request: %w", err))
			return
		}

		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "text/event-stream")
		for k, v := range d.cfg.Headers {
			req.Header.Set(k, v)
		}
		for k, v := range AuthHeaders(token) {
			req.Header.Set(k, v)
		}

		resp, err := d.client.Do(req)
		if err != nil {
			yield(d.errorEvent(ctx, fmt.Errorf("run request failed: %w", err)), nil)
			if resp != nil {
				resp.Body.Close()
			}
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			respBody, _ := io.ReadAll(resp.Body)
			yield(d.errorEvent(ctx, fmt.Errorf("run failed (status %d): %s", resp.StatusCode, string(respBody))), nil)
			return
		}

		d.streamEvents(ctx, resp.Body, yield)
	}
}

// streamEvents parses the SSE run stream and yields agent events.
func (d *deploymentAgent) streamEvents(ctx agent.InvocationContext, body io.Reader, yield func(*agent.Event, error) bool) {
	reader := bufio.NewReader(body)

	var currentEventType string
	var currentMsgKey string
	var aggregated strings.Builder
	emittedLen := 0

	for {
		line, err := reader.ReadBytes('\n')
		if err != nil {
			if err == io.EOF {
				break
			}
			yield(nil, fmt.Errorf("stream read error: %w", err))
			return
		}

		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}

		if bytes.HasPrefix(line, []byte("event: ")) {
			currentEventType = string(bytes.TrimSpace(line[7:]))
			continue
		}

		if !bytes.HasPrefix(line, []byte("data: ")) {
			continue
		}
		dataLine := line[6:]
		eventType := currentEventType
		currentEventType = ""

		switch {
		case eventType == "error":
			var apiErr struct {
				Error   string `json:"error"`
				Message string `json:"message"`
			}
			if err := json.Unmarshal(dataLine, &apiErr); err != nil {
				yield(d.errorEvent(ctx, fmt.Errorf("remote run error: %s", string(dataLine))), nil)
				return
			}
			yield(d.errorEvent(ctx, fmt.Errorf("remote run error: %s %s", apiErr.Error, apiErr.Message)), nil)
			return

		case eventType == "messages/partial" || eventType == "messages/complete":
			msgKey, text := lastAssistantMessage(dataLine)
			if text == "" {
				continue
			}

			// A sub-agent that calls a tool and then answers emits more
			// than one assistant message. Each message's cumulative
			// content restarts from empty, so reset the tail tracking
			// when the message identity changes.
			if msgKey != currentMsgKey {
				currentMsgKey = msgKey
				emittedLen = 0
			}

			// The stream carries cumulative content; emit only the new tail.
			if len(text) > emittedLen {
				delta := text[emittedLen:]
				emittedLen = len(text)
				aggregated.Reset()
				aggregated.WriteString(text)

				event := d.newEvent(ctx)
				event.Message = a2a.NewMessage(a2a.MessageRoleAgent, a2a.TextPart{Text: delta})
				event.Partial = true
				if !yield(event, nil) {
					return
				}
			}

		case eventType == "metadata" || eventType == "end" || eventType == "":
			// Run bookkeeping events carry no message content.

		default:
			slog.Debug("Ignoring unknown stream event", "agent", d.cfg.Name, "event", eventType)
		}
	}

	final := d.newEvent(ctx)
	final.TurnComplete = true
	if aggregated.Len() > 0 {
		final.Message = a2a.NewMessage(a2a.MessageRoleAgent, a2a.TextPart{Text: aggregated.String()})
	}
	yield(final, nil)
}

// lastAssistantMessage extracts the identity and text of the last assistant
// message from a messages stream payload. The payload is a JSON array of
// messages whose content is either a plain string or a list of content
// blocks. The key is the message id when present, falling back to the
// message's position in the array.
func lastAssistantMessage(data []byte) (key, text string) {
	var messages []struct {
		ID      string `json:"id"`
		Type    string `json:"type"`
		Content any    `json:"content"`
	}
	if err := json.Unmarshal(data, &messages); err != nil {
		return "", ""
	}

	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Type != "ai" {
			continue
		}
		key = messages[i].ID
		if key == "" {
			key = fmt.Sprintf("#%d", i)
		}
		return key, contentText(messages[i].Content)
	}
	return "", ""
}

func contentText(content any) string {
	switch c := content.(type) {
	case string:
		return c
	case []any:
		var text strings.Builder
		for _, block := range c {
			blockMap, ok := block.(map[string]any)
			if !ok {
				continue
			}
			if blockType, _ := blockMap["type"].(string); blockType == "text" {
				if t, ok := blockMap["text"].(string); ok {
					text.WriteString(t)
				}
			}
		}
		return text.String()
	default:
		return ""
	}
}

func (d *deploymentAgent) queryFromContext(ctx agent.InvocationContext) string {
	userContent := ctx.UserContent()
	if userContent == nil {
		return ""
	}
	var text strings.Builder
	for _, part := range userContent.Parts {
		if tp, ok := part.(a2a.TextPart); ok {
			text.WriteString(tp.Text)
		}
	}
	return text.String()
}

func (d *deploymentAgent) newEvent(ctx agent.InvocationContext) *agent.Event {
	event := agent.NewEvent(ctx.InvocationID())
	event.Author = d.cfg.Name
	event.Branch = ctx.Branch()
	return event
}

func (d *deploymentAgent) errorEvent(ctx agent.InvocationContext, err error) *agent.Event {
	event := d.newEvent(ctx)
	event.ErrorCode = "remote_agent_error"
	event.ErrorMessage = err.Error()
	event.TurnComplete = true
	return event
}

// runRequest is the payload for the deployment's streaming run endpoint.
type runRequest struct {
	AssistantID string         `json:"assistant_id"`
	Input       runInput       `json:"input"`
	Config      runConfig      `json:"config"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	StreamMode  []string       `json:"stream_mode"`
}

type runInput struct {
	Messages []runMessage `json:"messages"`
}

type runMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type runConfig struct {
	Configurable map[string]any `json:"configurable,omitempty"`
}
