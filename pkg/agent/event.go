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

package agent

import (
	"time"

	"github.com/a2aproject/a2a-go/a2a"
	"github.com/google/uuid"
)

// Event author constants
const (
	// AuthorUser represents events authored by the user (human input).
	AuthorUser = "user"

	// AuthorSystem represents events authored by the system.
	AuthorSystem = "system"
)

// Event represents an interaction in an agent conversation.
// Events are yielded by Agent.Run() and translated to A2A events by the server.
type Event struct {
	// ID is the unique identifier for this event.
	ID string

	// Timestamp when the event was created.
	Timestamp time.Time

	// InvocationID links this event to its invocation.
	InvocationID string

	// Branch isolates conversation history in the agent tree.
	// Format: "agent_1.agent_2.agent_3" (parent chain).
	Branch string

	// Author is the name of the agent that produced this event.
	// For user-authored events, use AuthorUser.
	Author string

	// Message contains the A2A message content (text, files, data).
	Message *a2a.Message

	// Actions captures side effects (state changes, transfers, etc).
	Actions EventActions

	// Partial indicates this is a streaming chunk, not a complete event.
	Partial bool

	// TurnComplete indicates this is the final event of a turn.
	TurnComplete bool

	// Interrupted indicates this event was cut off due to cancellation
	// or timeout, so the response may be incomplete.
	Interrupted bool

	// ErrorCode is a machine-readable error identifier.
	ErrorCode string

	// ErrorMessage is a human-readable error description.
	ErrorMessage string

	// ToolCalls captures tool invocations in this event.
	ToolCalls []ToolCallState

	// ToolResults captures tool execution results in this event.
	ToolResults []ToolResultState

	// CustomMetadata for application-specific data.
	CustomMetadata map[string]any
}

// ToolCallState represents a tool invocation.
type ToolCallState struct {
	// ID uniquely identifies this tool call (matches the model's tool_use ID).
	ID string `json:"id"`

	// Name is the tool being called.
	Name string `json:"name"`

	// Args are the arguments passed to the tool.
	Args map[string]any `json:"args"`

	// Status indicates lifecycle: "pending" | "working".
	Status string `json:"status"`
}

// ToolResultState represents a tool execution result.
type ToolResultState struct {
	// ToolCallID links this result to its ToolCallState.
	ToolCallID string `json:"tool_call_id"`

	// Content is the tool's output.
	Content string `json:"content"`

	// Status indicates outcome: "success" | "failed".
	Status string `json:"status"`

	// IsError indicates if Content represents an error message.
	IsError bool `json:"is_error,omitempty"`
}

// NewEvent creates a new event with generated ID and current timestamp.
func NewEvent(invocationID string) *Event {
	return &Event{
		ID:           uuid.NewString(),
		Timestamp:    time.Now(),
		InvocationID: invocationID,
		Actions:      EventActions{StateDelta: make(map[string]any)},
	}
}

// EventActions represents side effects attached to an event.
type EventActions struct {
	// StateDelta contains key-value changes to session state.
	StateDelta map[string]any

	// SkipSummarization prevents model summarization of tool responses.
	SkipSummarization bool

	// TransferToAgent requests control transfer to another agent.
	TransferToAgent string

	// Escalate requests escalation to a higher-level agent.
	Escalate bool
}

// IsFinalResponse returns whether this event is a final response.
// Multiple events can be final when multiple agents participate in one
// invocation.
//
// An event is NOT final if it:
// - Contains tool calls (awaiting execution)
// - Contains tool results (awaiting model summarization)
// - Is a partial/streaming event
func (e *Event) IsFinalResponse() bool {
	if e.Actions.SkipSummarization {
		return true
	}

	if e.Partial {
		return false
	}

	if e.HasToolCalls() || e.HasToolResults() {
		return false
	}

	return true
}

// HasToolCalls returns true if this event contains tool call requests.
func (e *Event) HasToolCalls() bool {
	if len(e.ToolCalls) > 0 {
		return true
	}

	return hasPartOfType(e.Message, "tool_use")
}

// HasToolResults returns true if this event contains tool execution results.
func (e *Event) HasToolResults() bool {
	if len(e.ToolResults) > 0 {
		return true
	}

	return hasPartOfType(e.Message, "tool_result")
}

// hasPartOfType checks if a message contains a DataPart with the specified type.
func hasPartOfType(msg *a2a.Message, partType string) bool {
	if msg == nil {
		return false
	}

	for _, part := range msg.Parts {
		if dp, ok := part.(a2a.DataPart); ok {
			if typeVal, hasType := dp.Data["type"].(string); hasType && typeVal == partType {
				return true
			}
		}
	}
	return false
}

// TextContent extracts text content from the event's message.
func (e *Event) TextContent() string {
	if e.Message == nil {
		return ""
	}

	var text string
	for _, part := range e.Message.Parts {
		if tp, ok := part.(a2a.TextPart); ok {
			text += tp.Text
		}
	}
	return text
}

// Content is a convenience type for building message content.
type Content struct {
	Parts []a2a.Part
	Role  a2a.MessageRole
}

// NewTextContent creates content with a text part.
func NewTextContent(text string, role a2a.MessageRole) *Content {
	return &Content{
		Parts: []a2a.Part{a2a.TextPart{Text: text}},
		Role:  role,
	}
}

// ToMessage converts Content to an a2a.Message.
func (c *Content) ToMessage() *a2a.Message {
	if c == nil {
		return nil
	}
	return a2a.NewMessage(c.Role, c.Parts...)
}

// AddPart appends a part to the content.
func (c *Content) AddPart(part a2a.Part) {
	c.Parts = append(c.Parts, part)
}

// AddText appends a text part to the content.
func (c *Content) AddText(text string) {
	c.Parts = append(c.Parts, a2a.TextPart{Text: text})
}
