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

package session

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/langchain-ai/oap-agent-supervisor/pkg/agent"
)

// TokenWindow filters event history to fit a model token budget. Events are
// kept from most recent backwards until the budget is exhausted.
type TokenWindow struct {
	encoding  *tiktoken.Tiktoken
	maxTokens int
}

var (
	encodingCache   = make(map[string]*tiktoken.Tiktoken)
	encodingCacheMu sync.Mutex
)

// NewTokenWindow creates a token window for the given model's tokenizer.
// Unknown models fall back to the cl100k_base encoding.
func NewTokenWindow(model string, maxTokens int) (*TokenWindow, error) {
	if maxTokens <= 0 {
		return nil, fmt.Errorf("maxTokens must be positive")
	}

	encodingCacheMu.Lock()
	defer encodingCacheMu.Unlock()

	encoding, ok := encodingCache[model]
	if !ok {
		var err error
		encoding, err = tiktoken.EncodingForModel(model)
		if err != nil {
			encoding, err = tiktoken.GetEncoding("cl100k_base")
			if err != nil {
				return nil, fmt.Errorf("failed to get encoding: %w", err)
			}
		}
		encodingCache[model] = encoding
	}

	return &TokenWindow{encoding: encoding, maxTokens: maxTokens}, nil
}

// Name returns the strategy identifier.
func (w *TokenWindow) Name() string {
	return "token_window"
}

// CountTokens returns the token count of a piece of text.
func (w *TokenWindow) CountTokens(text string) int {
	return len(w.encoding.Encode(text, nil, nil))
}

// FilterEvents returns the most recent events that fit the token budget.
// The event-count overhead mirrors the chat message framing tokens.
func (w *TokenWindow) FilterEvents(events []*agent.Event) []*agent.Event {
	if len(events) == 0 {
		return events
	}

	const tokensPerEvent = 3
	budget := w.maxTokens - 3 // reply priming

	total := 0
	start := len(events)
	for i := len(events) - 1; i >= 0; i-- {
		cost := tokensPerEvent + w.CountTokens(eventText(events[i]))
		if total+cost > budget {
			break
		}
		total += cost
		start = i
	}

	if start == len(events) {
		// Even the newest event exceeds the budget; keep it so the
		// model at least sees the latest turn.
		return events[len(events)-1:]
	}
	return events[start:]
}

// eventText flattens an event to the text the model will see, including tool
// call arguments and results.
func eventText(event *agent.Event) string {
	text := event.TextContent()
	for _, call := range event.ToolCalls {
		text += fmt.Sprintf(" %s(%v)", call.Name, call.Args)
	}
	for _, result := range event.ToolResults {
		text += " " + result.Content
	}
	return text
}
