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

// HandoffToolPrefix is prepended to the sanitized agent name to form the
// delegation tool name exposed to the controller model.
const HandoffToolPrefix = "delegate_to_"

// UneditableSystemPrompt is always appended to the configured system prompt.
// It tells the model how delegation tools are named and that the caller sees
// the full conversation, so the controller must not repeat sub-agent output.
const UneditableSystemPrompt = "\nYou can invoke sub-agents by calling tools in this format:\n" +
	"`delegate_to_<name>(user_query)`--replacing <name> with the agent's name--\n" +
	"to hand off control. Otherwise, answer the user yourself.\n" +
	"\n" +
	"The user will see all messages and tool calls produced in the conversation, \n" +
	"along with all returned from the sub-agents. With this in mind, ensure you \n" +
	"never repeat any information already presented to the user.\n"

// DefaultSupervisorPrompt is used when no system prompt is configured.
const DefaultSupervisorPrompt = "You are a supervisor AI overseeing a team of specialist agents. \n" +
	"For each incoming user message, decide if it should be handled by one of your agents. \n"

// ComposePrompt builds the full system instruction for the controller model.
// An empty system prompt falls back to DefaultSupervisorPrompt; the uneditable
// suffix is appended in every case.
func ComposePrompt(systemPrompt string) string {
	if systemPrompt == "" {
		systemPrompt = DefaultSupervisorPrompt
	}
	return systemPrompt + UneditableSystemPrompt
}
