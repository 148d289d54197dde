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
	"github.com/langchain-ai/oap-agent-supervisor/pkg/config"
)

// AccessTokenKey is the configurable key carrying the caller's access token.
const AccessTokenKey = "x-supabase-access-token"

// SanitizeName makes an agent name safe for use in tool names.
// Spaces become underscores; <, >, |, \ and / are removed.
func SanitizeName(name string) string {
	return config.SanitizeAgentName(name)
}

// AuthHeaders builds the outgoing auth headers for a child deployment.
// With no token, no auth headers are sent at all.
func AuthHeaders(accessToken string) map[string]string {
	headers := map[string]string{}
	if accessToken != "" {
		headers["Authorization"] = "Bearer " + accessToken
		headers[AccessTokenKey] = accessToken
	}
	return headers
}

// AccessTokenFromConfigurable extracts the caller's access token from a
// request configurable map.
func AccessTokenFromConfigurable(configurable map[string]any) string {
	if configurable == nil {
		return ""
	}
	token, _ := configurable[AccessTokenKey].(string)
	return token
}

// SanitizeConfig filters the supervisor's own configuration fields out of
// the configurable and metadata maps inherited from the incoming request,
// so a child deployment never sees the parent's graph configuration
// (e.g. system_prompt). Unknown keys pass through untouched; nil maps
// stay nil.
func SanitizeConfig(configurable, metadata map[string]any) (map[string]any, map[string]any) {
	graphFields := make(map[string]bool)
	for _, key := range config.ConfigurableKeys() {
		graphFields[key] = true
	}

	return filterKeys(configurable, graphFields), filterKeys(metadata, graphFields)
}

func filterKeys(m map[string]any, drop map[string]bool) map[string]any {
	if m == nil {
		return nil
	}
	filtered := make(map[string]any, len(m))
	for k, v := range m {
		if drop[k] {
			continue
		}
		filtered[k] = v
	}
	return filtered
}
