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

// Package auth validates JWT bearer tokens minted by an external identity
// provider (Supabase, Auth0, Okta, and similar JWKS publishers).
//
// The supervisor is a token consumer, never an issuer: incoming tokens are
// verified against the provider's JWKS endpoint, the validated claims are
// stored on the request context, and the raw bearer token is kept alongside
// them so it can be relayed to sub-agent deployments on delegation.
//
// Configure authentication in the server config:
//
//	auth:
//	  enabled: true
//	  jwks_url: "https://auth.example.com/.well-known/jwks.json"
//	  issuer: "https://auth.example.com"
//	  audience: "supervisor-api"
package auth

import (
	"context"
)

// contextKey is a private type for context keys to avoid collisions.
type contextKey string

const (
	claimsContextKey contextKey = "auth_claims"
	tokenContextKey  contextKey = "auth_bearer_token"
)

// Claims holds the validated claims from a JWT token. The named fields
// cover the claims common identity providers emit; everything else lands
// in Custom.
type Claims struct {
	// Subject is the unique identifier for the user (sub claim).
	Subject string `json:"sub"`

	// Email is the user's email address, if the provider includes one.
	Email string `json:"email,omitempty"`

	// Role is the user's role for authorization decisions.
	Role string `json:"role,omitempty"`

	// TenantID supports multi-tenant deployments.
	TenantID string `json:"tenant_id,omitempty"`

	// Custom contains any additional claims not mapped to struct fields.
	Custom map[string]any `json:"-"`
}

// GetClaim retrieves a custom claim by key.
func (c *Claims) GetClaim(key string) (any, bool) {
	if c.Custom == nil {
		return nil, false
	}
	val, ok := c.Custom[key]
	return val, ok
}

// GetStringClaim retrieves a custom claim as a string. Returns "" when the
// claim is absent or not a string.
func (c *Claims) GetStringClaim(key string) string {
	val, ok := c.GetClaim(key)
	if !ok {
		return ""
	}
	s, _ := val.(string)
	return s
}

// HasRole reports whether the user has the given role.
func (c *Claims) HasRole(role string) bool {
	return c.Role == role
}

// HasAnyRole reports whether the user has at least one of the given roles.
func (c *Claims) HasAnyRole(roles ...string) bool {
	for _, role := range roles {
		if c.Role == role {
			return true
		}
	}
	return false
}

// ClaimsFromContext returns the validated claims stored on the context, or
// nil when the request was not authenticated.
func ClaimsFromContext(ctx context.Context) *Claims {
	claims, _ := ctx.Value(claimsContextKey).(*Claims)
	return claims
}

// ContextWithClaims returns a context carrying the given claims.
func ContextWithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsContextKey, claims)
}

// TokenFromContext returns the raw bearer token the request authenticated
// with, or "" when the request was not authenticated. The token is relayed
// to sub-agent deployments on delegation.
func TokenFromContext(ctx context.Context) string {
	token, _ := ctx.Value(tokenContextKey).(string)
	return token
}

// ContextWithToken returns a context carrying the raw bearer token.
func ContextWithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenContextKey, token)
}
