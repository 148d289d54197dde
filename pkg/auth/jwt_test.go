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

package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/langchain-ai/oap-agent-supervisor/pkg/config"
)

func TestValidateToken(t *testing.T) {
	validator, privateKey, issuer, audience := setupTestValidator(t)

	token := createTestJWT(t, privateKey, issuer, audience, "user-123", time.Hour, map[string]any{
		"email":     "user@example.com",
		"role":      "admin",
		"tenant_id": "tenant-1",
		"org":       "acme",
	})

	claims, err := validator.ValidateToken(context.Background(), token)
	if err != nil {
		t.Fatalf("ValidateToken failed: %v", err)
	}

	if claims.Subject != "user-123" {
		t.Errorf("Subject = %q, want %q", claims.Subject, "user-123")
	}
	if claims.Email != "user@example.com" {
		t.Errorf("Email = %q, want %q", claims.Email, "user@example.com")
	}
	if claims.Role != "admin" {
		t.Errorf("Role = %q, want %q", claims.Role, "admin")
	}
	if claims.TenantID != "tenant-1" {
		t.Errorf("TenantID = %q, want %q", claims.TenantID, "tenant-1")
	}
	if got := claims.GetStringClaim("org"); got != "acme" {
		t.Errorf("custom claim org = %q, want %q", got, "acme")
	}
	if !claims.HasAnyRole("viewer", "admin") {
		t.Error("HasAnyRole(viewer, admin) = false, want true")
	}
}

func TestValidateTokenExpired(t *testing.T) {
	validator, privateKey, issuer, audience := setupTestValidator(t)

	token := createTestJWT(t, privateKey, issuer, audience, "user-123", -time.Hour, nil)

	_, err := validator.ValidateToken(context.Background(), token)
	if !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("ValidateToken error = %v, want ErrTokenExpired", err)
	}
}

func TestValidateTokenRejections(t *testing.T) {
	validator, privateKey, issuer, audience := setupTestValidator(t)

	tests := []struct {
		name  string
		token string
	}{
		{
			name:  "wrong issuer",
			token: createTestJWT(t, privateKey, "https://evil.example.com", audience, "user-123", time.Hour, nil),
		},
		{
			name:  "wrong audience",
			token: createTestJWT(t, privateKey, issuer, "other-audience", "user-123", time.Hour, nil),
		},
		{
			name:  "garbage",
			token: "not-a-jwt",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := validator.ValidateToken(context.Background(), tt.token); err == nil {
				t.Fatal("ValidateToken succeeded, want error")
			}
		})
	}
}

func TestValidateTokenUnknownKey(t *testing.T) {
	validator, _, issuer, audience := setupTestValidator(t)

	// Signed with a key the JWKS endpoint never published.
	rogueKey, _ := generateRSAKeyPair(t)
	token := createTestJWT(t, rogueKey, issuer, audience, "user-123", time.Hour, nil)

	if _, err := validator.ValidateToken(context.Background(), token); err == nil {
		t.Fatal("ValidateToken succeeded with unknown signing key, want error")
	}
}

func TestNewJWTValidatorUnreachableJWKS(t *testing.T) {
	_, err := NewJWTValidator(JWTValidatorConfig{
		JWKSURL:  "http://127.0.0.1:1/jwks.json",
		Issuer:   "https://issuer.example.com",
		Audience: "audience",
	})
	if err == nil {
		t.Fatal("NewJWTValidator succeeded with unreachable JWKS URL, want error")
	}
}

func TestNewValidatorFromConfigDisabled(t *testing.T) {
	validator, err := NewValidatorFromConfig(&config.AuthConfig{Enabled: false})
	if err != nil {
		t.Fatalf("NewValidatorFromConfig failed: %v", err)
	}
	if validator != nil {
		t.Fatal("expected nil validator when auth is disabled")
	}
}

func TestNewValidatorFromConfigInvalid(t *testing.T) {
	_, err := NewValidatorFromConfig(&config.AuthConfig{Enabled: true})
	if err == nil {
		t.Fatal("NewValidatorFromConfig succeeded without jwks_url, want error")
	}
}
