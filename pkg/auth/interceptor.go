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

	"github.com/a2aproject/a2a-go/a2asrv"
)

// Interceptor bridges HTTP-level authentication to a2a-go's
// CallInterceptor. Middleware validates the JWT and stores Claims on the
// request context; Before then exposes them as the a2a CallContext.User so
// executors can attribute work to the authenticated caller.
type Interceptor struct {
	// RequireAuth when true rejects unauthenticated requests. When false,
	// unauthenticated requests proceed with a nil User.
	RequireAuth bool
}

// NewInterceptor creates a new auth interceptor.
func NewInterceptor(requireAuth bool) *Interceptor {
	return &Interceptor{RequireAuth: requireAuth}
}

// Before runs ahead of each a2a request handler method and sets the
// CallContext user from the claims the HTTP middleware validated.
func (i *Interceptor) Before(ctx context.Context, callCtx *a2asrv.CallContext, req *a2asrv.Request) (context.Context, error) {
	claims := ClaimsFromContext(ctx)
	if claims != nil {
		callCtx.User = &AuthenticatedUser{claims: claims}
	} else if i.RequireAuth {
		// The HTTP middleware normally rejects these before they get
		// here; this is the backstop for misordered handler chains.
		return ctx, ErrUnauthorized
	}
	return ctx, nil
}

// After runs following each a2a request handler method. A no-op.
func (i *Interceptor) After(ctx context.Context, callCtx *a2asrv.CallContext, resp *a2asrv.Response) error {
	return nil
}

var _ a2asrv.CallInterceptor = (*Interceptor)(nil)

// AuthenticatedUser implements a2asrv.User over validated JWT claims.
type AuthenticatedUser struct {
	claims *Claims
}

// Name returns the user's subject identifier.
func (u *AuthenticatedUser) Name() string {
	if u.claims == nil {
		return ""
	}
	return u.claims.Subject
}

// Authenticated reports true; this type only wraps validated claims.
func (u *AuthenticatedUser) Authenticated() bool {
	return true
}

// Claims returns the underlying validated claims.
func (u *AuthenticatedUser) Claims() *Claims {
	return u.claims
}

var _ a2asrv.User = (*AuthenticatedUser)(nil)

// ClaimsFromCallContext extracts Claims from an a2a CallContext. Returns
// nil when the call is unauthenticated.
func ClaimsFromCallContext(callCtx *a2asrv.CallContext) *Claims {
	if callCtx == nil || callCtx.User == nil {
		return nil
	}
	if user, ok := callCtx.User.(*AuthenticatedUser); ok {
		return user.Claims()
	}
	return nil
}
