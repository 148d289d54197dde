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

package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/a2aproject/a2a-go/a2a"
	"github.com/a2aproject/a2a-go/a2asrv"
	"github.com/go-chi/chi/v5"
	"github.com/invopop/jsonschema"

	oap "github.com/langchain-ai/oap-agent-supervisor"
	"github.com/langchain-ai/oap-agent-supervisor/pkg/auth"
	"github.com/langchain-ai/oap-agent-supervisor/pkg/config"
	"github.com/langchain-ai/oap-agent-supervisor/pkg/observability"
	"github.com/langchain-ai/oap-agent-supervisor/pkg/remoteagent"
	"github.com/langchain-ai/oap-agent-supervisor/pkg/supervisor"
)

// HTTPServer exposes the supervisor over the A2A protocol.
// Uses a2a-go native handlers for protocol compliance.
type HTTPServer struct {
	cfg    *config.Config
	server *http.Server

	// TaskStore for persistent task storage (nil = in-memory)
	taskStore a2asrv.TaskStore

	// Auth: JWT validator and a2a-go interceptor
	authValidator   auth.TokenValidator
	authInterceptor *auth.Interceptor

	// Observability: tracing and metrics
	observability *observability.Manager

	// Supervisor agent: JSON-RPC handler + agent card handler (from a2a-go)
	agentName      string
	card           *a2a.AgentCard
	jsonrpcHandler http.Handler
	cardHandler    http.Handler
}

// HTTPServerOption configures the HTTP server.
type HTTPServerOption func(*HTTPServer)

// WithTaskStore sets the task store for persistent task storage.
// If not set, a2a-go uses its internal in-memory store.
func WithTaskStore(store a2asrv.TaskStore) HTTPServerOption {
	return func(s *HTTPServer) {
		s.taskStore = store
	}
}

// WithAuthValidator sets the JWT validator for authentication.
// When set, HTTP requests are validated and the caller's token is
// relayed to sub-agents.
func WithAuthValidator(validator auth.TokenValidator) HTTPServerOption {
	return func(s *HTTPServer) {
		s.authValidator = validator
	}
}

// WithObservability sets the observability manager for tracing and metrics.
func WithObservability(obs *observability.Manager) HTTPServerOption {
	return func(s *HTTPServer) {
		s.observability = obs
	}
}

// NewHTTPServer creates a new HTTP server exposing the given executor's
// supervisor agent.
func NewHTTPServer(cfg *config.Config, executor *Executor, opts ...HTTPServerOption) *HTTPServer {
	if cfg.Server.Host == "" || cfg.Server.Port == 0 {
		cfg.Server.SetDefaults()
	}

	s := &HTTPServer{
		cfg:       cfg,
		agentName: executor.config.Runner.Agent().Name(),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.buildAgentHandlers(executor)

	return s
}

// buildAgentHandlers creates a2a-go native handlers for the supervisor.
func (s *HTTPServer) buildAgentHandlers(executor *Executor) {
	s.card = s.buildAgentCard()

	var handlerOpts []a2asrv.RequestHandlerOption
	if s.taskStore != nil {
		handlerOpts = append(handlerOpts, a2asrv.WithTaskStore(s.taskStore))
	}

	// Bridge HTTP auth claims to the a2a-go CallContext
	if s.authValidator != nil {
		s.authInterceptor = auth.NewInterceptor(s.cfg.Auth.Enabled)
		handlerOpts = append(handlerOpts, a2asrv.WithCallInterceptor(s.authInterceptor))
	}

	requestHandler := a2asrv.NewHandler(executor, handlerOpts...)
	s.jsonrpcHandler = a2asrv.NewJSONRPCHandler(requestHandler)
	s.cardHandler = a2asrv.NewStaticAgentCardHandler(s.card)
}

// buildAgentCard creates an A2A-compliant agent card for the supervisor.
// Each configured sub-agent shows up as a delegation skill.
func (s *HTTPServer) buildAgentCard() *a2a.AgentCard {
	displayName := s.cfg.Name
	if displayName == "" {
		displayName = s.agentName
	}

	version := s.cfg.Version
	if version == "" {
		version = oap.Version
	}

	var skills []a2a.AgentSkill
	for _, agentCfg := range s.cfg.Supervisor.Agents {
		sanitized := remoteagent.SanitizeName(agentCfg.Name)
		skills = append(skills, a2a.AgentSkill{
			ID:          supervisor.HandoffToolPrefix + sanitized,
			Name:        agentCfg.Name,
			Description: fmt.Sprintf("Delegate tasks to the %s agent", agentCfg.Name),
			Tags:        []string{"delegation"},
		})
	}
	if len(skills) == 0 {
		skills = []a2a.AgentSkill{{
			ID:          s.agentName,
			Name:        displayName,
			Description: s.cfg.Description,
			Tags:        []string{"general", "assistant"},
		}}
	}

	card := &a2a.AgentCard{
		Name:               displayName,
		Description:        s.cfg.Description,
		URL:                s.cfg.Server.BaseURL + "/agents/" + s.agentName,
		Version:            version,
		ProtocolVersion:    "1.0",
		DefaultInputModes:  []string{"text/plain"},
		DefaultOutputModes: []string{"text/plain"},
		Skills:             skills,
		Capabilities: a2a.AgentCapabilities{
			Streaming:              true,
			PushNotifications:      false,
			StateTransitionHistory: false,
		},
		PreferredTransport: a2a.TransportProtocolJSONRPC,
		Provider: &a2a.AgentProvider{
			Org: "LangChain",
			URL: "https://github.com/langchain-ai/oap-agent-supervisor",
		},
	}

	// A2A spec section 5.5: advertise the auth scheme when enabled
	if s.authValidator != nil && s.cfg.Auth.Enabled {
		card.SecuritySchemes = a2a.NamedSecuritySchemes{
			"BearerAuth": a2a.HTTPAuthSecurityScheme{
				Scheme:       "bearer",
				BearerFormat: "JWT",
				Description:  "JWT Bearer token authentication",
			},
		}
		card.Security = []a2a.SecurityRequirements{
			{"BearerAuth": a2a.SecuritySchemeScopes{}},
		}
	}

	return card
}

// Start starts the HTTP server and blocks until ctx is canceled or the
// listener fails.
func (s *HTTPServer) Start(ctx context.Context) error {
	handler := s.setupRoutes()

	s.server = &http.Server{
		Addr:         s.cfg.Server.Address(),
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	slog.Info("HTTP server starting", "address", s.cfg.Server.Address())

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	}
}

// Shutdown gracefully shuts down the server.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}

	timeout := time.Duration(s.cfg.Server.ShutdownTimeout) * time.Second
	shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	slog.Info("HTTP server shutting down")
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTP shutdown error: %w", err)
	}

	return nil
}

// Address returns the HTTP server address.
func (s *HTTPServer) Address() string {
	return s.cfg.Server.Address()
}

// setupRoutes configures the HTTP routes.
// A2A spec compliant paths:
//   - GET  /.well-known/agent-card.json  → Supervisor card (a2a-go native)
//   - GET  /agents                       → Discovery
//   - GET  /agents/{name}                → Agent card (a2a-go native)
//   - POST /agents/{name}                → JSON-RPC (a2a-go native)
//   - GET  /agents/{name}/.well-known/agent-card.json → Agent card
func (s *HTTPServer) setupRoutes() http.Handler {
	r := chi.NewRouter()

	// Middleware chain (order: observability -> logging -> cors -> auth)
	// Observability wraps everything so all requests are traced/measured
	if s.observability != nil {
		r.Use(observability.HTTPMiddleware(s.observability.GetTracer("http"), s.observability.GetMetrics()))
	}
	r.Use(loggingMiddleware)
	r.Use(s.corsMiddleware)
	if s.authValidator != nil {
		excludedPaths := []string{
			"/health",
			a2asrv.WellKnownAgentCardPath,
			"/agents",
			s.cfg.Observability.Metrics.Path,
		}
		r.Use(auth.MiddlewareWithExclusions(s.authValidator, excludedPaths))
		slog.Info("Authentication enabled", "excluded_paths", excludedPaths)
	}

	r.Get("/health", s.handleHealth)
	r.Get("/api/schema", s.handleGetSchema)

	if s.observability != nil && s.cfg.Observability.Metrics.Enabled {
		metricsPath := s.cfg.Observability.Metrics.Path
		r.Handle(metricsPath, s.observability.MetricsHandler())
		slog.Info("Metrics endpoint enabled", "path", metricsPath)
	}

	// A2A spec 5.3: server-level well-known agent card
	r.Get(a2asrv.WellKnownAgentCardPath, s.cardHandler.ServeHTTP)

	// Agent discovery
	r.Get("/agents", s.handleDiscovery)

	r.Route("/agents/{name}", func(r chi.Router) {
		r.Use(s.requireKnownAgent)
		r.Post("/", s.jsonrpcHandler.ServeHTTP)
		r.Get("/", s.cardHandler.ServeHTTP)
		r.Get(a2asrv.WellKnownAgentCardPath, s.cardHandler.ServeHTTP)
	})

	return r
}

// requireKnownAgent rejects requests for agents this server does not host.
func (s *HTTPServer) requireKnownAgent(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if name := chi.URLParam(r, "name"); name != s.agentName {
			http.Error(w, "Agent not found: "+name, http.StatusNotFound)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// handleHealth returns server health status.
func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// handleGetSchema generates and returns the JSON Schema for the config file.
// Schema is generated dynamically so it always matches the running build.
func (s *HTTPServer) handleGetSchema(w http.ResponseWriter, r *http.Request) {
	reflector := &jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}

	schema := reflector.Reflect(&config.Config{})
	schema.ID = "https://github.com/langchain-ai/oap-agent-supervisor/schemas/config.json"
	schema.Title = "Agent Supervisor Configuration Schema"
	schema.Description = "Complete configuration schema for the agent supervisor"
	schema.Version = "http://json-schema.org/draft-07/schema#"

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(schema); err != nil {
		slog.Error("Failed to encode schema", "error", err)
		http.Error(w, "Failed to generate schema", http.StatusInternalServerError)
	}
}

// handleDiscovery lists the agents hosted by this server.
func (s *HTTPServer) handleDiscovery(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"agents": []*a2a.AgentCard{s.card},
		"total":  1,
	})
}

// corsMiddleware adds CORS headers from the server configuration.
func (s *HTTPServer) corsMiddleware(next http.Handler) http.Handler {
	cors := s.cfg.Server.CORS
	if cors == nil {
		// Permissive CORS for development
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}

	methods := strings.Join(cors.AllowedMethods, ", ")
	if methods == "" {
		methods = "GET, POST, OPTIONS"
	}
	headers := strings.Join(cors.AllowedHeaders, ", ")
	if headers == "" {
		headers = "Content-Type, Authorization"
	}
	credentials := cors.AllowCredentials != nil && *cors.AllowCredentials

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" {
			for _, allowed := range cors.AllowedOrigins {
				if allowed == "*" || allowed == origin {
					w.Header().Set("Access-Control-Allow-Origin", origin)
					break
				}
			}
		}

		w.Header().Set("Access-Control-Allow-Methods", methods)
		w.Header().Set("Access-Control-Allow-Headers", headers)
		if credentials {
			w.Header().Set("Access-Control-Allow-Credentials", "true")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs requests. The ResponseWriter is not wrapped here
// because that breaks http.Flusher for streamed responses.
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Debug("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
		)
	})
}
