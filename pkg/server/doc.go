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

// Package server exposes the supervisor agent over the A2A protocol.
//
// The Executor implements a2asrv.AgentExecutor: it translates incoming A2A
// messages into supervisor invocations through the runner and streams the
// resulting events back as task status and artifact updates. The HTTPServer
// wraps the executor in the a2a-go JSON-RPC handler and adds discovery,
// health, schema, and metrics endpoints with auth, CORS, logging, and
// tracing middleware.
//
// # Usage
//
//	r, _ := runner.New(runner.Config{
//	    AppName:        "supervisor",
//	    Agent:          sup,
//	    SessionService: session.InMemoryService(),
//	})
//	executor, _ := server.NewExecutor(server.ExecutorConfig{Runner: r})
//	srv := server.NewHTTPServer(cfg, executor)
//	err := srv.Start(ctx)
package server
