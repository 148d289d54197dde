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
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/a2aproject/a2a-go/a2a"
	"github.com/google/uuid"

	"github.com/langchain-ai/oap-agent-supervisor/pkg/agent"
	"github.com/langchain-ai/oap-agent-supervisor/pkg/config"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// sqlService persists sessions in a SQL database. Supported dialects are
// sqlite, postgres, and mysql.
type sqlService struct {
	db      *sql.DB
	dialect string
}

const sessionsTableSQL = `
CREATE TABLE IF NOT EXISTS sessions (
    app_name VARCHAR(255) NOT NULL,
    user_id VARCHAR(255) NOT NULL,
    id VARCHAR(255) NOT NULL,
    state_json TEXT,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (app_name, user_id, id)
);
`

const eventsTableSQLite = `
CREATE TABLE IF NOT EXISTS session_events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    app_name VARCHAR(255) NOT NULL,
    user_id VARCHAR(255) NOT NULL,
    session_id VARCHAR(255) NOT NULL,
    event_id VARCHAR(255) NOT NULL,
    invocation_id VARCHAR(255),
    author VARCHAR(255),
    event_json TEXT NOT NULL,
    sequence_num INTEGER NOT NULL,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_events_session ON session_events(app_name, user_id, session_id, sequence_num);
`

const eventsTablePostgres = `
CREATE TABLE IF NOT EXISTS session_events (
    id SERIAL PRIMARY KEY,
    app_name VARCHAR(255) NOT NULL,
    user_id VARCHAR(255) NOT NULL,
    session_id VARCHAR(255) NOT NULL,
    event_id VARCHAR(255) NOT NULL,
    invocation_id VARCHAR(255),
    author VARCHAR(255),
    event_json TEXT NOT NULL,
    sequence_num BIGINT NOT NULL,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_events_session ON session_events(app_name, user_id, session_id, sequence_num);
`

const eventsTableMySQL = `
CREATE TABLE IF NOT EXISTS session_events (
    id BIGINT PRIMARY KEY AUTO_INCREMENT,
    app_name VARCHAR(255) NOT NULL,
    user_id VARCHAR(255) NOT NULL,
    session_id VARCHAR(255) NOT NULL,
    event_id VARCHAR(255) NOT NULL,
    invocation_id VARCHAR(255),
    author VARCHAR(255),
    event_json TEXT NOT NULL,
    sequence_num BIGINT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    INDEX idx_events_session (app_name, user_id, session_id, sequence_num)
);
`

// NewSQLService creates a session service over an open database connection.
func NewSQLService(db *sql.DB, dialect string) (Service, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	switch dialect {
	case "sqlite", "postgres", "mysql":
	default:
		return nil, fmt.Errorf("unsupported dialect: %s (supported: sqlite, postgres, mysql)", dialect)
	}

	s := &sqlService{db: db, dialect: dialect}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

// NewSQLServiceFromConfig opens the configured database and returns a session
// service over it.
func NewSQLServiceFromConfig(cfg *config.SessionConfig) (Service, error) {
	if cfg == nil {
		return nil, fmt.Errorf("session configuration is required")
	}

	driverName := cfg.Backend
	if driverName == "sqlite" {
		driverName = "sqlite3"
	}

	db, err := sql.Open(driverName, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to %s database: %w", cfg.Backend, err)
	}

	return NewSQLService(db, cfg.Backend)
}

func (s *sqlService) initSchema() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	eventsSQL := eventsTableSQLite
	switch s.dialect {
	case "postgres":
		eventsSQL = eventsTablePostgres
	case "mysql":
		eventsSQL = eventsTableMySQL
	}

	if _, err := s.db.ExecContext(ctx, sessionsTableSQL); err != nil {
		return fmt.Errorf("failed to create sessions table: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, eventsSQL); err != nil {
		return fmt.Errorf("failed to create session_events table: %w", err)
	}
	return nil
}

// rebind converts ? placeholders to $n for postgres.
func (s *sqlService) rebind(query string) string {
	if s.dialect != "postgres" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *sqlService) Get(ctx context.Context, req *GetRequest) (*GetResponse, error) {
	var stateJSON string
	var updatedAt time.Time
	query := s.rebind(`SELECT state_json, updated_at FROM sessions WHERE app_name = ? AND user_id = ? AND id = ?`)
	err := s.db.QueryRowContext(ctx, query, req.AppName, req.UserID, req.SessionID).Scan(&stateJSON, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query session: %w", err)
	}

	state := make(map[string]any)
	if stateJSON != "" {
		if err := json.Unmarshal([]byte(stateJSON), &state); err != nil {
			return nil, fmt.Errorf("failed to unmarshal session state: %w", err)
		}
	}

	events, err := s.loadEvents(ctx, req)
	if err != nil {
		return nil, err
	}

	sess := &memorySession{
		id:             req.SessionID,
		appName:        req.AppName,
		userID:         req.UserID,
		state:          newMemoryState(state),
		events:         &memoryEvents{events: events},
		lastUpdateTime: updatedAt,
	}
	return &GetResponse{Session: sess}, nil
}

func (s *sqlService) loadEvents(ctx context.Context, req *GetRequest) ([]*agent.Event, error) {
	query := `
SELECT event_json FROM session_events
WHERE app_name = ? AND user_id = ? AND session_id = ?
ORDER BY sequence_num ASC
`
	args := []any{req.AppName, req.UserID, req.SessionID}

	if req.NumRecentEvents > 0 {
		// Most recent N, returned oldest first.
		query = `
SELECT event_json FROM (
    SELECT event_json, sequence_num FROM session_events
    WHERE app_name = ? AND user_id = ? AND session_id = ?
    ORDER BY sequence_num DESC
    LIMIT ?
) sub ORDER BY sequence_num ASC
`
		args = append(args, req.NumRecentEvents)
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []*agent.Event
	for rows.Next() {
		var eventJSON string
		if err := rows.Scan(&eventJSON); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		event, err := decodeEvent([]byte(eventJSON))
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}
	return events, nil
}

func (s *sqlService) Create(ctx context.Context, req *CreateRequest) (*CreateResponse, error) {
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	stateJSON, err := json.Marshal(persistableState(req.State))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal session state: %w", err)
	}

	now := time.Now().UTC()
	query := s.rebind(`INSERT INTO sessions (app_name, user_id, id, state_json, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`)
	if _, err := s.db.ExecContext(ctx, query, req.AppName, req.UserID, sessionID, string(stateJSON), now, now); err != nil {
		return nil, fmt.Errorf("failed to insert session: %w", err)
	}

	sess := &memorySession{
		id:             sessionID,
		appName:        req.AppName,
		userID:         req.UserID,
		state:          newMemoryState(req.State),
		events:         &memoryEvents{},
		lastUpdateTime: now,
	}
	return &CreateResponse{Session: sess}, nil
}

// AppendEvent persists a non-partial event and folds its state delta into the
// session. Partial streaming chunks are not stored.
func (s *sqlService) AppendEvent(ctx context.Context, session Session, event *agent.Event) error {
	if event == nil {
		return fmt.Errorf("event is required")
	}
	if event.Partial {
		return nil
	}

	applyStateDelta(session.State(), event)
	if ms, ok := session.(*memorySession); ok {
		ms.appendEvent(event)
	}

	eventJSON, err := json.Marshal(encodeEvent(event))
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var sequenceNum int64
	seqQuery := s.rebind(`SELECT COALESCE(MAX(sequence_num), 0) + 1 FROM session_events WHERE app_name = ? AND user_id = ? AND session_id = ?`)
	if err := tx.QueryRowContext(ctx, seqQuery, session.AppName(), session.UserID(), session.ID()).Scan(&sequenceNum); err != nil {
		return fmt.Errorf("failed to get sequence number: %w", err)
	}

	now := time.Now().UTC()
	insertQuery := s.rebind(`
INSERT INTO session_events (app_name, user_id, session_id, event_id, invocation_id, author, event_json, sequence_num, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
`)
	if _, err := tx.ExecContext(ctx, insertQuery,
		session.AppName(), session.UserID(), session.ID(),
		event.ID, event.InvocationID, event.Author,
		string(eventJSON), sequenceNum, now,
	); err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}

	stateSnapshot := make(map[string]any)
	for k, v := range session.State().All() {
		stateSnapshot[k] = v
	}
	stateJSON, err := json.Marshal(persistableState(stateSnapshot))
	if err != nil {
		return fmt.Errorf("failed to marshal session state: %w", err)
	}

	updateQuery := s.rebind(`UPDATE sessions SET state_json = ?, updated_at = ? WHERE app_name = ? AND user_id = ? AND id = ?`)
	if _, err := tx.ExecContext(ctx, updateQuery, string(stateJSON), now, session.AppName(), session.UserID(), session.ID()); err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *sqlService) List(ctx context.Context, req *ListRequest) (*ListResponse, error) {
	query := s.rebind(`SELECT id, state_json, updated_at FROM sessions WHERE app_name = ? AND user_id = ? ORDER BY updated_at DESC`)
	rows, err := s.db.QueryContext(ctx, query, req.AppName, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var id, stateJSON string
		var updatedAt time.Time
		if err := rows.Scan(&id, &stateJSON, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}

		state := make(map[string]any)
		if stateJSON != "" {
			if err := json.Unmarshal([]byte(stateJSON), &state); err != nil {
				return nil, fmt.Errorf("failed to unmarshal session state: %w", err)
			}
		}

		// Listing returns sessions without event history loaded.
		sessions = append(sessions, &memorySession{
			id:             id,
			appName:        req.AppName,
			userID:         req.UserID,
			state:          newMemoryState(state),
			events:         &memoryEvents{},
			lastUpdateTime: updatedAt,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sessions: %w", err)
	}
	return &ListResponse{Sessions: sessions}, nil
}

func (s *sqlService) Delete(ctx context.Context, req *DeleteRequest) error {
	eventsQuery := s.rebind(`DELETE FROM session_events WHERE app_name = ? AND user_id = ? AND session_id = ?`)
	if _, err := s.db.ExecContext(ctx, eventsQuery, req.AppName, req.UserID, req.SessionID); err != nil {
		return fmt.Errorf("failed to delete session events: %w", err)
	}

	query := s.rebind(`DELETE FROM sessions WHERE app_name = ? AND user_id = ? AND id = ?`)
	if _, err := s.db.ExecContext(ctx, query, req.AppName, req.UserID, req.SessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (s *sqlService) Close() error {
	return s.db.Close()
}

// NewService builds a session service from configuration.
func NewService(cfg *config.SessionConfig) (Service, error) {
	if cfg == nil || cfg.Backend == "" || cfg.Backend == "memory" {
		return InMemoryService(), nil
	}
	return NewSQLServiceFromConfig(cfg)
}

// eventRecord is the JSON shape events are stored in.
type eventRecord struct {
	ID           string                  `json:"id"`
	Timestamp    time.Time               `json:"timestamp"`
	InvocationID string                  `json:"invocation_id,omitempty"`
	Branch       string                  `json:"branch,omitempty"`
	Author       string                  `json:"author,omitempty"`
	Message      *a2a.Message            `json:"message,omitempty"`
	TurnComplete bool                    `json:"turn_complete,omitempty"`
	Interrupted  bool                    `json:"interrupted,omitempty"`
	ErrorCode    string                  `json:"error_code,omitempty"`
	ErrorMessage string                  `json:"error_message,omitempty"`
	ToolCalls    []agent.ToolCallState   `json:"tool_calls,omitempty"`
	ToolResults  []agent.ToolResultState `json:"tool_results,omitempty"`
	StateDelta   map[string]any          `json:"state_delta,omitempty"`
}

func encodeEvent(event *agent.Event) *eventRecord {
	return &eventRecord{
		ID:           event.ID,
		Timestamp:    event.Timestamp,
		InvocationID: event.InvocationID,
		Branch:       event.Branch,
		Author:       event.Author,
		Message:      event.Message,
		TurnComplete: event.TurnComplete,
		Interrupted:  event.Interrupted,
		ErrorCode:    event.ErrorCode,
		ErrorMessage: event.ErrorMessage,
		ToolCalls:    event.ToolCalls,
		ToolResults:  event.ToolResults,
		StateDelta:   event.Actions.StateDelta,
	}
}

func decodeEvent(data []byte) (*agent.Event, error) {
	var record eventRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal event: %w", err)
	}
	return &agent.Event{
		ID:           record.ID,
		Timestamp:    record.Timestamp,
		InvocationID: record.InvocationID,
		Branch:       record.Branch,
		Author:       record.Author,
		Message:      record.Message,
		TurnComplete: record.TurnComplete,
		Interrupted:  record.Interrupted,
		ErrorCode:    record.ErrorCode,
		ErrorMessage: record.ErrorMessage,
		ToolCalls:    record.ToolCalls,
		ToolResults:  record.ToolResults,
		Actions:      agent.EventActions{StateDelta: record.StateDelta},
	}, nil
}

// persistableState strips temp-scoped keys before persistence.
func persistableState(state map[string]any) map[string]any {
	out := make(map[string]any, len(state))
	for k, v := range state {
		if strings.HasPrefix(k, KeyPrefixTemp) {
			continue
		}
		out[k] = v
	}
	return out
}

var _ Service = (*sqlService)(nil)
