package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/contextkit/orchestrator/internal/domain"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store and runs migrations.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// For in-memory SQLite, multiple connections create separate databases.
	// Keep a single connection to avoid schema/data disappearing across goroutines.
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			session_id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			provider_id TEXT NOT NULL,
			system_prompt TEXT NOT NULL,
			active_tools TEXT,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS turns (
			session_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			metadata TEXT,
			PRIMARY KEY (session_id, seq),
			FOREIGN KEY (session_id) REFERENCES sessions(session_id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS pending_actions (
			action_id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			tool_id TEXT NOT NULL,
			invocation_id TEXT,
			state TEXT NOT NULL,
			diff_preview TEXT,
			metadata TEXT,
			notes TEXT,
			created_at DATETIME NOT NULL,
			expires_at DATETIME NOT NULL,
			resolved_at DATETIME
		)`,
		`CREATE INDEX IF NOT EXISTS idx_pending_actions_session ON pending_actions(session_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_pending_actions_state ON pending_actions(state, expires_at)`,
		`CREATE TABLE IF NOT EXISTS telemetry_ledgers (
			session_id TEXT PRIMARY KEY,
			records TEXT NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateSession(ctx context.Context, session *domain.AssistantSession) error {
	tools, err := json.Marshal(session.ActiveTools)
	if err != nil {
		return fmt.Errorf("failed to marshal active tools: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (session_id, user_id, provider_id, system_prompt, active_tools, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		session.SessionID, session.UserID, session.ProviderID, session.SystemPrompt,
		string(tools), session.CreatedAt, session.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetSession(ctx context.Context, sessionID string) (*domain.AssistantSession, error) {
	var (
		sess  domain.AssistantSession
		tools sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT session_id, user_id, provider_id, system_prompt, active_tools, created_at, updated_at
		 FROM sessions WHERE session_id = ?`, sessionID).
		Scan(&sess.SessionID, &sess.UserID, &sess.ProviderID, &sess.SystemPrompt, &tools, &sess.CreatedAt, &sess.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if tools.Valid && tools.String != "" {
		if err := json.Unmarshal([]byte(tools.String), &sess.ActiveTools); err != nil {
			return nil, fmt.Errorf("failed to unmarshal active tools: %w", err)
		}
	}
	pending, err := s.listPendingIDs(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	sess.PendingApprovals = pending
	return &sess, nil
}

func (s *SQLiteStore) listPendingIDs(ctx context.Context, sessionID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT action_id FROM pending_actions WHERE session_id = ? AND state = ? ORDER BY created_at`,
		sessionID, string(domain.ApprovalPending))
	if err != nil {
		return nil, fmt.Errorf("failed to list pending action ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan pending action id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *SQLiteStore) TouchSession(ctx context.Context, sessionID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET updated_at = ? WHERE session_id = ?`, at, sessionID)
	if err != nil {
		return fmt.Errorf("failed to touch session: %w", err)
	}
	return nil
}

func (s *SQLiteStore) DeleteSession(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE session_id = ?`, sessionID)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func (s *SQLiteStore) AppendTurn(ctx context.Context, sessionID string, seq int, turn *domain.Turn) error {
	meta, err := json.Marshal(turn.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal turn metadata: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO turns (session_id, seq, role, content, metadata) VALUES (?, ?, ?, ?, ?)`,
		sessionID, seq, string(turn.Role), turn.Content, string(meta))
	if err != nil {
		return fmt.Errorf("failed to append turn: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetTurns(ctx context.Context, sessionID string) ([]domain.Turn, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT role, content, metadata FROM turns WHERE session_id = ? ORDER BY seq`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get turns: %w", err)
	}
	defer rows.Close()

	var turns []domain.Turn
	for rows.Next() {
		var (
			turn domain.Turn
			role string
			meta sql.NullString
		)
		if err := rows.Scan(&role, &turn.Content, &meta); err != nil {
			return nil, fmt.Errorf("failed to scan turn: %w", err)
		}
		turn.Role = domain.Role(role)
		if meta.Valid && meta.String != "" {
			if err := json.Unmarshal([]byte(meta.String), &turn.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal turn metadata: %w", err)
			}
		}
		turns = append(turns, turn)
	}
	return turns, rows.Err()
}

func (s *SQLiteStore) CreatePendingAction(ctx context.Context, action *domain.PendingAction) error {
	meta, err := json.Marshal(action.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal action metadata: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO pending_actions
		 (action_id, session_id, tool_id, invocation_id, state, diff_preview, metadata, notes, created_at, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		action.ActionID, action.SessionID, action.ToolID, nullString(action.InvocationID),
		string(action.State), action.DiffPreview, string(meta), action.Notes,
		action.CreatedAt, action.ExpiresAt)
	if err != nil {
		return fmt.Errorf("failed to create pending action: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetPendingAction(ctx context.Context, actionID string) (*domain.PendingAction, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT action_id, session_id, tool_id, invocation_id, state, diff_preview, metadata, notes, created_at, expires_at, resolved_at
		 FROM pending_actions WHERE action_id = ?`, actionID)
	action, err := scanPendingAction(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get pending action: %w", err)
	}
	return action, nil
}

func (s *SQLiteStore) ListPendingActions(ctx context.Context, sessionID string) ([]domain.PendingAction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT action_id, session_id, tool_id, invocation_id, state, diff_preview, metadata, notes, created_at, expires_at, resolved_at
		 FROM pending_actions WHERE session_id = ? ORDER BY created_at`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending actions: %w", err)
	}
	defer rows.Close()

	var actions []domain.PendingAction
	for rows.Next() {
		action, err := scanPendingAction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pending action: %w", err)
		}
		actions = append(actions, *action)
	}
	return actions, rows.Err()
}

func (s *SQLiteStore) ResolvePendingAction(ctx context.Context, actionID string, state domain.ApprovalState, notes string, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE pending_actions SET state = ?, notes = ?, resolved_at = ?
		 WHERE action_id = ? AND state = ?`,
		string(state), notes, at, actionID, string(domain.ApprovalPending))
	if err != nil {
		return false, fmt.Errorf("failed to resolve pending action: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n > 0, nil
}

func (s *SQLiteStore) UpdatePendingActionMetadata(ctx context.Context, actionID string, metadata map[string]string) error {
	meta, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal action metadata: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE pending_actions SET metadata = ? WHERE action_id = ?`, string(meta), actionID)
	if err != nil {
		return fmt.Errorf("failed to update action metadata: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListExpiredPendingActions(ctx context.Context, now time.Time, limit int) ([]domain.PendingAction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT action_id, session_id, tool_id, invocation_id, state, diff_preview, metadata, notes, created_at, expires_at, resolved_at
		 FROM pending_actions WHERE state = ? AND expires_at <= ? ORDER BY expires_at LIMIT ?`,
		string(domain.ApprovalPending), now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired pending actions: %w", err)
	}
	defer rows.Close()

	var actions []domain.PendingAction
	for rows.Next() {
		action, err := scanPendingAction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pending action: %w", err)
		}
		actions = append(actions, *action)
	}
	return actions, rows.Err()
}

func (s *SQLiteStore) GetTelemetryLedger(ctx context.Context, sessionID string) ([]byte, error) {
	var records string
	err := s.db.QueryRowContext(ctx,
		`SELECT records FROM telemetry_ledgers WHERE session_id = ?`, sessionID).Scan(&records)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get telemetry ledger: %w", err)
	}
	return []byte(records), nil
}

func (s *SQLiteStore) SaveTelemetryLedger(ctx context.Context, sessionID string, records []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO telemetry_ledgers (session_id, records, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET records = excluded.records, updated_at = excluded.updated_at`,
		sessionID, string(records), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to save telemetry ledger: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPendingAction(row rowScanner) (*domain.PendingAction, error) {
	var (
		action       domain.PendingAction
		invocationID sql.NullString
		state        string
		meta         sql.NullString
		resolvedAt   sql.NullTime
	)
	err := row.Scan(&action.ActionID, &action.SessionID, &action.ToolID, &invocationID,
		&state, &action.DiffPreview, &meta, &action.Notes,
		&action.CreatedAt, &action.ExpiresAt, &resolvedAt)
	if err != nil {
		return nil, err
	}
	action.State = domain.ApprovalState(state)
	action.InvocationID = invocationID.String
	if meta.Valid && meta.String != "" {
		if err := json.Unmarshal([]byte(meta.String), &action.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal action metadata: %w", err)
		}
	}
	if resolvedAt.Valid {
		t := resolvedAt.Time
		action.ResolvedAt = &t
	}
	return &action, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
