package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/HOSH19/BurpSuite-CUA/api/schemas"
	"github.com/HOSH19/BurpSuite-CUA/internal/conversation"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS conversation_entries (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id TEXT NOT NULL,
    dedup_key TEXT NOT NULL,
    role TEXT NOT NULL,
    payload TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    UNIQUE (session_id, dedup_key)
);
CREATE TABLE IF NOT EXISTS run_states (
    session_id TEXT PRIMARY KEY,
    payload TEXT NOT NULL,
    updated_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS session_plans (
    session_id TEXT PRIMARY KEY,
    payload TEXT NOT NULL,
    created_at INTEGER NOT NULL
);
`

// SQLiteStore persists histories in an embedded SQLite file.
type SQLiteStore struct {
	db  *sql.DB
	log *zap.Logger
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens path and creates the schema if needed.
func NewSQLiteStore(ctx context.Context, path string, logger *zap.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single writer keeps SQLite from reporting SQLITE_BUSY under the loop.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return &SQLiteStore{db: db, log: logger.Named("store.sqlite")}, nil
}

func (s *SQLiteStore) LoadHistory(ctx context.Context, sessionID string) ([]schemas.ConversationEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM conversation_entries WHERE session_id = ? ORDER BY id ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var entries []schemas.ConversationEntry
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		e, err := decodeEntry([]byte(payload))
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return entries, nil
}

func (s *SQLiteStore) AppendHistory(ctx context.Context, sessionID string, entries []schemas.ConversationEntry) (int, error) {
	if len(entries) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
			s.log.Error("Failed to rollback transaction", zap.Error(rbErr))
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `
        INSERT OR IGNORE INTO conversation_entries (session_id, dedup_key, role, payload, created_at)
        VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().Unix()
	written := 0
	for i, e := range entries {
		payload, err := encodeEntry(e)
		if err != nil {
			return 0, err
		}
		res, err := stmt.ExecContext(ctx, sessionID, conversation.DedupKey(e), string(e.Role), string(payload), now)
		if err != nil {
			return 0, fmt.Errorf("failed to insert conversation entry (index %d): %w", i, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			written += int(n)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return written, nil
}

func (s *SQLiteStore) SaveRunState(ctx context.Context, sessionID string, state schemas.RunState) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode run state: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
        INSERT INTO run_states (session_id, payload, updated_at) VALUES (?, ?, ?)
        ON CONFLICT (session_id) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
		sessionID, string(payload), state.UpdatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to save run state: %w", err)
	}
	return nil
}

// LoadRunState returns the last saved state for sessionID.
func (s *SQLiteStore) LoadRunState(ctx context.Context, sessionID string) (schemas.RunState, bool, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM run_states WHERE session_id = ?`, sessionID).Scan(&payload)
	if err == sql.ErrNoRows {
		return schemas.RunState{}, false, nil
	}
	if err != nil {
		return schemas.RunState{}, false, fmt.Errorf("failed to load run state: %w", err)
	}
	var state schemas.RunState
	if err := json.Unmarshal([]byte(payload), &state); err != nil {
		return schemas.RunState{}, false, fmt.Errorf("failed to decode run state: %w", err)
	}
	return state, true, nil
}

func (s *SQLiteStore) SavePlan(ctx context.Context, sessionID string, plan schemas.MasterPlan) error {
	payload, err := json.Marshal(plan)
	if err != nil {
		return fmt.Errorf("failed to encode master plan: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
        INSERT INTO session_plans (session_id, payload, created_at) VALUES (?, ?, ?)
        ON CONFLICT (session_id) DO UPDATE SET payload = excluded.payload, created_at = excluded.created_at`,
		sessionID, string(payload), plan.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to save master plan: %w", err)
	}
	return nil
}

func (s *SQLiteStore) LoadPlan(ctx context.Context, sessionID string) (*schemas.MasterPlan, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM session_plans WHERE session_id = ?`, sessionID).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load master plan: %w", err)
	}
	return decodePlan([]byte(payload))
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
