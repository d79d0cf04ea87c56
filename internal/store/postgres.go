package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/HOSH19/BurpSuite-CUA/api/schemas"
	"github.com/HOSH19/BurpSuite-CUA/internal/conversation"
)

// DBPool abstracts pgxpool.Pool so tests can substitute a mock.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const (
	sqlCreateEntries = `
        CREATE TABLE IF NOT EXISTS conversation_entries (
            id BIGSERIAL PRIMARY KEY,
            session_id TEXT NOT NULL,
            dedup_key TEXT NOT NULL,
            role TEXT NOT NULL,
            payload JSONB NOT NULL,
            created_at TIMESTAMPTZ NOT NULL,
            UNIQUE (session_id, dedup_key)
        );
    `
	sqlCreateRunStates = `
        CREATE TABLE IF NOT EXISTS run_states (
            session_id TEXT PRIMARY KEY,
            payload JSONB NOT NULL,
            updated_at TIMESTAMPTZ NOT NULL
        );
    `
	sqlCreatePlans = `
        CREATE TABLE IF NOT EXISTS session_plans (
            session_id TEXT PRIMARY KEY,
            payload JSONB NOT NULL,
            created_at TIMESTAMPTZ NOT NULL
        );
    `
	sqlInsertEntry = `
        INSERT INTO conversation_entries (session_id, dedup_key, role, payload, created_at)
        VALUES ($1, $2, $3, $4, $5)
        ON CONFLICT (session_id, dedup_key) DO NOTHING;
    `
	sqlSelectEntries = `
        SELECT payload
        FROM conversation_entries
        WHERE session_id = $1
        ORDER BY id ASC;
    `
	sqlUpsertRunState = `
        INSERT INTO run_states (session_id, payload, updated_at)
        VALUES ($1, $2, $3)
        ON CONFLICT (session_id) DO UPDATE SET
            payload = EXCLUDED.payload,
            updated_at = EXCLUDED.updated_at;
    `
	sqlUpsertPlan = `
        INSERT INTO session_plans (session_id, payload, created_at)
        VALUES ($1, $2, $3)
        ON CONFLICT (session_id) DO UPDATE SET
            payload = EXCLUDED.payload,
            created_at = EXCLUDED.created_at;
    `
	sqlSelectPlan = `
        SELECT payload
        FROM session_plans
        WHERE session_id = $1;
    `
)

// PostgresStore persists histories in PostgreSQL.
type PostgresStore struct {
	pool   DBPool
	log    *zap.Logger
	closer func()
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore verifies the connection and returns a store on pool.
func NewPostgresStore(ctx context.Context, pool DBPool, logger *zap.Logger) (*PostgresStore, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &PostgresStore{
		pool: pool,
		log:  logger.Named("store.postgres"),
	}, nil
}

// EnsureSchema creates the tables if they do not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	for _, stmt := range []string{sqlCreateEntries, sqlCreateRunStates, sqlCreatePlans} {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) LoadHistory(ctx context.Context, sessionID string) ([]schemas.ConversationEntry, error) {
	rows, err := s.pool.Query(ctx, sqlSelectEntries, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var entries []schemas.ConversationEntry
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		e, err := decodeEntry(payload)
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

// AppendHistory inserts entries in one transaction with a single batch.
// Rows that hit the unique key are skipped by the database.
func (s *PostgresStore) AppendHistory(ctx context.Context, sessionID string, entries []schemas.ConversationEntry) (int, error) {
	if len(entries) == 0 {
		return 0, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			s.log.Error("Failed to rollback transaction", zap.Error(rollbackErr))
		}
	}()

	batch := &pgx.Batch{}
	now := time.Now().UTC()
	for _, e := range entries {
		payload, err := encodeEntry(e)
		if err != nil {
			return 0, err
		}
		batch.Queue(sqlInsertEntry, sessionID, conversation.DedupKey(e), string(e.Role), payload, now)
	}

	written, err := s.execBatch(ctx, tx, batch, len(entries))
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return written, nil
}

func (s *PostgresStore) execBatch(ctx context.Context, tx pgx.Tx, batch *pgx.Batch, n int) (int, error) {
	br := tx.SendBatch(ctx, batch)
	if br == nil {
		return 0, fmt.Errorf("failed to send batch: batch results is nil")
	}
	defer func() {
		_ = br.Close()
	}()

	written := 0
	for i := 0; i < n; i++ {
		tag, err := br.Exec()
		if err != nil {
			return 0, fmt.Errorf("failed to insert conversation entry (index %d): %w", i, err)
		}
		written += int(tag.RowsAffected())
	}
	return written, nil
}

func (s *PostgresStore) SaveRunState(ctx context.Context, sessionID string, state schemas.RunState) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode run state: %w", err)
	}
	if _, err := s.pool.Exec(ctx, sqlUpsertRunState, sessionID, payload, state.UpdatedAt.UTC()); err != nil {
		return fmt.Errorf("failed to save run state: %w", err)
	}
	return nil
}

func (s *PostgresStore) SavePlan(ctx context.Context, sessionID string, plan schemas.MasterPlan) error {
	payload, err := json.Marshal(plan)
	if err != nil {
		return fmt.Errorf("failed to encode master plan: %w", err)
	}
	if _, err := s.pool.Exec(ctx, sqlUpsertPlan, sessionID, payload, plan.CreatedAt.UTC()); err != nil {
		return fmt.Errorf("failed to save master plan: %w", err)
	}
	return nil
}

func (s *PostgresStore) LoadPlan(ctx context.Context, sessionID string) (*schemas.MasterPlan, error) {
	rows, err := s.pool.Query(ctx, sqlSelectPlan, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query master plan: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("failed to query master plan: %w", err)
		}
		return nil, nil
	}
	var payload []byte
	if err := rows.Scan(&payload); err != nil {
		return nil, fmt.Errorf("failed to scan master plan row: %w", err)
	}
	return decodePlan(payload)
}

// Close releases the pool when the store owns it.
func (s *PostgresStore) Close() error {
	if s.closer != nil {
		s.closer()
	}
	return nil
}
