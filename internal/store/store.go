// Package store persists session histories and run states.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/HOSH19/BurpSuite-CUA/api/schemas"
	"github.com/HOSH19/BurpSuite-CUA/internal/config"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("store is closed")

// Store persists conversation history per session. AppendHistory skips
// entries whose dedup key is already stored for the session and reports how
// many were written. LoadPlan returns nil when the session has no plan.
type Store interface {
	LoadHistory(ctx context.Context, sessionID string) ([]schemas.ConversationEntry, error)
	AppendHistory(ctx context.Context, sessionID string, entries []schemas.ConversationEntry) (int, error)
	SaveRunState(ctx context.Context, sessionID string, state schemas.RunState) error
	SavePlan(ctx context.Context, sessionID string, plan schemas.MasterPlan) error
	LoadPlan(ctx context.Context, sessionID string) (*schemas.MasterPlan, error)
	Close() error
}

// NewFromConfig opens the backend selected by cfg.
func NewFromConfig(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (Store, error) {
	switch cfg.Backend {
	case config.StoreMemory, "":
		return NewMemoryStore(), nil
	case config.StoreSQLite:
		return NewSQLiteStore(ctx, cfg.SQLitePath, logger)
	case config.StorePostgres:
		poolCfg, err := pgxpool.ParseConfig(cfg.Postgres.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse postgres url: %w", err)
		}
		if cfg.Postgres.MaxConns > 0 {
			poolCfg.MaxConns = cfg.Postgres.MaxConns
		}
		pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create postgres pool: %w", err)
		}
		s, err := NewPostgresStore(ctx, pool, logger)
		if err != nil {
			pool.Close()
			return nil, err
		}
		s.closer = pool.Close
		if err := s.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

// encodeEntry serializes an entry for a payload column.
func encodeEntry(e schemas.ConversationEntry) ([]byte, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to encode conversation entry: %w", err)
	}
	return payload, nil
}

func decodeEntry(payload []byte) (schemas.ConversationEntry, error) {
	var e schemas.ConversationEntry
	if err := json.Unmarshal(payload, &e); err != nil {
		return e, fmt.Errorf("failed to decode conversation entry: %w", err)
	}
	return e, nil
}

func decodePlan(payload []byte) (*schemas.MasterPlan, error) {
	var p schemas.MasterPlan
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("failed to decode master plan: %w", err)
	}
	return &p, nil
}
