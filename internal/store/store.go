package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/tabstate/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrNotFound is returned when no snapshot exists for a session.
var ErrNotFound = errors.New("no serialized state found for session")

// DBPool is an interface that abstracts the pgxpool.Pool to allow for mocking in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store persists serialized session state in PostgreSQL so any pool worker
// can pick a session up where another left off.
type Store struct {
	pool DBPool
	log  *zap.Logger
}

// New creates a new store instance and verifies the connection.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Store{
		pool: pool,
		log:  logger.Named("store"),
	}, nil
}

// Save upserts the snapshot for a session.
func (s *Store) Save(ctx context.Context, sessionID string, state *schemas.SerializedState) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode state for session %s: %w", sessionID, err)
	}

	query := `
        INSERT INTO session_states (session_id, state, updated_at)
        VALUES ($1, $2, $3)
        ON CONFLICT (session_id) DO UPDATE SET
            state = EXCLUDED.state,
            updated_at = EXCLUDED.updated_at;
    `
	if _, err := s.pool.Exec(ctx, query, sessionID, payload, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to persist state for session %s: %w", sessionID, err)
	}
	s.log.Debug("Session state persisted.", zap.String("session_id", sessionID))
	return nil
}

// Load fetches the snapshot for a session, or ErrNotFound.
func (s *Store) Load(ctx context.Context, sessionID string) (*schemas.SerializedState, error) {
	query := `SELECT state FROM session_states WHERE session_id = $1;`

	var payload []byte
	err := s.pool.QueryRow(ctx, query, sessionID).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load state for session %s: %w", sessionID, err)
	}

	var state schemas.SerializedState
	if err := json.Unmarshal(payload, &state); err != nil {
		return nil, fmt.Errorf("failed to decode stored state for session %s: %w", sessionID, err)
	}
	return &state, nil
}

// Delete removes the snapshot for a session. Deleting a missing session is
// not an error.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	query := `DELETE FROM session_states WHERE session_id = $1;`
	if _, err := s.pool.Exec(ctx, query, sessionID); err != nil {
		return fmt.Errorf("failed to delete state for session %s: %w", sessionID, err)
	}
	return nil
}
