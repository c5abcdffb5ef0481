package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/admitchat/backend/internal/domain"
	"github.com/admitchat/backend/internal/shared"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db        *sql.DB
	sessionMu sync.Mutex // Serializes session writes to prevent SQLITE_BUSY
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS sessions (
		session_id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL UNIQUE,
		slots_json TEXT NOT NULL,
		log_json TEXT NOT NULL,
		intent TEXT NOT NULL DEFAULT '',
		api_response_json TEXT,
		is_complete INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_updated ON sessions(updated_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const sessionColumns = `session_id, user_id, slots_json, log_json, intent,
       api_response_json, is_complete, created_at, updated_at`

// GetSession retrieves a session by its session ID.
func (s *SQLiteStore) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE session_id = ?`
	return s.scanSession(s.db.QueryRowContext(ctx, query, sessionID))
}

// GetSessionByUser retrieves a session by its owning user ID.
func (s *SQLiteStore) GetSessionByUser(ctx context.Context, userID string) (*domain.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE user_id = ?`
	return s.scanSession(s.db.QueryRowContext(ctx, query, userID))
}

func (s *SQLiteStore) scanSession(row *sql.Row) (*domain.Session, error) {
	var session domain.Session
	var slotsJSON, logJSON string
	var apiResponse sql.NullString
	var isComplete int
	var createdAt, updatedAt int64

	err := row.Scan(
		&session.SessionID, &session.UserID, &slotsJSON, &logJSON,
		&session.Intent, &apiResponse, &isComplete, &createdAt, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan session row: %w", err)
	}

	if err := json.Unmarshal([]byte(slotsJSON), &session.Slots); err != nil {
		return nil, fmt.Errorf("decode slots: %w", err)
	}
	if err := json.Unmarshal([]byte(logJSON), &session.Log); err != nil {
		return nil, fmt.Errorf("decode log: %w", err)
	}
	session.APIResponse = apiResponse.String
	session.IsComplete = isComplete != 0
	session.CreatedAt = time.Unix(createdAt, 0)
	session.UpdatedAt = time.Unix(updatedAt, 0)

	return &session, nil
}

// CreateSession inserts a new session record.
func (s *SQLiteStore) CreateSession(ctx context.Context, session *domain.Session) error {
	s.sessionMu.Lock()
	defer s.sessionMu.Unlock()

	slotsJSON, logJSON, apiResponse, err := encodeSession(session)
	if err != nil {
		return err
	}

	query := `
	INSERT INTO sessions (` + sessionColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = s.db.ExecContext(ctx, query,
		session.SessionID, session.UserID, slotsJSON, logJSON,
		session.Intent, apiResponse, boolToInt(session.IsComplete),
		session.CreatedAt.Unix(), session.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// SaveSession persists the full session state.
// Retries with exponential backoff on SQLITE_BUSY.
func (s *SQLiteStore) SaveSession(ctx context.Context, session *domain.Session) error {
	maxRetries := 3
	baseDelay := 100 * time.Millisecond

	var err error
	for i := 0; i < maxRetries; i++ {
		err = s.saveSessionOnce(ctx, session)
		if err == nil {
			return nil
		}
		if shared.IsSQLiteConflictError(err) && i < maxRetries-1 {
			time.Sleep(baseDelay * time.Duration(1<<i))
			continue
		}
		break
	}
	return fmt.Errorf("save session %s: %w", session.SessionID, err)
}

func (s *SQLiteStore) saveSessionOnce(ctx context.Context, session *domain.Session) error {
	s.sessionMu.Lock()
	defer s.sessionMu.Unlock()

	slotsJSON, logJSON, apiResponse, err := encodeSession(session)
	if err != nil {
		return err
	}

	query := `
	UPDATE sessions SET
		slots_json = ?,
		log_json = ?,
		intent = ?,
		api_response_json = ?,
		is_complete = ?,
		updated_at = ?
	WHERE session_id = ?`

	result, err := s.db.ExecContext(ctx, query,
		slotsJSON, logJSON, session.Intent, apiResponse,
		boolToInt(session.IsComplete), time.Now().Unix(), session.SessionID,
	)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("session not found")
	}
	return nil
}

func encodeSession(session *domain.Session) (slotsJSON, logJSON string, apiResponse interface{}, err error) {
	slots, err := json.Marshal(session.Slots)
	if err != nil {
		return "", "", nil, fmt.Errorf("encode slots: %w", err)
	}
	log := session.Log
	if log == nil {
		log = []domain.LogEntry{}
	}
	logs, err := json.Marshal(log)
	if err != nil {
		return "", "", nil, fmt.Errorf("encode log: %w", err)
	}
	if session.APIResponse != "" {
		apiResponse = session.APIResponse
	}
	return string(slots), string(logs), apiResponse, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}
