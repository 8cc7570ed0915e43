package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/eldtechnologies/brokenphone/internal/models"
)

// SQLiteStore archives plays in a local SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
// If dbPath is empty, defaults to "./data/brokenphone.db"
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = "./data/brokenphone.db"
	}

	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}
	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	store := &SQLiteStore{db: db}

	if err := store.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

// initSchema creates tables if they don't exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS plays (
		id TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		content_type TEXT NOT NULL DEFAULT '',
		original_length INTEGER NOT NULL,
		original_hash TEXT NOT NULL,
		content_result TEXT NOT NULL,
		received_hash TEXT NOT NULL DEFAULT '',
		received_length INTEGER NOT NULL,
		received_content_type TEXT NOT NULL DEFAULT '',
		signatures TEXT NOT NULL DEFAULT '{"items":[]}',
		completed_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_plays_completed_at ON plays(completed_at);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Backend returns "sqlite".
func (s *SQLiteStore) Backend() string {
	return "sqlite"
}

// SavePlay inserts or replaces a play record.
func (s *SQLiteStore) SavePlay(ctx context.Context, play *models.PlayResponse) error {
	stampPlay(play)

	sigs, err := json.Marshal(play.Signatures)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO plays (
			id, status, content_type, original_length, original_hash, content_result,
			received_hash, received_length, received_content_type, signatures, completed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, play.ID, play.Status, play.ContentType, play.OriginalLength, play.OriginalHash, play.ContentResult,
		play.ReceivedHash, play.ReceivedLength, play.ReceivedContentType, string(sigs), play.Timestamp)
	return err
}

const sqlitePlayColumns = `
	id, status, content_type, original_length, original_hash, content_result,
	received_hash, received_length, received_content_type, signatures, completed_at`

// GetPlay retrieves a play by ID.
func (s *SQLiteStore) GetPlay(ctx context.Context, id string) (*models.PlayResponse, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sqlitePlayColumns+` FROM plays WHERE id = ?`, id)
	play, err := scanPlay(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return play, err
}

// RecentPlays returns up to limit plays, newest first.
func (s *SQLiteStore) RecentPlays(ctx context.Context, limit int) ([]models.PlayResponse, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+sqlitePlayColumns+`
		FROM plays
		ORDER BY completed_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	plays := []models.PlayResponse{}
	for rows.Next() {
		play, err := scanPlay(rows)
		if err != nil {
			return nil, err
		}
		plays = append(plays, *play)
	}
	return plays, rows.Err()
}

// rowScanner is satisfied by *sql.Row, *sql.Rows and pgx.Row.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanPlay(row rowScanner) (*models.PlayResponse, error) {
	play := &models.PlayResponse{}
	var sigs string
	err := row.Scan(
		&play.ID,
		&play.Status,
		&play.ContentType,
		&play.OriginalLength,
		&play.OriginalHash,
		&play.ContentResult,
		&play.ReceivedHash,
		&play.ReceivedLength,
		&play.ReceivedContentType,
		&sigs,
		&play.Timestamp,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(sigs), &play.Signatures); err != nil {
		return nil, err
	}
	return play, nil
}
