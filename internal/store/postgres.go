package store

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/eldtechnologies/brokenphone/internal/models"
)

// PostgresStore archives plays in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL store with a connection pool.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	s := &PostgresStore{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// migrate creates the plays table if it doesn't exist.
func (s *PostgresStore) migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
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
			signatures JSONB NOT NULL DEFAULT '{"items":[]}',
			completed_at BIGINT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_plays_completed_at ON plays(completed_at DESC);
	`)
	return err
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Backend returns "postgres".
func (s *PostgresStore) Backend() string {
	return "postgres"
}

// SavePlay upserts a play record.
func (s *PostgresStore) SavePlay(ctx context.Context, play *models.PlayResponse) error {
	stampPlay(play)

	sigs, err := json.Marshal(play.Signatures)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO plays (
			id, status, content_type, original_length, original_hash, content_result,
			received_hash, received_length, received_content_type, signatures, completed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			content_result = EXCLUDED.content_result,
			received_hash = EXCLUDED.received_hash,
			received_length = EXCLUDED.received_length,
			received_content_type = EXCLUDED.received_content_type,
			signatures = EXCLUDED.signatures,
			completed_at = EXCLUDED.completed_at
	`, play.ID, play.Status, play.ContentType, play.OriginalLength, play.OriginalHash, play.ContentResult,
		play.ReceivedHash, play.ReceivedLength, play.ReceivedContentType, string(sigs), play.Timestamp)
	return err
}

const pgPlayColumns = `
	id, status, content_type, original_length, original_hash, content_result,
	received_hash, received_length, received_content_type, signatures::text, completed_at`

// GetPlay retrieves a play by ID.
func (s *PostgresStore) GetPlay(ctx context.Context, id string) (*models.PlayResponse, error) {
	play, err := scanPlay(s.pool.QueryRow(ctx, `SELECT `+pgPlayColumns+` FROM plays WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return play, err
}

// RecentPlays returns up to limit plays, newest first.
func (s *PostgresStore) RecentPlays(ctx context.Context, limit int) ([]models.PlayResponse, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+pgPlayColumns+`
		FROM plays
		ORDER BY completed_at DESC, id DESC
		LIMIT $1
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
