package store

import (
	"context"
	"errors"

	"github.com/eldtechnologies/brokenphone/internal/models"
)

// ErrNotFound is returned when a play is not in the archive.
var ErrNotFound = errors.New("play not found")

// PlayStore archives completed play results.
// RedisStore, SQLiteStore and PostgresStore implement this interface.
type PlayStore interface {
	// Connection management
	Close() error
	Ping(ctx context.Context) error

	// Backend names the store in metrics and health checks.
	Backend() string

	// Play operations
	SavePlay(ctx context.Context, play *models.PlayResponse) error
	GetPlay(ctx context.Context, id string) (*models.PlayResponse, error)
	RecentPlays(ctx context.Context, limit int) ([]models.PlayResponse, error)
}
