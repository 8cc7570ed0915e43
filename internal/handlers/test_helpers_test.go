package handlers

import (
	"context"

	"github.com/eldtechnologies/brokenphone/internal/models"
	"github.com/eldtechnologies/brokenphone/internal/store"
)

// memPlays is an in-memory play archive.
type memPlays struct {
	plays     []models.PlayResponse
	lastLimit int
}

func (m *memPlays) Close() error                   { return nil }
func (m *memPlays) Ping(ctx context.Context) error { return nil }
func (m *memPlays) Backend() string                { return "memory" }

func (m *memPlays) SavePlay(ctx context.Context, play *models.PlayResponse) error {
	m.plays = append(m.plays, *play)
	return nil
}

func (m *memPlays) GetPlay(ctx context.Context, id string) (*models.PlayResponse, error) {
	for i := range m.plays {
		if m.plays[i].ID == id {
			return &m.plays[i], nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *memPlays) RecentPlays(ctx context.Context, limit int) ([]models.PlayResponse, error) {
	m.lastLimit = limit
	if len(m.plays) < limit {
		limit = len(m.plays)
	}
	return m.plays[:limit], nil
}
