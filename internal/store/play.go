package store

import (
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/eldtechnologies/brokenphone/internal/models"
)

// stampPlay fills in the ID and completion time when missing.
func stampPlay(play *models.PlayResponse) {
	if play.ID == "" {
		play.ID = ulid.Make().String()
	}
	if play.Timestamp == 0 {
		play.Timestamp = time.Now().UnixMilli()
	}
}
