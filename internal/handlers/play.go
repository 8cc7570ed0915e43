package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/eldtechnologies/brokenphone/internal/metrics"
	"github.com/eldtechnologies/brokenphone/internal/models"
	"github.com/eldtechnologies/brokenphone/internal/store"
)

const (
	defaultPlayLimit = 20
	maxPlayLimit     = 200
)

// PlaysResponse is the body of GET /plays.
type PlaysResponse struct {
	Plays []models.PlayResponse `json:"plays"`
}

// Play starts a play at this node and waits for the chain to deliver the
// message back.
func (h *Handler) Play(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.Error(w, http.StatusBadRequest, "failed to read body")
		return
	}

	contentType := r.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "text/plain"
	}

	resp, err := h.node.SendMessage(r.Context(), models.Message{Body: body, ContentType: contentType})
	if err != nil {
		h.ProtocolError(w, err)
		return
	}
	annotate(r, func(c zerolog.Context) zerolog.Context {
		return c.Str("play_id", resp.ID).Str("result", resp.ContentResult).Int("hops", resp.Signatures.Len())
	})

	h.archive(r.Context(), resp)
	h.JSON(w, http.StatusOK, resp)
}

// archive stores a completed play. Failures are logged, the play result is
// still returned to the caller.
func (h *Handler) archive(ctx context.Context, play models.PlayResponse) {
	if h.plays == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()

	start := time.Now()
	if err := h.plays.SavePlay(ctx, &play); err != nil {
		h.logger.Error().Err(err).Str("play_id", play.ID).Str("backend", h.plays.Backend()).Msg("failed to archive play")
		return
	}
	metrics.ArchiveLatency.WithLabelValues(h.plays.Backend()).Observe(time.Since(start).Seconds())
}

// ListPlays returns the most recent archived plays.
func (h *Handler) ListPlays(w http.ResponseWriter, r *http.Request) {
	if h.plays == nil {
		h.Error(w, http.StatusServiceUnavailable, "play archive not configured")
		return
	}

	limit := defaultPlayLimit
	if l := r.URL.Query().Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n < 1 {
			h.Error(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxPlayLimit)
	}

	plays, err := h.plays.RecentPlays(r.Context(), limit)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list plays")
		h.Error(w, http.StatusInternalServerError, "archive error")
		return
	}
	h.JSON(w, http.StatusOK, PlaysResponse{Plays: plays})
}

// GetPlay returns one archived play.
func (h *Handler) GetPlay(w http.ResponseWriter, r *http.Request) {
	if h.plays == nil {
		h.Error(w, http.StatusServiceUnavailable, "play archive not configured")
		return
	}

	play, err := h.plays.GetPlay(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, store.ErrNotFound) {
		h.Error(w, http.StatusNotFound, "play not found")
		return
	}
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to load play")
		h.Error(w, http.StatusInternalServerError, "archive error")
		return
	}
	h.JSON(w, http.StatusOK, play)
}
