package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"unicode"

	"github.com/rs/zerolog"

	"github.com/eldtechnologies/brokenphone/internal/chain"
	"github.com/eldtechnologies/brokenphone/internal/store"
)

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	node   *chain.Node
	plays  store.PlayStore
	logger zerolog.Logger
}

// NewHandler creates a new Handler. plays may be nil when no archive is
// configured.
func NewHandler(node *chain.Node, plays store.PlayStore, logger zerolog.Logger) *Handler {
	return &Handler{node: node, plays: plays, logger: logger}
}

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error  string   `json:"error"`
	Code   string   `json:"code,omitempty"`
	Fields []string `json:"fields,omitempty"`
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, ErrorResponse{Error: message})
}

// ProtocolError maps a chain error onto its HTTP status. Anything that is
// not a *chain.Error becomes a 500.
func (h *Handler) ProtocolError(w http.ResponseWriter, err error) {
	var cerr *chain.Error
	if !errors.As(err, &cerr) {
		h.logger.Error().Err(err).Msg("unexpected error")
		h.Error(w, http.StatusInternalServerError, "internal error")
		return
	}

	h.JSON(w, statusFor(cerr.Kind), ErrorResponse{
		Error:  cerr.Message,
		Code:   string(cerr.Kind),
		Fields: cerr.Fields,
	})
}

// annotate adds protocol fields to the request's completion log line.
func annotate(r *http.Request, fn func(zerolog.Context) zerolog.Context) {
	zerolog.Ctx(r.Context()).UpdateContext(fn)
}

func statusFor(kind chain.ErrorKind) int {
	switch kind {
	case chain.KindValidation, chain.KindBadRequest:
		return http.StatusBadRequest
	case chain.KindUnauthorized:
		return http.StatusUnauthorized
	case chain.KindConflict:
		return http.StatusConflict
	case chain.KindTimeout:
		return http.StatusGatewayTimeout
	case chain.KindForward:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// sanitizeName trims and limits name to 100 characters, removing control characters.
func sanitizeName(name string) string {
	name = strings.TrimSpace(name)

	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, name)

	if len(name) > 100 {
		name = name[:100]
	}

	return name
}
