package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/eldtechnologies/brokenphone/internal/chain"
	"github.com/eldtechnologies/brokenphone/internal/client"
	"github.com/eldtechnologies/brokenphone/internal/models"
)

// Register handles node registration. A fresh registration answers 201, a
// repeated one with the same credentials answers 202 with the first
// response.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := chain.RegisterRequest{
		Host: strings.TrimSpace(q.Get("host")),
		Port: queryInt(q.Get("port")),
		UUID: strings.TrimSpace(q.Get("uuid")),
		Salt: q.Get("salt"),
		Name: sanitizeName(q.Get("name")),
	}

	resp, created, err := h.node.Register(req)
	if err != nil {
		h.ProtocolError(w, err)
		return
	}

	status := http.StatusAccepted
	if created {
		status = http.StatusCreated
	}
	h.JSON(w, status, resp)
}

// Unregister removes a node from the chain and relinks its neighbour.
func (h *Handler) Unregister(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if err := h.node.Unregister(r.Context(), q.Get("uuid"), q.Get("salt")); err != nil {
		h.ProtocolError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Reconfigure changes a forwarding target.
func (h *Handler) Reconfigure(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	next := models.Address{
		Host: strings.TrimSpace(q.Get("nextHost")),
		Port: queryInt(q.Get("nextPort")),
	}
	timestamp := queryInt(r.Header.Get(client.GameTimestampHeader))

	if err := h.node.Reconfigure(r.Context(), q.Get("uuid"), q.Get("salt"), next, timestamp); err != nil {
		h.ProtocolError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// queryInt parses an integer parameter; absent or malformed values read as 0.
func queryInt(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return n
}
