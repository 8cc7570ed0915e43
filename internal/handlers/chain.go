package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/eldtechnologies/brokenphone/internal/models"
)

// MemberResponse describes one chain member and where it sits in the chain.
type MemberResponse struct {
	models.NodeView
	Position int  `json:"position"` // 1-based registration order
	Tail     bool `json:"tail"`     // plays enter the chain here
}

// Chain returns this node's view of the chain. Salts are never included.
func (h *Handler) Chain(w http.ResponseWriter, r *http.Request) {
	registry := h.node.Registry()

	nodes := registry.Nodes()
	view := models.ChainView{
		Name:          h.node.Name(),
		State:         h.node.State().String(),
		GameTimestamp: registry.GameTimestamp(),
		Nodes:         make([]models.NodeView, 0, len(nodes)),
	}
	if next, ok := h.node.Next(); ok {
		view.Next = next.String()
	}

	for _, n := range nodes {
		view.Nodes = append(view.Nodes, nodeView(n))
	}

	h.JSON(w, http.StatusOK, view)
}

// Member handles chain member lookup by uuid.
func (h *Handler) Member(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid node ID format")
		return
	}

	nodes := h.node.Registry().Nodes()
	for i, n := range nodes {
		if n.UUID == id {
			h.JSON(w, http.StatusOK, MemberResponse{
				NodeView: nodeView(n),
				Position: i + 1,
				Tail:     i == len(nodes)-1,
			})
			return
		}
	}

	h.Error(w, http.StatusNotFound, "node not found")
}

func nodeView(n models.RegisteredNode) models.NodeView {
	return models.NodeView{
		Name: n.Name,
		Host: n.Host,
		Port: n.Port,
		UUID: n.UUID.String(),
		Next: n.LastRegisterResponse.Next().String(),
	}
}
