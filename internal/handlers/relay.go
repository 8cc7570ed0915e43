package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/eldtechnologies/brokenphone/internal/client"
	"github.com/eldtechnologies/brokenphone/internal/models"
)

var errNoMessagePart = errors.New("message part is required")

// Relay handles one hop of a relayed message. The body is multipart with a
// "message" part carrying the payload under its own content type and a
// "signatures" part carrying the trail so far.
func (h *Handler) Relay(w http.ResponseWriter, r *http.Request) {
	msg, sigs, err := readRelay(r)
	if err != nil {
		h.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	timestamp := queryInt(r.Header.Get(client.GameTimestampHeader))

	role := "terminal"
	if _, ok := h.node.Next(); ok {
		role = "relay"
	}
	annotate(r, func(c zerolog.Context) zerolog.Context {
		return c.Str("role", role).Int("hops", sigs.Len())
	})

	sig, err := h.node.Relay(r.Context(), msg, sigs, timestamp)
	if err != nil {
		h.ProtocolError(w, err)
		return
	}
	h.JSON(w, http.StatusOK, sig)
}

func readRelay(r *http.Request) (models.Message, models.Signatures, error) {
	msg := models.Message{}
	sigs := models.Signatures{Items: []models.Signature{}}

	mr, err := r.MultipartReader()
	if err != nil {
		return msg, sigs, err
	}

	found := false
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return msg, sigs, err
		}

		switch part.FormName() {
		case "message":
			body, err := io.ReadAll(part)
			if err != nil {
				return msg, sigs, err
			}
			msg.Body = body
			msg.ContentType = partContentType(part.Header.Get("Content-Type"))
			found = true
		case "signatures":
			if err := json.NewDecoder(part).Decode(&sigs); err != nil && err != io.EOF {
				return msg, sigs, errors.New("invalid signatures part")
			}
			if sigs.Items == nil {
				sigs.Items = []models.Signature{}
			}
		}
		part.Close()
	}

	if !found {
		return msg, sigs, errNoMessagePart
	}
	return msg, sigs, nil
}

// partContentType normalizes a part's declared media type, falling back to
// text/plain when none was sent.
func partContentType(ct string) string {
	if ct == "" {
		return "text/plain"
	}
	if _, _, err := mime.ParseMediaType(ct); err != nil {
		return "text/plain"
	}
	return ct
}
