package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eldtechnologies/brokenphone/internal/chain"
	"github.com/eldtechnologies/brokenphone/internal/client"
	"github.com/eldtechnologies/brokenphone/internal/crypto"
	"github.com/eldtechnologies/brokenphone/internal/models"
)

func newTestHandler(t *testing.T) *Handler {
	t.Helper()

	hasher, err := crypto.NewHasher("", "")
	require.NoError(t, err)
	node, err := chain.NewNode(chain.Config{
		Name: "origin",
		Self: models.Address{Host: "localhost", Port: 8080},
	}, hasher, client.New(time.Second), zerolog.Nop())
	require.NoError(t, err)

	return NewHandler(node, nil, zerolog.Nop())
}

func relayBody(t *testing.T, parts map[string]string, contentType string) (*bytes.Buffer, string) {
	t.Helper()

	body := new(bytes.Buffer)
	mw := multipart.NewWriter(body)
	for name, value := range parts {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="`+name+`"`)
		if name == "message" && contentType != "" {
			h.Set("Content-Type", contentType)
		}
		part, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write([]byte(value))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return body, mw.FormDataContentType()
}

func TestStatusFor(t *testing.T) {
	cases := map[chain.ErrorKind]int{
		chain.KindValidation:   http.StatusBadRequest,
		chain.KindUnauthorized: http.StatusUnauthorized,
		chain.KindBadRequest:   http.StatusBadRequest,
		chain.KindConflict:     http.StatusConflict,
		chain.KindTimeout:      http.StatusGatewayTimeout,
		chain.KindForward:      http.StatusBadGateway,
		chain.ErrorKind("?"):   http.StatusInternalServerError,
	}
	for kind, status := range cases {
		assert.Equal(t, status, statusFor(kind), string(kind))
	}
}

func TestProtocolError(t *testing.T) {
	h := newTestHandler(t)

	w := httptest.NewRecorder()
	h.ProtocolError(w, &chain.Error{Kind: chain.KindValidation, Message: "bad", Fields: []string{"port"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	var body ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, ErrorResponse{Error: "bad", Code: "VALIDATION", Fields: []string{"port"}}, body)

	w = httptest.NewRecorder()
	h.ProtocolError(w, errors.New("boom"))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "boom")
}

func TestRegister_CreatedThenAccepted(t *testing.T) {
	h := newTestHandler(t)
	target := "/register-node?host=localhost&port=9001&salt=s1&name=relay-1&uuid=" + uuid.NewString()

	w := httptest.NewRecorder()
	h.Register(w, httptest.NewRequest(http.MethodPost, target, nil))
	assert.Equal(t, http.StatusCreated, w.Code)

	w = httptest.NewRecorder()
	h.Register(w, httptest.NewRequest(http.MethodPost, target, nil))
	assert.Equal(t, http.StatusAccepted, w.Code)

	var resp models.RegisterResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "localhost", resp.NextHost)
	assert.Equal(t, 8080, resp.NextPort)
}

func TestRegister_SanitizesName(t *testing.T) {
	h := newTestHandler(t)
	id := uuid.NewString()

	w := httptest.NewRecorder()
	h.Register(w, httptest.NewRequest(http.MethodPost, "/register-node?host=localhost&port=9001&salt=s&name=%20relay%07one%20&uuid="+id, nil))
	require.Equal(t, http.StatusCreated, w.Code)

	nodes := h.node.Registry().Nodes()
	require.Len(t, nodes, 1)
	assert.Equal(t, "relayone", nodes[0].Name)
}

func TestReadRelay(t *testing.T) {
	body, ct := relayBody(t, map[string]string{
		"message":    "hello",
		"signatures": `{"items":[{"name":"relay-2","hash":"h","contentType":"text/plain","contentLength":5}]}`,
	}, "application/xml")
	r := httptest.NewRequest(http.MethodPost, "/relay", body)
	r.Header.Set("Content-Type", ct)

	msg, sigs, err := readRelay(r)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), msg.Body)
	assert.Equal(t, "application/xml", msg.ContentType)
	require.Equal(t, 1, sigs.Len())
	assert.Equal(t, "relay-2", sigs.Items[0].Name)
}

func TestReadRelay_Defaults(t *testing.T) {
	body, ct := relayBody(t, map[string]string{"message": "hello"}, "")
	r := httptest.NewRequest(http.MethodPost, "/relay", body)
	r.Header.Set("Content-Type", ct)

	msg, sigs, err := readRelay(r)
	require.NoError(t, err)
	assert.Equal(t, "text/plain", msg.ContentType)
	assert.NotNil(t, sigs.Items)
	assert.Zero(t, sigs.Len())
}

func TestRelay_MissingMessagePart(t *testing.T) {
	h := newTestHandler(t)
	body, ct := relayBody(t, map[string]string{"signatures": `{"items":[]}`}, "")
	r := httptest.NewRequest(http.MethodPost, "/relay", body)
	r.Header.Set("Content-Type", ct)

	w := httptest.NewRecorder()
	h.Relay(w, r)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "message part is required")
}

func TestRelay_InvalidSignatures(t *testing.T) {
	h := newTestHandler(t)
	body, ct := relayBody(t, map[string]string{"message": "x", "signatures": "not json"}, "")
	r := httptest.NewRequest(http.MethodPost, "/relay", body)
	r.Header.Set("Content-Type", ct)

	w := httptest.NewRecorder()
	h.Relay(w, r)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPlay_LocalChain(t *testing.T) {
	h := newTestHandler(t)

	r := httptest.NewRequest(http.MethodPost, "/play", bytes.NewBufferString("ping"))
	w := httptest.NewRecorder()
	h.Play(w, r)
	require.Equal(t, http.StatusOK, w.Code)

	var play models.PlayResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&play))
	assert.Equal(t, models.ResultSuccess, play.ContentResult)
	assert.Equal(t, "text/plain", play.ContentType)
	assert.Equal(t, 4, play.OriginalLength)
}

func TestListPlays_BadLimit(t *testing.T) {
	h := newTestHandler(t)
	h.plays = &memPlays{}

	w := httptest.NewRecorder()
	h.ListPlays(w, httptest.NewRequest(http.MethodGet, "/plays?limit=zero", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	h.ListPlays(w, httptest.NewRequest(http.MethodGet, "/plays?limit=100000", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, maxPlayLimit, h.plays.(*memPlays).lastLimit)
}

func TestQueryInt(t *testing.T) {
	assert.Equal(t, 42, queryInt(" 42 "))
	assert.Equal(t, 0, queryInt(""))
	assert.Equal(t, 0, queryInt("x"))
}

func TestMember(t *testing.T) {
	h := newTestHandler(t)
	first, second := uuid.NewString(), uuid.NewString()
	for i, id := range []string{first, second} {
		_, _, err := h.node.Register(chain.RegisterRequest{Host: "localhost", Port: 9001 + i, UUID: id, Salt: "s", Name: "relay"})
		require.NoError(t, err)
	}

	r := chi.NewRouter()
	r.Get("/chain/{id}", h.Member)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/chain/"+first, nil))
	require.Equal(t, http.StatusOK, w.Code)

	var member MemberResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&member))
	assert.Equal(t, 1, member.Position)
	assert.False(t, member.Tail)
	assert.Equal(t, "localhost:8080", member.Next)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/chain/"+second, nil))
	require.NoError(t, json.NewDecoder(w.Body).Decode(&member))
	assert.True(t, member.Tail)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/chain/"+uuid.NewString(), nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/chain/not-a-uuid", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
