// Package client talks to brokenphone nodes over HTTP. It implements
// chain.Peer for node-to-node traffic and adds the operator calls used by
// relayctl.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"time"

	"github.com/eldtechnologies/brokenphone/internal/chain"
	"github.com/eldtechnologies/brokenphone/internal/models"
)

// GameTimestampHeader carries the session marker on relay and reconfigure
// calls.
const GameTimestampHeader = "X-Game-Timestamp"

// Client is a brokenphone HTTP client.
type Client struct {
	HTTPClient *http.Client
	Scheme     string
}

var _ chain.Peer = (*Client)(nil)

// New creates a client. Per-call deadlines come from the context; timeout
// is a backstop for calls made without one.
func New(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		HTTPClient: &http.Client{Timeout: timeout},
		Scheme:     "http",
	}
}

// Relay posts a message and its signature trail to the node at to.
func (c *Client) Relay(ctx context.Context, to models.Address, msg models.Message, sigs models.Signatures, timestamp int) (models.Signature, error) {
	body := new(bytes.Buffer)
	mw := multipart.NewWriter(body)

	contentType := msg.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="message"; filename="message"`)
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	if err != nil {
		return models.Signature{}, err
	}
	if _, err := part.Write(msg.Body); err != nil {
		return models.Signature{}, err
	}

	h = make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="signatures"`)
	h.Set("Content-Type", "application/json")
	part, err = mw.CreatePart(h)
	if err != nil {
		return models.Signature{}, err
	}
	if err := json.NewEncoder(part).Encode(sigs); err != nil {
		return models.Signature{}, err
	}
	if err := mw.Close(); err != nil {
		return models.Signature{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url(to, "/relay", nil), body)
	if err != nil {
		return models.Signature{}, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set(GameTimestampHeader, strconv.Itoa(timestamp))

	var sig models.Signature
	if err := c.do(req, &sig); err != nil {
		return models.Signature{}, err
	}
	return sig, nil
}

// Register joins the chain kept by the origin at to.
func (c *Client) Register(ctx context.Context, to models.Address, r chain.RegisterRequest) (models.RegisterResponse, error) {
	q := url.Values{}
	q.Set("host", r.Host)
	q.Set("port", strconv.Itoa(r.Port))
	q.Set("uuid", r.UUID)
	q.Set("salt", r.Salt)
	q.Set("name", r.Name)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url(to, "/register-node", q), nil)
	if err != nil {
		return models.RegisterResponse{}, err
	}

	var resp models.RegisterResponse
	if err := c.do(req, &resp); err != nil {
		return models.RegisterResponse{}, err
	}
	return resp, nil
}

// Unregister leaves the chain kept by the origin at to.
func (c *Client) Unregister(ctx context.Context, to models.Address, id, salt string) error {
	q := url.Values{}
	q.Set("uuid", id)
	q.Set("salt", salt)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url(to, "/unregister-node", q), nil)
	if err != nil {
		return err
	}
	return c.do(req, nil)
}

// Reconfigure tells the node at to to forward to next.
func (c *Client) Reconfigure(ctx context.Context, to models.Address, id, salt string, next models.Address, timestamp int) error {
	q := url.Values{}
	q.Set("uuid", id)
	q.Set("salt", salt)
	q.Set("nextHost", next.Host)
	q.Set("nextPort", strconv.Itoa(next.Port))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url(to, "/reconfigure", q), nil)
	if err != nil {
		return err
	}
	req.Header.Set(GameTimestampHeader, strconv.Itoa(timestamp))
	return c.do(req, nil)
}

// Play starts a play at the origin at to and waits for the result.
func (c *Client) Play(ctx context.Context, to models.Address, body []byte, contentType string) (models.PlayResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url(to, "/play", nil), bytes.NewReader(body))
	if err != nil {
		return models.PlayResponse{}, err
	}
	if contentType == "" {
		contentType = "text/plain"
	}
	req.Header.Set("Content-Type", contentType)

	var resp models.PlayResponse
	if err := c.do(req, &resp); err != nil {
		return models.PlayResponse{}, err
	}
	return resp, nil
}

// Chain fetches the registry snapshot of the node at to.
func (c *Client) Chain(ctx context.Context, to models.Address) (models.ChainView, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url(to, "/chain", nil), nil)
	if err != nil {
		return models.ChainView{}, err
	}

	var view models.ChainView
	if err := c.do(req, &view); err != nil {
		return models.ChainView{}, err
	}
	return view, nil
}

func (c *Client) url(to models.Address, path string, q url.Values) string {
	u := url.URL{Scheme: c.Scheme, Host: to.String(), Path: path}
	if q != nil {
		u.RawQuery = q.Encode()
	}
	return u.String()
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return statusError(req, resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", req.URL.Path, err)
	}
	return nil
}

// statusError turns an error response back into a *chain.Error when the
// body carries an error code or the status maps onto a protocol error kind.
func statusError(req *http.Request, resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}
	_ = json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&body)
	msg := body.Error
	if msg == "" {
		msg = resp.Status
	}

	kind, ok := chain.ErrorKind(body.Code), body.Code != ""
	if !ok {
		kind, ok = kindForStatus(resp.StatusCode)
	}
	if !ok {
		return fmt.Errorf("%s %s: %s", req.Method, req.URL.Path, msg)
	}
	return &chain.Error{Kind: kind, Message: fmt.Sprintf("%s %s: %s", req.Method, req.URL.Path, msg)}
}

func kindForStatus(status int) (chain.ErrorKind, bool) {
	switch status {
	case http.StatusUnauthorized:
		return chain.KindUnauthorized, true
	case http.StatusConflict:
		return chain.KindConflict, true
	case http.StatusGatewayTimeout:
		return chain.KindTimeout, true
	case http.StatusBadGateway:
		return chain.KindForward, true
	case http.StatusBadRequest:
		return chain.KindBadRequest, true
	default:
		return "", false
	}
}
