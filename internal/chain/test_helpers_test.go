package chain

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/eldtechnologies/brokenphone/internal/crypto"
	"github.com/eldtechnologies/brokenphone/internal/models"
)

var errUnreachable = errors.New("unreachable")

// memPeer routes peer calls to in-process nodes by address.
type memPeer struct {
	mu     sync.Mutex
	nodes  map[models.Address]*Node
	tamper map[models.Address]func([]byte) []byte

	// calls counts Relay deliveries per destination.
	calls map[models.Address]int
}

func newMemPeer() *memPeer {
	return &memPeer{
		nodes:  make(map[models.Address]*Node),
		tamper: make(map[models.Address]func([]byte) []byte),
		calls:  make(map[models.Address]int),
	}
}

func (p *memPeer) add(n *Node) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nodes[n.cfg.Self] = n
}

func (p *memPeer) remove(addr models.Address) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.nodes, addr)
}

// corruptOnArrival alters the bytes delivered to the node at addr.
func (p *memPeer) corruptOnArrival(addr models.Address, fn func([]byte) []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tamper[addr] = fn
}

func (p *memPeer) lookup(to models.Address) (*Node, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	n, ok := p.nodes[to]
	if !ok {
		return nil, fmt.Errorf("%w: %s", errUnreachable, to)
	}
	return n, nil
}

func (p *memPeer) Relay(ctx context.Context, to models.Address, msg models.Message, sigs models.Signatures, timestamp int) (models.Signature, error) {
	n, err := p.lookup(to)
	if err != nil {
		return models.Signature{}, err
	}
	p.mu.Lock()
	p.calls[to]++
	fn := p.tamper[to]
	p.mu.Unlock()
	if fn != nil {
		msg.Body = fn(msg.Body)
	}
	return n.Relay(ctx, msg, sigs, timestamp)
}

func (p *memPeer) Register(ctx context.Context, to models.Address, req RegisterRequest) (models.RegisterResponse, error) {
	n, err := p.lookup(to)
	if err != nil {
		return models.RegisterResponse{}, err
	}
	resp, _, err := n.Register(req)
	return resp, err
}

func (p *memPeer) Unregister(ctx context.Context, to models.Address, uuid, salt string) error {
	n, err := p.lookup(to)
	if err != nil {
		return err
	}
	return n.Unregister(ctx, uuid, salt)
}

func (p *memPeer) Reconfigure(ctx context.Context, to models.Address, uuid, salt string, next models.Address, timestamp int) error {
	n, err := p.lookup(to)
	if err != nil {
		return err
	}
	return n.Reconfigure(ctx, uuid, salt, next, timestamp)
}

// stubPeer lets a test control relay delivery directly.
type stubPeer struct {
	relay func(ctx context.Context, to models.Address, msg models.Message, sigs models.Signatures, timestamp int) (models.Signature, error)
}

func (p *stubPeer) Relay(ctx context.Context, to models.Address, msg models.Message, sigs models.Signatures, timestamp int) (models.Signature, error) {
	return p.relay(ctx, to, msg, sigs, timestamp)
}

func (p *stubPeer) Register(context.Context, models.Address, RegisterRequest) (models.RegisterResponse, error) {
	return models.RegisterResponse{}, errUnreachable
}

func (p *stubPeer) Unregister(context.Context, models.Address, string, string) error {
	return errUnreachable
}

func (p *stubPeer) Reconfigure(context.Context, models.Address, string, string, models.Address, int) error {
	return errUnreachable
}

func addr(port int) models.Address {
	return models.Address{Host: "localhost", Port: port}
}

func newTestNode(t *testing.T, name string, port int, peer Peer, playTimeout time.Duration) *Node {
	t.Helper()

	salt := base64.StdEncoding.EncodeToString([]byte("salt-" + name))
	hasher, err := crypto.NewHasher(salt, "")
	require.NoError(t, err)

	n, err := NewNode(Config{
		Name:           name,
		Self:           addr(port),
		PlayTimeout:    playTimeout,
		ForwardTimeout: time.Second,
	}, hasher, peer, zerolog.Nop())
	require.NoError(t, err)
	return n
}

func registerReq(id, salt string, port int) RegisterRequest {
	return RegisterRequest{Host: "localhost", Port: port, UUID: id, Salt: salt, Name: fmt.Sprintf("node-%d", port)}
}
