package chain

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/eldtechnologies/brokenphone/internal/crypto"
	"github.com/eldtechnologies/brokenphone/internal/metrics"
	"github.com/eldtechnologies/brokenphone/internal/models"
)

const (
	defaultPlayTimeout    = 30 * time.Second
	defaultForwardTimeout = 10 * time.Second
)

// Config describes one node process.
type Config struct {
	// Name is the display label written into this node's signatures.
	Name string

	// Self is the address other nodes use to reach this node.
	Self models.Address

	// UUID and Salt are this node's registration credentials. Both are
	// generated when empty.
	UUID string
	Salt string

	// PlayTimeout bounds how long a play request waits for the chain.
	PlayTimeout time.Duration

	// ForwardTimeout bounds a single forward to the next hop. A timeout
	// received from the origin at registration takes precedence.
	ForwardTimeout time.Duration
}

// Node runs the relay protocol for one chain member. The same type serves
// as origin (it owns a Registry and accepts plays) and as relay (it joined
// another origin and forwards to the next hop).
type Node struct {
	cfg      Config
	id       uuid.UUID
	salt     string
	hasher   *crypto.Hasher
	registry *Registry
	bridge   *Bridge
	peer     Peer
	logger   zerolog.Logger

	mu       sync.RWMutex
	upstream models.Address
	next     *models.RegisterResponse
}

// NewNode creates a node. hasher carries the per-process hashing salt.
func NewNode(cfg Config, hasher *crypto.Hasher, peer Peer, logger zerolog.Logger) (*Node, error) {
	if cfg.PlayTimeout <= 0 {
		cfg.PlayTimeout = defaultPlayTimeout
	}
	if cfg.ForwardTimeout <= 0 {
		cfg.ForwardTimeout = defaultForwardTimeout
	}

	id := crypto.NewUUIDv7()
	if cfg.UUID != "" {
		parsed, err := uuid.Parse(cfg.UUID)
		if err != nil {
			return nil, err
		}
		id = parsed
	}

	salt := cfg.Salt
	if salt == "" {
		var err error
		if salt, err = crypto.NewSalt(); err != nil {
			return nil, err
		}
	}

	return &Node{
		cfg:      cfg,
		id:       id,
		salt:     salt,
		hasher:   hasher,
		registry: NewRegistry(cfg.Self, cfg.PlayTimeout),
		bridge:   NewBridge(),
		peer:     peer,
		logger:   logger.With().Str("node", cfg.Name).Logger(),
	}, nil
}

// ID returns the node's registration uuid.
func (n *Node) ID() uuid.UUID {
	return n.id
}

// Name returns the node's display label.
func (n *Node) Name() string {
	return n.cfg.Name
}

// Registry returns the chain registry kept by this node.
func (n *Node) Registry() *Registry {
	return n.registry
}

// State returns the relay state of the play bridge.
func (n *Node) State() State {
	return n.bridge.State()
}

// Next returns this node's forwarding target, if it joined a chain.
func (n *Node) Next() (models.Address, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	if n.next == nil {
		return models.Address{}, false
	}
	return n.next.Next(), true
}

// Register admits a node into the chain kept by this origin.
func (n *Node) Register(req RegisterRequest) (models.RegisterResponse, bool, error) {
	resp, created, err := n.registry.Register(req)
	switch {
	case err != nil:
		metrics.NodesRegistered.WithLabelValues("rejected").Inc()
		n.logger.Warn().Err(err).Str("uuid", req.UUID).Str("host", req.Host).Msg("registration rejected")
		return resp, false, err
	case created:
		metrics.NodesRegistered.WithLabelValues("created").Inc()
		metrics.ChainLength.Set(float64(n.registry.Len()))
		n.logger.Info().
			Str("uuid", req.UUID).
			Str("name", req.Name).
			Str("next", resp.Next().String()).
			Int("game_timestamp", resp.GameTimestamp).
			Msg("node registered")
	default:
		metrics.NodesRegistered.WithLabelValues("exists").Inc()
		n.logger.Info().Str("uuid", req.UUID).Msg("node already registered")
	}
	return resp, created, nil
}

// Relay handles one hop of a relayed message. With a next hop configured
// the message is forwarded with this hop's signature appended. Without one
// this node is the terminal hop and the call completes the awaiting play.
func (n *Node) Relay(ctx context.Context, msg models.Message, sigs models.Signatures, timestamp int) (models.Signature, error) {
	sig := models.Signature{
		Name:          n.cfg.Name,
		Hash:          n.hasher.Sum(msg.Body),
		ContentType:   msg.ContentType,
		ContentLength: len(msg.Body),
	}

	n.mu.RLock()
	next := n.next
	n.mu.RUnlock()

	if next != nil {
		if err := n.forward(ctx, next, msg, sigs.Append(sig), timestamp); err != nil {
			return models.Signature{}, err
		}
		metrics.RelaysHandled.WithLabelValues("relay").Inc()
		return sig, nil
	}

	resp, err := n.bridge.Complete(func(p models.PlayResponse) models.PlayResponse {
		p.Status = models.StatusCompleted
		p.ContentResult = models.ResultFailure
		if sig.Hash == p.OriginalHash {
			p.ContentResult = models.ResultSuccess
		}
		p.ReceivedHash = sig.Hash
		p.ReceivedLength = sig.ContentLength
		p.ReceivedContentType = sig.ContentType
		p.Signatures = sigs
		p.Timestamp = time.Now().UnixMilli()
		return p
	})
	if err != nil {
		n.logger.Warn().Int("game_timestamp", timestamp).Int("hops", sigs.Len()).Msg("relay arrived with no waiting message")
		return models.Signature{}, err
	}

	metrics.RelaysHandled.WithLabelValues("terminal").Inc()
	n.logger.Info().
		Str("play_id", resp.ID).
		Str("result", resp.ContentResult).
		Int("hops", sigs.Len()).
		Msg("play completed")
	return sig, nil
}

func (n *Node) forward(ctx context.Context, next *models.RegisterResponse, msg models.Message, sigs models.Signatures, timestamp int) error {
	timeout := n.cfg.ForwardTimeout
	if next.Timeout > 0 {
		timeout = time.Duration(next.Timeout) * time.Millisecond
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	to := next.Next()
	if _, err := n.peer.Relay(ctx, to, msg, sigs, timestamp); err != nil {
		metrics.ForwardErrors.Inc()
		n.logger.Error().Err(err).Str("next", to.String()).Int("hops", sigs.Len()).Msg("forward failed")
		return newError(KindForward, "forward to "+to.String()+" failed", err)
	}

	n.logger.Debug().Str("next", to.String()).Int("hops", sigs.Len()).Msg("message forwarded")
	return nil
}

// SendMessage starts a play at the origin and blocks until the message has
// travelled the whole chain, the play timeout elapses, or ctx is done.
func (n *Node) SendMessage(ctx context.Context, msg models.Message) (models.PlayResponse, error) {
	start := time.Now()

	if self, ok := n.registry.RegisterSelf(n.id, n.cfg.Name, n.salt); ok {
		metrics.ChainLength.Set(float64(n.registry.Len()))
		n.logger.Info().Str("uuid", self.UUID.String()).Msg("origin registered as sole chain member")
	}

	shell := models.PlayResponse{
		ID:                  crypto.NewPlayID(),
		Status:              models.StatusPending,
		ContentType:         msg.ContentType,
		OriginalLength:      len(msg.Body),
		OriginalHash:        n.hasher.Sum(msg.Body),
		ContentResult:       models.ResultUnknown,
		ReceivedLength:      -1,
		ReceivedContentType: "N/A",
		Signatures:          models.Signatures{Items: []models.Signature{}},
	}

	ticket, err := n.bridge.Begin(shell)
	if err != nil {
		metrics.PlaysTotal.WithLabelValues("conflict").Inc()
		return models.PlayResponse{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, n.cfg.PlayTimeout)
	defer cancel()

	if err := n.dispatch(ctx, msg); err != nil {
		if resp, ok := n.bridge.Abort(ticket); ok {
			return n.played(resp, start), nil
		}
		if ctx.Err() != nil {
			metrics.PlaysTotal.WithLabelValues("timeout").Inc()
			return models.PlayResponse{}, newError(KindTimeout, "chain did not complete in time", err)
		}
		metrics.PlaysTotal.WithLabelValues("error").Inc()
		return models.PlayResponse{}, err
	}

	resp, err := n.bridge.Wait(ctx, ticket)
	if err != nil {
		metrics.PlaysTotal.WithLabelValues("timeout").Inc()
		n.logger.Warn().Str("play_id", ticket.ID()).Dur("elapsed", time.Since(start)).Msg("play timed out")
		return models.PlayResponse{}, err
	}
	return n.played(resp, start), nil
}

// dispatch sends a fresh play to the chain tail. When the origin is the only
// member it relays to itself without a network round trip.
func (n *Node) dispatch(ctx context.Context, msg models.Message) error {
	tail, ok := n.registry.Tail()
	if !ok {
		return newError(KindForward, "chain has no members", nil)
	}
	empty := models.Signatures{Items: []models.Signature{}}
	timestamp := n.registry.GameTimestamp()

	if tail.UUID == n.id {
		_, err := n.Relay(ctx, msg, empty, timestamp)
		return err
	}

	if _, err := n.peer.Relay(ctx, tail.Address(), msg, empty, timestamp); err != nil {
		metrics.ForwardErrors.Inc()
		n.logger.Error().Err(err).Str("tail", tail.Address().String()).Msg("play dispatch failed")
		return newError(KindForward, "forward to "+tail.Address().String()+" failed", err)
	}
	return nil
}

func (n *Node) played(resp models.PlayResponse, start time.Time) models.PlayResponse {
	metrics.PlaysTotal.WithLabelValues(resp.ContentResult).Inc()
	metrics.PlayDuration.Observe(time.Since(start).Seconds())
	return resp
}

// JoinChain registers this node with the origin at upstream and adopts the
// forwarding target it hands out.
func (n *Node) JoinChain(ctx context.Context, upstream models.Address) (models.RegisterResponse, error) {
	resp, err := n.peer.Register(ctx, upstream, RegisterRequest{
		Host: n.cfg.Self.Host,
		Port: n.cfg.Self.Port,
		UUID: n.id.String(),
		Salt: n.salt,
		Name: n.cfg.Name,
	})
	if err != nil {
		return models.RegisterResponse{}, err
	}

	n.mu.Lock()
	n.upstream = upstream
	n.next = &resp
	n.mu.Unlock()

	n.logger.Info().
		Str("upstream", upstream.String()).
		Str("next", resp.Next().String()).
		Int("timeout_ms", resp.Timeout).
		Int("game_timestamp", resp.GameTimestamp).
		Msg("joined chain")
	return resp, nil
}

// LeaveChain unregisters this node from the origin it joined. It is a no-op
// for nodes that never joined a chain.
func (n *Node) LeaveChain(ctx context.Context) error {
	n.mu.Lock()
	upstream, joined := n.upstream, n.next != nil
	n.mu.Unlock()

	if !joined {
		return nil
	}
	if err := n.peer.Unregister(ctx, upstream, n.id.String(), n.salt); err != nil {
		return err
	}

	n.mu.Lock()
	n.next = nil
	n.upstream = models.Address{}
	n.mu.Unlock()

	n.logger.Info().Str("upstream", upstream.String()).Msg("left chain")
	return nil
}

// Unregister removes a member from this origin's chain and tells the member
// that used to forward to it where to forward now. The removal only takes
// effect once that member has accepted its new target.
func (n *Node) Unregister(ctx context.Context, rawID, salt string) error {
	relink, err := n.registry.Unregister(rawID, salt, func(relink Relink) error {
		if relink.Node.UUID == n.id {
			return nil
		}
		next := relink.Node.LastRegisterResponse.Next()
		err := n.peer.Reconfigure(ctx, relink.Node.Address(), relink.Node.UUID.String(), relink.Node.Salt, next, n.registry.GameTimestamp())
		if err != nil {
			n.logger.Error().Err(err).Str("uuid", relink.Node.UUID.String()).Msg("relink failed, member kept")
			return newError(KindForward, "relink of "+relink.Node.Address().String()+" failed", err)
		}
		n.logger.Info().Str("uuid", relink.Node.UUID.String()).Str("next", next.String()).Msg("chain relinked")
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrUnauthorized) {
			n.logger.Warn().Str("uuid", rawID).Msg("unregister rejected")
		}
		return err
	}

	metrics.ChainLength.Set(float64(n.registry.Len()))
	n.logger.Info().Str("uuid", rawID).Str("name", relink.Removed.Name).Msg("node unregistered")
	return nil
}

// Reconfigure changes a forwarding target. When uuid is this node's own
// identity the node's next hop changes; otherwise the registry entry of the
// named member is overridden and the member is told about it.
func (n *Node) Reconfigure(ctx context.Context, rawID, salt string, next models.Address, timestamp int) error {
	if id, err := uuid.Parse(rawID); err == nil && id == n.id {
		if !crypto.SaltEqual(n.salt, salt) {
			return ErrUnauthorized
		}
		if err := validateNext(next); err != nil {
			return err
		}

		n.mu.Lock()
		resp := models.RegisterResponse{GameTimestamp: timestamp}
		if n.next != nil {
			resp = *n.next
		}
		resp.NextHost = next.Host
		resp.NextPort = next.Port
		n.next = &resp
		n.mu.Unlock()

		n.logger.Info().Str("next", next.String()).Int("game_timestamp", timestamp).Msg("forwarding target reconfigured")
		return nil
	}

	node, err := n.registry.Reconfigure(rawID, salt, next)
	if err != nil {
		return err
	}
	if node.UUID == n.id {
		return nil
	}
	if err := n.peer.Reconfigure(ctx, node.Address(), rawID, salt, next, timestamp); err != nil {
		var cerr *Error
		if errors.As(err, &cerr) {
			return err
		}
		return newError(KindForward, "reconfigure of "+node.Address().String()+" failed", err)
	}
	n.logger.Info().Str("uuid", rawID).Str("next", next.String()).Msg("member reconfigured")
	return nil
}
