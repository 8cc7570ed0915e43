package chain

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/eldtechnologies/brokenphone/internal/crypto"
	"github.com/eldtechnologies/brokenphone/internal/models"
)

// RegisterRequest carries the registration parameters of a node.
type RegisterRequest struct {
	Host string
	Port int
	UUID string
	Salt string
	Name string
}

// missing returns the names of absent required fields.
func (r RegisterRequest) missing() []string {
	var fields []string
	if r.Host == "" {
		fields = append(fields, "host")
	}
	if r.Port <= 0 {
		fields = append(fields, "port")
	}
	if r.UUID == "" {
		fields = append(fields, "uuid")
	}
	if r.Salt == "" {
		fields = append(fields, "salt")
	}
	if r.Name == "" {
		fields = append(fields, "name")
	}
	return fields
}

// validateNext checks that a forwarding target is complete.
func validateNext(next models.Address) error {
	var fields []string
	if next.Host == "" {
		fields = append(fields, "nextHost")
	}
	if next.Port <= 0 {
		fields = append(fields, "nextPort")
	}
	if len(fields) > 0 {
		return &Error{Kind: KindValidation, Message: "parameter constraints violated", Fields: fields}
	}
	return nil
}

// Relink describes the chain repair that follows an unregistration.
type Relink struct {
	// Removed is the node that left the chain.
	Removed models.RegisteredNode

	// Node is the member that used to forward to Removed, with its updated
	// register response. Only meaningful when HasNode is true.
	Node    models.RegisteredNode
	HasNode bool
}

// registryValidation classifies a registration attempt.
type registryValidation int

const (
	registryValid registryValidation = iota
	registryExists
	registryInvalid
)

// Registry is the ordered list of chain members kept by the origin.
// Registration order is chain order: each node forwards to the node
// registered before it and the first node forwards to the origin.
//
// Thread-safety: all methods are safe for concurrent use.
type Registry struct {
	mu            sync.RWMutex
	removing      sync.Mutex
	self          models.Address
	timeout       time.Duration
	nodes         []models.RegisteredNode
	gameTimestamp int
}

// NewRegistry creates an empty registry for the origin at self. timeout is
// the forward timeout advertised to registering nodes.
func NewRegistry(self models.Address, timeout time.Duration) *Registry {
	return &Registry{self: self, timeout: timeout}
}

// Register adds a node to the chain tail. Re-registering with the same uuid
// and salt returns the first response and created=false.
func (r *Registry) Register(req RegisterRequest) (models.RegisterResponse, bool, error) {
	if fields := req.missing(); len(fields) > 0 {
		return models.RegisterResponse{}, false, &Error{
			Kind:    KindValidation,
			Message: "parameter constraints violated",
			Fields:  fields,
		}
	}
	id, err := uuid.Parse(req.UUID)
	if err != nil {
		return models.RegisterResponse{}, false, &Error{
			Kind:    KindValidation,
			Message: "uuid must be a valid UUID",
			Fields:  []string{"uuid"},
			Err:     err,
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	idx, validation := r.validate(id, req.Salt)
	switch validation {
	case registryExists:
		return r.nodes[idx].LastRegisterResponse, false, nil
	case registryInvalid:
		return models.RegisterResponse{}, false, ErrUnauthorized
	}

	resp := r.nextResponse()
	r.nodes = append(r.nodes, models.RegisteredNode{
		Name:                 req.Name,
		Host:                 req.Host,
		Port:                 req.Port,
		UUID:                 id,
		Salt:                 req.Salt,
		LastRegisterResponse: resp,
	})
	return resp, true, nil
}

// RegisterSelf makes the origin the sole chain member. It is a no-op when
// the registry already has members.
func (r *Registry) RegisterSelf(id uuid.UUID, name, salt string) (models.RegisteredNode, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.nodes) > 0 {
		return r.nodes[len(r.nodes)-1], false
	}

	node := models.RegisteredNode{
		Name:                 name,
		Host:                 r.self.Host,
		Port:                 r.self.Port,
		UUID:                 id,
		Salt:                 salt,
		LastRegisterResponse: r.nextResponse(),
	}
	r.nodes = append(r.nodes, node)
	return node, true
}

// Unregister removes a node and links its upstream neighbour to the removed
// node's forwarding target. When there is an upstream neighbour, push is
// called with the planned relink before anything changes; if it fails the
// registry is left untouched and the error is returned, so the same
// credentials can be used to retry. A nil push commits without notifying
// anyone.
func (r *Registry) Unregister(rawID, salt string, push func(Relink) error) (Relink, error) {
	id, err := uuid.Parse(rawID)
	if err != nil || salt == "" {
		return Relink{}, ErrUnauthorized
	}

	// Removals are serialized so a planned relink cannot go stale while its
	// push is in flight. Registrations only append and never touch it.
	r.removing.Lock()
	defer r.removing.Unlock()

	r.mu.Lock()
	idx, validation := r.validate(id, salt)
	if validation != registryExists {
		r.mu.Unlock()
		return Relink{}, ErrUnauthorized
	}
	relink := r.planRelink(idx)
	if !relink.HasNode || push == nil {
		r.commitRelink(idx, relink)
		r.mu.Unlock()
		return relink, nil
	}
	r.mu.Unlock()

	if err := push(relink); err != nil {
		return relink, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	idx, validation = r.validate(id, salt)
	if validation != registryExists || idx+1 >= len(r.nodes) || r.nodes[idx+1].UUID != relink.Node.UUID {
		return relink, newError(KindConflict, "chain changed during unregister", nil)
	}
	r.commitRelink(idx, relink)
	return relink, nil
}

// planRelink computes the repair for removing the node at idx. Must be
// called with r.mu held.
func (r *Registry) planRelink(idx int) Relink {
	relink := Relink{Removed: r.nodes[idx]}
	if idx+1 < len(r.nodes) {
		upstream := r.nodes[idx+1]
		resp := upstream.LastRegisterResponse
		resp.NextHost = relink.Removed.LastRegisterResponse.NextHost
		resp.NextPort = relink.Removed.LastRegisterResponse.NextPort
		upstream.LastRegisterResponse = resp

		relink.Node = upstream
		relink.HasNode = true
	}
	return relink
}

// commitRelink applies a planned relink. Must be called with r.mu held.
func (r *Registry) commitRelink(idx int, relink Relink) {
	if relink.HasNode {
		next := relink.Node.LastRegisterResponse.Next()
		resp := &r.nodes[idx+1].LastRegisterResponse
		resp.NextHost = next.Host
		resp.NextPort = next.Port
	}
	r.nodes = append(r.nodes[:idx], r.nodes[idx+1:]...)
}

// Reconfigure overrides the forwarding target recorded for a node.
func (r *Registry) Reconfigure(rawID, salt string, next models.Address) (models.RegisteredNode, error) {
	if err := validateNext(next); err != nil {
		return models.RegisteredNode{}, err
	}
	id, err := uuid.Parse(rawID)
	if err != nil || salt == "" {
		return models.RegisteredNode{}, ErrUnauthorized
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	idx, validation := r.validate(id, salt)
	if validation != registryExists {
		return models.RegisteredNode{}, ErrUnauthorized
	}

	node := r.nodes[idx]
	resp := node.LastRegisterResponse
	resp.NextHost = next.Host
	resp.NextPort = next.Port
	node.LastRegisterResponse = resp
	r.nodes[idx] = node
	return node, nil
}

// Tail returns the most recently registered node.
func (r *Registry) Tail() (models.RegisteredNode, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.nodes) == 0 {
		return models.RegisteredNode{}, false
	}
	return r.nodes[len(r.nodes)-1], true
}

// Len returns the number of chain members.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.nodes)
}

// Nodes returns a snapshot of the chain in registration order.
func (r *Registry) Nodes() []models.RegisteredNode {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.RegisteredNode, len(r.nodes))
	copy(out, r.nodes)
	return out
}

// GameTimestamp returns the current session marker.
func (r *Registry) GameTimestamp() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.gameTimestamp
}

// validate must be called with r.mu held.
func (r *Registry) validate(id uuid.UUID, salt string) (int, registryValidation) {
	for i, n := range r.nodes {
		if n.UUID != id {
			continue
		}
		if crypto.SaltEqual(n.Salt, salt) {
			return i, registryExists
		}
		return i, registryInvalid
	}
	return -1, registryValid
}

// nextResponse points a new member at the current tail, or at the origin
// when the chain is empty. Must be called with r.mu held.
func (r *Registry) nextResponse() models.RegisterResponse {
	r.gameTimestamp++

	next := r.self
	if len(r.nodes) > 0 {
		next = r.nodes[len(r.nodes)-1].Address()
	}
	return models.RegisterResponse{
		NextHost:      next.Host,
		NextPort:      next.Port,
		Timeout:       int(r.timeout.Milliseconds()),
		GameTimestamp: r.gameTimestamp,
	}
}
