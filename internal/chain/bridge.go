package chain

import (
	"context"
	"sync"

	"github.com/eldtechnologies/brokenphone/internal/models"
)

// State is the relay state of the origin.
type State int

const (
	// StateIdle means no play request is outstanding.
	StateIdle State = iota

	// StateForwarding means a play request waits for the chain to complete.
	StateForwarding

	// StateCompleted means the result arrived but the waiter has not
	// collected it yet.
	StateCompleted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateForwarding:
		return "forwarding"
	case StateCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// Ticket is held by the single play request occupying the awaiting slot.
type Ticket struct {
	id   string
	done chan models.PlayResponse
}

// ID returns the play identifier the ticket was issued for.
func (t *Ticket) ID() string {
	return t.id
}

// Bridge pairs one blocking play request with the relay call that completes
// it. It holds at most one pending response at a time.
type Bridge struct {
	mu      sync.Mutex
	state   State
	ticket  *Ticket
	pending models.PlayResponse
}

// NewBridge creates an idle bridge.
func NewBridge() *Bridge {
	return &Bridge{}
}

// State returns the current relay state.
func (b *Bridge) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Begin claims the awaiting slot for shell. It fails with ErrConflict when
// another play request holds it.
func (b *Bridge) Begin(shell models.PlayResponse) (*Ticket, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != StateIdle {
		return nil, ErrConflict
	}

	t := &Ticket{id: shell.ID, done: make(chan models.PlayResponse, 1)}
	b.state = StateForwarding
	b.ticket = t
	b.pending = shell
	return t, nil
}

// Complete takes the pending response, lets finish fill it in, and releases
// the waiter. Only the first call per ticket succeeds; later or unexpected
// calls fail with ErrBadRequest.
func (b *Bridge) Complete(finish func(models.PlayResponse) models.PlayResponse) (models.PlayResponse, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != StateForwarding {
		return models.PlayResponse{}, ErrBadRequest
	}

	resp := finish(b.pending)
	b.pending = models.PlayResponse{}
	b.state = StateCompleted
	b.ticket.done <- resp
	return resp, nil
}

// Wait blocks until t is completed or ctx is done. In both cases the slot is
// released before Wait returns. If completion races with cancellation the
// completed response wins.
func (b *Bridge) Wait(ctx context.Context, t *Ticket) (models.PlayResponse, error) {
	select {
	case resp := <-t.done:
		b.release(t)
		return resp, nil
	case <-ctx.Done():
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.ticket != t {
		return models.PlayResponse{}, newError(KindTimeout, "play request is no longer pending", ctx.Err())
	}
	if b.state == StateCompleted {
		resp := <-t.done
		b.reset()
		return resp, nil
	}
	b.reset()
	return models.PlayResponse{}, newError(KindTimeout, "chain did not complete in time", ctx.Err())
}

// Abort releases the slot held by t without waiting. If the play had
// already completed, the completed response is returned with ok=true.
func (b *Bridge) Abort(t *Ticket) (resp models.PlayResponse, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.ticket != t {
		return models.PlayResponse{}, false
	}
	if b.state == StateCompleted {
		resp, ok = <-t.done, true
	}
	b.reset()
	return resp, ok
}

func (b *Bridge) release(t *Ticket) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ticket == t {
		b.reset()
	}
}

// reset must be called with b.mu held.
func (b *Bridge) reset() {
	b.state = StateIdle
	b.ticket = nil
	b.pending = models.PlayResponse{}
}
