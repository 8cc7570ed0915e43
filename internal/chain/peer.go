package chain

import (
	"context"

	"github.com/eldtechnologies/brokenphone/internal/models"
)

// Peer is the transport used to talk to other nodes. The HTTP client in
// internal/client implements it; tests use in-memory fakes.
type Peer interface {
	// Relay delivers a message to the node at to and returns that hop's
	// signature.
	Relay(ctx context.Context, to models.Address, msg models.Message, sigs models.Signatures, timestamp int) (models.Signature, error)

	// Register joins the chain kept by the origin at to.
	Register(ctx context.Context, to models.Address, req RegisterRequest) (models.RegisterResponse, error)

	// Unregister leaves the chain kept by the origin at to.
	Unregister(ctx context.Context, to models.Address, uuid, salt string) error

	// Reconfigure tells the node at to to forward to next from now on.
	Reconfigure(ctx context.Context, to models.Address, uuid, salt string, next models.Address, timestamp int) error
}
