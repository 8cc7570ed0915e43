package chain

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eldtechnologies/brokenphone/internal/models"
)

func completeWith(hash string) func(models.PlayResponse) models.PlayResponse {
	return func(p models.PlayResponse) models.PlayResponse {
		p.ReceivedHash = hash
		p.Status = models.StatusCompleted
		return p
	}
}

func TestBridge_Lifecycle(t *testing.T) {
	b := NewBridge()
	assert.Equal(t, StateIdle, b.State())

	ticket, err := b.Begin(models.PlayResponse{ID: "p1"})
	require.NoError(t, err)
	assert.Equal(t, "p1", ticket.ID())
	assert.Equal(t, StateForwarding, b.State())

	_, err = b.Complete(completeWith("h"))
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, b.State())

	resp, err := b.Wait(context.Background(), ticket)
	require.NoError(t, err)
	assert.Equal(t, "p1", resp.ID)
	assert.Equal(t, "h", resp.ReceivedHash)
	assert.Equal(t, StateIdle, b.State())
}

func TestBridge_SecondBeginConflicts(t *testing.T) {
	b := NewBridge()

	_, err := b.Begin(models.PlayResponse{ID: "p1"})
	require.NoError(t, err)

	_, err = b.Begin(models.PlayResponse{ID: "p2"})
	assert.ErrorIs(t, err, ErrConflict)
}

func TestBridge_CompleteWithoutPending(t *testing.T) {
	b := NewBridge()

	_, err := b.Complete(completeWith("h"))
	assert.ErrorIs(t, err, ErrBadRequest)
}

func TestBridge_CompleteOnlyOnce(t *testing.T) {
	b := NewBridge()
	ticket, err := b.Begin(models.PlayResponse{ID: "p1"})
	require.NoError(t, err)

	_, err = b.Complete(completeWith("first"))
	require.NoError(t, err)
	_, err = b.Complete(completeWith("second"))
	assert.ErrorIs(t, err, ErrBadRequest)

	resp, err := b.Wait(context.Background(), ticket)
	require.NoError(t, err)
	assert.Equal(t, "first", resp.ReceivedHash)
}

func TestBridge_WaitTimesOutAndReleases(t *testing.T) {
	b := NewBridge()
	ticket, err := b.Begin(models.PlayResponse{ID: "p1"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = b.Wait(ctx, ticket)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, StateIdle, b.State())

	// A late relay finds nothing waiting.
	_, err = b.Complete(completeWith("late"))
	assert.ErrorIs(t, err, ErrBadRequest)

	_, err = b.Begin(models.PlayResponse{ID: "p2"})
	assert.NoError(t, err)
}

func TestBridge_CompletionWinsOverCancellation(t *testing.T) {
	b := NewBridge()
	ticket, err := b.Begin(models.PlayResponse{ID: "p1"})
	require.NoError(t, err)

	_, err = b.Complete(completeWith("h"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	resp, err := b.Wait(ctx, ticket)
	require.NoError(t, err)
	assert.Equal(t, "h", resp.ReceivedHash)
	assert.Equal(t, StateIdle, b.State())
}

func TestBridge_WaitWakesOnCompletion(t *testing.T) {
	b := NewBridge()
	ticket, err := b.Begin(models.PlayResponse{ID: "p1"})
	require.NoError(t, err)

	go func() {
		time.Sleep(10 * time.Millisecond)
		_, _ = b.Complete(completeWith("h"))
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	resp, err := b.Wait(ctx, ticket)
	require.NoError(t, err)
	assert.Equal(t, "h", resp.ReceivedHash)
}

func TestBridge_Abort(t *testing.T) {
	b := NewBridge()
	ticket, err := b.Begin(models.PlayResponse{ID: "p1"})
	require.NoError(t, err)

	_, ok := b.Abort(ticket)
	assert.False(t, ok)
	assert.Equal(t, StateIdle, b.State())

	ticket, err = b.Begin(models.PlayResponse{ID: "p2"})
	require.NoError(t, err)
	_, err = b.Complete(completeWith("h"))
	require.NoError(t, err)

	resp, ok := b.Abort(ticket)
	assert.True(t, ok)
	assert.Equal(t, "p2", resp.ID)
	assert.Equal(t, StateIdle, b.State())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "forwarding", StateForwarding.String())
	assert.Equal(t, "completed", StateCompleted.String())
	assert.Equal(t, "unknown", State(42).String())
}
