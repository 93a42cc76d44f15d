package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGate_ClosedUntilOpen(t *testing.T) {
	g := NewGate()
	assert.False(t, g.Ready())

	_, err := g.Enter()
	assert.ErrorIs(t, err, ErrNotReady)

	g.Open()
	assert.True(t, g.Ready())
	release, err := g.Enter()
	require.NoError(t, err)
	assert.Equal(t, 1, g.InFlight())
	release()
	release()
	assert.Equal(t, 0, g.InFlight(), "release is idempotent")
}

func TestGate_DrainRejectsNewRequests(t *testing.T) {
	g := NewGate()
	g.Open()
	require.NoError(t, g.Drain(context.Background()))

	_, err := g.Enter()
	assert.ErrorIs(t, err, ErrShuttingDown)
	assert.ErrorIs(t, err, ErrNotReady)
	assert.False(t, g.Ready())

	g.Open()
	assert.False(t, g.Ready(), "a draining gate stays closed")
}

func TestGate_DrainWaitsForInFlight(t *testing.T) {
	g := NewGate()
	g.Open()
	release, err := g.Enter()
	require.NoError(t, err)

	var wg sync.WaitGroup
	done := make(chan error, 1)
	wg.Add(1)
	go func() {
		defer wg.Done()
		done <- g.Drain(context.Background())
	}()

	select {
	case <-done:
		t.Fatal("drain returned with a request in flight")
	case <-time.After(20 * time.Millisecond):
	}

	release()
	wg.Wait()
	assert.NoError(t, <-done)
}

func TestGate_DrainTimeout(t *testing.T) {
	g := NewGate()
	g.Open()
	release, err := g.Enter()
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, g.Drain(ctx), ErrDrainTimeout)

	// A second drain still observes the outstanding request.
	ctx2, cancel2 := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel2()
	assert.ErrorIs(t, g.Drain(ctx2), ErrDrainTimeout)
}

func TestGate_DrainBeforeOpen(t *testing.T) {
	g := NewGate()
	require.NoError(t, g.Drain(context.Background()))
	_, err := g.Enter()
	assert.ErrorIs(t, err, ErrShuttingDown)
}
