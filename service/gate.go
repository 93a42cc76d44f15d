package service

import (
	"context"
	"sync"
)

type gateState int

const (
	gateClosed gateState = iota
	gateOpen
	gateDraining
)

// Gate admits requests once the indexes are ready and tracks in-flight work
// so shutdown can wait for it.
type Gate struct {
	mu       sync.Mutex
	state    gateState
	inFlight int
	idle     chan struct{}
}

// NewGate creates a closed gate.
func NewGate() *Gate {
	return &Gate{idle: make(chan struct{})}
}

// Open starts admitting requests. Opening a draining gate has no effect.
func (g *Gate) Open() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state == gateClosed {
		g.state = gateOpen
	}
}

// Ready reports whether requests are currently admitted.
func (g *Gate) Ready() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state == gateOpen
}

// InFlight returns the number of admitted requests that have not released.
func (g *Gate) InFlight() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.inFlight
}

// Enter admits one request. The returned release func must be called exactly
// once when the request finishes.
func (g *Gate) Enter() (func(), error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	switch g.state {
	case gateClosed:
		return nil, ErrNotReady
	case gateDraining:
		return nil, ErrShuttingDown
	}

	g.inFlight++
	var once sync.Once
	return func() { once.Do(g.release) }, nil
}

func (g *Gate) release() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.inFlight--
	if g.state == gateDraining && g.inFlight == 0 {
		close(g.idle)
	}
}

// Drain stops admitting requests and waits until in-flight requests finish
// or ctx is done. Calling Drain again waits on the same in-flight set.
func (g *Gate) Drain(ctx context.Context) error {
	g.mu.Lock()
	if g.state != gateDraining {
		g.state = gateDraining
		if g.inFlight == 0 {
			close(g.idle)
		}
	}
	g.mu.Unlock()

	select {
	case <-g.idle:
		return nil
	case <-ctx.Done():
		return ErrDrainTimeout
	}
}
