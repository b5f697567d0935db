package ocr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ErrPoolClosed is returned when acquiring from a closed pool.
var ErrPoolClosed = errors.New("ocr pool closed")

// Pool bounds the number of live engine handles. Handles are started lazily
// by the factory and reused; a handle whose task failed is closed and
// replaced, since its internal state can no longer be trusted.
type Pool struct {
	factory Factory
	slots   chan struct{}

	mu     sync.Mutex
	idle   []Engine
	closed bool
}

// NewPool creates a pool that holds at most size engine handles.
func NewPool(size int, factory Factory) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{
		factory: factory,
		slots:   make(chan struct{}, size),
	}
}

// Size is the maximum number of concurrently held handles.
func (p *Pool) Size() int { return cap(p.slots) }

func (p *Pool) acquire(ctx context.Context) (Engine, error) {
	select {
	case p.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		<-p.slots
		return nil, ErrPoolClosed
	}
	if n := len(p.idle); n > 0 {
		e := p.idle[n-1]
		p.idle = p.idle[:n-1]
		p.mu.Unlock()
		return e, nil
	}
	p.mu.Unlock()

	e, err := p.factory()
	if err != nil {
		<-p.slots
		return nil, fmt.Errorf("failed to start ocr engine: %w", err)
	}
	return e, nil
}

func (p *Pool) release(e Engine, healthy bool) {
	defer func() { <-p.slots }()

	p.mu.Lock()
	if healthy && !p.closed {
		p.idle = append(p.idle, e)
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	// The engine may still be busy if its task timed out; close off the
	// caller's path so the slot is freed now.
	go func() {
		if err := e.Close(); err != nil {
			slog.Warn("Failed to close ocr engine.", "error", err)
		}
	}()
}

// With acquires a handle, runs fn with it and releases it, even if fn panics.
func (p *Pool) With(ctx context.Context, fn func(Engine) error) (err error) {
	e, err := p.acquire(ctx)
	if err != nil {
		return err
	}
	healthy := false
	defer func() {
		p.release(e, healthy)
	}()
	err = fn(e)
	healthy = err == nil
	return err
}

// Close shuts down every idle handle. Handles still in use are closed when
// they are released.
func (p *Pool) Close() error {
	p.mu.Lock()
	idle := p.idle
	p.idle = nil
	p.closed = true
	p.mu.Unlock()

	var errs []error
	for _, e := range idle {
		if err := e.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
