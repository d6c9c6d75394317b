package goTenant

import (
	"context"
	"sync"
)

// component is the lock, notice slot and closed flag shared by the
// organization components. Its mutex is never held across a gateway call.
type component struct {
	c    *core
	name string

	mu     sync.Mutex
	notice Notice
	closed bool
}

// Notice returns the message left by the last operation.
func (p *component) Notice() Notice {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.notice
}

// ClearNotice empties the notice slot.
func (p *component) ClearNotice() {
	p.mu.Lock()
	p.notice = Notice{}
	p.mu.Unlock()
}

// enter starts an operation: it fails after close and clears the notice.
func (p *component) enter() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	p.notice = Notice{}
	return nil
}

// refuse records a client-side rejection.
func (p *component) refuse(err error) error {
	p.mu.Lock()
	p.notice = errorNotice(err)
	p.mu.Unlock()
	return err
}

// settle applies the outcome of a gateway call. apply runs under the lock
// and only on success. Results arriving after close are dropped.
func (p *component) settle(ctx context.Context, op string, err error, apply func()) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.c.discarded(ctx, p.name, op)
		return ErrClosed
	}
	if err != nil {
		p.notice = errorNotice(err)
	} else if apply != nil {
		apply()
	}
	p.mu.Unlock()
	return err
}

func (p *component) close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
}
