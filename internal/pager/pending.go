package pager

import (
	"context"
	"sync"
)

// Pending is the single-shot outcome of a GoTo call.
type Pending struct {
	once sync.Once
	done chan struct{}
	page Page
	err  error
}

func newPending() *Pending {
	return &Pending{done: make(chan struct{})}
}

func (p *Pending) resolve(page Page, err error) {
	p.once.Do(func() {
		p.page = page
		p.err = err
		close(p.done)
	})
}

// Done is closed once the outcome is available.
func (p *Pending) Done() <-chan struct{} { return p.done }

// Wait blocks until the search completes or ctx ends. Giving up on the wait
// does not cancel the search.
func (p *Pending) Wait(ctx context.Context) (Page, error) {
	select {
	case <-p.done:
		return p.page, p.err
	case <-ctx.Done():
		return Page{}, ctx.Err()
	}
}
