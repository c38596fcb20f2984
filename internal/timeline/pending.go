package timeline

import "context"

// Pending is an operation started in the background, such as the initial page load.
type Pending struct {
	done chan struct{}
	err  error
}

func startPending(fn func() error) *Pending {
	p := &Pending{done: make(chan struct{})}
	go func() {
		defer close(p.done)
		p.err = fn()
	}()
	return p
}

func (p *Pending) Done() <-chan struct{} {
	return p.done
}

// Err returns the result once Done is closed, nil before.
func (p *Pending) Err() error {
	select {
	case <-p.done:
		return p.err
	default:
		return nil
	}
}

// Wait blocks until the operation finishes or ctx ends.
func (p *Pending) Wait(ctx context.Context) error {
	select {
	case <-p.done:
		return p.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
