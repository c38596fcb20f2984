// Package attention flashes the terminal title while new messages arrive unseen.
package attention

import (
	"sync"
	"time"
)

const (
	DefaultNotice   = "【New message】"
	DefaultInterval = time.Second
)

// TitleSetter applies a window title. The terminal UI routes it through its renderer so
// title changes never interleave with frame writes.
type TitleSetter func(title string)

type Option func(*TitleFlasher)

func WithNotice(notice string) Option {
	return func(f *TitleFlasher) {
		if notice != "" {
			f.notice = notice
		}
	}
}

func WithInterval(d time.Duration) Option {
	return func(f *TitleFlasher) {
		if d > 0 {
			f.interval = d
		}
	}
}

// TitleFlasher alternates the window title between a notice and the base title.
type TitleFlasher struct {
	set      TitleSetter
	base     string
	notice   string
	interval time.Duration

	// mu is held across Stop, including the final restore, so a Start that follows
	// cannot have its notice overwritten by the base title.
	mu      sync.Mutex
	shaking bool
	stop    chan struct{}
	done    chan struct{}
}

func NewTitleFlasher(set TitleSetter, base string, opts ...Option) *TitleFlasher {
	if set == nil {
		set = func(string) {}
	}
	f := &TitleFlasher{
		set:      set,
		base:     base,
		notice:   DefaultNotice,
		interval: DefaultInterval,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Start begins flashing. It is a no-op while already flashing.
func (f *TitleFlasher) Start() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.shaking {
		return
	}
	f.shaking = true
	f.stop = make(chan struct{})
	f.done = make(chan struct{})
	go f.loop(f.stop, f.done)
}

func (f *TitleFlasher) IsShaking() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.shaking
}

// Stop ends flashing and restores the base title.
func (f *TitleFlasher) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.shaking {
		return
	}
	f.shaking = false
	close(f.stop)
	<-f.done
	f.set(f.base)
}

func (f *TitleFlasher) loop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	showNotice := true
	for {
		if showNotice {
			f.set(f.notice)
		} else {
			f.set(f.base)
		}
		showNotice = !showNotice

		select {
		case <-stop:
			return
		case <-ticker.C:
		}
	}
}
