package timeline

import (
	"time"

	"github.com/rs/zerolog"
)

// LoadingPolicy decides what a failed fetch does to the loading flag.
type LoadingPolicy int

const (
	// HoldLoading leaves loading set until a fetch succeeds.
	HoldLoading LoadingPolicy = iota
	// ReleaseLoading clears loading after any fetch attempt, failed or not.
	ReleaseLoading
)

type Option func(*Store)

func WithAnnotator(a Annotator) Option {
	return func(s *Store) {
		if a != nil {
			s.annotator = a
		}
	}
}

func WithAttention(a Attention) Option {
	return func(s *Store) {
		s.attention = a
	}
}

func WithVisibility(v Visibility) Option {
	return func(s *Store) {
		s.visibility = v
	}
}

func WithScheduler(fn Scheduler) Option {
	return func(s *Store) {
		if fn != nil {
			s.schedule = fn
		}
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

func WithPageSize(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.pageSize = n
		}
	}
}

// WithFetchTimeout bounds each page fetch. Non-positive values keep the default.
func WithFetchTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func WithLoadingPolicy(p LoadingPolicy) Option {
	return func(s *Store) {
		s.policy = p
	}
}

func WithScrollToBottom(fn func()) Option {
	return func(s *Store) {
		s.scrollToBottom = fn
	}
}

// WithOnChange registers fn to run after every state mutation.
func WithOnChange(fn func()) Option {
	return func(s *Store) {
		s.onChange = fn
	}
}
