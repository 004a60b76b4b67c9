package render

import (
	"context"
	"sync"
)

// Loop is a single-consumer callback queue. Callbacks posted from any
// goroutine run one at a time, in order, on the goroutine running Run.
type Loop struct {
	mu    sync.Mutex
	queue []func()
	wake  chan struct{}
}

func NewLoop() *Loop {
	return &Loop{wake: make(chan struct{}, 1)}
}

// Post enqueues fn. It never blocks.
func (l *Loop) Post(fn func()) {
	l.mu.Lock()
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Drain runs everything queued so far and returns the number of callbacks run.
func (l *Loop) Drain() int {
	l.mu.Lock()
	q := l.queue
	l.queue = nil
	l.mu.Unlock()

	for _, fn := range q {
		fn()
	}
	return len(q)
}

// Run executes callbacks until ctx is done.
func (l *Loop) Run(ctx context.Context) {
	for {
		l.Drain()
		select {
		case <-l.wake:
		case <-ctx.Done():
			l.Drain()
			return
		}
	}
}
