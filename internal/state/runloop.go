package state

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// maxPending caps the task backlog. Past it, posts are shed with a log
// line instead of growing the queue without bound.
const maxPending = 16384

// Loop is a thread-safe FIFO task queue with a single draining goroutine.
// Everything that touches the Store, the session state or event emission
// is funneled through it: raw gateway documents, REST completions and
// reconnect requests are posted from their own goroutines and executed
// one at a time on the owner context, so none of that state needs locks.
type Loop struct {
	logger *zap.Logger

	mu     sync.Mutex
	tasks  []func()
	closed bool
	signal chan struct{}
}

func NewLoop(logger *zap.Logger) *Loop {
	return &Loop{
		logger: logger,
		tasks:  make([]func(), 0, 64),
		signal: make(chan struct{}, 1),
	}
}

// Post enqueues fn for execution on the owner context. It is safe to call
// from any goroutine. Returns false if the loop is closed or the backlog
// cap was hit; the task is dropped in both cases.
func (l *Loop) Post(fn func()) bool {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return false
	}
	if len(l.tasks) >= maxPending {
		l.mu.Unlock()
		l.logger.Warn("Task queue is full, shedding task.", zap.Int("pending", maxPending))
		return false
	}
	l.tasks = append(l.tasks, fn)
	l.mu.Unlock()

	select {
	case l.signal <- struct{}{}:
	default:
	}
	return true
}

// Run drains the queue until ctx is cancelled or Close is called. It must
// be the only goroutine ever calling the queued tasks.
func (l *Loop) Run(ctx context.Context) {
	for {
		l.mu.Lock()
		for len(l.tasks) > 0 {
			fn := l.tasks[0]
			l.tasks = l.tasks[1:]
			l.mu.Unlock()
			fn()
			l.mu.Lock()
		}
		closed := l.closed
		l.mu.Unlock()
		if closed {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-l.signal:
		}
	}
}

// Close stops accepting tasks and wakes Run so it can return after
// draining what is already queued.
func (l *Loop) Close() {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()

	select {
	case l.signal <- struct{}{}:
	default:
	}
}
