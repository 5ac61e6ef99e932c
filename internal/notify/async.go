package notify

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	defaultQueueSize       = 64
	defaultDeliveryTimeout = 10 * time.Second
)

// Async delivers messages on a background worker so callers never block on
// the network. Delivery failures are logged and otherwise dropped.
type Async struct {
	next    Notifier
	queue   chan string
	timeout time.Duration
	logger  *zap.Logger

	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
	done      chan struct{}
}

// NewAsync starts the worker. queueSize <= 0 selects the default.
func NewAsync(next Notifier, queueSize int, logger *zap.Logger) *Async {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &Async{
		next:    next,
		queue:   make(chan string, queueSize),
		timeout: defaultDeliveryTimeout,
		logger:  logger,
		done:    make(chan struct{}),
	}
	go a.run()
	return a
}

// Notify enqueues text and returns immediately. A full queue drops the message.
func (a *Async) Notify(_ context.Context, text string) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		a.logger.Warn("notification dropped after close", zap.String("text", text))
		return nil
	}

	select {
	case a.queue <- text:
	default:
		a.logger.Warn("notification queue full, dropping message", zap.String("text", text))
	}
	return nil
}

func (a *Async) run() {
	defer close(a.done)
	for text := range a.queue {
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		if err := a.next.Notify(ctx, text); err != nil {
			a.logger.Warn("notification delivery failed", zap.Error(err))
		}
		cancel()
	}
}

// Close stops accepting messages and waits until the queue drains or ctx ends.
func (a *Async) Close(ctx context.Context) error {
	a.closeOnce.Do(func() {
		a.mu.Lock()
		a.closed = true
		close(a.queue)
		a.mu.Unlock()
	})

	select {
	case <-a.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
