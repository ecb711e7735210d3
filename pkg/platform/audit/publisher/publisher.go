// Package publisher fans audit events out to a Store, either synchronously or
// through a bounded background buffer.
package publisher

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	audit "eventpass/pkg/platform/audit"
)

// ErrBufferFull is returned by Emit in async mode when the buffer is saturated.
var ErrBufferFull = errors.New("audit buffer full")

// ErrClosed is returned by Emit after Close.
var ErrClosed = errors.New("audit publisher closed")

type Publisher struct {
	store   audit.Store
	logger  *slog.Logger
	metrics *Metrics
	sampler *Sampler
	now     func() time.Time

	bufferSize int
	inbox      chan audit.Event
	wg         sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

type Option func(*Publisher)

// WithAsyncBuffer makes Emit enqueue into a buffer of size n drained by a
// background goroutine. Emit never blocks on the store in this mode.
func WithAsyncBuffer(n int) Option {
	return func(p *Publisher) {
		if n > 0 {
			p.bufferSize = n
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) { p.logger = logger }
}

func WithMetrics(m *Metrics) Option {
	return func(p *Publisher) { p.metrics = m }
}

// WithSampler thins out operations-category events. Compliance and security
// events are never sampled.
func WithSampler(s *Sampler) Option {
	return func(p *Publisher) { p.sampler = s }
}

func NewPublisher(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{
		store:  store,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.bufferSize > 0 {
		p.inbox = make(chan audit.Event, p.bufferSize)
		p.wg.Add(1)
		go p.drain()
	}
	return p
}

// Emit records event. The category is always derived from the action.
func (p *Publisher) Emit(ctx context.Context, event audit.Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = p.now()
	}
	event.Category = audit.AuditEvent(event.Action).Category()

	if p.sampler != nil && event.Category == audit.CategoryOperations && !p.sampler.ShouldSample(event.Action) {
		if p.metrics != nil {
			p.metrics.IncSampledOut(event.Action)
		}
		return nil
	}

	if p.inbox == nil {
		return p.append(ctx, event)
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case p.inbox <- event:
		return nil
	default:
		if p.metrics != nil {
			p.metrics.IncDropped(event.Action)
		}
		return ErrBufferFull
	}
}

func (p *Publisher) append(ctx context.Context, event audit.Event) error {
	if err := p.store.Append(ctx, event); err != nil {
		if p.metrics != nil {
			p.metrics.IncFailures(event.Action)
		}
		return err
	}
	if p.metrics != nil {
		p.metrics.IncEmitted(event.Action)
	}
	return nil
}

func (p *Publisher) drain() {
	defer p.wg.Done()
	for event := range p.inbox {
		// Detached from the request that produced the event.
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := p.append(ctx, event); err != nil {
			p.logger.Error("failed to persist audit event",
				"action", event.Action,
				"request_id", event.RequestID,
				"error", err,
			)
		}
		cancel()
	}
}

// Close stops accepting events and waits for the buffer to drain.
func (p *Publisher) Close() error {
	if p.inbox == nil {
		return nil
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.inbox)
	p.mu.Unlock()
	p.wg.Wait()
	return nil
}
