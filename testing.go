package mom

import (
	"context"
	"sync"
	"time"
)

// NewTestMiddleware creates a middleware configured for testing, with
// tracing and metrics disabled.
//
// Example:
//
//	m := mom.NewTestMiddleware[Frame]()
//	defer m.Close()
func NewTestMiddleware[T any](opts ...Option) *Middleware[T] {
	base := []Option{
		WithName("test-mom"),
		WithTracing(false),
		WithMetrics(false, nil),
	}
	return New[T](append(base, opts...)...)
}

// RecordedMessage is a message seen by a Recorder
type RecordedMessage[T any] struct {
	Signal     string
	Subscriber string
	Message    *Message[T]
	Timestamp  time.Time
}

// Recorder is a callback handler that remembers every message it receives.
// Recorded messages are retained; Reset releases them.
//
// Example:
//
//	rec := mom.NewRecorder[Frame]()
//	m.Subscribe("a.b", rec.Handler())
//	m.Publish(ctx, "a.b", &Frame{})
//	rec.Count() // 1
type Recorder[T any] struct {
	mu       sync.Mutex
	messages []RecordedMessage[T]
	err      error
}

// NewRecorder creates an empty recorder
func NewRecorder[T any]() *Recorder[T] {
	return &Recorder[T]{}
}

// FailWith makes the handler return err after recording
func (r *Recorder[T]) FailWith(err error) {
	r.mu.Lock()
	r.err = err
	r.mu.Unlock()
}

// Handler returns the recording handler
func (r *Recorder[T]) Handler() Handler[T] {
	return func(ctx context.Context, msg *Message[T]) error {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.messages = append(r.messages, RecordedMessage[T]{
			Signal:     ContextSignal(ctx),
			Subscriber: ContextSubscriberID(ctx),
			Message:    msg.Retain(),
			Timestamp:  time.Now(),
		})
		return r.err
	}
}

// Messages returns a copy of all recorded messages
func (r *Recorder[T]) Messages() []RecordedMessage[T] {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := make([]RecordedMessage[T], len(r.messages))
	copy(result, r.messages)
	return result
}

// Payloads returns the recorded payloads in delivery order
func (r *Recorder[T]) Payloads() []*T {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := make([]*T, 0, len(r.messages))
	for _, m := range r.messages {
		result = append(result, m.Message.Payload())
	}
	return result
}

// Count returns the number of recorded messages
func (r *Recorder[T]) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.messages)
}

// Reset releases and forgets every recorded message
func (r *Recorder[T]) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.messages {
		m.Message.Release()
	}
	r.messages = nil
}
