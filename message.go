package mom

import (
	"fmt"
	"sync/atomic"
	"time"
)

// Releaser is implemented by payloads that own resources. Release is called
// exactly once, when the last holder of the message lets go of it.
type Releaser interface {
	Release()
}

// Message is a shared, reference-counted handle to a published payload.
//
// Ownership of the payload passes to the middleware when it is handed to
// Publish. The publishing signal holds one reference for the duration of the
// fan-out and every queue entry holds its own. A message popped with
// Subscriber.GetMessage carries a reference owned by the caller, who should
// Release it when done. Callback handlers borrow the signal's reference and
// must Retain the message if they keep it past the call.
type Message[T any] struct {
	id        string
	payload   *T
	published time.Time
	refs      atomic.Int32
}

// newMessage wraps payload with a single reference owned by the caller.
func newMessage[T any](payload *T) *Message[T] {
	m := &Message[T]{
		id:        NewID(),
		payload:   payload,
		published: time.Now(),
	}
	m.refs.Store(1)
	return m
}

// ID returns the unique message identifier
func (m *Message[T]) ID() string { return m.id }

// Payload returns the shared payload. It must not be used after the
// caller's reference has been released.
func (m *Message[T]) Payload() *T { return m.payload }

// Published returns the time the message entered the middleware
func (m *Message[T]) Published() time.Time { return m.published }

// Refs returns the number of live references
func (m *Message[T]) Refs() int { return int(m.refs.Load()) }

// Retain adds a reference and returns the message for chaining. A message
// whose last reference is gone cannot be revived: Retain panics, since its
// payload was already released.
func (m *Message[T]) Retain() *Message[T] {
	for {
		n := m.refs.Load()
		if n <= 0 {
			panic(fmt.Sprintf("mom: Retain on released message %s", m.id))
		}
		if m.refs.CompareAndSwap(n, n+1) {
			return m
		}
	}
}

// Release drops one reference. When the count reaches zero the payload is
// released. Releasing a message that already reached zero is a no-op.
func (m *Message[T]) Release() {
	for {
		n := m.refs.Load()
		if n <= 0 {
			return
		}
		if m.refs.CompareAndSwap(n, n-1) {
			if n == 1 {
				releasePayload(m.payload)
			}
			return
		}
	}
}

// releasePayload frees a payload that never made it into a Message.
func releasePayload[T any](payload *T) {
	if payload == nil {
		return
	}
	if r, ok := any(payload).(Releaser); ok {
		r.Release()
	}
}
