package mom

import (
	"context"
	"fmt"
	"sync"
	"weak"

	"github.com/eapache/queue"
)

// DeliveryMode determines how a subscriber receives messages
type DeliveryMode int

const (
	// Callback invokes the subscriber's handler on the publisher's stack
	Callback DeliveryMode = iota
	// Queue appends messages to a FIFO the owner polls with GetMessage
	Queue
)

func (m DeliveryMode) String() string {
	switch m {
	case Callback:
		return "callback"
	case Queue:
		return "queue"
	default:
		return fmt.Sprintf("unknown(%d)", int(m))
	}
}

// Handler receives messages published on a signal. A non-nil error stops
// the fan-out and is returned from Publish.
type Handler[T any] func(ctx context.Context, msg *Message[T]) error

// Bind turns a method expression and its receiver into a Handler. The
// receiver is captured when Bind is called.
//
//	type printer struct{ prefix string }
//	func (p *printer) Print(ctx context.Context, msg *mom.Message[Frame]) error { ... }
//
//	m.Subscribe("a.b.c", mom.Bind(&printer{prefix: "p1"}, (*printer).Print))
//
// A method value (p.Print) works just as well; Bind exists for call sites
// that hold the method expression and the receiver separately.
func Bind[R, T any](receiver R, method func(R, context.Context, *Message[T]) error) Handler[T] {
	return func(ctx context.Context, msg *Message[T]) error {
		return method(receiver, ctx, msg)
	}
}

// Subscriber is the caller's handle to a delivery endpoint bound to one
// signal. The mode is fixed at construction.
//
// A Queue subscriber stays attached while the caller holds this handle, a
// copy of it, or a method value taken from it (sub.GetMessage). Once the
// handle is released (Release) or garbage collected and its queue is empty,
// the next publish on the signal prunes it.
type Subscriber[T any] struct {
	ep    *endpoint[T]
	token *holdToken
}

// holdToken is shared by every copy of a Subscriber. The signal only keeps a
// weak pointer to it.
type holdToken struct {
	id string
}

// endpoint is the part of a subscriber referenced by its signal. Keeping it
// separate from Subscriber lets the signal observe, through a weak pointer,
// whether the caller still holds the handle.
type endpoint[T any] struct {
	id      string
	name    string
	mode    DeliveryMode
	handler Handler[T]
	fifo    *queue.Queue
	guard   sync.Locker

	holder   weak.Pointer[holdToken]
	released bool
	detached bool
}

func newSubscriber[T any](handler Handler[T], o *subscribeOptions[T], guard sync.Locker) *Subscriber[T] {
	ep := &endpoint[T]{
		id:    NewID(),
		name:  o.name,
		guard: guard,
	}
	if handler != nil {
		ep.mode = Callback
		ep.handler = chainInterceptors(handler, o.interceptors)
	} else {
		ep.mode = Queue
		ep.fifo = queue.New()
	}
	sub := &Subscriber[T]{ep: ep, token: &holdToken{id: ep.id}}
	ep.holder = weak.Make(sub.token)
	return sub
}

// ID returns the unique subscriber identifier
func (s *Subscriber[T]) ID() string {
	return s.ep.id
}

// Name returns the optional label given with WithSubscriberName, or the ID
func (s *Subscriber[T]) Name() string {
	return s.ep.Name()
}

// Mode returns the delivery mode
func (s *Subscriber[T]) Mode() DeliveryMode {
	return s.ep.mode
}

// GetMessage pops the oldest queued message, or returns nil if the queue is
// empty. The caller owns the returned reference.
func (s *Subscriber[T]) GetMessage() *Message[T] {
	s.ep.guard.Lock()
	defer s.ep.guard.Unlock()
	if s.ep.pending() == 0 {
		return nil
	}
	return s.ep.fifo.Remove().(*Message[T])
}

// HasMessage reports whether the queue holds at least one message
func (s *Subscriber[T]) HasMessage() bool {
	s.ep.guard.Lock()
	defer s.ep.guard.Unlock()
	return s.ep.pending() > 0
}

// Len returns the number of queued messages
func (s *Subscriber[T]) Len() int {
	s.ep.guard.Lock()
	defer s.ep.guard.Unlock()
	return s.ep.pending()
}

// Release gives up the caller's hold on the subscriber. Pending messages are
// released and a Queue subscriber is pruned by the next publish on its
// signal. Callback subscribers are unaffected.
func (s *Subscriber[T]) Release() {
	s.ep.guard.Lock()
	defer s.ep.guard.Unlock()
	s.ep.released = true
	s.ep.drain()
}

// Attached reports whether the subscriber is still in its signal's list
func (s *Subscriber[T]) Attached() bool {
	s.ep.guard.Lock()
	defer s.ep.guard.Unlock()
	return !s.ep.detached
}

// Name falls back to the id for unnamed subscribers
func (e *endpoint[T]) Name() string {
	if e.name == "" {
		return e.id
	}
	return e.name
}

// handle delivers one message. Callback handlers run synchronously; queue
// subscribers take their own reference to the message.
func (e *endpoint[T]) handle(ctx context.Context, msg *Message[T]) error {
	if e.mode == Callback {
		return e.handler(ctx, msg)
	}
	e.fifo.Add(msg.Retain())
	return nil
}

func (e *endpoint[T]) pending() int {
	if e.fifo == nil {
		return 0
	}
	return e.fifo.Length()
}

// expired reports whether a queue subscriber lost its external holder and
// has nothing left to hand out.
func (e *endpoint[T]) expired() bool {
	if e.mode != Queue || e.pending() > 0 {
		return false
	}
	return e.released || e.holder.Value() == nil
}

// drain releases every queued message
func (e *endpoint[T]) drain() {
	for e.pending() > 0 {
		e.fifo.Remove().(*Message[T]).Release()
	}
}

// detach is called when the subscriber leaves its signal's list
func (e *endpoint[T]) detach() {
	e.detached = true
	e.drain()
}
