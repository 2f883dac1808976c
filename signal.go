package mom

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	spanKeySignal       = "signal.guid"
	spanKeyMessageID    = "message.id"
	spanKeySubscriberID = "subscriber.id"
	spanKeyDelivered    = "signal.delivered"
	spanKeyPruned       = "signal.pruned"
)

// Signal is a node of the signal tree. It owns its children and its
// subscriber list, and fans published messages out to its own subscribers
// only; ancestors and descendants are not notified.
type Signal[T any] struct {
	tree        *tree[T]
	index       int
	parent      int
	luid        string
	guid        string
	children    []int
	subscribers []*endpoint[T]
	destroyed   bool
}

// LUID returns the local identifier, the signal's own path segment
func (s *Signal[T]) LUID() string {
	return s.luid
}

// GUID returns the full dotted path from the root to this signal
func (s *Signal[T]) GUID() string {
	return s.guid
}

func (s *Signal[T]) String() string {
	return s.guid
}

// Destroyed reports whether the signal was removed from its tree
func (s *Signal[T]) Destroyed() bool {
	s.tree.mu.Lock()
	defer s.tree.mu.Unlock()
	return s.destroyed
}

// Parent returns the parent signal, or nil for the root and for destroyed
// signals.
func (s *Signal[T]) Parent() *Signal[T] {
	s.tree.mu.Lock()
	defer s.tree.mu.Unlock()
	if s.destroyed {
		return nil
	}
	return s.tree.node(s.parent)
}

// Children returns the child signals in creation order
func (s *Signal[T]) Children() []*Signal[T] {
	s.tree.mu.Lock()
	defer s.tree.mu.Unlock()
	out := make([]*Signal[T], 0, len(s.children))
	for _, c := range s.children {
		out = append(out, s.tree.nodes[c])
	}
	return out
}

// Subscribers returns the number of subscribers currently in the list,
// including expired ones that have not been pruned yet.
func (s *Signal[T]) Subscribers() int {
	s.tree.mu.Lock()
	defer s.tree.mu.Unlock()
	return len(s.subscribers)
}

// GetChild returns the direct child with the given LUID, or nil
func (s *Signal[T]) GetChild(luid string) *Signal[T] {
	s.tree.mu.Lock()
	defer s.tree.mu.Unlock()
	return s.getChild(luid)
}

// SetChild returns the direct child with the given LUID, creating it if it
// does not exist. Returns nil if this signal was destroyed.
func (s *Signal[T]) SetChild(luid string) *Signal[T] {
	s.tree.mu.Lock()
	defer s.tree.mu.Unlock()
	return s.setChild(luid)
}

// Subscribe adds a subscriber to this signal. A nil handler creates a Queue
// subscriber that must be polled with GetMessage; otherwise the handler is
// called for every message. Returns nil if the signal was destroyed.
func (s *Signal[T]) Subscribe(handler Handler[T], opts ...SubscribeOption[T]) *Subscriber[T] {
	s.tree.mu.Lock()
	defer s.tree.mu.Unlock()
	return s.subscribe(handler, opts...)
}

// Publish hands msg to every live subscriber of this signal, in subscription
// order. Ownership of msg passes to the signal, even on failure.
func (s *Signal[T]) Publish(ctx context.Context, msg *T) error {
	s.tree.mu.Lock()
	defer s.tree.mu.Unlock()
	if msg == nil {
		s.tree.metrics.Dropped(ctx, s.guid, DropNilMsg)
		return ErrNilMessage
	}
	return s.publish(ctx, msg)
}

func (s *Signal[T]) getChild(luid string) *Signal[T] {
	for _, c := range s.children {
		if child := s.tree.nodes[c]; child.luid == luid {
			return child
		}
	}
	return nil
}

func (s *Signal[T]) setChild(luid string) *Signal[T] {
	if s.destroyed {
		return nil
	}
	if child := s.getChild(luid); child != nil {
		return child
	}
	child := s.tree.alloc(s, luid)
	s.children = append(s.children, child.index)
	s.tree.logger.Debug("created signal", "signal", child.guid)
	return child
}

func (s *Signal[T]) subscribe(handler Handler[T], opts ...SubscribeOption[T]) *Subscriber[T] {
	if s.destroyed {
		return nil
	}
	o := newSubscribeOptions(opts...)
	sub := newSubscriber(handler, o, s.tree.mu)
	s.subscribers = append(s.subscribers, sub.ep)

	s.tree.metrics.Subscribed(context.Background(), s.guid, sub.ep.mode)
	s.tree.logger.Debug("added subscriber",
		"signal", s.guid,
		"subscriber", sub.ep.Name(),
		"mode", sub.ep.mode)
	return sub
}

// publish runs one fan-out pass. Expired queue subscribers met on the way
// are dropped from the list instead of receiving the message.
func (s *Signal[T]) publish(ctx context.Context, payload *T) error {
	if s.destroyed {
		releasePayload(payload)
		s.tree.metrics.Dropped(ctx, s.guid, DropDestroyed)
		s.tree.logger.Debug("publish dropped", "signal", s.guid, "error", ErrSignalDestroyed)
		return ErrSignalDestroyed
	}

	t := s.tree
	msg := newMessage(payload)
	defer msg.Release()

	var span trace.Span
	if t.tracer != nil {
		ctx, span = t.tracer.Start(ctx, fmt.Sprintf("%s.publish", s.guid),
			trace.WithAttributes(
				attribute.String(spanKeySignal, s.guid),
				attribute.String(spanKeyMessageID, msg.id)),
			trace.WithSpanKind(trace.SpanKindProducer))
		defer span.End()
	}
	t.metrics.Published(ctx, s.guid)

	// Handlers may subscribe to this signal, or publish to it again, while
	// the pass is running. The pass walks the list as it was on entry.
	subs := s.subscribers
	delivered, pruned := 0, 0
	defer func() {
		if pruned > 0 && !s.destroyed {
			s.compact()
		}
		if span != nil {
			span.SetAttributes(
				attribute.Int(spanKeyDelivered, delivered),
				attribute.Int(spanKeyPruned, pruned))
		}
	}()

	for _, ep := range subs {
		if ep.detached {
			continue
		}
		if ep.expired() {
			ep.detach()
			pruned++
			t.metrics.Pruned(ctx, s.guid)
			t.logger.Debug("pruned subscriber", "signal", s.guid, "subscriber", ep.Name())
			continue
		}
		if err := s.deliver(ctx, ep, msg); err != nil {
			return &HandlerError{Signal: s.guid, Subscriber: ep.Name(), Err: err}
		}
		delivered++
	}
	return nil
}

func (s *Signal[T]) deliver(ctx context.Context, ep *endpoint[T], msg *Message[T]) error {
	if ep.mode == Callback {
		ctx = contextWithDelivery(ctx, s.guid, ep.id, msg.id)
		if tracer := s.tree.tracer; tracer != nil {
			var span trace.Span
			ctx, span = tracer.Start(ctx, fmt.Sprintf("%s.deliver", s.guid),
				trace.WithAttributes(
					attribute.String(spanKeySignal, s.guid),
					attribute.String(spanKeyMessageID, msg.id),
					attribute.String(spanKeySubscriberID, ep.id)),
				trace.WithSpanKind(trace.SpanKindConsumer))
			defer span.End()
		}
	}
	if err := ep.handle(ctx, msg); err != nil {
		return err
	}
	s.tree.metrics.Delivered(ctx, s.guid, ep.mode)
	return nil
}

// compact rebuilds the subscriber list without detached entries. A fresh
// slice is used because an outer publish pass may still be iterating the
// old one.
func (s *Signal[T]) compact() {
	live := make([]*endpoint[T], 0, len(s.subscribers))
	for _, ep := range s.subscribers {
		if !ep.detached {
			live = append(live, ep)
		}
	}
	s.subscribers = live
}
