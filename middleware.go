package mom

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Middleware owns a signal tree and addresses its signals by dotted GUID.
//
// It is a thin facade: paths are resolved to a Signal and the call is
// forwarded to it. By default a Middleware is meant for use from a single
// goroutine; see WithLocking.
type Middleware[T any] struct {
	name    string
	tree    *tree[T]
	policy  SegmentPolicy
	logger  *slog.Logger
	metrics Metrics
	closed  bool
}

// New creates a middleware holding only the root signal
func New[T any](opts ...Option) *Middleware[T] {
	o := newOptions(opts...)
	m := &Middleware[T]{
		name:    o.name,
		tree:    newTree[T](o),
		policy:  o.segmentPolicy,
		logger:  o.logger,
		metrics: o.metrics,
	}
	m.logger.Debug("middleware created", "segment_policy", m.policy, "locking", o.locking)
	return m
}

// Name returns the middleware name
func (m *Middleware[T]) Name() string {
	return m.name
}

// Root returns the root signal, or nil once closed
func (m *Middleware[T]) Root() *Signal[T] {
	m.tree.mu.Lock()
	defer m.tree.mu.Unlock()
	if m.closed {
		return nil
	}
	return m.tree.rootSignal()
}

// GetSignal resolves path to an existing signal. It returns nil if any
// segment does not exist or the path is invalid. The empty path resolves to
// the root. The tree is never modified.
func (m *Middleware[T]) GetSignal(path string) *Signal[T] {
	m.tree.mu.Lock()
	defer m.tree.mu.Unlock()
	s, _ := m.getSignal(path)
	return s
}

// SetSignal resolves path, creating every missing segment on the way, and
// returns the leaf signal. Calling it twice with the same path returns the
// same signal.
func (m *Middleware[T]) SetSignal(path string) (*Signal[T], error) {
	m.tree.mu.Lock()
	defer m.tree.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	luids, err := Split(path, m.policy)
	if err != nil {
		return nil, err
	}
	s := m.tree.rootSignal()
	for _, luid := range luids {
		s = s.setChild(luid)
	}
	return s, nil
}

// Subscribe adds a subscriber to the signal at path. With a nil handler the
// subscriber is in Queue mode and must be polled; otherwise handler is called
// for every message published on the signal. Bound methods can be passed as
// method values or through Bind.
//
// Returns ErrSignalNotFound, without side effects, if the signal does not
// exist.
func (m *Middleware[T]) Subscribe(path string, handler Handler[T], opts ...SubscribeOption[T]) (*Subscriber[T], error) {
	m.tree.mu.Lock()
	defer m.tree.mu.Unlock()
	s, err := m.getSignal(path)
	if err != nil {
		return nil, err
	}
	return s.subscribe(handler, opts...), nil
}

// SubscribeQueue adds a Queue subscriber to the signal at path
func (m *Middleware[T]) SubscribeQueue(path string, opts ...SubscribeOption[T]) (*Subscriber[T], error) {
	return m.Subscribe(path, nil, opts...)
}

// Publish hands msg to every live subscriber of the signal at path.
//
// Ownership of msg passes to the middleware whatever the outcome. If the
// path does not resolve, or msg is nil, the message is released and
// ErrSignalNotFound or ErrNilMessage is returned; no subscriber is touched.
// If a handler fails, the fan-out stops and a *HandlerError is returned.
func (m *Middleware[T]) Publish(ctx context.Context, path string, msg *T) error {
	m.tree.mu.Lock()
	defer m.tree.mu.Unlock()

	s, err := m.getSignal(path)
	if err == nil && msg == nil {
		err = ErrNilMessage
	}
	if err != nil {
		releasePayload(msg)
		m.metrics.Dropped(ctx, path, dropReason(err))
		m.logger.Debug("publish dropped", "signal", path, "error", err)
		return err
	}
	return s.publish(ctx, msg)
}

// Remove destroys the signal at path together with all of its descendants.
// Pending queue messages are released and the subscribers detached. The
// root cannot be removed; use Close.
func (m *Middleware[T]) Remove(path string) error {
	m.tree.mu.Lock()
	defer m.tree.mu.Unlock()
	s, err := m.getSignal(path)
	if err != nil {
		return err
	}
	if s.index == m.tree.root {
		return ErrRootRemoval
	}
	n := m.tree.destroy(s.index)
	m.logger.Debug("removed signal", "signal", s.guid, "destroyed", n)
	return nil
}

// Walk calls fn for every signal in depth-first pre-order, starting at the
// root, until fn returns false. The set of visited signals is fixed when
// Walk starts.
func (m *Middleware[T]) Walk(fn func(*Signal[T]) bool) {
	m.tree.mu.Lock()
	if m.closed {
		m.tree.mu.Unlock()
		return
	}
	var order []*Signal[T]
	stack := []int{m.tree.root}
	for len(stack) > 0 {
		n := m.tree.nodes[stack[len(stack)-1]]
		stack = stack[:len(stack)-1]
		order = append(order, n)
		for i := len(n.children) - 1; i >= 0; i-- {
			stack = append(stack, n.children[i])
		}
	}
	m.tree.mu.Unlock()

	for _, s := range order {
		if !fn(s) {
			return
		}
	}
}

// Len returns the number of live signals, the root included
func (m *Middleware[T]) Len() int {
	m.tree.mu.Lock()
	defer m.tree.mu.Unlock()
	if m.closed {
		return 0
	}
	return m.tree.size()
}

// Closed reports whether Close was called
func (m *Middleware[T]) Closed() bool {
	m.tree.mu.Lock()
	defer m.tree.mu.Unlock()
	return m.closed
}

// Close destroys the whole tree, children before parents, and releases every
// pending queue message. Later calls fail with ErrClosed.
func (m *Middleware[T]) Close() error {
	m.tree.mu.Lock()
	defer m.tree.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	n := m.tree.destroy(m.tree.root)
	m.logger.Debug("middleware closed", "destroyed", n)
	return nil
}

// getSignal walks path from the root without creating anything
func (m *Middleware[T]) getSignal(path string) (*Signal[T], error) {
	if m.closed {
		return nil, ErrClosed
	}
	luids, err := Split(path, m.policy)
	if err != nil {
		return nil, err
	}
	s := m.tree.rootSignal()
	for _, luid := range luids {
		if s = s.getChild(luid); s == nil {
			return nil, fmt.Errorf("%w: %q", ErrSignalNotFound, path)
		}
	}
	return s, nil
}

func dropReason(err error) string {
	switch {
	case errors.Is(err, ErrNilMessage):
		return DropNilMsg
	case errors.Is(err, ErrClosed):
		return DropClosed
	default:
		return DropNoSignal
	}
}
