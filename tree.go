package mom

import (
	"log/slog"
	"slices"
	"sync"

	"go.opentelemetry.io/otel/trace"
)

// RootLUID is the local identifier of the root signal. The root is reached
// with the empty path and is never itself part of a GUID.
const RootLUID = ""

// noRoot marks the parent index of the root node
const noRoot = -1

// nopLocker is used when locking is disabled
type nopLocker struct{}

func (nopLocker) Lock()   {}
func (nopLocker) Unlock() {}

// tree is the arena that owns every signal of a middleware. Nodes are
// addressed by stable indices; a destroyed node's slot goes on the free list
// and may be handed to a later signal.
type tree[T any] struct {
	mu      sync.Locker
	nodes   []*Signal[T]
	free    []int
	root    int
	logger  *slog.Logger
	metrics Metrics
	tracer  trace.Tracer
}

func newTree[T any](o *options) *tree[T] {
	t := &tree[T]{
		mu:      nopLocker{},
		logger:  o.logger,
		metrics: o.metrics,
		tracer:  o.tracer,
	}
	if o.locking {
		t.mu = &sync.Mutex{}
	}
	t.root = t.alloc(nil, RootLUID).index
	return t
}

// alloc places a new signal in the arena under parent (nil for the root)
func (t *tree[T]) alloc(parent *Signal[T], luid string) *Signal[T] {
	s := &Signal[T]{
		tree:   t,
		parent: noRoot,
		luid:   luid,
		guid:   luid,
	}
	if parent != nil {
		s.parent = parent.index
		s.guid = joinGUID(parent, luid)
	}
	if n := len(t.free); n > 0 {
		s.index = t.free[n-1]
		t.free = t.free[:n-1]
		t.nodes[s.index] = s
	} else {
		s.index = len(t.nodes)
		t.nodes = append(t.nodes, s)
	}
	return s
}

// node returns the live signal at index i, or nil
func (t *tree[T]) node(i int) *Signal[T] {
	if i < 0 || i >= len(t.nodes) {
		return nil
	}
	return t.nodes[i]
}

func (t *tree[T]) rootSignal() *Signal[T] {
	return t.node(t.root)
}

// size returns the number of live signals, the root included
func (t *tree[T]) size() int {
	return len(t.nodes) - len(t.free)
}

// destroy removes the subtree rooted at index i. Descendants are destroyed
// before their ancestors. Returns the number of destroyed signals.
func (t *tree[T]) destroy(i int) int {
	top := t.node(i)
	if top == nil {
		return 0
	}

	// Pre-order collection; walking it backwards visits every node after
	// all of its descendants.
	order := make([]int, 0, 8)
	stack := []int{i}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		order = append(order, n)
		stack = append(stack, t.nodes[n].children...)
	}

	if parent := t.node(top.parent); parent != nil {
		parent.children = slices.DeleteFunc(parent.children, func(c int) bool { return c == i })
	}

	for k := len(order) - 1; k >= 0; k-- {
		t.release(order[k])
	}
	return len(order)
}

// release frees a single node. Its children must already be gone.
func (t *tree[T]) release(i int) {
	s := t.nodes[i]
	for _, ep := range s.subscribers {
		ep.detach()
	}
	s.subscribers = nil
	s.children = nil
	s.destroyed = true
	t.nodes[i] = nil
	t.free = append(t.free, i)
	t.logger.Debug("destroyed signal", "signal", s.guid)
}
