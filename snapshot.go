package mom

import "time"

// SignalInfo describes one signal and its subtree at a point in time
type SignalInfo struct {
	LUID        string        `json:"luid" msgpack:"luid"`
	GUID        string        `json:"guid" msgpack:"guid"`
	Callbacks   int           `json:"callbacks" msgpack:"callbacks"`
	Queues      int           `json:"queues" msgpack:"queues"`
	Pending     int           `json:"pending" msgpack:"pending"`
	Subscribers []string      `json:"subscribers,omitempty" msgpack:"subscribers,omitempty"`
	Children    []*SignalInfo `json:"children,omitempty" msgpack:"children,omitempty"`
}

// Snapshot is a point-in-time view of a middleware's tree
type Snapshot struct {
	Name    string      `json:"name" msgpack:"name"`
	Signals int         `json:"signals" msgpack:"signals"`
	Root    *SignalInfo `json:"root,omitempty" msgpack:"root,omitempty"`
	TakenAt time.Time   `json:"taken_at" msgpack:"taken_at"`
}

// Find returns the info for guid within the snapshot, or nil
func (s *Snapshot) Find(guid string) *SignalInfo {
	if s.Root == nil {
		return nil
	}
	stack := []*SignalInfo{s.Root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n.GUID == guid {
			return n
		}
		stack = append(stack, n.Children...)
	}
	return nil
}

// Snapshot captures the tree. Subscribers are listed by name in
// subscription order.
func (m *Middleware[T]) Snapshot() *Snapshot {
	m.tree.mu.Lock()
	defer m.tree.mu.Unlock()

	snap := &Snapshot{
		Name:    m.name,
		TakenAt: time.Now(),
	}
	if m.closed {
		return snap
	}
	snap.Signals = m.tree.size()
	snap.Root = m.tree.info(m.tree.root)
	return snap
}

func (t *tree[T]) info(i int) *SignalInfo {
	s := t.nodes[i]
	info := &SignalInfo{
		LUID: s.luid,
		GUID: s.guid,
	}
	for _, ep := range s.subscribers {
		if ep.mode == Callback {
			info.Callbacks++
		} else {
			info.Queues++
			info.Pending += ep.pending()
		}
		info.Subscribers = append(info.Subscribers, ep.Name())
	}
	for _, c := range s.children {
		info.Children = append(info.Children, t.info(c))
	}
	return info
}
