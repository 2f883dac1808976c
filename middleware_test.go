package mom

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"syreclabs.com/go/faker"
)

func init() {
	faker.Seed(time.Now().UnixNano())
}

func randomPath(n int) string {
	return Join(faker.Lorem().Words(n)...)
}

func TestSetSignalIdempotent(t *testing.T) {
	m := NewTestMiddleware[frame]()
	defer m.Close()

	for i := 1; i <= 5; i++ {
		path := randomPath(i)
		s1, err := m.SetSignal(path)
		if err != nil {
			t.Fatalf("SetSignal(%q) failed: %v", path, err)
		}
		n := m.Len()
		s2, err := m.SetSignal(path)
		if err != nil {
			t.Fatalf("SetSignal(%q) failed: %v", path, err)
		}
		if s1 != s2 {
			t.Errorf("SetSignal(%q) returned different signals", path)
		}
		if m.Len() != n {
			t.Errorf("second SetSignal(%q) grew the tree", path)
		}
		if s1.GUID() != path {
			t.Errorf("GUID %q does not match path %q", s1.GUID(), path)
		}
		if m.GetSignal(path) != s1 {
			t.Errorf("GetSignal(%q) disagrees with SetSignal", path)
		}
	}
}

func TestTreeMatchesPath(t *testing.T) {
	m := NewTestMiddleware[frame]()
	defer m.Close()

	words := faker.Lorem().Words(4)
	leaf, err := m.SetSignal(Join(words...))
	if err != nil {
		t.Fatal(err)
	}

	// Walk back up: each ancestor's LUID is the matching segment
	s := leaf
	for i := len(words) - 1; i >= 0; i-- {
		if s.LUID() != words[i] {
			t.Errorf("segment %d: expected LUID %q, got %q", i, words[i], s.LUID())
		}
		if s.GUID() != Join(words[:i+1]...) {
			t.Errorf("segment %d: unexpected GUID %q", i, s.GUID())
		}
		s = s.Parent()
	}
	if s != m.Root() {
		t.Error("walk did not end at the root")
	}
}

func TestRootPath(t *testing.T) {
	m := NewTestMiddleware[frame]()
	defer m.Close()

	if m.Name() != "test-mom" {
		t.Errorf("unexpected name %q", m.Name())
	}
	if m.GetSignal("") != m.Root() {
		t.Error("empty path must resolve to the root")
	}
	s, err := m.SetSignal("")
	if err != nil || s != m.Root() {
		t.Errorf("SetSignal(\"\") = %v, %v", s, err)
	}
	a, _ := m.SetSignal("a")
	if a.GUID() != "a" {
		t.Errorf("child of root should be addressed by its LUID, got %q", a.GUID())
	}
}

func TestUnknownPathNoSideEffects(t *testing.T) {
	m := NewTestMiddleware[frame]()
	defer m.Close()
	m.SetSignal("a.b")
	n := m.Len()

	if m.GetSignal("a.b.c") != nil || m.GetSignal("x") != nil {
		t.Error("GetSignal found a signal that was never created")
	}

	sub, err := m.Subscribe("a.x", func(ctx context.Context, msg *Message[frame]) error { return nil })
	if !errors.Is(err, ErrSignalNotFound) || sub != nil {
		t.Errorf("expected ErrSignalNotFound, got %v, %v", sub, err)
	}
	if _, err := m.SubscribeQueue("a.b.c.d"); !errors.Is(err, ErrSignalNotFound) {
		t.Errorf("expected ErrSignalNotFound, got %v", err)
	}

	var released atomic.Int32
	if err := m.Publish(context.Background(), "a.c", newFrame(&released)); !errors.Is(err, ErrSignalNotFound) {
		t.Errorf("expected ErrSignalNotFound, got %v", err)
	}
	if released.Load() != 1 {
		t.Errorf("rejected payload must be released exactly once, got %d", released.Load())
	}

	if m.Len() != n {
		t.Errorf("tree changed from %d to %d signals", n, m.Len())
	}
}

func TestPublishNilMessage(t *testing.T) {
	m := NewTestMiddleware[frame]()
	defer m.Close()
	m.SetSignal("a")
	sub, _ := m.SubscribeQueue("a")

	if err := m.Publish(context.Background(), "a", nil); !errors.Is(err, ErrNilMessage) {
		t.Errorf("expected ErrNilMessage, got %v", err)
	}
	if sub.HasMessage() {
		t.Error("nil message must not be delivered")
	}
}

func TestPublishEndToEnd(t *testing.T) {
	m := NewTestMiddleware[frame]()
	defer m.Close()

	if _, err := m.SetSignal("a.b.c.def"); err != nil {
		t.Fatal(err)
	}
	rec1 := NewRecorder[frame]()
	rec2 := NewRecorder[frame]()
	m.Subscribe("a.b.c.def", rec1.Handler())
	m.Subscribe("a.b.c.def", rec2.Handler())
	q, err := m.SubscribeQueue("a.b.c.def", WithSubscriberName[frame]("poller"))
	if err != nil {
		t.Fatal(err)
	}
	if q.Mode() != Queue || q.Name() != "poller" {
		t.Errorf("unexpected subscriber %s/%s", q.Mode(), q.Name())
	}

	var released atomic.Int32
	want := []byte{1, 2, 3, 4, 5}
	if err := m.Publish(context.Background(), "a.b.c.def", newFrame(&released, want...)); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	for i, rec := range []*Recorder[frame]{rec1, rec2} {
		msgs := rec.Messages()
		if len(msgs) != 1 {
			t.Fatalf("recorder %d: expected 1 message, got %d", i, len(msgs))
		}
		if msgs[0].Signal != "a.b.c.def" {
			t.Errorf("recorder %d: wrong signal %q", i, msgs[0].Signal)
		}
		if diff := cmp.Diff(want, rec.Payloads()[0].data); diff != "" {
			t.Errorf("recorder %d: payload mismatch (-want +got):\n%s", i, diff)
		}
	}
	if q.Len() != 1 {
		t.Fatalf("expected 1 queued message, got %d", q.Len())
	}

	// Both recorders and the queue hold a reference
	msg := q.GetMessage()
	if diff := cmp.Diff(want, msg.Payload().data); diff != "" {
		t.Errorf("queued payload mismatch (-want +got):\n%s", diff)
	}
	if msg != rec1.Messages()[0].Message {
		t.Error("subscribers should share one message")
	}
	msg.Release()
	rec1.Reset()
	if released.Load() != 0 {
		t.Fatal("payload released while still recorded")
	}
	rec2.Reset()
	if released.Load() != 1 {
		t.Errorf("expected payload released once, got %d", released.Load())
	}
	if q.GetMessage() != nil || q.HasMessage() {
		t.Error("queue should be empty")
	}
}

func TestRemoveCascade(t *testing.T) {
	m := NewTestMiddleware[frame]()
	defer m.Close()
	m.SetSignal("a.b.c")
	m.SetSignal("a.b.d")
	a := m.GetSignal("a")

	sub, _ := m.SubscribeQueue("a.b.c")
	var released atomic.Int32
	m.Publish(context.Background(), "a.b.c", newFrame(&released))
	m.Publish(context.Background(), "a.b.c", newFrame(&released))

	if err := m.Remove("a.b"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if m.Len() != 2 {
		t.Errorf("expected root and a left, got %d signals", m.Len())
	}
	if released.Load() != 2 {
		t.Errorf("pending messages must be released, got %d", released.Load())
	}
	if sub.Attached() || sub.HasMessage() {
		t.Error("subscriber of a removed signal must be detached and empty")
	}
	if m.GetSignal("a.b") != nil || m.GetSignal("a.b.c") != nil {
		t.Error("removed signals still resolve")
	}
	if len(a.Children()) != 0 {
		t.Error("parent still lists the removed child")
	}

	// Freed slots are reused without mixing up identities
	s, _ := m.SetSignal("x.y.z")
	if s.GUID() != "x.y.z" || s.Parent().GUID() != "x.y" {
		t.Errorf("unexpected identities after slot reuse: %q under %q", s.GUID(), s.Parent().GUID())
	}

	if err := m.Remove(""); !errors.Is(err, ErrRootRemoval) {
		t.Errorf("expected ErrRootRemoval, got %v", err)
	}
	if err := m.Remove("nope"); !errors.Is(err, ErrSignalNotFound) {
		t.Errorf("expected ErrSignalNotFound, got %v", err)
	}
}

func TestClose(t *testing.T) {
	m := NewTestMiddleware[frame]()
	m.SetSignal("a.b")
	sub, _ := m.SubscribeQueue("a.b")
	s := m.GetSignal("a.b")

	var released atomic.Int32
	m.Publish(context.Background(), "a.b", newFrame(&released))

	if err := m.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if !m.Closed() || m.Len() != 0 || m.Root() != nil {
		t.Error("middleware not closed")
	}
	if released.Load() != 1 || sub.Attached() {
		t.Error("Close must release pending messages and detach subscribers")
	}
	if !s.Destroyed() {
		t.Error("signals must be destroyed by Close")
	}

	if err := m.Publish(context.Background(), "a.b", newFrame(&released)); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
	if released.Load() != 2 {
		t.Error("payload published after Close must be released")
	}
	if _, err := m.SetSignal("a"); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
	if m.GetSignal("") != nil {
		t.Error("closed middleware must not resolve paths")
	}
	if err := m.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}

	called := false
	m.Walk(func(*Signal[frame]) bool {
		called = true
		return true
	})
	if called {
		t.Error("Walk visited a closed middleware")
	}
}

func TestSegmentPolicies(t *testing.T) {
	t.Run("reject", func(t *testing.T) {
		m := NewTestMiddleware[frame]()
		defer m.Close()
		if _, err := m.SetSignal("a..b"); !errors.Is(err, ErrInvalidPath) {
			t.Errorf("expected ErrInvalidPath, got %v", err)
		}
		if m.Len() != 1 {
			t.Error("invalid path must not create signals")
		}
	})

	t.Run("skip", func(t *testing.T) {
		m := NewTestMiddleware[frame](WithSegmentPolicy(SkipEmptySegments))
		defer m.Close()
		s, err := m.SetSignal("a..b.")
		if err != nil {
			t.Fatal(err)
		}
		if s.GUID() != "a.b" || m.GetSignal("a.b") != s {
			t.Errorf("expected a.b, got %q", s.GUID())
		}
	})

	t.Run("literal", func(t *testing.T) {
		m := NewTestMiddleware[frame](WithSegmentPolicy(LiteralEmptySegments))
		defer m.Close()
		s, err := m.SetSignal("a..b")
		if err != nil {
			t.Fatal(err)
		}
		if s.GUID() != "a..b" || m.Len() != 4 {
			t.Errorf("unexpected GUID %q with %d signals", s.GUID(), m.Len())
		}
		if s.Parent().LUID() != "" {
			t.Error("empty segment should be a signal of its own")
		}
	})
}

func TestWalk(t *testing.T) {
	m := NewTestMiddleware[frame]()
	defer m.Close()
	m.SetSignal("a.b")
	m.SetSignal("a.c")
	m.SetSignal("d")

	var got []string
	m.Walk(func(s *Signal[frame]) bool {
		got = append(got, s.GUID())
		return true
	})
	if diff := cmp.Diff([]string{"", "a", "a.b", "a.c", "d"}, got); diff != "" {
		t.Errorf("walk order mismatch (-want +got):\n%s", diff)
	}

	got = nil
	m.Walk(func(s *Signal[frame]) bool {
		got = append(got, s.GUID())
		return len(got) < 2
	})
	if len(got) != 2 {
		t.Errorf("walk did not stop, visited %d", len(got))
	}
}

func TestLockingConcurrentPublish(t *testing.T) {
	m := NewTestMiddleware[frame](WithLocking(true))
	defer m.Close()
	m.SetSignal("a.b")

	var delivered atomic.Int64
	m.Subscribe("a.b", func(ctx context.Context, msg *Message[frame]) error {
		delivered.Add(1)
		return nil
	})
	q, _ := m.SubscribeQueue("a.b")

	const (
		publishers = 8
		perWorker  = 100
	)
	var released atomic.Int32
	var wg sync.WaitGroup
	for range publishers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range perWorker {
				if err := m.Publish(context.Background(), "a.b", newFrame(&released)); err != nil {
					t.Error(err)
					return
				}
			}
		}()
	}

	polled := 0
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	for finished := false; !finished; {
		select {
		case <-done:
			finished = true
		default:
		}
		for msg := q.GetMessage(); msg != nil; msg = q.GetMessage() {
			msg.Release()
			polled++
		}
	}

	if got := delivered.Load(); got != publishers*perWorker {
		t.Errorf("expected %d callbacks, got %d", publishers*perWorker, got)
	}
	if polled != publishers*perWorker {
		t.Errorf("expected %d polled messages, got %d", publishers*perWorker, polled)
	}
	if released.Load() != publishers*perWorker {
		t.Errorf("expected every payload released, got %d", released.Load())
	}
}

func TestDefaultOptions(t *testing.T) {
	// Tracing and metrics on, through the global OpenTelemetry providers
	m := New[frame]()
	defer m.Close()
	if m.Name() != DefaultName {
		t.Errorf("unexpected default name %q", m.Name())
	}
	m.SetSignal("a")
	rec := NewRecorder[frame]()
	m.Subscribe("a", rec.Handler())
	if err := m.Publish(context.Background(), "a", newFrame(nil)); err != nil {
		t.Fatal(err)
	}
	if rec.Count() != 1 {
		t.Errorf("expected 1 delivery, got %d", rec.Count())
	}
	m.Publish(context.Background(), "missing", newFrame(nil))
}
