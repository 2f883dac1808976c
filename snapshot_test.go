package mom

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func TestSnapshot(t *testing.T) {
	m := NewTestMiddleware[frame]()
	defer m.Close()
	m.SetSignal("a.b")
	m.SetSignal("c")
	m.Subscribe("a.b", func(ctx context.Context, msg *Message[frame]) error { return nil },
		WithSubscriberName[frame]("cb"))
	m.SubscribeQueue("a.b", WithSubscriberName[frame]("q"))
	m.Publish(context.Background(), "a.b", newFrame(nil))
	m.Publish(context.Background(), "a.b", newFrame(nil))

	snap := m.Snapshot()
	want := &Snapshot{
		Name:    "test-mom",
		Signals: 4,
		Root: &SignalInfo{
			Children: []*SignalInfo{
				{
					LUID: "a",
					GUID: "a",
					Children: []*SignalInfo{
						{
							LUID:        "b",
							GUID:        "a.b",
							Callbacks:   1,
							Queues:      1,
							Pending:     2,
							Subscribers: []string{"cb", "q"},
						},
					},
				},
				{LUID: "c", GUID: "c"},
			},
		},
	}
	if diff := cmp.Diff(want, snap, cmpopts.IgnoreFields(Snapshot{}, "TakenAt")); diff != "" {
		t.Errorf("snapshot mismatch (-want +got):\n%s", diff)
	}
	if snap.TakenAt.IsZero() {
		t.Error("snapshot time not set")
	}

	if info := snap.Find("a.b"); info == nil || info.Pending != 2 {
		t.Errorf("Find(a.b) = %+v", info)
	}
	if snap.Find("x") != nil {
		t.Error("Find returned an unknown signal")
	}
}

func TestSnapshotClosed(t *testing.T) {
	m := NewTestMiddleware[frame]()
	m.SetSignal("a")
	m.Close()

	snap := m.Snapshot()
	if snap.Root != nil || snap.Signals != 0 || snap.Find("") != nil {
		t.Errorf("closed middleware snapshot should be empty: %+v", snap)
	}
}
