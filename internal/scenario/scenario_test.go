package scenario

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/rbaliyan/mom"
)

func newTestRunner(out *bytes.Buffer) *Runner {
	return NewRunner(out, nil, mom.WithTracing(false), mom.WithMetrics(false, nil))
}

func TestRunExample(t *testing.T) {
	cfg, err := Parse(Example)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	var out bytes.Buffer
	res, err := newTestRunner(&out).Run(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	wantLines := []string{
		"function A.Cool.Signal (5): 0x01 0x02 0x03 0x04 0x05",
		"function a.b.c.def (4): 0x01 0x02 0x03 0x04",
		"method a.b.c.def (4): 0x01 0x02 0x03 0x04",
		"function a.b.c.def (3): 0x01 0x02 0x03",
		"method a.b.c.def (3): 0x01 0x02 0x03",
		"poller a.b.c.def (4): 0x01 0x02 0x03 0x04",
		"poller a.b.c.def (3): 0x01 0x02 0x03",
	}
	gotLines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if diff := cmp.Diff(wantLines, gotLines); diff != "" {
		t.Errorf("output mismatch (-want +got):\n%s", diff)
	}

	wantDelivered := map[string]int{"function": 3, "method": 2, "poller": 2}
	if diff := cmp.Diff(wantDelivered, res.Delivered); diff != "" {
		t.Errorf("delivered mismatch (-want +got):\n%s", diff)
	}
	if res.Published != 3 || res.Rejected != 0 {
		t.Errorf("expected 3 published and 0 rejected, got %d and %d", res.Published, res.Rejected)
	}
	if res.Released != 3 {
		t.Errorf("expected every payload released, got %d", res.Released)
	}

	info := res.Snapshot.Find("a.b.c.def")
	if info == nil {
		t.Fatal("a.b.c.def missing from snapshot")
	}
	if info.Callbacks != 2 || info.Queues != 1 || info.Pending != 2 {
		t.Errorf("unexpected signal info: %+v", info)
	}
}

func TestRunRejectedPublish(t *testing.T) {
	cfg, err := Parse(`
[[publish]]
path = "missing.signal"
data = [1]
repeat = 2
`)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	var out bytes.Buffer
	res, err := newTestRunner(&out).Run(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.Rejected != 2 || res.Published != 0 {
		t.Errorf("expected 2 rejected, got %d rejected and %d published", res.Rejected, res.Published)
	}
	if res.Released != 2 {
		t.Errorf("rejected payloads must be released, got %d", res.Released)
	}
	if out.Len() != 0 {
		t.Errorf("expected no output, got %q", out.String())
	}
}

func TestRunInvalidPublishPath(t *testing.T) {
	cfg, err := Parse(`
[[signal]]
path = "a.b"

[[subscriber]]
name = "cb"
path = "a.b"

[[publish]]
path = "a..b"
data = [1]

[[publish]]
path = "a.b"
data = [2]
`)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	var out bytes.Buffer
	res, err := newTestRunner(&out).Run(context.Background(), cfg)
	if err != nil {
		t.Fatalf("invalid publish path must not abort the run: %v", err)
	}
	if res.Rejected != 1 || res.Published != 1 {
		t.Errorf("expected 1 rejected and 1 published, got %d and %d", res.Rejected, res.Published)
	}
	if res.Released != 2 {
		t.Errorf("every payload must be released, got %d", res.Released)
	}
	if res.Delivered["cb"] != 1 {
		t.Errorf("later publishes must still be delivered, got %d", res.Delivered["cb"])
	}
}

func TestRunReleasedQueueIsPruned(t *testing.T) {
	cfg, err := Parse(`
[[signal]]
path = "a.b"

[[subscriber]]
name = "gone"
path = "a.b"
mode = "queue"
release = true

[[publish]]
path = "a.b"
data = [7]
`)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	var out bytes.Buffer
	res, err := newTestRunner(&out).Run(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	info := res.Snapshot.Find("a.b")
	if info == nil {
		t.Fatal("a.b missing from snapshot")
	}
	if info.Queues != 0 {
		t.Errorf("expected released queue subscriber to be pruned, got %d queues", info.Queues)
	}
	if res.Delivered["gone"] != 0 {
		t.Errorf("pruned subscriber must not receive messages")
	}
}

func TestRunSubscribeToMissingSignal(t *testing.T) {
	cfg, err := Parse(`
[[subscriber]]
path = "nowhere"
`)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	var out bytes.Buffer
	_, err = newTestRunner(&out).Run(context.Background(), cfg)
	if !errors.Is(err, mom.ErrSignalNotFound) {
		t.Errorf("expected ErrSignalNotFound, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"unknown mode", "[[subscriber]]\npath = \"a\"\nmode = \"push\"\n"},
		{"byte out of range", "[[publish]]\npath = \"a\"\ndata = [256]\n"},
		{"release on callback", "[[subscriber]]\npath = \"a\"\nrelease = true\n"},
		{"unknown segment policy", "segment_policy = \"ignore\"\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse(tt.data); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}

	t.Run("defaults", func(t *testing.T) {
		cfg, err := Parse("[[subscriber]]\npath = \"a\"\n[[publish]]\npath = \"a\"\n")
		if err != nil {
			t.Fatalf("Parse failed: %v", err)
		}
		if cfg.Name != "scenario" {
			t.Errorf("expected default name, got %q", cfg.Name)
		}
		if cfg.Subscribers[0].Mode != ModeCallback || cfg.Subscribers[0].Name != "callback-0" {
			t.Errorf("unexpected subscriber defaults: %+v", cfg.Subscribers[0])
		}
		if cfg.Publish[0].Repeat != 1 {
			t.Errorf("expected repeat 1, got %d", cfg.Publish[0].Repeat)
		}
	})
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()

	t.Run("valid file", func(t *testing.T) {
		path := filepath.Join(dir, "example.toml")
		if err := os.WriteFile(path, []byte(Example), 0o600); err != nil {
			t.Fatal(err)
		}
		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if cfg.Name != "example" || len(cfg.Subscribers) != 4 {
			t.Errorf("unexpected config: %+v", cfg)
		}
	})

	t.Run("unknown key", func(t *testing.T) {
		path := filepath.Join(dir, "bad.toml")
		if err := os.WriteFile(path, []byte("nmae = \"typo\"\n"), 0o600); err != nil {
			t.Fatal(err)
		}
		if _, err := Load(path); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("expected ErrInvalidConfig, got %v", err)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		if _, err := Load(filepath.Join(dir, "missing.toml")); err == nil {
			t.Error("expected error for missing file")
		}
	})
}
