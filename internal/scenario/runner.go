package scenario

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/rbaliyan/mom"
)

// Frame is the payload carried by scenario messages
type Frame struct {
	Data    []byte
	release func()
}

// Release implements mom.Releaser
func (f *Frame) Release() {
	if f.release != nil {
		f.release()
	}
}

// Result summarises a run
type Result struct {
	Published int `json:"published" msgpack:"published"`
	Rejected  int `json:"rejected" msgpack:"rejected"`
	Released  int `json:"released" msgpack:"released"`
	// Delivered counts messages per subscriber name: callback invocations
	// plus messages polled from queues.
	Delivered map[string]int `json:"delivered" msgpack:"delivered"`
	// Snapshot is taken after the last publish, before queues are drained
	Snapshot *mom.Snapshot `json:"snapshot,omitempty" msgpack:"snapshot,omitempty"`
}

// Runner executes scenarios, printing every delivered frame to out
type Runner struct {
	out    io.Writer
	logger *slog.Logger
	opts   []mom.Option
}

// NewRunner creates a runner. opts are passed to every middleware it creates.
func NewRunner(out io.Writer, logger *slog.Logger, opts ...mom.Option) *Runner {
	if logger == nil {
		logger = mom.Logger("scenario")
	}
	return &Runner{out: out, logger: logger, opts: opts}
}

type printer struct {
	name   string
	out    io.Writer
	counts map[string]int
}

func (p *printer) print(ctx context.Context, msg *mom.Message[Frame]) error {
	p.counts[p.name]++
	_, err := fmt.Fprintln(p.out, formatFrame(p.name, mom.ContextSignal(ctx), msg.Payload()))
	return err
}

func formatFrame(name, signal string, f *Frame) string {
	hex := make([]string, len(f.Data))
	for i, b := range f.Data {
		hex[i] = fmt.Sprintf("0x%02x", b)
	}
	return fmt.Sprintf("%s %s (%d): %s", name, signal, len(f.Data), strings.Join(hex, " "))
}

type queued struct {
	name string
	path string
	sub  *mom.Subscriber[Frame]
}

// Run executes cfg on a fresh middleware, which is closed before returning
func (r *Runner) Run(ctx context.Context, cfg *Config) (*Result, error) {
	policy, err := mom.ParseSegmentPolicy(cfg.SegmentPolicy)
	if err != nil {
		return nil, err
	}
	opts := append([]mom.Option{mom.WithName(cfg.Name), mom.WithSegmentPolicy(policy)}, r.opts...)
	m := mom.New[Frame](opts...)
	defer m.Close()

	res := &Result{Delivered: make(map[string]int)}

	for _, s := range cfg.Signals {
		if _, err := m.SetSignal(s.Path); err != nil {
			return nil, fmt.Errorf("signal %q: %w", s.Path, err)
		}
	}

	var queues []queued
	for _, s := range cfg.Subscribers {
		var handler mom.Handler[Frame]
		if s.Mode == ModeCallback {
			p := &printer{name: s.Name, out: r.out, counts: res.Delivered}
			handler = mom.Bind(p, (*printer).print)
		}
		sub, err := m.Subscribe(s.Path, handler, mom.WithSubscriberName[Frame](s.Name))
		if err != nil {
			return nil, fmt.Errorf("subscriber %q: %w", s.Name, err)
		}
		if s.Release {
			sub.Release()
			continue
		}
		if s.Mode == ModeQueue {
			queues = append(queues, queued{name: s.Name, path: s.Path, sub: sub})
		}
	}

	for _, p := range cfg.Publish {
		for range p.Repeat {
			frame := &Frame{Data: p.bytes()}
			frame.release = func() {
				res.Released++
				r.logger.Debug("payload released", "signal", p.Path, "size", len(frame.Data))
			}
			err := m.Publish(ctx, p.Path, frame)
			switch {
			case err == nil:
				res.Published++
			case errors.Is(err, mom.ErrSignalNotFound), errors.Is(err, mom.ErrInvalidPath):
				res.Rejected++
				r.logger.Info("publish rejected", "signal", p.Path, "error", err)
			default:
				return nil, fmt.Errorf("publish %q: %w", p.Path, err)
			}
		}
	}

	res.Snapshot = m.Snapshot()

	for _, q := range queues {
		for msg := q.sub.GetMessage(); msg != nil; msg = q.sub.GetMessage() {
			res.Delivered[q.name]++
			fmt.Fprintln(r.out, formatFrame(q.name, q.path, msg.Payload()))
			msg.Release()
		}
	}

	if err := m.Close(); err != nil {
		return nil, err
	}
	return res, nil
}
