// Package mom provides an in-process message oriented middleware: producers
// publish payloads on hierarchically named signals and subscribers receive
// them either through a callback or by polling a queue.
//
// Signals form a tree addressed by dotted paths ("a.b.c.def"). Each path
// segment is a LUID, unique among its siblings; the full path is the
// signal's GUID. Publishing on a signal reaches that signal's subscribers
// only, never its ancestors or descendants.
//
// Basic example:
//
//	type Frame struct {
//	    Data []byte
//	}
//
//	m := mom.New[Frame]()
//	defer m.Close()
//
//	// Create the signal; intermediate signals are created as needed
//	if _, err := m.SetSignal("a.b.c.def"); err != nil {
//	    log.Fatal(err)
//	}
//
//	// Callback subscriber, called on the publisher's goroutine
//	m.Subscribe("a.b.c.def", func(ctx context.Context, msg *mom.Message[Frame]) error {
//	    fmt.Printf("% x\n", msg.Payload().Data)
//	    return nil
//	})
//
//	// Queue subscriber, polled by its owner
//	sub, _ := m.SubscribeQueue("a.b.c.def")
//
//	m.Publish(ctx, "a.b.c.def", &Frame{Data: []byte{1, 2, 3, 4, 5}})
//
//	for sub.HasMessage() {
//	    msg := sub.GetMessage()
//	    fmt.Println(msg.Payload().Data)
//	    msg.Release()
//	}
//
// Ownership:
// A payload handed to Publish belongs to the middleware, even when the
// publish is rejected. It is wrapped in a reference counted Message shared
// by every subscriber that receives it. When the last reference goes away a
// payload implementing Releaser is released exactly once.
//
// Queue subscriber expiry:
// A queue subscriber whose handle was released (Subscriber.Release) or
// garbage collected, and whose queue is empty, is removed from its signal
// by the next publish on that signal.
//
// Middleware Options:
//   - WithName: name used for the logger component, tracer and meter.
//   - WithLogger: set the slog logger.
//   - WithTracing: enable/disable OpenTelemetry spans. Default is true.
//   - WithMetrics: enable/disable metrics, or supply a Metrics recorder.
//   - WithLocking: guard the middleware with a mutex for concurrent use.
//   - WithSegmentPolicy: reject, skip or keep empty path segments.
//
// Subscribe Options:
//   - WithSubscriberName: label the subscriber.
//   - WithInterceptors: wrap a callback handler (Recover, RateLimit, Filter).
package mom
