package mom

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"golang.org/x/time/rate"
)

// Interceptor wraps a callback handler
type Interceptor[T any] func(next Handler[T]) Handler[T]

// chainInterceptors applies interceptors so that the first one runs first
func chainInterceptors[T any](h Handler[T], interceptors []Interceptor[T]) Handler[T] {
	for i := len(interceptors) - 1; i >= 0; i-- {
		h = interceptors[i](h)
	}
	return h
}

// Chain composes interceptors into one. The first is the outermost.
func Chain[T any](interceptors ...Interceptor[T]) Interceptor[T] {
	return func(next Handler[T]) Handler[T] {
		return chainInterceptors(next, interceptors)
	}
}

// PanicError is returned by the Recover interceptor when a handler panics
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("handler panic: %v", e.Value)
}

// Recover turns a handler panic into a *PanicError. Without it a panic
// unwinds through Publish to the publisher.
func Recover[T any](logger *slog.Logger) Interceptor[T] {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next Handler[T]) Handler[T] {
		return func(ctx context.Context, msg *Message[T]) (err error) {
			defer func() {
				if r := recover(); r != nil {
					stack := debug.Stack()
					logger.Error("handler panic recovered",
						"signal", ContextSignal(ctx),
						"subscriber", ContextSubscriberID(ctx),
						"error", r)
					err = &PanicError{Value: r, Stack: stack}
				}
			}()
			return next(ctx, msg)
		}
	}
}

// RateLimit skips messages that arrive faster than the limiter allows.
// Skipped messages count as handled; the fan-out continues.
func RateLimit[T any](limiter *rate.Limiter) Interceptor[T] {
	return func(next Handler[T]) Handler[T] {
		return func(ctx context.Context, msg *Message[T]) error {
			if !limiter.Allow() {
				return nil
			}
			return next(ctx, msg)
		}
	}
}

// Filter only passes messages accepted by keep
func Filter[T any](keep func(*Message[T]) bool) Interceptor[T] {
	return func(next Handler[T]) Handler[T] {
		return func(ctx context.Context, msg *Message[T]) error {
			if !keep(msg) {
				return nil
			}
			return next(ctx, msg)
		}
	}
}
