package mom

import (
	"errors"
	"fmt"
)

// Middleware errors
var (
	ErrSignalNotFound  = errors.New("signal not found")
	ErrNilMessage      = errors.New("nil message")
	ErrInvalidPath     = errors.New("invalid signal path")
	ErrClosed          = errors.New("middleware is closed")
	ErrRootRemoval     = errors.New("root signal cannot be removed")
	ErrSignalDestroyed = errors.New("signal destroyed")
)

// HandlerError is returned by Publish when a callback subscriber fails.
// Fan-out stops at the failing subscriber; subscribers after it in the
// list did not receive the message.
type HandlerError struct {
	Signal     string
	Subscriber string
	Err        error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("handler %s on signal %q failed: %v", e.Subscriber, e.Signal, e.Err)
}

func (e *HandlerError) Unwrap() error {
	return e.Err
}

// IsHandlerError checks if an error was raised by a subscriber handler.
func IsHandlerError(err error) bool {
	var hErr *HandlerError
	return errors.As(err, &hErr)
}
