// Package cancellation provides the cooperative cancellation gate consulted
// between workflow steps.
package cancellation

import (
	"context"
	"errors"
	"sync/atomic"
)

var ErrCancelled = errors.New("command was cancelled")

// Checker reports whether the current command has been cancelled.
type Checker interface {
	IsCancelled() bool
}

// Token is a Checker that is flipped once, typically from a signal handler.
type Token struct {
	cancelled atomic.Bool
}

func NewToken() *Token { return &Token{} }

func (t *Token) Cancel() { t.cancelled.Store(true) }

func (t *Token) IsCancelled() bool {
	if t == nil {
		return false
	}
	return t.cancelled.Load()
}

// WatchContext cancels the token when ctx is done. It returns a func that
// stops watching.
func (t *Token) WatchContext(ctx context.Context) (stop func()) {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			t.Cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}

// Check returns ErrCancelled when the checker or the context says the
// command should stop. A nil checker only consults ctx.
func Check(ctx context.Context, c Checker) error {
	if c != nil && c.IsCancelled() {
		return ErrCancelled
	}
	if err := ctx.Err(); err != nil {
		return errors.Join(ErrCancelled, err)
	}
	return nil
}
