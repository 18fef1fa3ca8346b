// File: internal/browser/context.go
package browser

import (
	"context"
	"time"
)

// CombineContext returns a context carrying session's values that is
// cancelled when either session or op is done. chromedp actions must run on
// a context derived from the tab context; op supplies the caller's deadline.
func CombineContext(session, op context.Context) (context.Context, context.CancelFunc) {
	combined, cancel := context.WithCancel(session)
	go func() {
		select {
		case <-op.Done():
			cancel()
		case <-combined.Done():
		}
	}()
	return combined, cancel
}

// valueOnlyContext keeps the parent's values but none of its cancellation.
type valueOnlyContext struct {
	context.Context
}

func (valueOnlyContext) Deadline() (deadline time.Time, ok bool) { return }
func (valueOnlyContext) Done() <-chan struct{}                   { return nil }
func (valueOnlyContext) Err() error                              { return nil }

// Detach returns a context that inherits values from ctx but outlives it.
// Browser processes are started on a detached context so that only Close
// tears them down.
func Detach(ctx context.Context) context.Context {
	return valueOnlyContext{ctx}
}
