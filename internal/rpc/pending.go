package rpc

import (
	"context"
	"time"
)

// Call is the future-like handle returned by Session.Request. Done is
// sent the same *Call exactly once (it is buffered and never closed),
// after which Result and Err are safe to read without synchronization.
type Call struct {
	ID     string
	Method string
	Result any
	Err    error
	Done   chan *Call
}

func newCall(id, method string) *Call {
	return &Call{ID: id, Method: method, Done: make(chan *Call, 1)}
}

func (c *Call) complete(result any, err error) {
	c.Result = result
	c.Err = err
	c.Done <- c
}

// Wait blocks until the call completes or ctx is done, whichever comes
// first, and returns the resolved result and error.
func (c *Call) Wait(ctx context.Context) (any, error) {
	select {
	case <-c.Done:
		return c.Result, c.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// pendingRequest is one in-flight non-stream request: the bookkeeping a
// Session keeps between Request and the response, timeout, or purge
// that resolves it. A pendingRequest is removed from its table exactly
// once, on whichever of those three events fires first.
type pendingRequest struct {
	id     string
	method string
	sentAt time.Time
	timer  *time.Timer
	call   *Call
}
