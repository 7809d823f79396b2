package rpc

import "sync"

// StreamHandler receives a stream subscription's notifications. It may
// be invoked zero or more times, in the order frames carrying the
// subscription's id arrive.
type StreamHandler func(result any, rpcErr *RPCError)

// streamSubscription is a long-lived id registration with no timeout:
// it is removed only by an explicit Close or by the table being
// cleared on session shutdown.
type streamSubscription struct {
	mu      sync.Mutex
	id      string
	method  string
	handler StreamHandler
	closed  bool
}

func (s *streamSubscription) deliver(result any, rpcErr *RPCError) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return
	}
	s.handler(result, rpcErr)
}

// StreamController is returned by Session.Stream. Close is idempotent;
// once it returns, the handler registered at Stream time will not be
// invoked again, even for frames already queued on the transport.
type StreamController struct {
	sub     *streamSubscription
	session *Session
}

// ID is the subscription id this controller governs.
func (c *StreamController) ID() string { return c.sub.id }

// Closed reports whether Close has been called.
func (c *StreamController) Closed() bool {
	c.sub.mu.Lock()
	defer c.sub.mu.Unlock()
	return c.sub.closed
}

// Close removes the subscription. The server is not notified; per this
// protocol's design, stream teardown is client-local.
func (c *StreamController) Close() {
	c.sub.mu.Lock()
	c.sub.closed = true
	c.sub.mu.Unlock()
	c.session.removeStream(c.sub.id)
}
