package rpc

import "time"

// requestOptions configures one Request or Stream call.
type requestOptions struct {
	id      string
	timeout time.Duration
}

// RequestOption configures a single Request call.
type RequestOption func(*requestOptions)

// WithID supplies a caller-chosen id instead of generating one. Request
// and Stream reject an id that collides with an existing pending request
// or stream subscription.
func WithID(id string) RequestOption {
	return func(o *requestOptions) { o.id = id }
}

// WithTimeout overrides the session's DefaultTimeout for one request.
func WithTimeout(d time.Duration) RequestOption {
	return func(o *requestOptions) { o.timeout = d }
}

// Request sends a correlated call and returns immediately with a Call
// whose Done channel fires once a matching response arrives, the
// request's timer fires, or the connection closes while it is pending —
// whichever happens first. It fails synchronously, before any bytes
// reach the transport, if the session is not Open, the id collides, or
// params cannot be serialized.
func (s *Session) Request(method string, params any, opts ...RequestOption) (*Call, error) {
	var ro requestOptions
	for _, opt := range opts {
		opt(&ro)
	}

	s.mu.Lock()
	if s.state != openState {
		s.mu.Unlock()
		return nil, newCallError("request", ErrNotConnected, method)
	}
	id := ro.id
	if id == "" {
		id = s.ids.Next()
	}
	if _, exists := s.pending[id]; exists {
		s.mu.Unlock()
		return nil, newCallError("request", ErrIDCollision, id)
	}
	if _, exists := s.streams[id]; exists {
		s.mu.Unlock()
		return nil, newCallError("request", ErrIDCollision, id)
	}
	transport := s.transport
	s.mu.Unlock()

	if transport == nil {
		return nil, newCallError("request", ErrNotConnected, method)
	}

	data, err := encodeRequest(id, method, params)
	if err != nil {
		return nil, newCallError("request", ErrSerialization, err.Error())
	}

	call := newCall(id, method)
	pr := &pendingRequest{id: id, method: method, sentAt: time.Now(), call: call}

	s.mu.Lock()
	s.pending[id] = pr
	s.mu.Unlock()

	if err := transport.Send(data); err != nil {
		s.mu.Lock()
		delete(s.pending, id)
		s.mu.Unlock()
		return nil, newCallError("request", ErrSerialization, err.Error())
	}

	timeout := ro.timeout
	if timeout <= 0 {
		timeout = s.cfg.DefaultTimeout
	}
	s.mu.Lock()
	pr.timer = time.AfterFunc(timeout, func() { s.handleTimeout(id) })
	s.mu.Unlock()

	s.statsT.requestsSent.Add(1)
	return call, nil
}

// Notify sends a fire-and-forget notification: no id, no reply expected,
// no bookkeeping. It fails synchronously if the session is not Open.
func (s *Session) Notify(method string, params any) error {
	s.mu.Lock()
	if s.state != openState {
		s.mu.Unlock()
		return newCallError("notify", ErrNotConnected, method)
	}
	transport := s.transport
	s.mu.Unlock()

	if transport == nil {
		return newCallError("notify", ErrNotConnected, method)
	}

	data, err := encodeNotification(method, params)
	if err != nil {
		return newCallError("notify", ErrSerialization, err.Error())
	}
	if err := transport.Send(data); err != nil {
		return newCallError("notify", ErrSerialization, err.Error())
	}
	return nil
}

// Stream registers handler under id (caller-supplied or generated) and
// sends a request frame carrying that id. Unlike Request, a stream
// never places a pending record: it has no timeout and a missing first
// response never surfaces as a failure — callers needing liveness
// detection must arrange it themselves.
func (s *Session) Stream(method string, params any, handler StreamHandler, opts ...RequestOption) (*StreamController, error) {
	if handler == nil {
		return nil, newCallError("stream", ErrSerialization, "nil handler")
	}
	var ro requestOptions
	for _, opt := range opts {
		opt(&ro)
	}

	s.mu.Lock()
	if s.state != openState {
		s.mu.Unlock()
		return nil, newCallError("stream", ErrNotConnected, method)
	}
	id := ro.id
	if id == "" {
		id = s.ids.Next()
	}
	if _, exists := s.pending[id]; exists {
		s.mu.Unlock()
		return nil, newCallError("stream", ErrIDCollision, id)
	}
	if _, exists := s.streams[id]; exists {
		s.mu.Unlock()
		return nil, newCallError("stream", ErrIDCollision, id)
	}
	transport := s.transport
	s.mu.Unlock()

	if transport == nil {
		return nil, newCallError("stream", ErrNotConnected, method)
	}

	data, err := encodeRequest(id, method, params)
	if err != nil {
		return nil, newCallError("stream", ErrSerialization, err.Error())
	}
	sub := &streamSubscription{id: id, method: method, handler: handler}
	s.mu.Lock()
	s.streams[id] = sub
	s.mu.Unlock()

	if err := transport.Send(data); err != nil {
		s.removeStream(id)
		return nil, newCallError("stream", ErrSerialization, err.Error())
	}

	return &StreamController{sub: sub, session: s}, nil
}

func (s *Session) handleTimeout(id string) {
	s.mu.Lock()
	pr, ok := s.pending[id]
	if ok {
		delete(s.pending, id)
	}
	s.mu.Unlock()
	if !ok {
		return
	}
	s.statsT.timeouts.Add(1)
	pr.call.complete(nil, newCallError("request", ErrTimeout, pr.method))
}

// takePending removes and returns the pending record for id, stopping
// its timer, or nil if no such record exists — including when it was
// already resolved by a prior response or timeout.
func (s *Session) takePending(id string) *pendingRequest {
	s.mu.Lock()
	pr, ok := s.pending[id]
	if ok {
		delete(s.pending, id)
	}
	s.mu.Unlock()
	if !ok {
		return nil
	}
	if pr.timer != nil {
		pr.timer.Stop()
	}
	return pr
}

func (s *Session) getStream(id string) *streamSubscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streams[id]
}

func (s *Session) removeStream(id string) {
	s.mu.Lock()
	delete(s.streams, id)
	s.mu.Unlock()
}

// purgePending empties the pending-request table and rejects every
// record that was in it with sentinel, releasing their timers.
func (s *Session) purgePending(sentinel error) {
	s.mu.Lock()
	pending := s.pending
	s.pending = make(map[string]*pendingRequest)
	s.mu.Unlock()

	for _, pr := range pending {
		if pr.timer != nil {
			pr.timer.Stop()
		}
		pr.call.complete(nil, newCallError("request", sentinel, pr.method))
	}
}
