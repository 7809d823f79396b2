// Package rpc implements the JSON-RPC session state machine: connection
// lifecycle, request/response correlation, server-push streams,
// heartbeat, reconnection, and performance stats, multiplexed over one
// wsconn.Transport at a time.
package rpc

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"rpcsock/internal/eventbus"
	"rpcsock/internal/idgen"
	"rpcsock/internal/wsconn"
)

const openState = wsconn.StateOpen

// Option configures a Session at construction time.
type Option func(*Session)

// WithLogger injects a structured logger. A nil logger falls back to
// slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) { s.logger = logger }
}

// WithTransportFactory overrides how a Session creates its transport on
// each (re)connect. Tests inject an in-memory fake here instead of the
// real nhooyr.io/websocket-backed default.
func WithTransportFactory(factory func(url string, protocols []string) wsconn.Transport) Option {
	return func(s *Session) { s.transportFactory = factory }
}

// WithIDGenerator overrides the id generator used for caller-omitted
// request and stream ids.
func WithIDGenerator(g *idgen.Generator) Option {
	return func(s *Session) { s.ids = g }
}

// Session owns a transport, the pending-request table, the
// stream-subscription table, every timer, and the stats. It is safe for
// concurrent use by multiple goroutines.
type Session struct {
	mu     sync.Mutex
	cfg    Config
	logger *slog.Logger
	bus    *eventbus.Bus
	ids    *idgen.Generator

	transportFactory func(url string, protocols []string) wsconn.Transport
	transport        wsconn.Transport
	state            wsconn.ConnState
	closed           bool

	pending map[string]*pendingRequest
	streams map[string]*streamSubscription

	statsT statsTracker

	autoReconnectEnabled   bool
	reconnecting           bool
	reconnectFailedEmitted bool
	reconnectTimer         *time.Timer
	breaker                *reconnectBreaker

	heartbeatStop chan struct{}
}

// New constructs a Session in the Closed state. Call Connect to start
// the first connection attempt.
func New(cfg Config, opts ...Option) *Session {
	cfg.normalize()

	s := &Session{
		cfg:     cfg,
		state:   wsconn.StateClosed,
		pending: make(map[string]*pendingRequest),
		streams: make(map[string]*streamSubscription),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.bus == nil {
		s.bus = eventbus.New(s.logger)
	}
	if s.ids == nil {
		s.ids = idgen.New()
	}
	if s.transportFactory == nil {
		s.transportFactory = func(url string, protocols []string) wsconn.Transport {
			return wsconn.New(url, protocols, wsconn.WithLogger(s.logger))
		}
	}
	s.autoReconnectEnabled = cfg.autoReconnectEnabled()
	s.breaker = newReconnectBreaker(cfg, s.logger)
	return s
}

// Connect creates a transport and opens the connection, blocking until
// the handshake completes or ctx is done. This is the Closed → connect()
// → Connecting transition; a successful handshake advances to Open
// synchronously through the transport's open callback.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	s.closed = false
	s.mu.Unlock()
	return s.connectTransport(ctx)
}

func (s *Session) connectTransport(ctx context.Context) error {
	s.mu.Lock()
	url, protocols := s.cfg.URL, s.cfg.Protocols
	s.mu.Unlock()

	tr := s.transportFactory(url, protocols)
	tr.OnOpen(s.handleOpen)
	tr.OnMessage(s.handleMessage)
	tr.OnClose(s.handleClose)
	tr.OnError(s.handleError)

	s.mu.Lock()
	s.transport = tr
	s.state = wsconn.StateConnecting
	s.mu.Unlock()

	if err := tr.Connect(ctx); err != nil {
		s.mu.Lock()
		s.state = wsconn.StateClosed
		s.mu.Unlock()
		return err
	}
	return nil
}

// State reports the session's current connection state.
func (s *Session) State() wsconn.ConnState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// handleOpen runs on the Connecting → Open transition, whether this is
// the first connect or a reconnect.
func (s *Session) handleOpen() {
	s.mu.Lock()
	wasReconnect := s.reconnecting
	s.reconnecting = false
	s.reconnectFailedEmitted = false
	s.state = wsconn.StateOpen
	s.mu.Unlock()

	s.startHeartbeat()
	s.bus.Emit(EventOpen, nil)
	if wasReconnect {
		s.bus.Emit(EventReconnected, nil)
	}
}

// handleClose runs whenever the transport reports it has closed, by
// peer, by error, or by a local Close call.
func (s *Session) handleClose(info wsconn.CloseInfo) {
	s.mu.Lock()
	s.state = wsconn.StateClosed
	auto := s.autoReconnectEnabled
	closedSession := s.closed
	s.mu.Unlock()

	s.stopHeartbeat()
	s.purgePending(ErrConnectionClosed)
	s.bus.Emit(EventClose, CloseEvent{Code: info.Code, Reason: info.Reason})

	if auto && !closedSession {
		s.scheduleReconnect()
	}
}

func (s *Session) handleError(err error) {
	s.bus.Emit(EventError, err)
}

// debugLog emits a debug-level log line only when the session was built
// with Config.Debug set, independent of the injected logger's own
// handler level.
func (s *Session) debugLog(msg string, args ...any) {
	if s.cfg.Debug {
		s.logger.Debug(msg, args...)
	}
}

// handleMessage is the single read-loop goroutine's entry point for
// every inbound frame: decode, update stats, then dispatch to a stream
// handler, a pending request, or only the message event, per this
// session's correlation rules.
func (s *Session) handleMessage(data []byte) {
	frame, err := decodeInbound(data)
	if err != nil {
		s.debugLog("dropping unparsable inbound frame", "error", err)
		return
	}

	s.statsT.responsesReceived.Add(1)
	if frame.rpcErr != nil {
		s.statsT.errors.Add(1)
	}

	if frame.hasID {
		if sub := s.getStream(frame.id); sub != nil {
			sub.deliver(frame.result, frame.rpcErr)
			s.bus.Emit(EventMessage, frame)
			return
		}
		if pr := s.takePending(frame.id); pr != nil {
			if frame.rpcErr != nil {
				pr.call.complete(nil, frame.rpcErr)
			} else {
				s.statsT.recordResponseTime(time.Since(pr.sentAt))
				pr.call.complete(frame.result, nil)
			}
			s.bus.Emit(EventMessage, frame)
			return
		}
	}

	s.bus.Emit(EventMessage, frame)
}

// On, Once, and Off delegate to the session's event bus.
func (s *Session) On(event string, handler eventbus.Handler) eventbus.Subscription {
	return s.bus.On(event, handler)
}

func (s *Session) Once(event string, handler eventbus.Handler) eventbus.Subscription {
	return s.bus.Once(event, handler)
}

func (s *Session) Off(sub eventbus.Subscription) {
	s.bus.Off(sub)
}

// GetStats returns an immutable snapshot of the session's performance
// counters, with PendingRequests sampled from the live table.
func (s *Session) GetStats() Stats {
	s.mu.Lock()
	pending := len(s.pending)
	s.mu.Unlock()
	return s.statsT.snapshot(pending)
}

// Close disables autoReconnect, cancels every timer, closes the
// transport, purges pending requests as ConnectionClosed, clears stream
// subscriptions, and removes all listeners. Idempotent.
func (s *Session) Close(code int, reason string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.autoReconnectEnabled = false
	transport := s.transport
	s.mu.Unlock()

	s.cancelReconnectTimer()
	s.stopHeartbeat()

	var err error
	if transport != nil {
		err = transport.Close(code, reason)
	}

	s.purgePending(ErrConnectionClosed)

	s.mu.Lock()
	s.streams = make(map[string]*streamSubscription)
	s.state = wsconn.StateClosed
	s.mu.Unlock()

	s.bus.RemoveAll()
	return err
}

// ReconnectToURL closes the current connection, points the session at a
// new URL, re-enables autoReconnect, resets the reconnect attempt
// counter, and initiates a new connection. Queued/pending requests from
// before the call are dropped and rejected, matching Close's semantics,
// since ReconnectToURL performs a full close first.
func (s *Session) ReconnectToURL(ctx context.Context, url string) error {
	_ = s.Close(1000, "reconnecting to new url")

	s.mu.Lock()
	s.cfg.URL = url
	enabled := true
	s.cfg.AutoReconnect = &enabled
	s.autoReconnectEnabled = true
	s.closed = false
	s.reconnectFailedEmitted = false
	s.breaker = newReconnectBreaker(s.cfg, s.logger)
	s.mu.Unlock()

	return s.connectTransport(ctx)
}
