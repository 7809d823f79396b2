// Package wsconn names the binary frame transport contract the rpc
// package depends on and ships one concrete implementation backed by
// nhooyr.io/websocket.
package wsconn

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"nhooyr.io/websocket"
)

// ConnState mirrors the transport's observable connection state.
type ConnState int

const (
	StateClosed ConnState = iota
	StateConnecting
	StateOpen
	StateClosing
)

func (s ConnState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	default:
		return "unknown"
	}
}

// CloseInfo describes why a transport closed.
type CloseInfo struct {
	Code   int
	Reason string
}

// Transport is the binary frame connection the rpc session depends on.
// A session owns exactly one Transport at a time and replaces it wholesale
// on reconnect; Transport implementations need not be safe for reuse
// across multiple Connect calls.
type Transport interface {
	// Connect opens the connection. It blocks until the handshake
	// completes or ctx is done.
	Connect(ctx context.Context) error
	// Send transmits one binary frame. It is only valid once State is
	// StateOpen.
	Send(data []byte) error
	// Close closes the connection with the given status code and
	// reason, best-effort.
	Close(code int, reason string) error
	// State reports the transport's current connection state.
	State() ConnState

	// OnOpen registers the handler invoked once the connection is
	// established. Must be called before Connect.
	OnOpen(func())
	// OnMessage registers the handler invoked once per received frame.
	// Must be called before Connect.
	OnMessage(func(data []byte))
	// OnClose registers the handler invoked when the connection closes,
	// whether by peer, by error, or by a local Close call. Must be
	// called before Connect.
	OnClose(func(CloseInfo))
	// OnError registers the handler invoked on a transport-level error
	// that does not by itself close the connection. Must be called
	// before Connect.
	OnError(func(error))
}

// Option configures a websocket-backed Transport.
type Option func(*wsTransport)

// WithLogger injects a structured logger. A nil logger (the default)
// falls back to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(t *wsTransport) { t.logger = logger }
}

// wsTransport is the nhooyr.io/websocket-backed default Transport:
// Connect dials and spawns one read-loop goroutine; Send writes directly
// on the caller's goroutine.
type wsTransport struct {
	url       string
	protocols []string
	logger    *slog.Logger

	mu    sync.Mutex
	state ConnState
	conn  *websocket.Conn
	stop  context.CancelFunc

	onOpen    func()
	onMessage func([]byte)
	onClose   func(CloseInfo)
	onError   func(error)
}

// New constructs the default Transport. url is the endpoint to dial;
// protocols is passed through as the WebSocket subprotocol list.
func New(url string, protocols []string, opts ...Option) Transport {
	t := &wsTransport{url: url, protocols: protocols, state: StateClosed}
	for _, opt := range opts {
		opt(t)
	}
	if t.logger == nil {
		t.logger = slog.Default()
	}
	return t
}

func (t *wsTransport) OnOpen(f func())           { t.onOpen = f }
func (t *wsTransport) OnMessage(f func([]byte))  { t.onMessage = f }
func (t *wsTransport) OnClose(f func(CloseInfo)) { t.onClose = f }
func (t *wsTransport) OnError(f func(error))     { t.onError = f }

func (t *wsTransport) State() ConnState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *wsTransport) setState(s ConnState) {
	t.mu.Lock()
	t.state = s
	t.mu.Unlock()
}

func (t *wsTransport) Connect(ctx context.Context) error {
	t.setState(StateConnecting)

	conn, _, err := websocket.Dial(ctx, t.url, &websocket.DialOptions{Subprotocols: t.protocols})
	if err != nil {
		t.setState(StateClosed)
		return fmt.Errorf("wsconn: dial %s: %w", t.url, err)
	}

	readCtx, cancel := context.WithCancel(context.Background())

	t.mu.Lock()
	t.conn = conn
	t.stop = cancel
	t.state = StateOpen
	t.mu.Unlock()

	go t.readLoop(readCtx, conn)

	if t.onOpen != nil {
		t.onOpen()
	}
	return nil
}

// readLoop is the single goroutine that owns inbound frames for this
// connection; it runs until the connection closes, either locally or by
// the peer, and reports the outcome through onClose exactly once.
func (t *wsTransport) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			t.handleReadError(conn, err)
			return
		}
		if typ != websocket.MessageBinary {
			continue
		}
		if t.onMessage != nil {
			t.onMessage(data)
		}
	}
}

func (t *wsTransport) handleReadError(conn *websocket.Conn, err error) {
	t.mu.Lock()
	already := t.conn != conn
	t.state = StateClosed
	t.mu.Unlock()
	if already {
		return
	}

	code := int(websocket.CloseStatus(err))
	reason := err.Error()
	if code < 0 {
		code = int(websocket.StatusAbnormalClosure)
	}

	if t.onClose != nil {
		t.onClose(CloseInfo{Code: code, Reason: reason})
	}
}

func (t *wsTransport) Send(data []byte) error {
	t.mu.Lock()
	conn := t.conn
	state := t.state
	t.mu.Unlock()

	if state != StateOpen || conn == nil {
		return fmt.Errorf("wsconn: send while not open (state=%s)", state)
	}
	if err := conn.Write(context.Background(), websocket.MessageBinary, data); err != nil {
		if t.onError != nil {
			t.onError(err)
		}
		return fmt.Errorf("wsconn: send: %w", err)
	}
	return nil
}

func (t *wsTransport) Close(code int, reason string) error {
	t.mu.Lock()
	conn := t.conn
	stop := t.stop
	if t.state == StateClosed {
		t.mu.Unlock()
		return nil
	}
	t.state = StateClosing
	t.mu.Unlock()

	if stop != nil {
		stop()
	}

	var err error
	if conn != nil {
		err = conn.Close(websocket.StatusCode(code), reason)
	}

	t.setState(StateClosed)
	return err
}
