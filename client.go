// Package rpcsock is a MessagePack JSON-RPC 2.0 client over a
// persistent binary frame transport: request/response correlation,
// notifications, server-push streams, heartbeats, and automatic
// reconnection, all multiplexed over one connection at a time.
//
// Client is the public entry point; the packages under internal/ hold
// the codec, event bus, id generator, transport contract, and the
// session state machine that implement it.
package rpcsock

import (
	"context"
	"log/slog"
	"time"

	"rpcsock/internal/eventbus"
	"rpcsock/internal/idgen"
	"rpcsock/internal/rpc"
	"rpcsock/internal/wsconn"
)

// Re-exported types so callers never need to import an internal package
// directly.
type (
	Config            = rpc.Config
	Stats             = rpc.Stats
	ConnState         = wsconn.ConnState
	Call              = rpc.Call
	RPCError          = rpc.RPCError
	CallError         = rpc.CallError
	StreamHandler     = rpc.StreamHandler
	StreamController  = rpc.StreamController
	RequestOption     = rpc.RequestOption
	Option            = rpc.Option
	Subscription      = eventbus.Subscription
	Handler           = eventbus.Handler
	CloseEvent        = rpc.CloseEvent
	ReconnectingEvent = rpc.ReconnectingEvent
	Transport         = wsconn.Transport
	CloseInfo         = wsconn.CloseInfo
)

// Connection states, mirroring the transport.
const (
	StateClosed     = wsconn.StateClosed
	StateConnecting = wsconn.StateConnecting
	StateOpen       = wsconn.StateOpen
	StateClosing    = wsconn.StateClosing
)

// The fixed event catalog.
const (
	EventOpen            = rpc.EventOpen
	EventClose           = rpc.EventClose
	EventError           = rpc.EventError
	EventMessage         = rpc.EventMessage
	EventReconnecting    = rpc.EventReconnecting
	EventReconnected     = rpc.EventReconnected
	EventReconnectFailed = rpc.EventReconnectFailed
)

// Client-local error kinds, testable with errors.Is.
var (
	ErrNotConnected     = rpc.ErrNotConnected
	ErrTimeout          = rpc.ErrTimeout
	ErrConnectionClosed = rpc.ErrConnectionClosed
	ErrSerialization    = rpc.ErrSerialization
	ErrDeserialization  = rpc.ErrDeserialization
	ErrIDCollision      = rpc.ErrIDCollision
)

// LoadConfigYAML reads and normalizes a Config from a YAML file.
func LoadConfigYAML(path string) (Config, error) { return rpc.LoadConfigYAML(path) }

// WithID supplies a caller-chosen request or stream id.
func WithID(id string) RequestOption { return rpc.WithID(id) }

// WithTimeout overrides the default per-request timeout for one call.
func WithTimeout(d time.Duration) RequestOption { return rpc.WithTimeout(d) }

// WithLogger injects a structured logger used by the client and its
// transport. A nil logger falls back to slog.Default().
func WithLogger(logger *slog.Logger) Option { return rpc.WithLogger(logger) }

// Client is a connected (or reconnecting) JSON-RPC session.
type Client struct {
	session *rpc.Session
}

// New constructs a Client in the Closed state. Call Connect to start
// the first connection attempt.
func New(cfg Config, opts ...Option) *Client {
	return &Client{session: rpc.New(cfg, opts...)}
}

// Connect opens the connection, blocking until the handshake completes
// or ctx is done.
func (c *Client) Connect(ctx context.Context) error { return c.session.Connect(ctx) }

// Request sends a correlated call and returns a Call whose Done channel
// fires once it resolves. See rpc.Session.Request for the full contract.
func (c *Client) Request(method string, params any, opts ...RequestOption) (*Call, error) {
	return c.session.Request(method, params, opts...)
}

// Notify sends a fire-and-forget notification.
func (c *Client) Notify(method string, params any) error {
	return c.session.Notify(method, params)
}

// Stream registers handler under a request id and returns a controller
// to close the subscription.
func (c *Client) Stream(method string, params any, handler StreamHandler, opts ...RequestOption) (*StreamController, error) {
	return c.session.Stream(method, params, handler, opts...)
}

// On, Once, and Off manage event listeners for the fixed catalog above.
func (c *Client) On(event string, handler Handler) Subscription  { return c.session.On(event, handler) }
func (c *Client) Once(event string, handler Handler) Subscription { return c.session.Once(event, handler) }
func (c *Client) Off(sub Subscription)                            { c.session.Off(sub) }

// Close disables auto-reconnect, tears down the transport, purges
// pending requests as ErrConnectionClosed, and removes all listeners.
func (c *Client) Close(code int, reason string) error { return c.session.Close(code, reason) }

// ReconnectToURL closes the current connection and reconnects to a new
// URL, resetting the reconnect attempt counter.
func (c *Client) ReconnectToURL(ctx context.Context, url string) error {
	return c.session.ReconnectToURL(ctx, url)
}

// GetStats returns an immutable snapshot of the client's performance
// counters.
func (c *Client) GetStats() Stats { return c.session.GetStats() }

// State reports the client's current connection state.
func (c *Client) State() ConnState { return c.session.State() }

// idgen.Generator is re-exported only so WithIDGenerator's type shows up
// in this package's documentation without forcing callers to import the
// internal package directly.
type IDGenerator = idgen.Generator

// WithIDGenerator overrides the id generator used for caller-omitted
// request and stream ids.
func WithIDGenerator(g *IDGenerator) Option { return rpc.WithIDGenerator(g) }

// WithTransportFactory overrides how the client creates its transport on
// each (re)connect, primarily for tests.
func WithTransportFactory(factory func(url string, protocols []string) wsconn.Transport) Option {
	return rpc.WithTransportFactory(factory)
}
