package rpc

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"rpcsock/internal/msgpack"
	"rpcsock/internal/wsconn"
)

func successResponse(id string, result any) []byte {
	data, err := msgpack.Marshal(map[string]any{"jsonrpc": "2.0", "id": id, "result": result})
	if err != nil {
		panic(err)
	}
	return data
}

func errorResponse(id string, code int, message string) []byte {
	data, err := msgpack.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"error":   map[string]any{"code": int64(code), "message": message},
	})
	if err != nil {
		panic(err)
	}
	return data
}

func singleTransportSession(t *testing.T, cfg Config) (*Session, *fakeTransport) {
	t.Helper()
	tr := newFakeTransport()
	cfg.URL = "ws://example.test/rpc"
	s := New(cfg, WithTransportFactory(func(url string, protocols []string) wsconn.Transport {
		return tr
	}))
	require.NoError(t, s.Connect(context.Background()))
	require.Equal(t, openState, s.State())
	return s, tr
}

func TestRequestSuccess(t *testing.T) {
	s, tr := singleTransportSession(t, Config{})

	call, err := s.Request("user.login", map[string]any{"u": "a"}, WithID("1"))
	require.NoError(t, err)

	sent := tr.lastSent()
	v, err := msgpack.Unmarshal(sent)
	require.NoError(t, err)
	m := v.(map[string]any)
	require.Equal(t, "user.login", m["method"])
	require.Equal(t, "1", m["id"])

	tr.deliver(successResponse("1", map[string]any{"token": "T"}))

	select {
	case <-call.Done:
	case <-time.After(time.Second):
		t.Fatal("call did not complete")
	}
	require.NoError(t, call.Err)
	result := call.Result.(map[string]any)
	require.Equal(t, "T", result["token"])

	stats := s.GetStats()
	require.EqualValues(t, 1, stats.ResponsesReceived)
	require.Equal(t, 0, stats.PendingRequests)
}

func TestRequestRpcError(t *testing.T) {
	s, tr := singleTransportSession(t, Config{})

	call, err := s.Request("user.login", nil, WithID("1"))
	require.NoError(t, err)

	tr.deliver(errorResponse("1", -32601, "no such method"))

	<-call.Done
	require.Error(t, call.Err)
	var rpcErr *RPCError
	require.True(t, errors.As(call.Err, &rpcErr))
	require.Equal(t, -32601, rpcErr.Code)
	require.Contains(t, rpcErr.Message, "no such method")

	stats := s.GetStats()
	require.EqualValues(t, 1, stats.Errors)
}

func TestRequestTimeout(t *testing.T) {
	s, _ := singleTransportSession(t, Config{})

	call, err := s.Request("slow", nil, WithID("2"), WithTimeout(20*time.Millisecond))
	require.NoError(t, err)

	select {
	case <-call.Done:
	case <-time.After(time.Second):
		t.Fatal("call did not time out")
	}
	require.ErrorIs(t, call.Err, ErrTimeout)

	stats := s.GetStats()
	require.EqualValues(t, 1, stats.Timeouts)
	require.Equal(t, 0, stats.PendingRequests)
}

func TestRequestFailsSynchronouslyWhenNotConnected(t *testing.T) {
	s := New(Config{URL: "ws://example.test"})
	_, err := s.Request("anything", nil)
	require.ErrorIs(t, err, ErrNotConnected)
}

func TestNotifyOmitsIDField(t *testing.T) {
	s, tr := singleTransportSession(t, Config{})

	require.NoError(t, s.Notify("user.logout", map[string]any{"u": int64(123)}))

	v, err := msgpack.Unmarshal(tr.lastSent())
	require.NoError(t, err)
	m := v.(map[string]any)
	_, hasID := m["id"]
	require.False(t, hasID)
	require.Equal(t, "user.logout", m["method"])
}

func TestStreamInvokesHandlerUntilClosed(t *testing.T) {
	s, tr := singleTransportSession(t, Config{})

	var calls atomic.Int64
	ctrl, err := s.Stream("sub", map[string]any{"ch": "x"}, func(result any, rpcErr *RPCError) {
		calls.Add(1)
	}, WithID("s1"))
	require.NoError(t, err)
	require.Equal(t, "s1", ctrl.ID())

	for i := 0; i < 3; i++ {
		tr.deliver(successResponse("s1", map[string]any{"i": int64(i)}))
	}
	require.EqualValues(t, 3, calls.Load())

	ctrl.Close()
	require.True(t, ctrl.Closed())
	tr.deliver(successResponse("s1", map[string]any{"i": int64(99)}))
	require.EqualValues(t, 3, calls.Load())
}

func TestCloseIsIdempotentAndPurgesPending(t *testing.T) {
	s, _ := singleTransportSession(t, Config{})

	call, err := s.Request("slow", nil, WithID("p1"), WithTimeout(time.Minute))
	require.NoError(t, err)

	require.NoError(t, s.Close(1000, "bye"))
	require.NoError(t, s.Close(1000, "bye again"))

	<-call.Done
	require.ErrorIs(t, call.Err, ErrConnectionClosed)
	require.Equal(t, wsconn.StateClosed, s.State())
}

func TestConnectionCloseRejectsPendingBeforeReconnect(t *testing.T) {
	s, tr := singleTransportSession(t, Config{})

	call, err := s.Request("slow", nil, WithID("p1"), WithTimeout(time.Minute))
	require.NoError(t, err)

	tr.simulatePeerClose(1006, "abnormal")

	<-call.Done
	require.ErrorIs(t, call.Err, ErrConnectionClosed)
}

func TestReconnectSequenceEmitsFailedExactlyOnce(t *testing.T) {
	first := newFakeTransport()
	initial := first
	attempts := make(chan *fakeTransport, 16)

	s := New(Config{
		URL:                  "ws://example.test",
		ReconnectInterval:    5 * time.Millisecond,
		MaxReconnectAttempts: 2,
	}, WithTransportFactory(func(url string, protocols []string) wsconn.Transport {
		if first != nil {
			tr := first
			first = nil
			return tr
		}
		tr := newFakeTransport()
		tr.failDial = errors.New("dial refused")
		attempts <- tr
		return tr
	}))

	reconnecting := make(chan ReconnectingEvent, 16)
	failed := make(chan struct{}, 1)
	s.On(EventReconnecting, func(payload any) { reconnecting <- payload.(ReconnectingEvent) })
	s.On(EventReconnectFailed, func(payload any) { failed <- struct{}{} })

	require.NoError(t, s.Connect(context.Background()))
	initial.simulatePeerClose(1006, "abnormal")

	var seen []ReconnectingEvent
	timeout := time.After(2 * time.Second)
	for len(seen) < 2 {
		select {
		case ev := <-reconnecting:
			seen = append(seen, ev)
		case <-timeout:
			t.Fatalf("only observed %d reconnecting events", len(seen))
		}
	}
	require.Equal(t, 1, seen[0].Attempt)
	require.Equal(t, 2, seen[0].MaxAttempts)
	require.Equal(t, 2, seen[1].Attempt)

	select {
	case <-failed:
	case <-time.After(2 * time.Second):
		t.Fatal("reconnect_failed was never emitted")
	}

	select {
	case <-failed:
		t.Fatal("reconnect_failed fired more than once")
	case <-time.After(50 * time.Millisecond):
	}

	stats := s.GetStats()
	require.EqualValues(t, 2, stats.ReconnectCount)
}
