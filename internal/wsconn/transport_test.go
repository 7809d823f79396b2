package wsconn

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"nhooyr.io/websocket"
)

// startEchoServer runs a WebSocket server that echoes every binary frame
// it receives back to the same connection, until the client closes it.
func startEchoServer(t *testing.T) *httptest.Server {
	t.Helper()
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "")
		ctx := context.Background()
		for {
			typ, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			if err := conn.Write(ctx, typ, data); err != nil {
				return
			}
		}
	})
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(httpURL string) string {
	return "ws" + httpURL[len("http"):]
}

func TestTransportConnectSendReceive(t *testing.T) {
	srv := startEchoServer(t)

	tr := New(wsURL(srv.URL), nil)

	received := make(chan []byte, 1)
	tr.OnMessage(func(data []byte) {
		cp := make([]byte, len(data))
		copy(cp, data)
		received <- cp
	})

	opened := make(chan struct{}, 1)
	tr.OnOpen(func() { opened <- struct{}{} })

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := tr.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}

	select {
	case <-opened:
	case <-time.After(time.Second):
		t.Fatal("onOpen was not invoked")
	}

	if tr.State() != StateOpen {
		t.Fatalf("state = %v, want %v", tr.State(), StateOpen)
	}

	if err := tr.Send([]byte("hello")); err != nil {
		t.Fatalf("send: %v", err)
	}

	select {
	case data := <-received:
		if string(data) != "hello" {
			t.Fatalf("echoed %q, want %q", data, "hello")
		}
	case <-time.After(time.Second):
		t.Fatal("did not receive echoed frame")
	}

	if err := tr.Close(int(websocket.StatusNormalClosure), "done"); err != nil {
		t.Fatalf("close: %v", err)
	}
	if tr.State() != StateClosed {
		t.Fatalf("state after close = %v, want %v", tr.State(), StateClosed)
	}
}

func TestTransportOnCloseFiresWhenServerGoesAway(t *testing.T) {
	// The server closes each connection right after the handshake.
	// httptest's CloseClientConnections cannot be used for this: it does
	// not track connections hijacked by websocket.Accept.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		conn.Close(websocket.StatusGoingAway, "server going away")
	}))
	t.Cleanup(srv.Close)
	tr := New(wsURL(srv.URL), nil)

	closeCh := make(chan CloseInfo, 1)
	tr.OnClose(func(info CloseInfo) { closeCh <- info })

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := tr.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}

	select {
	case <-closeCh:
	case <-time.After(2 * time.Second):
		t.Fatal("onClose was never invoked after the server dropped the connection")
	}
}

func TestTransportSendBeforeConnectFails(t *testing.T) {
	tr := New("ws://127.0.0.1:0/unused", nil)
	if err := tr.Send([]byte("x")); err == nil {
		t.Fatal("expected send before connect to fail")
	}
}
