package rpc

import (
	"context"
	"fmt"
	"sync"

	"rpcsock/internal/wsconn"
)

// fakeTransport is an in-memory stand-in for wsconn.Transport, used so
// session tests exercise the real state machine without a socket.
type fakeTransport struct {
	mu        sync.Mutex
	state     wsconn.ConnState
	sent      [][]byte
	failDial  error
	failSend  error

	onOpen    func()
	onMessage func([]byte)
	onClose   func(wsconn.CloseInfo)
	onError   func(error)
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{state: wsconn.StateClosed}
}

func (f *fakeTransport) OnOpen(h func())                  { f.onOpen = h }
func (f *fakeTransport) OnMessage(h func([]byte))         { f.onMessage = h }
func (f *fakeTransport) OnClose(h func(wsconn.CloseInfo))  { f.onClose = h }
func (f *fakeTransport) OnError(h func(error))             { f.onError = h }

func (f *fakeTransport) Connect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failDial != nil {
		f.state = wsconn.StateClosed
		return f.failDial
	}
	f.state = wsconn.StateOpen
	if f.onOpen != nil {
		f.onOpen()
	}
	return nil
}

func (f *fakeTransport) Send(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSend != nil {
		return f.failSend
	}
	if f.state != wsconn.StateOpen {
		return fmt.Errorf("fakeTransport: send while not open")
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	f.sent = append(f.sent, cp)
	return nil
}

func (f *fakeTransport) Close(code int, reason string) error {
	f.mu.Lock()
	already := f.state == wsconn.StateClosed
	f.state = wsconn.StateClosed
	onClose := f.onClose
	f.mu.Unlock()
	if !already && onClose != nil {
		onClose(wsconn.CloseInfo{Code: code, Reason: reason})
	}
	return nil
}

func (f *fakeTransport) State() wsconn.ConnState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// deliver simulates an inbound frame arriving on the connection.
func (f *fakeTransport) deliver(data []byte) {
	f.mu.Lock()
	onMessage := f.onMessage
	f.mu.Unlock()
	if onMessage != nil {
		onMessage(data)
	}
}

// simulatePeerClose simulates the remote end dropping the connection.
func (f *fakeTransport) simulatePeerClose(code int, reason string) {
	f.mu.Lock()
	f.state = wsconn.StateClosed
	onClose := f.onClose
	f.mu.Unlock()
	if onClose != nil {
		onClose(wsconn.CloseInfo{Code: code, Reason: reason})
	}
}

func (f *fakeTransport) lastSent() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return nil
	}
	return f.sent[len(f.sent)-1]
}

func (f *fakeTransport) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}
