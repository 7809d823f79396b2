package eventbus

import (
	"sync/atomic"
	"testing"
)

func TestEmitInvokesListenersInSubscriptionOrder(t *testing.T) {
	b := New(nil)
	var order []int
	b.On("ev", func(any) { order = append(order, 1) })
	b.On("ev", func(any) { order = append(order, 2) })
	b.On("ev", func(any) { order = append(order, 3) })

	b.Emit("ev", nil)

	want := []int{1, 2, 3}
	if len(order) != len(want) {
		t.Fatalf("got %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("got %v, want %v", order, want)
		}
	}
}

func TestHandlerAddedDuringEmitDoesNotReceiveThatEmit(t *testing.T) {
	b := New(nil)
	var lateCalled atomic.Bool
	b.On("ev", func(any) {
		b.On("ev", func(any) { lateCalled.Store(true) })
	})

	b.Emit("ev", nil)
	if lateCalled.Load() {
		t.Fatal("a listener added mid-emit was invoked during that same emit")
	}

	b.Emit("ev", nil)
	if !lateCalled.Load() {
		t.Fatal("the late listener should fire on the next emit")
	}
}

func TestOnceUnsubscribesBeforeInvoking(t *testing.T) {
	b := New(nil)
	var calls atomic.Int64
	b.Once("ev", func(any) { calls.Add(1) })

	b.Emit("ev", nil)
	b.Emit("ev", nil)

	if calls.Load() != 1 {
		t.Fatalf("once handler called %d times, want 1", calls.Load())
	}
}

func TestOffRemovesListener(t *testing.T) {
	b := New(nil)
	var calls atomic.Int64
	sub := b.On("ev", func(any) { calls.Add(1) })
	b.Off(sub)
	b.Off(sub) // idempotent

	b.Emit("ev", nil)
	if calls.Load() != 0 {
		t.Fatalf("removed listener was invoked %d times", calls.Load())
	}
}

func TestPanickingListenerDoesNotStopDelivery(t *testing.T) {
	b := New(nil)
	var secondCalled atomic.Bool
	b.On("ev", func(any) { panic("boom") })
	b.On("ev", func(any) { secondCalled.Store(true) })

	b.Emit("ev", nil)

	if !secondCalled.Load() {
		t.Fatal("listener after a panicking one was not invoked")
	}
}

func TestRemoveAllForEventLeavesOtherEventsAlone(t *testing.T) {
	b := New(nil)
	var a, other atomic.Int64
	b.On("a", func(any) { a.Add(1) })
	b.On("other", func(any) { other.Add(1) })

	b.RemoveAllForEvent("a")
	b.Emit("a", nil)
	b.Emit("other", nil)

	if a.Load() != 0 {
		t.Fatal("event a should have no listeners left")
	}
	if other.Load() != 1 {
		t.Fatal("event other's listener should be unaffected")
	}
}

func TestRemoveAllClearsEverything(t *testing.T) {
	b := New(nil)
	var calls atomic.Int64
	b.On("a", func(any) { calls.Add(1) })
	b.On("b", func(any) { calls.Add(1) })

	b.RemoveAll()
	b.Emit("a", nil)
	b.Emit("b", nil)

	if calls.Load() != 0 {
		t.Fatal("RemoveAll should have cleared every listener")
	}
}

var namedHandlerCalls atomic.Int64

func namedHandler(payload any) { namedHandlerCalls.Add(1) }

func TestDuplicateNamedFunctionAddIsIdempotent(t *testing.T) {
	namedHandlerCalls.Store(0)
	b := New(nil)
	b.On("ev", namedHandler)
	b.On("ev", namedHandler)

	var calls atomic.Int64
	b.On("ev", func(any) { calls.Add(1) })
	b.Emit("ev", nil)

	if namedHandlerCalls.Load() != 1 {
		t.Fatalf("named handler added twice fired %d times, want 1", namedHandlerCalls.Load())
	}
	if calls.Load() != 1 {
		t.Fatalf("expected the distinct closure to fire once, got %d", calls.Load())
	}
}
