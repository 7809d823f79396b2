package rpc

import (
	"context"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"
)

// reconnectBreaker bounds consecutive reconnect attempts the way a
// hand-rolled counter would, but as a real circuit breaker: ReadyToTrip
// fires once consecutive failures reach MaxReconnectAttempts, after
// which Execute short-circuits with gobreaker.ErrOpenState instead of
// dialing again, giving "give up and emit reconnect_failed" a concrete
// signal. It does not gate Request/Notify/Stream, only the reconnect
// loop below.
type reconnectBreaker = gobreaker.CircuitBreaker[struct{}]

func newReconnectBreaker(cfg Config, logger *slog.Logger) *gobreaker.CircuitBreaker[struct{}] {
	return gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "rpc-reconnect",
		MaxRequests: 1,
		Timeout:     cfg.ReconnectInterval,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(cfg.MaxReconnectAttempts)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Info("reconnect circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
}

// scheduleReconnect arms the single outstanding reconnect timer. At
// most one is ever outstanding: cancelReconnectTimer always runs before
// a new one is armed, and this method itself replaces any timer it
// finds.
func (s *Session) scheduleReconnect() {
	s.mu.Lock()
	if s.closed || !s.autoReconnectEnabled {
		s.mu.Unlock()
		return
	}
	interval := s.cfg.ReconnectInterval
	s.mu.Unlock()

	s.cancelReconnectTimer()

	s.mu.Lock()
	s.reconnectTimer = time.AfterFunc(interval, s.attemptReconnect)
	s.mu.Unlock()
}

func (s *Session) cancelReconnectTimer() {
	s.mu.Lock()
	t := s.reconnectTimer
	s.reconnectTimer = nil
	s.mu.Unlock()
	if t != nil {
		t.Stop()
	}
}

// attemptReconnect runs on the reconnect timer's own goroutine: emits
// reconnecting with the attempt number drawn from the breaker's own
// consecutive-failure count, then asks the breaker to run one connect
// attempt. A failure that does not trip the breaker re-arms the timer;
// a failure that does trip it emits reconnect_failed and stops.
func (s *Session) attemptReconnect() {
	s.mu.Lock()
	if s.closed || !s.autoReconnectEnabled {
		s.mu.Unlock()
		return
	}
	counts := s.breaker.Counts()
	attempt := int(counts.ConsecutiveFailures) + 1
	maxAttempts := s.cfg.MaxReconnectAttempts
	s.reconnecting = true
	breaker := s.breaker
	s.mu.Unlock()

	s.bus.Emit(EventReconnecting, ReconnectingEvent{Attempt: attempt, MaxAttempts: maxAttempts})
	s.statsT.reconnectCount.Add(1)

	_, err := breaker.Execute(func() (struct{}, error) {
		return struct{}{}, s.connectTransport(context.Background())
	})
	if err == nil {
		return
	}

	if breaker.State() == gobreaker.StateOpen {
		s.emitReconnectFailedOnce()
		return
	}
	s.scheduleReconnect()
}

func (s *Session) emitReconnectFailedOnce() {
	s.mu.Lock()
	if s.reconnectFailedEmitted {
		s.mu.Unlock()
		return
	}
	s.reconnectFailedEmitted = true
	s.reconnecting = false
	s.mu.Unlock()
	s.bus.Emit(EventReconnectFailed, nil)
}
