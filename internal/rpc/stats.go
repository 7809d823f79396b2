package rpc

import (
	"sync"
	"sync/atomic"
	"time"
)

const responseTimeSamples = 100

// Stats is an immutable snapshot of a Session's performance counters.
type Stats struct {
	RequestsSent        uint64
	ResponsesReceived   uint64
	Timeouts            uint64
	Errors              uint64
	ReconnectCount      uint64
	AverageResponseTime time.Duration
	PendingRequests     int
}

// statsTracker holds the live, mutable counters a Session updates as it
// runs. Counters are atomic so the read/write-loop goroutine and caller
// goroutines can update them without contending on the session's main
// mutex; response-time samples use their own small mutex because a mean
// must be computed over the whole ring.
type statsTracker struct {
	requestsSent      atomic.Uint64
	responsesReceived atomic.Uint64
	timeouts          atomic.Uint64
	errors            atomic.Uint64
	reconnectCount    atomic.Uint64

	mu      sync.Mutex
	samples []time.Duration
	next    int
}

func (s *statsTracker) recordResponseTime(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.samples) < responseTimeSamples {
		s.samples = append(s.samples, d)
		return
	}
	s.samples[s.next] = d
	s.next = (s.next + 1) % responseTimeSamples
}

func (s *statsTracker) averageResponseTime() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.samples) == 0 {
		return 0
	}
	var total time.Duration
	for _, d := range s.samples {
		total += d
	}
	return total / time.Duration(len(s.samples))
}

func (s *statsTracker) snapshot(pending int) Stats {
	return Stats{
		RequestsSent:        s.requestsSent.Load(),
		ResponsesReceived:   s.responsesReceived.Load(),
		Timeouts:            s.timeouts.Load(),
		Errors:              s.errors.Load(),
		ReconnectCount:      s.reconnectCount.Load(),
		AverageResponseTime: s.averageResponseTime(),
		PendingRequests:     pending,
	}
}
