package rpc

import "time"

// startHeartbeat begins the recurring heartbeat notification if
// HeartbeatInterval is positive. It stops on every non-Open transition
// and restarts on each Open, so it is always called from handleOpen.
func (s *Session) startHeartbeat() {
	s.stopHeartbeat()

	s.mu.Lock()
	interval := s.cfg.heartbeatInterval()
	method := s.cfg.HeartbeatMethod
	s.mu.Unlock()

	if interval <= 0 {
		return
	}

	stop := make(chan struct{})
	s.mu.Lock()
	s.heartbeatStop = stop
	s.mu.Unlock()

	go s.runHeartbeat(interval, method, stop)
}

func (s *Session) runHeartbeat(interval time.Duration, method string, stop chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := s.Notify(method, nil); err != nil {
				s.logger.Warn("heartbeat notification failed", "method", method, "error", err)
			}
		}
	}
}

func (s *Session) stopHeartbeat() {
	s.mu.Lock()
	stop := s.heartbeatStop
	s.heartbeatStop = nil
	s.mu.Unlock()
	if stop != nil {
		close(stop)
	}
}
