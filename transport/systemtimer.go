package transport

import (
	"sync"
	"time"
)

// SystemTimer is the production Timer: each handle maps to at most one
// pending time.AfterFunc, mirroring the one-shot/replace-on-reschedule
// contract the engines depend on. Grounded on the vanadium context
// package's time.AfterFunc-backed deadline timer vendored into krd.
type SystemTimer struct {
	mu      sync.Mutex
	pending map[TimerHandle]*time.Timer
}

// NewSystemTimer returns a ready-to-use SystemTimer.
func NewSystemTimer() *SystemTimer {
	return &SystemTimer{pending: make(map[TimerHandle]*time.Timer)}
}

func (s *SystemTimer) SetOneshot(h TimerHandle, ms int, cb func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.pending[h]; ok {
		old.Stop()
	}
	s.pending[h] = time.AfterFunc(time.Duration(ms)*time.Millisecond, func() {
		s.mu.Lock()
		delete(s.pending, h)
		s.mu.Unlock()
		cb()
	})
}

func (s *SystemTimer) Cancel(h TimerHandle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.pending[h]; ok {
		t.Stop()
		delete(s.pending, h)
	}
}
