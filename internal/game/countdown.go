package game

import (
	"time"
)

// countdown is one phase's 1-second-tick timer. The machine owns at most one
// at a time; replacing or stopping it is synchronous and effective
// immediately, and a tick from a stopped countdown is a no-op by identity
// check on the dispatch loop.
type countdown struct {
	phase     Phase
	remaining int
	stop      chan struct{}
}

// startCountdown replaces any running countdown. Ticks are marshaled onto
// the dispatch loop, so they serialize with push deliveries; onExpire runs
// there too, at most once.
func (s *Synchronizer) startCountdown(phase Phase, seconds int, onExpire func()) {
	s.stopCountdown()
	cd := &countdown{phase: phase, remaining: seconds, stop: make(chan struct{})}
	s.timer = cd

	ticker := s.clock.NewTicker(time.Second)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-cd.stop:
				return
			case <-ticker.Chan():
				s.bus.Do(func() {
					if s.timer != cd {
						// Stopped or replaced after this tick was queued.
						return
					}
					cd.remaining--
					s.notifier.CountdownTick(phase, cd.remaining)
					if cd.remaining <= 0 {
						s.stopCountdown()
						onExpire()
					}
				})
			}
		}
	}()
}

// stopCountdown stops the active countdown, if any. Idempotent.
func (s *Synchronizer) stopCountdown() {
	if s.timer == nil {
		return
	}
	close(s.timer.stop)
	s.timer = nil
}
