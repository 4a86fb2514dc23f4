package transload

import "time"

// realIdleTimer wraps time.AfterFunc so Leg can Reset/Stop it without
// caring whether it has fired yet; Reset arms a fresh IdleTimeout window
// regardless of previous state, matching time.Timer.Reset's documented
// (if slightly awkward) semantics for an already-fired timer.
type realIdleTimer struct {
	timer *time.Timer
}

func newRealIdleTimer(onTimeout func()) *realIdleTimer {
	t := time.AfterFunc(IdleTimeout, onTimeout)
	t.Stop()
	return &realIdleTimer{timer: t}
}

func (r *realIdleTimer) Reset() { r.timer.Reset(IdleTimeout) }
func (r *realIdleTimer) Stop()  { r.timer.Stop() }
