package transload

import (
	"sync"

	"github.com/bitrise-io/go-utils/v2/log"
)

// Coordinator fans a single source stream out to every live Leg in input
// order, and turns per-Leg write acceptance into stuck/unstuck/unusable
// signals for the Source Reader (spec §2 C2, §4.2).
type Coordinator struct {
	legs   []*Leg
	logger log.Logger

	sigMu      sync.Mutex
	onStuck    func(idx uint)
	onUnstuck  func(idx uint)
	onUnusable func()
}

// NewCoordinator takes ownership of legs in input order. The caller must
// not mutate the slice afterward.
func NewCoordinator(legs []*Leg, logger log.Logger) *Coordinator {
	c := &Coordinator{legs: legs, logger: logger}
	for _, l := range legs {
		l.SetCallbacks(c.legStuck, c.legUnstuck)
	}
	return c
}

// Subscribe registers the Source Reader's signal handlers. Only one
// subscriber is supported, matching spec §4.2's "single-consumer" signals.
func (c *Coordinator) Subscribe(onStuck, onUnstuck func(idx uint), onUnusable func()) {
	c.sigMu.Lock()
	defer c.sigMu.Unlock()
	c.onStuck = onStuck
	c.onUnstuck = onUnstuck
	c.onUnusable = onUnusable
}

func (c *Coordinator) legStuck(idx uint) {
	c.sigMu.Lock()
	cb := c.onStuck
	c.sigMu.Unlock()
	if cb != nil {
		cb(idx)
	}
}

func (c *Coordinator) legUnstuck(idx uint) {
	c.sigMu.Lock()
	cb := c.onUnstuck
	c.sigMu.Unlock()
	if cb != nil {
		cb(idx)
	}
}

func (c *Coordinator) emitUnusable() {
	c.sigMu.Lock()
	cb := c.onUnusable
	c.sigMu.Unlock()
	if cb != nil {
		cb()
	}
}

// SetSize forwards the source's declared content length to every Leg.
func (c *Coordinator) SetSize(contentLength uint64) {
	for _, l := range c.legs {
		l.SetSize(contentLength)
	}
}

// SetFilename forwards the session-derived filename to every Leg that
// doesn't already have one.
func (c *Coordinator) SetFilename(name string) {
	for _, l := range c.legs {
		l.SetFilename(name)
	}
}

// Broadcast writes chunk to every live Leg, in input order, without
// reordering or coalescing (spec §4.2 ordering guarantees). Stuck/unstuck
// signals are emitted by the Legs themselves via the callbacks wired in
// NewCoordinator. Broadcast itself only emits unusable, when it finds no
// live leg at all; a leg whose run() fails is handled by LegRejected.
func (c *Coordinator) Broadcast(chunk []byte) {
	anyAlive := false
	for _, l := range c.legs {
		if !l.IsAlive() {
			continue
		}
		anyAlive = true
		l.Write(chunk)
	}
	if !anyAlive {
		c.emitUnusable()
	}
}

// LegRejected is called whenever a Leg's run() settles with an error while
// other legs may still be streaming to it — i.e. the HTTP request died
// before the buffer did. It tears the leg's buffer down (Abort is
// idempotent, so this is safe even if the leg already settled itself) and
// re-evaluates liveness (spec §4.2: "On every run() rejection from a Leg").
func (c *Coordinator) LegRejected(idx uint, err error) {
	if int(idx) < len(c.legs) {
		c.legs[idx].Abort(err)
	}
	if c.AllDead() {
		c.emitUnusable()
	} else {
		c.legUnstuck(idx)
	}
}

// FinalizeAll finalizes every live Leg (clean end of source stream).
func (c *Coordinator) FinalizeAll() {
	for _, l := range c.legs {
		l.Finalize()
	}
}

// AbortAll aborts every Leg with err (source-side failure or session
// cancellation).
func (c *Coordinator) AbortAll(err error) {
	for _, l := range c.legs {
		l.Abort(&legError{index: l.Index(), phase: legPhaseSourceAbort, err: err})
	}
}

// AllDead reports whether every Leg has settled.
func (c *Coordinator) AllDead() bool {
	for _, l := range c.legs {
		if l.IsAlive() {
			return false
		}
	}
	return true
}

// Legs returns the coordinator's legs in input order, for the Session to
// schedule Run() on and the Result Assembler to fold.
func (c *Coordinator) Legs() []*Leg {
	return c.legs
}
