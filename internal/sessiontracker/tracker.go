// Package sessiontracker wires a Transload session into the analytics
// pipeline the teacher repo uses for its cache steps (see the teacher's
// cache.stepTracker, cache/tracker.go, and analytics/track.go), adapted
// from "one event per save/restore phase" to "one event per leg settlement
// plus one for the whole session". Purely observational: nothing here
// affects TransloadResult or control flow.
package sessiontracker

import (
	"time"

	"github.com/bitrise-io/go-utils/v2/analytics"
	"github.com/bitrise-io/go-utils/v2/log"
)

// Tracker enqueues transload lifecycle events.
type Tracker struct {
	tracker analytics.Tracker
}

// New creates a Tracker tagged with the session's correlation ID.
func New(logger log.Logger, sessionID string) Tracker {
	p := analytics.Properties{"session_id": sessionID}
	return Tracker{tracker: analytics.NewDefaultTracker(logger, p)}
}

// LegSucceeded records a successful leg settlement.
func (t Tracker) LegSucceeded(index uint, uploadedBytes uint64, duration time.Duration) {
	t.tracker.Enqueue("transload_leg_completed", analytics.Properties{
		"leg_index":      index,
		"uploaded_bytes": uploadedBytes,
		"duration_s":     duration.Truncate(time.Second).Seconds(),
	})
}

// LegFailed records a leg that ended in error.
func (t Tracker) LegFailed(index uint, reason string, uploadedBytes uint64) {
	t.tracker.Enqueue("transload_leg_failed", analytics.Properties{
		"leg_index":      index,
		"reason":         reason,
		"uploaded_bytes": uploadedBytes,
	})
}

// SessionCompleted records the terminal outcome of the whole session.
func (t Tracker) SessionCompleted(bytesDownloaded uint64, legCount, failedLegCount int, duration time.Duration) {
	t.tracker.Enqueue("transload_session_completed", analytics.Properties{
		"bytes_downloaded": bytesDownloaded,
		"leg_count":        legCount,
		"failed_leg_count": failedLegCount,
		"duration_s":       duration.Truncate(time.Second).Seconds(),
	})
}

// Wait blocks until all enqueued events have been flushed.
func (t Tracker) Wait() {
	t.tracker.Wait()
}
