package store

import "sync/atomic"

// Guard suppresses self-notification loops. The store raises it around
// every write it makes to the shared medium, so the change notification
// that write triggers is recognized as self-inflicted and skipped,
// while notifications from other writers are still acted on.
//
// There is exactly one Guard per process, constructed once and shared
// by reference between the store and the reconciler. It counts rather
// than toggles so overlapping writes cannot lower each other's cover.
type Guard struct {
	raised atomic.Int64
}

func NewGuard() *Guard {
	return &Guard{}
}

// Raise marks a self-initiated write in flight. Every Raise must be
// paired with exactly one Lower.
func (g *Guard) Raise() {
	g.raised.Add(1)
}

// Lower releases one Raise.
func (g *Guard) Lower() {
	g.raised.Add(-1)
}

// Held reports whether any self-initiated write is still covered.
func (g *Guard) Held() bool {
	return g.raised.Load() > 0
}
