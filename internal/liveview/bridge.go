package liveview

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/inboxvault/inboxvault/internal/models"
	"github.com/inboxvault/inboxvault/internal/reconcile"
)

// Entry is one live conversation element mirrored from the host view.
type Entry struct {
	raw    models.RawItem
	handle uint64

	mu     sync.Mutex
	hidden bool
}

func (e *Entry) ExternalID() string { return e.raw.ExternalID }
func (e *Entry) Text() string       { return e.raw.Text }
func (e *Entry) HTML() string       { return e.raw.HTML }
func (e *Entry) Handle() uint64     { return e.handle }

func (e *Entry) Hidden() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.hidden
}

func (e *Entry) SetHidden(hidden bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.hidden = hidden
}

// EntryState is the ingest-facing snapshot of one live entry.
type EntryState struct {
	Handle     uint64 `json:"handle"`
	ExternalID string `json:"externalId,omitempty"`
	Text       string `json:"text"`
	Hidden     bool   `json:"hidden"`
}

// Bridge mirrors an externally rendered conversation list into the
// process. The host pushes full re-renders through Replace; the
// reconciler consumes the mirrored entries through the view interface.
//
// Replace deliberately resets hidden state: a host re-render
// resurfaces archived entries until the next reconciliation pass, the
// same way a real list rebuild would.
type Bridge struct {
	logger *zap.Logger

	mu      sync.RWMutex
	entries []*Entry

	changes    chan struct{}
	nextHandle atomic.Uint64
	nudges     atomic.Int64
}

func NewBridge(logger *zap.Logger) *Bridge {
	return &Bridge{
		logger:  logger,
		changes: make(chan struct{}, 1),
	}
}

// Replace swaps the mirrored list for a fresh host render and signals
// a view change. Every entry gets a new handle; handles never repeat.
func (b *Bridge) Replace(items []models.RawItem) {
	entries := make([]*Entry, 0, len(items))
	for _, item := range items {
		entries = append(entries, &Entry{
			raw:    item,
			handle: b.nextHandle.Add(1),
		})
	}

	b.mu.Lock()
	b.entries = entries
	b.mu.Unlock()

	b.logger.Debug("view replaced", zap.Int("entries", len(entries)))
	b.signal()
}

// Lookup resolves a handle to its raw item. Handles from superseded
// renders resolve to nothing.
func (b *Bridge) Lookup(handle uint64) (models.RawItem, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, e := range b.entries {
		if e.handle == handle {
			return e.raw, true
		}
	}
	return models.RawItem{}, false
}

// Items returns the mirrored entries as reconciler items.
func (b *Bridge) Items() []reconcile.Item {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]reconcile.Item, len(b.entries))
	for i, e := range b.entries {
		out[i] = e
	}
	return out
}

// Changes implements the view change signal. Signals coalesce.
func (b *Bridge) Changes() <-chan struct{} {
	return b.changes
}

// Nudge counts redraw requests. A real host adapter would jiggle the
// list's scroll position here to force its virtualized renderer to
// rebuild; the bridge records the request and re-signals instead.
func (b *Bridge) Nudge() {
	b.nudges.Add(1)
	b.signal()
}

// NudgeCount reports how many redraws have been requested.
func (b *Bridge) NudgeCount() int64 {
	return b.nudges.Load()
}

// Snapshot returns the externally visible state of every entry.
func (b *Bridge) Snapshot() []EntryState {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]EntryState, 0, len(b.entries))
	for _, e := range b.entries {
		out = append(out, EntryState{
			Handle:     e.Handle(),
			ExternalID: e.ExternalID(),
			Text:       e.Text(),
			Hidden:     e.Hidden(),
		})
	}
	return out
}

func (b *Bridge) signal() {
	select {
	case b.changes <- struct{}{}:
	default:
	}
}
