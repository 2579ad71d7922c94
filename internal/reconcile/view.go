package reconcile

// Item is one live entry in the externally rendered conversation list.
// Hidden is presentation state owned by the reconciler; the host view
// may discard it on any re-render.
type Item interface {
	// ExternalID returns the host-assigned id, empty when absent.
	ExternalID() string
	// Text returns the flattened visible text of the entry.
	Text() string
	// HTML returns the serialized markup of the entry.
	HTML() string
	// Handle identifies the live element instance. Handles are not
	// stable across re-renders; identity across renders comes from
	// derived ids, never from handles.
	Handle() uint64
	Hidden() bool
	SetHidden(bool)
}

// View is the externally controlled conversation list being
// reconciled against the archive.
type View interface {
	// Items returns a snapshot of the current entries.
	Items() []Item
	// Changes signals that the host re-rendered the list. Signals are
	// coalesced; receivers re-read Items rather than trusting deltas.
	Changes() <-chan struct{}
	// Nudge asks the host to redraw, used when a restored entry has no
	// live element to unhide.
	Nudge()
}
