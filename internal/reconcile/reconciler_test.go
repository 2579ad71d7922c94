package reconcile

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/inboxvault/inboxvault/internal/extract"
	"github.com/inboxvault/inboxvault/internal/models"
	"github.com/inboxvault/inboxvault/internal/store"
	"github.com/inboxvault/inboxvault/pkg/config"
)

type stubItem struct {
	mu         sync.Mutex
	externalID string
	text       string
	html       string
	handle     uint64
	hidden     bool
}

func (i *stubItem) ExternalID() string { return i.externalID }
func (i *stubItem) Text() string       { return i.text }
func (i *stubItem) HTML() string       { return i.html }
func (i *stubItem) Handle() uint64     { return i.handle }

func (i *stubItem) Hidden() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.hidden
}

func (i *stubItem) SetHidden(hidden bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.hidden = hidden
}

type stubView struct {
	mu      sync.Mutex
	items   []Item
	changes chan struct{}
	nudges  atomic.Int32
}

func newStubView(items ...Item) *stubView {
	return &stubView{items: items, changes: make(chan struct{}, 1)}
}

func (v *stubView) Items() []Item {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]Item, len(v.items))
	copy(out, v.items)
	return out
}

func (v *stubView) Changes() <-chan struct{} { return v.changes }
func (v *stubView) Nudge()                   { v.nudges.Add(1) }

func (v *stubView) signalChange() {
	select {
	case v.changes <- struct{}{}:
	default:
	}
}

type stubArchive struct {
	mu      sync.Mutex
	ids     map[string]bool
	hits    map[string]int
	reloads atomic.Int32
}

func newStubArchive(ids ...string) *stubArchive {
	a := &stubArchive{ids: make(map[string]bool), hits: make(map[string]int)}
	for _, id := range ids {
		a.ids[id] = true
	}
	return a
}

func (a *stubArchive) Contains(id string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.hits[id]++
	return a.ids[id]
}

func (a *stubArchive) lookups(id string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.hits[id]
}

func (a *stubArchive) Reload(context.Context) error {
	a.reloads.Add(1)
	return nil
}

func (a *stubArchive) set(id string, archived bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.ids[id] = archived
}

func testConfig() config.ReconcilerConfig {
	return config.ReconcilerConfig{
		Debounce:   20 * time.Millisecond,
		BatchSize:  2,
		BatchPause: time.Millisecond,
	}
}

func startReconciler(t *testing.T, view View, archive Archive, guard *store.Guard, changes <-chan store.Notification) *Reconciler {
	t.Helper()
	r := New(view, archive, guard, changes, testConfig(), nil, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = r.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return r
}

func TestReconciler_HidesArchivedItems(t *testing.T) {
	archived := &stubItem{externalID: "conv-1", text: "Alice\nhello", handle: 1}
	visible := &stubItem{externalID: "conv-2", text: "Bob\nhey", handle: 2}
	view := newStubView(archived, visible)
	archive := newStubArchive("conv-1")

	startReconciler(t, view, archive, store.NewGuard(), nil)

	assert.Eventually(t, func() bool { return archived.Hidden() }, time.Second, 5*time.Millisecond)
	assert.False(t, visible.Hidden())
}

func TestReconciler_DebouncedViewChanges(t *testing.T) {
	item := &stubItem{externalID: "conv-1", text: "Alice\nhello", handle: 1}
	view := newStubView()
	archive := newStubArchive("conv-1")

	startReconciler(t, view, archive, store.NewGuard(), nil)

	// The item appears only after the initial refresh already ran, so
	// hiding it requires the change signal to be honored.
	view.mu.Lock()
	view.items = []Item{item}
	view.mu.Unlock()
	view.signalChange()
	view.signalChange()

	assert.Eventually(t, func() bool { return item.Hidden() }, time.Second, 5*time.Millisecond)
}

func TestReconciler_DebouncedChangeSkipsProcessedHandles(t *testing.T) {
	first := &stubItem{externalID: "conv-1", text: "Alice\nhello", handle: 1}
	view := newStubView(first)
	archive := newStubArchive("conv-1", "conv-2")

	startReconciler(t, view, archive, store.NewGuard(), nil)
	assert.Eventually(t, func() bool { return first.Hidden() }, time.Second, 5*time.Millisecond)

	// A new entry joins the render; the debounced pass must only
	// derive the new handle, not rework conv-1.
	second := &stubItem{externalID: "conv-2", text: "Bob\nhey", handle: 2}
	view.mu.Lock()
	view.items = []Item{first, second}
	view.mu.Unlock()
	view.signalChange()

	assert.Eventually(t, func() bool { return second.Hidden() }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, archive.lookups("conv-1"), "processed handle must not be re-derived")
	assert.Equal(t, 1, archive.lookups("conv-2"))
}

type stubMetrics struct {
	refreshes atomic.Int32
}

func (m *stubMetrics) IncViewRefresh() { m.refreshes.Add(1) }

func TestReconciler_CountsRefreshPasses(t *testing.T) {
	view := newStubView()
	metrics := &stubMetrics{}
	r := New(view, newStubArchive(), store.NewGuard(), nil, testConfig(), metrics, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = r.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	assert.Eventually(t, func() bool { return metrics.refreshes.Load() >= 1 }, time.Second, 5*time.Millisecond)
	r.Kick()
	assert.Eventually(t, func() bool { return metrics.refreshes.Load() >= 2 }, time.Second, 5*time.Millisecond)
}

func TestReconciler_KickBypassesDebounce(t *testing.T) {
	item := &stubItem{externalID: "conv-1", text: "Alice\nhello", handle: 1}
	view := newStubView()
	archive := newStubArchive("conv-1")

	r := startReconciler(t, view, archive, store.NewGuard(), nil)

	view.mu.Lock()
	view.items = []Item{item}
	view.mu.Unlock()
	r.Kick()

	assert.Eventually(t, func() bool { return item.Hidden() }, time.Second, 5*time.Millisecond)
}

func TestReconciler_GuardSuppressesOwnNotifications(t *testing.T) {
	view := newStubView()
	archive := newStubArchive()
	guard := store.NewGuard()
	changes := make(chan store.Notification, 2)

	startReconciler(t, view, archive, guard, changes)

	guard.Raise()
	changes <- store.Notification{}
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(0), archive.reloads.Load(), "own write must not trigger a reload")

	guard.Lower()
	changes <- store.Notification{}
	assert.Eventually(t, func() bool { return archive.reloads.Load() == 1 }, time.Second, 5*time.Millisecond)
}

func TestReconciler_ExternalChangeRefreshesView(t *testing.T) {
	item := &stubItem{externalID: "conv-1", text: "Alice\nhello", handle: 1}
	view := newStubView(item)
	archive := newStubArchive()
	changes := make(chan store.Notification, 1)

	startReconciler(t, view, archive, store.NewGuard(), changes)

	// Another writer archives conv-1; the notification must both
	// reload and re-apply visibility.
	archive.set("conv-1", true)
	changes <- store.Notification{}

	assert.Eventually(t, func() bool {
		return archive.reloads.Load() == 1 && item.Hidden()
	}, time.Second, 5*time.Millisecond)
}

func TestReconciler_RevealByID(t *testing.T) {
	// The archive still contains conv-1, so the initial refresh keeps
	// the entry hidden; only the reveal may unhide it.
	item := &stubItem{externalID: "conv-1", text: "Alice\nhello", handle: 1, hidden: true}
	view := newStubView(item)

	r := startReconciler(t, view, newStubArchive("conv-1"), store.NewGuard(), nil)

	r.Reveal([]models.ArchivedRecord{{ID: "conv-1", Username: "Alice"}})

	assert.Eventually(t, func() bool { return !item.Hidden() }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(0), view.nudges.Load())
}

func TestReconciler_RevealFallsBackToContentMatch(t *testing.T) {
	// The host re-rendered with different volatile text, so the
	// derived id no longer matches the archived one. Archiving the
	// live id keeps the entry hidden through the initial refresh.
	item := &stubItem{text: "Alice · 2h\nhello again", handle: 1, hidden: true}
	liveID := extract.DeriveID(models.RawItem{Text: item.text})
	view := newStubView(item)

	r := startReconciler(t, view, newStubArchive(liveID), store.NewGuard(), nil)

	r.Reveal([]models.ArchivedRecord{{ID: "stale-id", Username: "Alice"}})

	assert.Eventually(t, func() bool { return !item.Hidden() }, time.Second, 5*time.Millisecond)
}

func TestReconciler_RevealNudgesWhenNoLiveEntry(t *testing.T) {
	view := newStubView()

	r := startReconciler(t, view, newStubArchive(), store.NewGuard(), nil)

	r.Reveal([]models.ArchivedRecord{{ID: "gone", Username: "Alice"}})

	assert.Eventually(t, func() bool { return view.nudges.Load() == 1 }, time.Second, 5*time.Millisecond)
}

func TestReconciler_RevealFallbackSkipsPlaceholderUsername(t *testing.T) {
	// The hidden entry stays archived under its live id, so the
	// initial refresh leaves it hidden and the reveal has to choose
	// between content-matching and nudging.
	item := &stubItem{text: "User content here", handle: 1, hidden: true}
	liveID := extract.DeriveID(models.RawItem{Text: item.text})
	view := newStubView(item)

	r := startReconciler(t, view, newStubArchive(liveID), store.NewGuard(), nil)

	r.Reveal([]models.ArchivedRecord{{ID: "stale-id", Username: models.FallbackUsername}})

	assert.Eventually(t, func() bool { return view.nudges.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.True(t, item.Hidden(), "placeholder username must not content-match")
}

func TestReconciler_RevealEmptyIsNoop(t *testing.T) {
	r := New(newStubView(), newStubArchive(), store.NewGuard(), nil, testConfig(), nil, zap.NewNop())
	require.NotPanics(t, func() { r.Reveal(nil) })
}
