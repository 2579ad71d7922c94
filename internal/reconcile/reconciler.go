package reconcile

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/inboxvault/inboxvault/internal/extract"
	"github.com/inboxvault/inboxvault/internal/models"
	"github.com/inboxvault/inboxvault/internal/store"
	"github.com/inboxvault/inboxvault/pkg/config"
)

// Archive is the part of the store the reconciler needs: membership
// checks and re-reads after external changes.
type Archive interface {
	Contains(id string) bool
	Reload(ctx context.Context) error
}

// Metrics counts reconciliation passes. Optional.
type Metrics interface {
	IncViewRefresh()
}

// Reconciler keeps the live view consistent with the archive: archived
// entries hidden, everything else visible. All view access happens on
// the single Run goroutine, so the view never sees concurrent
// mutations from this process.
type Reconciler struct {
	view    View
	archive Archive
	guard   *store.Guard
	changes <-chan store.Notification
	cfg     config.ReconcilerConfig
	metrics Metrics
	logger  *zap.Logger

	kicks   chan struct{}
	reveals chan []models.ArchivedRecord

	// processed tracks the handles already reconciled. Only touched
	// from the Run goroutine.
	processed map[uint64]struct{}
}

func New(view View, archive Archive, guard *store.Guard, changes <-chan store.Notification, cfg config.ReconcilerConfig, metrics Metrics, logger *zap.Logger) *Reconciler {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = 300 * time.Millisecond
	}
	return &Reconciler{
		view:      view,
		archive:   archive,
		guard:     guard,
		changes:   changes,
		cfg:       cfg,
		metrics:   metrics,
		logger:    logger,
		kicks:     make(chan struct{}, 1),
		reveals:   make(chan []models.ArchivedRecord, 16),
		processed: make(map[uint64]struct{}),
	}
}

// Kick requests an immediate full refresh, bypassing the debounce.
// Non-blocking; pending kicks coalesce.
func (r *Reconciler) Kick() {
	select {
	case r.kicks <- struct{}{}:
	default:
	}
}

// Reveal unhides the live entries for restored records. Only call
// while Run is active.
func (r *Reconciler) Reveal(recs []models.ArchivedRecord) {
	if len(recs) == 0 {
		return
	}
	r.reveals <- recs
}

// Run owns the reconciliation loop until ctx is cancelled. View
// change signals are debounced because hosts re-render in bursts;
// kicks and reveals apply immediately.
func (r *Reconciler) Run(ctx context.Context) error {
	debounce := time.NewTimer(r.cfg.Debounce)
	if !debounce.Stop() {
		<-debounce.C
	}
	defer debounce.Stop()
	armed := false

	r.refreshAll(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-r.view.Changes():
			if armed && !debounce.Stop() {
				select {
				case <-debounce.C:
				default:
				}
			}
			debounce.Reset(r.cfg.Debounce)
			armed = true

		case <-debounce.C:
			armed = false
			r.refreshNew(ctx)

		case <-r.kicks:
			r.refreshAll(ctx)

		case recs := <-r.reveals:
			r.reveal(recs)

		case _, ok := <-r.changes:
			if !ok {
				r.changes = nil
				continue
			}
			if r.guard.Held() {
				continue
			}
			if err := r.archive.Reload(ctx); err != nil {
				r.logger.Error("reload after external change", zap.Error(err))
				continue
			}
			r.logger.Info("archive changed externally, refreshing view")
			r.refreshAll(ctx)
		}
	}
}

// refreshAll reconciles every entry, re-deriving ids even for handles
// already seen. Kicks, external changes and startup come through here.
func (r *Reconciler) refreshAll(ctx context.Context) {
	r.refresh(ctx, true)
}

// refreshNew reconciles only entries whose handle has not been
// processed yet. Debounced view changes come through here, so a burst
// of re-render signals does not re-derive ids for the whole list.
func (r *Reconciler) refreshNew(ctx context.Context) {
	r.refresh(ctx, false)
}

// refresh applies the archived state to view entries. Work proceeds in
// small batches with a pause in between so a large list does not
// starve the host. Processed handles are remembered; handles gone from
// the view are forgotten so the table tracks the live render.
func (r *Reconciler) refresh(ctx context.Context, full bool) {
	items := r.view.Items()

	pending := items
	if full {
		r.processed = make(map[uint64]struct{}, len(items))
	} else {
		pending = make([]Item, 0, len(items))
		current := make(map[uint64]struct{}, len(items))
		for _, item := range items {
			handle := item.Handle()
			if _, ok := r.processed[handle]; ok {
				current[handle] = struct{}{}
				continue
			}
			pending = append(pending, item)
		}
		r.processed = current
	}

	hidden, shown := 0, 0
	for start := 0; start < len(pending); start += r.cfg.BatchSize {
		end := start + r.cfg.BatchSize
		if end > len(pending) {
			end = len(pending)
		}
		for _, item := range pending[start:end] {
			r.processed[item.Handle()] = struct{}{}
			want := r.archive.Contains(r.itemID(item))
			if item.Hidden() == want {
				continue
			}
			item.SetHidden(want)
			if want {
				hidden++
			} else {
				shown++
			}
		}
		if end < len(pending) && r.cfg.BatchPause > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(r.cfg.BatchPause):
			}
		}
	}

	if r.metrics != nil {
		r.metrics.IncViewRefresh()
	}
	if hidden > 0 || shown > 0 {
		r.logger.Debug("view refreshed",
			zap.Int("items", len(items)), zap.Int("hidden", hidden), zap.Int("shown", shown))
	}
}

// reveal unhides the entries for restored records. An entry whose
// derived id no longer matches, because the host re-rendered it with
// different volatile text, is matched by content instead. Records with
// no live entry at all trigger a host redraw.
func (r *Reconciler) reveal(recs []models.ArchivedRecord) {
	items := r.view.Items()
	missing := 0

	for _, rec := range recs {
		if r.revealByID(items, rec.ID) {
			continue
		}
		if r.revealByContent(items, rec) {
			continue
		}
		missing++
	}

	if missing > 0 {
		r.logger.Debug("restored records without live entries", zap.Int("missing", missing))
		r.view.Nudge()
	}
}

func (r *Reconciler) revealByID(items []Item, id string) bool {
	for _, item := range items {
		if r.itemID(item) == id {
			item.SetHidden(false)
			return true
		}
	}
	return false
}

func (r *Reconciler) revealByContent(items []Item, rec models.ArchivedRecord) bool {
	if rec.Username == "" || rec.Username == models.FallbackUsername {
		return false
	}
	for _, item := range items {
		if item.Hidden() && strings.Contains(item.Text(), rec.Username) {
			item.SetHidden(false)
			return true
		}
	}
	return false
}

func (r *Reconciler) itemID(item Item) string {
	return extract.DeriveID(models.RawItem{
		ExternalID: item.ExternalID(),
		HTML:       item.HTML(),
		Text:       item.Text(),
	})
}
