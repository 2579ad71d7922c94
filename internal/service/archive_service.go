package service

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/inboxvault/inboxvault/internal/dto"
	"github.com/inboxvault/inboxvault/internal/extract"
	"github.com/inboxvault/inboxvault/internal/models"
	appErrors "github.com/inboxvault/inboxvault/pkg/errors"
)

type vaultStore interface {
	Add(ctx context.Context, rec models.ArchivedRecord) (models.ArchivedRecord, bool, error)
	RemoveMany(ctx context.Context, ids []string) ([]models.ArchivedRecord, error)
	SetNotes(ctx context.Context, id, notes string) (models.ArchivedRecord, bool, error)
	Clear(ctx context.Context) (int, error)
	Len() int
}

type viewReconciler interface {
	Kick()
	Reveal(recs []models.ArchivedRecord)
}

type entrySource interface {
	Lookup(handle uint64) (models.RawItem, bool)
}

type auditLogger interface {
	Record(ctx context.Context, action string, recordID *string, detail map[string]interface{})
}

type archiveMetrics interface {
	SetArchiveSize(n int)
	IncArchiveOp(op string, n int)
}

// ArchiveService owns the archive mutations: hiding live entries into
// the store, restoring them, clearing, and annotating.
type ArchiveService struct {
	store      vaultStore
	view       entrySource
	reconciler viewReconciler
	audit      auditLogger
	metrics    archiveMetrics
	validator  *validator.Validate
	logger     *zap.Logger
}

func NewArchiveService(store vaultStore, view entrySource, reconciler viewReconciler, audit auditLogger, metrics archiveMetrics, logger *zap.Logger) *ArchiveService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ArchiveService{
		store:      store,
		view:       view,
		reconciler: reconciler,
		audit:      audit,
		metrics:    metrics,
		validator:  validator.New(),
		logger:     logger,
	}
}

// Archive extracts and stores the submitted live entries. Entries
// whose derived id is already archived count as duplicates and leave
// the stored record untouched. The view is reconciled afterwards so
// newly archived entries disappear.
func (s *ArchiveService) Archive(ctx context.Context, req dto.ArchiveRequest) (dto.ArchiveResponse, error) {
	if len(req.Items) == 0 && len(req.Handles) == 0 {
		return dto.ArchiveResponse{}, appErrors.Clone(appErrors.ErrValidation, "archive payload names no items or handles")
	}

	raw := make([]models.RawItem, 0, len(req.Items)+len(req.Handles))
	for _, item := range req.Items {
		raw = append(raw, item.Model())
	}
	for _, handle := range req.Handles {
		if s.view == nil {
			break
		}
		item, ok := s.view.Lookup(handle)
		if !ok {
			s.logger.Warn("archive handle not in view", zap.Uint64("handle", handle))
			continue
		}
		raw = append(raw, item)
	}

	now := time.Now().UTC()
	archived := make([]models.ArchivedRecord, 0, len(raw))
	duplicates := 0

	for _, item := range raw {
		rec := extract.Extract(item, now)
		stored, added, err := s.store.Add(ctx, rec)
		if err != nil {
			return dto.ArchiveResponse{}, err
		}
		if !added {
			duplicates++
			continue
		}
		archived = append(archived, stored)
		id := stored.ID
		s.emitAudit(ctx, models.AuditActionArchive, &id, map[string]interface{}{"username": stored.Username})
	}

	if len(archived) > 0 {
		s.reconciler.Kick()
	}
	s.observe(models.AuditActionArchive, len(archived))
	s.logger.Info("entries archived",
		zap.Int("archived", len(archived)), zap.Int("duplicates", duplicates))

	return dto.ArchiveResponse{
		Archived:   dto.NewRecordViews(archived, now),
		Duplicates: duplicates,
	}, nil
}

// Restore removes the named records from the archive and unhides their
// live entries. Ids that are not archived are skipped silently, so a
// restore that races an external removal still succeeds.
func (s *ArchiveService) Restore(ctx context.Context, req dto.RestoreRequest) (dto.RestoreResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.RestoreResponse{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid restore payload")
	}

	removed, err := s.store.RemoveMany(ctx, req.IDs)
	if err != nil {
		return dto.RestoreResponse{}, err
	}

	if len(removed) > 0 {
		s.reconciler.Reveal(removed)
		for _, rec := range removed {
			id := rec.ID
			s.emitAudit(ctx, models.AuditActionRestore, &id, nil)
		}
	}
	s.observe(models.AuditActionRestore, len(removed))
	s.logger.Info("entries restored", zap.Int("restored", len(removed)))

	return dto.RestoreResponse{Restored: dto.NewRecordViews(removed, time.Now().UTC())}, nil
}

// Clear drops the whole archive and reconciles so every previously
// hidden entry resurfaces.
func (s *ArchiveService) Clear(ctx context.Context) (dto.ClearResponse, error) {
	dropped, err := s.store.Clear(ctx)
	if err != nil {
		return dto.ClearResponse{}, err
	}

	s.reconciler.Kick()
	s.emitAudit(ctx, models.AuditActionClear, nil, map[string]interface{}{"dropped": dropped})
	s.observe(models.AuditActionClear, dropped)
	s.logger.Info("archive cleared", zap.Int("dropped", dropped))

	return dto.ClearResponse{Dropped: dropped}, nil
}

// SetNotes replaces the notes on an archived record. An id that is no
// longer archived leaves the store untouched and reports Updated
// false, so a notes edit racing an external removal still succeeds.
func (s *ArchiveService) SetNotes(ctx context.Context, id string, req dto.NotesRequest) (dto.NotesResponse, error) {
	rec, updated, err := s.store.SetNotes(ctx, id, req.Notes)
	if err != nil {
		return dto.NotesResponse{}, err
	}
	if !updated {
		return dto.NotesResponse{}, nil
	}

	s.emitAudit(ctx, models.AuditActionNotes, &id, nil)
	view := dto.NewRecordView(rec, time.Now().UTC())
	return dto.NotesResponse{Updated: true, Record: &view}, nil
}

func (s *ArchiveService) emitAudit(ctx context.Context, action string, recordID *string, detail map[string]interface{}) {
	if s.audit == nil {
		return
	}
	s.audit.Record(ctx, action, recordID, detail)
}

func (s *ArchiveService) observe(op string, n int) {
	if s.metrics == nil {
		return
	}
	s.metrics.IncArchiveOp(op, n)
	s.metrics.SetArchiveSize(s.store.Len())
}
