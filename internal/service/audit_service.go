package service

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/inboxvault/inboxvault/internal/models"
	"github.com/inboxvault/inboxvault/pkg/config"
	"github.com/inboxvault/inboxvault/pkg/jobs"
)

type auditCtxKey struct{}

type auditCtxValue struct {
	actor string
	ip    string
}

// WithAuditActor attaches the acting operator to the request context
// so audit entries written deeper in the stack carry it.
func WithAuditActor(ctx context.Context, actor, ip string) context.Context {
	return context.WithValue(ctx, auditCtxKey{}, auditCtxValue{actor: actor, ip: ip})
}

func auditActorFromContext(ctx context.Context) (string, string) {
	if v, ok := ctx.Value(auditCtxKey{}).(auditCtxValue); ok {
		return v.actor, v.ip
	}
	return "", ""
}

type auditStore interface {
	Create(ctx context.Context, entry *models.AuditLog) error
	ListRecent(ctx context.Context, limit int) ([]models.AuditLog, error)
}

// AuditService records operator actions asynchronously through a
// worker queue so the request path never waits on the database.
type AuditService struct {
	repo    auditStore
	queue   *jobs.Queue
	enabled bool
	logger  *zap.Logger
}

func NewAuditService(repo auditStore, cfg config.AuditConfig, logger *zap.Logger) *AuditService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &AuditService{
		repo:    repo,
		enabled: cfg.Enabled && repo != nil,
		logger:  logger,
	}
	s.queue = jobs.NewQueue("audit", s.persist, jobs.QueueConfig{
		Workers:    cfg.Workers,
		MaxRetries: cfg.MaxRetries,
		Logger:     logger,
	})
	return s
}

// Start launches the persistence workers.
func (s *AuditService) Start(ctx context.Context) {
	if s.enabled {
		s.queue.Start(ctx)
	}
}

// Stop drains the workers.
func (s *AuditService) Stop() {
	if s.enabled {
		s.queue.Stop()
	}
}

// ListRecent returns the newest audit entries. With auditing disabled
// there is no trail, so the listing is empty.
func (s *AuditService) ListRecent(ctx context.Context, limit int) ([]models.AuditLog, error) {
	if !s.enabled {
		return []models.AuditLog{}, nil
	}
	return s.repo.ListRecent(ctx, limit)
}

// Record enqueues one audit entry. Fire and forget: a full queue or
// failing database never fails the operation being audited.
func (s *AuditService) Record(ctx context.Context, action string, recordID *string, detail map[string]interface{}) {
	if !s.enabled {
		return
	}

	actor, ip := auditActorFromContext(ctx)
	entry := models.AuditLog{
		Actor:     actor,
		Action:    action,
		RecordID:  recordID,
		IPAddress: ip,
	}
	if detail != nil {
		payload, err := json.Marshal(detail)
		if err == nil {
			entry.Detail = payload
		}
	}

	if err := s.queue.Enqueue(jobs.Job{ID: uuid.NewString(), Type: action, Payload: entry}); err != nil {
		s.logger.Warn("drop audit entry", zap.String("action", action), zap.Error(err))
	}
}

func (s *AuditService) persist(ctx context.Context, job jobs.Job) error {
	entry, ok := job.Payload.(models.AuditLog)
	if !ok {
		s.logger.Warn("unexpected audit payload", zap.String("job_id", job.ID))
		return nil
	}
	return s.repo.Create(ctx, &entry)
}
