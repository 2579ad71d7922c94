package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/inboxvault/inboxvault/internal/models"
)

// AuditRepository persists the operator audit trail in PostgreSQL.
type AuditRepository struct {
	db *sqlx.DB
}

func NewAuditRepository(db *sqlx.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Create inserts one audit row, assigning id and timestamp when the
// caller left them empty.
func (r *AuditRepository) Create(ctx context.Context, entry *models.AuditLog) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO audit_logs (id, actor, action, record_id, detail, ip_address, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := r.db.ExecContext(ctx, query,
		entry.ID,
		entry.Actor,
		entry.Action,
		entry.RecordID,
		entry.Detail,
		entry.IPAddress,
		entry.CreatedAt,
	)
	return err
}

// ListRecent returns the newest audit rows, newest first.
func (r *AuditRepository) ListRecent(ctx context.Context, limit int) ([]models.AuditLog, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, actor, action, record_id, detail, ip_address, created_at
		FROM audit_logs
		ORDER BY created_at DESC
		LIMIT $1`
	logs := make([]models.AuditLog, 0, limit)
	if err := r.db.SelectContext(ctx, &logs, query, limit); err != nil {
		return nil, err
	}
	return logs, nil
}
