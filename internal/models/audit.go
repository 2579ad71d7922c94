package models

import "time"

// AuditAction constants represent operator actions recorded in the trail.
const (
	AuditActionArchive = "ARCHIVE"
	AuditActionRestore = "RESTORE"
	AuditActionClear   = "CLEAR"
	AuditActionImport  = "IMPORT"
	AuditActionExport  = "EXPORT"
	AuditActionNotes   = "NOTES"
	AuditActionLogin   = "LOGIN"
)

// AuditLog represents one audit trail row.
type AuditLog struct {
	ID        string    `db:"id" json:"id"`
	Actor     string    `db:"actor" json:"actor"`
	Action    string    `db:"action" json:"action"`
	RecordID  *string   `db:"record_id" json:"recordId,omitempty"`
	Detail    []byte    `db:"detail" json:"detail,omitempty"`
	IPAddress string    `db:"ip_address" json:"ipAddress"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}
