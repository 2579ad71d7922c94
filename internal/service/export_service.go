package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/inboxvault/inboxvault/internal/dto"
	"github.com/inboxvault/inboxvault/internal/models"
	appErrors "github.com/inboxvault/inboxvault/pkg/errors"
	"github.com/inboxvault/inboxvault/pkg/export"
)

// Export formats accepted by the control surface.
const (
	FormatJSON = "json"
	FormatCSV  = "csv"
	FormatPDF  = "pdf"
)

// Import modes. Merge keeps existing records on id collisions; replace
// swaps the whole collection.
const (
	ImportModeMerge   = "merge"
	ImportModeReplace = "replace"
)

type importStore interface {
	All() []models.ArchivedRecord
	Len() int
	MergeIn(ctx context.Context, recs []models.ArchivedRecord) (int, error)
	ReplaceAll(ctx context.Context, recs []models.ArchivedRecord) (int, error)
}

type exportStorage interface {
	Save(filename string, data []byte) (string, error)
}

// ExportFile is a rendered export ready to stream to the caller.
type ExportFile struct {
	Filename    string
	ContentType string
	Data        []byte
}

// ExportService renders the archive to portable formats and ingests
// exported archives back.
type ExportService struct {
	store      importStore
	reconciler viewReconciler
	csv        *export.CSVExporter
	pdf        *export.PDFExporter
	storage    exportStorage
	audit      auditLogger
	logger     *zap.Logger
}

func NewExportService(store importStore, reconciler viewReconciler, storage exportStorage, audit auditLogger, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{
		store:      store,
		reconciler: reconciler,
		csv:        export.NewCSVExporter(),
		pdf:        export.NewPDFExporter(),
		storage:    storage,
		audit:      audit,
		logger:     logger,
	}
}

// Export renders the whole archive in the requested format. A copy is
// kept in the export directory when storage is configured.
func (s *ExportService) Export(ctx context.Context, format string) (ExportFile, error) {
	now := time.Now().UTC()
	records := s.store.All()

	var file ExportFile
	var err error
	switch strings.ToLower(format) {
	case FormatJSON, "":
		file, err = s.renderJSON(records, now)
	case FormatCSV:
		file, err = s.renderCSV(records, now)
	case FormatPDF:
		file, err = s.renderPDF(records, now)
	default:
		return ExportFile{}, appErrors.Clone(appErrors.ErrUnsupportedFormat, fmt.Sprintf("unsupported export format %q", format))
	}
	if err != nil {
		return ExportFile{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "render export")
	}

	if s.storage != nil {
		if _, err := s.storage.Save(file.Filename, file.Data); err != nil {
			s.logger.Warn("keep export copy", zap.String("filename", file.Filename), zap.Error(err))
		}
	}

	s.emitAudit(ctx, models.AuditActionExport, nil, map[string]interface{}{
		"format":  strings.ToLower(format),
		"records": len(records),
	})
	s.logger.Info("archive exported",
		zap.String("filename", file.Filename), zap.Int("records", len(records)))
	return file, nil
}

// Import ingests an exported archive. The envelope must carry an
// archivedMessages array; records without an id are dropped.
func (s *ExportService) Import(ctx context.Context, envelope models.ExportEnvelope, mode string) (dto.ImportResponse, error) {
	if envelope.ArchivedMessages == nil {
		return dto.ImportResponse{}, appErrors.Clone(appErrors.ErrInvalidEnvelope, "")
	}
	if mode == "" {
		mode = ImportModeMerge
	}

	var imported int
	var err error
	switch mode {
	case ImportModeMerge:
		imported, err = s.store.MergeIn(ctx, envelope.ArchivedMessages)
	case ImportModeReplace:
		imported, err = s.store.ReplaceAll(ctx, envelope.ArchivedMessages)
	default:
		return dto.ImportResponse{}, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown import mode %q", mode))
	}
	if err != nil {
		return dto.ImportResponse{}, err
	}

	s.reconciler.Kick()
	s.emitAudit(ctx, models.AuditActionImport, nil, map[string]interface{}{
		"mode":     mode,
		"imported": imported,
	})
	s.logger.Info("archive imported", zap.String("mode", mode), zap.Int("imported", imported))

	return dto.ImportResponse{Mode: mode, Imported: imported, Total: s.store.Len()}, nil
}

func (s *ExportService) renderJSON(records []models.ArchivedRecord, now time.Time) (ExportFile, error) {
	envelope := models.ExportEnvelope{
		ArchivedMessages: records,
		ExportDate:       now,
		Version:          models.ExportVersion,
	}
	data, err := json.MarshalIndent(envelope, "", "  ")
	if err != nil {
		return ExportFile{}, err
	}
	return ExportFile{
		Filename:    exportFilename(now, FormatJSON),
		ContentType: "application/json",
		Data:        data,
	}, nil
}

func (s *ExportService) renderCSV(records []models.ArchivedRecord, now time.Time) (ExportFile, error) {
	data, err := s.csv.Render(tabulate(records))
	if err != nil {
		return ExportFile{}, err
	}
	return ExportFile{
		Filename:    exportFilename(now, FormatCSV),
		ContentType: "text/csv",
		Data:        data,
	}, nil
}

func (s *ExportService) renderPDF(records []models.ArchivedRecord, now time.Time) (ExportFile, error) {
	data, err := s.pdf.Render(tabulate(records), "Archived Conversations")
	if err != nil {
		return ExportFile{}, err
	}
	return ExportFile{
		Filename:    exportFilename(now, FormatPDF),
		ContentType: "application/pdf",
		Data:        data,
	}, nil
}

func tabulate(records []models.ArchivedRecord) export.Dataset {
	headers := []string{"Username", "Handle", "Group", "Participants", "Preview", "Archived", "Notes"}
	rows := make([]map[string]string, 0, len(records))
	for _, rec := range records {
		group := ""
		if rec.IsGroupChat {
			group = rec.GroupName
		}
		rows = append(rows, map[string]string{
			"Username":     rec.Username,
			"Handle":       rec.Handle,
			"Group":        group,
			"Participants": strconv.Itoa(rec.ParticipantCount),
			"Preview":      rec.MessagePreview,
			"Archived":     rec.Timestamp.Format(time.RFC3339),
			"Notes":        rec.Notes,
		})
	}
	return export.Dataset{Headers: headers, Rows: rows}
}

func exportFilename(now time.Time, format string) string {
	return fmt.Sprintf("inboxvault-export-%s.%s", now.Format("20060102-150405"), format)
}

func (s *ExportService) emitAudit(ctx context.Context, action string, recordID *string, detail map[string]interface{}) {
	if s.audit == nil {
		return
	}
	s.audit.Record(ctx, action, recordID, detail)
}
