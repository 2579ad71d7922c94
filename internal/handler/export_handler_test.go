package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/inboxvault/inboxvault/internal/dto"
	"github.com/inboxvault/inboxvault/internal/models"
	"github.com/inboxvault/inboxvault/internal/service"
	appErrors "github.com/inboxvault/inboxvault/pkg/errors"
)

type fakeExportSrv struct {
	file       service.ExportFile
	exportErr  error
	importResp dto.ImportResponse
	importErr  error
	lastFormat string
	lastMode   string
}

func (f *fakeExportSrv) Export(_ context.Context, format string) (service.ExportFile, error) {
	f.lastFormat = format
	return f.file, f.exportErr
}

func (f *fakeExportSrv) Import(_ context.Context, _ models.ExportEnvelope, mode string) (dto.ImportResponse, error) {
	f.lastMode = mode
	return f.importResp, f.importErr
}

func TestExportHandlerExport(t *testing.T) {
	gin.SetMode(gin.TestMode)
	srv := &fakeExportSrv{file: service.ExportFile{
		Filename:    "inboxvault-export-20240501-120000.json",
		ContentType: "application/json",
		Data:        []byte(`{"archivedMessages":[]}`),
	}}
	handler := NewExportHandler(srv)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/archive/export?format=json", nil)

	handler.Export(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "json", srv.lastFormat)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "inboxvault-export-")
}

func TestExportHandlerExportBadFormat(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewExportHandler(&fakeExportSrv{exportErr: appErrors.ErrUnsupportedFormat})

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/archive/export?format=xml", nil)

	handler.Export(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExportHandlerImport(t *testing.T) {
	gin.SetMode(gin.TestMode)
	srv := &fakeExportSrv{importResp: dto.ImportResponse{Mode: "replace", Imported: 2}}
	handler := NewExportHandler(srv)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	body := `{"archivedMessages":[{"id":"conv-1"}],"version":"1.0"}`
	c.Request = httptest.NewRequest(http.MethodPost, "/archive/import?mode=replace", strings.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")

	handler.Import(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "replace", srv.lastMode)
}

func TestExportHandlerImportMalformedBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewExportHandler(&fakeExportSrv{})

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/archive/import", strings.NewReader("not json"))
	c.Request.Header.Set("Content-Type", "application/json")

	handler.Import(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
