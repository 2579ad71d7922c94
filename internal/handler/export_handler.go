package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/inboxvault/inboxvault/internal/dto"
	"github.com/inboxvault/inboxvault/internal/models"
	"github.com/inboxvault/inboxvault/internal/service"
	appErrors "github.com/inboxvault/inboxvault/pkg/errors"
	"github.com/inboxvault/inboxvault/pkg/response"
)

type exportService interface {
	Export(ctx context.Context, format string) (service.ExportFile, error)
	Import(ctx context.Context, envelope models.ExportEnvelope, mode string) (dto.ImportResponse, error)
}

// ExportHandler serves archive export downloads and import uploads.
type ExportHandler struct {
	service exportService
}

func NewExportHandler(svc exportService) *ExportHandler {
	return &ExportHandler{service: svc}
}

// Export godoc
// @Summary Download the archive
// @Tags Transfer
// @Produce json
// @Param format query string false "Export format" Enums(json, csv, pdf)
// @Success 200 {file} file
// @Failure 400 {object} response.Envelope
// @Router /archive/export [get]
func (h *ExportHandler) Export(c *gin.Context) {
	file, err := h.service.Export(c.Request.Context(), c.Query("format"))
	if err != nil {
		response.Error(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.Filename))
	c.Data(http.StatusOK, file.ContentType, file.Data)
}

// Import godoc
// @Summary Import an exported archive
// @Tags Transfer
// @Accept json
// @Produce json
// @Param mode query string false "Import mode" Enums(merge, replace)
// @Param payload body models.ExportEnvelope true "Exported archive"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /archive/import [post]
func (h *ExportHandler) Import(c *gin.Context) {
	var envelope models.ExportEnvelope
	if err := c.ShouldBindJSON(&envelope); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInvalidEnvelope.Code, http.StatusBadRequest, "unrecognized archive envelope"))
		return
	}

	res, err := h.service.Import(c.Request.Context(), envelope, c.Query("mode"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, res)
}
