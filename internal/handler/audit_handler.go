package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/inboxvault/inboxvault/internal/models"
	appErrors "github.com/inboxvault/inboxvault/pkg/errors"
	"github.com/inboxvault/inboxvault/pkg/response"
)

type auditLister interface {
	ListRecent(ctx context.Context, limit int) ([]models.AuditLog, error)
}

// AuditHandler serves the audit trail read endpoint.
type AuditHandler struct {
	service auditLister
}

func NewAuditHandler(service auditLister) *AuditHandler {
	return &AuditHandler{service: service}
}

// List godoc
// @Summary List recent audit log entries
// @Tags Audit
// @Produce json
// @Param limit query int false "Maximum entries to return" default(50)
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /audit [get]
func (h *AuditHandler) List(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "limit must be a positive integer"))
			return
		}
		limit = n
	}

	logs, err := h.service.ListRecent(c.Request.Context(), limit)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, gin.H{
		"count": len(logs),
		"logs":  logs,
	})
}
