package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/inboxvault/inboxvault/internal/dto"
	"github.com/inboxvault/inboxvault/internal/extract"
	"github.com/inboxvault/inboxvault/internal/liveview"
	"github.com/inboxvault/inboxvault/internal/models"
	appErrors "github.com/inboxvault/inboxvault/pkg/errors"
	"github.com/inboxvault/inboxvault/pkg/response"
)

type viewBridge interface {
	Replace(items []models.RawItem)
	Snapshot() []liveview.EntryState
	NudgeCount() int64
}

type viewMetrics interface {
	SetViewEntries(n int)
}

type archiveIndex interface {
	Contains(id string) bool
}

// ViewHandler is the host adapter surface: adapters push full
// re-renders in, and read back which entries the reconciler hid.
type ViewHandler struct {
	bridge  viewBridge
	archive archiveIndex
	metrics viewMetrics
}

func NewViewHandler(bridge viewBridge, archive archiveIndex, metrics viewMetrics) *ViewHandler {
	return &ViewHandler{bridge: bridge, archive: archive, metrics: metrics}
}

// Ingest godoc
// @Summary Push a live view re-render
// @Tags View
// @Accept json
// @Produce json
// @Param payload body dto.ViewIngestRequest true "Current live entries"
// @Success 202 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /view/items [post]
func (h *ViewHandler) Ingest(c *gin.Context) {
	var req dto.ViewIngestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid view payload"))
		return
	}

	items := make([]models.RawItem, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, item.Model())
	}
	h.bridge.Replace(items)
	if h.metrics != nil {
		h.metrics.SetViewEntries(len(items))
	}

	decisions := make([]dto.ViewDecision, 0, len(items))
	for _, item := range items {
		id := extract.DeriveID(item)
		hidden := h.archive != nil && h.archive.Contains(id)
		decisions = append(decisions, dto.ViewDecision{ID: id, ExternalID: item.ExternalID, Hidden: hidden})
	}

	response.JSON(c, http.StatusAccepted, gin.H{
		"accepted":  len(items),
		"decisions": decisions,
	})
}

// Snapshot godoc
// @Summary Read the mirrored live view
// @Tags View
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /view/items [get]
func (h *ViewHandler) Snapshot(c *gin.Context) {
	response.JSON(c, http.StatusOK, gin.H{
		"items":  h.bridge.Snapshot(),
		"nudges": h.bridge.NudgeCount(),
	})
}
