package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/inboxvault/inboxvault/internal/dto"
	appErrors "github.com/inboxvault/inboxvault/pkg/errors"
	"github.com/inboxvault/inboxvault/pkg/response"
)

type archiveService interface {
	Archive(ctx context.Context, req dto.ArchiveRequest) (dto.ArchiveResponse, error)
	Restore(ctx context.Context, req dto.RestoreRequest) (dto.RestoreResponse, error)
	Clear(ctx context.Context) (dto.ClearResponse, error)
	SetNotes(ctx context.Context, id string, req dto.NotesRequest) (dto.NotesResponse, error)
}

type listingService interface {
	List(query dto.ListQuery) dto.ListResponse
}

// ArchiveHandler manages the archive HTTP endpoints.
type ArchiveHandler struct {
	service ArchiveHandlerServices
}

// ArchiveHandlerServices bundles the services the handler dispatches to.
type ArchiveHandlerServices struct {
	Archive archiveService
	Listing listingService
}

// NewArchiveHandler constructs the handler.
func NewArchiveHandler(services ArchiveHandlerServices) *ArchiveHandler {
	return &ArchiveHandler{service: services}
}

// Archive godoc
// @Summary Archive live conversation entries
// @Tags Archive
// @Accept json
// @Produce json
// @Param payload body dto.ArchiveRequest true "Entries to archive"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /archive [post]
func (h *ArchiveHandler) Archive(c *gin.Context) {
	var req dto.ArchiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid archive payload"))
		return
	}

	res, err := h.service.Archive.Archive(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, res)
}

// List godoc
// @Summary List archived conversations
// @Tags Archive
// @Produce json
// @Param q query string false "Search term"
// @Param sort query string false "Sort order" Enums(newest, oldest)
// @Success 200 {object} response.Envelope
// @Router /archive [get]
func (h *ArchiveHandler) List(c *gin.Context) {
	var query dto.ListQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid listing query"))
		return
	}

	response.JSON(c, http.StatusOK, h.service.Listing.List(query))
}

// Restore godoc
// @Summary Restore archived conversations to the live view
// @Tags Archive
// @Accept json
// @Produce json
// @Param payload body dto.RestoreRequest true "Record ids to restore"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /archive/restore [post]
func (h *ArchiveHandler) Restore(c *gin.Context) {
	var req dto.RestoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid restore payload"))
		return
	}

	res, err := h.service.Archive.Restore(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, res)
}

// Clear godoc
// @Summary Drop the whole archive
// @Tags Archive
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /archive [delete]
func (h *ArchiveHandler) Clear(c *gin.Context) {
	res, err := h.service.Archive.Clear(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, res)
}

// SetNotes godoc
// @Summary Replace the notes on an archived conversation
// @Tags Archive
// @Accept json
// @Produce json
// @Param id path string true "Record id"
// @Param payload body dto.NotesRequest true "Notes"
// @Success 200 {object} response.Envelope
// @Router /archive/{id}/notes [put]
func (h *ArchiveHandler) SetNotes(c *gin.Context) {
	var req dto.NotesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid notes payload"))
		return
	}

	res, err := h.service.Archive.SetNotes(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, res)
}
