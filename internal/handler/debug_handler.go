package handler

import (
	"net/http"

	"huntcall/internal/services"
	"huntcall/internal/transport/httpdto"

	"github.com/gin-gonic/gin"
)

// DebugHandler exposes the admin view of every call record.
type DebugHandler struct {
	service *services.DebugService
}

func NewDebugHandler(service *services.DebugService) *DebugHandler {
	return &DebugHandler{service: service}
}

func (h *DebugHandler) Dump(c *gin.Context) {
	dump, err := h.service.Dump(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(dump))
}

func (h *DebugHandler) Archive(c *gin.Context) {
	key, err := h.service.Archive(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	url, err := h.service.DownloadURL(c.Request.Context(), key)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, httpdto.NewSuccessResponse(httpdto.ArchiveResponse{Key: key, URL: url}))
}
