package handler

import (
	"net/http"

	"huntcall/internal/services"
	"huntcall/internal/transport/httpdto"
	huntcall_errors "huntcall/pkg/errors"

	"github.com/gin-gonic/gin"
)

type CallHandler struct {
	peers *services.PeerService
}

func NewCallHandler(peers *services.PeerService) *CallHandler {
	return &CallHandler{peers: peers}
}

// ListByHunt returns the call histories of a hunt, most recent first.
func (h *CallHandler) ListByHunt(c *gin.Context) {
	userID, _ := services.UserIDFromContext(c.Request.Context())
	items, err := h.peers.Calls(c.Request.Context(), userID, c.Param("hunt"))
	if err != nil {
		respondError(c, err)
		return
	}
	calls := make([]httpdto.CallSummary, 0, len(items))
	for _, item := range items {
		calls = append(calls, httpdto.NewCallSummary(item))
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{"calls": calls, "total": len(calls)}))
}

// GetByID returns who is currently in a call.
func (h *CallHandler) GetByID(c *gin.Context) {
	userID, _ := services.UserIDFromContext(c.Request.Context())
	meta, err := h.peers.Metadata(c.Request.Context(), userID, c.Param("hunt"), c.Param("call"))
	if err != nil {
		respondError(c, err)
		return
	}

	detail := httpdto.CallDetail{
		Hunt:         meta.Hunt,
		Call:         meta.Call,
		Active:       meta.Room != nil,
		Participants: make([]httpdto.CallParticipant, 0, len(meta.Peers)),
	}
	for _, p := range meta.Peers {
		detail.Participants = append(detail.Participants, httpdto.NewCallParticipant(p))
	}
	if meta.History != nil {
		detail.LastActivity = httpdto.NewCallSummary(*meta.History).LastActivity
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(detail))
}

// respondError records err for the error middleware and writes the mapped
// status and code.
func respondError(c *gin.Context, err error) {
	_ = c.Error(err)
	c.JSON(huntcall_errors.HTTPStatus(err), httpdto.FromError(err))
}
