// Conversation HTTP handlers: read receipts and the unread summary.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tbourn/go-whatsapp-inbox/internal/repo"
	"github.com/tbourn/go-whatsapp-inbox/internal/services"
)

// MarkReadResponse reports a read receipt.
type MarkReadResponse struct {
	// Marked is the number of client messages stamped read.
	Marked int64 `json:"marked" example:"3"`
	// Unread is the unread total across all conversations afterwards.
	Unread int64 `json:"unread" example:"12"`
}

// UnreadResponse is the unread total and its per-conversation breakdown.
type UnreadResponse struct {
	Count         int64              `json:"count" example:"12"`
	Conversations []repo.UnreadCount `json:"conversations"`
}

// MarkConversationRead godoc
// @ID          markConversationRead
// @Summary     Mark a conversation read
// @Description Stamps read_at on every unread client message of the conversation and pushes the new unread total.
// @Tags        Conversations
// @Produce     json
//
// @Param       id  path  string  true  "Conversation ID (UUID)"  format(uuid)
//
// @Success     200  {object} handlers.MarkReadResponse
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Conversation not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /conversations/{id}/read [post]
func (h *Handlers) MarkConversationRead(c *gin.Context) {
	ctx := c.Request.Context()
	convID := c.Param("id")
	if _, err := uuid.Parse(convID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "conversation id must be a UUID")
		return
	}

	if _, err := h.convSvc.Get(ctx, convID); err != nil {
		if errors.Is(err, services.ErrConversationNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "conversation not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeReadFailed, err.Error())
		return
	}

	n, err := h.unread.MarkRead(ctx, convID)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeReadFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, MarkReadResponse{Marked: n, Unread: h.unread.Count()})
}

// Unread godoc
// @ID          unreadSummary
// @Summary     Unread client messages
// @Description Returns the unread total and the unread count of every conversation that has any.
// @Tags        Conversations
// @Produce     json
//
// @Success     200  {object} handlers.UnreadResponse
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /unread [get]
func (h *Handlers) Unread(c *gin.Context) {
	rows, err := h.msgSvc.UnreadByConversation(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	resp := UnreadResponse{Conversations: []repo.UnreadCount{}}
	for _, r := range rows {
		resp.Count += r.Unread
		resp.Conversations = append(resp.Conversations, r)
	}
	ok(c, http.StatusOK, resp)
}
