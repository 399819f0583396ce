// Message HTTP handlers.
//
// This file exposes REST endpoints for conversation messages:
//   - POST /messages/send                  (operator compose through the gateway)
//   - GET  /conversations/{id}/messages    (list paginated messages)
//
// Handlers are transport-thin:
//   - validate & normalize inputs
//   - delegate to application services (DispatchService, MessageService)
//   - implement conditional responses (ETag) and idempotency semantics
//
// Idempotency:
// If the client supplies an Idempotency-Key header and a previous send exists
// for (user, key), the handler returns the recorded message without calling
// the gateway again and sets `Idempotency-Replayed: true`.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-whatsapp-inbox/internal/domain"
	"github.com/tbourn/go-whatsapp-inbox/internal/evolution"
	"github.com/tbourn/go-whatsapp-inbox/internal/http/middleware"
	"github.com/tbourn/go-whatsapp-inbox/internal/repo"
	"github.com/tbourn/go-whatsapp-inbox/internal/services"
)

//
// DTOs
//

// SendMessageRequest is the compose payload posted by the console.
type SendMessageRequest struct {
	// UserID is the staff user sending; defaults to X-User-ID.
	UserID            string               `json:"userId" example:"staff-42"`
	ConversationID    string               `json:"conversationId" example:"141add05-4415-4938-b5a1-17e0d3171aff"`
	ClientPhone       string               `json:"clientPhone" example:"5511988887777"`
	EvolutionInstance string               `json:"evolutionInstance" example:"farmacia-centro"`
	Message           string               `json:"message" example:"Seu pedido está pronto para retirada."`
	File              *services.Attachment `json:"file"`
	Audio             *services.Attachment `json:"audio"`
}

// SendMessageResponse reports a delivered (or replayed) send.
type SendMessageResponse struct {
	Success           bool            `json:"success" example:"true"`
	EvolutionResponse json.RawMessage `json:"evolutionResponse,omitempty" swaggertype:"object"`
	MediaURL          string          `json:"mediaUrl,omitempty" example:"https://cdn.example.com/conversations/141add05/1718000000000_receita.pdf"`
	Message           *domain.Message `json:"message,omitempty"`
}

// ListMessagesResponse contains a page of conversation messages and pagination metadata.
type ListMessagesResponse struct {
	Messages   []domain.Message `json:"messages"`
	Pagination Pagination       `json:"pagination"`
}

//
// Handlers
//

// SendMessage godoc
// @ID          sendMessage
// @Summary     Send a WhatsApp message to a client
// @Description Sends text, a file (text becomes the caption) or a voice note through the staff user's gateway instance and stores it in the conversation.
// @Description When several payloads are present only one is sent: audio, then file, then text.
// @Description Supports idempotency via the Idempotency-Key header (same key → same result, no second send).
// @Tags        Messages
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID        header  string  false "Staff user id (used when userId is absent)"  example(staff-42)
// @Param       Idempotency-Key  header  string  false "Idempotency key for safe retries (UUID recommended)"  example(7a8d9f4c-1b2a-4c3d-8e9f-0123456789ab)
// @Param       body             body    handlers.SendMessageRequest  true  "Compose payload"
//
// @Success     200  {object}  handlers.SendMessageResponse
// @Failure     400  {object}  handlers.PipelineError  "Invalid request or incomplete credentials"
// @Failure     404  {object}  handlers.PipelineError  "Credentials or conversation not found"
// @Failure     409  {object}  handlers.PipelineError  "Idempotency key reused for another conversation"
// @Failure     500  {object}  handlers.PipelineError  "Gateway or upload failure"
// @Router      /messages/send [post]
func (h *Handlers) SendMessage(c *gin.Context) {
	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		failPipeline(c, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON body", err, nil)
		return
	}

	res, err := h.sendSvc.Send(c.Request.Context(), services.SendRequest{
		UserID:         staffUser(c, req.UserID),
		ConversationID: strings.TrimSpace(req.ConversationID),
		ClientPhone:    req.ClientPhone,
		Instance:       strings.TrimSpace(req.EvolutionInstance),
		Text:           req.Message,
		File:           req.File,
		Audio:          req.Audio,
		IdempotencyKey: idempotencyKey(c),
	})
	if err != nil {
		failSend(c, err)
		return
	}

	if res.Replayed {
		c.Header("Idempotency-Replayed", "true")
	}
	ok(c, http.StatusOK, SendMessageResponse{
		Success:           true,
		EvolutionResponse: res.ProviderResponse,
		MediaURL:          res.MediaURL,
		Message:           res.Message,
	})
}

// idempotencyKey prefers the key validated by the middleware and falls back
// to the raw header when the handler runs without it.
func idempotencyKey(c *gin.Context) string {
	if k, ok := middleware.GetIdempotencyKey(c); ok {
		return k
	}
	return strings.TrimSpace(c.GetHeader(middleware.HeaderIdempotencyKey))
}

// failSend maps dispatch errors onto statuses.
func failSend(c *gin.Context, err error) {
	var pe *evolution.ProviderError
	switch {
	case errors.Is(err, services.ErrValidation):
		failPipeline(c, http.StatusBadRequest, ErrCodeBadRequest, "Invalid send request", err, nil)
	case errors.Is(err, services.ErrCredentialsIncomplete):
		failPipeline(c, http.StatusBadRequest, ErrCodeBadRequest, "Evolution API credentials are incomplete", err, nil)
	case errors.Is(err, services.ErrCredentialsNotFound):
		failPipeline(c, http.StatusNotFound, ErrCodeNotFound, "Evolution API credentials not found", err, nil)
	case errors.Is(err, services.ErrConversationNotFound):
		failPipeline(c, http.StatusNotFound, ErrCodeNotFound, "Conversation not found", err, nil)
	case errors.Is(err, services.ErrIdempotencyConflict):
		failPipeline(c, http.StatusConflict, ErrCodeConflict, "Idempotency key already used", err, nil)
	case errors.As(err, &pe):
		failPipeline(c, http.StatusInternalServerError, ErrCodeProviderError, "Failed to send message", err, providerBody(pe))
	case errors.Is(err, services.ErrMediaUpload):
		failPipeline(c, http.StatusInternalServerError, ErrCodeUploadFailed, "Failed to upload media", err, nil)
	default:
		failPipeline(c, http.StatusInternalServerError, ErrCodeSendFailed, "Internal server error", err, nil)
	}
}

// providerBody returns the gateway body as JSON, quoting it when the gateway
// answered with plain text.
func providerBody(pe *evolution.ProviderError) json.RawMessage {
	if pe.Body == "" {
		return nil
	}
	if json.Valid([]byte(pe.Body)) {
		return json.RawMessage(pe.Body)
	}
	b, _ := json.Marshal(pe.Body)
	return b
}

// ListMessages godoc
// @ID          listMessages
// @Summary     List messages in a conversation
// @Description Returns a page of messages ordered by sent time. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Conversations
// @Produce     json
//
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"  example(W/\"messages:abc:10:1718000000\")
// @Param       id             path    string  true  "Conversation ID (UUID)"      format(uuid)
// @Param       page           query   int     false "Page number"                 minimum(1) default(1)
// @Param       page_size      query   int     false "Items per page"              minimum(1) maximum(200) default(50)
//
// @Success     200  {object} handlers.ListMessagesResponse
// @Header      200  {string} ETag  "Weak ETag for current result"
// @Success     304  {string} string "Not Modified"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Conversation not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /conversations/{id}/messages [get]
func (h *Handlers) ListMessages(c *gin.Context) {
	ctx := c.Request.Context()
	convID := c.Param("id")

	if _, err := uuid.Parse(convID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "conversation id must be a UUID")
		return
	}

	// ETag pre-check (best effort).
	var db *gorm.DB
	if svc, ok := h.msgSvc.(*services.MessageService); ok {
		db = svc.DB
	}
	if db != nil {
		count, maxTS, err := repo.MessagesStats(ctx, db, convID)
		if err == nil {
			var ts int64
			if maxTS != nil {
				ts = maxTS.Unix()
			}
			etag := fmt.Sprintf(`W/"messages:%s:%d:%d"`, convID, count, ts)
			c.Header("ETag", etag)
			if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
				c.Status(http.StatusNotModified)
				return
			}
		}
	}

	page, pageSize := clampPagination(c)

	items, total, err := h.msgSvc.ListPage(ctx, convID, page, pageSize)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrConversationNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "conversation not found")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		}
		return
	}

	ok(c, http.StatusOK, ListMessagesResponse{
		Messages:   items,
		Pagination: newPagination(page, pageSize, total),
	})
}
