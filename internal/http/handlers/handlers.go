// Package handlers exposes the pharmacy inbox over HTTP.
//
// Endpoints:
//   - POST /webhooks/evolution[/:event]           (gateway webhook)
//   - POST {base}/messages/send                   (operator compose)
//   - GET  {base}/conversations/{id}/messages     (history, paginated, ETag)
//   - POST {base}/conversations/{id}/read         (read receipt)
//   - GET  {base}/unread                          (unread summary)
//
// Handlers are transport-thin: they validate input, call application services,
// and translate results into HTTP responses (including conditional responses).
package handlers

import (
	"context"
	"math"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-whatsapp-inbox/internal/domain"
	"github.com/tbourn/go-whatsapp-inbox/internal/http/middleware"
	"github.com/tbourn/go-whatsapp-inbox/internal/repo"
	"github.com/tbourn/go-whatsapp-inbox/internal/services"
	"github.com/tbourn/go-whatsapp-inbox/internal/sysutil"
	"github.com/tbourn/go-whatsapp-inbox/internal/utils"
)

//
// Service contracts (context-aware)
//

// WebhookService turns a raw gateway webhook into a stored message.
type WebhookService interface {
	Handle(ctx context.Context, body []byte, pathEvent string) (*services.Outcome, error)
}

// SendService dispatches operator messages through the gateway.
type SendService interface {
	Send(ctx context.Context, req services.SendRequest) (*services.SendResult, error)
}

// MessageService reads conversation history and unread breakdowns.
type MessageService interface {
	ListPage(ctx context.Context, conversationID string, page, pageSize int) ([]domain.Message, int64, error)
	UnreadByConversation(ctx context.Context) ([]repo.UnreadCount, error)
}

// ConversationService looks up conversations.
type ConversationService interface {
	Get(ctx context.Context, id string) (*domain.Conversation, error)
}

// ReadReceipts marks conversations read and reports the live unread total.
type ReadReceipts interface {
	MarkRead(ctx context.Context, conversationID string) (int64, error)
	Count() int64
}

//
// Handler wiring
//

// Handlers groups the HTTP endpoints. It depends on abstract service
// interfaces to keep transport concerns separate from the pipelines.
type Handlers struct {
	webhookSvc WebhookService
	sendSvc    SendService
	msgSvc     MessageService
	convSvc    ConversationService
	unread     ReadReceipts
}

// New constructs and returns a Handlers instance bound to the given services.
func New(webhookSvc WebhookService, sendSvc SendService, msgSvc MessageService, convSvc ConversationService, unread ReadReceipts) *Handlers {
	return &Handlers{
		webhookSvc: webhookSvc,
		sendSvc:    sendSvc,
		msgSvc:     msgSvc,
		convSvc:    convSvc,
		unread:     unread,
	}
}

//
// DTOs
//

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

func newPagination(page, pageSize int, total int64) Pagination {
	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	return Pagination{
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
	}
}

//
// Helpers
//

// clampPagination reads page (>= 1, default 1) and page_size (1..200,
// default 50) from the query string.
func clampPagination(c *gin.Context) (page, pageSize int) {
	page = utils.IntInRange(c.Query("page"), 1, 1, math.MaxInt32)
	pageSize = utils.IntInRange(c.Query("page_size"), 50, 1, 200)
	return
}

// staffUser returns the acting staff user: the explicit body value wins,
// then the X-User-ID resolved by middleware.
func staffUser(c *gin.Context, fromBody string) string {
	return strings.TrimSpace(sysutil.FirstNonEmpty(fromBody, middleware.UserID(c)))
}
