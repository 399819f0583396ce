// Webhook HTTP handler.
//
// The gateway posts every instance event here, either to the bare path with
// the event named in the body or to /webhooks/evolution/{event}. Anything
// that is not a storable message is acknowledged with 200 so the gateway
// does not retry it.
package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-whatsapp-inbox/internal/http/middleware"
	"github.com/tbourn/go-whatsapp-inbox/internal/services"
)

// WebhookAck is the body of every acknowledged webhook.
type WebhookAck struct {
	Status string `json:"status" example:"ok"`
	Reason string `json:"reason,omitempty" example:"broadcast or group message"`
}

// EvolutionWebhook godoc
// @ID          evolutionWebhook
// @Summary     Receive a gateway webhook
// @Description Stores inbound WhatsApp messages and the echoes of messages sent from the phone.
// @Description Unsupported events, broadcasts, groups and malformed bodies are acknowledged as ignored.
// @Tags        Webhooks
// @Accept      json
// @Produce     json
//
// @Param       event  path  string  false "Event name when the gateway appends it to the URL"  example(messages-upsert)
// @Param       body   body  object  true  "Gateway event envelope"
//
// @Success     200  {object}  handlers.WebhookAck
// @Failure     500  {object}  handlers.PipelineError  "Message could not be stored"
// @Router      /webhooks/evolution [post]
// @Router      /webhooks/evolution/{event} [post]
func (h *Handlers) EvolutionWebhook(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		// Acked so the gateway stops redelivering a body we can never read.
		reason := services.ReasonUnreadable
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			reason = services.ReasonTooLarge
		}
		middleware.LoggerFrom(c).Warn().Err(err).Str("reason", reason).Msg("webhook body dropped")
		ok(c, http.StatusOK, WebhookAck{Status: services.OutcomeIgnored, Reason: reason})
		return
	}

	out, err := h.webhookSvc.Handle(c.Request.Context(), body, c.Param("event"))
	if err != nil {
		failPipeline(c, http.StatusInternalServerError, ErrCodeWebhookFailed, "Internal server error", err, nil)
		return
	}

	ok(c, http.StatusOK, WebhookAck{Status: out.Status, Reason: out.Reason})
}
