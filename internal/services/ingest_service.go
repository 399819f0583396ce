package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/tbourn/go-whatsapp-inbox/internal/domain"
	"github.com/tbourn/go-whatsapp-inbox/internal/media"
	"github.com/tbourn/go-whatsapp-inbox/internal/observability"
	"github.com/tbourn/go-whatsapp-inbox/internal/realtime"
	"github.com/tbourn/go-whatsapp-inbox/internal/repo"
	"github.com/tbourn/go-whatsapp-inbox/internal/whatsapp"
)

// Reasons reported for webhooks that are acknowledged without being stored.
const (
	ReasonMalformed        = "malformed payload"
	ReasonUnsupportedEvent = "unsupported event"
	ReasonMissingJID       = "missing remoteJid"
	ReasonBroadcast        = "broadcast or group message"
	ReasonInvalidPhone     = "invalid phone"
	ReasonTooLarge         = "payload too large"
	ReasonUnreadable       = "unreadable body"
)

// Outcome statuses.
const (
	OutcomeOK      = "ok"
	OutcomeIgnored = "ignored"
)

// Publisher receives change events after a message is stored.
type Publisher interface {
	Publish(ctx context.Context, ev realtime.ChangeEvent)
}

// InboundMedia uploads inline thumbnails carried by webhooks.
type InboundMedia interface {
	StoreInbound(ctx context.Context, phone, b64, declaredMime string) (*media.Stored, error)
}

// Outcome is the result of handling one webhook.
type Outcome struct {
	Status         string `json:"status"`
	Reason         string `json:"reason,omitempty"`
	MessageID      string `json:"message_id,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
}

// IngestService turns gateway webhooks into stored messages.
type IngestService struct {
	DB            *gorm.DB
	Identity      *IdentityService
	Conversations *ConversationService
	Media         InboundMedia // nil disables thumbnail upload
	Events        Publisher    // nil disables change events
	Loc           *time.Location
	Now           func() time.Time
	Log           zerolog.Logger
}

// NewIngestService wires the inbound pipeline.
func NewIngestService(db *gorm.DB, identity *IdentityService, convs *ConversationService, m InboundMedia, events Publisher, loc *time.Location, log zerolog.Logger) *IngestService {
	if loc == nil {
		loc = time.UTC
	}
	return &IngestService{
		DB:            db,
		Identity:      identity,
		Conversations: convs,
		Media:         m,
		Events:        events,
		Loc:           loc,
		Now:           time.Now,
		Log:           log.With().Str("component", "ingest").Logger(),
	}
}

// Handle processes one webhook body. pathEvent is the event segment of the
// URL, if any. Payloads that carry nothing to store are reported as ignored
// with a nil error; an error means the message write itself failed.
func (s *IngestService) Handle(ctx context.Context, body []byte, pathEvent string) (*Outcome, error) {
	tr := observability.Tracer("services/ingest")
	ctx, span := tr.Start(ctx, "Handle")
	defer span.End()

	w, err := whatsapp.ParseWebhook(body, pathEvent)
	if err != nil {
		return s.ignore(ReasonMalformed), nil
	}
	span.SetAttributes(
		attribute.String("webhook.event", w.Event),
		attribute.String("webhook.instance", w.Instance),
	)
	if w.Event != whatsapp.EventMessagesUpsert {
		return s.ignore(ReasonUnsupportedEvent), nil
	}
	jid := strings.TrimSpace(w.Key.RemoteJID)
	if jid == "" {
		return s.ignore(ReasonMissingJID), nil
	}
	if whatsapp.IsBroadcast(jid) || whatsapp.IsGroup(jid) {
		return s.ignore(ReasonBroadcast), nil
	}
	phone := whatsapp.PhoneFromJID(jid)
	if phone == "" {
		return s.ignore(ReasonInvalidPhone), nil
	}

	owner := s.instanceOwner(ctx, w.Instance)

	// Our own echoes carry the instance's push name, not the customer's.
	hint := w.PushName
	if w.Key.FromMe {
		hint = ""
	}
	clientID, err := s.Identity.Resolve(ctx, phone, hint, owner)
	if errors.Is(err, ErrInvalidPhone) {
		return s.ignore(ReasonInvalidPhone), nil
	}
	if err != nil {
		return nil, s.fail(span, "resolve client", err)
	}
	convID, err := s.Conversations.Resolve(ctx, clientID, owner)
	if err != nil {
		return nil, s.fail(span, "resolve conversation", err)
	}

	cls := whatsapp.Classify(w.Content)
	if cls.InlineMedia != "" {
		s.materialize(ctx, phone, &cls)
	}

	msg := &domain.Message{
		ConversationID: convID,
		Sender:         domain.SenderClient,
		FromMe:         w.Key.FromMe,
		Content:        cls.Content,
		MessageType:    cls.MessageType,
		MediaURL:       cls.MediaURL,
		MediaType:      cls.MediaType,
		FileName:       cls.FileName,
		FileSize:       cls.FileSize,
		SentAt:         whatsapp.NormalizeTimestamp(w.Timestamp, s.Loc, s.Now()),
		RawData:        datatypes.JSON(w.Raw),
	}
	if w.Key.FromMe {
		msg.Sender = domain.SenderUser
	}
	if id := strings.TrimSpace(w.Key.ID); id != "" {
		msg.MessageID = &id
		if w.Key.FromMe {
			s.keepDispatchedFields(ctx, msg)
		}
	}

	stored, err := repo.UpsertMessage(ctx, s.DB, msg)
	if err != nil {
		return nil, s.fail(span, "store message", err)
	}
	span.SetAttributes(attribute.String("message.id", stored.ID))

	s.Conversations.Touch(ctx, convID, stored.SentAt)

	ev := realtime.EventInsert
	if stored.ID != msg.ID {
		ev = realtime.EventUpdate
	}
	s.publish(ctx, realtime.ChangeEvent{
		Type:           ev,
		ConversationID: convID,
		Sender:         stored.Sender,
		Message:        stored,
	})

	webhookEvents.WithLabelValues("ok").Inc()
	return &Outcome{Status: OutcomeOK, MessageID: stored.ID, ConversationID: convID}, nil
}

// instanceOwner returns the staff user owning instance, nil when unknown.
func (s *IngestService) instanceOwner(ctx context.Context, instance string) *string {
	if instance == "" {
		return nil
	}
	owner, err := repo.FindInstanceOwner(ctx, s.DB, instance)
	if err != nil {
		if !errors.Is(err, repo.ErrNotFound) {
			s.Log.Warn().Err(err).Str("instance", instance).Msg("instance owner lookup failed")
		}
		return nil
	}
	return &owner
}

// materialize uploads the inline thumbnail. On failure the message is kept
// without a media URL.
func (s *IngestService) materialize(ctx context.Context, phone string, cls *whatsapp.Classification) {
	if s.Media == nil {
		return
	}
	declared := ""
	if cls.MediaType != nil {
		declared = *cls.MediaType
	}
	stored, err := s.Media.StoreInbound(ctx, phone, cls.InlineMedia, declared)
	if err != nil {
		nonCriticalFailures.WithLabelValues("thumbnail").Inc()
		s.Log.Warn().Err(err).Msg("thumbnail upload failed")
		return
	}
	cls.MediaURL = &stored.URL
	if cls.MediaType == nil {
		mt := stored.MimeType
		cls.MediaType = &mt
	}
}

// keepDispatchedFields preserves what the dispatch pipeline stored for a
// message we sent when its echo arrives: the echo's content placeholder and
// gateway-hosted URL must not replace our text and stored media.
func (s *IngestService) keepDispatchedFields(ctx context.Context, msg *domain.Message) {
	existing, err := repo.GetMessageByExternalID(ctx, s.DB, *msg.MessageID)
	if err != nil {
		return
	}
	msg.Content = existing.Content
	msg.MessageType = existing.MessageType
	msg.SentAt = existing.SentAt
	msg.MediaURL, msg.MediaType, msg.FileName, msg.FileSize = nil, nil, nil, nil
}

func (s *IngestService) publish(ctx context.Context, ev realtime.ChangeEvent) {
	if s.Events == nil {
		return
	}
	s.Events.Publish(ctx, ev)
}

func (s *IngestService) ignore(reason string) *Outcome {
	webhookEvents.WithLabelValues("ignored").Inc()
	s.Log.Debug().Str("reason", reason).Msg("webhook ignored")
	return &Outcome{Status: OutcomeIgnored, Reason: reason}
}

func (s *IngestService) fail(span trace.Span, step string, err error) error {
	webhookEvents.WithLabelValues("error").Inc()
	observability.Fail(span, step, err)
	s.Log.Error().Err(err).Str("step", step).Msg("webhook processing failed")
	return fmt.Errorf("%s: %w", step, err)
}
