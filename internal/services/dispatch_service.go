package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/tbourn/go-whatsapp-inbox/internal/domain"
	"github.com/tbourn/go-whatsapp-inbox/internal/evolution"
	"github.com/tbourn/go-whatsapp-inbox/internal/media"
	"github.com/tbourn/go-whatsapp-inbox/internal/observability"
	"github.com/tbourn/go-whatsapp-inbox/internal/realtime"
	"github.com/tbourn/go-whatsapp-inbox/internal/repo"
	"github.com/tbourn/go-whatsapp-inbox/internal/whatsapp"
)

// Contents stored for outbound attachments without text.
const (
	ContentVoiceNote  = "🎵 Áudio gravado"
	contentFilePrefix = "📎 "
)

// Sender delivers messages through the WhatsApp gateway.
type Sender interface {
	SendText(ctx context.Context, inst evolution.Instance, number, text string) (*evolution.SendResult, error)
	SendMedia(ctx context.Context, inst evolution.Instance, req evolution.MediaRequest) (*evolution.SendResult, error)
	SendWhatsAppAudio(ctx context.Context, inst evolution.Instance, number, audio string) (*evolution.SendResult, error)
}

// OutboundMedia uploads operator attachments.
type OutboundMedia interface {
	StoreOutbound(ctx context.Context, conversationID, fileName, b64, declaredMime string) (*media.Stored, error)
}

// Attachment is a base64 file in a compose request.
type Attachment struct {
	Base64   string `json:"base64"`
	Name     string `json:"name"`
	MimeType string `json:"mimeType"`
}

func (a *Attachment) present() bool {
	return a != nil && strings.TrimSpace(a.Base64) != ""
}

// SendRequest is a compose request from the console.
type SendRequest struct {
	UserID         string
	ConversationID string
	ClientPhone    string
	Instance       string
	Text           string
	File           *Attachment
	Audio          *Attachment
	IdempotencyKey string
}

// SendResult describes a dispatched (or replayed) message.
type SendResult struct {
	Message          *domain.Message
	ProviderResponse json.RawMessage
	MediaURL         string
	Replayed         bool
}

// DispatchService sends operator messages and records them.
type DispatchService struct {
	DB             *gorm.DB
	Conversations  *ConversationService
	Media          OutboundMedia
	Provider       Sender
	Events         Publisher // nil disables change events
	IdempotencyTTL time.Duration
	Loc            *time.Location // civil zone for sent_at, shared with ingest
	Now            func() time.Time
	Log            zerolog.Logger
}

// NewDispatchService wires the outbound pipeline.
func NewDispatchService(db *gorm.DB, convs *ConversationService, m OutboundMedia, provider Sender, events Publisher, idemTTL time.Duration, loc *time.Location, log zerolog.Logger) *DispatchService {
	return &DispatchService{
		DB:             db,
		Conversations:  convs,
		Media:          m,
		Provider:       provider,
		Events:         events,
		IdempotencyTTL: idemTTL,
		Loc:            loc,
		Now:            time.Now,
		Log:            log.With().Str("component", "dispatch").Logger(),
	}
}

// outbound is the single provider branch chosen for a request.
type outbound struct {
	kind    string // audio|file|text
	content string
	stored  *media.Stored
	audio   string // bare base64 clip for the voice-note endpoint
}

// Send validates req, delivers it through the gateway and stores the sent
// message. Exactly one of audio, file or text is sent, in that order of
// precedence; the text becomes the caption of a file. Nothing is stored when
// validation, upload or the provider call fails.
func (s *DispatchService) Send(ctx context.Context, req SendRequest) (*SendResult, error) {
	tr := observability.Tracer("services/dispatch")
	ctx, span := tr.Start(ctx, "Send",
		trace.WithAttributes(
			attribute.String("conversation.id", req.ConversationID),
			attribute.String("evolution.instance", req.Instance),
		),
	)
	defer span.End()

	phone, err := validateSend(req)
	if err != nil {
		return nil, err
	}

	if req.IdempotencyKey != "" {
		res, err := s.replay(ctx, req)
		if err != nil || res != nil {
			return res, err
		}
	}

	if _, err := s.Conversations.Get(ctx, req.ConversationID); err != nil {
		return nil, err
	}

	creds, err := repo.GetInstanceCredentials(ctx, s.DB, req.UserID, req.Instance)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrCredentialsNotFound
	}
	if err != nil {
		return nil, err
	}
	if !creds.Complete() {
		return nil, ErrCredentialsIncomplete
	}
	inst := evolution.Instance{BaseURL: creds.APIURL, APIKey: creds.APIKey, Name: creds.InstanceName}

	out, err := s.prepare(ctx, req)
	if err != nil {
		observability.Fail(span, "media upload", err)
		return nil, err
	}
	span.SetAttributes(attribute.String("dispatch.kind", out.kind))

	var sent *evolution.SendResult
	switch out.kind {
	case "audio":
		// The gateway may not reach our media host; it gets the clip itself.
		sent, err = s.Provider.SendWhatsAppAudio(ctx, inst, phone, out.audio)
	case "file":
		sent, err = s.Provider.SendMedia(ctx, inst, evolution.MediaRequest{
			Number:    phone,
			MediaType: media.Category(out.stored.MimeType),
			MimeType:  out.stored.MimeType,
			Caption:   strings.TrimSpace(req.Text),
			Media:     out.stored.URL,
			FileName:  out.stored.FileName,
		})
	default:
		sent, err = s.Provider.SendText(ctx, inst, phone, req.Text)
	}
	if err != nil {
		observability.Fail(span, "provider", err)
		s.Log.Error().Err(err).Str("conversation_id", req.ConversationID).Str("kind", out.kind).Msg("provider send failed")
		return nil, fmt.Errorf("%w: %w", ErrProvider, err)
	}

	msg := &domain.Message{
		ConversationID: req.ConversationID,
		Sender:         domain.SenderUser,
		FromMe:         true,
		Content:        out.content,
		MessageType:    domain.TypeText,
		SentAt:         whatsapp.NormalizeTimestamp(0, s.Loc, s.Now()),
		RawData:        datatypes.JSON(sent.Raw),
	}
	if sent.MessageID != "" {
		id := sent.MessageID
		msg.MessageID = &id
	}
	if out.stored != nil {
		msg.MessageType = messageTypeFor(out.kind, out.stored.MimeType)
		msg.MediaURL = &out.stored.URL
		msg.MediaType = &out.stored.MimeType
		msg.FileName = &out.stored.FileName
		msg.FileSize = &out.stored.Size
	}

	stored, err := repo.UpsertMessage(ctx, s.DB, msg)
	if err != nil {
		// The provider already accepted the message; the echo webhook will
		// still record it.
		s.Log.Error().Err(err).Str("conversation_id", req.ConversationID).Msg("store sent message failed")
		return nil, fmt.Errorf("store sent message: %w", err)
	}

	if req.IdempotencyKey != "" {
		if _, err := repo.CreateIdempotency(ctx, s.DB, req.UserID, req.ConversationID, req.IdempotencyKey, stored.ID, http.StatusOK, s.IdempotencyTTL); err != nil && !errors.Is(err, repo.ErrDuplicate) {
			nonCriticalFailures.WithLabelValues("idempotency").Inc()
			s.Log.Warn().Err(err).Msg("idempotency record failed")
		}
	}

	s.Conversations.Touch(ctx, req.ConversationID, stored.SentAt)
	if s.Events != nil {
		s.Events.Publish(ctx, realtime.ChangeEvent{
			Type:           realtime.EventInsert,
			ConversationID: req.ConversationID,
			Sender:         domain.SenderUser,
			Message:        stored,
		})
	}

	res := &SendResult{Message: stored, ProviderResponse: sent.Raw}
	if out.stored != nil {
		res.MediaURL = out.stored.URL
	}
	return res, nil
}

// validateSend checks required fields and returns the normalized phone.
func validateSend(req SendRequest) (string, error) {
	switch {
	case strings.TrimSpace(req.ConversationID) == "":
		return "", fmt.Errorf("%w: conversationId is required", ErrValidation)
	case strings.TrimSpace(req.UserID) == "":
		return "", fmt.Errorf("%w: userId is required", ErrValidation)
	case strings.TrimSpace(req.Text) == "" && !req.File.present() && !req.Audio.present():
		return "", fmt.Errorf("%w: message, file or audio is required", ErrValidation)
	case strings.TrimSpace(req.Instance) == "":
		return "", fmt.Errorf("%w: evolutionInstance is required", ErrValidation)
	}
	phone := whatsapp.DigitsOnly(req.ClientPhone)
	if phone == "" {
		return "", fmt.Errorf("%w: clientPhone is required", ErrValidation)
	}
	return phone, nil
}

// replay returns the stored result for a known Idempotency-Key, or nil.
func (s *DispatchService) replay(ctx context.Context, req SendRequest) (*SendResult, error) {
	rec, err := repo.GetIdempotency(ctx, s.DB, req.UserID, req.IdempotencyKey, s.Now().UTC())
	if errors.Is(err, repo.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if rec.ConversationID != req.ConversationID {
		return nil, ErrIdempotencyConflict
	}
	msg, err := repo.GetMessage(ctx, s.DB, rec.MessageID)
	if errors.Is(err, repo.ErrNotFound) {
		// Record outlived its message; send again.
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	res := &SendResult{Message: msg, ProviderResponse: json.RawMessage(msg.RawData), Replayed: true}
	if msg.MediaURL != nil {
		res.MediaURL = *msg.MediaURL
	}
	return res, nil
}

// prepare picks the provider branch and uploads its attachment.
func (s *DispatchService) prepare(ctx context.Context, req SendRequest) (*outbound, error) {
	switch {
	case req.Audio.present():
		name := firstNonBlank(req.Audio.Name, "audio")
		st, err := s.upload(ctx, req.ConversationID, name, req.Audio)
		if err != nil {
			return nil, err
		}
		clip, _ := media.StripDataURL(req.Audio.Base64)
		return &outbound{kind: "audio", content: ContentVoiceNote, stored: st, audio: clip}, nil
	case req.File.present():
		name := firstNonBlank(req.File.Name, "file")
		st, err := s.upload(ctx, req.ConversationID, name, req.File)
		if err != nil {
			return nil, err
		}
		content := strings.TrimSpace(req.Text)
		if content == "" {
			content = contentFilePrefix + st.FileName
		}
		return &outbound{kind: "file", content: content, stored: st}, nil
	default:
		return &outbound{kind: "text", content: req.Text}, nil
	}
}

func (s *DispatchService) upload(ctx context.Context, convID, name string, a *Attachment) (*media.Stored, error) {
	st, err := s.Media.StoreOutbound(ctx, convID, name, a.Base64, a.MimeType)
	switch {
	case err == nil:
		return st, nil
	case errors.Is(err, media.ErrEmpty), errors.Is(err, media.ErrTooLarge), errors.Is(err, media.ErrInvalid):
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	default:
		return nil, fmt.Errorf("%w: %w", ErrMediaUpload, err)
	}
}

// messageTypeFor maps an outbound branch onto the stored message type.
func messageTypeFor(kind, mime string) string {
	if kind == "audio" {
		return domain.TypeAudio
	}
	switch media.Category(mime) {
	case media.CategoryImage:
		return domain.TypeImage
	case media.CategoryAudio:
		return domain.TypeAudio
	case media.CategoryDocument:
		return domain.TypeDocument
	default:
		return domain.TypeMedia
	}
}

func firstNonBlank(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
