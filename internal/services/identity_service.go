package services

import (
	"context"
	"strings"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"

	"github.com/tbourn/go-whatsapp-inbox/internal/domain"
	"github.com/tbourn/go-whatsapp-inbox/internal/observability"
	"github.com/tbourn/go-whatsapp-inbox/internal/repo"
	"github.com/tbourn/go-whatsapp-inbox/internal/whatsapp"
)

// IdentityService maps a phone number to a stable client id.
type IdentityService struct {
	DB  *gorm.DB
	Log zerolog.Logger
}

// NewIdentityService constructs an IdentityService.
func NewIdentityService(db *gorm.DB, log zerolog.Logger) *IdentityService {
	return &IdentityService{DB: db, Log: log.With().Str("component", "identity").Logger()}
}

// Resolve returns the client id for phone, creating the client on first
// contact. nameHint (usually the WhatsApp push name) names a new client and
// replaces a placeholder name on an existing one; a real stored name is never
// overwritten. createdBy records the staff owner of the receiving instance.
func (s *IdentityService) Resolve(ctx context.Context, phone, nameHint string, createdBy *string) (string, error) {
	tr := observability.Tracer("services/identity")
	ctx, span := tr.Start(ctx, "Resolve")
	defer span.End()

	phone = whatsapp.DigitsOnly(phone)
	if phone == "" {
		return "", ErrInvalidPhone
	}
	span.SetAttributes(attribute.String("client.phone", phone))

	hint := strings.TrimSpace(nameHint)
	realName := !domain.IsGenericClientName(hint, phone)

	name := domain.GenericClientName(phone)
	if realName {
		name = hint
	}
	c, created, err := repo.EnsureClient(ctx, s.DB, phone, name, createdBy)
	if err != nil {
		return "", err
	}
	span.SetAttributes(
		attribute.String("client.id", c.ID),
		attribute.Bool("client.created", created),
	)

	if !created && realName && domain.IsGenericClientName(c.Name, phone) {
		if _, err := repo.RefineClientName(ctx, s.DB, c.ID, phone, hint); err != nil {
			nonCriticalFailures.WithLabelValues("refine_name").Inc()
			s.Log.Warn().Err(err).Str("client_id", c.ID).Msg("client name refinement failed")
		}
	}
	return c.ID, nil
}
