package media

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-whatsapp-inbox/internal/observability"
	"github.com/tbourn/go-whatsapp-inbox/internal/storage"
)

var uploadsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "media_uploads_total",
		Help: "Media uploads by direction (inbound|outbound) and outcome.",
	},
	[]string{"direction", "outcome"},
)

func init() {
	prometheus.MustRegister(uploadsTotal)
}

// Stored describes an uploaded blob.
type Stored struct {
	URL      string
	Key      string
	MimeType string
	FileName string
	Size     int64
}

// Materializer decodes base64 media and uploads it.
type Materializer struct {
	store    storage.Store
	maxBytes int64
	now      func() time.Time
	log      zerolog.Logger
}

// NewMaterializer returns a Materializer writing to store. maxBytes caps
// decoded payloads (<= 0 disables the cap).
func NewMaterializer(store storage.Store, maxBytes int64, log zerolog.Logger) *Materializer {
	return &Materializer{
		store:    store,
		maxBytes: maxBytes,
		now:      time.Now,
		log:      log.With().Str("component", "media").Logger(),
	}
}

// StoreInbound uploads an inbound thumbnail under clients/{phone}/{millis}.{ext}.
func (m *Materializer) StoreInbound(ctx context.Context, phone, b64, declaredMime string) (*Stored, error) {
	ctx, span := observability.Tracer("media").Start(ctx, "StoreInbound",
		trace.WithAttributes(attribute.String("client.phone", phone)))
	defer span.End()

	data, dataMime, err := DecodeBase64(b64, m.maxBytes)
	if err != nil {
		uploadsTotal.WithLabelValues("inbound", "invalid").Inc()
		return nil, err
	}
	mime, ext := Detect(data, firstNonEmpty(declaredMime, dataMime))
	name := fmt.Sprintf("%d%s", m.now().UnixMilli(), ext)
	key := path.Join("clients", phone, name)

	return m.put(ctx, "inbound", key, name, mime, data)
}

// StoreOutbound uploads an operator attachment under
// conversations/{id}/{millis}_{sanitized name}.
func (m *Materializer) StoreOutbound(ctx context.Context, conversationID, fileName, b64, declaredMime string) (*Stored, error) {
	ctx, span := observability.Tracer("media").Start(ctx, "StoreOutbound",
		trace.WithAttributes(attribute.String("conversation.id", conversationID)))
	defer span.End()

	data, dataMime, err := DecodeBase64(b64, m.maxBytes)
	if err != nil {
		uploadsTotal.WithLabelValues("outbound", "invalid").Inc()
		return nil, err
	}
	mime, ext := Detect(data, firstNonEmpty(declaredMime, dataMime))

	clean := SanitizeFilename(fileName)
	if !strings.Contains(clean, ".") {
		clean += ext
	}
	name := fmt.Sprintf("%d_%s", m.now().UnixMilli(), clean)
	key := path.Join("conversations", conversationID, name)

	return m.put(ctx, "outbound", key, clean, mime, data)
}

func (m *Materializer) put(ctx context.Context, direction, key, name, mime string, data []byte) (*Stored, error) {
	url, err := m.store.Put(ctx, key, bytes.NewReader(data), int64(len(data)), mime)
	if err != nil {
		uploadsTotal.WithLabelValues(direction, "error").Inc()
		m.log.Warn().Err(err).Str("key", key).Msg("media upload failed")
		return nil, fmt.Errorf("upload %s: %w", key, err)
	}
	uploadsTotal.WithLabelValues(direction, "ok").Inc()
	return &Stored{URL: url, Key: key, MimeType: mime, FileName: name, Size: int64(len(data))}, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
