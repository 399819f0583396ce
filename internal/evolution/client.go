// Package evolution is a small client for the Evolution WhatsApp gateway's
// message endpoints.
package evolution

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

var providerRequests = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "provider_requests_total",
		Help: "Gateway send requests by kind (text|media|audio) and outcome.",
	},
	[]string{"kind", "outcome"},
)

func init() {
	prometheus.MustRegister(providerRequests)
}

const (
	pathSendText  = "/message/sendText/{instance}"
	pathSendMedia = "/message/sendMedia/{instance}"
	pathSendAudio = "/message/sendWhatsAppAudio/{instance}"
)

// ProviderError is a non-2xx answer from the gateway.
type ProviderError struct {
	Status int
	Body   string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("evolution api error: status %d: %s", e.Status, e.Body)
}

// Instance addresses one gateway instance with its credentials.
type Instance struct {
	BaseURL string
	APIKey  string
	Name    string
}

// SendResult is the gateway answer to a send.
type SendResult struct {
	// Raw is the response body as returned.
	Raw json.RawMessage
	// MessageID is key.id from the response, empty if absent.
	MessageID string
}

// MediaRequest is the body of sendMedia.
type MediaRequest struct {
	Number    string `json:"number"`
	MediaType string `json:"mediatype"`
	MimeType  string `json:"mimetype,omitempty"`
	Caption   string `json:"caption,omitempty"`
	Media     string `json:"media"`
	FileName  string `json:"fileName,omitempty"`
}

// Client sends messages through the gateway. Text sends get the configured
// number of retries on transport errors and 5xx; media and audio sends are
// attempted once.
type Client struct {
	text  *resty.Client
	media *resty.Client
	log   zerolog.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithRetryWait overrides the pause between text retries.
func WithRetryWait(d time.Duration) Option {
	return func(c *Client) {
		c.text.SetRetryWaitTime(d).SetRetryMaxWaitTime(d)
	}
}

// New returns a Client with a per-request timeout.
func New(timeout time.Duration, textRetries int, log zerolog.Logger, opts ...Option) *Client {
	if textRetries < 0 {
		textRetries = 0
	}
	c := &Client{
		text: resty.New().
			SetHeader("Content-Type", "application/json").
			SetTimeout(timeout).
			SetRetryCount(textRetries).
			SetRetryWaitTime(500 * time.Millisecond).
			SetRetryMaxWaitTime(2 * time.Second).
			AddRetryCondition(func(r *resty.Response, err error) bool {
				return err != nil || (r != nil && r.StatusCode() >= 500)
			}),
		media: resty.New().
			SetHeader("Content-Type", "application/json").
			SetTimeout(timeout),
		log: log.With().Str("component", "evolution").Logger(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// SendText posts {number, text}.
func (c *Client) SendText(ctx context.Context, inst Instance, number, text string) (*SendResult, error) {
	body := map[string]string{"number": number, "text": text}
	return c.post(ctx, c.text, "text", inst, pathSendText, body)
}

// SendMedia posts a hosted media URL with its metadata.
func (c *Client) SendMedia(ctx context.Context, inst Instance, req MediaRequest) (*SendResult, error) {
	return c.post(ctx, c.media, "media", inst, pathSendMedia, req)
}

// SendWhatsAppAudio posts {number, audio} so the gateway delivers a voice
// note. audio is the base64 clip without a data-URL prefix.
func (c *Client) SendWhatsAppAudio(ctx context.Context, inst Instance, number, audio string) (*SendResult, error) {
	body := map[string]string{"number": number, "audio": audio}
	return c.post(ctx, c.media, "audio", inst, pathSendAudio, body)
}

func (c *Client) post(ctx context.Context, hc *resty.Client, kind string, inst Instance, path string, body any) (*SendResult, error) {
	if strings.TrimSpace(inst.BaseURL) == "" || strings.TrimSpace(inst.APIKey) == "" || strings.TrimSpace(inst.Name) == "" {
		return nil, errors.New("evolution instance is not fully configured")
	}

	resp, err := hc.R().
		SetContext(ctx).
		SetHeader("apikey", inst.APIKey).
		SetPathParam("instance", inst.Name).
		SetBody(body).
		Post(strings.TrimRight(inst.BaseURL, "/") + path)
	if err != nil {
		providerRequests.WithLabelValues(kind, "transport_error").Inc()
		c.log.Error().Err(err).Str("kind", kind).Str("instance", inst.Name).Msg("gateway request failed")
		return nil, fmt.Errorf("evolution %s: %w", kind, err)
	}
	if resp.IsError() || resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		providerRequests.WithLabelValues(kind, "http_error").Inc()
		c.log.Warn().
			Int("status", resp.StatusCode()).
			Str("kind", kind).
			Str("instance", inst.Name).
			Msg("gateway rejected request")
		return nil, &ProviderError{Status: resp.StatusCode(), Body: resp.String()}
	}
	providerRequests.WithLabelValues(kind, "ok").Inc()

	raw := resp.Body()
	out := &SendResult{Raw: json.RawMessage(raw)}
	if !json.Valid(raw) {
		out.Raw, _ = json.Marshal(string(raw))
		return out, nil
	}
	var parsed struct {
		Key struct {
			ID string `json:"id"`
		} `json:"key"`
	}
	if err := json.Unmarshal(raw, &parsed); err == nil {
		out.MessageID = parsed.Key.ID
	}
	return out, nil
}
