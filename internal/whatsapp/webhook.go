// Package whatsapp decodes Evolution gateway webhooks into typed values.
//
// The provider's message object carries exactly one of several optional
// shapes. ParseWebhook resolves that union once, at the boundary, into the
// closed Content sum type so the rest of the pipeline switches over a fixed
// set of variants instead of probing optional fields.
package whatsapp

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
)

// EventMessagesUpsert is the normalized name of the only event that carries
// new messages.
const EventMessagesUpsert = "messages.upsert"

// ErrMalformed is returned for bodies that are not a JSON webhook envelope.
var ErrMalformed = errors.New("malformed webhook payload")

// Webhook is a decoded provider event.
type Webhook struct {
	Event    string // normalized, e.g. "messages.upsert"
	Instance string
	Key      MessageKey
	PushName string
	// Timestamp is the provider epoch (seconds, sometimes millis); 0 if absent.
	Timestamp int64
	Content   Content
	// Raw is the full original body, kept for replay.
	Raw json.RawMessage
}

// MessageKey identifies a message on the provider side.
type MessageKey struct {
	RemoteJID string `json:"remoteJid"`
	FromMe    bool   `json:"fromMe"`
	ID        string `json:"id"`
}

type envelope struct {
	Event    string          `json:"event"`
	Instance string          `json:"instance"`
	Data     json.RawMessage `json:"data"`
}

type messageData struct {
	Key              MessageKey      `json:"key"`
	PushName         string          `json:"pushName"`
	MessageTimestamp flexInt         `json:"messageTimestamp"`
	Message          json.RawMessage `json:"message"`
}

type messageUnion struct {
	Conversation        *string          `json:"conversation"`
	ExtendedTextMessage *extendedText    `json:"extendedTextMessage"`
	ImageMessage        *imagePayload    `json:"imageMessage"`
	AudioMessage        *audioPayload    `json:"audioMessage"`
	DocumentMessage     *documentPayload `json:"documentMessage"`
	DocumentWithCaption *struct {
		Message struct {
			DocumentMessage *documentPayload `json:"documentMessage"`
		} `json:"message"`
	} `json:"documentWithCaptionMessage"`
}

type extendedText struct {
	Text string `json:"text"`
}

type imagePayload struct {
	URL           string  `json:"url"`
	Mimetype      string  `json:"mimetype"`
	Caption       string  `json:"caption"`
	JPEGThumbnail string  `json:"jpegThumbnail"`
	FileLength    flexInt `json:"fileLength"`
}

type audioPayload struct {
	URL        string  `json:"url"`
	Mimetype   string  `json:"mimetype"`
	Seconds    flexInt `json:"seconds"`
	PTT        bool    `json:"ptt"`
	FileLength flexInt `json:"fileLength"`
}

type documentPayload struct {
	URL        string  `json:"url"`
	Mimetype   string  `json:"mimetype"`
	Caption    string  `json:"caption"`
	FileName   string  `json:"fileName"`
	Title      string  `json:"title"`
	FileLength flexInt `json:"fileLength"`
}

// ParseWebhook decodes body. pathEvent, when non-empty, is the event name
// taken from the URL (webhook-by-events mode) and is used if the body does
// not name one.
func ParseWebhook(body []byte, pathEvent string) (*Webhook, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, ErrMalformed
	}

	ev := env.Event
	if strings.TrimSpace(ev) == "" {
		ev = pathEvent
	}
	w := &Webhook{
		Event:    NormalizeEvent(ev),
		Instance: strings.TrimSpace(env.Instance),
		Raw:      json.RawMessage(body),
		Content:  Unknown{},
	}
	// Other events carry arrays or unrelated objects under data.
	if w.Event != EventMessagesUpsert || len(bytes.TrimSpace(env.Data)) == 0 {
		return w, nil
	}
	var data messageData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, ErrMalformed
	}
	w.Key = data.Key
	w.PushName = strings.TrimSpace(data.PushName)
	w.Timestamp = int64(data.MessageTimestamp)
	w.Content = decodeContent(data.Message)
	return w, nil
}

// NormalizeEvent maps "MESSAGES_UPSERT", "messages-upsert" and
// "messages.upsert" to the same dotted lower-case form.
func NormalizeEvent(ev string) string {
	ev = strings.ToLower(strings.TrimSpace(ev))
	return strings.NewReplacer("_", ".", "-", ".").Replace(ev)
}

func decodeContent(raw json.RawMessage) Content {
	if len(raw) == 0 || string(raw) == "null" {
		return Unknown{}
	}
	var u messageUnion
	if err := json.Unmarshal(raw, &u); err != nil {
		return Unknown{Kind: "undecodable"}
	}

	switch {
	case u.Conversation != nil && *u.Conversation != "":
		return Text{Body: *u.Conversation}
	case u.ExtendedTextMessage != nil && u.ExtendedTextMessage.Text != "":
		return Text{Body: u.ExtendedTextMessage.Text}
	case u.ImageMessage != nil:
		p := u.ImageMessage
		return Image{
			Caption:   p.Caption,
			URL:       p.URL,
			MimeType:  p.Mimetype,
			Thumbnail: p.JPEGThumbnail,
			Size:      int64(p.FileLength),
		}
	case u.AudioMessage != nil:
		p := u.AudioMessage
		return Audio{
			URL:      p.URL,
			MimeType: p.Mimetype,
			Seconds:  int(p.Seconds),
			Voice:    p.PTT,
			Size:     int64(p.FileLength),
		}
	case u.DocumentMessage != nil:
		return documentFrom(u.DocumentMessage)
	case u.DocumentWithCaption != nil && u.DocumentWithCaption.Message.DocumentMessage != nil:
		return documentFrom(u.DocumentWithCaption.Message.DocumentMessage)
	}
	return Unknown{Kind: firstKey(raw)}
}

func documentFrom(p *documentPayload) Document {
	name := p.FileName
	if name == "" {
		name = p.Title
	}
	return Document{
		Caption:  p.Caption,
		FileName: name,
		URL:      p.URL,
		MimeType: p.Mimetype,
		Size:     int64(p.FileLength),
	}
}

// firstKey names the first non-metadata field of an unrecognised message,
// e.g. "stickerMessage", for logging.
func firstKey(raw json.RawMessage) string {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return ""
	}
	best := ""
	for k := range m {
		if k == "messageContextInfo" {
			continue
		}
		if best == "" || k < best {
			best = k
		}
	}
	return best
}

// flexInt accepts a JSON number, a quoted number or a protobuf Long object
// ({"low":..,"high":..}).
type flexInt int64

func (f *flexInt) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	if s[0] == '{' {
		var l struct {
			Low  uint32 `json:"low"`
			High int32  `json:"high"`
		}
		if err := json.Unmarshal(b, &l); err != nil {
			return err
		}
		*f = flexInt(int64(l.High)<<32 | int64(l.Low))
		return nil
	}
	s = strings.Trim(s, `"`)
	if s == "" {
		*f = 0
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		fl, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil {
			return err
		}
		n = int64(fl)
	}
	*f = flexInt(n)
	return nil
}
