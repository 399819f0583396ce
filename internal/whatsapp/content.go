package whatsapp

import (
	"strings"

	"github.com/tbourn/go-whatsapp-inbox/internal/domain"
)

// Content is the closed set of inbound message shapes.
type Content interface {
	isContent()
}

// Text is a plain or extended text message.
type Text struct {
	Body string
}

// Image is a picture, optionally with an inline base64 JPEG thumbnail.
type Image struct {
	Caption   string
	URL       string
	MimeType  string
	Thumbnail string
	Size      int64
}

// Audio is a voice note or audio file.
type Audio struct {
	URL      string
	MimeType string
	Seconds  int
	Voice    bool
	Size     int64
}

// Document is any attached file.
type Document struct {
	Caption  string
	FileName string
	URL      string
	MimeType string
	Size     int64
}

// Unknown is every other shape (stickers, locations, reactions...). Kind is
// the provider field name when one was found.
type Unknown struct {
	Kind string
}

func (Text) isContent()     {}
func (Image) isContent()    {}
func (Audio) isContent()    {}
func (Document) isContent() {}
func (Unknown) isContent()  {}

// Placeholder contents stored when a message has no text of its own.
const (
	PlaceholderImage    = "[Imagem]"
	PlaceholderAudio    = "[Áudio]"
	PlaceholderDocument = "[Arquivo]"
	PlaceholderUnknown  = "Mídia recebida"
)

// Classification is the typed result of classifying a Content.
type Classification struct {
	MessageType string
	Content     string
	MediaURL    *string
	MediaType   *string
	FileName    *string
	FileSize    *int64
	// InlineMedia is base64 data that must be materialized to blob storage
	// before MediaURL is final.
	InlineMedia string
}

// Classify maps a Content variant to the stored message type, text and
// media metadata.
func Classify(c Content) Classification {
	switch v := c.(type) {
	case Text:
		return Classification{MessageType: domain.TypeText, Content: v.Body}
	case Image:
		out := Classification{
			MessageType: domain.TypeImage,
			Content:     firstNonBlank(v.Caption, PlaceholderImage),
			MediaType:   optional(v.MimeType),
			FileSize:    optionalSize(v.Size),
		}
		if strings.TrimSpace(v.Thumbnail) != "" {
			out.InlineMedia = v.Thumbnail
		} else {
			out.MediaURL = optional(v.URL)
		}
		return out
	case Audio:
		return Classification{
			MessageType: domain.TypeAudio,
			Content:     PlaceholderAudio,
			MediaURL:    optional(v.URL),
			MediaType:   optional(v.MimeType),
			FileSize:    optionalSize(v.Size),
		}
	case Document:
		return Classification{
			MessageType: domain.TypeDocument,
			Content:     firstNonBlank(v.Caption, v.FileName, PlaceholderDocument),
			MediaURL:    optional(v.URL),
			MediaType:   optional(v.MimeType),
			FileName:    optional(v.FileName),
			FileSize:    optionalSize(v.Size),
		}
	default:
		return Classification{MessageType: domain.TypeMedia, Content: PlaceholderUnknown}
	}
}

func firstNonBlank(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func optional(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}

func optionalSize(n int64) *int64 {
	if n <= 0 {
		return nil
	}
	return &n
}
