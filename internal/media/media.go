// Package media turns base64 payloads into stored blobs: it decodes, sniffs
// the MIME type, names the object and uploads it through a storage.Store.
package media

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	// ErrEmpty is returned when a payload decodes to zero bytes.
	ErrEmpty = errors.New("media payload is empty")
	// ErrTooLarge is returned when a payload exceeds the configured cap.
	ErrTooLarge = errors.New("media payload exceeds size limit")
	// ErrInvalid is returned when a payload is not valid base64.
	ErrInvalid = errors.New("media payload is not valid base64")
)

// Categories accepted by the provider's sendMedia endpoint.
const (
	CategoryImage    = "image"
	CategoryVideo    = "video"
	CategoryAudio    = "audio"
	CategoryDocument = "document"
)

var lower = cases.Lower(language.Und)

// SanitizeFilename strips accents, drops every rune outside
// [a-zA-Z0-9.-_] and lower-cases the result. An empty result becomes "file".
func SanitizeFilename(name string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, name)
	if err != nil {
		folded = name
	}
	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		}
	}
	out := strings.Trim(lower.String(b.String()), ".")
	if out == "" {
		return "file"
	}
	return out
}

// Category maps a MIME type onto image, video, audio or document.
func Category(mime string) string {
	m := strings.ToLower(strings.TrimSpace(mime))
	switch {
	case strings.HasPrefix(m, "image/"):
		return CategoryImage
	case strings.HasPrefix(m, "video/"):
		return CategoryVideo
	case strings.HasPrefix(m, "audio/"):
		return CategoryAudio
	default:
		return CategoryDocument
	}
}

// StripDataURL removes a "data:<mime>;base64," prefix and returns the bare
// payload together with the declared MIME type, if any.
func StripDataURL(input string) (payload, declared string) {
	v := strings.TrimSpace(input)
	if !strings.HasPrefix(strings.ToLower(v), "data:") {
		return v, ""
	}
	idx := strings.IndexByte(v, ',')
	if idx < 0 {
		return v, ""
	}
	header := v[len("data:"):idx]
	if semi := strings.IndexByte(header, ';'); semi >= 0 {
		header = header[:semi]
	}
	return v[idx+1:], strings.TrimSpace(header)
}

// DecodeBase64 decodes input in fixed-size chunks, never materializing a
// second full-size string. A data-URL prefix is tolerated. maxBytes <= 0
// disables the cap.
func DecodeBase64(input string, maxBytes int64) ([]byte, string, error) {
	payload, declared := StripDataURL(input)
	if payload == "" {
		return nil, declared, ErrEmpty
	}
	enc := base64.StdEncoding
	n := len(payload) - strings.Count(payload, "\n") - strings.Count(payload, "\r")
	if !strings.HasSuffix(payload, "=") && n%4 != 0 {
		enc = base64.RawStdEncoding
	}
	dec := base64.NewDecoder(enc, newlineSkipper{strings.NewReader(payload)})

	var src io.Reader = dec
	if maxBytes > 0 {
		src = io.LimitReader(dec, maxBytes+1)
	}
	var buf bytes.Buffer
	buf.Grow(base64.StdEncoding.DecodedLen(len(payload)))
	if _, err := io.CopyBuffer(&buf, src, make([]byte, 32*1024)); err != nil {
		return nil, declared, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if maxBytes > 0 && int64(buf.Len()) > maxBytes {
		return nil, declared, ErrTooLarge
	}
	if buf.Len() == 0 {
		return nil, declared, ErrEmpty
	}
	return buf.Bytes(), declared, nil
}

// newlineSkipper drops CR/LF so MIME-wrapped base64 decodes.
type newlineSkipper struct{ r io.Reader }

func (n newlineSkipper) Read(p []byte) (int, error) {
	for {
		k, err := n.r.Read(p)
		j := 0
		for _, c := range p[:k] {
			if c != '\r' && c != '\n' {
				p[j] = c
				j++
			}
		}
		if j > 0 || err != nil {
			return j, err
		}
	}
}

// Detect returns the MIME type and extension (with dot) for data. A
// declared type wins over the sniffed one unless it is generic.
func Detect(data []byte, declared string) (string, string) {
	declared = strings.TrimSpace(declared)
	if declared != "" && declared != "application/octet-stream" {
		base := declared
		if i := strings.IndexByte(base, ';'); i >= 0 {
			base = strings.TrimSpace(base[:i])
		}
		if m := mimetype.Lookup(base); m != nil {
			return declared, m.Extension()
		}
		return declared, mimetype.Detect(data).Extension()
	}
	m := mimetype.Detect(data)
	return m.String(), m.Extension()
}
