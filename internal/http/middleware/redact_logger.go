// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements RedactingLogger, the access logger in front of the
// webhook and console routes. Customer phone numbers reach this service in
// query strings, WhatsApp JIDs and headers, and gateway keys travel in the
// apikey header, so every logged value is scrubbed first. Bodies are never
// logged: webhooks and compose requests carry message text and base64 media.
//
//	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
//	    MaskHeaders: []string{"X-API-Key"},
//	    SkipPaths:   []string{"/health", "/metrics"},
//	}))
package middleware

import (
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// RedactOptions configures RedactingLogger.
type RedactOptions struct {
	// MaskHeaders are replaced with "[REDACTED]" in addition to
	// Authorization, Cookie, Set-Cookie and apikey. Case-insensitive.
	MaskHeaders []string
	// SkipPaths get a scoped logger but no access line (probes, scrapes).
	SkipPaths []string
}

// Order matters: JIDs and UUIDs go before the loose phone pattern, which
// would otherwise eat their digit runs.
var (
	jidRE   = regexp.MustCompile(`(?i)\b\d{5,20}(?:[:.]\d+)?@(?:s\.whatsapp\.net|c\.us|g\.us|lid|broadcast)\b`)
	uuidRE  = regexp.MustCompile(`(?i)\b[0-9a-f]{8}\-[0-9a-f]{4}\-[1-5][0-9a-f]{3}\-[89ab][0-9a-f]{3}\-[0-9a-f]{12}\b`)
	emailRE = regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`)
	phoneRE = regexp.MustCompile(`\b(?:\+?\d{1,3}[ .-]?)?(?:\(?\d{2,4}\)?[ .-]?)?\d{3,5}[ .-]?\d{4}\b`)
)

// redactPII replaces JIDs, UUIDs, emails and phone numbers in s.
func redactPII(s string) string {
	if s == "" {
		return s
	}
	s = jidRE.ReplaceAllString(s, "[REDACTED:jid]")
	s = uuidRE.ReplaceAllString(s, "[REDACTED:id]")
	s = emailRE.ReplaceAllString(s, "[REDACTED:email]")
	return phoneRE.ReplaceAllString(s, "[REDACTED:phone]")
}

// RedactingLogger attaches a request-scoped logger (request_id, user_id) for
// LoggerFrom and, after the handler, writes one access line with method,
// route, scrubbed query and headers, status, size and latency. The level is
// info, warn for 4xx and error for 5xx or when handlers recorded gin errors.
func RedactingLogger(opts RedactOptions) gin.HandlerFunc {
	maskHeaders := map[string]struct{}{
		"authorization": {},
		"cookie":        {},
		"set-cookie":    {},
		"apikey":        {},
	}
	for _, h := range opts.MaskHeaders {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			maskHeaders[h] = struct{}{}
		}
	}
	skip := make(map[string]struct{}, len(opts.SkipPaths))
	for _, p := range opts.SkipPaths {
		skip[p] = struct{}{}
	}

	return func(c *gin.Context) {
		start := time.Now()

		scoped := log.With().
			Str("request_id", requestIDOf(c)).
			Str("user_id", UserID(c)).
			Logger()
		c.Set("logger", &scoped)

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		if _, ok := skip[path]; ok {
			c.Next()
			return
		}

		safeQuery := redactPII(truncate(c.Request.URL.RawQuery, maxQueryLogLength))
		safeHeaders := make(map[string]string, len(c.Request.Header))
		for k, vv := range c.Request.Header {
			if _, ok := maskHeaders[strings.ToLower(k)]; ok {
				safeHeaders[k] = "[REDACTED]"
				continue
			}
			safeHeaders[k] = redactPII(strings.Join(vv, ", "))
		}

		c.Next()

		status := c.Writer.Status()
		ev := scoped.Info()
		switch {
		case status >= 500 || len(c.Errors) > 0:
			ev = scoped.Error()
			if len(c.Errors) > 0 {
				ev = ev.Str("errors", redactPII(c.Errors.String()))
			}
		case status >= 400:
			ev = scoped.Warn()
		}

		ev.
			Str("method", c.Request.Method).
			Str("path", path).
			Str("query", safeQuery).
			Int("status", status).
			Int("bytes", c.Writer.Size()).
			Dur("latency", time.Since(start)).
			Interface("headers", safeHeaders).
			Msg("http_request")
	}
}

// requestIDOf prefers the id RequestID stored, then the response header,
// then whatever the caller sent.
func requestIDOf(c *gin.Context) string {
	if id := RequestIDFrom(c); id != "" {
		return id
	}
	if id := c.Writer.Header().Get(requestIDHeader); id != "" {
		return id
	}
	return c.GetHeader(requestIDHeader)
}
