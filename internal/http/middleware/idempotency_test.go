package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

const sendPath = "/api/v1/messages/send"

func postSend(r *gin.Engine, headers map[string]string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, sendPath, strings.NewReader(`{"message":"oi"}`))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	r.ServeHTTP(w, req)
	return w
}

func TestHelpers_GetIdempotencyKey_IsReplay_UserID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodPost, sendPath, nil)

	if k, ok := GetIdempotencyKey(c); k != "" || ok {
		t.Fatalf("expected empty key when not set")
	}
	if IsReplay(c) {
		t.Fatalf("expected IsReplay=false by default")
	}

	c.Set(ctxKeyIdemKey, 123)
	if _, ok := GetIdempotencyKey(c); ok {
		t.Fatalf("non-string key must read as absent")
	}
	c.Set(ctxKeyIdemReplay, true)
	if !IsReplay(c) {
		t.Fatalf("expected IsReplay=true")
	}
	c.Set(ctxKeyIdemReplay, "yes")
	if IsReplay(c) {
		t.Fatalf("expected IsReplay=false for non-bool")
	}

	if got := UserID(c); got != "" {
		t.Fatalf("UserID without user: %q", got)
	}
	c.Set(ctxKeyUserID, "staff-1")
	if got := UserID(c); got != "staff-1" {
		t.Fatalf("UserID = %q", got)
	}
	c.Set(ctxKeyUserID, 42)
	if got := UserID(c); got != "" {
		t.Fatalf("UserID wrong type: %q", got)
	}
	if got := UserID(nil); got != "" {
		t.Fatalf("UserID(nil) = %q", got)
	}
}

func TestIdempotencyValidator_SafeMethodsAndMissingHeader(t *testing.T) {
	gin.SetMode(gin.TestMode)

	called := false
	lookup := func(context.Context, string, string, time.Time) (bool, error) {
		called = true
		return true, nil
	}
	r := gin.New()
	r.Use(StaffUser())
	r.Use(IdempotencyValidator(IdempotencyOptions{}, lookup))
	r.GET("/api/v1/unread", func(c *gin.Context) {
		if _, ok := GetIdempotencyKey(c); ok {
			t.Fatalf("GET must not stash a key")
		}
		c.Status(http.StatusNoContent)
	})
	r.POST(sendPath, func(c *gin.Context) {
		if _, ok := GetIdempotencyKey(c); ok {
			t.Fatalf("no header, no key")
		}
		c.Status(http.StatusOK)
	})

	// A key on a GET, even a malformed one, is ignored.
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/unread", nil)
	req.Header.Set(HeaderUserID, "staff-1")
	req.Header.Set(HeaderIdempotencyKey, "not valid at all")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNoContent {
		t.Fatalf("GET: expected 204, got %d", w.Code)
	}

	// Whitespace only counts as absent.
	if w := postSend(r, map[string]string{HeaderUserID: "staff-1", HeaderIdempotencyKey: "   "}); w.Code != http.StatusOK {
		t.Fatalf("blank key: expected 200, got %d", w.Code)
	}
	if called {
		t.Fatalf("lookup must not run without a usable key")
	}
}

func TestIdempotencyValidator_RejectsMalformedKeys(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cases := []struct {
		name string
		opts IdempotencyOptions
		key  string
	}{
		{"too long", IdempotencyOptions{MaxLen: 5}, "abcdef"},
		{"default max", IdempotencyOptions{}, strings.Repeat("k", defaultIdemMaxLen+1)},
		{"spaces", IdempotencyOptions{}, "retry send 1"},
		{"custom pattern", IdempotencyOptions{Pattern: regexp.MustCompile(`^[0-9]+$`)}, "abc123"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := gin.New()
			r.Use(RequestID())
			r.Use(IdempotencyValidator(tc.opts, nil))
			r.POST(sendPath, func(c *gin.Context) {
				t.Fatalf("handler must not run for a malformed key")
			})

			w := postSend(r, map[string]string{HeaderIdempotencyKey: tc.key, requestIDHeader: "rid-idem"})
			if w.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", w.Code)
			}
			var body map[string]any
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatalf("invalid json: %v", err)
			}
			if body["code"] != "bad_request" || body["request_id"] != "rid-idem" {
				t.Fatalf("unexpected body: %v", body)
			}
		})
	}
}

func TestIdempotencyValidator_StashesTrimmedKey(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(IdempotencyValidator(IdempotencyOptions{}, nil))
	r.POST(sendPath, func(c *gin.Context) {
		key, ok := GetIdempotencyKey(c)
		if !ok || key != "7a8d9f4c-1b2a-4c3d-8e9f-0123456789ab" {
			t.Fatalf("stashed key = %q ok=%v", key, ok)
		}
		if IsReplay(c) || IsRateBypass(c) {
			t.Fatalf("no lookup means no replay")
		}
		c.Status(http.StatusOK)
	})

	if w := postSend(r, map[string]string{HeaderIdempotencyKey: " 7a8d9f4c-1b2a-4c3d-8e9f-0123456789ab "}); w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestIdempotencyValidator_Lookup(t *testing.T) {
	gin.SetMode(gin.TestMode)

	build := func(lookup IdempotencyLookup, check func(*gin.Context)) *gin.Engine {
		r := gin.New()
		r.Use(StaffUser())
		r.Use(IdempotencyValidator(IdempotencyOptions{}, lookup))
		r.POST(sendPath, func(c *gin.Context) {
			check(c)
			c.Status(http.StatusOK)
		})
		return r
	}

	t.Run("anonymous request skips lookup", func(t *testing.T) {
		called := false
		r := build(func(context.Context, string, string, time.Time) (bool, error) {
			called = true
			return true, nil
		}, func(c *gin.Context) {
			if IsReplay(c) || IsRateBypass(c) {
				t.Fatalf("anonymous send cannot be a replay")
			}
		})
		if w := postSend(r, map[string]string{HeaderIdempotencyKey: "key-1"}); w.Code != http.StatusOK || called {
			t.Fatalf("code=%d called=%v", w.Code, called)
		}
	})

	t.Run("miss", func(t *testing.T) {
		r := build(func(_ context.Context, userID, key string, now time.Time) (bool, error) {
			if userID != "staff-1" || key != "key-1" || now.IsZero() || now.Location() != time.UTC {
				t.Fatalf("lookup args: uid=%q key=%q now=%v", userID, key, now)
			}
			return false, nil
		}, func(c *gin.Context) {
			if IsReplay(c) || IsRateBypass(c) {
				t.Fatalf("miss must not flag a replay")
			}
		})
		if w := postSend(r, map[string]string{HeaderUserID: "staff-1", HeaderIdempotencyKey: "key-1"}); w.Code != http.StatusOK {
			t.Fatalf("miss: %d", w.Code)
		}
	})

	t.Run("hit flags replay and rate bypass", func(t *testing.T) {
		r := build(func(_ context.Context, userID, key string, _ time.Time) (bool, error) {
			return userID == "staff-9" && key == "k-9", nil
		}, func(c *gin.Context) {
			if !IsReplay(c) || !IsRateBypass(c) {
				t.Fatalf("hit must flag replay and bypass")
			}
		})
		if w := postSend(r, map[string]string{HeaderUserID: "staff-9", HeaderIdempotencyKey: "k-9"}); w.Code != http.StatusOK {
			t.Fatalf("hit: %d", w.Code)
		}
	})

	t.Run("lookup error is logged and not fatal", func(t *testing.T) {
		buf := captureLogger(t)
		r := gin.New()
		r.Use(RequestID())
		r.Use(StaffUser())
		r.Use(RedactingLogger(RedactOptions{}))
		r.Use(IdempotencyValidator(IdempotencyOptions{}, func(context.Context, string, string, time.Time) (bool, error) {
			return false, errors.New("database is locked")
		}))
		r.POST(sendPath, func(c *gin.Context) {
			if IsReplay(c) {
				t.Fatalf("failed lookup must not flag a replay")
			}
			c.Status(http.StatusOK)
		})
		if w := postSend(r, map[string]string{HeaderUserID: "staff-1", HeaderIdempotencyKey: "key-2"}); w.Code != http.StatusOK {
			t.Fatalf("lookup error: %d", w.Code)
		}
		if !strings.Contains(buf.String(), "idempotency lookup failed") || !strings.Contains(buf.String(), "database is locked") {
			t.Fatalf("expected warn log, got:\n%s", buf.String())
		}
	})
}
