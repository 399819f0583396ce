// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file resolves the acting staff user. Authentication lives upstream of
// this service; the console forwards the signed-in staff id in X-User-ID and
// this middleware stores it under the "userID" context key that logging, rate
// limiting and idempotency read.
package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
)

// HeaderUserID carries the staff user id set by the console.
const HeaderUserID = "X-User-ID"

const ctxKeyUserID = "userID"

// StaffUser copies X-User-ID into the Gin context unless an upstream
// middleware already set a user.
func StaffUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if UserID(c) == "" {
			if h := strings.TrimSpace(c.GetHeader(HeaderUserID)); h != "" {
				c.Set(ctxKeyUserID, h)
			}
		}
		c.Next()
	}
}

// UserID returns the acting staff user, or "" when the request carries none.
func UserID(c *gin.Context) string {
	if c == nil {
		return ""
	}
	if v, ok := c.Get(ctxKeyUserID); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
