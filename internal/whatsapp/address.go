package whatsapp

import (
	"strings"
	"time"
	_ "time/tzdata" // fixed civil zone must resolve on hosts without zoneinfo
)

// DigitsOnly strips every non-digit rune from s.
func DigitsOnly(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// IsBroadcast reports whether jid is a status or broadcast list address.
func IsBroadcast(jid string) bool {
	return strings.HasSuffix(strings.ToLower(jid), "@broadcast")
}

// IsGroup reports whether jid addresses a group chat.
func IsGroup(jid string) bool {
	return strings.HasSuffix(strings.ToLower(jid), "@g.us")
}

// PhoneFromJID extracts the digits of the user part of a JID such as
// "5511999999999:12@s.whatsapp.net".
func PhoneFromJID(jid string) string {
	user := jid
	if i := strings.IndexByte(user, '@'); i >= 0 {
		user = user[:i]
	}
	if i := strings.IndexByte(user, ':'); i >= 0 {
		user = user[:i]
	}
	return DigitsOnly(user)
}

// millisThreshold separates epoch seconds from epoch milliseconds. Second
// values stay below it until the year 33658.
const millisThreshold = 1_000_000_000_000

// NormalizeTimestamp converts a provider epoch into civil time in loc. A
// non-positive epoch falls back to now. The result never depends on
// time.Local.
func NormalizeTimestamp(epoch int64, loc *time.Location, now time.Time) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	if epoch <= 0 {
		return now.In(loc)
	}
	if epoch >= millisThreshold {
		return time.UnixMilli(epoch).In(loc)
	}
	return time.Unix(epoch, 0).In(loc)
}
