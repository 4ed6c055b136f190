package middleware

import (
	"net"
	"net/http"
	"strings"
)

// Identifier extracts the throttled subject from a request. An empty result
// rejects the request with 400.
type Identifier func(*http.Request) string

// FormValue keys attempts by a form field, such as the email on a login form.
// The value is trimmed and lower-cased so "Alice@Example.com " and
// "alice@example.com" share one counter.
func FormValue(field string) Identifier {
	return func(r *http.Request) string {
		return normalize(r.FormValue(field))
	}
}

// Header keys attempts by a request header.
func Header(name string) Identifier {
	return func(r *http.Request) string {
		return normalize(r.Header.Get(name))
	}
}

// ByClientIP keys attempts by the caller address.
func ByClientIP(r *http.Request) string {
	return ClientIP(r)
}

// ClientIP returns the host part of r.RemoteAddr. Forwarding headers are
// ignored; put a proxy-aware handler in front when they can be trusted.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
