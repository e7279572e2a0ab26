// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file provides SecurityHeaders for the JSON API: baseline hardening
// headers, opt-in HSTS for HTTPS requests, optional no-store caching, and
// Vary headers for responses that depend on the acting user (editor trees
// and feedback are per actor, so shared caches must not mix them).
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

const defaultHSTSMaxAge = 180 * 24 * time.Hour

// SecurityOptions configures SecurityHeaders.
type SecurityOptions struct {
	EnableHSTS   bool          // set true only when traffic is HTTPS end-to-end
	HSTSMaxAge   time.Duration // defaults to 180 days
	NoStore      bool          // add Cache-Control: no-store
	EnablePolicy bool          // include Permissions-Policy and X-Permitted-Cross-Domain-Policies
	// VaryHeaders are appended to Vary on every response, e.g. X-User-ID.
	VaryHeaders []string
}

// SecurityHeaders returns a Gin middleware that sets, on every response:
//
//	X-Content-Type-Options: nosniff
//	X-Frame-Options: DENY
//	Referrer-Policy: no-referrer
//
// plus the optional headers selected by opt. Strict-Transport-Security is
// only sent for HTTPS requests (directly or via X-Forwarded-Proto), and an
// existing X-Request-ID is added to Access-Control-Expose-Headers.
func SecurityHeaders(opt SecurityOptions) gin.HandlerFunc {
	maxAge := opt.HSTSMaxAge
	if maxAge <= 0 {
		maxAge = defaultHSTSMaxAge
	}
	hsts := "max-age=" + strconv.Itoa(int(maxAge.Seconds())) + "; includeSubDomains; preload"

	return func(c *gin.Context) {
		h := c.Writer.Header()

		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")

		if opt.EnablePolicy {
			h.Set("Permissions-Policy", "geolocation=(), microphone=(), camera=(), payment=()")
			h.Set("X-Permitted-Cross-Domain-Policies", "none")
		}
		if opt.NoStore {
			h.Set("Cache-Control", "no-store")
			h.Set("Pragma", "no-cache")
			h.Set("Expires", "0")
		}
		if opt.EnableHSTS && isHTTPS(c.Request) {
			h.Set("Strict-Transport-Security", hsts)
		}
		for _, v := range opt.VaryHeaders {
			appendToken(h, "Vary", v)
		}
		if h.Get(requestIDHeader) != "" {
			appendToken(h, "Access-Control-Expose-Headers", requestIDHeader)
		}

		c.Next()
	}
}

// appendToken adds tok to a comma-separated header unless already present
// (case-insensitive).
func appendToken(h http.Header, name, tok string) {
	tok = strings.TrimSpace(tok)
	if tok == "" {
		return
	}
	cur := h.Get(name)
	if cur == "" {
		h.Set(name, tok)
		return
	}
	for _, p := range strings.Split(cur, ",") {
		if strings.EqualFold(strings.TrimSpace(p), tok) {
			return
		}
	}
	h.Set(name, cur+", "+tok)
}

// isHTTPS reports whether the incoming request used HTTPS either directly
// (r.TLS != nil) or via a reverse proxy that set X-Forwarded-Proto: https.
func isHTTPS(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	return strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}
