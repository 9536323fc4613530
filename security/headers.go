package security

import (
	"net/http"
	"net/url"
)

// SetSecurityHeaders sets security headers for machine-facing OAuth
// responses (JSON endpoints). The CSP is maximally strict since these
// responses never render in a browser.
func SetSecurityHeaders(w http.ResponseWriter, serverURL string) {
	setCommonHeaders(w, serverURL)
	w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
}

// SetHTMLSecurityHeaders sets security headers for the consent and error
// pages. These pages carry an embedded stylesheet, so style-src permits
// inline styles while everything else stays locked down.
func SetHTMLSecurityHeaders(w http.ResponseWriter, serverURL string) {
	setCommonHeaders(w, serverURL)
	w.Header().Set("Content-Security-Policy", "default-src 'none'; style-src 'unsafe-inline'; frame-ancestors 'none'")
}

func setCommonHeaders(w http.ResponseWriter, serverURL string) {
	// Clickjacking and MIME sniffing protection
	w.Header().Set("X-Frame-Options", "DENY")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Referrer-Policy", "no-referrer")

	// HSTS only when the server itself is reached over HTTPS
	if parsed, err := url.Parse(serverURL); err == nil && parsed.Scheme == "https" {
		w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
	}

	// OAuth responses carry credentials and must never be cached
	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, private")
	w.Header().Set("Pragma", "no-cache")
}
