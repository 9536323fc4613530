package security

import (
	"net/http/httptest"
	"testing"
)

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name              string
		remoteAddr        string
		forwardedFor      string
		realIP            string
		trustProxy        bool
		trustedProxyCount int
		want              string
	}{
		{
			name:       "direct connection",
			remoteAddr: "203.0.113.5:41234",
			want:       "203.0.113.5",
		},
		{
			name:         "forwarded headers ignored without trust",
			remoteAddr:   "203.0.113.5:41234",
			forwardedFor: "198.51.100.7",
			realIP:       "198.51.100.8",
			want:         "203.0.113.5",
		},
		{
			name:              "single proxy",
			remoteAddr:        "10.0.0.1:80",
			forwardedFor:      "198.51.100.7, 10.0.0.1",
			trustProxy:        true,
			trustedProxyCount: 1,
			want:              "198.51.100.7",
		},
		{
			name:              "two proxies",
			remoteAddr:        "10.0.0.1:80",
			forwardedFor:      "198.51.100.7, 10.0.0.2, 10.0.0.1",
			trustProxy:        true,
			trustedProxyCount: 2,
			want:              "198.51.100.7",
		},
		{
			name:              "more trusted proxies than entries",
			remoteAddr:        "10.0.0.1:80",
			forwardedFor:      "198.51.100.7",
			trustProxy:        true,
			trustedProxyCount: 5,
			want:              "198.51.100.7",
		},
		{
			name:       "x-real-ip fallback",
			remoteAddr: "10.0.0.1:80",
			realIP:     "198.51.100.9",
			trustProxy: true,
			want:       "198.51.100.9",
		},
		{
			name:         "garbage forwarded-for falls through",
			remoteAddr:   "203.0.113.5:41234",
			forwardedFor: "not-an-ip",
			trustProxy:   true,
			want:         "203.0.113.5",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			r.RemoteAddr = tt.remoteAddr
			if tt.forwardedFor != "" {
				r.Header.Set("X-Forwarded-For", tt.forwardedFor)
			}
			if tt.realIP != "" {
				r.Header.Set("X-Real-IP", tt.realIP)
			}

			got := GetClientIP(r, tt.trustProxy, tt.trustedProxyCount)
			if got != tt.want {
				t.Errorf("GetClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}
