package security

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRequestIDMiddleware(t *testing.T) {
	var seen string
	handler := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	t.Run("generates when missing", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))

		echoed := w.Header().Get(RequestIDHeader)
		if echoed == "" {
			t.Fatal("expected a generated request ID")
		}
		if seen != echoed {
			t.Errorf("context ID %q != response header %q", seen, echoed)
		}
	})

	t.Run("preserves valid upstream ID", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/", nil)
		r.Header.Set(RequestIDHeader, "upstream-id-42")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)

		if seen != "upstream-id-42" {
			t.Errorf("expected upstream ID to be preserved, got %q", seen)
		}
	})

	t.Run("replaces malformed upstream ID", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/", nil)
		r.Header.Set(RequestIDHeader, "bad id\r\nwith-injection")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)

		if seen == "" || strings.Contains(seen, "\r") {
			t.Errorf("malformed ID should be replaced, got %q", seen)
		}
	})
}

func TestGetRequestIDWithoutValue(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	if got := GetRequestID(r.Context()); got != "" {
		t.Errorf("expected empty request ID, got %q", got)
	}
}
