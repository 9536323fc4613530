// Package oauth provides an embeddable OAuth 2.0 authorization server
// implementing the authorization code grant with PKCE. It exposes an HTTP
// handler over the flow logic in the server package; storage backends and
// identity resolution are injected.
package oauth

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/soundbridge/oauth/security"
	"github.com/soundbridge/oauth/server"
	"github.com/soundbridge/oauth/storage"
)

// Handler serves the OAuth endpoints over an underlying server
type Handler struct {
	srv      *server.Server
	identity IdentityResolver
	logger   *slog.Logger

	serviceName string
	pathPrefix  string
}

// NewHandler creates an HTTP handler over the given server
func NewHandler(srv *server.Server, cfg Config) (*Handler, error) {
	if srv == nil {
		return nil, errors.New("server is required")
	}
	cfg = cfg.withDefaults()
	return &Handler{
		srv:         srv,
		identity:    cfg.Identity,
		logger:      cfg.Logger,
		serviceName: cfg.ServiceName,
		pathPrefix:  cfg.PathPrefix,
	}, nil
}

// RegisterRoutes mounts the OAuth endpoints on the mux
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.Handle("GET "+h.pathPrefix+PathAuthorize, h.wrap(PathAuthorize, true, h.ServeAuthorize))
	mux.Handle("POST "+h.pathPrefix+PathApprove, h.wrap(PathApprove, true, h.ServeApprove))
	mux.Handle("POST "+h.pathPrefix+PathToken, h.wrap(PathToken, false, h.ServeToken))
	mux.Handle("GET "+h.pathPrefix+PathHealth, h.wrap(PathHealth, false, h.ServeHealth))
}

// statusRecorder captures the response status for request metrics
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// wrap applies request ID propagation, rate limiting, and HTTP metrics to an
// endpoint handler. htmlError selects the error rendering for the
// browser-facing endpoints.
func (h *Handler) wrap(endpoint string, htmlError bool, next http.HandlerFunc) http.Handler {
	limited := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		if rl := h.srv.RateLimiter; rl != nil {
			ip := h.clientIP(r)
			if !rl.Allow(ip) {
				if aud := h.srv.Auditor; aud != nil {
					aud.LogRateLimitExceeded(ip)
				}
				h.srv.Instrumentation().Metrics().RecordRateLimitExceeded(r.Context(), "ip")
				if htmlError {
					h.writeConsentError(rec, r, server.NewConsentError(
						"rate_limited", "Too Many Requests",
						"Too many requests from your address. Please wait and try again"))
					rec.status = http.StatusTooManyRequests
				} else {
					h.writeError(rec, r, server.ErrRateLimitExceeded("too many requests"))
				}
				h.recordHTTP(r, endpoint, rec.status, start)
				return
			}
		}

		next(rec, r)
		h.recordHTTP(r, endpoint, rec.status, start)
	})
	return security.RequestIDMiddleware(limited)
}

func (h *Handler) recordHTTP(r *http.Request, endpoint string, status int, start time.Time) {
	h.srv.Instrumentation().Metrics().RecordHTTPRequest(
		r.Context(), r.Method, endpoint, status, float64(time.Since(start).Milliseconds()))
}

func (h *Handler) clientIP(r *http.Request) string {
	return security.GetClientIP(r, h.srv.Config.TrustProxy, h.srv.Config.TrustedProxyCount)
}

// ServeAuthorize handles GET /authorize. A valid request stores a pending
// grant and renders the consent page; every failure renders an HTML error
// page since the user agent at this endpoint is a browser.
func (h *Handler) ServeAuthorize(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := &server.AuthorizationRequest{
		ResponseType:        q.Get("response_type"),
		ClientID:            q.Get("client_id"),
		RedirectURI:         q.Get("redirect_uri"),
		State:               q.Get("state"),
		Scope:               q.Get("scope"),
		CodeChallenge:       q.Get("code_challenge"),
		CodeChallengeMethod: q.Get("code_challenge_method"),
		ClientIP:            h.clientIP(r),
	}

	grant, err := h.srv.BeginAuthorization(r.Context(), req)
	if err != nil {
		h.writeConsentFailure(w, r, err)
		return
	}

	clientName := grant.ClientID
	if client, err := h.srv.GetClient(r.Context(), grant.ClientID); err == nil && client.Name != "" {
		clientName = client.Name
	}

	security.SetHTMLSecurityHeaders(w, h.srv.Config.Issuer)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	page := consentPageData{
		ClientName:  clientName,
		ClientID:    grant.ClientID,
		Scope:       grant.Scope,
		TempCode:    grant.TempCode,
		State:       grant.State,
		ApprovePath: h.pathPrefix + PathApprove,
	}
	if err := renderConsentPage(w, page); err != nil {
		h.logger.Error("Failed to render consent page", "error", err)
	}
}

// ServeApprove handles POST /approve. Success redirects the browser back to
// the client's redirect URI with the authorization code and state.
func (h *Handler) ServeApprove(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.writeConsentError(w, r, server.NewConsentError(
			server.ReasonMissingFormFields, "Invalid Request", "The form could not be parsed"))
		return
	}

	userID, err := h.identity.ResolveIdentity(r)
	if err != nil {
		h.logger.Warn("Identity resolution failed on approval", "error", err)
		h.writeConsentError(w, r, server.NewConsentError(
			server.ReasonServerError, "Not Signed In", "Your identity could not be established"))
		return
	}

	code, err := h.srv.ApproveGrant(r.Context(), r.PostFormValue("auth_code"), r.PostFormValue("state"), userID)
	if err != nil {
		h.writeConsentFailure(w, r, err)
		return
	}

	location, err := redirectLocation(code.RedirectURI, code.Code, r.PostFormValue("state"))
	if err != nil {
		h.logger.Error("Failed to build redirect location", "error", err)
		h.writeConsentError(w, r, server.NewConsentError(
			server.ReasonServerError, "Server Error", "The approval could not be processed"))
		return
	}

	security.SetHTMLSecurityHeaders(w, h.srv.Config.Issuer)
	http.Redirect(w, r, location, http.StatusFound)
}

// redirectLocation appends code and state to the registered redirect URI,
// preserving any query parameters it already carries.
func redirectLocation(redirectURI, code, state string) (string, error) {
	u, err := url.Parse(redirectURI)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("code", code)
	q.Set("state", state)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ServeToken handles POST /token for the authorization_code and
// refresh_token grants. Errors are RFC 6749 JSON bodies.
func (h *Handler) ServeToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.writeError(w, r, server.ErrInvalidRequest("request body must be application/x-www-form-urlencoded"))
		return
	}

	clientID, clientSecret := h.clientCredentials(r)
	grantType := r.PostFormValue("grant_type")
	clientIP := h.clientIP(r)

	// Parameter presence is checked for the whole request, including the
	// grant-specific fields, before the client is authenticated.
	var missing []string
	if grantType == "" {
		missing = append(missing, "grant_type")
	}
	if clientID == "" {
		missing = append(missing, "client_id")
	}
	switch grantType {
	case GrantTypeAuthorizationCode:
		if r.PostFormValue("code") == "" {
			missing = append(missing, "code")
		}
		if r.PostFormValue("redirect_uri") == "" {
			missing = append(missing, "redirect_uri")
		}
	case GrantTypeRefreshToken:
		if r.PostFormValue("refresh_token") == "" {
			missing = append(missing, "refresh_token")
		}
	}
	if len(missing) > 0 {
		h.writeError(w, r, server.ErrInvalidRequest("missing required parameters: "+strings.Join(missing, ", ")))
		return
	}

	client, oauthErr := h.srv.AuthenticateClient(r.Context(), clientID, clientSecret, clientIP)
	if oauthErr != nil {
		h.writeError(w, r, oauthErr)
		return
	}

	var record *storage.TokenRecord
	switch grantType {
	case GrantTypeAuthorizationCode:
		record, oauthErr = h.srv.ExchangeAuthorizationCode(
			r.Context(), r.PostFormValue("code"), client.ClientID, r.PostFormValue("redirect_uri"),
			r.PostFormValue("code_verifier"), clientIP)

	case GrantTypeRefreshToken:
		record, oauthErr = h.srv.RefreshAccessToken(r.Context(), r.PostFormValue("refresh_token"), client.ClientID, clientIP)

	default:
		h.writeError(w, r, server.ErrUnsupportedGrantType("unsupported grant_type: "+grantType))
		return
	}

	if oauthErr != nil {
		h.writeError(w, r, oauthErr)
		return
	}

	h.writeTokenResponse(w, r, record)
}

// clientCredentials extracts client credentials, preferring HTTP Basic auth
// over form body parameters (RFC 6749 section 2.3.1). A client_id present in
// both places with different values is logged but the Basic value wins.
func (h *Handler) clientCredentials(r *http.Request) (clientID, clientSecret string) {
	formID := r.PostFormValue("client_id")
	formSecret := r.PostFormValue("client_secret")

	basicID, basicSecret, ok := r.BasicAuth()
	if !ok {
		return formID, formSecret
	}

	if formID != "" && formID != basicID {
		h.logger.Warn("client_id mismatch between Basic auth and request body; using Basic auth",
			"basic_client_id", basicID,
			"body_client_id", formID)
	}
	return basicID, basicSecret
}

// ServeHealth handles GET /health
func (h *Handler) ServeHealth(w http.ResponseWriter, r *http.Request) {
	security.SetSecurityHeaders(w, h.srv.Config.Issuer)
	w.Header().Set("Content-Type", "application/json")
	resp := HealthResponse{
		Status:  "ok",
		Service: h.serviceName,
		Endpoints: map[string]string{
			"authorize": h.pathPrefix + PathAuthorize,
			"approve":   h.pathPrefix + PathApprove,
			"token":     h.pathPrefix + PathToken,
		},
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error("Failed to encode health response", "error", err)
	}
}

// writeTokenResponse writes the RFC 6749 success body
func (h *Handler) writeTokenResponse(w http.ResponseWriter, r *http.Request, record *storage.TokenRecord) {
	security.SetSecurityHeaders(w, h.srv.Config.Issuer)
	w.Header().Set("Content-Type", "application/json")

	resp := TokenResponse{
		AccessToken:  record.AccessToken,
		TokenType:    TokenTypeBearer,
		ExpiresIn:    int64(time.Until(record.ExpiresAt).Round(time.Second).Seconds()),
		RefreshToken: record.RefreshToken,
		Scope:        record.Scope,
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error("Failed to encode token response", "error", err)
	}
}

// writeError writes an RFC 6749 JSON error body
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, oauthErr *server.OAuthError) {
	security.SetSecurityHeaders(w, h.srv.Config.Issuer)
	w.Header().Set("Content-Type", "application/json")
	if oauthErr.Status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Basic realm="oauth"`)
	}
	w.WriteHeader(oauthErr.Status)

	body := ErrorResponse{Error: oauthErr.Code, ErrorDescription: oauthErr.Description}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("Failed to encode error response", "error", err)
	}
}

// writeConsentFailure renders any error from the consent flows, mapping
// non-consent errors to a generic page.
func (h *Handler) writeConsentFailure(w http.ResponseWriter, r *http.Request, err error) {
	var consentErr *server.ConsentError
	if !errors.As(err, &consentErr) {
		h.logger.Error("Unexpected consent flow error", "error", err)
		consentErr = server.NewConsentError(
			server.ReasonServerError, "Server Error", "The request could not be processed")
	}
	h.writeConsentError(w, r, consentErr)
}

// writeConsentError renders an HTML error page for the browser-facing
// endpoints.
func (h *Handler) writeConsentError(w http.ResponseWriter, r *http.Request, consentErr *server.ConsentError) {
	security.SetHTMLSecurityHeaders(w, h.srv.Config.Issuer)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	status := http.StatusBadRequest
	if consentErr.Reason == server.ReasonServerError {
		status = http.StatusInternalServerError
	}
	w.WriteHeader(status)

	if err := renderErrorPage(w, errorPageData{Title: consentErr.Title, Message: consentErr.Message}); err != nil {
		h.logger.Error("Failed to render error page", "error", err)
	}
}
