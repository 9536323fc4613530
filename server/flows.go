package server

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/soundbridge/oauth/security"
	"github.com/soundbridge/oauth/storage"
)

// AuthorizationRequest carries the query parameters of an authorization
// request into the flow logic.
type AuthorizationRequest struct {
	ResponseType        string
	ClientID            string
	RedirectURI         string
	State               string
	Scope               string
	CodeChallenge       string
	CodeChallengeMethod string
	ClientIP            string
}

// BeginAuthorization validates an authorization request and stores a
// pending grant awaiting consent. The returned grant's TempCode must only
// ever reach the resource owner's browser, never the relying party; the
// relying party first sees a credential when the approved code is delivered
// on the redirect.
//
// Failures are *ConsentError values since this endpoint renders for a human.
func (s *Server) BeginAuthorization(ctx context.Context, req *AuthorizationRequest) (*storage.PendingGrant, error) {
	var missing []string
	if req.ResponseType == "" {
		missing = append(missing, "response_type")
	}
	if req.ClientID == "" {
		missing = append(missing, "client_id")
	}
	if req.RedirectURI == "" {
		missing = append(missing, "redirect_uri")
	}
	if req.State == "" {
		missing = append(missing, "state")
	}
	if len(missing) > 0 {
		return nil, NewConsentError(ReasonMissingParams, "Invalid Request",
			fmt.Sprintf("Missing required parameters: %s", strings.Join(missing, ", ")))
	}

	if req.ResponseType != ResponseTypeCode {
		return nil, NewConsentError(ReasonUnsupportedResponseType, "Unsupported Response Type",
			fmt.Sprintf("Unsupported response_type %q: only %q is supported", req.ResponseType, ResponseTypeCode))
	}

	if req.CodeChallengeMethod != "" && req.CodeChallengeMethod != PKCEMethodS256 {
		return nil, NewConsentError(ReasonUnsupportedPkceMethod, "Unsupported PKCE Method",
			fmt.Sprintf("Unsupported code_challenge_method %q: only %q is supported", req.CodeChallengeMethod, PKCEMethodS256))
	}

	if s.Config.RequirePKCE && req.CodeChallenge == "" {
		return nil, NewConsentError(ReasonMissingParams, "Invalid Request",
			"Missing required parameters: code_challenge")
	}

	client, err := s.clientStore.GetClient(ctx, req.ClientID)
	if err != nil {
		if errors.Is(err, storage.ErrClientNotFound) {
			s.Logger.Warn("Authorization request for unknown client", "client_id", req.ClientID)
			return nil, NewConsentError(ReasonUnknownClient, "Unknown Client",
				fmt.Sprintf("Client %q is not registered with this server", req.ClientID))
		}
		s.Logger.Error("Failed to look up client", "client_id", req.ClientID, "error", err)
		return nil, NewConsentError(ReasonServerError, "Server Error",
			"The authorization request could not be processed")
	}

	if err := validateRedirectURI(client, req.RedirectURI); err != nil {
		if s.Auditor != nil {
			s.Auditor.LogEvent(security.Event{
				Type:      security.EventInvalidRedirect,
				ClientID:  req.ClientID,
				IPAddress: req.ClientIP,
				Details:   map[string]any{"redirect_uri": req.RedirectURI},
			})
		}
		s.Logger.Warn("Authorization request with unregistered redirect URI",
			"client_id", req.ClientID,
			"redirect_uri", req.RedirectURI)
		return nil, NewConsentError(ReasonInvalidRedirect, "Invalid Redirect URI",
			"The redirect_uri is not registered for this client")
	}

	method := req.CodeChallengeMethod
	if req.CodeChallenge != "" && method == "" {
		method = PKCEMethodS256
	}

	now := time.Now()
	grant := &storage.PendingGrant{
		TempCode:            generateRandomToken(),
		ClientID:            client.ClientID,
		RedirectURI:         req.RedirectURI,
		State:               req.State,
		Scope:               req.Scope,
		CodeChallenge:       req.CodeChallenge,
		CodeChallengeMethod: method,
		CreatedAt:           now,
		ExpiresAt:           now.Add(s.Config.PendingGrantTTL),
	}

	if err := s.grantStore.SavePendingGrant(ctx, grant); err != nil {
		s.Logger.Error("Failed to save pending grant", "client_id", client.ClientID, "error", err)
		return nil, NewConsentError(ReasonServerError, "Server Error",
			"The authorization request could not be processed")
	}

	if s.Auditor != nil {
		s.Auditor.LogAuthorizationStarted(client.ClientID, req.ClientIP, req.Scope, req.CodeChallenge != "")
	}
	s.metrics().RecordAuthorizationStarted(ctx, client.ClientID)

	s.Logger.Info("Authorization request accepted",
		"client_id", client.ClientID,
		"scope", req.Scope,
		"pkce", req.CodeChallenge != "",
		"temp_code_prefix", safeTruncate(grant.TempCode, tokenLogLength))

	return grant, nil
}

// ApproveGrant consumes a pending grant after the resource owner approved
// consent and promotes it into a redeemable authorization code bound to
// userID. The identity must already be verified by the caller; this server
// never establishes one itself.
//
// Validation order matters: the state comparison runs before expiry is
// considered, so a mismatched state is rejected as a CSRF failure whether or
// not the grant is still live, and the grant stays in place for a retry with
// the original parameters. Only the consuming take enforces expiry.
func (s *Server) ApproveGrant(ctx context.Context, tempCode, state, userID string) (*storage.AuthorizationCode, error) {
	var missing []string
	if tempCode == "" {
		missing = append(missing, "auth_code")
	}
	if state == "" {
		missing = append(missing, "state")
	}
	if len(missing) > 0 {
		return nil, NewConsentError(ReasonMissingFormFields, "Invalid Request",
			fmt.Sprintf("Missing required form fields: %s", strings.Join(missing, ", ")))
	}
	if userID == "" {
		return nil, NewConsentError(ReasonServerError, "Server Error",
			"No authenticated identity for this approval")
	}

	grant, err := s.grantStore.GetPendingGrant(ctx, tempCode)
	if err != nil {
		return nil, s.consentErrorForGrant(ctx, tempCode, err)
	}

	if subtle.ConstantTimeCompare([]byte(grant.State), []byte(state)) != 1 {
		if s.Auditor != nil {
			s.Auditor.LogCsrfMismatch(grant.ClientID, "")
		}
		s.metrics().RecordCsrfMismatch(ctx)
		s.Logger.Warn("Consent approval rejected: state mismatch",
			"client_id", grant.ClientID,
			"temp_code_prefix", safeTruncate(tempCode, tokenLogLength))
		// Grant stays in the store; the user may resubmit with the original state
		return nil, NewConsentError(ReasonCsrfMismatch, "Security Check Failed",
			"The state value did not match the original authorization request")
	}

	// Consume the grant. The atomic take decides the winner if the same
	// approval is submitted concurrently.
	grant, err = s.grantStore.TakePendingGrant(ctx, tempCode)
	if err != nil {
		return nil, s.consentErrorForGrant(ctx, tempCode, err)
	}

	now := time.Now()
	authCode := &storage.AuthorizationCode{
		Code:                generateRandomToken(),
		ClientID:            grant.ClientID,
		RedirectURI:         grant.RedirectURI,
		Scope:               grant.Scope,
		CodeChallenge:       grant.CodeChallenge,
		CodeChallengeMethod: grant.CodeChallengeMethod,
		UserID:              userID,
		CreatedAt:           now,
		ExpiresAt:           now.Add(s.Config.AuthorizationCodeTTL),
	}

	if err := s.grantStore.SaveAuthorizationCode(ctx, authCode); err != nil {
		s.Logger.Error("Failed to save authorization code", "client_id", grant.ClientID, "error", err)
		return nil, NewConsentError(ReasonServerError, "Server Error",
			"The approval could not be processed")
	}

	if s.Auditor != nil {
		s.Auditor.LogGrantApproved(userID, grant.ClientID, "")
	}
	s.metrics().RecordGrantApproved(ctx, grant.ClientID)

	s.Logger.Info("Consent approved, authorization code issued",
		"client_id", grant.ClientID,
		"code_prefix", safeTruncate(authCode.Code, tokenLogLength))

	return authCode, nil
}

// consentErrorForGrant maps storage errors from pending grant lookups to
// consent errors.
func (s *Server) consentErrorForGrant(ctx context.Context, tempCode string, err error) error {
	switch {
	case errors.Is(err, storage.ErrGrantExpired):
		if s.Auditor != nil {
			s.Auditor.LogEvent(security.Event{
				Type:    security.EventGrantExpired,
				Details: map[string]any{"temp_code_prefix": safeTruncate(tempCode, tokenLogLength)},
			})
		}
		return NewConsentError(ReasonGrantExpired, "Request Expired",
			"The authorization request has expired. Please start over")
	case errors.Is(err, storage.ErrGrantNotFound):
		return NewConsentError(ReasonGrantNotFound, "Unknown Request",
			"The authorization request was not found. It may already have been approved")
	default:
		s.Logger.Error("Failed to load pending grant", "error", err)
		return NewConsentError(ReasonServerError, "Server Error",
			"The approval could not be processed")
	}
}

// ExchangeAuthorizationCode redeems an authorization code for a token
// record. The caller has already authenticated the client; clientID here is
// the authenticated identity, and the code must be bound to it.
//
// The code is consumed before the binding checks run, so a redemption that
// fails validation still burns the code. That is deliberate: a code that
// reached the wrong party must die, not wait for them to fix their request.
func (s *Server) ExchangeAuthorizationCode(ctx context.Context, code, clientID, redirectURI, codeVerifier, clientIP string) (*storage.TokenRecord, *OAuthError) {
	authCode, err := s.grantStore.TakeAuthorizationCode(ctx, code)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrCodeExpired):
			s.Logger.Warn("Token request with expired authorization code",
				"client_id", clientID,
				"code_prefix", safeTruncate(code, tokenLogLength))
			return nil, ErrInvalidGrant("authorization code expired")
		case errors.Is(err, storage.ErrCodeNotFound):
			// Either never issued or already redeemed; possible replay
			s.metrics().RecordCodeReuseDetected(ctx)
			s.Logger.Warn("Token request with unknown authorization code",
				"client_id", clientID,
				"code_prefix", safeTruncate(code, tokenLogLength))
			return nil, ErrInvalidGrant("invalid authorization code")
		default:
			s.Logger.Error("Failed to redeem authorization code", "error", err)
			return nil, ErrServerError("failed to process token request")
		}
	}

	if authCode.ClientID != clientID {
		if s.Auditor != nil {
			s.Auditor.LogAuthFailure(clientID, clientIP, "authorization code client binding mismatch")
		}
		s.Logger.Warn("Authorization code bound to a different client",
			"presented_client_id", clientID,
			"bound_client_id", authCode.ClientID)
		return nil, ErrClientBindingMismatch("authorization code was issued to a different client")
	}

	if subtle.ConstantTimeCompare([]byte(authCode.RedirectURI), []byte(redirectURI)) != 1 {
		s.Logger.Warn("Token request redirect_uri mismatch", "client_id", clientID)
		return nil, ErrInvalidGrant("redirect_uri does not match the authorization request")
	}

	if authCode.CodeChallenge != "" {
		if err := s.validatePKCE(authCode.CodeChallenge, codeVerifier); err != nil {
			if s.Auditor != nil {
				s.Auditor.LogPKCEFailure(clientID, clientIP)
			}
			s.metrics().RecordPKCEValidationFailed(ctx)
			s.Logger.Warn("PKCE validation failed", "client_id", clientID, "error", err)
			return nil, ErrInvalidGrant(fmt.Sprintf("PKCE validation failed: %v", err))
		}
	}

	record, oauthErr := s.issueTokens(ctx, authCode.UserID, clientID, authCode.Scope)
	if oauthErr != nil {
		return nil, oauthErr
	}

	if s.Auditor != nil {
		s.Auditor.LogTokenIssued(record.UserID, clientID, clientIP, record.Scope)
	}
	s.metrics().RecordCodeExchange(ctx, clientID, authCode.CodeChallenge != "")

	s.Logger.Info("Authorization code exchanged for tokens",
		"client_id", clientID,
		"pkce", authCode.CodeChallenge != "")

	return record, nil
}

// issueTokens creates a fresh token record for the user, overwriting any
// prior record. One record per user: re-linking the same user invalidates
// the previous credential set.
func (s *Server) issueTokens(ctx context.Context, userID, clientID, scope string) (*storage.TokenRecord, *OAuthError) {
	now := time.Now()
	record := &storage.TokenRecord{
		UserID:       userID,
		ClientID:     clientID,
		AccessToken:  generateRandomToken(),
		RefreshToken: generateRandomToken(),
		Scope:        scope,
		ExpiresAt:    now.Add(s.Config.AccessTokenTTL),
		CreatedAt:    now,
	}
	if s.Config.RefreshTokenTTL > 0 {
		record.RefreshExpiresAt = now.Add(s.Config.RefreshTokenTTL)
	}

	if err := s.tokenStore.SaveTokenRecord(ctx, record); err != nil {
		s.Logger.Error("Failed to save token record", "user_id", userID, "error", err)
		return nil, ErrServerError("failed to issue tokens")
	}
	return record, nil
}

// RefreshAccessToken redeems a refresh token for a new access token. The
// refresh token itself is echoed back unchanged unless rotation is enabled;
// linked devices store it once at link time and never update it.
func (s *Server) RefreshAccessToken(ctx context.Context, refreshToken, clientID, clientIP string) (*storage.TokenRecord, *OAuthError) {
	record, err := s.tokenStore.GetByRefreshToken(ctx, refreshToken, clientID)
	if err != nil {
		if errors.Is(err, storage.ErrTokenNotFound) {
			if s.Auditor != nil {
				s.Auditor.LogAuthFailure(clientID, clientIP, "unknown refresh token")
			}
			s.Logger.Warn("Refresh request with unknown refresh token", "client_id", clientID)
			return nil, ErrInvalidGrant("invalid refresh token")
		}
		s.Logger.Error("Failed to look up refresh token", "error", err)
		return nil, ErrServerError("failed to process token request")
	}

	if !record.RefreshExpiresAt.IsZero() && time.Now().After(record.RefreshExpiresAt) {
		if err := s.tokenStore.DeleteTokenRecord(ctx, record.UserID); err != nil {
			s.Logger.Warn("Failed to delete record with expired refresh token", "error", err)
		}
		s.Logger.Warn("Refresh request with expired refresh token", "client_id", clientID)
		return nil, ErrInvalidGrant("refresh token expired")
	}

	now := time.Now()
	record.AccessToken = generateRandomToken()
	record.ExpiresAt = now.Add(s.Config.AccessTokenTTL)
	if s.Config.RotateRefreshTokens {
		record.RefreshToken = generateRandomToken()
		if s.Config.RefreshTokenTTL > 0 {
			record.RefreshExpiresAt = now.Add(s.Config.RefreshTokenTTL)
		}
	}

	if err := s.tokenStore.SaveTokenRecord(ctx, record); err != nil {
		s.Logger.Error("Failed to save refreshed token record", "user_id", record.UserID, "error", err)
		return nil, ErrServerError("failed to issue tokens")
	}

	if s.Auditor != nil {
		s.Auditor.LogTokenRefreshed(record.UserID, clientID, clientIP)
	}
	s.metrics().RecordTokenRefresh(ctx, clientID)

	s.Logger.Info("Access token refreshed",
		"client_id", clientID,
		"rotated", s.Config.RotateRefreshTokens)

	return record, nil
}

// VerifyAccessToken resolves a bearer token to the bound user identity and
// scope. Absence of a valid identity is the only failure signal; resource
// endpoints treat a false return as "not authenticated" without further
// distinction.
func (s *Server) VerifyAccessToken(ctx context.Context, accessToken string) (userID, scope string, ok bool) {
	if accessToken == "" {
		return "", "", false
	}

	record, err := s.tokenStore.GetByAccessToken(ctx, accessToken)
	if err != nil {
		return "", "", false
	}

	if security.IsTokenExpiredWithGracePeriod(record.ExpiresAt, s.Config.ClockSkewGracePeriod) {
		return "", "", false
	}

	return record.UserID, record.Scope, true
}
