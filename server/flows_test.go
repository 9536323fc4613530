package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/soundbridge/oauth/internal/testutil"
	"github.com/soundbridge/oauth/storage"
	"github.com/soundbridge/oauth/storage/memory"
)

func newTestServer(t *testing.T) (*Server, *memory.Store) {
	t.Helper()
	store := memory.NewWithInterval(0)
	t.Cleanup(store.Stop)

	srv, err := New(store, store, store, &Config{}, slog.Default())
	testutil.AssertNoError(t, err)

	client := testutil.GenerateTestClient()
	testutil.AssertNoError(t, store.RegisterClient(context.Background(), client))

	return srv, store
}

func beginAuthorization(t *testing.T, srv *Server, challenge string) *storage.PendingGrant {
	t.Helper()
	req := &AuthorizationRequest{
		ResponseType: "code",
		ClientID:     "test-client-id",
		RedirectURI:  "https://example.com/callback",
		State:        "state-123",
		Scope:        "profile",
	}
	if challenge != "" {
		req.CodeChallenge = challenge
		req.CodeChallengeMethod = PKCEMethodS256
	}
	grant, err := srv.BeginAuthorization(context.Background(), req)
	testutil.AssertNoError(t, err)
	return grant
}

func assertConsentReason(t *testing.T, err error, reason string) {
	t.Helper()
	var consentErr *ConsentError
	if !errors.As(err, &consentErr) {
		t.Fatalf("expected *ConsentError, got %T: %v", err, err)
	}
	if consentErr.Reason != reason {
		t.Errorf("consent reason = %q, want %q", consentErr.Reason, reason)
	}
}

func TestBeginAuthorization(t *testing.T) {
	srv, _ := newTestServer(t)
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		grant := beginAuthorization(t, srv, "")
		testutil.AssertEqual(t, grant.ClientID, "test-client-id")
		testutil.AssertEqual(t, grant.State, "state-123")
		testutil.AssertTrue(t, len(grant.TempCode) >= 32, "temp code should carry at least 32 characters")
		testutil.AssertTrue(t, grant.ExpiresAt.After(time.Now()), "grant should not be expired")
	})

	t.Run("missing parameters are all reported", func(t *testing.T) {
		_, err := srv.BeginAuthorization(ctx, &AuthorizationRequest{ClientID: "test-client-id"})
		assertConsentReason(t, err, ReasonMissingParams)
		for _, name := range []string{"response_type", "redirect_uri", "state"} {
			if !strings.Contains(err.Error(), name) {
				t.Errorf("error %q should name %s", err, name)
			}
		}
	})

	t.Run("unsupported response type", func(t *testing.T) {
		_, err := srv.BeginAuthorization(ctx, &AuthorizationRequest{
			ResponseType: "token",
			ClientID:     "test-client-id",
			RedirectURI:  "https://example.com/callback",
			State:        "s",
		})
		assertConsentReason(t, err, ReasonUnsupportedResponseType)
	})

	t.Run("unsupported pkce method", func(t *testing.T) {
		_, err := srv.BeginAuthorization(ctx, &AuthorizationRequest{
			ResponseType:        "code",
			ClientID:            "test-client-id",
			RedirectURI:         "https://example.com/callback",
			State:               "s",
			CodeChallenge:       "challenge",
			CodeChallengeMethod: "plain",
		})
		assertConsentReason(t, err, ReasonUnsupportedPkceMethod)
	})

	t.Run("method defaults to S256 when challenge present", func(t *testing.T) {
		grant, err := srv.BeginAuthorization(ctx, &AuthorizationRequest{
			ResponseType:  "code",
			ClientID:      "test-client-id",
			RedirectURI:   "https://example.com/callback",
			State:         "s",
			CodeChallenge: "challenge-without-method",
		})
		testutil.AssertNoError(t, err)
		testutil.AssertEqual(t, grant.CodeChallengeMethod, PKCEMethodS256)
	})

	t.Run("unknown client", func(t *testing.T) {
		_, err := srv.BeginAuthorization(ctx, &AuthorizationRequest{
			ResponseType: "code",
			ClientID:     "ghost",
			RedirectURI:  "https://example.com/callback",
			State:        "s",
		})
		assertConsentReason(t, err, ReasonUnknownClient)
	})

	t.Run("unregistered redirect uri", func(t *testing.T) {
		_, err := srv.BeginAuthorization(ctx, &AuthorizationRequest{
			ResponseType: "code",
			ClientID:     "test-client-id",
			RedirectURI:  "https://evil.example.com/callback",
			State:        "s",
		})
		assertConsentReason(t, err, ReasonInvalidRedirect)
	})
}

func TestBeginAuthorizationRequirePKCE(t *testing.T) {
	store := memory.NewWithInterval(0)
	t.Cleanup(store.Stop)
	srv, err := New(store, store, store, &Config{RequirePKCE: true}, slog.Default())
	testutil.AssertNoError(t, err)
	testutil.AssertNoError(t, store.RegisterClient(context.Background(), testutil.GenerateTestClient()))

	_, err = srv.BeginAuthorization(context.Background(), &AuthorizationRequest{
		ResponseType: "code",
		ClientID:     "test-client-id",
		RedirectURI:  "https://example.com/callback",
		State:        "s",
	})
	assertConsentReason(t, err, ReasonMissingParams)
	testutil.AssertStringContains(t, err.Error(), "code_challenge")
}

func TestApproveGrant(t *testing.T) {
	ctx := context.Background()

	t.Run("success issues code bound to user", func(t *testing.T) {
		srv, _ := newTestServer(t)
		grant := beginAuthorization(t, srv, "")

		code, err := srv.ApproveGrant(ctx, grant.TempCode, grant.State, "user-1")
		testutil.AssertNoError(t, err)
		testutil.AssertEqual(t, code.UserID, "user-1")
		testutil.AssertEqual(t, code.ClientID, grant.ClientID)
		testutil.AssertEqual(t, code.RedirectURI, grant.RedirectURI)
		testutil.AssertNotEqual(t, code.Code, grant.TempCode)
	})

	t.Run("grant is consumed on approval", func(t *testing.T) {
		srv, _ := newTestServer(t)
		grant := beginAuthorization(t, srv, "")

		_, err := srv.ApproveGrant(ctx, grant.TempCode, grant.State, "user-1")
		testutil.AssertNoError(t, err)

		_, err = srv.ApproveGrant(ctx, grant.TempCode, grant.State, "user-1")
		assertConsentReason(t, err, ReasonGrantNotFound)
	})

	t.Run("missing form fields", func(t *testing.T) {
		srv, _ := newTestServer(t)
		_, err := srv.ApproveGrant(ctx, "", "", "user-1")
		assertConsentReason(t, err, ReasonMissingFormFields)
		testutil.AssertStringContains(t, err.Error(), "auth_code")
		testutil.AssertStringContains(t, err.Error(), "state")
	})

	t.Run("state mismatch leaves grant for retry", func(t *testing.T) {
		srv, _ := newTestServer(t)
		grant := beginAuthorization(t, srv, "")

		_, err := srv.ApproveGrant(ctx, grant.TempCode, "tampered-state", "user-1")
		assertConsentReason(t, err, ReasonCsrfMismatch)

		// Retry with the original state still succeeds
		_, err = srv.ApproveGrant(ctx, grant.TempCode, grant.State, "user-1")
		testutil.AssertNoError(t, err)
	})

	t.Run("expired grant is deleted", func(t *testing.T) {
		srv, store := newTestServer(t)
		grant := testutil.GenerateTestPendingGrant()
		grant.ExpiresAt = time.Now().Add(-time.Second)
		testutil.AssertNoError(t, store.SavePendingGrant(ctx, grant))

		_, err := srv.ApproveGrant(ctx, grant.TempCode, grant.State, "user-1")
		assertConsentReason(t, err, ReasonGrantExpired)

		_, err = srv.ApproveGrant(ctx, grant.TempCode, grant.State, "user-1")
		assertConsentReason(t, err, ReasonGrantNotFound)
	})

	t.Run("state mismatch wins over expiry and keeps the grant", func(t *testing.T) {
		srv, store := newTestServer(t)
		grant := testutil.GenerateTestPendingGrant()
		grant.ExpiresAt = time.Now().Add(-time.Second)
		testutil.AssertNoError(t, store.SavePendingGrant(ctx, grant))

		_, err := srv.ApproveGrant(ctx, grant.TempCode, "tampered-state", "user-1")
		assertConsentReason(t, err, ReasonCsrfMismatch)

		// The mismatch did not consume the grant
		got, err := store.GetPendingGrant(ctx, grant.TempCode)
		testutil.AssertNoError(t, err)
		testutil.AssertEqual(t, got.TempCode, grant.TempCode)
	})
}

func TestExchangeAuthorizationCode(t *testing.T) {
	ctx := context.Background()

	approve := func(t *testing.T, srv *Server, challenge string) *storage.AuthorizationCode {
		t.Helper()
		grant := beginAuthorization(t, srv, challenge)
		code, err := srv.ApproveGrant(ctx, grant.TempCode, grant.State, "user-1")
		testutil.AssertNoError(t, err)
		return code
	}

	t.Run("success", func(t *testing.T) {
		srv, _ := newTestServer(t)
		code := approve(t, srv, "")

		record, oauthErr := srv.ExchangeAuthorizationCode(ctx, code.Code, code.ClientID, code.RedirectURI, "", "")
		if oauthErr != nil {
			t.Fatalf("unexpected error: %v", oauthErr)
		}
		testutil.AssertEqual(t, record.UserID, "user-1")
		testutil.AssertEqual(t, record.Scope, "profile")
		testutil.AssertNotEqual(t, record.AccessToken, "")
		testutil.AssertNotEqual(t, record.RefreshToken, "")
		testutil.AssertNotEqual(t, record.AccessToken, record.RefreshToken)
	})

	t.Run("code is single use", func(t *testing.T) {
		srv, _ := newTestServer(t)
		code := approve(t, srv, "")

		_, oauthErr := srv.ExchangeAuthorizationCode(ctx, code.Code, code.ClientID, code.RedirectURI, "", "")
		if oauthErr != nil {
			t.Fatalf("unexpected error: %v", oauthErr)
		}

		_, oauthErr = srv.ExchangeAuthorizationCode(ctx, code.Code, code.ClientID, code.RedirectURI, "", "")
		if oauthErr == nil || oauthErr.Code != ErrorCodeInvalidGrant {
			t.Fatalf("expected invalid_grant on reuse, got %v", oauthErr)
		}
	})

	t.Run("expired code", func(t *testing.T) {
		srv, store := newTestServer(t)
		code := testutil.GenerateTestAuthorizationCode()
		code.ExpiresAt = time.Now().Add(-time.Second)
		testutil.AssertNoError(t, store.SaveAuthorizationCode(ctx, code))

		_, oauthErr := srv.ExchangeAuthorizationCode(ctx, code.Code, code.ClientID, code.RedirectURI, "", "")
		if oauthErr == nil || oauthErr.Code != ErrorCodeInvalidGrant {
			t.Fatalf("expected invalid_grant, got %v", oauthErr)
		}
		testutil.AssertStringContains(t, oauthErr.Description, "expired")
	})

	t.Run("client binding mismatch answers 400 invalid_client", func(t *testing.T) {
		srv, _ := newTestServer(t)
		code := approve(t, srv, "")

		_, oauthErr := srv.ExchangeAuthorizationCode(ctx, code.Code, "other-client", code.RedirectURI, "", "")
		if oauthErr == nil || oauthErr.Code != ErrorCodeInvalidClient {
			t.Fatalf("expected invalid_client, got %v", oauthErr)
		}
		testutil.AssertEqual(t, oauthErr.Status, http.StatusBadRequest)
	})

	t.Run("redirect uri mismatch", func(t *testing.T) {
		srv, _ := newTestServer(t)
		code := approve(t, srv, "")

		_, oauthErr := srv.ExchangeAuthorizationCode(ctx, code.Code, code.ClientID, "https://example.com/other", "", "")
		if oauthErr == nil || oauthErr.Code != ErrorCodeInvalidGrant {
			t.Fatalf("expected invalid_grant, got %v", oauthErr)
		}
	})

	t.Run("pkce verifier required and checked", func(t *testing.T) {
		srv, _ := newTestServer(t)
		challenge, verifier := testutil.GeneratePKCEPair()
		code := approve(t, srv, challenge)

		_, oauthErr := srv.ExchangeAuthorizationCode(ctx, code.Code, code.ClientID, code.RedirectURI, "", "")
		if oauthErr == nil || oauthErr.Code != ErrorCodeInvalidGrant {
			t.Fatalf("expected invalid_grant for missing verifier, got %v", oauthErr)
		}

		// Code burned by the failed attempt; run the flow again with the
		// right verifier
		code = approve(t, srv, challenge)
		record, oauthErr := srv.ExchangeAuthorizationCode(ctx, code.Code, code.ClientID, code.RedirectURI, verifier, "")
		if oauthErr != nil {
			t.Fatalf("unexpected error: %v", oauthErr)
		}
		testutil.AssertEqual(t, record.UserID, "user-1")
	})

	t.Run("relinking overwrites the user's record", func(t *testing.T) {
		srv, store := newTestServer(t)

		first := approve(t, srv, "")
		firstRecord, oauthErr := srv.ExchangeAuthorizationCode(ctx, first.Code, first.ClientID, first.RedirectURI, "", "")
		if oauthErr != nil {
			t.Fatalf("unexpected error: %v", oauthErr)
		}

		second := approve(t, srv, "")
		secondRecord, oauthErr := srv.ExchangeAuthorizationCode(ctx, second.Code, second.ClientID, second.RedirectURI, "", "")
		if oauthErr != nil {
			t.Fatalf("unexpected error: %v", oauthErr)
		}

		testutil.AssertNotEqual(t, firstRecord.AccessToken, secondRecord.AccessToken)
		if _, err := store.GetByAccessToken(ctx, firstRecord.AccessToken); !errors.Is(err, storage.ErrTokenNotFound) {
			t.Errorf("expected first access token to be invalidated, got %v", err)
		}
	})
}

func TestRefreshAccessToken(t *testing.T) {
	ctx := context.Background()

	issue := func(t *testing.T, srv *Server) *storage.TokenRecord {
		t.Helper()
		grant := beginAuthorization(t, srv, "")
		code, err := srv.ApproveGrant(ctx, grant.TempCode, grant.State, "user-1")
		testutil.AssertNoError(t, err)
		record, oauthErr := srv.ExchangeAuthorizationCode(ctx, code.Code, code.ClientID, code.RedirectURI, "", "")
		if oauthErr != nil {
			t.Fatalf("unexpected error: %v", oauthErr)
		}
		return record
	}

	t.Run("rotates access token and keeps refresh token", func(t *testing.T) {
		srv, _ := newTestServer(t)
		record := issue(t, srv)

		refreshed, oauthErr := srv.RefreshAccessToken(ctx, record.RefreshToken, record.ClientID, "")
		if oauthErr != nil {
			t.Fatalf("unexpected error: %v", oauthErr)
		}
		testutil.AssertNotEqual(t, refreshed.AccessToken, record.AccessToken)
		testutil.AssertEqual(t, refreshed.RefreshToken, record.RefreshToken)
		testutil.AssertEqual(t, refreshed.Scope, record.Scope)

		// The old access token is dead, the new one resolves
		_, _, ok := srv.VerifyAccessToken(ctx, record.AccessToken)
		testutil.AssertFalse(t, ok, "old access token should not verify")
		userID, scope, ok := srv.VerifyAccessToken(ctx, refreshed.AccessToken)
		testutil.AssertTrue(t, ok, "new access token should verify")
		testutil.AssertEqual(t, userID, "user-1")
		testutil.AssertEqual(t, scope, "profile")
	})

	t.Run("unknown refresh token", func(t *testing.T) {
		srv, _ := newTestServer(t)
		_, oauthErr := srv.RefreshAccessToken(ctx, "bogus", "test-client-id", "")
		if oauthErr == nil || oauthErr.Code != ErrorCodeInvalidGrant {
			t.Fatalf("expected invalid_grant, got %v", oauthErr)
		}
	})

	t.Run("refresh token bound to client", func(t *testing.T) {
		srv, _ := newTestServer(t)
		record := issue(t, srv)

		_, oauthErr := srv.RefreshAccessToken(ctx, record.RefreshToken, "other-client", "")
		if oauthErr == nil || oauthErr.Code != ErrorCodeInvalidGrant {
			t.Fatalf("expected invalid_grant for wrong client, got %v", oauthErr)
		}
	})

	t.Run("expired refresh token deletes the record", func(t *testing.T) {
		srv, store := newTestServer(t)
		record := testutil.GenerateTestTokenRecord()
		record.RefreshExpiresAt = time.Now().Add(-time.Second)
		testutil.AssertNoError(t, store.SaveTokenRecord(ctx, record))

		_, oauthErr := srv.RefreshAccessToken(ctx, record.RefreshToken, record.ClientID, "")
		if oauthErr == nil || oauthErr.Code != ErrorCodeInvalidGrant {
			t.Fatalf("expected invalid_grant, got %v", oauthErr)
		}

		if _, err := store.GetTokenRecord(ctx, record.UserID); !errors.Is(err, storage.ErrTokenNotFound) {
			t.Errorf("expected record deleted, got %v", err)
		}
	})

	t.Run("rotation when enabled", func(t *testing.T) {
		store := memory.NewWithInterval(0)
		t.Cleanup(store.Stop)
		srv, err := New(store, store, store, &Config{RotateRefreshTokens: true}, slog.Default())
		testutil.AssertNoError(t, err)
		testutil.AssertNoError(t, store.RegisterClient(ctx, testutil.GenerateTestClient()))

		record := issue(t, srv)
		refreshed, oauthErr := srv.RefreshAccessToken(ctx, record.RefreshToken, record.ClientID, "")
		if oauthErr != nil {
			t.Fatalf("unexpected error: %v", oauthErr)
		}
		testutil.AssertNotEqual(t, refreshed.RefreshToken, record.RefreshToken)
	})
}

func TestVerifyAccessToken(t *testing.T) {
	srv, store := newTestServer(t)
	ctx := context.Background()

	t.Run("empty token", func(t *testing.T) {
		_, _, ok := srv.VerifyAccessToken(ctx, "")
		testutil.AssertFalse(t, ok, "empty token should not verify")
	})

	t.Run("unknown token", func(t *testing.T) {
		_, _, ok := srv.VerifyAccessToken(ctx, "bogus")
		testutil.AssertFalse(t, ok, "unknown token should not verify")
	})

	t.Run("expired token within grace period still verifies", func(t *testing.T) {
		record := testutil.GenerateTestTokenRecord()
		record.UserID = "grace-user"
		record.ExpiresAt = time.Now().Add(-time.Second)
		testutil.AssertNoError(t, store.SaveTokenRecord(ctx, record))

		userID, _, ok := srv.VerifyAccessToken(ctx, record.AccessToken)
		testutil.AssertTrue(t, ok, "token inside the skew grace period should verify")
		testutil.AssertEqual(t, userID, "grace-user")
	})

	t.Run("expired token beyond grace period", func(t *testing.T) {
		record := testutil.GenerateTestTokenRecord()
		record.UserID = "expired-user"
		record.ExpiresAt = time.Now().Add(-time.Minute)
		testutil.AssertNoError(t, store.SaveTokenRecord(ctx, record))

		_, _, ok := srv.VerifyAccessToken(ctx, record.AccessToken)
		testutil.AssertFalse(t, ok, "token past the grace period should not verify")
	})
}
