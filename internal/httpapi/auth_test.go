package httpapi

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"salesdesk/internal/domain"
)

type stubIssuer struct {
	token string
	err   error
}

func (s stubIssuer) Login(_ context.Context, _ string, _ string) (string, error) {
	return s.token, s.err
}

func TestNewAuthManager_HashesManagerPIN(t *testing.T) {
	auth := NewAuthManager(testSecret, "123456", nil)

	if !isPasswordHash(auth.managerPIN) {
		t.Fatalf("expected manager PIN to be stored as a bcrypt hash")
	}
	if !auth.ValidateManagerPIN("123456") {
		t.Fatalf("expected PIN to validate")
	}
	if auth.ValidateManagerPIN("654321") {
		t.Fatalf("expected wrong PIN to fail")
	}
}

func TestNewAuthManager_EmptyPINNeverValidates(t *testing.T) {
	auth := NewAuthManager(testSecret, "  ", nil)

	for _, candidate := range []string{"", "disabled", "000000"} {
		if auth.ValidateManagerPIN(candidate) {
			t.Fatalf("PIN %q must not validate when no manager PIN is configured", candidate)
		}
	}
}

func TestParseToken_NumericSubject(t *testing.T) {
	auth := NewAuthManager(testSecret, testPIN, nil)
	token := signToken(t, testSecret, "42", "Dealer", time.Hour)

	actor, err := auth.ParseToken(token)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if actor.ID != 42 || actor.Role != domain.RoleDealer || actor.Token != token {
		t.Fatalf("unexpected actor %+v", actor)
	}
}

func TestParseToken_FallsBackToUserIDClaim(t *testing.T) {
	auth := NewAuthManager(testSecret, testPIN, nil)
	claims := salesdeskClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   "dealer7",
			ExpiresAt: jwtlib.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Role:   "dealer",
		UserID: 7,
	}
	token, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	actor, err := auth.ParseToken(token)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if actor.ID != 7 || actor.Username != "dealer7" {
		t.Fatalf("unexpected actor %+v", actor)
	}
}

func TestParseToken_Rejections(t *testing.T) {
	auth := NewAuthManager(testSecret, testPIN, nil)

	noneToken, err := jwtlib.NewWithClaims(jwtlib.SigningMethodNone, salesdeskClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{Subject: "1"},
		Role:             "admin",
	}).SignedString(jwtlib.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none token: %v", err)
	}

	cases := map[string]string{
		"wrong secret": signToken(t, "another-secret-key-that-is-long-enough", "1", "admin", time.Hour),
		"expired":      signToken(t, testSecret, "1", "admin", -time.Minute),
		"bad role":     signToken(t, testSecret, "1", "cashier", time.Hour),
		"no subject":   signToken(t, testSecret, "", "admin", time.Hour),
		"alg none":     noneToken,
		"garbage":      "not-a-token",
	}
	for name, token := range cases {
		if _, err := auth.ParseToken(token); err == nil {
			t.Fatalf("%s: expected token to be rejected", name)
		}
	}
}

func TestLogin_MapsBackendRejectionToInvalidCredentials(t *testing.T) {
	auth := NewAuthManager(testSecret, testPIN, stubIssuer{
		err: &domain.RemoteError{Op: "auth.login", Status: http.StatusUnauthorized, Detail: "No active account"},
	})

	_, err := auth.Login(context.Background(), domain.LoginRequest{Username: "x", Password: "y"})
	if !errors.Is(err, errInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
}

func TestLogin_KeepsTransportFailures(t *testing.T) {
	auth := NewAuthManager(testSecret, testPIN, stubIssuer{
		err: &domain.RemoteError{Op: "auth.login", Err: errors.New("connection refused")},
	})

	_, err := auth.Login(context.Background(), domain.LoginRequest{Username: "x", Password: "y"})
	if errors.Is(err, errInvalidCredentials) || !domain.IsRemoteError(err) {
		t.Fatalf("expected remote error, got %v", err)
	}
}

func TestLogin_RejectsUnverifiableToken(t *testing.T) {
	auth := NewAuthManager(testSecret, testPIN, stubIssuer{token: "garbage"})

	_, err := auth.Login(context.Background(), domain.LoginRequest{Username: "x", Password: "y"})
	if err == nil {
		t.Fatalf("expected error for unverifiable token")
	}
}

func TestLogin_ReturnsActorDetails(t *testing.T) {
	token := signToken(t, testSecret, "3", "dealer", time.Hour)
	auth := NewAuthManager(testSecret, testPIN, stubIssuer{token: token})

	resp, err := auth.Login(context.Background(), domain.LoginRequest{Username: "dealer1", Password: "pass"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if resp.AccessToken != token || resp.UserID != 3 || resp.Role != domain.RoleDealer {
		t.Fatalf("unexpected response %+v", resp)
	}
	if _, err := time.Parse(time.RFC3339, resp.ExpiresAt); err != nil {
		t.Fatalf("expected RFC3339 expiry, got %q", resp.ExpiresAt)
	}
}
