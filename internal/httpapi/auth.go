package httpapi

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"salesdesk/internal/domain"
)

// TokenIssuer is the auth collaborator that trades credentials for a signed
// token. The backend client implements it.
type TokenIssuer interface {
	Login(ctx context.Context, username string, password string) (string, error)
}

// AuthManager verifies tokens minted by the auth collaborator and holds the
// hashed manager PIN. It never issues tokens itself.
type AuthManager struct {
	secret     []byte
	managerPIN string
	issuer     TokenIssuer
}

type salesdeskClaims struct {
	jwtlib.RegisteredClaims
	Role     string `json:"role"`
	UserID   int64  `json:"user_id,omitempty"`
	Username string `json:"username,omitempty"`
}

func NewAuthManager(secret string, managerPIN string, issuer TokenIssuer) *AuthManager {
	if secret == "" {
		secret = "dev-change-me"
	}
	// An unset PIN stays empty, which never validates.
	managerPIN = strings.TrimSpace(managerPIN)
	if managerPIN != "" {
		hashedPIN, err := hashPassword(managerPIN)
		if err != nil {
			managerPIN = ""
		} else {
			managerPIN = hashedPIN
		}
	}

	return &AuthManager{
		secret:     []byte(secret),
		managerPIN: managerPIN,
		issuer:     issuer,
	}
}

var errInvalidCredentials = errors.New("invalid credentials")

// Login forwards the credentials to the auth collaborator and checks that
// the token it returns is one this gateway accepts.
func (a *AuthManager) Login(ctx context.Context, req domain.LoginRequest) (domain.LoginResponse, error) {
	if a.issuer == nil {
		return domain.LoginResponse{}, errors.New("login is not configured")
	}

	token, err := a.issuer.Login(ctx, strings.TrimSpace(req.Username), req.Password)
	if err != nil {
		var remote *domain.RemoteError
		if errors.As(err, &remote) && remote.Status >= 400 && remote.Status < 500 {
			return domain.LoginResponse{}, errInvalidCredentials
		}
		return domain.LoginResponse{}, err
	}

	actor, expiresAt, err := a.parse(token)
	if err != nil {
		return domain.LoginResponse{}, fmt.Errorf("auth service token rejected: %w", err)
	}

	resp := domain.LoginResponse{
		AccessToken: token,
		Role:        actor.Role,
		UserID:      actor.ID,
	}
	if !expiresAt.IsZero() {
		resp.ExpiresAt = expiresAt.UTC().Format(time.RFC3339)
	}
	return resp, nil
}

func (a *AuthManager) ParseToken(tokenStr string) (domain.Actor, error) {
	actor, _, err := a.parse(tokenStr)
	return actor, err
}

func (a *AuthManager) parse(tokenStr string) (domain.Actor, time.Time, error) {
	claims := &salesdeskClaims{}
	token, err := jwtlib.ParseWithClaims(tokenStr, claims, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwtlib.WithValidMethods([]string{"HS256"}))
	if err != nil || !token.Valid {
		return domain.Actor{}, time.Time{}, errors.New("invalid or expired token")
	}

	id := claims.UserID
	sub, _ := claims.GetSubject()
	if parsed, err := strconv.ParseInt(strings.TrimSpace(sub), 10, 64); err == nil && parsed > 0 {
		id = parsed
	}
	if id <= 0 {
		return domain.Actor{}, time.Time{}, errors.New("invalid token subject")
	}

	role := domain.Role(strings.ToLower(strings.TrimSpace(claims.Role)))
	if !role.Valid() {
		return domain.Actor{}, time.Time{}, errors.New("invalid token role")
	}

	username := claims.Username
	if username == "" {
		username = sub
	}

	var expiresAt time.Time
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		expiresAt = exp.Time
	}

	return domain.Actor{ID: id, Username: username, Role: role, Token: tokenStr}, expiresAt, nil
}

func (a *AuthManager) ValidateManagerPIN(pin string) bool {
	input := strings.TrimSpace(pin)
	if input == "" || !isPasswordHash(a.managerPIN) {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(a.managerPIN), []byte(input)) == nil
}

func hashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

func isPasswordHash(value string) bool {
	return strings.HasPrefix(value, "$2a$") || strings.HasPrefix(value, "$2b$") || strings.HasPrefix(value, "$2y$")
}
