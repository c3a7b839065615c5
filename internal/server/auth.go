package server

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// APIKeyHeader carries a plain API key checked against the bcrypt hashes.
const APIKeyHeader = "X-API-Key"

var errUnauthorized = errors.New("unauthorized")

// Authenticator accepts HS256 bearer tokens signed with a shared secret or
// API keys matching one of a set of bcrypt hashes.
type Authenticator struct {
	secret []byte
	hashes [][]byte
}

// NewAuthenticator returns nil when neither a secret nor hashes are given,
// which leaves the API open.
func NewAuthenticator(secret string, apiKeyHashes []string) *Authenticator {
	if secret == "" && len(apiKeyHashes) == 0 {
		return nil
	}
	a := &Authenticator{secret: []byte(secret)}
	for _, h := range apiKeyHashes {
		a.hashes = append(a.hashes, []byte(h))
	}
	return a
}

// Enabled reports whether requests are checked.
func (a *Authenticator) Enabled() bool {
	return a != nil
}

// IssueToken signs a token for subject valid for ttl.
func (a *Authenticator) IssueToken(subject string, ttl time.Duration) (string, error) {
	if len(a.secret) == 0 {
		return "", errors.New("no signing secret configured")
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// ValidateToken verifies a token and returns its subject.
func (a *Authenticator) ValidateToken(token string) (string, error) {
	if len(a.secret) == 0 {
		return "", fmt.Errorf("%w: bearer tokens are not accepted", errUnauthorized)
	}
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return "", fmt.Errorf("%w: %v", errUnauthorized, err)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: token has no subject", errUnauthorized)
	}
	return claims.Subject, nil
}

// CheckAPIKey reports whether key matches a configured hash.
func (a *Authenticator) CheckAPIKey(key string) bool {
	for _, h := range a.hashes {
		if bcrypt.CompareHashAndPassword(h, []byte(key)) == nil {
			return true
		}
	}
	return false
}

// HashAPIKey hashes a key for the server.api_key_hashes setting.
func HashAPIKey(key string) (string, error) {
	if key == "" {
		return "", errors.New("api key must not be empty")
	}
	if len(key) > 72 {
		return "", errors.New("api key exceeds maximum length of 72 bytes")
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// authenticate checks the request and returns the caller identity.
func (a *Authenticator) authenticate(r *http.Request) (string, error) {
	if key := r.Header.Get(APIKeyHeader); key != "" {
		if a.CheckAPIKey(key) {
			return "api-key", nil
		}
		return "", fmt.Errorf("%w: invalid api key", errUnauthorized)
	}

	token := r.URL.Query().Get("token")
	if header := r.Header.Get("Authorization"); header != "" {
		scheme, value, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || value == "" {
			return "", fmt.Errorf("%w: invalid authorization format", errUnauthorized)
		}
		token = value
	}
	if token == "" {
		return "", fmt.Errorf("%w: authorization required", errUnauthorized)
	}
	return a.ValidateToken(token)
}

// Middleware rejects unauthenticated requests with 401. Browsers cannot set
// headers on websocket upgrades, so a token query parameter is accepted too.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := a.authenticate(r); err != nil {
			w.Header().Set("WWW-Authenticate", `Bearer realm="transmute"`)
			writeError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", err.Error())
			return
		}
		next.ServeHTTP(w, r)
	})
}
