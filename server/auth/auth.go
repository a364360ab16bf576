// Package auth issues and verifies the bearer tokens editor plugins send to the local API.
package auth

import (
	"crypto/sha256"
	"io"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
	"golang.org/x/crypto/hkdf"
)

const (
	// Issuer is the issuer of every access token.
	Issuer = "journalrecap"
	// AccessTokenAudienceName is the audience of API access tokens.
	AccessTokenAudienceName = "journalrecap.api"
	// KeyID is the key id stored in the token header.
	KeyID = "v1"

	signingKeyInfo = "journalrecap access token v1"
)

var (
	// ErrNoSecret is returned when the instance secret is empty.
	ErrNoSecret = errors.New("instance secret is not configured")
	// ErrMissingToken is returned when the request carries no bearer token.
	ErrMissingToken = errors.New("missing bearer token")
)

// ClaimsMessage is the payload of an access token. Name labels the client it was issued to.
type ClaimsMessage struct {
	Name string `json:"name"`
	jwt.RegisteredClaims
}

// Authenticator signs and checks access tokens with a key derived from the instance secret.
type Authenticator struct {
	key []byte
}

// NewAuthenticator derives the signing key from secret.
func NewAuthenticator(secret string) (*Authenticator, error) {
	if secret == "" {
		return nil, ErrNoSecret
	}
	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(signingKeyInfo)), key); err != nil {
		return nil, errors.Wrap(err, "failed to derive signing key")
	}
	return &Authenticator{key: key}, nil
}

// GenerateAccessToken issues a token for name. A zero expiresAt issues a token that never expires.
func (a *Authenticator) GenerateAccessToken(name string, now, expiresAt time.Time) (string, error) {
	claims := &ClaimsMessage{
		Name: name,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   Issuer,
			Audience: jwt.ClaimStrings{AccessTokenAudienceName},
			IssuedAt: jwt.NewNumericDate(now),
			Subject:  name,
		},
	}
	if !expiresAt.IsZero() {
		claims.ExpiresAt = jwt.NewNumericDate(expiresAt)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	token.Header["kid"] = KeyID
	signed, err := token.SignedString(a.key)
	if err != nil {
		return "", errors.Wrap(err, "failed to sign access token")
	}
	return signed, nil
}

// ParseAccessToken verifies signature, issuer, audience and expiry.
func (a *Authenticator) ParseAccessToken(tokenString string) (*ClaimsMessage, error) {
	if tokenString == "" {
		return nil, ErrMissingToken
	}
	claims := &ClaimsMessage{}
	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (any, error) {
			if kid, ok := t.Header["kid"].(string); !ok || kid != KeyID {
				return nil, errors.Errorf("unexpected kid: %v", t.Header["kid"])
			}
			return a.key, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithAudience(AccessTokenAudienceName),
	)
	if err != nil {
		return nil, errors.Wrap(err, "invalid access token")
	}
	if !token.Valid {
		return nil, errors.New("invalid access token")
	}
	return claims, nil
}

// Authenticate checks an Authorization header value of the form "Bearer <token>".
func (a *Authenticator) Authenticate(authHeader string) (*ClaimsMessage, error) {
	return a.ParseAccessToken(ExtractBearerToken(authHeader))
}

// ExtractBearerToken returns the token of a "Bearer <token>" header, or "".
func ExtractBearerToken(authHeader string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(authHeader), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
