// Package auth implements the owner's admin session: a one-off token exchanged
// for a signed cookie.
package auth

import (
	"crypto/rand"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const (
	// CookieName holds the signed admin session.
	CookieName = "showcase_admin"

	subject = "showcase-admin"
	// bcrypt ignores input past 72 bytes
	maxTokenLen = 72
)

var ErrInvalidSession = errors.New("invalid admin session")

type Options struct {
	Token  string        // admin token; empty => a random one is generated
	Secret string        // HMAC key; empty => random per process
	TTL    time.Duration // session lifetime
	Secure bool          // mark the cookie Secure
}

// Sessions checks admin tokens and issues session cookies.
type Sessions struct {
	tokenHash []byte
	secret    []byte
	ttl       time.Duration
	secure    bool
	now       func() time.Time
}

// New returns Sessions and the admin token in effect, which differs from
// opts.Token only when one had to be generated.
func New(opts Options) (*Sessions, string, error) {
	token := opts.Token
	if token == "" {
		token = uuid.NewString()
	}
	if len(token) > maxTokenLen {
		return nil, "", fmt.Errorf("admin token must be at most %d bytes", maxTokenLen)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", fmt.Errorf("failed to hash admin token: %w", err)
	}

	secret := []byte(opts.Secret)
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, "", fmt.Errorf("failed to generate session secret: %w", err)
		}
	}

	ttl := opts.TTL
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}

	return &Sessions{
		tokenHash: hash,
		secret:    secret,
		ttl:       ttl,
		secure:    opts.Secure,
		now:       time.Now,
	}, token, nil
}

// CheckToken reports whether token is the admin token.
func (s *Sessions) CheckToken(token string) bool {
	if token == "" || len(token) > maxTokenLen {
		return false
	}
	return bcrypt.CompareHashAndPassword(s.tokenHash, []byte(token)) == nil
}

// Issue signs a new session.
func (s *Sessions) Issue() (string, time.Time, error) {
	now := s.now()
	exp := now.Add(s.ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   subject,
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign session: %w", err)
	}
	return signed, exp, nil
}

// Verify checks the signature, expiry and subject of a session.
func (s *Sessions) Verify(tokenString string) error {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now), jwt.WithExpirationRequired())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}
	if !token.Valid || claims.Subject != subject {
		return ErrInvalidSession
	}
	return nil
}

// IsAdmin reports whether r carries a valid session cookie.
func (s *Sessions) IsAdmin(r *http.Request) bool {
	c, err := r.Cookie(CookieName)
	if err != nil {
		return false
	}
	return s.Verify(c.Value) == nil
}

// Cookie wraps a signed session.
func (s *Sessions) Cookie(value string, expires time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    value,
		Path:     "/",
		Expires:  expires,
		MaxAge:   int(expires.Sub(s.now()).Seconds()),
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// ClearCookie removes the session from the browser.
func (s *Sessions) ClearCookie() *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	}
}
