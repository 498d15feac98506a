// Package token creates and verifies the three signed token types used by
// the auth service: short-lived access tokens, long-lived refresh tokens,
// and time-boxed activation tokens. All tokens are HS256 JWTs, each type
// signed with its own secret so leaking one type never lets an attacker
// forge another. This package owns all expiry policy.
package token

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/edustack/edustack/internal/config"
)

// ActivationExpire is the fixed lifetime of an activation token. The window
// between registering and submitting the emailed code is deliberately short;
// a stale registration simply retries from scratch since no durable state
// exists until activation.
const ActivationExpire = 5 * time.Minute

// Sentinel errors returned by the Verify methods. Callers distinguish them
// only to produce user-facing messages; both mean "not authenticated".
var (
	// ErrExpired means the token's signature checked out but its expiry elapsed.
	ErrExpired = errors.New("token expired")

	// ErrInvalid means the token is malformed, tampered with, or signed
	// with the wrong secret.
	ErrInvalid = errors.New("token invalid")
)

// PendingRegistration is a registration that has not been activated yet. It
// is never persisted; it exists only inside the activation token claims
// between the register and activate calls.
type PendingRegistration struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// sessionClaims carries the user id inside access and refresh tokens.
type sessionClaims struct {
	jwt.RegisteredClaims
	UserID string `json:"id"`
}

// activationClaims carries the pending registration and the one-time code
// inside an activation token. The token itself is the only server-side
// record of the pending registration.
type activationClaims struct {
	jwt.RegisteredClaims
	User           PendingRegistration `json:"user"`
	ActivationCode string              `json:"activation_code"`
}

// Service signs and verifies all token types. Constructed once at startup
// from config and shared via dependency injection.
type Service struct {
	accessSecret     []byte
	refreshSecret    []byte
	activationSecret []byte
	accessExpire     time.Duration
	refreshExpire    time.Duration
}

// NewService creates a token service from the token config.
func NewService(cfg config.TokenConfig) *Service {
	return &Service{
		accessSecret:     []byte(cfg.AccessSecret),
		refreshSecret:    []byte(cfg.RefreshSecret),
		activationSecret: []byte(cfg.ActivationSecret),
		accessExpire:     cfg.AccessExpire,
		refreshExpire:    cfg.RefreshExpire,
	}
}

// AccessExpire returns the configured access token lifetime. Used by the
// transport layer as the access cookie MaxAge.
func (s *Service) AccessExpire() time.Duration { return s.accessExpire }

// RefreshExpire returns the configured refresh token lifetime. Used by the
// transport layer as the refresh cookie MaxAge.
func (s *Service) RefreshExpire() time.Duration { return s.refreshExpire }

// IssueActivationToken generates a random 4-digit activation code, embeds it
// together with the pending registration in a signed token, and returns both.
// The code travels to the user by email; the token travels back to the client
// so it can resubmit both on activation.
func (s *Service) IssueActivationToken(pending PendingRegistration) (token, code string, err error) {
	code, err = generateActivationCode()
	if err != nil {
		return "", "", fmt.Errorf("generating activation code: %w", err)
	}

	claims := activationClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ActivationExpire)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		User:           pending,
		ActivationCode: code,
	}

	token, err = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.activationSecret)
	if err != nil {
		return "", "", fmt.Errorf("signing activation token: %w", err)
	}

	return token, code, nil
}

// VerifyActivationToken validates an activation token and returns the
// embedded pending registration and activation code.
func (s *Service) VerifyActivationToken(token string) (PendingRegistration, string, error) {
	claims := &activationClaims{}
	if err := s.parse(token, claims, s.activationSecret); err != nil {
		return PendingRegistration{}, "", err
	}
	return claims.User, claims.ActivationCode, nil
}

// IssueAccessToken signs a short-lived access token carrying the user id.
func (s *Service) IssueAccessToken(userID string) (string, error) {
	return s.sign(userID, s.accessSecret, s.accessExpire)
}

// IssueRefreshToken signs a long-lived refresh token carrying the user id.
func (s *Service) IssueRefreshToken(userID string) (string, error) {
	return s.sign(userID, s.refreshSecret, s.refreshExpire)
}

// VerifyAccessToken validates an access token and returns the user id.
func (s *Service) VerifyAccessToken(token string) (string, error) {
	return s.verify(token, s.accessSecret)
}

// VerifyRefreshToken validates a refresh token and returns the user id.
func (s *Service) VerifyRefreshToken(token string) (string, error) {
	return s.verify(token, s.refreshSecret)
}

// sign creates an HS256 token carrying the user id with the given expiry.
func (s *Service) sign(userID string, secret []byte, validity time.Duration) (string, error) {
	claims := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(validity)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		UserID: userID,
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return token, nil
}

// verify parses a session token and extracts the user id.
func (s *Service) verify(token string, secret []byte) (string, error) {
	claims := &sessionClaims{}
	if err := s.parse(token, claims, secret); err != nil {
		return "", err
	}
	if claims.UserID == "" {
		return "", ErrInvalid
	}
	return claims.UserID, nil
}

// parse validates signature and expiry, mapping jwt errors onto the two
// sentinel errors callers care about.
func (s *Service) parse(token string, claims jwt.Claims, secret []byte) error {
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ErrExpired
		}
		return ErrInvalid
	}
	if !parsed.Valid {
		return ErrInvalid
	}
	return nil
}

// generateActivationCode draws a uniform 4-digit decimal string from
// [1000, 9999] using crypto/rand.
func generateActivationCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(9000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d", n.Int64()+1000), nil
}
