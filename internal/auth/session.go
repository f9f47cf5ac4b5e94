package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const bearerPrefix = "Bearer "

var (
	// ErrUnauthenticated indicates that no usable session credential is present.
	ErrUnauthenticated = errors.New("auth: unauthenticated")
	// ErrMissingSessionToken indicates an empty credential.
	ErrMissingSessionToken = errors.New("session: token required")
	// ErrExpiredSessionToken indicates a JWT credential whose exp claim has passed.
	ErrExpiredSessionToken = errors.New("session: token expired")
)

// Session carries the externally issued bearer credential for Deck Service calls.
// The zero value is an absent session.
type Session struct {
	token string
}

// NewSession wraps a raw token. A leading "Bearer " prefix is stripped.
func NewSession(rawToken string) Session {
	token := strings.TrimSpace(rawToken)
	scheme := strings.TrimSpace(bearerPrefix)
	if fields := strings.Fields(token); len(fields) > 0 && strings.EqualFold(fields[0], scheme) {
		token = strings.TrimSpace(token[len(fields[0]):])
	}
	return Session{token: token}
}

// SessionFromAuthorizationHeader parses an Authorization header value.
func SessionFromAuthorizationHeader(header string) (Session, error) {
	trimmed := strings.TrimSpace(header)
	if len(trimmed) < len(bearerPrefix) || !strings.EqualFold(trimmed[:len(bearerPrefix)], bearerPrefix) {
		return Session{}, fmt.Errorf("%w: %w", ErrUnauthenticated, ErrMissingSessionToken)
	}
	session := NewSession(trimmed)
	if !session.Present() {
		return Session{}, fmt.Errorf("%w: %w", ErrUnauthenticated, ErrMissingSessionToken)
	}
	return session, nil
}

// Token returns the raw credential.
func (s Session) Token() string {
	return s.token
}

// Present reports whether a credential is attached.
func (s Session) Present() bool {
	return s.token != ""
}

// AuthorizationHeader renders the credential as an Authorization header value.
func (s Session) AuthorizationHeader() string {
	return bearerPrefix + s.token
}

// Fingerprint returns a stable digest of the credential, safe for logs and keys.
func (s Session) Fingerprint() string {
	if !s.Present() {
		return ""
	}
	digest := sha256.Sum256([]byte(s.token))
	return hex.EncodeToString(digest[:16])
}

// AccountKey scopes local state such as cached decks, view ownership and event
// fan-out. Claims are never verified locally, so the key derives from the
// credential itself rather than from any subject it asserts.
func (s Session) AccountKey() string {
	return s.Fingerprint()
}

// SessionClaims exposes what the client can learn from an unverified credential.
type SessionClaims struct {
	Subject   string
	ExpiresAt time.Time
	Opaque    bool
}

// SessionValidatorConfig configures local session checks.
type SessionValidatorConfig struct {
	Clock  func() time.Time
	Leeway time.Duration
}

// SessionValidator performs client-side precondition checks on a session.
// Signatures are not verified: the Deck Service owns that decision. The
// validator only rejects absent credentials and JWTs that have visibly expired,
// so obviously dead sessions fail before any network call.
type SessionValidator struct {
	clock  func() time.Time
	leeway time.Duration
	parser *jwt.Parser
}

// NewSessionValidator constructs a validator with the provided configuration.
func NewSessionValidator(cfg SessionValidatorConfig) *SessionValidator {
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	leeway := cfg.Leeway
	if leeway < 0 {
		leeway = 0
	}
	return &SessionValidator{
		clock:  clock,
		leeway: leeway,
		parser: jwt.NewParser(),
	}
}

// Validate returns the unverified claims of an active session. Credentials that
// are not JWTs are treated as opaque and accepted.
func (v *SessionValidator) Validate(session Session) (SessionClaims, error) {
	if !session.Present() {
		return SessionClaims{}, fmt.Errorf("%w: %w", ErrUnauthenticated, ErrMissingSessionToken)
	}

	claims := &jwt.RegisteredClaims{}
	if _, _, err := v.parser.ParseUnverified(session.Token(), claims); err != nil {
		return SessionClaims{Opaque: true}, nil
	}

	result := SessionClaims{Subject: claims.Subject}
	if claims.ExpiresAt != nil {
		result.ExpiresAt = claims.ExpiresAt.Time.UTC()
		if !v.clock().Before(result.ExpiresAt.Add(v.leeway)) {
			return SessionClaims{}, fmt.Errorf("%w: %w", ErrUnauthenticated, ErrExpiredSessionToken)
		}
	}
	return result, nil
}
