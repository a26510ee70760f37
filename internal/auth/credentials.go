package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	sessionModel "github.com/lingobridge/backend/internal/model/session"
)

// DefaultCredentialTTL bounds how long an issued credential stays valid.
const DefaultCredentialTTL = 12 * time.Hour

var (
	ErrInvalidCredential = errors.New("credential invalid or expired")
	ErrRoleMismatch      = errors.New("credential role mismatch")
	ErrSessionMismatch   = errors.New("credential session mismatch")
)

// Claims bind a credential to exactly one (session, role) pair.
type Claims struct {
	SessionID string `json:"sid"`
	Role      string `json:"role"`
	Language  string `json:"lang,omitempty"`
	jwt.RegisteredClaims
}

// Config bundles what a CredentialService needs.
type Config struct {
	Secret string
	Issuer string
	TTL    time.Duration
	Clock  func() time.Time
}

// CredentialService issues and validates session-bound bearer credentials.
type CredentialService struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewCredentialService constructs the service; the signing secret is required.
func NewCredentialService(cfg Config) (*CredentialService, error) {
	if cfg.Secret == "" {
		return nil, errors.New("auth: secret must be provided")
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultCredentialTTL
	}

	now := time.Now
	if cfg.Clock != nil {
		now = cfg.Clock
	}

	return &CredentialService{
		secret: []byte(cfg.Secret),
		issuer: cfg.Issuer,
		ttl:    ttl,
		now:    now,
	}, nil
}

// Issue signs a credential for one role in one session.
func (s *CredentialService) Issue(sessionID string, role sessionModel.Role, language string) (string, error) {
	if sessionID == "" {
		return "", errors.New("auth: session id is required")
	}
	if !role.Valid() {
		return "", fmt.Errorf("auth: unknown role %q", role)
	}

	now := s.now()
	claims := &Claims{
		SessionID: sessionID,
		Role:      string(role),
		Language:  language,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sessionID + ":" + string(role),
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign credential: %w", err)
	}
	return signed, nil
}

// Validate parses a credential and checks it against the expected session.
// The caller still has to verify the session is active and the role unbound.
func (s *CredentialService) Validate(credential, sessionID string) (*Claims, error) {
	if credential == "" {
		return nil, ErrInvalidCredential
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)

	var claims Claims
	_, err := parser.ParseWithClaims(credential, &claims, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil {
		return nil, ErrInvalidCredential
	}

	if !sessionModel.Role(claims.Role).Valid() {
		return nil, ErrRoleMismatch
	}
	if sessionID != "" && claims.SessionID != sessionID {
		return nil, ErrSessionMismatch
	}

	return &claims, nil
}
