package service

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	ScopeAdmin          = "admin"
	DefaultTokenTTL     = time.Hour
	tokenIssuer         = "sitecalm"
	subjectTypeOperator = "operator"
)

var ErrInvalidToken = errors.New("invalid or expired token")

// TokenService mints and checks the bearer tokens that gate the admin API.
type TokenService struct {
	secret    []byte
	algorithm string
	now       func() time.Time
}

func NewTokenService(secret, algorithm string) *TokenService {
	return &TokenService{
		secret:    []byte(secret),
		algorithm: algorithm,
		now:       time.Now,
	}
}

// Issue signs a token for subject carrying scopes, valid for ttl.
func (s *TokenService) Issue(subject string, scopes []string, ttl time.Duration) (string, time.Time, error) {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	now := s.now()
	expiresAt := now.Add(ttl)

	claims := TokenClaims{
		SubjectType: subjectTypeOperator,
		Scopes:      scopes,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    tokenIssuer,
		},
	}

	token := jwt.NewWithClaims(s.signingMethod(), claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// Validate parses tokenString and checks signature, algorithm, expiry and issuer.
func (s *TokenService) Validate(tokenString string) (*TokenClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &TokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method.Alg() != s.signingMethod().Alg() {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	},
		jwt.WithIssuer(tokenIssuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*TokenClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (s *TokenService) signingMethod() jwt.SigningMethod {
	switch s.algorithm {
	case "HS384":
		return jwt.SigningMethodHS384
	case "HS512":
		return jwt.SigningMethodHS512
	default:
		return jwt.SigningMethodHS256
	}
}

// TokenClaims represents JWT claims
type TokenClaims struct {
	SubjectType string   `json:"sub_type"`
	Scopes      []string `json:"scopes"`
	jwt.RegisteredClaims
}

func (c *TokenClaims) HasScope(scope string) bool {
	return slices.Contains(c.Scopes, scope)
}
