package auth

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token scopes. A token minted for one subsystem is rejected by the other.
const (
	ScopeDocuments = "documents"
	ScopeRewards   = "rewards"
)

type Claims struct {
	jwt.RegisteredClaims
	Role   string `json:"role"`
	Tenant string `json:"tenant,omitempty"`
	Scope  string `json:"scope"`
}

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("expired token")
)

// Subject is what a validated token says about its bearer.
type Subject struct {
	UserID    string
	Role      string
	Tenant    string
	Scope     string
	JTI       string
	ExpiresAt time.Time
}

func IssueToken(secret []byte, subject Subject) (string, error) {
	if subject.UserID == "" || subject.JTI == "" || subject.ExpiresAt.IsZero() {
		return "", fmt.Errorf("issue token: %w", ErrInvalidToken)
	}
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject.UserID,
			ID:        subject.JTI,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(subject.ExpiresAt),
		},
		Role:   subject.Role,
		Tenant: subject.Tenant,
		Scope:  subject.Scope,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func ParseToken(secret []byte, token string) (Subject, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Subject{}, ErrExpiredToken
		}
		return Subject{}, ErrInvalidToken
	}
	if !parsed.Valid || claims.Subject == "" || claims.ID == "" {
		return Subject{}, ErrInvalidToken
	}
	return Subject{
		UserID:    claims.Subject,
		Role:      claims.Role,
		Tenant:    claims.Tenant,
		Scope:     claims.Scope,
		JTI:       claims.ID,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

func HashToken(value string) string {
	sum := sha256.Sum256([]byte(value))
	return fmt.Sprintf("%x", sum)
}
