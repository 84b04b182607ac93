// Package auth turns bearer tokens issued by the identity layer into ledger actors.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/storecredit/pkg/ledger"
	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken reports a token that cannot identify an actor.
var ErrInvalidToken = errors.New("invalid token")

type tokenClaims struct {
	jwt.RegisteredClaims
	Role    string `json:"role"`
	StoreID string `json:"store_id"`
}

// Validator checks HS256 tokens against a shared key and issuer.
type Validator struct {
	signingKey []byte
	issuer     string
	now        func() time.Time
}

// NewValidator builds a Validator. Both key and issuer are required.
func NewValidator(signingKey string, issuer string) (*Validator, error) {
	if len(signingKey) == 0 {
		return nil, fmt.Errorf("auth: signing key is required")
	}
	if strings.TrimSpace(issuer) == "" {
		return nil, fmt.Errorf("auth: issuer is required")
	}
	return &Validator{signingKey: []byte(signingKey), issuer: issuer, now: time.Now}, nil
}

// ParseActor validates token and returns the actor it names.
func (validator *Validator) ParseActor(token string) (ledger.Actor, error) {
	claims := &tokenClaims{}
	parsed, err := jwt.ParseWithClaims(strings.TrimSpace(token), claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return validator.signingKey, nil
	},
		jwt.WithIssuer(validator.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(validator.now),
	)
	if err != nil {
		return ledger.Actor{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !parsed.Valid {
		return ledger.Actor{}, fmt.Errorf("%w: invalid token claims", ErrInvalidToken)
	}
	actor, err := ledger.NewActor(claims.Subject, claims.Role, claims.StoreID)
	if err != nil {
		return ledger.Actor{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	return actor, nil
}

// IssueToken signs a token for actor valid for ttl. Used by tooling and tests.
func (validator *Validator) IssueToken(actor ledger.Actor, ttl time.Duration) (string, error) {
	now := validator.now()
	claims := tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.ID.String(),
			Issuer:    validator.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Role:    actor.Role,
		StoreID: actor.StoreID.String(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(validator.signingKey)
	if err != nil {
		return "", fmt.Errorf("IssueToken: %w", err)
	}
	return signed, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
