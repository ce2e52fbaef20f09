package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/dropone-app/dropone-backend/pkg/config"
	"github.com/dropone-app/dropone-backend/pkg/enums"
)

var (
	ErrSecretMissing = errors.New("jwt secret is required")
	ErrEmailMissing  = errors.New("token has no email")
)

// Tokens are HMAC-signed by the storefront identity service and this API
// shares the secret. No other algorithm is accepted.
var signingMethod = jwt.SigningMethodHS256

// MintAccessToken signs a token for payload valid from now for the
// configured lifetime. The dashboard and tests use it.
func MintAccessToken(cfg config.JWTConfig, now time.Time, payload AccessTokenPayload) (string, error) {
	switch {
	case cfg.Secret == "":
		return "", ErrSecretMissing
	case cfg.Issuer == "":
		return "", errors.New("jwt issuer is required")
	case cfg.ExpirationMinutes <= 0:
		return "", errors.New("jwt expiration minutes must be positive")
	}

	email := NormalizeEmail(payload.Email)
	if err := checkIdentity(email, payload.Role); err != nil {
		return "", err
	}

	id := strings.TrimSpace(payload.JTI)
	if id == "" {
		id = uuid.NewString()
	}
	lifetime := time.Duration(cfg.ExpirationMinutes) * time.Minute

	signed, err := jwt.NewWithClaims(signingMethod, AccessTokenClaims{
		Email: email,
		Role:  payload.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        id,
			Subject:   email,
			Issuer:    cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(lifetime)),
		},
	}).SignedString([]byte(cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, nil
}

// ParseAccessToken verifies signature, issuer and expiry, then returns the
// seller or admin identity carried by the token. Tokens that only set the
// subject are accepted; the subject is then taken as the email.
func ParseAccessToken(cfg config.JWTConfig, raw string) (*AccessTokenClaims, error) {
	if cfg.Secret == "" {
		return nil, ErrSecretMissing
	}

	claims := &AccessTokenClaims{}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{signingMethod.Alg()}),
		jwt.WithIssuer(cfg.Issuer),
		jwt.WithExpirationRequired(),
	)
	if _, err := parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return []byte(cfg.Secret), nil
	}); err != nil {
		return nil, err
	}

	if claims.Email == "" {
		claims.Email = claims.Subject
	}
	claims.Email = NormalizeEmail(claims.Email)
	if err := checkIdentity(claims.Email, claims.Role); err != nil {
		return nil, err
	}
	return claims, nil
}

func checkIdentity(email string, role enums.AccountRole) error {
	if email == "" {
		return ErrEmailMissing
	}
	if !role.IsValid() {
		return fmt.Errorf("invalid account role %q", role)
	}
	return nil
}

// NormalizeEmail lower-cases and trims an address. Seller balances are keyed
// by the result.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
