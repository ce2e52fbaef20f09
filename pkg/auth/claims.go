package auth

import (
	"github.com/golang-jwt/jwt/v5"

	"github.com/dropone-app/dropone-backend/pkg/enums"
)

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	Email string
	Role  enums.AccountRole
	JTI   string
}

// AccessTokenClaims represents the typed JWT issued by the storefront identity service.
// The subject is the seller's email address.
type AccessTokenClaims struct {
	Email string            `json:"email"`
	Role  enums.AccountRole `json:"role"`
	jwt.RegisteredClaims
}
