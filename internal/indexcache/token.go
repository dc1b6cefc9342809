package indexcache

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// accessClaims scope a grant to exactly one (tenant, user, api) triple.
type accessClaims struct {
	GrantID  string `json:"grant_id"`
	TenantID string `json:"tenant_id"`
	UserID   string `json:"user_id"`
	APIName  string `json:"api_name"`
	jwt.RegisteredClaims
}

// TokenIssuer mints and validates signed access tokens for knowledge
// base grants.
type TokenIssuer struct {
	secret []byte
}

func NewTokenIssuer(secret string) *TokenIssuer {
	return &TokenIssuer{secret: []byte(secret)}
}

// Mint signs a token binding grantID to the given scope, valid until
// expiresAt.
func (t *TokenIssuer) Mint(grantID, tenantID, userID uuid.UUID, apiName string, expiresAt time.Time) (string, error) {
	claims := accessClaims{
		GrantID:  grantID.String(),
		TenantID: tenantID.String(),
		UserID:   userID.String(),
		APIName:  apiName,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}

	return signed, nil
}

// Validate parses tokenString and checks it is scoped to exactly the
// given tenant, user and API. Any mismatch, bad signature or expired
// token returns ErrAccessDenied; validation never falls open.
func (t *TokenIssuer) Validate(tokenString string, tenantID, userID uuid.UUID, apiName string) (uuid.UUID, error) {
	token, err := jwt.ParseWithClaims(tokenString, &accessClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return t.secret, nil
	})
	if err != nil || !token.Valid {
		return uuid.Nil, ErrAccessDenied
	}

	claims, ok := token.Claims.(*accessClaims)
	if !ok {
		return uuid.Nil, ErrAccessDenied
	}
	if claims.TenantID != tenantID.String() ||
		claims.UserID != userID.String() ||
		claims.APIName != apiName {
		return uuid.Nil, ErrAccessDenied
	}

	grantID, err := uuid.Parse(claims.GrantID)
	if err != nil {
		return uuid.Nil, ErrAccessDenied
	}

	return grantID, nil
}
