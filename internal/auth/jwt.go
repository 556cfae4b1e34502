package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const issuer = "canvas"

// PreviewClaims are the JWT claims for project-scoped preview tokens. A
// preview token lets an iframe load one project's document, blobs and live
// update stream without holding the API key.
type PreviewClaims struct {
	jwt.RegisteredClaims
	ProjectID string `json:"project_id"`
}

// TokenIssuer creates and validates preview JWTs.
type TokenIssuer struct {
	secret []byte
}

// NewTokenIssuer creates a new issuer with the given shared secret. An empty
// secret gets a random one, so tokens do not survive a restart.
func NewTokenIssuer(secret string) *TokenIssuer {
	if secret == "" {
		secret = uuid.NewString() + uuid.NewString()
	}
	return &TokenIssuer{secret: []byte(secret)}
}

// IssuePreviewToken creates a JWT for read access to one project's preview.
func (t *TokenIssuer) IssuePreviewToken(projectID string, ttl time.Duration) (string, time.Time, error) {
	now := time.Now()
	expires := now.Add(ttl)
	claims := PreviewClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   projectID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
			Issuer:    issuer,
		},
		ProjectID: projectID,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign preview token: %w", err)
	}
	return signed, expires, nil
}

// ValidatePreviewToken parses and validates a preview JWT.
func (t *TokenIssuer) ValidatePreviewToken(tokenStr string) (*PreviewClaims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &PreviewClaims{}, func(tok *jwt.Token) (interface{}, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", tok.Header["alg"])
		}
		return t.secret, nil
	}, jwt.WithIssuer(issuer))
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	claims, ok := token.Claims.(*PreviewClaims)
	if !ok || !token.Valid || claims.ProjectID == "" {
		return nil, fmt.Errorf("invalid token claims")
	}

	return claims, nil
}
