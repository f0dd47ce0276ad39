package auth

import (
	"fmt"
	"time"

	"github.com/gartstein/insurecrm/internal/policy/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const tokenTTL = 24 * time.Hour

// Claims is the payload of an access token. The subject is the user id.
type Claims struct {
	AgencyID string `json:"agencyId"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

func GenerateToken(userID, agencyID uuid.UUID, role models.UserRole, secret string) (string, error) {
	claims := Claims{
		AgencyID: agencyID.String(),
		Role:     string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(tokenTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// validateToken checks the token signature and returns parsed claims if valid.
func validateToken(tokenString, secret string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}
	return nil, fmt.Errorf("invalid token claims")
}

// identity converts the claims of a verified token. The role is taken from
// the stored user later, so only the ids are parsed here.
func (c *Claims) identity() (models.Identity, error) {
	userID, err := uuid.Parse(c.Subject)
	if err != nil {
		return models.Identity{}, fmt.Errorf("invalid subject claim: %w", err)
	}
	agencyID, err := uuid.Parse(c.AgencyID)
	if err != nil {
		return models.Identity{}, fmt.Errorf("invalid agencyId claim: %w", err)
	}
	return models.Identity{UserID: userID, AgencyID: agencyID, Role: models.UserRole(c.Role)}, nil
}
