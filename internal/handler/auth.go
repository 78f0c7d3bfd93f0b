package handler

import (
	"errors"
	"strings"
	"time"

	"homeledger/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const householdKey = "household_id"

// Claims carries the household a token is scoped to. Every query the API
// runs is filtered by it.
type Claims struct {
	HouseholdID string `json:"hid"`
	jwt.RegisteredClaims
}

// IssueToken signs an HS256 token for householdID valid for ttl.
func IssueToken(secret []byte, householdID string, ttl time.Duration) (string, error) {
	if householdID == "" {
		return "", errors.New("household id is required")
	}
	now := time.Now()
	claims := Claims{
		HouseholdID: householdID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   householdID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

func parseToken(secret []byte, raw string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	if claims.HouseholdID == "" {
		return nil, errors.New("token has no household claim")
	}
	return claims, nil
}

// AuthMiddleware requires "Authorization: Bearer <jwt>" and stores the
// household id in the request context.
func AuthMiddleware(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || raw == "" {
			response.Unauthorized(c, "missing bearer token")
			return
		}
		claims, err := parseToken(secret, raw)
		if err != nil {
			response.Unauthorized(c, "invalid token")
			return
		}
		c.Set(householdKey, claims.HouseholdID)
		c.Next()
	}
}

func householdID(c *gin.Context) string {
	return c.GetString(householdKey)
}
