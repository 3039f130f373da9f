package middleware

import (
	"errors"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"storefront/internal/models"
)

const (
	ContextUserID = "userId"
	ContextRole   = "role"
)

var (
	errMissingToken = errors.New("missing token")
	errInvalidToken = errors.New("invalid token")
	errUnauthorized = errors.New("unauthorized")
)

type identity struct {
	userID primitive.ObjectID
	role   string
}

// parseBearer validates the Authorization header. It returns errMissingToken
// when no header is present so optional routes can tell absence from
// a bad token.
func parseBearer(c *gin.Context, secret string) (identity, error) {
	raw := strings.TrimSpace(c.GetHeader("Authorization"))
	if raw == "" {
		return identity{}, errMissingToken
	}

	parts := strings.Split(raw, " ")
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return identity{}, errInvalidToken
	}

	token, err := jwt.Parse(parts[1], func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return identity{}, errUnauthorized
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return identity{}, errUnauthorized
	}

	userIDValue, ok := claims["userId"].(string)
	if !ok || strings.TrimSpace(userIDValue) == "" {
		return identity{}, errUnauthorized
	}
	userID, err := primitive.ObjectIDFromHex(userIDValue)
	if err != nil {
		return identity{}, errUnauthorized
	}

	role, _ := claims["role"].(string)
	if role == "" {
		role = models.RoleCustomer
	}
	return identity{userID: userID, role: role}, nil
}

// IssueToken signs an HS256 token carrying the claims the guards read.
func IssueToken(secret string, userID primitive.ObjectID, role string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"userId": userID.Hex(),
		"role":   role,
		"iat":    now.Unix(),
		"exp":    now.Add(ttl).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// CallerID returns the authenticated user id, if any.
func CallerID(c *gin.Context) (primitive.ObjectID, bool) {
	value, ok := c.Get(ContextUserID)
	if !ok {
		return primitive.NilObjectID, false
	}
	id, ok := value.(primitive.ObjectID)
	return id, ok
}

func IsAdmin(c *gin.Context) bool {
	return c.GetString(ContextRole) == models.RoleAdmin
}
