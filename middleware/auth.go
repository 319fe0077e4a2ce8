package middleware

import (
	"context"
	"strings"
	"time"

	"github.com/adelegard/TouchrServer/utils"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	jwtSecret []byte
	jwtTTL    = 30 * 24 * time.Hour
)

// InitAuth sets the signing secret and token lifetime.
func InitAuth(secret string, ttl time.Duration) {
	jwtSecret = []byte(secret)
	if ttl > 0 {
		jwtTTL = ttl
	}
}

type Claims struct {
	UserID uuid.UUID `json:"user_id"`
	jwt.RegisteredClaims
}

// GenerateToken issues a signed session token for userID.
func GenerateToken(userID uuid.UUID) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(jwtTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(jwtSecret)
}

// AuthMiddleware requires a valid bearer token and stores the caller's id in the context.
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			utils.Unauthorized(c, "missing authorization header")
			c.Abort()
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			utils.Unauthorized(c, "invalid authorization header")
			c.Abort()
			return
		}

		userID, err := ValidateToken(parts[1])
		if err != nil {
			utils.Unauthorized(c, "invalid token")
			c.Abort()
			return
		}

		c.Set("user_id", userID)
		c.Next()
	}
}

func ValidateToken(tokenString string) (uuid.UUID, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return jwtSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return uuid.Nil, err
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims.UserID, nil
	}
	return uuid.Nil, jwt.ErrSignatureInvalid
}

func GetUserID(c *gin.Context) (uuid.UUID, bool) {
	userID, exists := c.Get("user_id")
	if !exists {
		return uuid.Nil, false
	}
	id, ok := userID.(uuid.UUID)
	return id, ok
}

// RoleChecker answers whether a user holds a named role.
type RoleChecker interface {
	HasRole(ctx context.Context, userID uuid.UUID, role string) (bool, error)
}

// RequireRole lets the request through only when the authenticated user holds role.
// It must run after AuthMiddleware.
func RequireRole(checker RoleChecker, role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := GetUserID(c)
		if !ok {
			utils.Unauthorized(c, "unauthorized")
			c.Abort()
			return
		}

		has, err := checker.HasRole(c.Request.Context(), userID, role)
		if err != nil {
			utils.Log.WithError(err).WithField("user_id", userID).Error("role lookup failed")
			utils.InternalServerError(c, "failed to check role")
			c.Abort()
			return
		}
		if !has {
			utils.Forbidden(c, role+" role required")
			c.Abort()
			return
		}

		c.Set("role_"+role, true)
		c.Next()
	}
}

// HasRole reports whether RequireRole already admitted the request for role.
func HasRole(c *gin.Context, role string) bool {
	return c.GetBool("role_" + role)
}
