package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	RoleCustomer = "customer"
	RoleVendor   = "vendor"
	RoleAdmin    = "admin"
)

const userContextKey = "auth.user"

// User is the caller identity carried by a verified bearer token.
type User struct {
	ID    string
	Email string
	Role  string
}

// Claims are issued by the identity provider; this service only verifies them.
type Claims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

func AuthMiddleware(secret string) gin.HandlerFunc {
	key := []byte(secret)
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, found := strings.CutPrefix(header, "Bearer ")
		if !found || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required", "success": false})
			return
		}

		user, err := ParseToken(key, token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated", "success": false})
			return
		}

		c.Set(userContextKey, user)
		c.Next()
	}
}

func ParseToken(key []byte, tokenString string) (User, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return User{}, err
	}
	if !token.Valid || claims.Subject == "" {
		return User{}, errors.New("token has no subject")
	}

	role := claims.Role
	if role == "" {
		role = RoleCustomer
	}
	return User{ID: claims.Subject, Email: claims.Email, Role: role}, nil
}

// RequireRole must run after AuthMiddleware. Admins pass every role check.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := CurrentUser(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated", "success": false})
			return
		}
		if user.Role == RoleAdmin {
			c.Next()
			return
		}
		for _, role := range roles {
			if user.Role == role {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Insufficient permissions", "success": false})
	}
}

func CurrentUser(c *gin.Context) (User, bool) {
	v, ok := c.Get(userContextKey)
	if !ok {
		return User{}, false
	}
	user, ok := v.(User)
	return user, ok
}
