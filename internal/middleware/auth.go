package middleware

import (
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	apperrors "flow/internal/errors"
	"flow/internal/models"
)

// UserIDKey is the Gin context key holding the local user ID.
const UserIDKey = "userID"

// UserResolver maps identity-provider claims onto a local user.
type UserResolver interface {
	EnsureUser(externalID, email, name, imageURL string) (*models.User, error)
}

// IdentityClaims are the claims issued by the identity provider.
type IdentityClaims struct {
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
	jwt.RegisteredClaims
}

// AuthConfig configures token verification.
type AuthConfig struct {
	Secret string
	// Issuer, when set, must match the iss claim.
	Issuer string
	// Leeway tolerates clock skew on exp and nbf.
	Leeway time.Duration
}

// ParseIdentityToken verifies an HS256 identity token and returns its claims.
func ParseIdentityToken(cfg AuthConfig, tokenString string) (*IdentityClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(cfg.Leeway),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}

	claims := &IdentityClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(cfg.Secret), nil
	}, opts...)
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("invalid identity token: %w", err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("identity token has no subject")
	}
	return claims, nil
}

// AuthMiddleware verifies the bearer token, resolves the local user and sets
// its ID in the context.
func AuthMiddleware(cfg AuthConfig, users UserResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abortWithError(c, apperrors.WithMessage(apperrors.ErrUnauthorized, "Authorization header is required"))
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			abortWithError(c, apperrors.WithMessage(apperrors.ErrUnauthorized, "Invalid authorization header format"))
			return
		}

		claims, err := ParseIdentityToken(cfg, parts[1])
		if err != nil {
			abortWithError(c, apperrors.WithMessage(apperrors.ErrUnauthorized, "Invalid or expired token"))
			return
		}

		user, err := users.EnsureUser(claims.Subject, claims.Email, claims.Name, claims.Picture)
		if err != nil {
			abortWithError(c, err)
			return
		}

		c.Set(UserIDKey, user.ID)
		c.Set("email", user.Email)
		c.Next()
	}
}
