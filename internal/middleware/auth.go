package middleware

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"reforest-portal/portal-backend/pkg/apperrors"
)

const userIDKey = "user_id"

var signingMethod = jwt.SigningMethodHS256

// JWTConfig holds the shared secret and expected issuer of bearer tokens.
type JWTConfig struct {
	Secret string
	Issuer string
}

// Claims is the token payload. The subject is the user id.
type Claims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// MintToken signs a token for subject that expires after ttl.
func MintToken(cfg JWTConfig, subject, role string, now time.Time, ttl time.Duration) (string, error) {
	if cfg.Secret == "" {
		return "", errors.New("jwt secret is required")
	}
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(signingMethod, claims).SignedString([]byte(cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("signing jwt: %w", err)
	}
	return signed, nil
}

// ParseToken validates the signature, expiry and issuer of a bearer token.
func ParseToken(cfg JWTConfig, token string) (*Claims, error) {
	if cfg.Secret == "" {
		return nil, errors.New("jwt secret is required")
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{signingMethod.Alg()})}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(cfg.Secret), nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	if claims.Subject == "" {
		return nil, errors.New("token has no subject")
	}
	return claims, nil
}

// RequireAuth rejects requests without a valid bearer token and stores the
// caller's id on the context.
func RequireAuth(cfg JWTConfig, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader("Authorization"))
		token := raw
		if len(raw) > 7 && strings.EqualFold(raw[:7], "bearer ") {
			token = strings.TrimSpace(raw[7:])
		}
		if token == "" {
			apperrors.Respond(c, logger, apperrors.New(apperrors.KindUnauthorized, "missing credentials"))
			return
		}

		claims, err := ParseToken(cfg, token)
		if err != nil {
			apperrors.Respond(c, logger, apperrors.Wrap(apperrors.KindUnauthorized, err, "invalid token"))
			return
		}

		c.Set(userIDKey, claims.Subject)
		c.Next()
	}
}

// UserID returns the authenticated caller, or "" on open routes.
func UserID(c *gin.Context) string {
	return c.GetString(userIDKey)
}
