package mw

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"wardrobe-backend/config"
	"wardrobe-backend/internal/apperr"
	"wardrobe-backend/internal/logger"
)

// Claims is the subset of the session token this service reads. Tokens carry
// the user id either as the standard subject or as a numeric user_id claim.
type Claims struct {
	UserID *uint64 `json:"user_id,omitempty"`
	jwt.RegisteredClaims
}

var errMissingSubject = errors.New("token carries no user id")

// ParseToken validates an HS256 session token and returns the user id.
func ParseToken(cfg config.AuthConfig, tokenStr string) (uint, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if cfg.JWTIssuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.JWTIssuer))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(cfg.JWTSecret), nil
	}, opts...)
	if err != nil {
		return 0, fmt.Errorf("parsing token: %w", err)
	}
	if !token.Valid {
		return 0, errors.New("invalid token")
	}

	if claims.UserID != nil && *claims.UserID > 0 {
		return uint(*claims.UserID), nil
	}
	if claims.Subject != "" {
		id, err := strconv.ParseUint(claims.Subject, 10, 64)
		if err != nil || id == 0 {
			return 0, fmt.Errorf("subject %q is not a user id", claims.Subject)
		}
		return uint(id), nil
	}
	return 0, errMissingSubject
}

// Auth requires a valid bearer token and stores the user id on the context.
func Auth(cfg config.AuthConfig, log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader("Authorization"))
		token := raw
		if len(token) > 7 && strings.EqualFold(token[:7], "bearer ") {
			token = strings.TrimSpace(token[7:])
		}
		if token == "" {
			AbortWithError(c, log, apperr.Unauthorized("missing credentials"))
			return
		}

		userID, err := ParseToken(cfg, token)
		if err != nil {
			AbortWithError(c, log, apperr.Wrap(apperr.CodeUnauthorized, err, "invalid token"))
			return
		}

		SetUserID(c, userID)
		if log != nil {
			c.Request = c.Request.WithContext(log.WithUserID(c.Request.Context(), userID))
		}
		c.Next()
	}
}
