package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/content-platform/rating-service/internal/platform/logger"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// UserIDKeyType is a custom type for the user ID context key to avoid collisions.
type UserIDKeyType string

// UserRoleKeyType is a custom type for the user role context key.
type UserRoleKeyType string

const (
	// UserIDKey is the key used to store and retrieve the authenticated UserID from the context.
	UserIDKey UserIDKeyType = "authenticatedUserID"
	// UserRoleKey is the key used to store and retrieve the authenticated user's role from the context.
	UserRoleKey UserRoleKeyType = "authenticatedUserRole"
)

// Claims defines the structure of the JWT claims expected from the token.
type Claims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// JWTAuth returns middleware that validates the Bearer token and stores
// the authenticated user ID and role in the request context.
func JWTAuth(jwtSecret string, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				log.Warn("JWTAuth: 'Authorization' header not found", zap.String("path", r.URL.Path))
				http.Error(w, "authorization token is not provided", http.StatusUnauthorized)
				return
			}

			parts := strings.Fields(authHeader)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				log.Warn("JWTAuth: invalid 'Authorization' header format", zap.String("path", r.URL.Path))
				http.Error(w, "authorization token format is invalid, expected 'Bearer <token>'", http.StatusUnauthorized)
				return
			}
			tokenString := parts[1]

			claims := &Claims{}
			token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, errors.New("unexpected signing method")
				}
				return []byte(jwtSecret), nil
			})
			if err != nil {
				log.Warn("JWTAuth: token parsing/validation failed", zap.String("path", r.URL.Path), zap.Error(err))
				if errors.Is(err, jwt.ErrTokenExpired) {
					http.Error(w, "token has expired", http.StatusUnauthorized)
					return
				}
				http.Error(w, "token is invalid", http.StatusUnauthorized)
				return
			}
			if !token.Valid {
				http.Error(w, "token is not valid", http.StatusUnauthorized)
				return
			}
			if claims.UserID == "" {
				log.Warn("JWTAuth: UserID not found in token claims", zap.String("path", r.URL.Path))
				http.Error(w, "UserID not found in token claims", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), UserIDKey, claims.UserID)
			ctx = context.WithValue(ctx, UserRoleKey, claims.Role)

			log.Debug("JWTAuth: user authenticated",
				zap.String("path", r.URL.Path),
				zap.String("user_id", claims.UserID),
				zap.String("role", claims.Role))

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole returns middleware that rejects authenticated requests whose
// role does not match. It must run after JWTAuth.
func RequireRole(role string, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userRole, _ := r.Context().Value(UserRoleKey).(string)
			if userRole != role {
				userID, _ := r.Context().Value(UserIDKey).(string)
				log.Warn("RequireRole: user does not have required role",
					zap.String("path", r.URL.Path),
					zap.String("user_id", userID),
					zap.String("user_role", userRole),
					zap.String("required_role", role))
				http.Error(w, "insufficient privileges", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// UserFromContext returns the authenticated user ID and role, if present.
func UserFromContext(ctx context.Context) (userID, role string) {
	userID, _ = ctx.Value(UserIDKey).(string)
	role, _ = ctx.Value(UserRoleKey).(string)
	return userID, role
}
