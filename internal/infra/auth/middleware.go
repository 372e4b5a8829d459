package auth

import (
	"context"
	"net/http"

	"github.com/xela07ax/zeus-orchestrator/internal/domain"
	"go.uber.org/zap"
)

// TokenValidator — интерфейс, который реализует AuthService через embedding BaseValidator
type TokenValidator interface {
	VerifyToken(tokenStr string) (*domain.CustomClaims, error)
}

type ctxKey string

const (
	ctxKeyUserID ctxKey = "user_id"
	ctxKeyRole   ctxKey = "user_role"
)

func NewMiddleware(v TokenValidator, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			claims, err := v.VerifyToken(authHeader)
			if err != nil {
				logger.Warn("auth failure", zap.Error(err))
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			// Прокидываем данные в контекст
			ctx := context.WithValue(r.Context(), ctxKeyUserID, claims.UserID)
			ctx = context.WithValue(ctx, ctxKeyRole, claims.Role)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserID достает ID оператора из контекста ("unknown", если запрос шел мимо периметра).
func UserID(ctx context.Context) string {
	if id, ok := ctx.Value(ctxKeyUserID).(string); ok && id != "" {
		return id
	}
	return "unknown"
}

// Role достает роль оператора из токена.
func Role(ctx context.Context) string {
	if r, ok := ctx.Value(ctxKeyRole).(string); ok {
		return r
	}
	return ""
}
