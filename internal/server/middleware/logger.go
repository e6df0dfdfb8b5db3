package middleware

import (
	"log/slog"
	"net/http"

	"github.com/Mark-hil/chat-app/pkg/chat"
)

// NewRequestLogger creates a middleware that logs each incoming request
// together with the identity the chain resolved for it. It must run after
// the identity middleware.
func NewRequestLogger(logger *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var ip string
			identity := chat.Anonymous
			if reqMeta, ok := ReqMetadataFrom(r.Context()); ok {
				ip = reqMeta.IP
				identity = reqMeta.Identity
			}

			attrs := []any{
				slog.String("method", r.Method),
				slog.String("uri", r.RequestURI),
				slog.String("ip", ip),
				slog.Bool("authenticated", identity.Authenticated),
			}
			if identity.Authenticated {
				attrs = append(attrs, slog.Int64("userID", identity.UserID))
			}
			logger.Info("incoming HTTP request", attrs...)
			next.ServeHTTP(w, r)
		})
	}
}
