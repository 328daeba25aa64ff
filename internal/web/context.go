package web

import (
	"net/http"

	"github.com/JonMunkholm/jsonview/internal/core"
	mw "github.com/JonMunkholm/jsonview/internal/web/middleware"
)

// requestMetadata adds the client IP and User-Agent to the request context
// so sessions record who opened them. It runs after TrustedRealIP.
func requestMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := core.ContextWithClient(r.Context(), mw.ClientIP(r))
		ctx = core.ContextWithUserAgent(ctx, r.UserAgent())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
