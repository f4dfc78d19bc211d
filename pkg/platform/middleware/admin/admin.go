package admin

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	dErrors "unionregistry/pkg/domain-errors"
	"unionregistry/pkg/platform/httputil"
	request "unionregistry/pkg/platform/middleware/request"
	"unionregistry/pkg/requestcontext"
)

// HeaderAdminToken carries the shared admin secret for operator tooling.
const HeaderAdminToken = "X-Admin-Token"

// RequireAdmin admits requests already authenticated as admin (admin session
// token) or presenting the configured admin token. An empty expectedToken
// disables the header path.
func RequireAdmin(expectedToken string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if requestcontext.IsAdmin(ctx) {
				next.ServeHTTP(w, r)
				return
			}

			token := r.Header.Get(HeaderAdminToken)
			// Use constant-time comparison to prevent timing attacks
			if expectedToken == "" || subtle.ConstantTimeCompare([]byte(token), []byte(expectedToken)) != 1 {
				logger.WarnContext(ctx, "admin authentication failed",
					"request_id", request.GetRequestID(ctx),
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "admin authentication required"))
				return
			}

			next.ServeHTTP(w, r.WithContext(requestcontext.WithAdmin(ctx, true)))
		})
	}
}
