package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	id "unionregistry/pkg/domain"
	dErrors "unionregistry/pkg/domain-errors"
	"unionregistry/pkg/platform/httputil"
	request "unionregistry/pkg/platform/middleware/request"
	"unionregistry/pkg/requestcontext"
)

// Roles carried in session tokens.
const (
	RoleAdmin  = "ADMIN"
	RoleDealer = "DEALER"
)

// HeaderActor names the acting user for callers without a session token.
const HeaderActor = "X-Actor"

const maxActorLength = 128

// TokenValidator defines the interface for validating session tokens.
type TokenValidator interface {
	ValidateToken(tokenString string) (*Claims, error)
}

// Claims represents the claims we expect from the token validator.
type Claims struct {
	Username string
	Role     string
	DealerID string
}

// Authenticate resolves the caller from a Bearer token when one is present.
// Requests without an Authorization header pass through anonymous.
func Authenticate(validator TokenValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			token, ok := strings.CutPrefix(authHeader, "Bearer ")
			if !ok {
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "invalid Authorization header"))
				return
			}
			claims, err := validator.ValidateToken(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", request.GetRequestID(ctx),
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "invalid or expired token"))
				return
			}

			ctx = requestcontext.WithActor(ctx, claims.Username)
			ctx = requestcontext.WithSessionUser(ctx, claims.Username)
			ctx = requestcontext.WithAdmin(ctx, claims.Role == RoleAdmin)
			if claims.Role == RoleDealer {
				dealerID, err := id.ParseDealerID(claims.DealerID)
				if err != nil {
					httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "invalid or expired token"))
					return
				}
				ctx = requestcontext.WithDealerID(ctx, dealerID)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireActor ensures every request names its acting user, either through a
// session token or the X-Actor header. Missing actors fail with missing_actor.
func RequireActor(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if requestcontext.Actor(ctx) != "" {
				next.ServeHTTP(w, r)
				return
			}

			actor := strings.TrimSpace(r.Header.Get(HeaderActor))
			if actor == "" || len(actor) > maxActorLength {
				logger.WarnContext(ctx, "request without actor",
					"request_id", request.GetRequestID(ctx),
					"path", r.URL.Path,
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeMissingActor, "X-Actor header is required"))
				return
			}
			next.ServeHTTP(w, r.WithContext(requestcontext.WithActor(ctx, actor)))
		})
	}
}

// RequireSession admits only requests authenticated with a session token.
func RequireSession(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if requestcontext.SessionUser(ctx) == "" {
				logger.WarnContext(ctx, "request without session",
					"request_id", request.GetRequestID(ctx),
					"path", r.URL.Path,
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "login required"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// CanActFor rejects dealer sessions acting on another dealer's records.
// Admins and header-identified operators may act for any dealer.
func CanActFor(ctx context.Context, dealerID id.DealerID) error {
	own := requestcontext.DealerID(ctx)
	if own.IsNil() || requestcontext.IsAdmin(ctx) {
		return nil
	}
	if own != dealerID {
		return dErrors.New(dErrors.CodeForbidden, "dealer session cannot act for another dealer")
	}
	return nil
}
