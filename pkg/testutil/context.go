package testutil

import (
	"net/http"

	id "unionregistry/pkg/domain"
	"unionregistry/pkg/requestcontext"
)

// WithActor names the acting user on the request context, as RequireActor would.
func WithActor(req *http.Request, actor string) *http.Request {
	return req.WithContext(requestcontext.WithActor(req.Context(), actor))
}

// WithAdmin marks the request as an authenticated admin session.
func WithAdmin(req *http.Request, actor string) *http.Request {
	ctx := requestcontext.WithActor(req.Context(), actor)
	ctx = requestcontext.WithAdmin(ctx, true)
	return req.WithContext(ctx)
}

// WithDealerSession simulates a logged-in dealer profile.
// An unparseable dealerID leaves the request anonymous.
func WithDealerSession(req *http.Request, actor, dealerID string) *http.Request {
	parsed, err := id.ParseDealerID(dealerID)
	if err != nil {
		return req
	}
	ctx := requestcontext.WithActor(req.Context(), actor)
	ctx = requestcontext.WithDealerID(ctx, parsed)
	return req.WithContext(ctx)
}
