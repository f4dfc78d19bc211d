// Package handler serves the audit trail to administrators.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"unionregistry/pkg/platform/audit"
	"unionregistry/pkg/platform/httputil"
	request "unionregistry/pkg/platform/middleware/request"
)

// Lister reads audit entries newest first.
type Lister interface {
	List(ctx context.Context, filter audit.Filter) ([]audit.Entry, error)
}

type Handler struct {
	audit  Lister
	logger *slog.Logger
}

func New(lister Lister, logger *slog.Logger) *Handler {
	return &Handler{audit: lister, logger: logger}
}

// Register mounts GET /audit. The caller applies RequireAdmin.
func (h *Handler) Register(r chi.Router) {
	r.Get("/audit", h.handleList)
}

// EntryResponse is the wire form of an audit entry.
type EntryResponse struct {
	ID         string         `json:"id"`
	Actor      string         `json:"actor"`
	Action     string         `json:"action"`
	EntityType string         `json:"entity_type"`
	EntityID   string         `json:"entity_id"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// handleList serves GET /audit?entity=&id=&actor=&limit=.
func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	filter := audit.Filter{
		EntityType: audit.EntityType(strings.ToUpper(strings.TrimSpace(q.Get("entity")))),
		EntityID:   strings.TrimSpace(q.Get("id")),
		Actor:      strings.TrimSpace(q.Get("actor")),
	}
	if n, err := strconv.Atoi(q.Get("limit")); err == nil {
		filter.Limit = n
	}

	entries, err := h.audit.List(ctx, filter)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list audit entries",
			"request_id", request.GetRequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	out := make([]EntryResponse, len(entries))
	for i, e := range entries {
		out[i] = EntryResponse{
			ID:         e.ID.String(),
			Actor:      e.Actor,
			Action:     string(e.Action),
			EntityType: string(e.EntityType),
			EntityID:   e.EntityID,
			Metadata:   e.Metadata,
			CreatedAt:  e.CreatedAt,
		}
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}
