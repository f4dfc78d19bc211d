// Package recorder writes audit entries with fail-closed semantics.
//
// Record is called inside the business transaction. If the entry cannot be
// persisted an error is returned and the calling operation MUST fail, which
// rolls back the mutation the entry describes.
package recorder

import (
	"context"
	"log/slog"
	"maps"
	"strings"
	"time"

	"github.com/google/uuid"

	id "unionregistry/pkg/domain"
	dErrors "unionregistry/pkg/domain-errors"
	audit "unionregistry/pkg/platform/audit"
	"unionregistry/pkg/platform/middleware/metadata"
	"unionregistry/pkg/requestcontext"
)

const (
	defaultListLimit = 100
	maxListLimit     = 500
)

// Recorder appends audit entries.
type Recorder struct {
	store   audit.Store
	logger  *slog.Logger
	metrics *Metrics
}

// Option configures the Recorder.
type Option func(*Recorder)

// WithLogger sets a logger for error reporting and the audit log line.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Recorder) {
		r.logger = logger
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *Metrics) Option {
	return func(r *Recorder) {
		r.metrics = m
	}
}

// New creates a recorder over store.
func New(store audit.Store, opts ...Option) *Recorder {
	r := &Recorder{store: store}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record appends one entry. A blank actor fails with CodeMissingActor before
// anything is written. Persistence failures return CodeInternal.
func (r *Recorder) Record(ctx context.Context, actor string, action audit.Action, entityType audit.EntityType, entityID string, meta map[string]any) error {
	start := time.Now()

	actor = strings.TrimSpace(actor)
	if actor == "" {
		return dErrors.New(dErrors.CodeMissingActor, "actor is required")
	}
	if action == "" || entityType == "" || entityID == "" {
		return dErrors.New(dErrors.CodeInternal, "audit entry requires action and entity")
	}

	entry := audit.Entry{
		ID:         id.AuditEntryID(uuid.New()),
		Actor:      actor,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Metadata:   enrich(ctx, meta),
		CreatedAt:  requestcontext.Now(ctx),
	}

	if err := r.store.Append(ctx, entry); err != nil {
		if r.metrics != nil {
			r.metrics.IncPersistFailures()
		}
		if r.logger != nil {
			r.logger.ErrorContext(ctx, "CRITICAL: audit write failed",
				"action", action,
				"entity_type", entityType,
				"entity_id", entityID,
				"request_id", requestcontext.RequestID(ctx),
				"error", err,
			)
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "audit write failed")
	}

	if r.metrics != nil {
		r.metrics.ObservePersistDuration(start)
		r.metrics.IncRecorded(entityType)
	}
	if r.logger != nil {
		r.logger.InfoContext(ctx, string(action)+" "+string(entityType),
			"log_type", "audit",
			"actor", actor,
			"entity_id", entityID,
			"request_id", requestcontext.RequestID(ctx),
		)
	}
	return nil
}

// List returns entries matching filter, newest first.
func (r *Recorder) List(ctx context.Context, filter audit.Filter) ([]audit.Entry, error) {
	switch {
	case filter.Limit <= 0:
		filter.Limit = defaultListLimit
	case filter.Limit > maxListLimit:
		filter.Limit = maxListLimit
	}
	entries, err := r.store.List(ctx, filter)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list audit entries")
	}
	return entries, nil
}

// enrich copies meta and adds request correlation fields.
func enrich(ctx context.Context, meta map[string]any) map[string]any {
	out := make(map[string]any, len(meta)+3)
	maps.Copy(out, meta)
	if reqID := requestcontext.RequestID(ctx); reqID != "" {
		out["request_id"] = reqID
	}
	if ip := requestcontext.ClientIP(ctx); ip != "" {
		out["client_ip"] = ip
	}
	if ua := requestcontext.UserAgent(ctx); ua != "" {
		out["client"] = metadata.DescribeUserAgent(ua)
	}
	return out
}
