package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"docket/internal/ledger"
	id "docket/pkg/domain"
	dErrors "docket/pkg/domain-errors"
	"docket/pkg/platform/httputil"
	"docket/pkg/requestcontext"
)

// Service defines the interface for ledger read and verification operations.
type Service interface {
	VerifyEntry(ctx context.Context, entryID id.EntryID) (bool, error)
	VerifyAll(ctx context.Context, tenantID id.TenantID) (*ledger.Report, error)
	GetTimeline(ctx context.Context, entityType, entityID string, tenantID id.TenantID, limit, offset int) ([]*ledger.Entry, error)
	GetAuditTrail(ctx context.Context, tenantID id.TenantID, filter ledger.Filter, limit, offset int) ([]*ledger.Entry, error)
}

// Handler wires ledger endpoints to the ledger service. There is no write
// endpoint: entries are appended only as a side effect of domain mutations.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs a ledger handler with its dependencies.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts ledger endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/ledger/timeline", h.HandleTimeline)
	r.Get("/ledger/audit-trail", h.HandleAuditTrail)
	r.Post("/ledger/verify", h.HandleVerifyAll)
	r.Get("/ledger/entries/{entryID}/verify", h.HandleVerifyEntry)
}

// HandleTimeline handles GET /ledger/timeline requests.
func (h *Handler) HandleTimeline(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := requestcontext.Actor(ctx)

	q := r.URL.Query()
	limit, offset := pagination(q.Get("limit"), q.Get("offset"))
	entries, err := h.service.GetTimeline(ctx, q.Get("entity_type"), q.Get("entity_id"), actor.TenantID, limit, offset)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, entries)
}

// HandleAuditTrail handles GET /ledger/audit-trail requests.
func (h *Handler) HandleAuditTrail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := requestcontext.Actor(ctx)

	q := r.URL.Query()
	filter := ledger.Filter{Action: ledger.Action(q.Get("action"))}
	if raw := q.Get("actor"); raw != "" {
		actorID, err := id.ParseUserID(raw)
		if err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid actor id"))
			return
		}
		filter.Actor = actorID
	}
	if raw := q.Get("from"); raw != "" {
		from, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid from timestamp"))
			return
		}
		filter.From = from
	}
	if raw := q.Get("to"); raw != "" {
		to, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid to timestamp"))
			return
		}
		filter.To = to
	}

	limit, offset := pagination(q.Get("limit"), q.Get("offset"))
	entries, err := h.service.GetAuditTrail(ctx, actor.TenantID, filter, limit, offset)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, entries)
}

// HandleVerifyAll handles POST /ledger/verify requests.
func (h *Handler) HandleVerifyAll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	actor := requestcontext.Actor(ctx)
	start := time.Now()

	report, err := h.service.VerifyAll(ctx, actor.TenantID)
	if err != nil {
		h.logger.ErrorContext(ctx, "ledger verification failed",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "ledger verified",
		"request_id", requestID,
		"total", report.Total,
		"corrupted", len(report.CorruptedIDs),
		"clean", report.Clean(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusOK, report)
}

// HandleVerifyEntry handles GET /ledger/entries/{entryID}/verify requests.
func (h *Handler) HandleVerifyEntry(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	entryID, err := id.ParseEntryID(chi.URLParam(r, "entryID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid entry id"))
		return
	}

	valid, err := h.service.VerifyEntry(ctx, entryID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]bool{"valid": valid})
}

const defaultPageSize = 100

func pagination(rawLimit, rawOffset string) (int, int) {
	limit := defaultPageSize
	if n, err := strconv.Atoi(rawLimit); err == nil && n > 0 {
		limit = n
	}
	offset := 0
	if n, err := strconv.Atoi(rawOffset); err == nil && n > 0 {
		offset = n
	}
	return limit, offset
}
