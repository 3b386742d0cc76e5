package handler

import (
	"context"
	"encoding/base64"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"docket/internal/resolver/models"
	"docket/internal/resolver/service"
	id "docket/pkg/domain"
	dErrors "docket/pkg/domain-errors"
	"docket/pkg/platform/httputil"
	"docket/pkg/requestcontext"
)

// Service defines the interface for resolution operations.
type Service interface {
	IdentifyOrCreateClient(ctx context.Context, email, first, last string, threshold float64) (*service.MatchResult, error)
	AssociateCase(ctx context.Context, clientID id.ClientID, title string) (*models.Case, error)
	IngestDocument(ctx context.Context, caseID id.CaseID, name string, content []byte) (*service.IngestResult, error)
	ListCases(ctx context.Context, clientID id.ClientID) ([]*models.Case, error)
	ListDocuments(ctx context.Context, caseID id.CaseID) ([]*models.Document, error)
}

// Handler wires resolution endpoints to the resolver service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs a resolver handler with its dependencies.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts resolver endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/clients/resolve", h.HandleResolveClient)
	r.Post("/clients/{clientID}/cases", h.HandleAssociateCase)
	r.Get("/clients/{clientID}/cases", h.HandleListCases)
	r.Post("/cases/{caseID}/documents", h.HandleIngestDocument)
	r.Get("/cases/{caseID}/documents", h.HandleListDocuments)
}

type resolveClientRequest struct {
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	// Threshold is the minimum fuzzy-match score; zero uses the server default.
	Threshold float64 `json:"threshold,omitempty"`
}

type associateCaseRequest struct {
	Title string `json:"title"`
}

type ingestDocumentRequest struct {
	Name    string `json:"name"`
	Content string `json:"content"` // base64
}

// HandleResolveClient handles POST /clients/resolve requests.
func (h *Handler) HandleResolveClient(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	req, ok := httputil.DecodeAndPrepare[resolveClientRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	result, err := h.service.IdentifyOrCreateClient(ctx, req.Email, req.FirstName, req.LastName, req.Threshold)
	if err != nil {
		h.logger.ErrorContext(ctx, "client resolution failed",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "client resolved",
		"request_id", requestID,
		"client_id", result.Client.ID.String(),
		"method", result.Method,
		"created", result.Created,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	status := http.StatusOK
	if result.Created {
		status = http.StatusCreated
	}
	httputil.WriteJSON(w, status, result)
}

// HandleAssociateCase handles POST /clients/{clientID}/cases requests.
func (h *Handler) HandleAssociateCase(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	clientID, err := id.ParseClientID(chi.URLParam(r, "clientID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid client id"))
		return
	}

	req, ok := httputil.DecodeAndPrepare[associateCaseRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	c, err := h.service.AssociateCase(ctx, clientID, req.Title)
	if err != nil {
		h.logger.ErrorContext(ctx, "case association failed",
			"request_id", requestID,
			"client_id", clientID.String(),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, c)
}

// HandleListCases handles GET /clients/{clientID}/cases requests.
func (h *Handler) HandleListCases(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	clientID, err := id.ParseClientID(chi.URLParam(r, "clientID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid client id"))
		return
	}

	cases, err := h.service.ListCases(ctx, clientID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, cases)
}

// HandleIngestDocument handles POST /cases/{caseID}/documents requests.
func (h *Handler) HandleIngestDocument(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	caseID, err := id.ParseCaseID(chi.URLParam(r, "caseID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid case id"))
		return
	}

	req, ok := httputil.DecodeAndPrepare[ingestDocumentRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	content, err := base64.StdEncoding.DecodeString(req.Content)
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "document content must be base64"))
		return
	}

	result, err := h.service.IngestDocument(ctx, caseID, req.Name, content)
	if err != nil {
		h.logger.ErrorContext(ctx, "document ingestion failed",
			"request_id", requestID,
			"case_id", caseID.String(),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	status := http.StatusOK
	if result.Created {
		status = http.StatusCreated
	}
	httputil.WriteJSON(w, status, result)
}

// HandleListDocuments handles GET /cases/{caseID}/documents requests.
func (h *Handler) HandleListDocuments(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	caseID, err := id.ParseCaseID(chi.URLParam(r, "caseID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid case id"))
		return
	}

	docs, err := h.service.ListDocuments(ctx, caseID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, docs)
}
