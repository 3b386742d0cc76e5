package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"docket/internal/workspace/models"
	id "docket/pkg/domain"
	dErrors "docket/pkg/domain-errors"
	"docket/pkg/platform/httputil"
	"docket/pkg/requestcontext"
)

// Service defines the interface for workspace operations.
type Service interface {
	Create(ctx context.Context, sourceType string, payload, metadata json.RawMessage, clientID *id.ClientID, caseID *id.CaseID) (*models.Workspace, error)
	Get(ctx context.Context, wsID id.WorkspaceID) (*models.Workspace, error)
	AddFact(ctx context.Context, wsID id.WorkspaceID, label, value string, provenance models.Provenance, sourceRef string) (*models.Fact, error)
	AddMissingElement(ctx context.Context, wsID id.WorkspaceID, description string, blocking bool) (*models.MissingElement, error)
	ResolveMissingElement(ctx context.Context, wsID id.WorkspaceID, elementID id.ElementID, resolution string) (*models.MissingElement, error)
	AddRisk(ctx context.Context, wsID id.WorkspaceID, category string, probability, severity float64) (*models.Risk, error)
	ProposeAction(ctx context.Context, wsID id.WorkspaceID, description string) (*models.ProposedAction, error)
	ExecuteAction(ctx context.Context, wsID id.WorkspaceID, actionID id.ActionID, result string) (*models.ProposedAction, error)
	Transition(ctx context.Context, wsID id.WorkspaceID, event models.Event) (*models.Workspace, error)
	Lock(ctx context.Context, wsID id.WorkspaceID) (*models.Workspace, error)
	Unlock(ctx context.Context, wsID id.WorkspaceID) (*models.Workspace, error)
	GetFacts(ctx context.Context, wsID id.WorkspaceID) ([]*models.Fact, error)
	GetMissingElements(ctx context.Context, wsID id.WorkspaceID) ([]*models.MissingElement, error)
	GetRisks(ctx context.Context, wsID id.WorkspaceID) ([]*models.Risk, error)
	GetActions(ctx context.Context, wsID id.WorkspaceID) ([]*models.ProposedAction, error)
	GetTrace(ctx context.Context, wsID id.WorkspaceID) ([]*models.TraceEntry, error)
}

// Handler wires workspace endpoints to the workspace service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs a workspace handler with its dependencies.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts workspace endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/workspaces", h.HandleCreate)
	r.Get("/workspaces/{workspaceID}", h.HandleGet)
	r.Post("/workspaces/{workspaceID}/facts", h.HandleAddFact)
	r.Get("/workspaces/{workspaceID}/facts", h.HandleListFacts)
	r.Post("/workspaces/{workspaceID}/missing-elements", h.HandleAddMissingElement)
	r.Get("/workspaces/{workspaceID}/missing-elements", h.HandleListMissingElements)
	r.Post("/workspaces/{workspaceID}/missing-elements/{elementID}/resolve", h.HandleResolveMissingElement)
	r.Post("/workspaces/{workspaceID}/risks", h.HandleAddRisk)
	r.Get("/workspaces/{workspaceID}/risks", h.HandleListRisks)
	r.Post("/workspaces/{workspaceID}/actions", h.HandleProposeAction)
	r.Get("/workspaces/{workspaceID}/actions", h.HandleListActions)
	r.Post("/workspaces/{workspaceID}/actions/{actionID}/execute", h.HandleExecuteAction)
	r.Post("/workspaces/{workspaceID}/transition", h.HandleTransition)
	r.Post("/workspaces/{workspaceID}/lock", h.HandleLock)
	r.Post("/workspaces/{workspaceID}/unlock", h.HandleUnlock)
	r.Get("/workspaces/{workspaceID}/trace", h.HandleGetTrace)
}

func workspaceID(w http.ResponseWriter, r *http.Request) (id.WorkspaceID, bool) {
	wsID, err := id.ParseWorkspaceID(chi.URLParam(r, "workspaceID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid workspace id"))
		return id.WorkspaceID{}, false
	}
	return wsID, true
}

// HandleCreate handles POST /workspaces requests.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	req, ok := httputil.DecodeAndPrepare[createWorkspaceRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	var clientID *id.ClientID
	if req.ClientID != "" {
		parsed, err := id.ParseClientID(req.ClientID)
		if err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid client id"))
			return
		}
		clientID = &parsed
	}
	var caseID *id.CaseID
	if req.CaseID != "" {
		parsed, err := id.ParseCaseID(req.CaseID)
		if err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid case id"))
			return
		}
		caseID = &parsed
	}

	ws, err := h.service.Create(ctx, req.SourceType, req.SourcePayload, req.SourceMetadata, clientID, caseID)
	if err != nil {
		h.logger.ErrorContext(ctx, "workspace creation failed",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "workspace created",
		"request_id", requestID,
		"workspace_id", ws.ID.String(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusCreated, ws)
}

// HandleGet handles GET /workspaces/{workspaceID} requests.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	wsID, ok := workspaceID(w, r)
	if !ok {
		return
	}
	ws, err := h.service.Get(r.Context(), wsID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ws)
}

// HandleAddFact handles POST /workspaces/{workspaceID}/facts requests.
func (h *Handler) HandleAddFact(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	wsID, ok := workspaceID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[addFactRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	fact, err := h.service.AddFact(ctx, wsID, req.Label, req.Value, models.Provenance(req.Provenance), req.SourceRef)
	if err != nil {
		h.logger.ErrorContext(ctx, "fact addition failed",
			"request_id", requestID,
			"workspace_id", wsID.String(),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, fact)
}

// HandleListFacts handles GET /workspaces/{workspaceID}/facts requests.
func (h *Handler) HandleListFacts(w http.ResponseWriter, r *http.Request) {
	wsID, ok := workspaceID(w, r)
	if !ok {
		return
	}
	facts, err := h.service.GetFacts(r.Context(), wsID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, facts)
}

// HandleAddMissingElement handles POST /workspaces/{workspaceID}/missing-elements requests.
func (h *Handler) HandleAddMissingElement(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	wsID, ok := workspaceID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[addMissingElementRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	element, err := h.service.AddMissingElement(ctx, wsID, req.Description, req.Blocking)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, element)
}

// HandleListMissingElements handles GET /workspaces/{workspaceID}/missing-elements requests.
func (h *Handler) HandleListMissingElements(w http.ResponseWriter, r *http.Request) {
	wsID, ok := workspaceID(w, r)
	if !ok {
		return
	}
	elements, err := h.service.GetMissingElements(r.Context(), wsID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, elements)
}

// HandleResolveMissingElement handles POST /workspaces/{workspaceID}/missing-elements/{elementID}/resolve requests.
func (h *Handler) HandleResolveMissingElement(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	wsID, ok := workspaceID(w, r)
	if !ok {
		return
	}
	elementID, err := id.ParseElementID(chi.URLParam(r, "elementID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid element id"))
		return
	}
	req, ok := httputil.DecodeAndPrepare[resolveMissingElementRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	element, err := h.service.ResolveMissingElement(ctx, wsID, elementID, req.Resolution)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, element)
}

// HandleAddRisk handles POST /workspaces/{workspaceID}/risks requests.
func (h *Handler) HandleAddRisk(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	wsID, ok := workspaceID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[addRiskRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	risk, err := h.service.AddRisk(ctx, wsID, req.Category, req.Probability, req.Severity)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, risk)
}

// HandleListRisks handles GET /workspaces/{workspaceID}/risks requests.
func (h *Handler) HandleListRisks(w http.ResponseWriter, r *http.Request) {
	wsID, ok := workspaceID(w, r)
	if !ok {
		return
	}
	risks, err := h.service.GetRisks(r.Context(), wsID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, risks)
}

// HandleProposeAction handles POST /workspaces/{workspaceID}/actions requests.
func (h *Handler) HandleProposeAction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	wsID, ok := workspaceID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[proposeActionRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	action, err := h.service.ProposeAction(ctx, wsID, req.Description)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, action)
}

// HandleListActions handles GET /workspaces/{workspaceID}/actions requests.
func (h *Handler) HandleListActions(w http.ResponseWriter, r *http.Request) {
	wsID, ok := workspaceID(w, r)
	if !ok {
		return
	}
	actions, err := h.service.GetActions(r.Context(), wsID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, actions)
}

// HandleExecuteAction handles POST /workspaces/{workspaceID}/actions/{actionID}/execute requests.
func (h *Handler) HandleExecuteAction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	wsID, ok := workspaceID(w, r)
	if !ok {
		return
	}
	actionID, err := id.ParseActionID(chi.URLParam(r, "actionID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid action id"))
		return
	}
	req, ok := httputil.DecodeAndPrepare[executeActionRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	action, err := h.service.ExecuteAction(ctx, wsID, actionID, req.Result)
	if err != nil {
		h.logger.ErrorContext(ctx, "action execution failed",
			"request_id", requestID,
			"workspace_id", wsID.String(),
			"action_id", actionID.String(),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, action)
}

// HandleTransition handles POST /workspaces/{workspaceID}/transition requests.
func (h *Handler) HandleTransition(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	wsID, ok := workspaceID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[transitionRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	ws, err := h.service.Transition(ctx, wsID, models.Event(req.Event))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ws)
}

// HandleLock handles POST /workspaces/{workspaceID}/lock requests.
func (h *Handler) HandleLock(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	wsID, ok := workspaceID(w, r)
	if !ok {
		return
	}
	ws, err := h.service.Lock(ctx, wsID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.logger.InfoContext(ctx, "workspace locked",
		"request_id", requestID,
		"workspace_id", wsID.String(),
	)
	httputil.WriteJSON(w, http.StatusOK, ws)
}

// HandleUnlock handles POST /workspaces/{workspaceID}/unlock requests.
func (h *Handler) HandleUnlock(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	wsID, ok := workspaceID(w, r)
	if !ok {
		return
	}
	ws, err := h.service.Unlock(ctx, wsID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.logger.InfoContext(ctx, "workspace unlocked",
		"request_id", requestID,
		"workspace_id", wsID.String(),
	)
	httputil.WriteJSON(w, http.StatusOK, ws)
}

// HandleGetTrace handles GET /workspaces/{workspaceID}/trace requests.
func (h *Handler) HandleGetTrace(w http.ResponseWriter, r *http.Request) {
	wsID, ok := workspaceID(w, r)
	if !ok {
		return
	}
	traces, err := h.service.GetTrace(r.Context(), wsID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, traces)
}
