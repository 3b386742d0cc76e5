// Package service implements the reasoning workspace state machine. Every
// mutation pairs its primary write with exactly one trace entry in a single
// atomic store call, appends one ledger entry, and recomputes the workspace's
// confidence, uncertainty and quality scores.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"docket/internal/ledger"
	"docket/internal/workspace/metrics"
	"docket/internal/workspace/models"
	"docket/internal/workspace/store"

	id "docket/pkg/domain"
	dErrors "docket/pkg/domain-errors"
	"docket/pkg/platform/sentinel"
	"docket/pkg/requestcontext"
)

// Store is the persistence contract for workspaces. Apply must commit the
// mutation and its trace atomically and reject stale versions with
// sentinel.ErrConflict. InTx runs fn so that store writes made within it are
// discarded when fn fails; the ledger append rides in the same transaction.
type Store interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
	Create(ctx context.Context, ws *models.Workspace, trace *models.TraceEntry) error
	FindByID(ctx context.Context, wsID id.WorkspaceID) (*models.Workspace, error)
	Apply(ctx context.Context, mut store.Mutation) error
	FindElement(ctx context.Context, elementID id.ElementID) (*models.MissingElement, error)
	FindAction(ctx context.Context, actionID id.ActionID) (*models.ProposedAction, error)
	ListFacts(ctx context.Context, wsID id.WorkspaceID) ([]*models.Fact, error)
	ListElements(ctx context.Context, wsID id.WorkspaceID) ([]*models.MissingElement, error)
	ListRisks(ctx context.Context, wsID id.WorkspaceID) ([]*models.Risk, error)
	ListActions(ctx context.Context, wsID id.WorkspaceID) ([]*models.ProposedAction, error)
	ListTraces(ctx context.Context, wsID id.WorkspaceID) ([]*models.TraceEntry, error)
}

// Ledger is the ledger write path used by workspace mutations.
type Ledger interface {
	Append(ctx context.Context, action ledger.Action, entityType, entityID string, before, after any) (*ledger.Entry, error)
}

// maxMutationRetries bounds the optimistic-lock loop before a ConflictError
// surfaces to the caller.
const maxMutationRetries = 3

// Service drives all workspace reads and mutations.
type Service struct {
	store   Store
	ledger  Ledger
	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func New(st Store, ldg Ledger, opts ...Option) *Service {
	s := &Service{
		store:  st,
		ledger: ldg,
		logger: slog.Default(),
		tracer: otel.Tracer("docket/workspace"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create opens a workspace for one inbound source record. Uncertainty starts
// at 1.0 and confidence at 0.0: nothing is known yet.
func (s *Service) Create(ctx context.Context, sourceType string, payload, metadata json.RawMessage, clientID *id.ClientID, caseID *id.CaseID) (*models.Workspace, error) {
	ctx, span := s.tracer.Start(ctx, "workspace.Create",
		trace.WithAttributes(attribute.String("workspace.source_type", sourceType)))
	defer span.End()

	actor := requestcontext.Actor(ctx)
	if actor.TenantID.IsNil() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "acting tenant is required")
	}

	now := requestcontext.Now(ctx).UTC()
	ws, err := models.NewWorkspace(id.WorkspaceID(uuid.New()), actor.TenantID, actor.UserID, sourceType, payload, metadata, now)
	if err != nil {
		return nil, err
	}
	ws.ClientID = clientID
	ws.CaseID = caseID

	traceEntry, err := models.NewTraceEntry(id.TraceID(uuid.New()), ws.ID, "workspace_created",
		"workspace opened from inbound "+ws.SourceType+" record", nil, actor.UserID, now)
	if err != nil {
		return nil, err
	}

	err = s.store.InTx(ctx, func(ctx context.Context) error {
		if err := s.store.Create(ctx, ws, traceEntry); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to create workspace")
		}
		_, err := s.ledger.Append(ctx, ledger.ActionWorkspaceCreated, ledger.EntityWorkspace, ws.ID.String(), nil, ws)
		return err
	})
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.WorkspacesCreated.Inc()
	}
	s.logger.InfoContext(ctx, "workspace created",
		"workspace_id", ws.ID.String(),
		"tenant_id", ws.TenantID.String(),
		"source_type", ws.SourceType,
	)
	return ws, nil
}

// ledgerEvent describes the ledger entry a committed mutation produces.
type ledgerEvent struct {
	action ledger.Action
	before any
	after  any
}

// buildFunc computes one mutation against a freshly loaded workspace. ws is a
// private copy the builder may update in place; its Version already holds the
// next value and the mutation's ExpectedVersion the loaded one.
type buildFunc func(ctx context.Context, ws *models.Workspace, mut *store.Mutation) (*ledgerEvent, error)

// mutate runs the load / build / apply cycle with bounded retries on version
// conflicts. The apply and the ledger append share one store transaction, so
// a failed append rolls the mutation back instead of leaving it unledgered.
func (s *Service) mutate(ctx context.Context, wsID id.WorkspaceID, allowLocked bool, build buildFunc) (*models.Workspace, error) {
	for attempt := 0; attempt < maxMutationRetries; attempt++ {
		ws, err := s.loadTenantWorkspace(ctx, wsID)
		if err != nil {
			return nil, err
		}
		if ws.Locked && !allowLocked {
			if s.metrics != nil {
				s.metrics.MutationsRejected.WithLabelValues("locked").Inc()
			}
			return nil, dErrors.New(dErrors.CodeLocked, "workspace is locked")
		}

		mut := store.Mutation{ExpectedVersion: ws.Version}
		ws.Version++
		mut.Workspace = ws

		event, err := build(ctx, ws, &mut)
		if err != nil {
			return nil, err
		}
		if mut.Trace == nil {
			return nil, dErrors.New(dErrors.CodeInternal, "mutation produced no trace entry")
		}

		err = s.store.InTx(ctx, func(ctx context.Context) error {
			if err := s.store.Apply(ctx, mut); err != nil {
				return err
			}
			if event != nil {
				if _, err := s.ledger.Append(ctx, event.action, ledger.EntityWorkspace, ws.ID.String(), event.before, event.after); err != nil {
					return err
				}
			}
			return nil
		})
		if errors.Is(err, sentinel.ErrConflict) {
			if s.metrics != nil {
				s.metrics.MutationConflicts.Inc()
			}
			continue
		}
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "workspace not found")
		}
		if err != nil {
			var de *dErrors.DomainError
			if errors.As(err, &de) {
				return nil, err
			}
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to apply workspace mutation")
		}
		return ws, nil
	}
	return nil, dErrors.New(dErrors.CodeConflict, "workspace mutation lost repeated races, retry")
}

// AddFact records one labeled piece of knowledge. Confidence follows
// provenance; the workspace's combined confidence is recomputed with a
// noisy-or over all facts.
func (s *Service) AddFact(ctx context.Context, wsID id.WorkspaceID, label, value string, provenance models.Provenance, sourceRef string) (*models.Fact, error) {
	ctx, span := s.tracer.Start(ctx, "workspace.AddFact")
	defer span.End()

	var added *models.Fact
	_, err := s.mutate(ctx, wsID, false, func(ctx context.Context, ws *models.Workspace, mut *store.Mutation) (*ledgerEvent, error) {
		actor := requestcontext.Actor(ctx)
		now := requestcontext.Now(ctx).UTC()

		fact, err := models.NewFact(id.FactID(uuid.New()), ws.ID, label, value, provenance, sourceRef, actor.UserID, now)
		if err != nil {
			return nil, err
		}

		facts, err := s.store.ListFacts(ctx, ws.ID)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load facts")
		}
		elements, err := s.store.ListElements(ctx, ws.ID)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load missing elements")
		}
		facts = append(facts, fact)
		ws.Confidence = CombinedConfidence(facts)
		ws.Uncertainty = Uncertainty(ws.Confidence)
		ws.QualityScore = QualityScore(facts, elements)

		meta, _ := json.Marshal(map[string]any{
			"fact_id":    fact.ID.String(),
			"provenance": string(fact.Provenance),
			"confidence": fact.Confidence,
		})
		traceEntry, err := models.NewTraceEntry(id.TraceID(uuid.New()), ws.ID, "fact_added",
			"recorded fact "+fact.Label, meta, actor.UserID, now)
		if err != nil {
			return nil, err
		}

		mut.NewFact = fact
		mut.Trace = traceEntry
		added = fact
		return &ledgerEvent{action: ledger.ActionFactAdded, after: fact}, nil
	})
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.FactsAdded.WithLabelValues(string(added.Provenance)).Inc()
	}
	return added, nil
}

// AddMissingElement records an information gap. A blocking gap added while
// analysis is underway stalls the workspace.
func (s *Service) AddMissingElement(ctx context.Context, wsID id.WorkspaceID, description string, blocking bool) (*models.MissingElement, error) {
	ctx, span := s.tracer.Start(ctx, "workspace.AddMissingElement")
	defer span.End()

	var added *models.MissingElement
	_, err := s.mutate(ctx, wsID, false, func(ctx context.Context, ws *models.Workspace, mut *store.Mutation) (*ledgerEvent, error) {
		actor := requestcontext.Actor(ctx)
		now := requestcontext.Now(ctx).UTC()

		element, err := models.NewMissingElement(id.ElementID(uuid.New()), ws.ID, description, blocking, actor.UserID, now)
		if err != nil {
			return nil, err
		}

		if blocking && models.CanTransition(ws.State, models.EventBlock) {
			s.applyTransition(ws, models.EventBlock, actor.UserID, now)
		}

		meta, _ := json.Marshal(map[string]any{
			"element_id": element.ID.String(),
			"blocking":   element.Blocking,
		})
		traceEntry, err := models.NewTraceEntry(id.TraceID(uuid.New()), ws.ID, "missing_element_added",
			"recorded information gap: "+element.Description, meta, actor.UserID, now)
		if err != nil {
			return nil, err
		}

		mut.NewElement = element
		mut.Trace = traceEntry
		added = element
		return &ledgerEvent{action: ledger.ActionElementAdded, after: element}, nil
	})
	if err != nil {
		return nil, err
	}
	return added, nil
}

// ResolveMissingElement marks a gap resolved. The trace records whether the
// element was blocking; resolving the last blocking gap lets a stalled
// workspace resume analysis.
func (s *Service) ResolveMissingElement(ctx context.Context, wsID id.WorkspaceID, elementID id.ElementID, resolution string) (*models.MissingElement, error) {
	ctx, span := s.tracer.Start(ctx, "workspace.ResolveMissingElement")
	defer span.End()

	var resolved *models.MissingElement
	_, err := s.mutate(ctx, wsID, false, func(ctx context.Context, ws *models.Workspace, mut *store.Mutation) (*ledgerEvent, error) {
		actor := requestcontext.Actor(ctx)
		now := requestcontext.Now(ctx).UTC()

		element, err := s.store.FindElement(ctx, elementID)
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "missing element not found")
		}
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load missing element")
		}
		if element.WorkspaceID != ws.ID {
			return nil, dErrors.New(dErrors.CodeNotFound, "missing element not found")
		}
		if element.Resolved {
			return nil, dErrors.New(dErrors.CodeValidation, "missing element is already resolved")
		}

		before := *element
		element.Resolved = true
		element.Resolution = resolution
		resolver := actor.UserID
		element.ResolvedBy = &resolver
		element.ResolvedAt = &now

		facts, err := s.store.ListFacts(ctx, ws.ID)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load facts")
		}
		elements, err := s.store.ListElements(ctx, ws.ID)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load missing elements")
		}
		for i, e := range elements {
			if e.ID == element.ID {
				elements[i] = element
			}
		}
		ws.QualityScore = QualityScore(facts, elements)

		if element.Blocking && ws.State == models.StateBlocked && !hasUnresolvedBlocking(elements) {
			s.applyTransition(ws, models.EventUnblock, actor.UserID, now)
		}

		meta, _ := json.Marshal(map[string]any{
			"element_id": element.ID.String(),
			"blocking":   element.Blocking,
		})
		traceEntry, err := models.NewTraceEntry(id.TraceID(uuid.New()), ws.ID, "missing_element_resolved",
			"resolved information gap: "+element.Description, meta, actor.UserID, now)
		if err != nil {
			return nil, err
		}

		mut.ResolvedElement = element
		mut.Trace = traceEntry
		resolved = element
		return &ledgerEvent{action: ledger.ActionElementResolved, before: before, after: element}, nil
	})
	if err != nil {
		return nil, err
	}
	return resolved, nil
}

// AddRisk records a scored exposure. Score is probability × severity with a
// derived priority tier.
func (s *Service) AddRisk(ctx context.Context, wsID id.WorkspaceID, category string, probability, severity float64) (*models.Risk, error) {
	ctx, span := s.tracer.Start(ctx, "workspace.AddRisk")
	defer span.End()

	var added *models.Risk
	_, err := s.mutate(ctx, wsID, false, func(ctx context.Context, ws *models.Workspace, mut *store.Mutation) (*ledgerEvent, error) {
		actor := requestcontext.Actor(ctx)
		now := requestcontext.Now(ctx).UTC()

		risk, err := models.NewRisk(id.RiskID(uuid.New()), ws.ID, category, probability, severity, actor.UserID, now)
		if err != nil {
			return nil, err
		}

		meta, _ := json.Marshal(map[string]any{
			"risk_id":  risk.ID.String(),
			"score":    risk.Score,
			"priority": risk.Priority,
		})
		traceEntry, err := models.NewTraceEntry(id.TraceID(uuid.New()), ws.ID, "risk_added",
			"recorded "+risk.Priority+" risk in category "+risk.Category, meta, actor.UserID, now)
		if err != nil {
			return nil, err
		}

		mut.NewRisk = risk
		mut.Trace = traceEntry
		added = risk
		return &ledgerEvent{action: ledger.ActionRiskAdded, after: risk}, nil
	})
	if err != nil {
		return nil, err
	}
	return added, nil
}

// ProposeAction records a recommended next step.
func (s *Service) ProposeAction(ctx context.Context, wsID id.WorkspaceID, description string) (*models.ProposedAction, error) {
	ctx, span := s.tracer.Start(ctx, "workspace.ProposeAction")
	defer span.End()

	var added *models.ProposedAction
	_, err := s.mutate(ctx, wsID, false, func(ctx context.Context, ws *models.Workspace, mut *store.Mutation) (*ledgerEvent, error) {
		actor := requestcontext.Actor(ctx)
		now := requestcontext.Now(ctx).UTC()

		action, err := models.NewProposedAction(id.ActionID(uuid.New()), ws.ID, description, actor.UserID, now)
		if err != nil {
			return nil, err
		}

		traceEntry, err := models.NewTraceEntry(id.TraceID(uuid.New()), ws.ID, "action_proposed",
			"proposed action: "+action.Description, nil, actor.UserID, now)
		if err != nil {
			return nil, err
		}

		mut.NewAction = action
		mut.Trace = traceEntry
		added = action
		return &ledgerEvent{action: ledger.ActionActionProposed, after: action}, nil
	})
	if err != nil {
		return nil, err
	}
	return added, nil
}

// ExecuteAction marks a proposed action executed with the executor's identity
// and an optional free-text result.
func (s *Service) ExecuteAction(ctx context.Context, wsID id.WorkspaceID, actionID id.ActionID, result string) (*models.ProposedAction, error) {
	ctx, span := s.tracer.Start(ctx, "workspace.ExecuteAction")
	defer span.End()

	var executed *models.ProposedAction
	_, err := s.mutate(ctx, wsID, false, func(ctx context.Context, ws *models.Workspace, mut *store.Mutation) (*ledgerEvent, error) {
		actor := requestcontext.Actor(ctx)
		now := requestcontext.Now(ctx).UTC()

		action, err := s.store.FindAction(ctx, actionID)
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "proposed action not found")
		}
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load proposed action")
		}
		if action.WorkspaceID != ws.ID {
			return nil, dErrors.New(dErrors.CodeNotFound, "proposed action not found")
		}
		if action.Executed {
			return nil, dErrors.New(dErrors.CodeValidation, "action is already executed")
		}

		before := *action
		action.Executed = true
		executor := actor.UserID
		action.ExecutedBy = &executor
		action.ExecutedAt = &now
		action.Result = result

		traceEntry, err := models.NewTraceEntry(id.TraceID(uuid.New()), ws.ID, "action_executed",
			"executed action: "+action.Description, nil, actor.UserID, now)
		if err != nil {
			return nil, err
		}

		mut.ExecutedAction = action
		mut.Trace = traceEntry
		executed = action
		return &ledgerEvent{action: ledger.ActionActionExecuted, before: before, after: action}, nil
	})
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.ActionsExecuted.Inc()
	}
	return executed, nil
}

// Transition applies one explicit lifecycle event (triage, begin_analysis,
// mark_ready). Lock and unlock have their own audited operations.
func (s *Service) Transition(ctx context.Context, wsID id.WorkspaceID, event models.Event) (*models.Workspace, error) {
	ctx, span := s.tracer.Start(ctx, "workspace.Transition",
		trace.WithAttributes(attribute.String("workspace.event", string(event))))
	defer span.End()

	if event == models.EventLock || event == models.EventUnlock {
		return nil, dErrors.New(dErrors.CodeValidation, "lock and unlock are dedicated operations")
	}

	return s.mutateTransition(ctx, wsID, event, false, ledger.ActionStateChanged)
}

// Lock freezes the workspace. Every subsequent mutation is rejected until an
// audited unlock.
func (s *Service) Lock(ctx context.Context, wsID id.WorkspaceID) (*models.Workspace, error) {
	ctx, span := s.tracer.Start(ctx, "workspace.Lock")
	defer span.End()

	return s.mutateTransition(ctx, wsID, models.EventLock, false, ledger.ActionWorkspaceLocked)
}

// Unlock reopens a locked workspace. Restricted to administrators and itself
// traced and ledgered — never a silent unset.
func (s *Service) Unlock(ctx context.Context, wsID id.WorkspaceID) (*models.Workspace, error) {
	ctx, span := s.tracer.Start(ctx, "workspace.Unlock")
	defer span.End()

	actor := requestcontext.Actor(ctx)
	if !actor.IsAdmin() {
		return nil, dErrors.New(dErrors.CodeForbidden, "only administrators may unlock a workspace")
	}
	return s.mutateTransition(ctx, wsID, models.EventUnlock, true, ledger.ActionWorkspaceUnlocked)
}

func (s *Service) mutateTransition(ctx context.Context, wsID id.WorkspaceID, event models.Event, allowLocked bool, action ledger.Action) (*models.Workspace, error) {
	return s.mutate(ctx, wsID, allowLocked, func(ctx context.Context, ws *models.Workspace, mut *store.Mutation) (*ledgerEvent, error) {
		actor := requestcontext.Actor(ctx)
		now := requestcontext.Now(ctx).UTC()

		from := ws.State
		if _, err := models.Next(from, event); err != nil {
			return nil, err
		}
		s.applyTransition(ws, event, actor.UserID, now)

		meta, _ := json.Marshal(map[string]any{
			"from":  string(from),
			"to":    string(ws.State),
			"event": string(event),
		})
		step := "state_changed"
		explanation := "workspace moved from " + string(from) + " to " + string(ws.State)
		switch event {
		case models.EventLock:
			step = "workspace_locked"
			explanation = "workspace locked against further mutation"
		case models.EventUnlock:
			step = "workspace_unlocked"
			explanation = "workspace unlocked by administrator"
		}
		traceEntry, err := models.NewTraceEntry(id.TraceID(uuid.New()), ws.ID, step, explanation, meta, actor.UserID, now)
		if err != nil {
			return nil, err
		}

		mut.Trace = traceEntry
		return &ledgerEvent{
			action: action,
			before: map[string]string{"state": string(from)},
			after:  map[string]string{"state": string(ws.State), "event": string(event)},
		}, nil
	})
}

// applyTransition updates the workspace's state fields for a valid event.
// Callers have already validated the pair.
func (s *Service) applyTransition(ws *models.Workspace, event models.Event, by id.UserID, now time.Time) {
	next, err := models.Next(ws.State, event)
	if err != nil {
		return
	}
	if s.metrics != nil {
		s.metrics.Transitions.WithLabelValues(string(ws.State), string(event)).Inc()
	}
	ws.State = next
	ws.StateChangedAt = now
	ws.StateChangedBy = by
	ws.Locked = next == models.StateLocked
}

// Get returns a workspace within the acting tenant.
func (s *Service) Get(ctx context.Context, wsID id.WorkspaceID) (*models.Workspace, error) {
	return s.loadTenantWorkspace(ctx, wsID)
}

// GetFacts lists a workspace's facts in insertion order.
func (s *Service) GetFacts(ctx context.Context, wsID id.WorkspaceID) ([]*models.Fact, error) {
	if _, err := s.loadTenantWorkspace(ctx, wsID); err != nil {
		return nil, err
	}
	facts, err := s.store.ListFacts(ctx, wsID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list facts")
	}
	return facts, nil
}

// GetMissingElements lists a workspace's information gaps.
func (s *Service) GetMissingElements(ctx context.Context, wsID id.WorkspaceID) ([]*models.MissingElement, error) {
	if _, err := s.loadTenantWorkspace(ctx, wsID); err != nil {
		return nil, err
	}
	elements, err := s.store.ListElements(ctx, wsID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list missing elements")
	}
	return elements, nil
}

// GetRisks lists a workspace's risks.
func (s *Service) GetRisks(ctx context.Context, wsID id.WorkspaceID) ([]*models.Risk, error) {
	if _, err := s.loadTenantWorkspace(ctx, wsID); err != nil {
		return nil, err
	}
	risks, err := s.store.ListRisks(ctx, wsID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list risks")
	}
	return risks, nil
}

// GetActions lists a workspace's proposed actions.
func (s *Service) GetActions(ctx context.Context, wsID id.WorkspaceID) ([]*models.ProposedAction, error) {
	if _, err := s.loadTenantWorkspace(ctx, wsID); err != nil {
		return nil, err
	}
	actions, err := s.store.ListActions(ctx, wsID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list proposed actions")
	}
	return actions, nil
}

// GetTrace returns the append-only reasoning narrative in order.
func (s *Service) GetTrace(ctx context.Context, wsID id.WorkspaceID) ([]*models.TraceEntry, error) {
	if _, err := s.loadTenantWorkspace(ctx, wsID); err != nil {
		return nil, err
	}
	traces, err := s.store.ListTraces(ctx, wsID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list reasoning trace")
	}
	return traces, nil
}

// loadTenantWorkspace fetches a workspace and enforces the tenant boundary
// without revealing whether an out-of-tenant workspace exists.
func (s *Service) loadTenantWorkspace(ctx context.Context, wsID id.WorkspaceID) (*models.Workspace, error) {
	actor := requestcontext.Actor(ctx)
	if actor.TenantID.IsNil() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "acting tenant is required")
	}
	ws, err := s.store.FindByID(ctx, wsID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "workspace not found")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load workspace")
	}
	if ws.TenantID != actor.TenantID {
		if s.metrics != nil {
			s.metrics.MutationsRejected.WithLabelValues("tenant").Inc()
		}
		return nil, dErrors.New(dErrors.CodeNotFound, "workspace not found")
	}
	return ws, nil
}
