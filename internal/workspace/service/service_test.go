package service_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"docket/internal/ledger"
	ledgerservice "docket/internal/ledger/service"
	ledgerstore "docket/internal/ledger/store"
	"docket/internal/workspace/models"
	"docket/internal/workspace/service"
	"docket/internal/workspace/store"
	id "docket/pkg/domain"
	dErrors "docket/pkg/domain-errors"
	"docket/pkg/testutil"
)

type WorkspaceServiceSuite struct {
	suite.Suite
	store    *store.Memory
	ledger   *ledgerservice.Service
	svc      *service.Service
	tenantID id.TenantID
	ctx      context.Context
}

func TestWorkspaceServiceSuite(t *testing.T) {
	suite.Run(t, new(WorkspaceServiceSuite))
}

func (s *WorkspaceServiceSuite) SetupTest() {
	s.store = store.NewMemory()
	s.ledger = ledgerservice.New(ledgerstore.NewMemory())
	s.svc = service.New(s.store, s.ledger)
	s.tenantID = id.TenantID(uuid.New())
	s.ctx = testutil.NewAttorney(s.tenantID)
}

func (s *WorkspaceServiceSuite) create() *models.Workspace {
	ws, err := s.svc.Create(s.ctx, "email", []byte(`{"subject":"eviction notice"}`), nil, nil, nil)
	s.Require().NoError(err)
	return ws
}

// analyzing walks a fresh workspace to the analyzing state.
func (s *WorkspaceServiceSuite) analyzing() *models.Workspace {
	ws := s.create()
	_, err := s.svc.Transition(s.ctx, ws.ID, models.EventTriage)
	s.Require().NoError(err)
	ws2, err := s.svc.Transition(s.ctx, ws.ID, models.EventBeginAnalysis)
	s.Require().NoError(err)
	return ws2
}

func (s *WorkspaceServiceSuite) TestCreate() {
	ws := s.create()

	s.Equal(models.StateReceived, ws.State)
	s.Equal(1.0, ws.Uncertainty)
	s.Equal(0.0, ws.Confidence)
	s.Equal(0.0, ws.QualityScore)
	s.Equal(int64(1), ws.Version)

	traces, err := s.svc.GetTrace(s.ctx, ws.ID)
	s.Require().NoError(err)
	s.Require().Len(traces, 1)
	s.Equal("workspace_created", traces[0].Step)

	timeline, err := s.ledger.GetTimeline(s.ctx, ledger.EntityWorkspace, ws.ID.String(), s.tenantID, 0, 0)
	s.Require().NoError(err)
	s.Require().Len(timeline, 1)
	s.Equal(ledger.ActionWorkspaceCreated, timeline[0].Action)
}

func (s *WorkspaceServiceSuite) TestAddFactRecomputesScores() {
	ws := s.create()

	_, err := s.svc.AddFact(s.ctx, ws.ID, "lease_start", "2024-03-01", models.ProvenanceUser, "")
	s.Require().NoError(err)
	_, err = s.svc.AddFact(s.ctx, ws.ID, "notice_date", "2024-06-15", models.ProvenanceInferred, "")
	s.Require().NoError(err)

	got, err := s.svc.Get(s.ctx, ws.ID)
	s.Require().NoError(err)

	// noisy-or: 1 - (1-0.8)(1-0.6)
	s.InDelta(0.92, got.Confidence, 1e-9)
	s.InDelta(0.08, got.Uncertainty, 1e-9)
	// no blocking gaps, average confidence 0.7
	s.InDelta(0.85, got.QualityScore, 1e-9)
	s.Equal(int64(3), got.Version)
}

func (s *WorkspaceServiceSuite) TestEveryMutationLeavesOneTrace() {
	ws := s.analyzing()

	_, err := s.svc.AddFact(s.ctx, ws.ID, "lease_start", "2024-03-01", models.ProvenanceExtracted, "doc:1")
	s.Require().NoError(err)
	_, err = s.svc.AddRisk(s.ctx, ws.ID, "deadline", 0.6, 0.5)
	s.Require().NoError(err)
	action, err := s.svc.ProposeAction(s.ctx, ws.ID, "file response before the deadline")
	s.Require().NoError(err)
	_, err = s.svc.ExecuteAction(s.ctx, ws.ID, action.ID, "response filed")
	s.Require().NoError(err)

	traces, err := s.svc.GetTrace(s.ctx, ws.ID)
	s.Require().NoError(err)

	// created + 2 transitions + fact + risk + propose + execute
	s.Require().Len(traces, 7)
	steps := make([]string, 0, len(traces))
	for _, tr := range traces {
		steps = append(steps, tr.Step)
	}
	s.Equal([]string{
		"workspace_created",
		"state_changed",
		"state_changed",
		"fact_added",
		"risk_added",
		"action_proposed",
		"action_executed",
	}, steps)
}

func (s *WorkspaceServiceSuite) TestBlockingElementStallsAnalysis() {
	ws := s.analyzing()

	element, err := s.svc.AddMissingElement(s.ctx, ws.ID, "signed lease agreement", true)
	s.Require().NoError(err)

	got, err := s.svc.Get(s.ctx, ws.ID)
	s.Require().NoError(err)
	s.Equal(models.StateBlocked, got.State)

	s.Run("resolving the last blocking gap resumes analysis", func() {
		_, err := s.svc.ResolveMissingElement(s.ctx, ws.ID, element.ID, "client supplied the lease")
		s.Require().NoError(err)

		got, err := s.svc.Get(s.ctx, ws.ID)
		s.Require().NoError(err)
		s.Equal(models.StateAnalyzing, got.State)
	})
}

func (s *WorkspaceServiceSuite) TestUnblockWaitsForAllBlockingGaps() {
	ws := s.analyzing()

	first, err := s.svc.AddMissingElement(s.ctx, ws.ID, "signed lease agreement", true)
	s.Require().NoError(err)
	second, err := s.svc.AddMissingElement(s.ctx, ws.ID, "notice of termination", true)
	s.Require().NoError(err)

	_, err = s.svc.ResolveMissingElement(s.ctx, ws.ID, first.ID, "received")
	s.Require().NoError(err)
	got, err := s.svc.Get(s.ctx, ws.ID)
	s.Require().NoError(err)
	s.Equal(models.StateBlocked, got.State)

	_, err = s.svc.ResolveMissingElement(s.ctx, ws.ID, second.ID, "received")
	s.Require().NoError(err)
	got, err = s.svc.Get(s.ctx, ws.ID)
	s.Require().NoError(err)
	s.Equal(models.StateAnalyzing, got.State)
}

func (s *WorkspaceServiceSuite) TestNonBlockingElementDoesNotStall() {
	ws := s.analyzing()

	_, err := s.svc.AddMissingElement(s.ctx, ws.ID, "utility bills would help", false)
	s.Require().NoError(err)

	got, err := s.svc.Get(s.ctx, ws.ID)
	s.Require().NoError(err)
	s.Equal(models.StateAnalyzing, got.State)
}

func (s *WorkspaceServiceSuite) TestResolveIsNotRepeatable() {
	ws := s.analyzing()
	element, err := s.svc.AddMissingElement(s.ctx, ws.ID, "signed lease agreement", false)
	s.Require().NoError(err)

	_, err = s.svc.ResolveMissingElement(s.ctx, ws.ID, element.ID, "received")
	s.Require().NoError(err)

	_, err = s.svc.ResolveMissingElement(s.ctx, ws.ID, element.ID, "received again")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *WorkspaceServiceSuite) TestExecuteActionIsNotRepeatable() {
	ws := s.analyzing()
	action, err := s.svc.ProposeAction(s.ctx, ws.ID, "request the lease")
	s.Require().NoError(err)

	executed, err := s.svc.ExecuteAction(s.ctx, ws.ID, action.ID, "sent request")
	s.Require().NoError(err)
	s.True(executed.Executed)
	s.NotNil(executed.ExecutedBy)
	s.NotNil(executed.ExecutedAt)

	_, err = s.svc.ExecuteAction(s.ctx, ws.ID, action.ID, "sent again")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *WorkspaceServiceSuite) TestTransitionRejectsInvalidEvents() {
	ws := s.create()

	_, err := s.svc.Transition(s.ctx, ws.ID, models.EventMarkReady)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	_, err = s.svc.Transition(s.ctx, ws.ID, models.EventLock)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *WorkspaceServiceSuite) TestLockRejectsEveryMutation() {
	ws := s.analyzing()
	_, err := s.svc.AddFact(s.ctx, ws.ID, "lease_start", "2024-03-01", models.ProvenanceUser, "")
	s.Require().NoError(err)
	element, err := s.svc.AddMissingElement(s.ctx, ws.ID, "notice copy", false)
	s.Require().NoError(err)
	action, err := s.svc.ProposeAction(s.ctx, ws.ID, "request notice copy")
	s.Require().NoError(err)

	locked, err := s.svc.Lock(s.ctx, ws.ID)
	s.Require().NoError(err)
	s.True(locked.Locked)
	s.Equal(models.StateLocked, locked.State)

	factsBefore, err := s.svc.GetFacts(s.ctx, ws.ID)
	s.Require().NoError(err)
	tracesBefore, err := s.svc.GetTrace(s.ctx, ws.ID)
	s.Require().NoError(err)

	_, err = s.svc.AddFact(s.ctx, ws.ID, "another", "value", models.ProvenanceUser, "")
	s.True(dErrors.HasCode(err, dErrors.CodeLocked))
	_, err = s.svc.AddMissingElement(s.ctx, ws.ID, "more", false)
	s.True(dErrors.HasCode(err, dErrors.CodeLocked))
	_, err = s.svc.ResolveMissingElement(s.ctx, ws.ID, element.ID, "done")
	s.True(dErrors.HasCode(err, dErrors.CodeLocked))
	_, err = s.svc.AddRisk(s.ctx, ws.ID, "deadline", 0.5, 0.5)
	s.True(dErrors.HasCode(err, dErrors.CodeLocked))
	_, err = s.svc.ExecuteAction(s.ctx, ws.ID, action.ID, "done")
	s.True(dErrors.HasCode(err, dErrors.CodeLocked))
	_, err = s.svc.Transition(s.ctx, ws.ID, models.EventBeginAnalysis)
	s.True(dErrors.HasCode(err, dErrors.CodeLocked))
	_, err = s.svc.Lock(s.ctx, ws.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeLocked))

	// Rejected mutations leave no residue.
	factsAfter, err := s.svc.GetFacts(s.ctx, ws.ID)
	s.Require().NoError(err)
	s.Len(factsAfter, len(factsBefore))
	tracesAfter, err := s.svc.GetTrace(s.ctx, ws.ID)
	s.Require().NoError(err)
	s.Len(tracesAfter, len(tracesBefore))

	// Reads still work.
	_, err = s.svc.Get(s.ctx, ws.ID)
	s.NoError(err)
}

func (s *WorkspaceServiceSuite) TestUnlockIsAdminOnly() {
	ws := s.analyzing()
	_, err := s.svc.Lock(s.ctx, ws.ID)
	s.Require().NoError(err)

	_, err = s.svc.Unlock(s.ctx, ws.ID)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))

	adminCtx := testutil.NewAdmin(s.tenantID)
	unlocked, err := s.svc.Unlock(adminCtx, ws.ID)
	s.Require().NoError(err)
	s.False(unlocked.Locked)
	s.Equal(models.StateAnalyzing, unlocked.State)

	traces, err := s.svc.GetTrace(s.ctx, ws.ID)
	s.Require().NoError(err)
	last := traces[len(traces)-1]
	s.Equal("workspace_unlocked", last.Step)
}

func (s *WorkspaceServiceSuite) TestLockFromEveryLiveState() {
	for _, walk := range []struct {
		name   string
		events []models.Event
	}{
		{"received", nil},
		{"triaged", []models.Event{models.EventTriage}},
		{"analyzing", []models.Event{models.EventTriage, models.EventBeginAnalysis}},
		{"ready", []models.Event{models.EventTriage, models.EventBeginAnalysis, models.EventMarkReady}},
	} {
		s.Run(walk.name, func() {
			ws := s.create()
			for _, event := range walk.events {
				_, err := s.svc.Transition(s.ctx, ws.ID, event)
				s.Require().NoError(err)
			}
			locked, err := s.svc.Lock(s.ctx, ws.ID)
			s.Require().NoError(err)
			s.Equal(models.StateLocked, locked.State)
		})
	}
}

func (s *WorkspaceServiceSuite) TestTenantIsolation() {
	ws := s.create()
	otherCtx := testutil.NewAttorney(id.TenantID(uuid.New()))

	// A foreign workspace reads as absent, never as forbidden.
	_, err := s.svc.Get(otherCtx, ws.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	_, err = s.svc.AddFact(otherCtx, ws.ID, "label", "value", models.ProvenanceUser, "")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *WorkspaceServiceSuite) TestChildrenAreWorkspaceScoped() {
	wsA := s.analyzing()
	wsB := s.analyzing()

	element, err := s.svc.AddMissingElement(s.ctx, wsA.ID, "signed lease agreement", false)
	s.Require().NoError(err)

	_, err = s.svc.ResolveMissingElement(s.ctx, wsB.ID, element.ID, "wrong workspace")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *WorkspaceServiceSuite) TestMutationsAreLedgered() {
	ws := s.create()
	_, err := s.svc.AddFact(s.ctx, ws.ID, "lease_start", "2024-03-01", models.ProvenanceUser, "")
	s.Require().NoError(err)
	_, err = s.svc.Transition(s.ctx, ws.ID, models.EventTriage)
	s.Require().NoError(err)

	timeline, err := s.ledger.GetTimeline(s.ctx, ledger.EntityWorkspace, ws.ID.String(), s.tenantID, 0, 0)
	s.Require().NoError(err)
	s.Require().Len(timeline, 3)
	s.Equal(ledger.ActionWorkspaceCreated, timeline[0].Action)
	s.Equal(ledger.ActionFactAdded, timeline[1].Action)
	s.Equal(ledger.ActionStateChanged, timeline[2].Action)
}

// flakyLedger delegates to a real ledger until told to fail.
type flakyLedger struct {
	*ledgerservice.Service
	fail bool
}

func (f *flakyLedger) Append(ctx context.Context, action ledger.Action, entityType, entityID string, before, after any) (*ledger.Entry, error) {
	if f.fail {
		return nil, dErrors.New(dErrors.CodeInternal, "ledger unavailable")
	}
	return f.Service.Append(ctx, action, entityType, entityID, before, after)
}

func (s *WorkspaceServiceSuite) TestFailedLedgerAppendRollsBackMutation() {
	flaky := &flakyLedger{Service: s.ledger}
	svc := service.New(s.store, flaky)

	ws, err := svc.Create(s.ctx, "email", []byte(`{"subject":"eviction notice"}`), nil, nil, nil)
	s.Require().NoError(err)

	flaky.fail = true
	_, err = svc.AddFact(s.ctx, ws.ID, "lease_start", "2024-03-01", models.ProvenanceUser, "")
	s.Require().Error(err)

	got, err := svc.Get(s.ctx, ws.ID)
	s.Require().NoError(err)
	s.Equal(int64(1), got.Version, "failed mutation must not bump the version")

	facts, err := svc.GetFacts(s.ctx, ws.ID)
	s.Require().NoError(err)
	s.Empty(facts)

	traces, err := svc.GetTrace(s.ctx, ws.ID)
	s.Require().NoError(err)
	s.Len(traces, 1, "only the creation trace survives")
}

func (s *WorkspaceServiceSuite) TestMissingWorkspace() {
	_, err := s.svc.Get(s.ctx, id.WorkspaceID(uuid.New()))
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}
