//go:build integration

package store_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"docket/internal/workspace/models"
	"docket/internal/workspace/store"
	id "docket/pkg/domain"
	"docket/pkg/platform/sentinel"
	"docket/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.Postgres
	tenantID id.TenantID
	userID   id.UserID
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.store = store.NewPostgres(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	ctx := context.Background()
	err := s.postgres.TruncateTables(ctx,
		"reasoning_traces", "proposed_actions", "risks", "missing_elements", "facts", "workspaces")
	s.Require().NoError(err)
	s.tenantID = id.TenantID(uuid.New())
	s.userID = id.UserID(uuid.New())
}

func (s *PostgresStoreSuite) createWorkspace() *models.Workspace {
	now := time.Now().UTC()
	ws, err := models.NewWorkspace(id.WorkspaceID(uuid.New()), s.tenantID, s.userID,
		"email", []byte(`{"subject":"intake"}`), nil, now)
	s.Require().NoError(err)

	trace, err := models.NewTraceEntry(id.TraceID(uuid.New()), ws.ID, "workspace_created",
		"workspace opened", nil, s.userID, now)
	s.Require().NoError(err)

	s.Require().NoError(s.store.Create(context.Background(), ws, trace))
	return ws
}

func (s *PostgresStoreSuite) newFactMutation(ws *models.Workspace) store.Mutation {
	now := time.Now().UTC()
	fact, err := models.NewFact(id.FactID(uuid.New()), ws.ID, "lease_start", "2024-03-01",
		models.ProvenanceUser, "", s.userID, now)
	s.Require().NoError(err)
	trace, err := models.NewTraceEntry(id.TraceID(uuid.New()), ws.ID, "fact_added",
		"recorded fact "+fact.Label, nil, s.userID, now)
	s.Require().NoError(err)

	updated := *ws
	expected := updated.Version
	updated.Version++
	updated.Confidence = fact.Confidence
	updated.Uncertainty = 1 - fact.Confidence
	return store.Mutation{
		Workspace:       &updated,
		ExpectedVersion: expected,
		NewFact:         fact,
		Trace:           trace,
	}
}

func (s *PostgresStoreSuite) TestCreateAndFind() {
	ws := s.createWorkspace()

	found, err := s.store.FindByID(context.Background(), ws.ID)
	s.Require().NoError(err)
	s.Equal(ws.ID, found.ID)
	s.Equal(models.StateReceived, found.State)
	s.Equal(int64(1), found.Version)
	s.Equal(1.0, found.Uncertainty)

	traces, err := s.store.ListTraces(context.Background(), ws.ID)
	s.Require().NoError(err)
	s.Require().Len(traces, 1)
	s.Equal("workspace_created", traces[0].Step)
}

func (s *PostgresStoreSuite) TestApplyCommitsMutationAndTrace() {
	ctx := context.Background()
	ws := s.createWorkspace()

	mut := s.newFactMutation(ws)
	s.Require().NoError(s.store.Apply(ctx, mut))

	found, err := s.store.FindByID(ctx, ws.ID)
	s.Require().NoError(err)
	s.Equal(int64(2), found.Version)
	s.Equal(0.8, found.Confidence)

	facts, err := s.store.ListFacts(ctx, ws.ID)
	s.Require().NoError(err)
	s.Len(facts, 1)

	traces, err := s.store.ListTraces(ctx, ws.ID)
	s.Require().NoError(err)
	s.Len(traces, 2)
}

func (s *PostgresStoreSuite) TestApplyRejectsStaleVersion() {
	ctx := context.Background()
	ws := s.createWorkspace()

	first := s.newFactMutation(ws)
	s.Require().NoError(s.store.Apply(ctx, first))

	// Computed from the same loaded version; the store must reject it whole.
	stale := s.newFactMutation(ws)
	err := s.store.Apply(ctx, stale)
	s.ErrorIs(err, sentinel.ErrConflict)

	facts, err := s.store.ListFacts(ctx, ws.ID)
	s.Require().NoError(err)
	s.Len(facts, 1, "rejected mutation must not write its fact")

	traces, err := s.store.ListTraces(ctx, ws.ID)
	s.Require().NoError(err)
	s.Len(traces, 2, "rejected mutation must not write its trace")
}

func (s *PostgresStoreSuite) TestApplyMissingWorkspace() {
	ws := s.createWorkspace()
	mut := s.newFactMutation(ws)
	ghost := *mut.Workspace
	ghost.ID = id.WorkspaceID(uuid.New())
	mut.Workspace = &ghost
	mut.NewFact.WorkspaceID = ghost.ID
	mut.Trace.WorkspaceID = ghost.ID

	err := s.store.Apply(context.Background(), mut)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

// TestConcurrentMutationsSerialize verifies that racing writers computed from
// the same version commit exactly once.
func (s *PostgresStoreSuite) TestConcurrentMutationsSerialize() {
	ctx := context.Background()
	ws := s.createWorkspace()

	const goroutines = 20
	muts := make([]store.Mutation, goroutines)
	for i := range muts {
		muts[i] = s.newFactMutation(ws)
	}

	var wg sync.WaitGroup
	var successCount atomic.Int32
	var conflictCount atomic.Int32

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(mut store.Mutation) {
			defer wg.Done()
			err := s.store.Apply(ctx, mut)
			if err == nil {
				successCount.Add(1)
			} else if errors.Is(err, sentinel.ErrConflict) {
				conflictCount.Add(1)
			}
		}(muts[i])
	}
	wg.Wait()

	s.Equal(int32(1), successCount.Load(), "exactly one mutation should commit")
	s.Equal(int32(goroutines-1), conflictCount.Load(), "all others should conflict")

	found, err := s.store.FindByID(ctx, ws.ID)
	s.Require().NoError(err)
	s.Equal(int64(2), found.Version)

	facts, err := s.store.ListFacts(ctx, ws.ID)
	s.Require().NoError(err)
	s.Len(facts, 1)
}

// TestTraceImmutabilityTriggers verifies the reasoning trace cannot be
// rewritten or pruned even with direct SQL access.
func (s *PostgresStoreSuite) TestTraceImmutabilityTriggers() {
	ctx := context.Background()
	ws := s.createWorkspace()

	traces, err := s.store.ListTraces(ctx, ws.ID)
	s.Require().NoError(err)
	s.Require().Len(traces, 1)

	_, err = s.postgres.DB.ExecContext(ctx,
		`UPDATE reasoning_traces SET explanation = 'rewritten' WHERE id = $1`,
		uuid.UUID(traces[0].ID))
	s.Require().Error(err)
	s.Contains(err.Error(), "immutable")

	_, err = s.postgres.DB.ExecContext(ctx,
		`DELETE FROM reasoning_traces WHERE id = $1`, uuid.UUID(traces[0].ID))
	s.Require().Error(err)
	s.Contains(err.Error(), "immutable")
}

func (s *PostgresStoreSuite) TestResolveElementRoundTrip() {
	ctx := context.Background()
	ws := s.createWorkspace()
	now := time.Now().UTC()

	element, err := models.NewMissingElement(id.ElementID(uuid.New()), ws.ID,
		"signed lease agreement", true, s.userID, now)
	s.Require().NoError(err)
	trace, err := models.NewTraceEntry(id.TraceID(uuid.New()), ws.ID, "missing_element_added",
		"recorded gap", nil, s.userID, now)
	s.Require().NoError(err)

	updated := *ws
	updated.Version = 2
	s.Require().NoError(s.store.Apply(ctx, store.Mutation{
		Workspace:       &updated,
		ExpectedVersion: 1,
		NewElement:      element,
		Trace:           trace,
	}))

	element.Resolved = true
	element.Resolution = "client supplied the lease"
	resolvedBy := s.userID
	element.ResolvedBy = &resolvedBy
	resolvedAt := now.Add(time.Minute)
	element.ResolvedAt = &resolvedAt

	trace2, err := models.NewTraceEntry(id.TraceID(uuid.New()), ws.ID, "missing_element_resolved",
		"resolved gap", nil, s.userID, resolvedAt)
	s.Require().NoError(err)

	resolved := updated
	resolved.Version = 3
	s.Require().NoError(s.store.Apply(ctx, store.Mutation{
		Workspace:       &resolved,
		ExpectedVersion: 2,
		ResolvedElement: element,
		Trace:           trace2,
	}))

	found, err := s.store.FindElement(ctx, element.ID)
	s.Require().NoError(err)
	s.True(found.Resolved)
	s.Equal("client supplied the lease", found.Resolution)
	s.Require().NotNil(found.ResolvedBy)
	s.Equal(s.userID, *found.ResolvedBy)
	s.NotNil(found.ResolvedAt)
}
