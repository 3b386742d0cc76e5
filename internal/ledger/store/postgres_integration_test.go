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

	"docket/internal/ledger"
	"docket/internal/ledger/service"
	"docket/internal/ledger/store"
	id "docket/pkg/domain"
	"docket/pkg/platform/sentinel"
	"docket/pkg/testutil"
	"docket/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.Postgres
	tenantID id.TenantID
	clockMu  sync.Mutex
	clock    time.Time
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
	err := s.postgres.TruncateTables(ctx, "ledger_entries")
	s.Require().NoError(err)
	s.tenantID = id.TenantID(uuid.New())
	s.clock = time.Now().UTC().Truncate(time.Microsecond)
}

// nextTime hands out strictly increasing microsecond timestamps so ordering
// assertions survive Postgres timestamp precision.
func (s *PostgresStoreSuite) nextTime() time.Time {
	s.clockMu.Lock()
	defer s.clockMu.Unlock()
	s.clock = s.clock.Add(time.Millisecond)
	return s.clock
}

// newEntry builds a fully hashed entry chained onto prev (nil for genesis).
func (s *PostgresStoreSuite) newEntry(prev *ledger.Entry) *ledger.Entry {
	entry := &ledger.Entry{
		ID:         id.EntryID(uuid.New()),
		TenantID:   s.tenantID,
		ActorID:    id.UserID(uuid.New()),
		ActorEmail: "test@example.com",
		ActorRole:  "attorney",
		Action:     ledger.ActionFactAdded,
		EntityType: ledger.EntityWorkspace,
		EntityID:   uuid.NewString(),
		Timestamp:  s.nextTime(),
	}
	prevHash := ""
	if prev != nil {
		prevID := prev.ID
		entry.PrevID = &prevID
		prevHash = prev.EntryHash
	}
	entry.EntryHash = entry.ComputeHash(prevHash)
	entry.Checksum = entry.ComputeChecksum()
	return entry
}

func (s *PostgresStoreSuite) append(prev *ledger.Entry) *ledger.Entry {
	entry := s.newEntry(prev)
	var expected *id.EntryID
	if prev != nil {
		prevID := prev.ID
		expected = &prevID
	}
	s.Require().NoError(s.store.AppendCAS(context.Background(), entry, expected))
	return entry
}

func (s *PostgresStoreSuite) TestAppendAndHead() {
	ctx := context.Background()

	_, err := s.store.Head(ctx, s.tenantID)
	s.ErrorIs(err, sentinel.ErrNotFound)

	first := s.append(nil)
	second := s.append(first)

	head, err := s.store.Head(ctx, s.tenantID)
	s.Require().NoError(err)
	s.Equal(second.ID, head.ID)
	s.Require().NotNil(head.PrevID)
	s.Equal(first.ID, *head.PrevID)
	s.Equal(second.EntryHash, head.EntryHash)
	s.Equal(second.Checksum, head.Checksum)
}

func (s *PostgresStoreSuite) TestAppendCASRejectsClaimedPredecessor() {
	ctx := context.Background()
	first := s.append(nil)

	winner := s.newEntry(first)
	prevID := first.ID
	s.Require().NoError(s.store.AppendCAS(ctx, winner, &prevID))

	loser := s.newEntry(first)
	err := s.store.AppendCAS(ctx, loser, &prevID)
	s.ErrorIs(err, sentinel.ErrConflict)
}

func (s *PostgresStoreSuite) TestAppendCASRejectsSecondGenesis() {
	ctx := context.Background()
	s.append(nil)

	// NULLS NOT DISTINCT makes two genesis entries collide too.
	err := s.store.AppendCAS(ctx, s.newEntry(nil), nil)
	s.ErrorIs(err, sentinel.ErrConflict)
}

// TestConcurrentAppendsOnOneHead verifies that concurrent writers racing for
// the same predecessor produce exactly one chain extension.
func (s *PostgresStoreSuite) TestConcurrentAppendsOnOneHead() {
	ctx := context.Background()
	head := s.append(nil)
	headID := head.ID

	const goroutines = 20
	var wg sync.WaitGroup
	var successCount atomic.Int32
	var conflictCount atomic.Int32

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			entry := s.newEntry(head)
			err := s.store.AppendCAS(ctx, entry, &headID)
			if err == nil {
				successCount.Add(1)
			} else if errors.Is(err, sentinel.ErrConflict) {
				conflictCount.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), successCount.Load(), "exactly one append should win the head")
	s.Equal(int32(goroutines-1), conflictCount.Load(), "all others should conflict")

	entries, err := s.store.ListByTenant(ctx, s.tenantID, 0, 0)
	s.Require().NoError(err)
	s.Len(entries, 2)
}

func (s *PostgresStoreSuite) TestSeparateTenantChainsDoNotCollide() {
	ctx := context.Background()
	s.append(nil)

	other := s.newEntry(nil)
	other.TenantID = id.TenantID(uuid.New())
	other.EntryHash = other.ComputeHash("")
	other.Checksum = other.ComputeChecksum()
	s.Require().NoError(s.store.AppendCAS(ctx, other, nil))
}

// TestImmutabilityTriggers verifies that direct SQL rewrites are rejected at
// the database layer, independent of application code.
func (s *PostgresStoreSuite) TestImmutabilityTriggers() {
	ctx := context.Background()
	entry := s.append(nil)

	s.Run("update is blocked", func() {
		_, err := s.postgres.DB.ExecContext(ctx,
			`UPDATE ledger_entries SET action = 'workspace_locked' WHERE id = $1`,
			uuid.UUID(entry.ID))
		s.Require().Error(err)
		s.Contains(err.Error(), "immutable")
	})

	s.Run("delete is blocked", func() {
		_, err := s.postgres.DB.ExecContext(ctx,
			`DELETE FROM ledger_entries WHERE id = $1`, uuid.UUID(entry.ID))
		s.Require().Error(err)
		s.Contains(err.Error(), "immutable")
	})

	s.Run("row is untouched", func() {
		found, err := s.store.FindByID(ctx, entry.ID)
		s.Require().NoError(err)
		s.Equal(ledger.ActionFactAdded, found.Action)
	})
}

func (s *PostgresStoreSuite) TestTimelineAndAuditTrail() {
	ctx := context.Background()
	workspaceID := uuid.NewString()

	first := s.newEntry(nil)
	first.Action = ledger.ActionWorkspaceCreated
	first.EntityID = workspaceID
	first.EntryHash = first.ComputeHash("")
	first.Checksum = first.ComputeChecksum()
	s.Require().NoError(s.store.AppendCAS(ctx, first, nil))

	second := s.newEntry(first)
	second.EntityID = workspaceID
	second.EntryHash = second.ComputeHash(first.EntryHash)
	second.Checksum = second.ComputeChecksum()
	prevID := first.ID
	s.Require().NoError(s.store.AppendCAS(ctx, second, &prevID))

	third := s.append(second)

	timeline, err := s.store.ListTimeline(ctx, s.tenantID, ledger.EntityWorkspace, workspaceID, 0, 0)
	s.Require().NoError(err)
	s.Require().Len(timeline, 2)
	s.Equal(first.ID, timeline[0].ID)
	s.Equal(second.ID, timeline[1].ID)

	trail, err := s.store.ListAuditTrail(ctx, s.tenantID, ledger.Filter{Action: ledger.ActionFactAdded}, 0, 0)
	s.Require().NoError(err)
	s.Require().Len(trail, 2)
	s.Equal(second.ID, trail[0].ID)
	s.Equal(third.ID, trail[1].ID)

	trail, err = s.store.ListAuditTrail(ctx, s.tenantID, ledger.Filter{Actor: first.ActorID}, 0, 0)
	s.Require().NoError(err)
	s.Require().Len(trail, 1)
	s.Equal(first.ID, trail[0].ID)
}

// TestServiceVerifiesAfterRoundTrip drives the full write path with a live
// nanosecond clock and verifies through the database: the stored entries must
// re-hash identically despite TIMESTAMPTZ keeping only microseconds.
func (s *PostgresStoreSuite) TestServiceVerifiesAfterRoundTrip() {
	svc := service.New(s.store)
	ctx := testutil.NewAttorney(s.tenantID)

	var last *ledger.Entry
	for i := 0; i < 3; i++ {
		entry, err := svc.Append(ctx, ledger.ActionFactAdded, ledger.EntityWorkspace, uuid.NewString(), nil, nil)
		s.Require().NoError(err)
		last = entry
	}

	valid, err := svc.VerifyEntry(ctx, last.ID)
	s.Require().NoError(err)
	s.True(valid)

	report, err := svc.VerifyAll(ctx, s.tenantID)
	s.Require().NoError(err)
	s.True(report.Clean())
	s.Equal(3, report.Total)
}

func (s *PostgresStoreSuite) TestNotFound() {
	_, err := s.store.FindByID(context.Background(), id.EntryID(uuid.New()))
	s.ErrorIs(err, sentinel.ErrNotFound)
}
