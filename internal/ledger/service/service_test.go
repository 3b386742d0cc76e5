package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"docket/internal/ledger"
	"docket/internal/ledger/service"
	"docket/internal/ledger/store"
	id "docket/pkg/domain"
	dErrors "docket/pkg/domain-errors"
	"docket/pkg/platform/sentinel"
	"docket/pkg/testutil"
)

// tamperingStore simulates out-of-band storage corruption: reads of selected
// entries pass through a mutation the write path never produced.
type tamperingStore struct {
	*store.Memory
	tampered map[id.EntryID]func(*ledger.Entry)
}

func newTamperingStore() *tamperingStore {
	return &tamperingStore{
		Memory:   store.NewMemory(),
		tampered: make(map[id.EntryID]func(*ledger.Entry)),
	}
}

func (t *tamperingStore) FindByID(ctx context.Context, entryID id.EntryID) (*ledger.Entry, error) {
	entry, err := t.Memory.FindByID(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if fn, ok := t.tampered[entry.ID]; ok {
		fn(entry)
	}
	return entry, nil
}

func (t *tamperingStore) ListByTenant(ctx context.Context, tenantID id.TenantID, limit, offset int) ([]*ledger.Entry, error) {
	entries, err := t.Memory.ListByTenant(ctx, tenantID, limit, offset)
	if err != nil {
		return nil, err
	}
	for _, entry := range entries {
		if fn, ok := t.tampered[entry.ID]; ok {
			fn(entry)
		}
	}
	return entries, nil
}

type LedgerServiceSuite struct {
	suite.Suite
	store    *tamperingStore
	svc      *service.Service
	tenantID id.TenantID
	ctx      context.Context
}

func TestLedgerServiceSuite(t *testing.T) {
	suite.Run(t, new(LedgerServiceSuite))
}

func (s *LedgerServiceSuite) SetupTest() {
	s.store = newTamperingStore()
	s.svc = service.New(s.store)
	s.tenantID = id.TenantID(uuid.New())
	s.ctx = testutil.NewAttorney(s.tenantID)
}

func (s *LedgerServiceSuite) appendN(n int) []*ledger.Entry {
	entries := make([]*ledger.Entry, 0, n)
	for i := 0; i < n; i++ {
		entry, err := s.svc.Append(s.ctx, ledger.ActionFactAdded, ledger.EntityWorkspace,
			uuid.NewString(), nil, map[string]int{"seq": i})
		s.Require().NoError(err)
		entries = append(entries, entry)
	}
	return entries
}

func (s *LedgerServiceSuite) TestAppendBuildsLinkedChain() {
	entries := s.appendN(3)

	s.Nil(entries[0].PrevID)
	s.Require().NotNil(entries[1].PrevID)
	s.Equal(entries[0].ID, *entries[1].PrevID)
	s.Require().NotNil(entries[2].PrevID)
	s.Equal(entries[1].ID, *entries[2].PrevID)

	s.Equal(entries[2].EntryHash, entries[2].ComputeHash(entries[1].EntryHash))
	for _, entry := range entries {
		s.NotEmpty(entry.EntryHash)
		s.NotEmpty(entry.Checksum)
		s.Equal(s.tenantID, entry.TenantID)
	}
}

func (s *LedgerServiceSuite) TestAppendRequiresActingTenant() {
	_, err := s.svc.Append(context.Background(), ledger.ActionFactAdded, ledger.EntityWorkspace, "x", nil, nil)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func (s *LedgerServiceSuite) TestAppendValidatesFields() {
	_, err := s.svc.Append(s.ctx, "", ledger.EntityWorkspace, "x", nil, nil)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	_, err = s.svc.Append(s.ctx, ledger.ActionFactAdded, "", "x", nil, nil)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *LedgerServiceSuite) TestVerifyEntry() {
	entries := s.appendN(2)

	s.Run("intact entry verifies", func() {
		valid, err := s.svc.VerifyEntry(s.ctx, entries[1].ID)
		s.Require().NoError(err)
		s.True(valid)
	})

	s.Run("tampered payload is reported not thrown", func() {
		s.store.tampered[entries[1].ID] = func(e *ledger.Entry) {
			e.After = []byte(`{"seq":999}`)
		}
		valid, err := s.svc.VerifyEntry(s.ctx, entries[1].ID)
		s.Require().NoError(err)
		s.False(valid)
	})
}

func (s *LedgerServiceSuite) TestVerifyAllReportsCorruption() {
	entries := s.appendN(3)

	report, err := s.svc.VerifyAll(s.ctx, s.tenantID)
	s.Require().NoError(err)
	s.True(report.Clean())
	s.Equal(3, report.Total)

	s.store.tampered[entries[1].ID] = func(e *ledger.Entry) {
		e.Action = ledger.ActionWorkspaceLocked
	}

	report, err = s.svc.VerifyAll(s.ctx, s.tenantID)
	s.Require().NoError(err)
	s.False(report.Clean())
	s.Equal(3, report.Total)
	s.Equal([]id.EntryID{entries[1].ID}, report.CorruptedIDs)
}

func (s *LedgerServiceSuite) TestVerifyAllForeignTenant() {
	_, err := s.svc.VerifyAll(s.ctx, id.TenantID(uuid.New()))
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
}

func (s *LedgerServiceSuite) TestVerifyEntryHidesForeignEntries() {
	entries := s.appendN(1)

	otherCtx := testutil.NewAttorney(id.TenantID(uuid.New()))
	_, err := s.svc.VerifyEntry(otherCtx, entries[0].ID)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *LedgerServiceSuite) TestGetTimeline() {
	workspaceID := uuid.NewString()
	_, err := s.svc.Append(s.ctx, ledger.ActionWorkspaceCreated, ledger.EntityWorkspace, workspaceID, nil, nil)
	s.Require().NoError(err)
	_, err = s.svc.Append(s.ctx, ledger.ActionFactAdded, ledger.EntityWorkspace, workspaceID, nil, nil)
	s.Require().NoError(err)
	_, err = s.svc.Append(s.ctx, ledger.ActionClientCreated, ledger.EntityClient, uuid.NewString(), nil, nil)
	s.Require().NoError(err)

	timeline, err := s.svc.GetTimeline(s.ctx, ledger.EntityWorkspace, workspaceID, s.tenantID, 0, 0)
	s.Require().NoError(err)
	s.Require().Len(timeline, 2)
	s.Equal(ledger.ActionWorkspaceCreated, timeline[0].Action)
	s.Equal(ledger.ActionFactAdded, timeline[1].Action)
}

func (s *LedgerServiceSuite) TestGetAuditTrailFiltersByAction() {
	s.appendN(2)
	_, err := s.svc.Append(s.ctx, ledger.ActionWorkspaceLocked, ledger.EntityWorkspace, uuid.NewString(), nil, nil)
	s.Require().NoError(err)

	entries, err := s.svc.GetAuditTrail(s.ctx, s.tenantID, ledger.Filter{Action: ledger.ActionWorkspaceLocked}, 0, 0)
	s.Require().NoError(err)
	s.Require().Len(entries, 1)
	s.Equal(ledger.ActionWorkspaceLocked, entries[0].Action)
}

func (s *LedgerServiceSuite) TestRecordSwallowsFailures() {
	// Missing entity id makes the underlying append fail; Record must not
	// surface it.
	s.svc.Record(s.ctx, ledger.ActionClientMatched, ledger.EntityClient, "", nil, nil)

	entries, err := s.svc.GetAuditTrail(s.ctx, s.tenantID, ledger.Filter{}, 0, 0)
	s.Require().NoError(err)
	s.Empty(entries)
}

// microsecondStore rounds timestamps on every read, matching the precision a
// TIMESTAMPTZ column hands back.
type microsecondStore struct {
	*store.Memory
}

func (m *microsecondStore) Head(ctx context.Context, tenantID id.TenantID) (*ledger.Entry, error) {
	entry, err := m.Memory.Head(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	entry.Timestamp = entry.Timestamp.Truncate(time.Microsecond)
	return entry, nil
}

func (m *microsecondStore) FindByID(ctx context.Context, entryID id.EntryID) (*ledger.Entry, error) {
	entry, err := m.Memory.FindByID(ctx, entryID)
	if err != nil {
		return nil, err
	}
	entry.Timestamp = entry.Timestamp.Truncate(time.Microsecond)
	return entry, nil
}

func (m *microsecondStore) ListByTenant(ctx context.Context, tenantID id.TenantID, limit, offset int) ([]*ledger.Entry, error) {
	entries, err := m.Memory.ListByTenant(ctx, tenantID, limit, offset)
	if err != nil {
		return nil, err
	}
	for _, entry := range entries {
		entry.Timestamp = entry.Timestamp.Truncate(time.Microsecond)
	}
	return entries, nil
}

// TestVerifyAfterTimestampRoundTrip appends with a nanosecond-precision clock
// and verifies through a store that only preserves microseconds. Untampered
// entries must still verify clean.
func (s *LedgerServiceSuite) TestVerifyAfterTimestampRoundTrip() {
	ms := &microsecondStore{Memory: store.NewMemory()}
	svc := service.New(ms)

	var last *ledger.Entry
	for i := 0; i < 3; i++ {
		entry, err := svc.Append(s.ctx, ledger.ActionFactAdded, ledger.EntityWorkspace, uuid.NewString(), nil, nil)
		s.Require().NoError(err)
		last = entry
	}

	valid, err := svc.VerifyEntry(s.ctx, last.ID)
	s.Require().NoError(err)
	s.True(valid)

	report, err := svc.VerifyAll(s.ctx, s.tenantID)
	s.Require().NoError(err)
	s.True(report.Clean())
	s.Equal(3, report.Total)
	s.Empty(report.CorruptedIDs)
}

// conflictingStore forces the first n AppendCAS calls to lose the head race.
type conflictingStore struct {
	*store.Memory
	remaining int
}

func (c *conflictingStore) AppendCAS(ctx context.Context, entry *ledger.Entry, expectedPrev *id.EntryID) error {
	if c.remaining > 0 {
		c.remaining--
		return sentinel.ErrConflict
	}
	return c.Memory.AppendCAS(ctx, entry, expectedPrev)
}

func (s *LedgerServiceSuite) TestAppendRetriesLostRaces() {
	cs := &conflictingStore{Memory: store.NewMemory(), remaining: 2}
	svc := service.New(cs)

	entry, err := svc.Append(s.ctx, ledger.ActionFactAdded, ledger.EntityWorkspace, "ws", nil, nil)
	s.Require().NoError(err)
	s.NotNil(entry)
}

func (s *LedgerServiceSuite) TestAppendGivesUpAfterRepeatedConflicts() {
	cs := &conflictingStore{Memory: store.NewMemory(), remaining: 10}
	svc := service.New(cs)

	_, err := svc.Append(s.ctx, ledger.ActionFactAdded, ledger.EntityWorkspace, "ws", nil, nil)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
}
