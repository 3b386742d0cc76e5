package store

import (
	"context"
	"sync"

	"docket/internal/ledger"
	id "docket/pkg/domain"
	"docket/pkg/platform/sentinel"
)

// Memory is the in-memory ledger store used by unit tests and local runs.
// Append uses compare-and-swap on the per-tenant chain head, mirroring the
// Postgres store's behavior under concurrent writers.
type Memory struct {
	mu       sync.RWMutex
	entries  map[id.EntryID]*ledger.Entry
	byTenant map[id.TenantID][]id.EntryID
	heads    map[id.TenantID]id.EntryID
}

func NewMemory() *Memory {
	return &Memory{
		entries:  make(map[id.EntryID]*ledger.Entry),
		byTenant: make(map[id.TenantID][]id.EntryID),
		heads:    make(map[id.TenantID]id.EntryID),
	}
}

// AppendCAS persists entry if the tenant's chain head still matches
// expectedPrev (nil for an empty chain). Returns sentinel.ErrConflict when a
// concurrent append moved the head first.
func (s *Memory) AppendCAS(_ context.Context, entry *ledger.Entry, expectedPrev *id.EntryID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	head, hasHead := s.heads[entry.TenantID]
	switch {
	case expectedPrev == nil && hasHead:
		return sentinel.ErrConflict
	case expectedPrev != nil && (!hasHead || head != *expectedPrev):
		return sentinel.ErrConflict
	}

	stored := *entry
	s.entries[entry.ID] = &stored
	s.byTenant[entry.TenantID] = append(s.byTenant[entry.TenantID], entry.ID)
	s.heads[entry.TenantID] = entry.ID
	return nil
}

// Head returns the most recent entry of a tenant's chain.
func (s *Memory) Head(_ context.Context, tenantID id.TenantID) (*ledger.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	headID, ok := s.heads[tenantID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	entry := *s.entries[headID]
	return &entry, nil
}

// FindByID returns a single entry. Tenant scoping happens in the service.
func (s *Memory) FindByID(_ context.Context, entryID id.EntryID) (*ledger.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stored, ok := s.entries[entryID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	entry := *stored
	return &entry, nil
}

// ListByTenant returns a tenant's entries in append order.
func (s *Memory) ListByTenant(_ context.Context, tenantID id.TenantID, limit, offset int) ([]*ledger.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.byTenant[tenantID]
	return s.page(ids, func(*ledger.Entry) bool { return true }, limit, offset), nil
}

// ListTimeline returns a tenant's entries for one entity in append order.
func (s *Memory) ListTimeline(_ context.Context, tenantID id.TenantID, entityType, entityID string, limit, offset int) ([]*ledger.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.byTenant[tenantID]
	return s.page(ids, func(e *ledger.Entry) bool {
		return e.EntityType == entityType && e.EntityID == entityID
	}, limit, offset), nil
}

// ListAuditTrail returns a tenant's entries matching the filter in append order.
func (s *Memory) ListAuditTrail(_ context.Context, tenantID id.TenantID, filter ledger.Filter, limit, offset int) ([]*ledger.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.byTenant[tenantID]
	return s.page(ids, func(e *ledger.Entry) bool {
		if filter.Action != "" && e.Action != filter.Action {
			return false
		}
		if !filter.Actor.IsNil() && e.ActorID != filter.Actor {
			return false
		}
		if !filter.From.IsZero() && e.Timestamp.Before(filter.From) {
			return false
		}
		if !filter.To.IsZero() && e.Timestamp.After(filter.To) {
			return false
		}
		return true
	}, limit, offset), nil
}

// page applies the match predicate and limit/offset over ordered ids.
// Caller must hold at least a read lock.
func (s *Memory) page(ids []id.EntryID, match func(*ledger.Entry) bool, limit, offset int) []*ledger.Entry {
	var out []*ledger.Entry
	skipped := 0
	for _, entryID := range ids {
		entry := s.entries[entryID]
		if !match(entry) {
			continue
		}
		if skipped < offset {
			skipped++
			continue
		}
		copied := *entry
		out = append(out, &copied)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}
