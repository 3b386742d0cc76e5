package service

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"docket/internal/ledger"
	id "docket/pkg/domain"
	dErrors "docket/pkg/domain-errors"
	"docket/pkg/platform/sentinel"
	"docket/pkg/requestcontext"
)

// VerifyEntry recomputes one entry's chain hash and checksum from its stored
// fields. A false result means corruption; it is reported, never thrown, so
// the system stays queryable while operators investigate.
func (s *Service) VerifyEntry(ctx context.Context, entryID id.EntryID) (bool, error) {
	entry, err := s.loadTenantEntry(ctx, entryID)
	if err != nil {
		return false, err
	}

	prevHash := ""
	if entry.PrevID != nil {
		prev, err := s.store.FindByID(ctx, *entry.PrevID)
		if errors.Is(err, sentinel.ErrNotFound) {
			// Dangling chain pointer is corruption, not an error.
			return false, nil
		}
		if err != nil {
			return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load previous entry")
		}
		prevHash = prev.EntryHash
	}

	return entry.ComputeHash(prevHash) == entry.EntryHash &&
		entry.ComputeChecksum() == entry.Checksum, nil
}

// VerifyAll scans every entry for a tenant and reports integrity status. The
// scan is read-only, pages through the store so it is safe to run online, and
// always returns a full report rather than failing on the first corrupted
// entry.
func (s *Service) VerifyAll(ctx context.Context, tenantID id.TenantID) (*ledger.Report, error) {
	ctx, span := s.tracer.Start(ctx, "ledger.VerifyAll",
		trace.WithAttributes(attribute.String("ledger.tenant_id", tenantID.String())))
	defer span.End()

	if err := s.requireTenant(ctx, tenantID); err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.VerificationRuns.Inc()
	}

	report := &ledger.Report{
		TenantID:     tenantID,
		CorruptedIDs: []id.EntryID{},
		ScannedAt:    requestcontext.Now(ctx).UTC(),
	}

	// Entries arrive in append order, so a predecessor's hash is almost
	// always already seen; the map fallback covers out-of-order timestamps.
	hashes := make(map[id.EntryID]string)
	offset := 0
	for {
		page, err := s.store.ListByTenant(ctx, tenantID, verifyPageSize, offset)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to scan ledger entries")
		}
		if len(page) == 0 {
			break
		}
		for _, entry := range page {
			hashes[entry.ID] = entry.EntryHash
			report.Total++
			if !s.entryIntact(ctx, entry, hashes) {
				report.CorruptedIDs = append(report.CorruptedIDs, entry.ID)
				if s.metrics != nil {
					s.metrics.CorruptedEntries.Inc()
				}
			}
		}
		if len(page) < verifyPageSize {
			break
		}
		offset += len(page)
	}
	return report, nil
}

func (s *Service) entryIntact(ctx context.Context, entry *ledger.Entry, hashes map[id.EntryID]string) bool {
	prevHash := ""
	if entry.PrevID != nil {
		known, ok := hashes[*entry.PrevID]
		if !ok {
			prev, err := s.store.FindByID(ctx, *entry.PrevID)
			if err != nil {
				return false
			}
			known = prev.EntryHash
			hashes[prev.ID] = known
		}
		prevHash = known
	}
	return entry.ComputeHash(prevHash) == entry.EntryHash &&
		entry.ComputeChecksum() == entry.Checksum
}

// GetTimeline returns chronological entries for one entity, tenant-scoped.
func (s *Service) GetTimeline(ctx context.Context, entityType, entityID string, tenantID id.TenantID, limit, offset int) ([]*ledger.Entry, error) {
	if err := s.requireTenant(ctx, tenantID); err != nil {
		return nil, err
	}
	if entityType == "" || entityID == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "entity type and entity id are required")
	}
	entries, err := s.store.ListTimeline(ctx, tenantID, entityType, entityID, limit, offset)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load timeline")
	}
	return entries, nil
}

// GetAuditTrail returns chronological entries for a tenant with optional
// filters on action kind, actor and date range.
func (s *Service) GetAuditTrail(ctx context.Context, tenantID id.TenantID, filter ledger.Filter, limit, offset int) ([]*ledger.Entry, error) {
	if err := s.requireTenant(ctx, tenantID); err != nil {
		return nil, err
	}
	entries, err := s.store.ListAuditTrail(ctx, tenantID, filter, limit, offset)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load audit trail")
	}
	return entries, nil
}

// loadTenantEntry fetches an entry and enforces the tenant boundary without
// revealing whether an out-of-tenant entry exists.
func (s *Service) loadTenantEntry(ctx context.Context, entryID id.EntryID) (*ledger.Entry, error) {
	actor := requestcontext.Actor(ctx)
	entry, err := s.store.FindByID(ctx, entryID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "ledger entry not found")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load ledger entry")
	}
	if entry.TenantID != actor.TenantID {
		return nil, dErrors.New(dErrors.CodeNotFound, "ledger entry not found")
	}
	return entry, nil
}

// requireTenant checks the requested tenant against the acting user's tenant.
func (s *Service) requireTenant(ctx context.Context, tenantID id.TenantID) error {
	actor := requestcontext.Actor(ctx)
	if actor.TenantID.IsNil() {
		return dErrors.New(dErrors.CodeUnauthorized, "acting tenant is required")
	}
	if tenantID.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "tenant id is required")
	}
	if actor.TenantID != tenantID {
		return dErrors.New(dErrors.CodeForbidden, "access denied")
	}
	return nil
}
