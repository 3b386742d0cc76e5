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
	ledgermetrics "docket/internal/ledger/metrics"
	"docket/internal/ledger/store/headcache"
	id "docket/pkg/domain"
	dErrors "docket/pkg/domain-errors"
	"docket/pkg/platform/sentinel"
	txcontext "docket/pkg/platform/tx"
	"docket/pkg/requestcontext"
)

// Store is the persistence contract for ledger entries. Implementations must
// reject an AppendCAS whose expected predecessor is no longer the chain head.
// No update or delete exists, here or anywhere on the public surface.
type Store interface {
	AppendCAS(ctx context.Context, entry *ledger.Entry, expectedPrev *id.EntryID) error
	Head(ctx context.Context, tenantID id.TenantID) (*ledger.Entry, error)
	FindByID(ctx context.Context, entryID id.EntryID) (*ledger.Entry, error)
	ListByTenant(ctx context.Context, tenantID id.TenantID, limit, offset int) ([]*ledger.Entry, error)
	ListTimeline(ctx context.Context, tenantID id.TenantID, entityType, entityID string, limit, offset int) ([]*ledger.Entry, error)
	ListAuditTrail(ctx context.Context, tenantID id.TenantID, filter ledger.Filter, limit, offset int) ([]*ledger.Entry, error)
}

// HeadCache is an optional advisory cache of each tenant's chain tip.
type HeadCache interface {
	Get(ctx context.Context, tenantID id.TenantID) (*headcache.Head, error)
	Set(ctx context.Context, tenantID id.TenantID, head headcache.Head) error
	Invalidate(ctx context.Context, tenantID id.TenantID) error
}

// Publisher streams committed entries to the export topic.
type Publisher interface {
	Publish(ctx context.Context, entry *ledger.Entry)
}

// maxAppendRetries bounds the compare-and-swap loop before a ConflictError
// surfaces to the caller.
const maxAppendRetries = 3

// verifyPageSize is the batch size for full-chain scans.
const verifyPageSize = 500

// Service is the only write path into the ledger.
type Service struct {
	store     Store
	headCache HeadCache
	publisher Publisher
	logger    *slog.Logger
	metrics   *ledgermetrics.Metrics
	tracer    trace.Tracer
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithHeadCache(cache HeadCache) Option {
	return func(s *Service) { s.headCache = cache }
}

func WithPublisher(publisher Publisher) Option {
	return func(s *Service) { s.publisher = publisher }
}

func WithMetrics(m *ledgermetrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func New(store Store, opts ...Option) *Service {
	s := &Service{
		store:  store,
		logger: slog.Default(),
		tracer: otel.Tracer("docket/ledger"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Append writes one entry to the acting tenant's chain. The read-head /
// compute-hash / write sequence races under concurrent writers, so the store
// performs a compare-and-swap on the expected predecessor and Append retries
// a bounded number of times before surfacing a conflict.
//
// Callers holding a SQL transaction in context get the append inside that
// transaction, making the entry atomic with the mutation it documents.
func (s *Service) Append(ctx context.Context, action ledger.Action, entityType, entityID string, before, after any) (*ledger.Entry, error) {
	ctx, span := s.tracer.Start(ctx, "ledger.Append",
		trace.WithAttributes(attribute.String("ledger.action", string(action))))
	defer span.End()

	actor := requestcontext.Actor(ctx)
	if actor.TenantID.IsNil() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "acting tenant is required")
	}
	if action == "" || entityType == "" || entityID == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "action, entity type and entity id are required")
	}

	beforeRaw, err := marshalSnapshot(before)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, "before snapshot is not serializable")
	}
	afterRaw, err := marshalSnapshot(after)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, "after snapshot is not serializable")
	}

	for attempt := 0; attempt < maxAppendRetries; attempt++ {
		prevID, prevHash, err := s.chainHead(ctx, actor.TenantID)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read chain head")
		}

		entry := &ledger.Entry{
			ID:         id.EntryID(uuid.New()),
			TenantID:   actor.TenantID,
			ActorID:    actor.UserID,
			ActorEmail: actor.UserEmail,
			ActorRole:  actor.Role,
			Action:     action,
			EntityType: entityType,
			EntityID:   entityID,
			Before:     beforeRaw,
			After:      afterRaw,
			RequestID:  requestcontext.RequestID(ctx),
			ClientIP:   requestcontext.ClientIP(ctx),
			Device:     requestcontext.DeviceSummary(ctx),
			// TIMESTAMPTZ stores microseconds; hashing anything finer would
			// make an untampered entry fail verification after a round trip.
			Timestamp: requestcontext.Now(ctx).UTC().Truncate(time.Microsecond),
			PrevID:    prevID,
		}
		entry.EntryHash = entry.ComputeHash(prevHash)
		entry.Checksum = entry.ComputeChecksum()

		err = s.store.AppendCAS(ctx, entry, prevID)
		if errors.Is(err, sentinel.ErrConflict) {
			s.recordConflict(ctx, actor.TenantID)
			// Inside a caller's transaction the failed insert has aborted it;
			// a retry there can never see the new head.
			if _, ok := txcontext.From(ctx); ok {
				break
			}
			continue
		}
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to append ledger entry")
		}

		s.afterAppend(ctx, entry)
		return entry, nil
	}
	return nil, dErrors.New(dErrors.CodeConflict, "ledger append lost the chain head race, retry")
}

// Record is the best-effort variant for purely informational events: append
// failures are logged and swallowed so they never fail the caller's primary
// operation. Compliance-sensitive mutations must use Append instead.
func (s *Service) Record(ctx context.Context, action ledger.Action, entityType, entityID string, before, after any) {
	if _, err := s.Append(ctx, action, entityType, entityID, before, after); err != nil {
		s.logger.WarnContext(ctx, "best-effort ledger append failed",
			"error", err,
			"action", string(action),
			"entity_type", entityType,
			"entity_id", entityID,
			"request_id", requestcontext.RequestID(ctx),
		)
	}
}

// chainHead resolves the tenant's current chain tip, consulting the advisory
// cache first. Returns (nil, "") for an empty chain.
func (s *Service) chainHead(ctx context.Context, tenantID id.TenantID) (*id.EntryID, string, error) {
	if s.headCache != nil {
		head, err := s.headCache.Get(ctx, tenantID)
		if err == nil {
			headID := head.EntryID
			return &headID, head.EntryHash, nil
		}
		if !errors.Is(err, sentinel.ErrNotFound) {
			s.logger.WarnContext(ctx, "chain head cache read failed", "error", err)
		}
	}

	head, err := s.store.Head(ctx, tenantID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", err
	}
	headID := head.ID
	return &headID, head.EntryHash, nil
}

func (s *Service) afterAppend(ctx context.Context, entry *ledger.Entry) {
	if s.metrics != nil {
		s.metrics.EntriesAppended.WithLabelValues(string(entry.Action)).Inc()
	}
	if s.headCache != nil {
		if err := s.headCache.Set(ctx, entry.TenantID, headcache.Head{
			EntryID:   entry.ID,
			EntryHash: entry.EntryHash,
		}); err != nil {
			s.logger.WarnContext(ctx, "chain head cache update failed", "error", err)
		}
	}
	if s.publisher != nil {
		s.publisher.Publish(ctx, entry)
	}
}

func (s *Service) recordConflict(ctx context.Context, tenantID id.TenantID) {
	if s.metrics != nil {
		s.metrics.AppendConflicts.Inc()
	}
	if s.headCache != nil {
		if err := s.headCache.Invalidate(ctx, tenantID); err != nil {
			s.logger.WarnContext(ctx, "chain head cache invalidation failed", "error", err)
		}
	}
}

func marshalSnapshot(v any) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	if raw, ok := v.(json.RawMessage); ok {
		return raw, nil
	}
	return json.Marshal(v)
}
