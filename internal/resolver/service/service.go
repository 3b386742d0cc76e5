// Package service implements identity and document resolution: fuzzy client
// matching, find-or-create case association, and content-addressed document
// deduplication. Every operation is idempotent so intake pipelines can be
// replayed safely.
package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"docket/internal/ledger"
	ledgersvc "docket/internal/ledger/service"
	"docket/internal/resolver/metrics"
	"docket/internal/resolver/models"
	"docket/pkg/hashing"

	id "docket/pkg/domain"
	dErrors "docket/pkg/domain-errors"
	"docket/pkg/platform/sentinel"
	"docket/pkg/requestcontext"
)

// ClientStore persists client identities. Create must return
// sentinel.ErrConflict when a unique constraint (tenant+email) is violated.
type ClientStore interface {
	Create(ctx context.Context, client *models.Client) error
	FindByID(ctx context.Context, clientID id.ClientID) (*models.Client, error)
	FindByEmail(ctx context.Context, tenantID id.TenantID, email string) (*models.Client, error)
	ListByTenant(ctx context.Context, tenantID id.TenantID) ([]*models.Client, error)
}

// CaseStore persists cases. Create must return sentinel.ErrConflict when the
// (client, title) pair already exists.
type CaseStore interface {
	Create(ctx context.Context, c *models.Case) error
	FindByID(ctx context.Context, caseID id.CaseID) (*models.Case, error)
	FindByClientAndTitle(ctx context.Context, clientID id.ClientID, title string) (*models.Case, error)
	ListByClient(ctx context.Context, clientID id.ClientID) ([]*models.Case, error)
}

// DocumentStore persists documents. Create must return sentinel.ErrConflict
// when the (case, content hash) pair already exists.
type DocumentStore interface {
	Create(ctx context.Context, doc *models.Document) error
	FindByID(ctx context.Context, docID id.DocumentID) (*models.Document, error)
	FindByCaseAndHash(ctx context.Context, caseID id.CaseID, contentHash string) (*models.Document, error)
	ListByCase(ctx context.Context, caseID id.CaseID) ([]*models.Document, error)
}

// Ledger is the subset of the ledger write path the resolver uses. Append is
// for compliance-sensitive creations; Record is best-effort, for informational
// match events.
type Ledger interface {
	Append(ctx context.Context, action ledger.Action, entityType, entityID string, before, after any) (*ledger.Entry, error)
	Record(ctx context.Context, action ledger.Action, entityType, entityID string, before, after any)
}

// Service resolves incoming records to canonical clients, cases and documents.
type Service struct {
	clients   ClientStore
	cases     CaseStore
	documents DocumentStore
	ledger    Ledger
	threshold float64
	logger    *slog.Logger
	metrics   *metrics.Metrics
	tracer    trace.Tracer
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithSimilarityThreshold overrides the default minimum fuzzy-match score,
// used when a caller does not supply one. Values outside (0,1] are ignored.
func WithSimilarityThreshold(threshold float64) Option {
	return func(s *Service) {
		if threshold > 0 && threshold <= 1 {
			s.threshold = threshold
		}
	}
}

const defaultSimilarityThreshold = 0.8

func New(clients ClientStore, cases CaseStore, documents DocumentStore, ldg Ledger, opts ...Option) *Service {
	s := &Service{
		clients:   clients,
		cases:     cases,
		documents: documents,
		ledger:    ldg,
		threshold: defaultSimilarityThreshold,
		logger:    slog.Default(),
		tracer:    otel.Tracer("docket/resolver"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// MatchResult reports how a client resolution concluded.
type MatchResult struct {
	Client  *models.Client `json:"client"`
	Created bool           `json:"created"`
	// Method is "email", "fuzzy" or "created".
	Method string `json:"method"`
	// Score is the similarity score for fuzzy matches, 1.0 otherwise.
	Score float64 `json:"score"`
}

// IdentifyOrCreateClient resolves an incoming identity to an existing client
// or creates a new one. Exact email match wins; otherwise the normalized name
// is fuzzy-compared against the tenant's clients and the best score at or
// above the threshold is accepted. Callers pass their own acceptance
// threshold per request; zero selects the configured default. Below-threshold
// candidates are never merged. A create that loses a race to a concurrent
// identical insert re-resolves instead of failing.
func (s *Service) IdentifyOrCreateClient(ctx context.Context, email, first, last string, threshold float64) (*MatchResult, error) {
	ctx, span := s.tracer.Start(ctx, "resolver.IdentifyOrCreateClient")
	defer span.End()

	actor := requestcontext.Actor(ctx)
	if actor.TenantID.IsNil() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "acting tenant is required")
	}

	normalized := NormalizeIdentity(first, last)
	if normalized == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "client name is required")
	}
	if threshold < 0 || threshold > 1 {
		return nil, dErrors.New(dErrors.CodeValidation, "similarity threshold must be within (0, 1]")
	}
	if threshold == 0 {
		threshold = s.threshold
	}

	for attempt := 0; attempt < 2; attempt++ {
		result, err := s.resolveClient(ctx, actor.TenantID, email, normalized, threshold)
		if err != nil {
			return nil, err
		}
		if result != nil {
			span.SetAttributes(attribute.String("resolver.match_method", result.Method))
			return result, nil
		}

		created, err := s.createClient(ctx, actor.TenantID, email, first, last, normalized)
		if errors.Is(err, sentinel.ErrConflict) {
			// A concurrent request inserted the same identity; resolve again.
			if s.metrics != nil {
				s.metrics.IdentityCreateRaces.Inc()
			}
			continue
		}
		if err != nil {
			return nil, err
		}
		span.SetAttributes(attribute.String("resolver.match_method", "created"))
		return &MatchResult{Client: created, Created: true, Method: "created", Score: 1.0}, nil
	}
	return nil, dErrors.New(dErrors.CodeConflict, "client identity creation lost repeated races, retry")
}

// resolveClient returns a match or nil when no existing client qualifies.
func (s *Service) resolveClient(ctx context.Context, tenantID id.TenantID, email, normalized string, threshold float64) (*MatchResult, error) {
	if email != "" {
		client, err := s.clients.FindByEmail(ctx, tenantID, email)
		if err == nil {
			s.recordMatch(ctx, client, "email", 1.0)
			return &MatchResult{Client: client, Method: "email", Score: 1.0}, nil
		}
		if !errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up client by email")
		}
	}

	candidates, err := s.clients.ListByTenant(ctx, tenantID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list clients for matching")
	}

	var best *models.Client
	bestScore := 0.0
	for _, candidate := range candidates {
		score := Similarity(normalized, candidate.NormalizedName)
		if score > bestScore {
			best, bestScore = candidate, score
		}
	}
	if best == nil || bestScore < threshold {
		return nil, nil
	}
	s.recordMatch(ctx, best, "fuzzy", bestScore)
	return &MatchResult{Client: best, Method: "fuzzy", Score: bestScore}, nil
}

func (s *Service) createClient(ctx context.Context, tenantID id.TenantID, email, first, last, normalized string) (*models.Client, error) {
	client, err := models.NewClient(id.ClientID(uuid.New()), tenantID, email, first, last, normalized, requestcontext.Now(ctx).UTC())
	if err != nil {
		return nil, err
	}
	if err := s.clients.Create(ctx, client); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, err
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create client")
	}

	if _, err := s.ledger.Append(ctx, ledger.ActionClientCreated, ledger.EntityClient, client.ID.String(), nil, client); err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.ClientsCreated.Inc()
	}
	s.logger.InfoContext(ctx, "client identity created",
		"client_id", client.ID.String(),
		"tenant_id", tenantID.String(),
	)
	return client, nil
}

func (s *Service) recordMatch(ctx context.Context, client *models.Client, method string, score float64) {
	if s.metrics != nil {
		s.metrics.ClientsMatched.WithLabelValues(method).Inc()
	}
	s.ledger.Record(ctx, ledger.ActionClientMatched, ledger.EntityClient, client.ID.String(), nil, map[string]any{
		"method": method,
		"score":  score,
	})
}

// AssociateCase finds or creates the case titled title under the client.
// Re-associating an existing (client, title) pair returns the existing case
// unchanged.
func (s *Service) AssociateCase(ctx context.Context, clientID id.ClientID, title string) (*models.Case, error) {
	ctx, span := s.tracer.Start(ctx, "resolver.AssociateCase")
	defer span.End()

	client, err := s.loadTenantClient(ctx, clientID)
	if err != nil {
		return nil, err
	}

	existing, err := s.cases.FindByClientAndTitle(ctx, clientID, title)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up case")
	}

	c, err := models.NewCase(id.CaseID(uuid.New()), client.TenantID, clientID, title, requestcontext.Now(ctx).UTC())
	if err != nil {
		return nil, err
	}
	if err := s.cases.Create(ctx, c); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			// Lost the find-or-create race; the winner's case is the answer.
			return s.findCaseAfterRace(ctx, clientID, c.Title)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create case")
	}

	if _, err := s.ledger.Append(ctx, ledger.ActionCaseCreated, ledger.EntityCase, c.ID.String(), nil, c); err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.CasesCreated.Inc()
	}
	s.logger.InfoContext(ctx, "case created",
		"case_id", c.ID.String(),
		"client_id", clientID.String(),
	)
	return c, nil
}

func (s *Service) findCaseAfterRace(ctx context.Context, clientID id.ClientID, title string) (*models.Case, error) {
	existing, err := s.cases.FindByClientAndTitle(ctx, clientID, title)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to re-resolve case after conflict")
	}
	return existing, nil
}

// IngestResult reports a document ingestion outcome. Created is false when
// identical bytes were already filed under the case.
type IngestResult struct {
	Document *models.Document `json:"document"`
	Created  bool             `json:"created"`
}

// IngestDocument files content under a case, deduplicating by content hash.
// The same bytes under the same case always resolve to the same document; the
// same bytes under a different case are a distinct document.
func (s *Service) IngestDocument(ctx context.Context, caseID id.CaseID, name string, content []byte) (*IngestResult, error) {
	ctx, span := s.tracer.Start(ctx, "resolver.IngestDocument")
	defer span.End()

	if len(content) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "document content is required")
	}

	c, err := s.loadTenantCase(ctx, caseID)
	if err != nil {
		return nil, err
	}

	contentHash := hashing.Content(content)
	existing, err := s.documents.FindByCaseAndHash(ctx, caseID, contentHash)
	if err == nil {
		if s.metrics != nil {
			s.metrics.DocumentsDeduped.Inc()
		}
		return &IngestResult{Document: existing, Created: false}, nil
	}
	if !errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up document by content hash")
	}

	doc, err := models.NewDocument(id.DocumentID(uuid.New()), c.TenantID, caseID, name, contentHash, requestcontext.Now(ctx).UTC())
	if err != nil {
		return nil, err
	}
	if err := s.documents.Create(ctx, doc); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return s.findDocumentAfterRace(ctx, caseID, contentHash)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create document")
	}

	if _, err := s.ledger.Append(ctx, ledger.ActionDocumentIngested, ledger.EntityDocument, doc.ID.String(), nil, doc); err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.DocumentsIngested.Inc()
	}
	s.logger.InfoContext(ctx, "document ingested",
		"document_id", doc.ID.String(),
		"case_id", caseID.String(),
		"content_hash", contentHash,
	)
	return &IngestResult{Document: doc, Created: true}, nil
}

func (s *Service) findDocumentAfterRace(ctx context.Context, caseID id.CaseID, contentHash string) (*IngestResult, error) {
	existing, err := s.documents.FindByCaseAndHash(ctx, caseID, contentHash)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to re-resolve document after conflict")
	}
	if s.metrics != nil {
		s.metrics.DocumentsDeduped.Inc()
	}
	return &IngestResult{Document: existing, Created: false}, nil
}

// GetClient returns a client within the acting tenant.
func (s *Service) GetClient(ctx context.Context, clientID id.ClientID) (*models.Client, error) {
	return s.loadTenantClient(ctx, clientID)
}

// GetCase returns a case within the acting tenant.
func (s *Service) GetCase(ctx context.Context, caseID id.CaseID) (*models.Case, error) {
	return s.loadTenantCase(ctx, caseID)
}

// ListCases returns a client's cases.
func (s *Service) ListCases(ctx context.Context, clientID id.ClientID) ([]*models.Case, error) {
	if _, err := s.loadTenantClient(ctx, clientID); err != nil {
		return nil, err
	}
	cases, err := s.cases.ListByClient(ctx, clientID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list cases")
	}
	return cases, nil
}

// ListDocuments returns a case's documents.
func (s *Service) ListDocuments(ctx context.Context, caseID id.CaseID) ([]*models.Document, error) {
	if _, err := s.loadTenantCase(ctx, caseID); err != nil {
		return nil, err
	}
	docs, err := s.documents.ListByCase(ctx, caseID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list documents")
	}
	return docs, nil
}

// loadTenantClient fetches a client and enforces the tenant boundary without
// revealing whether an out-of-tenant client exists.
func (s *Service) loadTenantClient(ctx context.Context, clientID id.ClientID) (*models.Client, error) {
	actor := requestcontext.Actor(ctx)
	if actor.TenantID.IsNil() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "acting tenant is required")
	}
	client, err := s.clients.FindByID(ctx, clientID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "client not found")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load client")
	}
	if client.TenantID != actor.TenantID {
		return nil, dErrors.New(dErrors.CodeNotFound, "client not found")
	}
	return client, nil
}

func (s *Service) loadTenantCase(ctx context.Context, caseID id.CaseID) (*models.Case, error) {
	actor := requestcontext.Actor(ctx)
	if actor.TenantID.IsNil() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "acting tenant is required")
	}
	c, err := s.cases.FindByID(ctx, caseID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "case not found")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load case")
	}
	if c.TenantID != actor.TenantID {
		return nil, dErrors.New(dErrors.CodeNotFound, "case not found")
	}
	return c, nil
}

var _ Ledger = (*ledgersvc.Service)(nil)
