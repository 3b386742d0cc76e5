// Package store provides persistence for clients, cases and documents. The
// in-memory implementations back unit tests and local development; Postgres is
// the production store.
package store

import (
	"context"
	"strings"
	"sync"

	"docket/internal/resolver/models"
	id "docket/pkg/domain"
	"docket/pkg/platform/sentinel"
)

// ClientsMemory is a thread-safe in-memory client store. The (tenant, email)
// unique constraint mirrors the Postgres schema.
type ClientsMemory struct {
	mu      sync.RWMutex
	clients map[id.ClientID]*models.Client
}

func NewClientsMemory() *ClientsMemory {
	return &ClientsMemory{clients: make(map[id.ClientID]*models.Client)}
}

func (m *ClientsMemory) Create(ctx context.Context, client *models.Client) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.clients[client.ID]; ok {
		return sentinel.ErrConflict
	}
	if client.Email != "" {
		for _, existing := range m.clients {
			if existing.TenantID == client.TenantID && existing.Email == client.Email {
				return sentinel.ErrConflict
			}
		}
	}
	stored := *client
	m.clients[client.ID] = &stored
	return nil
}

func (m *ClientsMemory) FindByID(ctx context.Context, clientID id.ClientID) (*models.Client, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	client, ok := m.clients[clientID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	out := *client
	return &out, nil
}

func (m *ClientsMemory) FindByEmail(ctx context.Context, tenantID id.TenantID, email string) (*models.Client, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	email = strings.ToLower(strings.TrimSpace(email))
	for _, client := range m.clients {
		if client.TenantID == tenantID && client.Email != "" && client.Email == email {
			out := *client
			return &out, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (m *ClientsMemory) ListByTenant(ctx context.Context, tenantID id.TenantID) ([]*models.Client, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*models.Client, 0)
	for _, client := range m.clients {
		if client.TenantID == tenantID {
			c := *client
			out = append(out, &c)
		}
	}
	return out, nil
}

// CasesMemory is a thread-safe in-memory case store enforcing (client, title)
// uniqueness.
type CasesMemory struct {
	mu    sync.RWMutex
	cases map[id.CaseID]*models.Case
}

func NewCasesMemory() *CasesMemory {
	return &CasesMemory{cases: make(map[id.CaseID]*models.Case)}
}

func (m *CasesMemory) Create(ctx context.Context, c *models.Case) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.cases[c.ID]; ok {
		return sentinel.ErrConflict
	}
	for _, existing := range m.cases {
		if existing.ClientID == c.ClientID && existing.Title == c.Title {
			return sentinel.ErrConflict
		}
	}
	stored := *c
	m.cases[c.ID] = &stored
	return nil
}

func (m *CasesMemory) FindByID(ctx context.Context, caseID id.CaseID) (*models.Case, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.cases[caseID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	out := *c
	return &out, nil
}

func (m *CasesMemory) FindByClientAndTitle(ctx context.Context, clientID id.ClientID, title string) (*models.Case, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	title = strings.TrimSpace(title)
	for _, c := range m.cases {
		if c.ClientID == clientID && c.Title == title {
			out := *c
			return &out, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (m *CasesMemory) ListByClient(ctx context.Context, clientID id.ClientID) ([]*models.Case, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*models.Case, 0)
	for _, c := range m.cases {
		if c.ClientID == clientID {
			cc := *c
			out = append(out, &cc)
		}
	}
	return out, nil
}

// DocumentsMemory is a thread-safe in-memory document store enforcing
// (case, content hash) uniqueness.
type DocumentsMemory struct {
	mu        sync.RWMutex
	documents map[id.DocumentID]*models.Document
}

func NewDocumentsMemory() *DocumentsMemory {
	return &DocumentsMemory{documents: make(map[id.DocumentID]*models.Document)}
}

func (m *DocumentsMemory) Create(ctx context.Context, doc *models.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.documents[doc.ID]; ok {
		return sentinel.ErrConflict
	}
	for _, existing := range m.documents {
		if existing.CaseID == doc.CaseID && existing.ContentHash == doc.ContentHash {
			return sentinel.ErrConflict
		}
	}
	stored := *doc
	m.documents[doc.ID] = &stored
	return nil
}

func (m *DocumentsMemory) FindByID(ctx context.Context, docID id.DocumentID) (*models.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	doc, ok := m.documents[docID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	out := *doc
	return &out, nil
}

func (m *DocumentsMemory) FindByCaseAndHash(ctx context.Context, caseID id.CaseID, contentHash string) (*models.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, doc := range m.documents {
		if doc.CaseID == caseID && doc.ContentHash == contentHash {
			out := *doc
			return &out, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (m *DocumentsMemory) ListByCase(ctx context.Context, caseID id.CaseID) ([]*models.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*models.Document, 0)
	for _, doc := range m.documents {
		if doc.CaseID == caseID {
			d := *doc
			out = append(out, &d)
		}
	}
	return out, nil
}
