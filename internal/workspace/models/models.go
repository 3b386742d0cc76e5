// Package models defines the reasoning workspace and its child entities.
// A workspace accumulates facts, gaps, risks and proposed actions for one
// inbound source record; every mutation leaves exactly one reasoning trace.
package models

import (
	"encoding/json"
	"strings"
	"time"

	id "docket/pkg/domain"
	dErrors "docket/pkg/domain-errors"
)

// Provenance describes where a fact came from. Extracted facts are trusted
// most, free-text user claims least pending verification.
type Provenance string

const (
	ProvenanceUser      Provenance = "user_provided"
	ProvenanceExtracted Provenance = "extracted"
	ProvenanceInferred  Provenance = "inferred"
)

// DefaultConfidence returns the confidence assigned to a fact at creation
// based on its provenance.
func (p Provenance) DefaultConfidence() float64 {
	switch p {
	case ProvenanceExtracted:
		return 1.0
	case ProvenanceUser:
		return 0.8
	case ProvenanceInferred:
		return 0.6
	default:
		return 0.0
	}
}

func (p Provenance) Valid() bool {
	switch p {
	case ProvenanceUser, ProvenanceExtracted, ProvenanceInferred:
		return true
	}
	return false
}

// Workspace is the reasoning state for one inbound source record.
//
// Invariants:
//   - Uncertainty and Confidence stay in [0,1]; uncertainty = 1 − confidence
//   - TenantID is immutable and checked against the actor on every operation
//   - Once Locked, every mutation is rejected until an audited unlock
//   - Version increments on every committed mutation; stores reject writes
//     carrying a stale version so concurrent mutations serialize per workspace
type Workspace struct {
	ID             id.WorkspaceID  `json:"id"`
	TenantID       id.TenantID     `json:"tenant_id"`
	OwnerID        id.UserID       `json:"owner_id"`
	ClientID       *id.ClientID    `json:"client_id,omitempty"`
	CaseID         *id.CaseID      `json:"case_id,omitempty"`
	SourceType     string          `json:"source_type"`
	SourcePayload  json.RawMessage `json:"source_payload,omitempty"`
	SourceMetadata json.RawMessage `json:"source_metadata,omitempty"`
	State          State           `json:"state"`
	StateChangedAt time.Time       `json:"state_changed_at"`
	StateChangedBy id.UserID       `json:"state_changed_by"`
	Uncertainty    float64         `json:"uncertainty"`
	Confidence     float64         `json:"confidence"`
	QualityScore   float64         `json:"quality_score"`
	Locked         bool            `json:"locked"`
	Version        int64           `json:"version"`
	CreatedAt      time.Time       `json:"created_at"`
}

// NewWorkspace constructs a workspace from one source record. Knowledge
// starts empty: uncertainty 1.0, confidence 0.0, state received.
func NewWorkspace(wsID id.WorkspaceID, tenantID id.TenantID, ownerID id.UserID, sourceType string, payload, metadata json.RawMessage, now time.Time) (*Workspace, error) {
	if tenantID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "workspace tenant is required")
	}
	if ownerID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "workspace owner is required")
	}
	if strings.TrimSpace(sourceType) == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "workspace source type is required")
	}
	return &Workspace{
		ID:             wsID,
		TenantID:       tenantID,
		OwnerID:        ownerID,
		SourceType:     strings.TrimSpace(sourceType),
		SourcePayload:  payload,
		SourceMetadata: metadata,
		State:          StateReceived,
		StateChangedAt: now,
		StateChangedBy: ownerID,
		Uncertainty:    1.0,
		Confidence:     0.0,
		Version:        1,
		CreatedAt:      now,
	}, nil
}

// Fact is a single labeled piece of knowledge with provenance-derived
// confidence.
type Fact struct {
	ID          id.FactID      `json:"id"`
	WorkspaceID id.WorkspaceID `json:"workspace_id"`
	Label       string         `json:"label"`
	Value       string         `json:"value"`
	Provenance  Provenance     `json:"provenance"`
	Confidence  float64        `json:"confidence"`
	SourceRef   string         `json:"source_ref,omitempty"`
	AddedBy     id.UserID      `json:"added_by"`
	AddedAt     time.Time      `json:"added_at"`
}

func NewFact(factID id.FactID, wsID id.WorkspaceID, label, value string, provenance Provenance, sourceRef string, addedBy id.UserID, now time.Time) (*Fact, error) {
	if strings.TrimSpace(label) == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "fact label is required")
	}
	if !provenance.Valid() {
		return nil, dErrors.New(dErrors.CodeValidation, "fact provenance must be user_provided, extracted or inferred")
	}
	return &Fact{
		ID:          factID,
		WorkspaceID: wsID,
		Label:       strings.TrimSpace(label),
		Value:       value,
		Provenance:  provenance,
		Confidence:  provenance.DefaultConfidence(),
		SourceRef:   sourceRef,
		AddedBy:     addedBy,
		AddedAt:     now,
	}, nil
}

// MissingElement is a gap in required information. A blocking element stalls
// the workspace until resolved.
type MissingElement struct {
	ID          id.ElementID   `json:"id"`
	WorkspaceID id.WorkspaceID `json:"workspace_id"`
	Description string         `json:"description"`
	Blocking    bool           `json:"blocking"`
	Resolved    bool           `json:"resolved"`
	Resolution  string         `json:"resolution,omitempty"`
	ResolvedBy  *id.UserID     `json:"resolved_by,omitempty"`
	ResolvedAt  *time.Time     `json:"resolved_at,omitempty"`
	AddedBy     id.UserID      `json:"added_by"`
	AddedAt     time.Time      `json:"added_at"`
}

func NewMissingElement(elementID id.ElementID, wsID id.WorkspaceID, description string, blocking bool, addedBy id.UserID, now time.Time) (*MissingElement, error) {
	if strings.TrimSpace(description) == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "missing element description is required")
	}
	return &MissingElement{
		ID:          elementID,
		WorkspaceID: wsID,
		Description: strings.TrimSpace(description),
		Blocking:    blocking,
		AddedBy:     addedBy,
		AddedAt:     now,
	}, nil
}

// Risk priority tiers, derived from score = probability × severity.
const (
	PriorityCritical = "critical"
	PriorityHigh     = "high"
	PriorityMedium   = "medium"
	PriorityLow      = "low"
)

// PriorityForScore maps a risk score to its tier.
func PriorityForScore(score float64) string {
	switch {
	case score >= 0.75:
		return PriorityCritical
	case score >= 0.5:
		return PriorityHigh
	case score >= 0.25:
		return PriorityMedium
	default:
		return PriorityLow
	}
}

// Risk is a scored exposure attached to a workspace.
type Risk struct {
	ID          id.RiskID      `json:"id"`
	WorkspaceID id.WorkspaceID `json:"workspace_id"`
	Category    string         `json:"category"`
	Probability float64        `json:"probability"`
	Severity    float64        `json:"severity"`
	Score       float64        `json:"score"`
	Priority    string         `json:"priority"`
	AddedBy     id.UserID      `json:"added_by"`
	AddedAt     time.Time      `json:"added_at"`
}

func NewRisk(riskID id.RiskID, wsID id.WorkspaceID, category string, probability, severity float64, addedBy id.UserID, now time.Time) (*Risk, error) {
	if strings.TrimSpace(category) == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "risk category is required")
	}
	if probability < 0 || probability > 1 || severity < 0 || severity > 1 {
		return nil, dErrors.New(dErrors.CodeValidation, "risk probability and severity must be within [0,1]")
	}
	score := probability * severity
	return &Risk{
		ID:          riskID,
		WorkspaceID: wsID,
		Category:    strings.TrimSpace(category),
		Probability: probability,
		Severity:    severity,
		Score:       score,
		Priority:    PriorityForScore(score),
		AddedBy:     addedBy,
		AddedAt:     now,
	}, nil
}

// ProposedAction is a recommended next step; execution is recorded with the
// executor's identity and an optional free-text result.
type ProposedAction struct {
	ID          id.ActionID    `json:"id"`
	WorkspaceID id.WorkspaceID `json:"workspace_id"`
	Description string         `json:"description"`
	Executed    bool           `json:"executed"`
	ExecutedBy  *id.UserID     `json:"executed_by,omitempty"`
	ExecutedAt  *time.Time     `json:"executed_at,omitempty"`
	Result      string         `json:"result,omitempty"`
	ProposedBy  id.UserID      `json:"proposed_by"`
	ProposedAt  time.Time      `json:"proposed_at"`
}

func NewProposedAction(actionID id.ActionID, wsID id.WorkspaceID, description string, proposedBy id.UserID, now time.Time) (*ProposedAction, error) {
	if strings.TrimSpace(description) == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "action description is required")
	}
	return &ProposedAction{
		ID:          actionID,
		WorkspaceID: wsID,
		Description: strings.TrimSpace(description),
		ProposedBy:  proposedBy,
		ProposedAt:  now,
	}, nil
}

// TraceEntry is one step of the append-only reasoning narrative. Trace rows
// are never edited; every other mutation produces exactly one.
type TraceEntry struct {
	ID          id.TraceID      `json:"id"`
	WorkspaceID id.WorkspaceID  `json:"workspace_id"`
	Step        string          `json:"step"`
	Explanation string          `json:"explanation"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
	AuthorID    id.UserID       `json:"author_id"`
	CreatedAt   time.Time       `json:"created_at"`
}

func NewTraceEntry(traceID id.TraceID, wsID id.WorkspaceID, step, explanation string, metadata json.RawMessage, authorID id.UserID, now time.Time) (*TraceEntry, error) {
	if strings.TrimSpace(step) == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "trace step is required")
	}
	return &TraceEntry{
		ID:          traceID,
		WorkspaceID: wsID,
		Step:        step,
		Explanation: explanation,
		Metadata:    metadata,
		AuthorID:    authorID,
		CreatedAt:   now,
	}, nil
}
