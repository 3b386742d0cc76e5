package models_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docket/internal/workspace/models"
	id "docket/pkg/domain"
)

func TestProvenanceDefaultConfidence(t *testing.T) {
	assert.Equal(t, 1.0, models.ProvenanceExtracted.DefaultConfidence())
	assert.Equal(t, 0.8, models.ProvenanceUser.DefaultConfidence())
	assert.Equal(t, 0.6, models.ProvenanceInferred.DefaultConfidence())
	assert.Equal(t, 0.0, models.Provenance("hearsay").DefaultConfidence())
}

func TestNewWorkspaceStartsEmpty(t *testing.T) {
	now := time.Now().UTC()
	ws, err := models.NewWorkspace(id.WorkspaceID(uuid.New()), id.TenantID(uuid.New()),
		id.UserID(uuid.New()), "email", nil, nil, now)
	require.NoError(t, err)

	assert.Equal(t, models.StateReceived, ws.State)
	assert.Equal(t, 1.0, ws.Uncertainty)
	assert.Equal(t, 0.0, ws.Confidence)
	assert.False(t, ws.Locked)
	assert.Equal(t, int64(1), ws.Version)
}

func TestNewWorkspaceRequiresSourceType(t *testing.T) {
	_, err := models.NewWorkspace(id.WorkspaceID(uuid.New()), id.TenantID(uuid.New()),
		id.UserID(uuid.New()), "   ", nil, nil, time.Now())
	require.Error(t, err)
}

func TestNewFactDerivesConfidenceFromProvenance(t *testing.T) {
	fact, err := models.NewFact(id.FactID(uuid.New()), id.WorkspaceID(uuid.New()),
		"lease_start", "2024-03-01", models.ProvenanceInferred, "", id.UserID(uuid.New()), time.Now())
	require.NoError(t, err)
	assert.Equal(t, 0.6, fact.Confidence)

	_, err = models.NewFact(id.FactID(uuid.New()), id.WorkspaceID(uuid.New()),
		"lease_start", "2024-03-01", models.Provenance("hearsay"), "", id.UserID(uuid.New()), time.Now())
	require.Error(t, err)
}

func TestPriorityForScore(t *testing.T) {
	assert.Equal(t, models.PriorityCritical, models.PriorityForScore(0.75))
	assert.Equal(t, models.PriorityCritical, models.PriorityForScore(0.9))
	assert.Equal(t, models.PriorityHigh, models.PriorityForScore(0.5))
	assert.Equal(t, models.PriorityHigh, models.PriorityForScore(0.74))
	assert.Equal(t, models.PriorityMedium, models.PriorityForScore(0.25))
	assert.Equal(t, models.PriorityLow, models.PriorityForScore(0.24))
	assert.Equal(t, models.PriorityLow, models.PriorityForScore(0.0))
}

func TestNewRiskComputesScore(t *testing.T) {
	risk, err := models.NewRisk(id.RiskID(uuid.New()), id.WorkspaceID(uuid.New()),
		"deadline", 0.9, 0.9, id.UserID(uuid.New()), time.Now())
	require.NoError(t, err)
	assert.InDelta(t, 0.81, risk.Score, 1e-9)
	assert.Equal(t, models.PriorityCritical, risk.Priority)

	_, err = models.NewRisk(id.RiskID(uuid.New()), id.WorkspaceID(uuid.New()),
		"deadline", 1.2, 0.5, id.UserID(uuid.New()), time.Now())
	require.Error(t, err)
}
