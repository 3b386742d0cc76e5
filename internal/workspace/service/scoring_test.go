package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"docket/internal/workspace/models"
)

func fact(confidence float64) *models.Fact {
	return &models.Fact{Confidence: confidence}
}

func element(blocking, resolved bool) *models.MissingElement {
	return &models.MissingElement{Blocking: blocking, Resolved: resolved}
}

func TestCombinedConfidence(t *testing.T) {
	assert.Equal(t, 0.0, CombinedConfidence(nil))
	assert.Equal(t, 0.8, CombinedConfidence([]*models.Fact{fact(0.8)}))

	// 1 - (1-0.8)(1-0.6) = 0.92
	assert.InDelta(t, 0.92, CombinedConfidence([]*models.Fact{fact(0.8), fact(0.6)}), 1e-9)

	// One certain fact saturates the combination.
	assert.Equal(t, 1.0, CombinedConfidence([]*models.Fact{fact(1.0), fact(0.2)}))
}

func TestCombinedConfidenceMonotonic(t *testing.T) {
	facts := []*models.Fact{}
	prev := 0.0
	for i := 0; i < 10; i++ {
		facts = append(facts, fact(0.3))
		combined := CombinedConfidence(facts)
		assert.Greater(t, combined, prev)
		assert.LessOrEqual(t, combined, 1.0)
		prev = combined
	}
}

func TestUncertainty(t *testing.T) {
	assert.Equal(t, 1.0, Uncertainty(0.0))
	assert.InDelta(t, 0.08, Uncertainty(0.92), 1e-9)
}

func TestQualityScore(t *testing.T) {
	t.Run("empty workspace scores zero", func(t *testing.T) {
		assert.Equal(t, 0.0, QualityScore(nil, nil))
	})

	t.Run("facts only", func(t *testing.T) {
		// No blocking gaps: resolved share is 1; average confidence 0.7.
		score := QualityScore([]*models.Fact{fact(0.8), fact(0.6)}, nil)
		assert.InDelta(t, 0.5*1.0+0.5*0.7, score, 1e-9)
	})

	t.Run("unresolved blocking gap halves the gap share", func(t *testing.T) {
		elements := []*models.MissingElement{element(true, true), element(true, false)}
		score := QualityScore([]*models.Fact{fact(1.0)}, elements)
		assert.InDelta(t, 0.5*0.5+0.5*1.0, score, 1e-9)
	})

	t.Run("non-blocking gaps are ignored", func(t *testing.T) {
		elements := []*models.MissingElement{element(false, false)}
		score := QualityScore([]*models.Fact{fact(1.0)}, elements)
		assert.InDelta(t, 1.0, score, 1e-9)
	})

	t.Run("gaps without facts", func(t *testing.T) {
		elements := []*models.MissingElement{element(true, false)}
		assert.Equal(t, 0.0, QualityScore(nil, elements))
	})
}

func TestHasUnresolvedBlocking(t *testing.T) {
	assert.False(t, hasUnresolvedBlocking(nil))
	assert.False(t, hasUnresolvedBlocking([]*models.MissingElement{element(false, false), element(true, true)}))
	assert.True(t, hasUnresolvedBlocking([]*models.MissingElement{element(true, true), element(true, false)}))
}
