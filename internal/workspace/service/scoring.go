package service

import (
	"docket/internal/workspace/models"
)

// CombinedConfidence aggregates fact confidences with a noisy-or: each fact
// independently reduces the remaining doubt, so confidence grows
// monotonically with evidence and never exceeds 1. An empty workspace has
// confidence 0.
func CombinedConfidence(facts []*models.Fact) float64 {
	doubt := 1.0
	for _, f := range facts {
		doubt *= 1.0 - f.Confidence
	}
	return 1.0 - doubt
}

// Uncertainty is the complement of confidence.
func Uncertainty(confidence float64) float64 {
	return 1.0 - confidence
}

// QualityScore blends two signals: how much of the blocking gap backlog has
// been resolved, and how much of the accumulated knowledge carries full
// (extracted) confidence. A workspace with no gaps and no facts scores 0 —
// nothing has been reasoned about yet.
func QualityScore(facts []*models.Fact, elements []*models.MissingElement) float64 {
	if len(facts) == 0 && len(elements) == 0 {
		return 0.0
	}

	blockingTotal := 0
	blockingResolved := 0
	for _, e := range elements {
		if !e.Blocking {
			continue
		}
		blockingTotal++
		if e.Resolved {
			blockingResolved++
		}
	}
	resolvedShare := 1.0
	if blockingTotal > 0 {
		resolvedShare = float64(blockingResolved) / float64(blockingTotal)
	}

	evidenceShare := 0.0
	if len(facts) > 0 {
		sum := 0.0
		for _, f := range facts {
			sum += f.Confidence
		}
		evidenceShare = sum / float64(len(facts))
	}

	return 0.5*resolvedShare + 0.5*evidenceShare
}

// hasUnresolvedBlocking reports whether any blocking element is still open.
func hasUnresolvedBlocking(elements []*models.MissingElement) bool {
	for _, e := range elements {
		if e.Blocking && !e.Resolved {
			return true
		}
	}
	return false
}
