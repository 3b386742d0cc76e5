package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeIdentity(t *testing.T) {
	assert.Equal(t, "jean dupont", NormalizeIdentity(" Jean ", "DUPONT"))
	assert.Equal(t, "dupont", NormalizeIdentity("", "Dupont"))
	assert.Equal(t, "jean", NormalizeIdentity("Jean", "  "))
	assert.Equal(t, "", NormalizeIdentity(" ", ""))
}

func TestSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, Similarity("jean dupont", "jean dupont"))
	assert.Equal(t, 1.0, Similarity("", ""))

	// One substitution over twelve runes.
	assert.InDelta(t, 1.0-1.0/12.0, Similarity("jean dupont", "jeans dupont"), 1e-9)

	// Spelling variants clear the 0.8 acceptance bar.
	assert.GreaterOrEqual(t, Similarity("jean dupont", "jeanne dupont"), 0.8)

	// Unrelated names stay well below it.
	assert.Less(t, Similarity("jean dupont", "marguerite lefebvre"), 0.5)

	assert.Equal(t, Similarity("abc", "abcd"), Similarity("abcd", "abc"))
}

func TestLevenshtein(t *testing.T) {
	assert.Equal(t, 0, levenshtein("kitten", "kitten"))
	assert.Equal(t, 3, levenshtein("kitten", "sitting"))
	assert.Equal(t, 5, levenshtein("", "héllo"))
	assert.Equal(t, 1, levenshtein("héllo", "hello"))
}
