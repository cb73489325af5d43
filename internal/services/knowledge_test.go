package services

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"supportdesk/internal/models"
)

func entry(question, answer string) models.KnowledgeEntry {
	return models.KnowledgeEntry{ID: uuid.New(), Question: question, Answer: answer}
}

func TestScore_IdenticalAfterNormalization(t *testing.T) {
	k := NewKnowledgeRanker()

	assert.Equal(t, 1.0, k.Score("How do I reset my password?", "how do i RESET my password"))
}

func TestScore_Disjoint(t *testing.T) {
	k := NewKnowledgeRanker()

	assert.Equal(t, 0.0, k.Score("refund policy", "shipping times"))
}

func TestScore_EmptySides(t *testing.T) {
	k := NewKnowledgeRanker()

	assert.Equal(t, 0.0, k.Score("", "anything"))
	assert.Equal(t, 0.0, k.Score("anything", ""))
	assert.Equal(t, 0.0, k.Score("?!...", "anything"))
}

func TestScore_PartialOverlap(t *testing.T) {
	k := NewKnowledgeRanker()

	// {cancel, my, order} vs {cancel, an, order}: 2 shared of 4 total.
	assert.InDelta(t, 0.5, k.Score("cancel my order", "cancel an order"), 1e-9)
}

func TestScore_DuplicateWordsCollapse(t *testing.T) {
	k := NewKnowledgeRanker()

	// Repetition adds nothing to a set.
	assert.Equal(t, 1.0, k.Score("refund refund refund", "refund"))
}

func TestRank_OrdersByDescendingScore(t *testing.T) {
	k := NewKnowledgeRanker()
	entries := []models.KnowledgeEntry{
		entry("shipping times overseas", "5-7 days"),
		entry("how do i reset my password", "use the forgot link"),
		entry("reset password on mobile", "settings > security"),
	}

	ranked := k.Rank("how do I reset my password", entries)
	require.Len(t, ranked, 3)
	assert.Equal(t, entries[1].ID, ranked[0].ID)
	assert.Equal(t, entries[2].ID, ranked[1].ID)
	assert.Equal(t, entries[0].ID, ranked[2].ID)
	assert.GreaterOrEqual(t, ranked[0].Score, ranked[1].Score)
	assert.GreaterOrEqual(t, ranked[1].Score, ranked[2].Score)
}

func TestRank_StableOnTies(t *testing.T) {
	k := NewKnowledgeRanker()
	entries := []models.KnowledgeEntry{
		entry("billing question", "a"),
		entry("billing question", "b"),
		entry("billing question", "c"),
	}

	ranked := k.Rank("billing question", entries)
	require.Len(t, ranked, 3)
	for i, r := range ranked {
		assert.Equal(t, entries[i].ID, r.ID)
	}
}

func TestPromoted_Threshold(t *testing.T) {
	k := NewKnowledgeRanker()

	entries := []models.KnowledgeEntry{
		entry("how do i reset my password", "use the forgot link"),
	}

	// Exact match clears the threshold.
	promoted := k.Promoted(k.Rank("how do i reset my password", entries))
	require.NotNil(t, promoted)
	assert.Equal(t, "use the forgot link", promoted.Answer)

	// A score of exactly 0.5 does not.
	half := k.Rank("cancel my order", []models.KnowledgeEntry{entry("cancel an order", "x")})
	require.Len(t, half, 1)
	assert.InDelta(t, 0.5, half[0].Score, 1e-9)
	assert.Nil(t, k.Promoted(half))

	// Weak matches stay as reference material only.
	assert.Nil(t, k.Promoted(k.Rank("completely unrelated", entries)))
	assert.Nil(t, k.Promoted(nil))
}
