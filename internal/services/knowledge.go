package services

import (
	"sort"
	"strings"
	"unicode"

	"supportdesk/internal/models"
)

// promotionThreshold is the minimum similarity at which the top-ranked
// entry's answer is promoted verbatim into the prompt.
const promotionThreshold = 0.5

// KnowledgeRanker orders stored Q/A entries by textual relevance to a query.
// Pure and reentrant.
type KnowledgeRanker struct{}

func NewKnowledgeRanker() *KnowledgeRanker {
	return &KnowledgeRanker{}
}

type RankedEntry struct {
	models.KnowledgeEntry
	Score float64
}

// Rank returns entries sorted by descending similarity to the query. The
// sort is stable, so entries with equal scores keep their stored order.
func (k *KnowledgeRanker) Rank(query string, entries []models.KnowledgeEntry) []RankedEntry {
	queryWords := normalizeWords(query)

	ranked := make([]RankedEntry, len(entries))
	for i, entry := range entries {
		ranked[i] = RankedEntry{
			KnowledgeEntry: entry,
			Score:          jaccard(queryWords, normalizeWords(entry.Question)),
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	return ranked
}

// Score is the Jaccard similarity of the two normalized word sets, in [0,1].
// Either side normalizing to no words scores 0.
func (k *KnowledgeRanker) Score(a, b string) float64 {
	return jaccard(normalizeWords(a), normalizeWords(b))
}

// Promoted returns the top entry when it clears the promotion threshold.
func (k *KnowledgeRanker) Promoted(ranked []RankedEntry) *RankedEntry {
	if len(ranked) > 0 && ranked[0].Score > promotionThreshold {
		return &ranked[0]
	}
	return nil
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	intersection := 0
	for w := range a {
		if _, ok := b[w]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	return float64(intersection) / float64(union)
}

// normalizeWords lowercases, strips punctuation, collapses whitespace and
// splits into a word set.
func normalizeWords(s string) map[string]struct{} {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r) || unicode.IsNumber(r):
			return unicode.ToLower(r)
		default:
			return ' '
		}
	}, s)

	words := make(map[string]struct{})
	for _, w := range strings.Fields(cleaned) {
		words[w] = struct{}{}
	}
	return words
}
