package query

import (
	"sort"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/shelflife/shelflife/internal/domain"
)

const maxSuggestions = 8

// Suggest returns up to maxSuggestions food names fuzzily matching q, best
// matches first. This is a display aid for search-as-you-type; it never
// affects the Filter result semantics.
func Suggest(items []domain.FoodWithCategory, q string) []string {
	if q == "" {
		return nil
	}

	names := make([]string, 0, len(items))
	seen := make(map[string]bool, len(items))
	for _, item := range items {
		if !seen[item.Food.Name] {
			seen[item.Food.Name] = true
			names = append(names, item.Food.Name)
		}
	}

	ranks := fuzzy.RankFindNormalizedFold(q, names)
	sort.Sort(ranks)

	out := make([]string, 0, maxSuggestions)
	for _, r := range ranks {
		out = append(out, r.Target)
		if len(out) == maxSuggestions {
			break
		}
	}
	return out
}
