package catalog

import (
	"sort"

	"finflow/internal/flow"
)

// The usage ordering is a user-facing contract: entries the user has picked
// before surface first, ordered by usage descending, and ties keep the
// original fetch order. sort.SliceStable provides the stable tie-break.

func sortAccounts(accounts []flow.Account) []flow.Account {
	out := make([]flow.Account, len(accounts))
	copy(out, accounts)
	sort.SliceStable(out, func(i, j int) bool {
		return usageLess(out[i].Usage, out[j].Usage)
	})
	return out
}

func sortCategories(categories []flow.Category) []flow.Category {
	out := make([]flow.Category, len(categories))
	copy(out, categories)
	sort.SliceStable(out, func(i, j int) bool {
		return usageLess(out[i].Usage, out[j].Usage)
	})
	return out
}

func sortSuggestions(suggestions []flow.Suggestion) []flow.Suggestion {
	out := make([]flow.Suggestion, len(suggestions))
	copy(out, suggestions)
	sort.SliceStable(out, func(i, j int) bool {
		return usageLess(out[i].Usage, out[j].Usage)
	})
	return out
}

// usageLess reports whether usage a sorts before b: used entries before
// unused ones, then by usage descending.
func usageLess(a, b int) bool {
	if (a > 0) != (b > 0) {
		return a > 0
	}
	return a > b
}
