package strategy

import (
	"cmp"
	"slices"
)

// Ranked is one candidate with the value it was ranked by.
type Ranked struct {
	ID    string
	Value uint64
}

// Rank orders values descending, breaking ties by ascending id so the
// result never depends on map iteration order. keep filters candidates.
func Rank[M ~map[string]uint64](values M, keep func(id string) bool) []Ranked {
	out := make([]Ranked, 0, len(values))
	for id, v := range values {
		if keep != nil && !keep(id) {
			continue
		}
		out = append(out, Ranked{ID: id, Value: v})
	}
	slices.SortFunc(out, func(a, b Ranked) int {
		if c := cmp.Compare(b.Value, a.Value); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}

// inTop reports whether id is among the first k ranked entries.
func inTop(ranked []Ranked, k int, id string) bool {
	for i, r := range ranked {
		if i >= k {
			return false
		}
		if r.ID == id {
			return true
		}
	}
	return false
}
