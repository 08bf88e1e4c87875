package syncer

import (
	"iter"
	"maps"
	"slices"

	"github.com/jadenj13/devpool/internals/issue"
)

// orderedMirrors iterates over a snapshot of mirrors sorted by identifier so
// that passes are reproducible and the map may be written during iteration.
func orderedMirrors(mirrors map[string]issue.Issue) iter.Seq2[string, issue.Issue] {
	ids := slices.Sorted(maps.Keys(mirrors))
	snap := maps.Clone(mirrors)
	return func(yield func(string, issue.Issue) bool) {
		for _, id := range ids {
			if !yield(id, snap[id]) {
				return
			}
		}
	}
}

func snapshot(mirrors map[string]issue.Issue) []issue.Issue {
	out := make([]issue.Issue, 0, len(mirrors))
	for _, m := range orderedMirrors(mirrors) {
		out = append(out, m)
	}
	return out
}
