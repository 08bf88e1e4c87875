// Package stats totals tasks and rewards over the settled directory.
package stats

import (
	"context"
	"strings"

	"github.com/chainguard-dev/clog"

	"github.com/jadenj13/devpool/internals/identity"
	"github.com/jadenj13/devpool/internals/issue"
	"github.com/jadenj13/devpool/internals/labels"
)

type Buckets struct {
	NotAssigned int `json:"notAssigned"`
	Assigned    int `json:"assigned"`
	Completed   int `json:"completed"`
	Total       int `json:"total"`
}

type Statistics struct {
	Rewards Buckets `json:"rewards"`
	Tasks   Buckets `json:"tasks"`
}

type bucket int

const (
	bucketNone bucket = iota
	bucketNotAssigned
	bucketAssigned
	bucketCompleted
)

func (b *Buckets) add(which bucket, n int) {
	switch which {
	case bucketNotAssigned:
		b.NotAssigned += n
	case bucketAssigned:
		b.Assigned += n
	case bucketCompleted:
		b.Completed += n
	}
	b.Total += n
}

// Aggregate classifies every directory issue of directoryRepo ("owner/repo")
// by the state of it and its partner and sums the rewards per bucket.
func Aggregate(ctx context.Context, directory []issue.Issue, m identity.Map, directoryRepo string) Statistics {
	log := clog.FromContext(ctx)
	marker := "/" + strings.ToLower(directoryRepo) + "/issues/"

	var s Statistics
	for _, d := range directory {
		if !strings.Contains(strings.ToLower(d.URL), marker) {
			log.With("directory_url", d.URL).Debug("Skipping issue outside the directory repository")
			continue
		}

		id, ok := labels.ID(d)
		if !ok {
			log.With("directory_url", d.URL).Error("Directory issue has no id label, not counted")
			continue
		}
		partner, ok := m[id]
		if !ok {
			log.With("directory_url", d.URL, "id", id).Error("Directory issue has no partner issue, not counted")
			continue
		}

		which := classify(d, partner)
		if which == bucketNone {
			log.With("directory_url", d.URL, "partner_url", partner.URL,
				"directory_state", d.State, "partner_state", partner.State, "state_reason", partner.StateReason).
				Warn("Inconsistent issue states, not counted")
			continue
		}

		s.Tasks.add(which, 1)
		s.Rewards.add(which, reward(ctx, d))
	}
	return s
}

func classify(d, partner issue.Issue) bucket {
	switch {
	case partner.IsOpen() && d.IsOpen():
		return bucketNotAssigned
	case partner.IsOpen() && !d.IsOpen():
		return bucketAssigned
	case !partner.IsOpen() && !d.IsOpen() && partner.StateReason != issue.StateReasonNotPlanned:
		return bucketCompleted
	default:
		return bucketNone
	}
}

// reward is the price on d, or 0 when it is missing or malformed.
func reward(ctx context.Context, d issue.Issue) int {
	name, ok := labels.PriceLabel(d)
	if !ok {
		return 0
	}
	price, err := labels.Price(name)
	if err != nil {
		clog.FromContext(ctx).With("directory_url", d.URL, "label", name, "err", err).Warn("Unusable price, counting as 0")
		return 0
	}
	return price
}
