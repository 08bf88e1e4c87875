package reconcile

import (
	"github.com/jadenj13/devpool/internals/issue"
)

// Input is everything a state decision looks at.
type Input struct {
	Partner   issue.Issue
	Directory issue.Issue
	// InPartners is false when the partner issue is absent from the current
	// partner issue set.
	InPartners bool
	HasPrice   bool
}

type Rule struct {
	Name    string
	Comment string
	Cause   func(Input) bool
	Effect  issue.State
}

func partnerClosedDirectoryOpen(in Input) bool {
	return !in.Partner.IsOpen() && in.Directory.IsOpen()
}

func partnerOpenDirectoryClosed(in Input) bool {
	return in.Partner.IsOpen() && !in.Directory.IsOpen()
}

// Rules is evaluated in order; the first applicable rule wins.
var Rules = []Rule{{
	Name:    "missing-in-partners",
	Comment: "missing in partners",
	Cause:   func(in Input) bool { return !in.InPartners },
	Effect:  issue.StateClosed,
}, {
	Name:    "no-price",
	Comment: "no price",
	Cause:   func(in Input) bool { return !in.HasPrice && in.Directory.IsOpen() },
	Effect:  issue.StateClosed,
}, {
	Name:    "merged",
	Comment: "merged",
	Cause:   func(in Input) bool { return partnerClosedDirectoryOpen(in) && in.Partner.MergedAt != nil },
	Effect:  issue.StateClosed,
}, {
	Name:    "assigned-closed",
	Comment: "assigned and closed",
	Cause:   func(in Input) bool { return partnerClosedDirectoryOpen(in) && in.Partner.IsAssigned() },
	Effect:  issue.StateClosed,
}, {
	Name:    "closed-unmerged",
	Comment: "closed without merge",
	Cause:   partnerClosedDirectoryOpen,
	Effect:  issue.StateClosed,
}, {
	Name:    "assigned-open",
	Comment: "assigned",
	Cause:   func(in Input) bool { return in.Partner.IsOpen() && in.Directory.IsOpen() && in.Partner.IsAssigned() },
	Effect:  issue.StateClosed,
}, {
	Name:    "reopen-merged",
	Comment: "merged issue reopened",
	Cause: func(in Input) bool {
		return partnerOpenDirectoryClosed(in) && in.Partner.MergedAt != nil && in.HasPrice && !in.Partner.IsAssigned()
	},
	Effect: issue.StateOpen,
}, {
	Name:    "reopen-unassigned",
	Comment: "unassigned",
	Cause: func(in Input) bool {
		return partnerOpenDirectoryClosed(in) && !in.Partner.IsAssigned() && in.HasPrice
	},
	Effect: issue.StateOpen,
}}

// Decide returns the transition to apply to the directory issue, if any: the
// first rule in order whose cause holds and whose effect differs from the
// directory issue's current state.
func Decide(rules []Rule, in Input) (Rule, bool) {
	for _, r := range rules {
		if r.Effect == in.Directory.State {
			continue
		}
		if r.Cause(in) {
			return r, true
		}
	}
	return Rule{}, false
}

// Message is the log line for an applied rule, e.g. "Closed (merged)".
func (r Rule) Message() string {
	verb := "Reopened"
	if r.Effect == issue.StateClosed {
		verb = "Closed"
	}
	return verb + " (" + r.Comment + ")"
}
