package reconcile

import (
	"slices"
	"strings"

	"github.com/jadenj13/devpool/internals/git"
	"github.com/jadenj13/devpool/internals/issue"
	"github.com/jadenj13/devpool/internals/labels"
)

const (
	githubOrigin = "https://github.com"
	// forkOrigin still resolves to the issue but does not create a
	// cross-reference on the partner repository.
	forkOrigin = "https://www.github.com"
)

// Changes records which metadata fields of a directory issue are stale.
type Changes struct {
	Title  bool
	Body   bool
	Labels bool
}

func (c Changes) Any() bool { return c.Title || c.Body || c.Labels }

// ExpectedBody is the body a directory issue mirroring partner should have.
func ExpectedBody(partner issue.Issue, isFork bool) string {
	if isFork {
		return strings.Replace(partner.URL, githubOrigin, forkOrigin, 1)
	}
	return partner.URL
}

// Diff compares directory against its partner and the label set the codec
// computed for it. Unavailable is ignored on both sides.
func Diff(directory, partner issue.Issue, desired []string, isFork bool) Changes {
	return Changes{
		Title:  directory.Title != partner.Title,
		Body:   directory.Body != ExpectedBody(partner, isFork),
		Labels: !sameLabels(directory.LabelNames(), desired),
	}
}

// UpdateFor builds the full-object write for c. Fields without a change are
// resubmitted as the directory issue currently has them.
func UpdateFor(directory, partner issue.Issue, desired []string, c Changes, isFork bool) git.IssueUpdate {
	u := git.IssueUpdate{
		Title:  directory.Title,
		Body:   directory.Body,
		Labels: directory.LabelNames(),
	}
	if c.Title {
		u.Title = partner.Title
	}
	if c.Body {
		u.Body = ExpectedBody(partner, isFork)
	}
	if c.Labels {
		u.Labels = withUnavailable(desired, WantsUnavailable(partner))
	}
	return u
}

// WantsUnavailable reports whether the mirror of partner must carry the
// Unavailable label.
func WantsUnavailable(partner issue.Issue) bool {
	return partner.IsOpen() && partner.IsAssigned()
}

func withUnavailable(names []string, want bool) []string {
	out := withoutUnavailable(names)
	if want {
		out = append(out, labels.Unavailable)
	}
	return out
}

func withoutUnavailable(names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if n != labels.Unavailable {
			out = append(out, n)
		}
	}
	return out
}

func sameLabels(a, b []string) bool {
	x, y := withoutUnavailable(a), withoutUnavailable(b)
	slices.Sort(x)
	slices.Sort(y)
	return strings.Join(x, ",") == strings.Join(y, ",")
}
