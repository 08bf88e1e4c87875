package issue

import (
	"errors"
	"strings"
	"time"
)

type State string

const (
	StateOpen   State = "open"
	StateClosed State = "closed"
)

// StateReasonNotPlanned marks an issue closed without being resolved.
const StateReasonNotPlanned = "not_planned"

var (
	// ErrNotFound is the expected miss: the issue does not exist or is not visible.
	ErrNotFound = errors.New("issue not found")
	// ErrDeleted is returned when the provider reports the issue was deleted.
	// It wraps ErrNotFound so callers that only care about the miss still match.
	ErrDeleted = &deletedError{}
)

type deletedError struct{}

func (*deletedError) Error() string        { return "issue was deleted" }
func (*deletedError) Is(target error) bool { return target == ErrNotFound }

type Label struct {
	Name string `json:"name"`
}

type Issue struct {
	ID            string     `json:"id"` // provider-assigned stable identifier (GitHub node ID)
	Number        int        `json:"number"`
	Owner         string     `json:"owner"`
	Repo          string     `json:"repo"`
	URL           string     `json:"html_url"`
	Title         string     `json:"title"`
	Body          string     `json:"body"`
	State         State      `json:"state"`
	StateReason   string     `json:"state_reason,omitempty"`
	Assignee      string     `json:"assignee,omitempty"`
	Labels        []Label    `json:"labels"`
	MergedAt      *time.Time `json:"merged_at,omitempty"`
	IsPullRequest bool       `json:"-"`
}

func (i Issue) IsOpen() bool     { return i.State == StateOpen }
func (i Issue) IsAssigned() bool { return i.Assignee != "" }

func (i Issue) LabelNames() []string {
	names := make([]string, 0, len(i.Labels))
	for _, l := range i.Labels {
		names = append(names, l.Name)
	}
	return names
}

func (i Issue) HasLabel(name string) bool {
	for _, l := range i.Labels {
		if l.Name == name {
			return true
		}
	}
	return false
}

// LabelWithPrefix returns the first label name starting with prefix.
func (i Issue) LabelWithPrefix(prefix string) (string, bool) {
	for _, l := range i.Labels {
		if strings.HasPrefix(l.Name, prefix) {
			return l.Name, true
		}
	}
	return "", false
}

// Slug is the "owner/repo" form of the repository the issue lives in.
func (i Issue) Slug() string {
	return i.Owner + "/" + i.Repo
}

func Labels(names ...string) []Label {
	out := make([]Label, 0, len(names))
	for _, n := range names {
		out = append(out, Label{Name: n})
	}
	return out
}
