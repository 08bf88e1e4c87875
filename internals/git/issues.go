package git

import (
	"context"

	"github.com/jadenj13/devpool/internals/issue"
)

// Tracker is the issue read/write surface of a single repository.
type Tracker interface {
	// ListIssues returns every issue in the repository, open and closed,
	// with pull requests filtered out.
	ListIssues(ctx context.Context) ([]issue.Issue, error)
	GetIssue(ctx context.Context, number int) (issue.Issue, error)
	CreateIssue(ctx context.Context, input IssueInput) (issue.Issue, error)
	// UpdateIssue writes title, body and labels together; the API replaces
	// all three, so unchanged fields must be resubmitted as they are.
	UpdateIssue(ctx context.Context, number int, update IssueUpdate) error
	SetState(ctx context.Context, number int, state issue.State) error
	AddLabel(ctx context.Context, number int, label string) error
	RemoveLabel(ctx context.Context, number int, label string) error
	RepoURL() string
}

type IssueInput struct {
	Title  string
	Body   string   // Markdown
	Labels []string // e.g. ["Pricing: 200 USD", "Partner: org/repo"]
}

type IssueUpdate struct {
	Title  string
	Body   string
	Labels []string
}

type Platform int

const (
	PlatformGitHub Platform = iota
	PlatformGitLab
)

func (p Platform) String() string {
	switch p {
	case PlatformGitHub:
		return "github"
	case PlatformGitLab:
		return "gitlab"
	default:
		return "unknown"
	}
}
