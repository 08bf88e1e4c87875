package git

import (
	"context"
	"fmt"

	gitlab "gitlab.com/gitlab-org/api/client-go"

	"github.com/jadenj13/devpool/internals/issue"
)

// GitLabTracker serves partner repositories hosted on GitLab.
type GitLabTracker struct {
	gl      *gitlab.Client
	info    RepoInfo
	baseURL string
}

func NewGitLabTracker(token, baseURL string, info RepoInfo) (*GitLabTracker, error) {
	gl, err := gitlab.NewClient(token, gitlab.WithBaseURL(baseURL+"/api/v4"))
	if err != nil {
		return nil, fmt.Errorf("gitlab client: %w", err)
	}
	return &GitLabTracker{gl: gl, info: info, baseURL: baseURL}, nil
}

func (t *GitLabTracker) RepoURL() string { return t.info.RawURL }

func (t *GitLabTracker) pid() string {
	return t.info.Owner + "/" + t.info.Repo
}

func (t *GitLabTracker) ListIssues(ctx context.Context) ([]issue.Issue, error) {
	opts := &gitlab.ListProjectIssuesOptions{
		State: gitlab.Ptr("all"),
	}
	opts.PerPage = perPage

	var out []issue.Issue
	for {
		page, resp, err := t.gl.Issues.ListProjectIssues(t.pid(), opts, gitlab.WithContext(ctx))
		if err != nil {
			return nil, fmt.Errorf("gitlab list issues %s: %w", t.pid(), classifyGitLab(resp, err))
		}
		for _, gi := range page {
			out = append(out, t.convert(gi))
		}
		if resp.NextPage == 0 {
			return out, nil
		}
		opts.Page = resp.NextPage
	}
}

func (t *GitLabTracker) GetIssue(ctx context.Context, number int) (issue.Issue, error) {
	gi, resp, err := t.gl.Issues.GetIssue(t.pid(), int64(number), gitlab.WithContext(ctx))
	if err != nil {
		return issue.Issue{}, fmt.Errorf("gitlab get issue: %w", classifyGitLab(resp, err))
	}
	return t.convert(gi), nil
}

func (t *GitLabTracker) CreateIssue(ctx context.Context, input IssueInput) (issue.Issue, error) {
	opts := &gitlab.CreateIssueOptions{
		Title:       gitlab.Ptr(input.Title),
		Description: gitlab.Ptr(input.Body),
		Labels:      (*gitlab.LabelOptions)(&input.Labels),
	}
	gi, resp, err := t.gl.Issues.CreateIssue(t.pid(), opts, gitlab.WithContext(ctx))
	if err != nil {
		return issue.Issue{}, fmt.Errorf("gitlab create issue: %w", classifyGitLab(resp, err))
	}
	return t.convert(gi), nil
}

func (t *GitLabTracker) UpdateIssue(ctx context.Context, number int, update IssueUpdate) error {
	opts := &gitlab.UpdateIssueOptions{
		Title:       gitlab.Ptr(update.Title),
		Description: gitlab.Ptr(update.Body),
		Labels:      (*gitlab.LabelOptions)(&update.Labels),
	}
	return t.update(ctx, number, opts)
}

func (t *GitLabTracker) SetState(ctx context.Context, number int, state issue.State) error {
	event := "reopen"
	if state == issue.StateClosed {
		event = "close"
	}
	return t.update(ctx, number, &gitlab.UpdateIssueOptions{StateEvent: gitlab.Ptr(event)})
}

func (t *GitLabTracker) AddLabel(ctx context.Context, number int, label string) error {
	return t.update(ctx, number, &gitlab.UpdateIssueOptions{
		AddLabels: (*gitlab.LabelOptions)(&[]string{label}),
	})
}

func (t *GitLabTracker) RemoveLabel(ctx context.Context, number int, label string) error {
	return t.update(ctx, number, &gitlab.UpdateIssueOptions{
		RemoveLabels: (*gitlab.LabelOptions)(&[]string{label}),
	})
}

func (t *GitLabTracker) update(ctx context.Context, number int, opts *gitlab.UpdateIssueOptions) error {
	_, resp, err := t.gl.Issues.UpdateIssue(t.pid(), int64(number), opts, gitlab.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("gitlab update issue #%d: %w", number, classifyGitLab(resp, err))
	}
	return nil
}

func (t *GitLabTracker) convert(gi *gitlab.Issue) issue.Issue {
	out := issue.Issue{
		ID:     fmt.Sprintf("gid://gitlab/Issue/%d", gi.ID),
		Number: int(gi.IID), // IID is the project-scoped issue number
		Owner:  t.info.Owner,
		Repo:   t.info.Repo,
		URL:    gi.WebURL,
		Title:  gi.Title,
		Body:   gi.Description,
		State:  issue.StateOpen,
		Labels: issue.Labels(gi.Labels...),
	}
	if gi.State == "closed" {
		out.State = issue.StateClosed
		out.StateReason = "completed"
	}
	if gi.Assignee != nil {
		out.Assignee = gi.Assignee.Username
	}
	return out
}

func classifyGitLab(resp *gitlab.Response, err error) error {
	if resp != nil && resp.StatusCode == 404 {
		return fmt.Errorf("%w: %v", issue.ErrNotFound, err)
	}
	return err
}
