package git

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/go-github/v60/github"
	"golang.org/x/oauth2"

	"github.com/jadenj13/devpool/internals/issue"
)

const perPage = 100

type GitHubTracker struct {
	gh   *github.Client
	info RepoInfo
}

func NewGitHubClient(ctx context.Context, token string) *github.Client {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	return github.NewClient(oauth2.NewClient(ctx, ts))
}

func NewGitHubTracker(gh *github.Client, info RepoInfo) *GitHubTracker {
	return &GitHubTracker{gh: gh, info: info}
}

func (t *GitHubTracker) RepoURL() string { return t.info.RawURL }

func (t *GitHubTracker) ListIssues(ctx context.Context) ([]issue.Issue, error) {
	opts := &github.IssueListByRepoOptions{
		State:       "all",
		ListOptions: github.ListOptions{PerPage: perPage},
	}
	var out []issue.Issue
	for {
		page, resp, err := t.gh.Issues.ListByRepo(ctx, t.info.Owner, t.info.Repo, opts)
		if err != nil {
			return nil, fmt.Errorf("github list issues %s/%s: %w", t.info.Owner, t.info.Repo, classify(resp, err))
		}
		for _, gi := range page {
			if gi.IsPullRequest() {
				continue
			}
			out = append(out, t.convert(gi))
		}
		if resp.NextPage == 0 {
			return out, nil
		}
		opts.Page = resp.NextPage
	}
}

func (t *GitHubTracker) GetIssue(ctx context.Context, number int) (issue.Issue, error) {
	gi, resp, err := t.gh.Issues.Get(ctx, t.info.Owner, t.info.Repo, number)
	if err != nil {
		return issue.Issue{}, fmt.Errorf("github get issue %s/%s#%d: %w", t.info.Owner, t.info.Repo, number, classify(resp, err))
	}
	return t.convert(gi), nil
}

func (t *GitHubTracker) CreateIssue(ctx context.Context, input IssueInput) (issue.Issue, error) {
	req := &github.IssueRequest{
		Title:  github.String(input.Title),
		Body:   github.String(input.Body),
		Labels: &input.Labels,
	}
	gi, resp, err := t.gh.Issues.Create(ctx, t.info.Owner, t.info.Repo, req)
	if err != nil {
		return issue.Issue{}, fmt.Errorf("github create issue: %w", classify(resp, err))
	}
	return t.convert(gi), nil
}

func (t *GitHubTracker) UpdateIssue(ctx context.Context, number int, update IssueUpdate) error {
	req := &github.IssueRequest{
		Title:  github.String(update.Title),
		Body:   github.String(update.Body),
		Labels: &update.Labels,
	}
	if _, resp, err := t.gh.Issues.Edit(ctx, t.info.Owner, t.info.Repo, number, req); err != nil {
		return fmt.Errorf("github update issue #%d: %w", number, classify(resp, err))
	}
	return nil
}

func (t *GitHubTracker) SetState(ctx context.Context, number int, state issue.State) error {
	req := &github.IssueRequest{State: github.String(string(state))}
	if _, resp, err := t.gh.Issues.Edit(ctx, t.info.Owner, t.info.Repo, number, req); err != nil {
		return fmt.Errorf("github set state #%d: %w", number, classify(resp, err))
	}
	return nil
}

func (t *GitHubTracker) AddLabel(ctx context.Context, number int, label string) error {
	_, resp, err := t.gh.Issues.AddLabelsToIssue(ctx, t.info.Owner, t.info.Repo, number, []string{label})
	if err != nil {
		return fmt.Errorf("github add label: %w", classify(resp, err))
	}
	return nil
}

func (t *GitHubTracker) RemoveLabel(ctx context.Context, number int, label string) error {
	resp, err := t.gh.Issues.RemoveLabelForIssue(ctx, t.info.Owner, t.info.Repo, number, label)
	if err != nil {
		return fmt.Errorf("github remove label: %w", classify(resp, err))
	}
	return nil
}

func (t *GitHubTracker) convert(gi *github.Issue) issue.Issue {
	out := issue.Issue{
		ID:            gi.GetNodeID(),
		Number:        gi.GetNumber(),
		Owner:         t.info.Owner,
		Repo:          t.info.Repo,
		URL:           gi.GetHTMLURL(),
		Title:         gi.GetTitle(),
		Body:          gi.GetBody(),
		State:         issue.State(gi.GetState()),
		StateReason:   gi.GetStateReason(),
		Assignee:      gi.GetAssignee().GetLogin(),
		IsPullRequest: gi.IsPullRequest(),
	}
	for _, l := range gi.Labels {
		out.Labels = append(out.Labels, issue.Label{Name: l.GetName()})
	}
	if links := gi.PullRequestLinks; links != nil && links.MergedAt != nil {
		merged := links.MergedAt.Time
		out.MergedAt = &merged
	}
	return out
}

// ListOrgRepos returns the public, non-archived repositories of org.
func ListOrgRepos(ctx context.Context, gh *github.Client, org string) ([]string, error) {
	opts := &github.RepositoryListByOrgOptions{
		Type:        "public",
		ListOptions: github.ListOptions{PerPage: perPage},
	}
	var urls []string
	for {
		repos, resp, err := gh.Repositories.ListByOrg(ctx, org, opts)
		if err != nil {
			return nil, fmt.Errorf("github list repos for %s: %w", org, classify(resp, err))
		}
		for _, r := range repos {
			if r.GetArchived() {
				continue
			}
			urls = append(urls, r.GetHTMLURL())
		}
		if resp.NextPage == 0 {
			return urls, nil
		}
		opts.Page = resp.NextPage
	}
}

// classify maps provider misses onto the issue sentinels so that only real
// failures are reported as anomalies.
func classify(resp *github.Response, err error) error {
	var ger *github.ErrorResponse
	deleted := errors.As(err, &ger) && strings.Contains(strings.ToLower(ger.Message), "was deleted")
	switch {
	case deleted, resp != nil && resp.StatusCode == http.StatusGone:
		return fmt.Errorf("%w: %v", issue.ErrDeleted, err)
	case resp != nil && resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %v", issue.ErrNotFound, err)
	default:
		return err
	}
}
