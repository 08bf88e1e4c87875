package git

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/go-github/v60/github"
	"github.com/shurcooL/githubv4"

	"github.com/jadenj13/devpool/internals/issue"
)

// GraphClient resolves node identifiers and performs the mutations the REST
// API does not offer.
type GraphClient struct {
	gql *githubv4.Client
}

func NewGraphClient(gh *github.Client) *GraphClient {
	return &GraphClient{gql: githubv4.NewClient(gh.Client())}
}

// LookupIssue resolves a node ID to a minimal issue descriptor.
func (c *GraphClient) LookupIssue(ctx context.Context, id string) (issue.Issue, error) {
	var query struct {
		Node struct {
			Issue struct {
				ID         string
				Number     int
				Title      string
				Body       string
				State      string
				URL        string
				Repository struct {
					Name  string
					Owner struct {
						Login string
					}
				}
			} `graphql:"... on Issue"`
		} `graphql:"node(id: $id)"`
	}

	variables := map[string]any{
		"id": githubv4.ID(id),
	}

	if err := c.gql.Query(ctx, &query, variables); err != nil {
		if strings.Contains(err.Error(), "Could not resolve to a node") {
			return issue.Issue{}, fmt.Errorf("%w: node %s", issue.ErrNotFound, id)
		}
		return issue.Issue{}, fmt.Errorf("graphql node query: %w", err)
	}

	n := query.Node.Issue
	if n.ID == "" {
		return issue.Issue{}, fmt.Errorf("%w: node %s is not an issue", issue.ErrNotFound, id)
	}
	return issue.Issue{
		ID:     n.ID,
		Number: n.Number,
		Owner:  n.Repository.Owner.Login,
		Repo:   n.Repository.Name,
		URL:    n.URL,
		Title:  n.Title,
		Body:   n.Body,
		State:  issue.State(strings.ToLower(n.State)),
	}, nil
}

// DeleteIssue removes an issue outright. It requires admin on the repository.
func (c *GraphClient) DeleteIssue(ctx context.Context, id string) error {
	var mutation struct {
		DeleteIssue struct {
			ClientMutationID *string
		} `graphql:"deleteIssue(input: $input)"`
	}

	input := githubv4.DeleteIssueInput{IssueID: githubv4.ID(id)}
	if err := c.gql.Mutate(ctx, &mutation, input, nil); err != nil {
		return fmt.Errorf("graphql delete issue %s: %w", id, err)
	}
	return nil
}
