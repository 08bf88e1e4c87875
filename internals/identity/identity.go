// Package identity maps partner issue identifiers to partner issues and
// repairs directory issues whose id: label no longer resolves.
package identity

import (
	"context"
	"errors"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/chainguard-dev/clog"

	"github.com/jadenj13/devpool/internals/issue"
	"github.com/jadenj13/devpool/internals/labels"
)

// Map is keyed by the partner issue's stable identifier.
type Map map[string]issue.Issue

// Build indexes partners by identifier. Collisions keep the last issue and
// are logged as anomalies.
func Build(ctx context.Context, partners []issue.Issue) Map {
	log := clog.FromContext(ctx)
	m := make(Map, len(partners))
	for _, p := range partners {
		id := strings.TrimSpace(p.ID)
		if prev, ok := m[id]; ok {
			log.With("id", id, "previous", prev.URL, "current", p.URL).Warn("Identifier collision in partner issues")
		}
		m[id] = p
	}
	return m
}

type GraphLookup interface {
	LookupIssue(ctx context.Context, id string) (issue.Issue, error)
}

// IssueFetcher reads one issue of the repository at repoURL, on whichever
// provider hosts it.
type IssueFetcher interface {
	FetchIssue(ctx context.Context, repoURL string, number int) (issue.Issue, error)
}

// DirectoryWriter is the slice of the directory tracker the repair path mutates.
type DirectoryWriter interface {
	AddLabel(ctx context.Context, number int, label string) error
	RemoveLabel(ctx context.Context, number int, label string) error
}

type IssueDeleter interface {
	DeleteIssue(ctx context.Context, id string) error
}

type Outcome int

const (
	// OutcomeForeign: the directory issue carries no id: label.
	OutcomeForeign Outcome = iota
	// OutcomeResolved: the graph lookup found the partner issue.
	OutcomeResolved
	// OutcomeRelinked: the body URL resolved and the id: label was swapped.
	OutcomeRelinked
	// OutcomeMissing: the body URL points at an issue that no longer exists.
	OutcomeMissing
	// OutcomeHardDeleted: as missing, but the provider reported a deletion.
	OutcomeHardDeleted
	// OutcomeDeleted: no back-reference could be recovered; the mirror was deleted.
	OutcomeDeleted
	// OutcomeFailed: a transport failure interrupted the repair.
	OutcomeFailed
)

func (o Outcome) String() string {
	return [...]string{"foreign", "resolved", "relinked", "missing", "hard_deleted", "deleted", "failed"}[o]
}

// Resolver carries the collaborators of the repair chain and tallies outcomes.
type Resolver struct {
	graph   GraphLookup
	fetcher IssueFetcher
	writer  DirectoryWriter
	deleter IssueDeleter

	Tally map[Outcome]int
}

func NewResolver(graph GraphLookup, fetcher IssueFetcher, writer DirectoryWriter, deleter IssueDeleter) *Resolver {
	return &Resolver{
		graph:   graph,
		fetcher: fetcher,
		writer:  writer,
		deleter: deleter,
		Tally:   map[Outcome]int{},
	}
}

// bodyURL matches GitHub issue URLs and GitLab ones (nested groups and the
// /-/issues/ form included).
var bodyURL = regexp.MustCompile(`https://(?:www\.)?(github\.com|[^/\s]*gitlab[^/\s]*)/(\S+?)/(?:-/)?issues/(\d+)`)

// gitlabIDPrefix marks identifiers assigned by GitLab; the GitHub graph
// cannot resolve them.
const gitlabIDPrefix = "gid://gitlab/"

// ParseIssueURL extracts the repository URL and issue number from an issue
// URL embedded in text.
func ParseIssueURL(text string) (repoURL string, number int, ok bool) {
	m := bodyURL.FindStringSubmatch(text)
	if m == nil {
		return "", 0, false
	}
	host, path := strings.ToLower(m[1]), strings.Trim(m[2], "/")
	segments := strings.Split(path, "/")
	if len(segments) < 2 || slices.Contains(segments, "") {
		return "", 0, false
	}
	if host == "github.com" && len(segments) != 2 {
		return "", 0, false
	}
	n, err := strconv.Atoi(m[3])
	if err != nil {
		return "", 0, false
	}
	return "https://" + host + "/" + path, n, true
}

// Repair tries to re-establish the partner issue behind directory. A
// recovered partner is inserted into m under its current identifier and
// returned alongside the outcome.
func (r *Resolver) Repair(ctx context.Context, directory issue.Issue, m Map) (issue.Issue, Outcome, error) {
	partner, outcome, err := r.repair(ctx, directory, m)
	r.Tally[outcome]++
	return partner, outcome, err
}

func (r *Resolver) repair(ctx context.Context, directory issue.Issue, m Map) (issue.Issue, Outcome, error) {
	log := clog.FromContext(ctx).With("directory_url", directory.URL)

	staleID, ok := labels.ID(directory)
	if !ok {
		return issue.Issue{}, OutcomeForeign, nil
	}
	log = log.With("stale_id", staleID)

	if r.graph != nil && !strings.HasPrefix(staleID, gitlabIDPrefix) {
		found, err := r.graph.LookupIssue(ctx, staleID)
		switch {
		case err == nil:
			partner, err := r.fetcher.FetchIssue(ctx, "https://github.com/"+found.Owner+"/"+found.Repo, found.Number)
			if err == nil {
				log.With("partner_url", partner.URL).Info("Resolved partner issue by identifier")
				if err := r.relink(ctx, directory, staleID, partner, m); err != nil {
					return partner, OutcomeFailed, err
				}
				return partner, OutcomeResolved, nil
			}
			log.With("err", err).Warn("Identifier resolved but partner issue could not be fetched")
		case errors.Is(err, issue.ErrNotFound):
			log.Debug("Identifier did not resolve, falling back to body URL")
		default:
			log.With("err", err).Warn("Identifier lookup failed, falling back to body URL")
		}
	}

	repoURL, number, ok := ParseIssueURL(directory.Body)
	if !ok {
		log.With("body", directory.Body).Error("Back-reference is unrecoverable, deleting directory issue")
		if err := r.deleter.DeleteIssue(ctx, directory.ID); err != nil {
			log.With("err", err).Error("Failed to delete directory issue")
			return issue.Issue{}, OutcomeFailed, err
		}
		return issue.Issue{}, OutcomeDeleted, nil
	}

	partner, err := r.fetcher.FetchIssue(ctx, repoURL, number)
	switch {
	case errors.Is(err, issue.ErrDeleted):
		log.With("err", err).Info("Partner issue was deleted")
		return issue.Issue{}, OutcomeHardDeleted, nil
	case errors.Is(err, issue.ErrNotFound):
		log.With("repo_url", repoURL, "number", number).Info("Partner issue is gone")
		return issue.Issue{}, OutcomeMissing, nil
	case err != nil:
		log.With("err", err).Error("Failed to fetch partner issue from body URL")
		return issue.Issue{}, OutcomeFailed, err
	}

	if err := r.relink(ctx, directory, staleID, partner, m); err != nil {
		return partner, OutcomeFailed, err
	}
	log.With("partner_url", partner.URL).Info("Relinked directory issue to partner issue")
	return partner, OutcomeRelinked, nil
}

// relink records partner in m and points the directory issue's id: label at
// it. The label swap is two independent writes; the add is attempted even if
// the remove fails.
func (r *Resolver) relink(ctx context.Context, directory issue.Issue, staleID string, partner issue.Issue, m Map) error {
	newID := strings.TrimSpace(partner.ID)
	m[newID] = partner
	if newID == staleID {
		return nil
	}

	log := clog.FromContext(ctx).With("directory_url", directory.URL, "stale_id", staleID, "new_id", newID)
	if err := r.writer.RemoveLabel(ctx, directory.Number, labels.IDPrefix+staleID); err != nil {
		log.With("err", err).Warn("Failed to remove stale id label")
	}
	if err := r.writer.AddLabel(ctx, directory.Number, labels.IDPrefix+newID); err != nil {
		log.With("err", err).Error("Failed to add refreshed id label")
		return err
	}
	return nil
}
