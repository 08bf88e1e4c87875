// Package syncer drives one reconciliation pass over every partner
// repository and collects the snapshots the pass publishes.
package syncer

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/chainguard-dev/clog"

	"github.com/jadenj13/devpool/internals/git"
	"github.com/jadenj13/devpool/internals/identity"
	"github.com/jadenj13/devpool/internals/issue"
	"github.com/jadenj13/devpool/internals/labels"
	"github.com/jadenj13/devpool/internals/metrics"
	"github.com/jadenj13/devpool/internals/persist"
	"github.com/jadenj13/devpool/internals/reconcile"
	"github.com/jadenj13/devpool/internals/social"
	"github.com/jadenj13/devpool/internals/stats"
)

// Files written to storage at the end of a pass.
const (
	StatisticsFile = "devpool-statistics.json"
	IssuesFile     = "devpool-issues.json"
	SocialFile     = "social-map.json"
)

type TrackerFactory interface {
	TrackerFor(ctx context.Context, repoURL string) (git.Tracker, git.RepoInfo, error)
}

type Announcer interface {
	Announce(ctx context.Context, m social.Map, partnerID string, mirror issue.Issue) error
	Retract(ctx context.Context, m social.Map, partnerID string) error
}

type Config struct {
	// Projects are the resolved partner repository URLs.
	Projects      []string
	Categories    map[string]string
	IsFork        bool
	DirectorySlug string // "owner/repo" of the directory
}

type Syncer struct {
	directory git.Tracker
	factory   TrackerFactory
	resolver  *identity.Resolver
	announcer Announcer
	rec       *reconcile.Reconciler
	cfg       Config

	// Social maps partner identifiers to announcement post IDs. It is loaded
	// by the caller and written back with the other snapshots.
	Social social.Map
}

type Option func(*Syncer)

// WithAnnouncer enables announcements for new mirrors.
func WithAnnouncer(a Announcer) Option {
	return func(s *Syncer) { s.announcer = a }
}

func WithSocialMap(m social.Map) Option {
	return func(s *Syncer) {
		if m != nil {
			s.Social = m
		}
	}
}

func New(directory git.Tracker, factory TrackerFactory, resolver *identity.Resolver, cfg Config, opts ...Option) *Syncer {
	s := &Syncer{
		directory: directory,
		factory:   factory,
		resolver:  resolver,
		rec:       reconcile.New(directory, cfg.IsFork),
		cfg:       cfg,
		Social:    social.Map{},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

type Result struct {
	Statistics  stats.Statistics
	Directory   []issue.Issue
	Partners    identity.Map
	Created     int
	Updated     int
	Transitions int
	Failures    int
}

// Run performs one full pass. Only a failure to read the directory aborts
// it; everything else is logged per issue or per repository.
func (s *Syncer) Run(ctx context.Context) (*Result, error) {
	log := clog.FromContext(ctx)

	current, err := s.directory.ListIssues(ctx)
	if err != nil {
		return nil, fmt.Errorf("list directory issues: %w", err)
	}
	mirrors := indexMirrors(ctx, current)
	clear(s.resolver.Tally)

	res := &Result{}
	var partners []issue.Issue
	for _, projectURL := range s.cfg.Projects {
		found, err := s.syncProject(ctx, projectURL, mirrors, res)
		if err != nil {
			log.With("project", projectURL, "err", err).Error("Skipping partner repository")
			metrics.IssueFailures.WithLabelValues("list_partner").Inc()
			res.Failures++
			continue
		}
		partners = append(partners, found...)
	}

	res.Partners = identity.Build(ctx, partners)
	s.repairOrphans(ctx, mirrors, res)

	settled, err := s.directory.ListIssues(ctx)
	if err != nil {
		log.With("err", err).Warn("Could not re-read directory, using in-memory state")
		settled = snapshot(mirrors)
	}
	res.Directory = settled
	res.Statistics = stats.Aggregate(ctx, settled, res.Partners, s.cfg.DirectorySlug)

	for outcome, n := range s.resolver.Tally {
		log.With("outcome", outcome.String(), "count", n).Info("Identity repair summary")
	}
	log.With("created", res.Created, "updated", res.Updated, "transitions", res.Transitions, "failures", res.Failures).
		Info("Sync pass finished")
	return res, nil
}

// Stage queues the snapshots of res for the batch writer.
func (s *Syncer) Stage(w *persist.Writer, res *Result) error {
	if err := w.AddJSON(StatisticsFile, res.Statistics); err != nil {
		return err
	}
	if err := w.AddJSON(IssuesFile, res.Directory); err != nil {
		return err
	}
	return w.AddJSON(SocialFile, s.Social)
}

func (s *Syncer) syncProject(ctx context.Context, projectURL string, mirrors map[string]issue.Issue, res *Result) ([]issue.Issue, error) {
	tracker, info, err := s.factory.TrackerFor(ctx, projectURL)
	if err != nil {
		return nil, fmt.Errorf("tracker: %w", err)
	}
	found, err := tracker.ListIssues(ctx)
	if err != nil {
		return nil, err
	}

	log := clog.FromContext(ctx).With("project", info.Slug())
	log.With("issues", len(found)).Info("Syncing partner repository")

	var out []issue.Issue
	for _, partner := range found {
		if partner.IsPullRequest {
			continue
		}
		out = append(out, partner)
		if err := s.syncIssue(ctx, projectURL, partner, mirrors, res); err != nil {
			log.With("partner_url", partner.URL, "err", err).Error("Failed to sync partner issue")
			res.Failures++
		}
	}
	return out, nil
}

func (s *Syncer) syncIssue(ctx context.Context, projectURL string, partner issue.Issue, mirrors map[string]issue.Issue, res *Result) error {
	id := strings.TrimSpace(partner.ID)
	desired := labels.Compute(partner, projectURL, s.cfg.Categories)
	_, hasPrice := labels.PriceLabel(partner)

	mirror, ok := mirrors[id]
	if !ok {
		if !partner.IsOpen() || partner.IsAssigned() || !hasPrice {
			return nil
		}
		return s.create(ctx, id, partner, desired, mirrors, res)
	}

	mirror, err := s.reconcileMirror(ctx, id, mirror, partner, desired, hasPrice, res)
	mirrors[id] = mirror
	return err
}

// reconcileMirror brings the metadata of mirror in line with partner, then
// applies at most one state transition.
func (s *Syncer) reconcileMirror(ctx context.Context, id string, mirror, partner issue.Issue, desired []string, hasPrice bool, res *Result) (issue.Issue, error) {
	var failed error
	updated, changes, err := s.rec.SyncMetadata(ctx, mirror, partner, desired)
	if err != nil {
		metrics.IssueFailures.WithLabelValues("metadata").Inc()
		failed = err
	}
	if changes.Any() && err == nil {
		res.Updated++
		countChanges(changes)
	}

	// Metadata and state are independent writes.
	updated, err = s.applyState(ctx, reconcile.Input{
		Partner:    partner,
		Directory:  updated,
		InPartners: true,
		HasPrice:   hasPrice,
	}, id, res)
	if err != nil {
		return updated, err
	}
	return updated, failed
}

func (s *Syncer) create(ctx context.Context, id string, partner issue.Issue, desired []string, mirrors map[string]issue.Issue, res *Result) error {
	created, err := s.directory.CreateIssue(ctx, git.IssueInput{
		Title:  partner.Title,
		Body:   reconcile.ExpectedBody(partner, s.cfg.IsFork),
		Labels: desired,
	})
	if err != nil {
		metrics.IssueFailures.WithLabelValues("create").Inc()
		return fmt.Errorf("create mirror: %w", err)
	}
	mirrors[id] = created
	res.Created++
	metrics.MirrorsCreated.Inc()

	log := clog.FromContext(ctx).With("partner_url", partner.URL, "directory_url", created.URL)
	log.Info("Created directory issue")

	if s.announcer != nil {
		if err := s.announcer.Announce(ctx, s.Social, id, created); err != nil {
			log.With("err", err).Warn("Failed to announce directory issue")
		}
	}
	return nil
}

func (s *Syncer) applyState(ctx context.Context, in reconcile.Input, partnerID string, res *Result) (issue.Issue, error) {
	rule, applied, err := s.rec.SyncState(ctx, in)
	if err != nil {
		metrics.IssueFailures.WithLabelValues("state").Inc()
		return in.Directory, err
	}
	if !applied {
		return in.Directory, nil
	}

	res.Transitions++
	metrics.StateTransitions.WithLabelValues(rule.Name).Inc()
	in.Directory.State = rule.Effect

	if rule.Effect == issue.StateClosed && s.announcer != nil {
		if err := s.announcer.Retract(ctx, s.Social, partnerID); err != nil {
			clog.FromContext(ctx).With("directory_url", in.Directory.URL, "err", err).Warn("Failed to retract announcement")
		}
	}
	return in.Directory, nil
}

// repairOrphans handles mirrors whose id: label matched no partner issue in
// this pass: the identity chain either recovers the partner or the mirror is
// closed as missing.
func (s *Syncer) repairOrphans(ctx context.Context, mirrors map[string]issue.Issue, res *Result) {
	log := clog.FromContext(ctx)
	for id, mirror := range orderedMirrors(mirrors) {
		if _, ok := res.Partners[id]; ok {
			continue
		}

		partner, outcome, err := s.resolver.Repair(ctx, mirror, res.Partners)
		metrics.IdentityOutcomes.WithLabelValues(outcome.String()).Inc()

		switch outcome {
		case identity.OutcomeResolved, identity.OutcomeRelinked:
			s.adopt(ctx, id, mirror, partner, mirrors, res)
			continue
		case identity.OutcomeMissing, identity.OutcomeHardDeleted:
		case identity.OutcomeDeleted:
			delete(mirrors, id)
			continue
		case identity.OutcomeFailed:
			log.With("directory_url", mirror.URL, "err", err).Error("Identity repair failed, leaving issue for the next pass")
			res.Failures++
			continue
		default:
			continue
		}

		in := reconcile.Input{Partner: partner, Directory: mirror, InPartners: false}
		updated, err := s.applyState(ctx, in, id, res)
		if err != nil {
			log.With("directory_url", mirror.URL, "err", err).Error("Failed to apply state to orphaned mirror")
			res.Failures++
		}
		mirrors[id] = updated
	}
}

// adopt re-keys a mirror whose partner was recovered under a new
// identifier and reconciles it against that partner in the same pass.
func (s *Syncer) adopt(ctx context.Context, staleID string, mirror, partner issue.Issue, mirrors map[string]issue.Issue, res *Result) {
	id := strings.TrimSpace(partner.ID)

	// The resolver has already swapped the id: label on the directory.
	mirror.Labels = issue.Labels(slices.DeleteFunc(mirror.LabelNames(), func(name string) bool {
		return strings.HasPrefix(name, labels.IDPrefix)
	})...)
	mirror.Labels = append(mirror.Labels, issue.Label{Name: labels.IDPrefix + id})

	if id != staleID {
		delete(mirrors, staleID)
		if post, ok := s.Social[staleID]; ok {
			delete(s.Social, staleID)
			s.Social[id] = post
		}
	}

	desired := labels.Compute(partner, projectURLOf(partner), s.cfg.Categories)
	_, hasPrice := labels.PriceLabel(partner)
	updated, err := s.reconcileMirror(ctx, id, mirror, partner, desired, hasPrice, res)
	if err != nil {
		clog.FromContext(ctx).With("directory_url", mirror.URL, "partner_url", partner.URL, "err", err).
			Error("Failed to reconcile recovered mirror")
		res.Failures++
	}
	mirrors[id] = updated
}

// projectURLOf is the repository URL of an issue, derived from its web URL.
func projectURLOf(i issue.Issue) string {
	for _, sep := range []string{"/-/issues/", "/issues/"} {
		if repo, _, ok := strings.Cut(i.URL, sep); ok {
			return repo
		}
	}
	return "https://github.com/" + i.Owner + "/" + i.Repo
}

// indexMirrors keys directory issues by their id: label. Issues without one
// are not ours and are left out.
func indexMirrors(ctx context.Context, directory []issue.Issue) map[string]issue.Issue {
	log := clog.FromContext(ctx)
	out := make(map[string]issue.Issue, len(directory))
	for _, d := range directory {
		if d.IsPullRequest {
			continue
		}
		id, ok := labels.ID(d)
		if !ok {
			log.With("directory_url", d.URL).Debug("Skipping directory issue without id label")
			continue
		}
		if prev, ok := out[id]; ok {
			log.With("id", id, "kept", prev.URL, "duplicate", d.URL).Error("Two directory issues share one id label")
			continue
		}
		out[id] = d
	}
	return out
}

func countChanges(c reconcile.Changes) {
	if c.Title {
		metrics.MetadataUpdates.WithLabelValues("title").Inc()
	}
	if c.Body {
		metrics.MetadataUpdates.WithLabelValues("body").Inc()
	}
	if c.Labels {
		metrics.MetadataUpdates.WithLabelValues("labels").Inc()
	}
}
