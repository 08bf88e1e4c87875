// Package reconcile decides how a directory issue must change to match its
// partner issue: which metadata fields to rewrite and which open/closed
// transition to apply.
package reconcile

import (
	"context"
	"fmt"

	"github.com/chainguard-dev/clog"

	"github.com/jadenj13/devpool/internals/git"
	"github.com/jadenj13/devpool/internals/issue"
	"github.com/jadenj13/devpool/internals/labels"
)

// Writer is the directory-side write surface.
type Writer interface {
	UpdateIssue(ctx context.Context, number int, update git.IssueUpdate) error
	SetState(ctx context.Context, number int, state issue.State) error
	AddLabel(ctx context.Context, number int, label string) error
	RemoveLabel(ctx context.Context, number int, label string) error
}

type Reconciler struct {
	dir    Writer
	isFork bool
	rules  []Rule
}

func New(dir Writer, isFork bool) *Reconciler {
	return &Reconciler{dir: dir, isFork: isFork, rules: Rules}
}

// SyncMetadata rewrites title, body and labels of directory when they drift
// from partner, then brings the Unavailable label in line with the partner's
// assignment. It returns the directory issue as it should now read.
func (r *Reconciler) SyncMetadata(ctx context.Context, directory, partner issue.Issue, desired []string) (issue.Issue, Changes, error) {
	log := clog.FromContext(ctx).With("directory_url", directory.URL, "partner_url", partner.URL)

	changes := Diff(directory, partner, desired, r.isFork)
	if changes.Any() {
		update := UpdateFor(directory, partner, desired, changes, r.isFork)
		if err := r.dir.UpdateIssue(ctx, directory.Number, update); err != nil {
			return directory, changes, fmt.Errorf("update metadata: %w", err)
		}
		directory.Title, directory.Body = update.Title, update.Body
		directory.Labels = issue.Labels(update.Labels...)
		log.With("title", changes.Title, "body", changes.Body, "labels", changes.Labels).Info("Updated directory issue metadata")
	}

	want := WantsUnavailable(partner)
	switch has := directory.HasLabel(labels.Unavailable); {
	case want && !has:
		if err := r.dir.AddLabel(ctx, directory.Number, labels.Unavailable); err != nil {
			return directory, changes, fmt.Errorf("add %s: %w", labels.Unavailable, err)
		}
		directory.Labels = append(directory.Labels, issue.Label{Name: labels.Unavailable})
		log.Info("Marked directory issue unavailable")
	case !want && has:
		if err := r.dir.RemoveLabel(ctx, directory.Number, labels.Unavailable); err != nil {
			return directory, changes, fmt.Errorf("remove %s: %w", labels.Unavailable, err)
		}
		directory.Labels = issue.Labels(withoutUnavailable(directory.LabelNames())...)
		log.Info("Marked directory issue available")
	}
	return directory, changes, nil
}

// SyncState applies at most one state transition. A failed write is returned
// with the rule that triggered it; metadata already written stays written.
func (r *Reconciler) SyncState(ctx context.Context, in Input) (Rule, bool, error) {
	rule, ok := Decide(r.rules, in)
	if !ok {
		return Rule{}, false, nil
	}

	log := clog.FromContext(ctx).With("rule", rule.Name, "directory_url", in.Directory.URL, "partner_url", in.Partner.URL)
	if err := r.dir.SetState(ctx, in.Directory.Number, rule.Effect); err != nil {
		log.With("err", err).Error("Failed to change directory issue state")
		return rule, false, fmt.Errorf("set state %s: %w", rule.Effect, err)
	}
	log.Info(rule.Message())
	return rule, true, nil
}
