package reconcile

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jadenj13/devpool/internals/git"
	"github.com/jadenj13/devpool/internals/issue"
	"github.com/jadenj13/devpool/internals/labels"
)

const projectURL = "https://github.com/ubiquity/test-repo"

func partnerIssue() issue.Issue {
	return issue.Issue{
		ID:     "I_7",
		Number: 7,
		Owner:  "ubiquity",
		Repo:   "test-repo",
		URL:    "https://github.com/ubiquity/test-repo/issues/7",
		Title:  "Fix the widget",
		State:  issue.StateOpen,
		Labels: issue.Labels("Pricing: 200 USD", "Time: <1 Hour"),
	}
}

func mirrorOf(p issue.Issue) issue.Issue {
	return issue.Issue{
		ID:     "DIR_3",
		Number: 3,
		URL:    "https://github.com/ubiquity/devpool-directory/issues/3",
		Title:  p.Title,
		Body:   p.URL,
		State:  issue.StateOpen,
		Labels: issue.Labels(labels.Compute(p, projectURL, nil)...),
	}
}

type fakeWriter struct {
	updates  []git.IssueUpdate
	states   []issue.State
	labelOps []string
	stateErr error
}

func (w *fakeWriter) UpdateIssue(_ context.Context, _ int, u git.IssueUpdate) error {
	w.updates = append(w.updates, u)
	return nil
}

func (w *fakeWriter) SetState(_ context.Context, _ int, s issue.State) error {
	if w.stateErr != nil {
		return w.stateErr
	}
	w.states = append(w.states, s)
	return nil
}

func (w *fakeWriter) AddLabel(_ context.Context, _ int, l string) error {
	w.labelOps = append(w.labelOps, "+"+l)
	return nil
}

func (w *fakeWriter) RemoveLabel(_ context.Context, _ int, l string) error {
	w.labelOps = append(w.labelOps, "-"+l)
	return nil
}

func (w *fakeWriter) writes() int { return len(w.updates) + len(w.states) + len(w.labelOps) }

func TestDiff(t *testing.T) {
	p := partnerIssue()
	desired := labels.Compute(p, projectURL, nil)

	tests := []struct {
		name      string
		directory func() issue.Issue
		isFork    bool
		want      Changes
	}{{
		name:      "in sync",
		directory: func() issue.Issue { return mirrorOf(p) },
	}, {
		name: "title only",
		directory: func() issue.Issue {
			d := mirrorOf(p)
			d.Title = "Old title"
			return d
		},
		want: Changes{Title: true},
	}, {
		name:      "fork mode rewrites the body host",
		directory: func() issue.Issue { return mirrorOf(p) },
		isFork:    true,
		want:      Changes{Body: true},
	}, {
		name: "label order does not matter",
		directory: func() issue.Issue {
			d := mirrorOf(p)
			d.Labels = issue.Labels("Time: <1 Hour", "id: I_7", "Partner: ubiquity/test-repo", "Pricing: 200 USD")
			return d
		},
	}, {
		name: "unavailable alone is not a label change",
		directory: func() issue.Issue {
			d := mirrorOf(p)
			d.Labels = append(d.Labels, issue.Label{Name: labels.Unavailable})
			return d
		},
	}, {
		name: "price change is a label change",
		directory: func() issue.Issue {
			d := mirrorOf(p)
			d.Labels[0] = issue.Label{Name: "Pricing: 100 USD"}
			return d
		},
		want: Changes{Labels: true},
	}}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Diff(tt.directory(), p, desired, tt.isFork)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Diff() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestExpectedBody(t *testing.T) {
	p := partnerIssue()
	assert.Equal(t, "https://github.com/ubiquity/test-repo/issues/7", ExpectedBody(p, false))
	assert.Equal(t, "https://www.github.com/ubiquity/test-repo/issues/7", ExpectedBody(p, true))
}

func TestSyncMetadataTitleOnlyResubmitsRest(t *testing.T) {
	ctx := context.Background()
	p := partnerIssue()
	d := mirrorOf(p)
	d.Title = "Old title"
	existing := d.LabelNames()

	w := &fakeWriter{}
	r := New(w, false)
	got, changes, err := r.SyncMetadata(ctx, d, p, labels.Compute(p, projectURL, nil))
	require.NoError(t, err)

	assert.Equal(t, Changes{Title: true}, changes)
	require.Len(t, w.updates, 1)
	want := git.IssueUpdate{Title: "Fix the widget", Body: d.Body, Labels: existing}
	if diff := cmp.Diff(want, w.updates[0]); diff != "" {
		t.Errorf("update mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, "Fix the widget", got.Title)
	assert.Empty(t, w.labelOps)
}

func TestSyncMetadataUnavailable(t *testing.T) {
	ctx := context.Background()

	t.Run("assigned open partner marks mirror", func(t *testing.T) {
		p := partnerIssue()
		d := mirrorOf(p)
		p.Assignee = "alice"

		w := &fakeWriter{}
		got, _, err := New(w, false).SyncMetadata(ctx, d, p, labels.Compute(p, projectURL, nil))
		require.NoError(t, err)
		assert.Empty(t, w.updates)
		assert.Equal(t, []string{"+Unavailable"}, w.labelOps)
		assert.True(t, got.HasLabel(labels.Unavailable))
	})

	t.Run("unassigned partner clears mirror", func(t *testing.T) {
		p := partnerIssue()
		d := mirrorOf(p)
		d.Labels = append(d.Labels, issue.Label{Name: labels.Unavailable})

		w := &fakeWriter{}
		got, _, err := New(w, false).SyncMetadata(ctx, d, p, labels.Compute(p, projectURL, nil))
		require.NoError(t, err)
		assert.Equal(t, []string{"-Unavailable"}, w.labelOps)
		assert.False(t, got.HasLabel(labels.Unavailable))
	})

	t.Run("label rewrite carries unavailable", func(t *testing.T) {
		p := partnerIssue()
		p.Assignee = "alice"
		p.Labels = issue.Labels("Pricing: 300 USD")
		d := mirrorOf(partnerIssue())

		w := &fakeWriter{}
		_, changes, err := New(w, false).SyncMetadata(ctx, d, p, labels.Compute(p, projectURL, nil))
		require.NoError(t, err)
		assert.True(t, changes.Labels)
		require.Len(t, w.updates, 1)
		assert.Contains(t, w.updates[0].Labels, labels.Unavailable)
		assert.Empty(t, w.labelOps)
	})
}

func TestSecondPassIsIdle(t *testing.T) {
	ctx := context.Background()
	p := partnerIssue()
	p.Assignee = "bob"
	d := mirrorOf(partnerIssue())
	d.Title = "stale"
	desired := labels.Compute(p, projectURL, nil)

	w := &fakeWriter{}
	r := New(w, true)
	d, _, err := r.SyncMetadata(ctx, d, p, desired)
	require.NoError(t, err)
	in := Input{Partner: p, Directory: d, InPartners: true, HasPrice: true}
	_, applied, err := r.SyncState(ctx, in)
	require.NoError(t, err)
	require.True(t, applied)
	d.State = issue.StateClosed
	first := w.writes()
	require.NotZero(t, first)

	d, changes, err := r.SyncMetadata(ctx, d, p, desired)
	require.NoError(t, err)
	assert.False(t, changes.Any())
	_, applied, err = r.SyncState(ctx, Input{Partner: p, Directory: d, InPartners: true, HasPrice: true})
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Equal(t, first, w.writes(), "second pass must not write")
}

func TestDecide(t *testing.T) {
	merged := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		partner    issue.State
		directory  issue.State
		assigned   bool
		mergedAt   *time.Time
		inPartners bool
		hasPrice   bool
		want       string
	}{
		{name: "missing", partner: issue.StateOpen, directory: issue.StateOpen, hasPrice: true, want: "missing-in-partners"},
		{name: "missing but already closed", partner: issue.StateOpen, directory: issue.StateClosed, inPartners: false},
		{name: "no price", partner: issue.StateOpen, directory: issue.StateOpen, inPartners: true, want: "no-price"},
		{name: "merged", partner: issue.StateClosed, directory: issue.StateOpen, mergedAt: &merged, assigned: true, inPartners: true, hasPrice: true, want: "merged"},
		{name: "assigned closed", partner: issue.StateClosed, directory: issue.StateOpen, assigned: true, inPartners: true, hasPrice: true, want: "assigned-closed"},
		{name: "closed unmerged", partner: issue.StateClosed, directory: issue.StateOpen, inPartners: true, hasPrice: true, want: "closed-unmerged"},
		{name: "assigned open", partner: issue.StateOpen, directory: issue.StateOpen, assigned: true, inPartners: true, hasPrice: true, want: "assigned-open"},
		{name: "reopen merged", partner: issue.StateOpen, directory: issue.StateClosed, mergedAt: &merged, inPartners: true, hasPrice: true, want: "reopen-merged"},
		{name: "reopen unassigned", partner: issue.StateOpen, directory: issue.StateClosed, inPartners: true, hasPrice: true, want: "reopen-unassigned"},
		{name: "closed and assigned stays closed", partner: issue.StateOpen, directory: issue.StateClosed, assigned: true, inPartners: true, hasPrice: true},
		{name: "closed without price stays closed", partner: issue.StateOpen, directory: issue.StateClosed, inPartners: true},
		{name: "open and unassigned stays open", partner: issue.StateOpen, directory: issue.StateOpen, inPartners: true, hasPrice: true},
		{name: "both closed", partner: issue.StateClosed, directory: issue.StateClosed, inPartners: true, hasPrice: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := Input{
				Partner:    issue.Issue{State: tt.partner, MergedAt: tt.mergedAt},
				Directory:  issue.Issue{State: tt.directory},
				InPartners: tt.inPartners,
				HasPrice:   tt.hasPrice,
			}
			if tt.assigned {
				in.Partner.Assignee = "alice"
			}
			rule, ok := Decide(Rules, in)
			assert.Equal(t, tt.want != "", ok)
			assert.Equal(t, tt.want, rule.Name)
		})
	}
}

// Every combination of the decision dimensions yields the first rule in table
// order whose cause holds and whose effect differs from the current state.
func TestDecideMatchesFirstApplicableRule(t *testing.T) {
	merged := time.Now()
	states := []issue.State{issue.StateOpen, issue.StateClosed}
	for _, ps := range states {
		for _, ds := range states {
			for mask := range 16 {
				in := Input{
					Partner:    issue.Issue{State: ps},
					Directory:  issue.Issue{State: ds},
					InPartners: mask&1 != 0,
					HasPrice:   mask&2 != 0,
				}
				if mask&4 != 0 {
					in.Partner.Assignee = "alice"
				}
				if mask&8 != 0 {
					in.Partner.MergedAt = &merged
				}

				var want string
				for _, r := range Rules {
					if r.Cause(in) && r.Effect != ds {
						want = r.Name
						break
					}
				}
				got, ok := Decide(Rules, in)
				name := fmt.Sprintf("%s/%s/%04b", ps, ds, mask)
				assert.Equal(t, want, got.Name, name)
				assert.Equal(t, want != "", ok, name)
				if ok {
					assert.NotEqual(t, ds, got.Effect, name)
				}
			}
		}
	}
}

func TestSyncStateMergedScenario(t *testing.T) {
	ctx := context.Background()
	merged := time.Now()
	p := partnerIssue()
	p.State = issue.StateClosed
	p.MergedAt = &merged
	d := mirrorOf(partnerIssue())

	w := &fakeWriter{}
	rule, applied, err := New(w, false).SyncState(ctx, Input{Partner: p, Directory: d, InPartners: true, HasPrice: true})
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, "merged", rule.Name)
	assert.Equal(t, "Closed (merged)", rule.Message())
	assert.Equal(t, []issue.State{issue.StateClosed}, w.states)
}

func TestSyncStateTransportFailure(t *testing.T) {
	ctx := context.Background()
	p := partnerIssue()
	p.State = issue.StateClosed
	d := mirrorOf(partnerIssue())

	w := &fakeWriter{stateErr: errors.New("502 bad gateway")}
	rule, applied, err := New(w, false).SyncState(ctx, Input{Partner: p, Directory: d, InPartners: true, HasPrice: true})
	require.Error(t, err)
	assert.False(t, applied)
	assert.Equal(t, "closed-unmerged", rule.Name)
}
