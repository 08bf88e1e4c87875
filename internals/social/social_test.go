package social

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jadenj13/devpool/internals/issue"
)

type fakePoster struct {
	posts   []string
	deleted []string
	err     error
}

func (p *fakePoster) Post(_ context.Context, text string) (string, error) {
	if p.err != nil {
		return "", p.err
	}
	p.posts = append(p.posts, text)
	return "post-" + string(rune('0'+len(p.posts))), nil
}

func (p *fakePoster) Delete(_ context.Context, id string) error {
	p.deleted = append(p.deleted, id)
	return nil
}

type fakeDrafter struct {
	reply string
	err   error
}

func (d fakeDrafter) Complete(context.Context, string, string) (string, error) {
	return d.reply, d.err
}

var mirror = issue.Issue{
	Title:  "Fix the widget",
	URL:    "https://github.com/ubiquity/devpool-directory/issues/3",
	Labels: issue.Labels("Pricing: 200 USD", "id: I_7"),
}

func TestCompose(t *testing.T) {
	assert.Equal(t, "200 USD: Fix the widget\n\nhttps://github.com/ubiquity/devpool-directory/issues/3", Compose(mirror))

	unpriced := mirror
	unpriced.Labels = issue.Labels("Pricing: not set")
	assert.Equal(t, "Fix the widget\n\nhttps://github.com/ubiquity/devpool-directory/issues/3", Compose(unpriced))

	long := mirror
	long.Title = strings.Repeat("word ", 100)
	got := Compose(long)
	assert.LessOrEqual(t, utf8.RuneCountInString(got), maxPostLength)
	assert.True(t, strings.HasSuffix(got, long.URL))
}

func TestAnnounceAndRetract(t *testing.T) {
	ctx := context.Background()
	p := &fakePoster{}
	a := NewAnnouncer(p, nil)
	m := Map{}

	require.NoError(t, a.Announce(ctx, m, "I_7", mirror))
	assert.Equal(t, Map{"I_7": "post-1"}, m)
	assert.Equal(t, []string{Compose(mirror)}, p.posts)

	require.NoError(t, a.Retract(ctx, m, "I_7"))
	assert.Empty(t, m)
	assert.Equal(t, []string{"post-1"}, p.deleted)

	// Nothing to retract.
	require.NoError(t, a.Retract(ctx, m, "I_7"))
	assert.Len(t, p.deleted, 1)
}

func TestAnnounceFailureLeavesMapUntouched(t *testing.T) {
	a := NewAnnouncer(&fakePoster{err: errors.New("rate limited")}, nil)
	m := Map{}
	assert.Error(t, a.Announce(context.Background(), m, "I_7", mirror))
	assert.Empty(t, m)
}

func TestDrafter(t *testing.T) {
	ctx := context.Background()

	p := &fakePoster{}
	require.NoError(t, NewAnnouncer(p, fakeDrafter{reply: "Earn 200 USD fixing the widget"}).Announce(ctx, Map{}, "I_7", mirror))
	assert.Equal(t, "Earn 200 USD fixing the widget\n\n"+mirror.URL, p.posts[0])

	p = &fakePoster{}
	require.NoError(t, NewAnnouncer(p, fakeDrafter{err: errors.New("overloaded")}).Announce(ctx, Map{}, "I_7", mirror))
	assert.Equal(t, Compose(mirror), p.posts[0])

	p = &fakePoster{}
	require.NoError(t, NewAnnouncer(p, fakeDrafter{reply: strings.Repeat("x", 300)}).Announce(ctx, Map{}, "I_7", mirror))
	assert.Equal(t, Compose(mirror), p.posts[0])
}
