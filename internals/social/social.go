// Package social announces newly mirrored issues and retracts the
// announcement once the issue is no longer available.
package social

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/chainguard-dev/clog"

	"github.com/jadenj13/devpool/internals/issue"
	"github.com/jadenj13/devpool/internals/labels"
)

const maxPostLength = 280

type Poster interface {
	Post(ctx context.Context, text string) (string, error)
	Delete(ctx context.Context, id string) error
}

// Drafter writes announcement copy. Optional.
type Drafter interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

const draftSystem = `You write one short announcement for a paid open source task.
Reply with the announcement text only: no hashtags, no emoji, at most 200 characters.
Do not include any URL; it is appended for you.`

// Map records the announcement of each mirror, keyed by partner identifier.
type Map map[string]string

type Announcer struct {
	poster  Poster
	drafter Drafter
}

func NewAnnouncer(poster Poster, drafter Drafter) *Announcer {
	return &Announcer{poster: poster, drafter: drafter}
}

// Announce posts about mirror and records the post under partnerID.
func (a *Announcer) Announce(ctx context.Context, m Map, partnerID string, mirror issue.Issue) error {
	id, err := a.poster.Post(ctx, a.text(ctx, mirror))
	if err != nil {
		return err
	}
	m[partnerID] = id
	clog.FromContext(ctx).With("post_id", id, "directory_url", mirror.URL).Info("Announced directory issue")
	return nil
}

// Retract removes the announcement for partnerID, if there is one.
func (a *Announcer) Retract(ctx context.Context, m Map, partnerID string) error {
	id, ok := m[partnerID]
	if !ok {
		return nil
	}
	if err := a.poster.Delete(ctx, id); err != nil {
		return err
	}
	delete(m, partnerID)
	clog.FromContext(ctx).With("post_id", id, "id", partnerID).Info("Retracted announcement")
	return nil
}

func (a *Announcer) text(ctx context.Context, mirror issue.Issue) string {
	fallback := Compose(mirror)
	if a.drafter == nil {
		return fallback
	}

	price := "an unspecified reward"
	if l, ok := labels.PriceLabel(mirror); ok {
		price = strings.TrimPrefix(labels.Canonical(l), labels.PricingPrefix)
	}
	draft, err := a.drafter.Complete(ctx, draftSystem, fmt.Sprintf("Task: %s\nReward: %s", mirror.Title, price))
	if err != nil {
		clog.FromContext(ctx).With("err", err).Warn("Drafting announcement failed, using template")
		return fallback
	}
	text := draft + "\n\n" + mirror.URL
	if draft == "" || utf8.RuneCountInString(text) > maxPostLength {
		return fallback
	}
	return text
}

// Compose is the template announcement for mirror.
func Compose(mirror issue.Issue) string {
	head := mirror.Title
	if l, ok := labels.PriceLabel(mirror); ok {
		if amount := strings.TrimPrefix(labels.Canonical(l), labels.PricingPrefix); amount != "not set" {
			head = amount + ": " + head
		}
	}
	budget := maxPostLength - utf8.RuneCountInString(mirror.URL) - 2
	if budget > 1 && utf8.RuneCountInString(head) > budget {
		head = string([]rune(head)[:budget-1]) + "…"
	}
	return head + "\n\n" + mirror.URL
}
