package social

import (
	"context"
	"fmt"

	"github.com/slack-go/slack"
)

// SlackPoster publishes announcements to a channel. The message timestamp
// serves as the post identifier.
type SlackPoster struct {
	client    *slack.Client
	channelID string
}

func NewSlackPoster(botToken, channelID string) *SlackPoster {
	return &SlackPoster{
		client:    slack.New(botToken),
		channelID: channelID,
	}
}

func (p *SlackPoster) Post(ctx context.Context, text string) (string, error) {
	_, ts, err := p.client.PostMessageContext(ctx, p.channelID,
		slack.MsgOptionText(text, false),
		slack.MsgOptionDisableLinkUnfurl(),
	)
	if err != nil {
		return "", fmt.Errorf("slack post: %w", err)
	}
	return ts, nil
}

func (p *SlackPoster) Delete(ctx context.Context, id string) error {
	if _, _, err := p.client.DeleteMessageContext(ctx, p.channelID, id); err != nil {
		return fmt.Errorf("slack delete %s: %w", id, err)
	}
	return nil
}
