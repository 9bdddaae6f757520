// Package slackgw implements pester.ChatGateway on the Slack Web API.
package slackgw

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/slack-go/slack"
	"golang.org/x/time/rate"

	"pester"
)

// Gateway posts to a single Slack channel. Outbound posts are paced by a
// client-side limiter kept under Slack's chat.postMessage budget of roughly
// one message per second; a 429 that gets through anyway surfaces as
// pester.ErrRateLimited.
type Gateway struct {
	client  *slack.Client
	channel string
	limiter *rate.Limiter
}

var _ pester.ChatGateway = &Gateway{}

func New(token, channel string) *Gateway {
	return &Gateway{
		client:  slack.New(token),
		channel: channel,
		limiter: rate.NewLimiter(rate.Every(1200*time.Millisecond), 1),
	}
}

func (g *Gateway) PostRoot(ctx context.Context, text string) (string, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return "", errors.Wrap(err, "waiting for rate limiter")
	}
	_, ts, err := g.client.PostMessageContext(ctx, g.channel,
		slack.MsgOptionText(text, false),
		slack.MsgOptionDisableLinkUnfurl(),
	)
	return ts, wrapSlackErr(err, "posting root message")
}

// CreateThread returns the thread ID for a posted message. Slack threads are
// addressed by the root message's timestamp, so no API call is needed.
func (g *Gateway) CreateThread(ctx context.Context, messageID string) (string, error) {
	return messageID, nil
}

func (g *Gateway) PostReply(ctx context.Context, threadID, text string) (string, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return "", errors.Wrap(err, "waiting for rate limiter")
	}
	_, ts, err := g.client.PostMessageContext(ctx, g.channel,
		slack.MsgOptionText(text, false),
		slack.MsgOptionTS(threadID),
		slack.MsgOptionDisableLinkUnfurl(),
	)
	return ts, wrapSlackErr(err, "posting reply")
}

func wrapSlackErr(err error, msg string) error {
	if err == nil {
		return nil
	}
	var rl *slack.RateLimitedError
	if errors.As(err, &rl) {
		return errors.Wrapf(pester.ErrRateLimited, "%s: retry after %s", msg, rl.RetryAfter)
	}
	return errors.Wrap(err, msg)
}
