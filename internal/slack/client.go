package slack

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/slack-go/slack"
	"golang.org/x/time/rate"

	"slackrag/internal/metrics"
)

// API is the slice of the Slack Web API the sync engine consumes.
// Fakes implement it in tests.
type API interface {
	ListChannels(ctx context.Context) ([]Channel, error)
	ListUsers(ctx context.Context) ([]User, error)
	HistoryPage(ctx context.Context, channelID, oldestTS, cursor string) (HistoryPage, error)
	RepliesPage(ctx context.Context, channelID, threadTS, cursor string) (RepliesPage, error)
	JoinChannel(ctx context.Context, channelID string) error
}

var (
	// ErrAuth marks invalid credentials. Fatal for the whole process.
	ErrAuth = errors.New("slack: invalid credentials")

	// ErrNotInChannel is returned by history calls when the bot has not
	// joined the channel yet.
	ErrNotInChannel = errors.New("slack: not in channel")
)

var authErrorCodes = map[string]bool{
	"invalid_auth":     true,
	"not_authed":       true,
	"account_inactive": true,
	"token_revoked":    true,
	"token_expired":    true,
}

// Client wraps the Slack Web API with client-side pacing and metrics.
// Pacing stays under the conversations.* tier limits so the server-side
// rate limiter is the exception path, not the steady state.
type Client struct {
	api      *slack.Client
	limiter  *rate.Limiter
	pageSize int
}

func NewClient(botToken string) *Client {
	return &Client{
		api:      slack.New(botToken),
		limiter:  rate.NewLimiter(rate.Every(1200*time.Millisecond), 3),
		pageSize: 200,
	}
}

// CheckAuth verifies the token before any sync work starts.
func (c *Client) CheckAuth(ctx context.Context) error {
	resp, err := c.api.AuthTestContext(ctx)
	if err != nil {
		return classify("auth.test", err)
	}
	slog.Info("Slack auth verified", "team", resp.Team, "bot_user_id", resp.UserID)
	return nil
}

func (c *Client) ListChannels(ctx context.Context) ([]Channel, error) {
	var channels []Channel
	cursor := ""

	for {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		page, nextCursor, err := c.api.GetConversationsContext(ctx, &slack.GetConversationsParameters{
			Types:           []string{"public_channel"},
			ExcludeArchived: true,
			Limit:           c.pageSize,
			Cursor:          cursor,
		})
		if err != nil {
			return nil, classify("conversations.list", err)
		}
		metrics.SlackAPICalls.WithLabelValues("conversations.list", "success").Inc()

		for _, ch := range page {
			channels = append(channels, Channel{
				ID:        ch.ID,
				Name:      ch.Name,
				IsPrivate: ch.IsPrivate,
				IsMember:  ch.IsMember,
			})
		}

		if nextCursor == "" {
			return channels, nil
		}
		cursor = nextCursor
	}
}

func (c *Client) ListUsers(ctx context.Context) ([]User, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	users, err := c.api.GetUsersContext(ctx)
	if err != nil {
		return nil, classify("users.list", err)
	}
	metrics.SlackAPICalls.WithLabelValues("users.list", "success").Inc()

	out := make([]User, 0, len(users))
	for _, u := range users {
		out = append(out, User{ID: u.ID, Name: displayName(u)})
	}
	return out, nil
}

func (c *Client) HistoryPage(ctx context.Context, channelID, oldestTS, cursor string) (HistoryPage, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return HistoryPage{}, err
	}

	resp, err := c.api.GetConversationHistoryContext(ctx, &slack.GetConversationHistoryParameters{
		ChannelID: channelID,
		Oldest:    oldestTS,
		Cursor:    cursor,
		Limit:     c.pageSize,
	})
	if err != nil {
		return HistoryPage{}, classify("conversations.history", err)
	}
	metrics.SlackAPICalls.WithLabelValues("conversations.history", "success").Inc()

	return HistoryPage{
		Messages:   convertMessages(resp.Messages, channelID),
		NextCursor: resp.ResponseMetaData.NextCursor,
	}, nil
}

func (c *Client) RepliesPage(ctx context.Context, channelID, threadTS, cursor string) (RepliesPage, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return RepliesPage{}, err
	}

	msgs, _, nextCursor, err := c.api.GetConversationRepliesContext(ctx, &slack.GetConversationRepliesParameters{
		ChannelID: channelID,
		Timestamp: threadTS,
		Cursor:    cursor,
		Limit:     c.pageSize,
	})
	if err != nil {
		return RepliesPage{}, classify("conversations.replies", err)
	}
	metrics.SlackAPICalls.WithLabelValues("conversations.replies", "success").Inc()

	return RepliesPage{
		Messages:   convertMessages(msgs, channelID),
		NextCursor: nextCursor,
	}, nil
}

func (c *Client) JoinChannel(ctx context.Context, channelID string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	_, _, _, err := c.api.JoinConversationContext(ctx, channelID)
	if err != nil {
		return classify("conversations.join", err)
	}
	metrics.SlackAPICalls.WithLabelValues("conversations.join", "success").Inc()
	slog.Info("Joined channel", "channel_id", channelID)
	return nil
}

// noiseSubtypes are channel lifecycle events that carry no conversational
// content and never become documents.
var noiseSubtypes = map[string]bool{
	"channel_join":    true,
	"channel_leave":   true,
	"channel_purpose": true,
	"channel_topic":   true,
	"bot_message":     true,
}

func convertMessages(msgs []slack.Message, channelID string) []RawMessage {
	out := make([]RawMessage, 0, len(msgs))
	for _, m := range msgs {
		if m.Timestamp == "" {
			metrics.MessagesSkipped.WithLabelValues("malformed").Inc()
			slog.Warn("Skipping message without timestamp", "channel_id", channelID)
			continue
		}
		if noiseSubtypes[m.SubType] {
			metrics.MessagesSkipped.WithLabelValues("subtype").Inc()
			continue
		}
		out = append(out, RawMessage{
			ChannelID:  channelID,
			TS:         m.Timestamp,
			UserID:     m.User,
			Text:       m.Text,
			ThreadTS:   m.ThreadTimestamp,
			ReplyCount: m.ReplyCount,
		})
	}
	return out
}

func displayName(u slack.User) string {
	if u.Profile.DisplayName != "" {
		return u.Profile.DisplayName
	}
	if u.Profile.RealName != "" {
		return u.Profile.RealName
	}
	if u.Name != "" {
		return u.Name
	}
	return u.ID
}

// classify maps raw API errors onto the error taxonomy. Rate-limit errors
// pass through typed so the fetcher can read the retry hint.
func classify(method string, err error) error {
	var rl *slack.RateLimitedError
	if errors.As(err, &rl) {
		metrics.SlackAPICalls.WithLabelValues(method, "rate_limited").Inc()
		return err
	}

	metrics.SlackAPICalls.WithLabelValues(method, "error").Inc()

	if authErrorCodes[err.Error()] {
		return fmt.Errorf("%s: %w: %s", method, ErrAuth, err.Error())
	}
	if err.Error() == "not_in_channel" {
		return fmt.Errorf("%s: %w", method, ErrNotInChannel)
	}
	return fmt.Errorf("%s: %w", method, err)
}
