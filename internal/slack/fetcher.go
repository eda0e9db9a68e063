package slack

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/slack-go/slack"

	"slackrag/internal/metrics"
)

// BackoffPolicy bounds retry behavior for a single page request.
// Rate-limited retries honor the server hint and do not consume attempts;
// transient failures burn attempts until MaxAttempts is reached.
type BackoffPolicy struct {
	Initial     time.Duration
	Max         time.Duration
	MaxAttempts int
}

func (p BackoffPolicy) newBackOff() *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.Initial
	bo.MaxInterval = p.Max
	bo.MaxElapsedTime = 0
	// Reset folds the assignments into the current interval; without it
	// the first wait uses the library default, not p.Initial.
	bo.Reset()
	return bo
}

// Fetcher retrieves one channel's messages newer than a cursor position,
// following continuation tokens until the range is exhausted and pulling
// full reply sets for every threaded root before returning.
type Fetcher struct {
	api    API
	policy BackoffPolicy
}

func NewFetcher(api API, policy BackoffPolicy) *Fetcher {
	return &Fetcher{api: api, policy: policy}
}

// FetchSince returns all messages with ts > sinceTS in ascending ts order.
// The returned set is complete: an error means the caller must treat the
// whole range as unfetched and leave the channel cursor untouched.
func (f *Fetcher) FetchSince(ctx context.Context, channelID, sinceTS string) ([]RawMessage, error) {
	var out []RawMessage
	cursor := ""
	joined := false
	seenThreads := make(map[string]bool)

	for {
		var page HistoryPage
		err := f.retryPage(ctx, func() error {
			var pageErr error
			page, pageErr = f.api.HistoryPage(ctx, channelID, sinceTS, cursor)
			return pageErr
		})
		if errors.Is(err, ErrNotInChannel) && !joined {
			joined = true
			if joinErr := f.api.JoinChannel(ctx, channelID); joinErr != nil {
				return nil, fmt.Errorf("fetch %s: %w", channelID, joinErr)
			}
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("fetch %s: %w", channelID, err)
		}

		for _, msg := range page.Messages {
			root := msg.RootTS()
			// A thread is fetched at most once per call; broadcast
			// replies echoed by history never duplicate it.
			if seenThreads[root] {
				continue
			}

			if msg.IsThreadRoot() {
				out = append(out, msg)
				if msg.ReplyCount > 0 {
					seenThreads[root] = true
					replies, err := f.fetchThread(ctx, channelID, root, false)
					if err != nil {
						return nil, fmt.Errorf("fetch %s thread %s: %w", channelID, root, err)
					}
					out = append(out, replies...)
				}
				continue
			}

			// A reply whose root lies behind the cursor: the root is
			// not in this range, so refetch the whole thread (root
			// included) and let the rebuilt document overwrite the old
			// one by its deterministic ID.
			seenThreads[root] = true
			thread, err := f.fetchThread(ctx, channelID, root, true)
			if err != nil {
				return nil, fmt.Errorf("fetch %s thread %s: %w", channelID, root, err)
			}
			out = append(out, thread...)
		}

		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}

	sort.SliceStable(out, func(i, j int) bool { return TSLess(out[i].TS, out[j].TS) })
	metrics.MessagesFetched.Add(float64(len(out)))
	return out, nil
}

// fetchThread drains a thread's reply pages. includeRoot keeps the root
// message the replies API echoes back; callers that already hold the root
// from a history page pass false.
func (f *Fetcher) fetchThread(ctx context.Context, channelID, threadTS string, includeRoot bool) ([]RawMessage, error) {
	var out []RawMessage
	cursor := ""

	for {
		var page RepliesPage
		err := f.retryPage(ctx, func() error {
			var pageErr error
			page, pageErr = f.api.RepliesPage(ctx, channelID, threadTS, cursor)
			return pageErr
		})
		if err != nil {
			return nil, err
		}

		for _, msg := range page.Messages {
			if msg.TS == threadTS && !includeRoot {
				continue
			}
			out = append(out, msg)
		}

		if page.NextCursor == "" {
			return out, nil
		}
		cursor = page.NextCursor
	}
}

// retryPage retries the identical page request until it succeeds or the
// attempt budget runs out. The wait is the server's retry hint when rate
// limited, otherwise the randomized exponential schedule. Waits are
// cancellable through ctx.
func (f *Fetcher) retryPage(ctx context.Context, fetch func() error) error {
	bo := f.policy.newBackOff()
	attempts := 0

	for {
		err := fetch()
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrAuth) || errors.Is(err, ErrNotInChannel) || ctx.Err() != nil {
			return err
		}

		var wait time.Duration
		var rl *slack.RateLimitedError
		if errors.As(err, &rl) {
			wait = rl.RetryAfter
			if wait <= 0 {
				wait = bo.NextBackOff()
			}
			metrics.RateLimitWaits.Inc()
			slog.Warn("Rate limited, retrying same page", "wait", wait)
		} else {
			attempts++
			if attempts >= f.policy.MaxAttempts {
				return fmt.Errorf("giving up after %d attempts: %w", attempts, err)
			}
			wait = bo.NextBackOff()
			metrics.FetchRetries.Inc()
			slog.Warn("Transient fetch error, retrying",
				"attempt", attempts,
				"max_attempts", f.policy.MaxAttempts,
				"wait", wait,
				"error", err)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
