package slack

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/slack-go/slack"
)

// fakeAPI serves scripted history and reply pages and can inject failures
// on specific page requests.
type fakeAPI struct {
	historyPages []HistoryPage
	replyPages   map[string][]RepliesPage

	// failures maps a request key to a queue of errors returned before
	// the request succeeds. Keys: "history:<cursor>", "replies:<ts>:<cursor>".
	failures map[string][]error

	historyCalls int
	joinCalls    int
	joined       bool
}

func (f *fakeAPI) takeFailure(key string) error {
	queue := f.failures[key]
	if len(queue) == 0 {
		return nil
	}
	err := queue[0]
	f.failures[key] = queue[1:]
	return err
}

func (f *fakeAPI) HistoryPage(ctx context.Context, channelID, oldestTS, cursor string) (HistoryPage, error) {
	f.historyCalls++
	if err := f.takeFailure("history:" + cursor); err != nil {
		return HistoryPage{}, err
	}
	idx := 0
	for i := range f.historyPages {
		if pageCursor(i) == cursor {
			idx = i
			break
		}
	}
	return f.historyPages[idx], nil
}

func (f *fakeAPI) RepliesPage(ctx context.Context, channelID, threadTS, cursor string) (RepliesPage, error) {
	if err := f.takeFailure("replies:" + threadTS + ":" + cursor); err != nil {
		return RepliesPage{}, err
	}
	pages := f.replyPages[threadTS]
	idx := 0
	for i := range pages {
		if pageCursor(i) == cursor {
			idx = i
			break
		}
	}
	return pages[idx], nil
}

func (f *fakeAPI) ListChannels(ctx context.Context) ([]Channel, error) { return nil, nil }
func (f *fakeAPI) ListUsers(ctx context.Context) ([]User, error)       { return nil, nil }

func (f *fakeAPI) JoinChannel(ctx context.Context, channelID string) error {
	f.joinCalls++
	f.joined = true
	return nil
}

// pageCursor gives page i the cursor its predecessor advertises.
func pageCursor(i int) string {
	if i == 0 {
		return ""
	}
	return "cursor-" + string(rune('0'+i))
}

func testPolicy() BackoffPolicy {
	return BackoffPolicy{Initial: time.Millisecond, Max: 2 * time.Millisecond, MaxAttempts: 3}
}

func msg(ts string) RawMessage {
	return RawMessage{ChannelID: "C1", TS: ts, UserID: "U1", Text: "m" + ts}
}

func threePageAPI() *fakeAPI {
	return &fakeAPI{
		historyPages: []HistoryPage{
			{Messages: []RawMessage{msg("300.000000"), msg("250.000000")}, NextCursor: pageCursor(1)},
			{Messages: []RawMessage{msg("200.000000"), msg("150.000000")}, NextCursor: pageCursor(2)},
			{Messages: []RawMessage{msg("100.000000")}},
		},
		failures: map[string][]error{},
	}
}

func tsList(msgs []RawMessage) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.TS
	}
	return out
}

func assertTS(t *testing.T, got []RawMessage, want []string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %d messages %v, want %d %v", len(got), tsList(got), len(want), want)
	}
	for i := range want {
		if got[i].TS != want[i] {
			t.Errorf("message[%d].TS = %s, want %s", i, got[i].TS, want[i])
		}
	}
}

func TestFetchSince_MultiPageAscending(t *testing.T) {
	fetcher := NewFetcher(threePageAPI(), testPolicy())

	msgs, err := fetcher.FetchSince(context.Background(), "C1", "")
	if err != nil {
		t.Fatalf("FetchSince() error: %v", err)
	}
	assertTS(t, msgs, []string{"100.000000", "150.000000", "200.000000", "250.000000", "300.000000"})
}

func TestFetchSince_NoGapUnderRateLimiting(t *testing.T) {
	// Baseline without injection.
	fetcher := NewFetcher(threePageAPI(), testPolicy())
	baseline, err := fetcher.FetchSince(context.Background(), "C1", "")
	if err != nil {
		t.Fatalf("baseline FetchSince() error: %v", err)
	}

	// Rate-limit page 2 twice; the same page must be retried, not skipped.
	api := threePageAPI()
	api.failures["history:"+pageCursor(1)] = []error{
		&slack.RateLimitedError{RetryAfter: time.Millisecond},
		&slack.RateLimitedError{RetryAfter: time.Millisecond},
	}
	fetcher = NewFetcher(api, testPolicy())

	msgs, err := fetcher.FetchSince(context.Background(), "C1", "")
	if err != nil {
		t.Fatalf("FetchSince() with rate limiting error: %v", err)
	}
	assertTS(t, msgs, tsList(baseline))
}

func TestFetchSince_TransientRetryThenSuccess(t *testing.T) {
	api := threePageAPI()
	api.failures["history:"] = []error{
		errors.New("connection reset"),
		errors.New("connection reset"),
	}
	fetcher := NewFetcher(api, testPolicy())

	msgs, err := fetcher.FetchSince(context.Background(), "C1", "")
	if err != nil {
		t.Fatalf("FetchSince() error after transient failures: %v", err)
	}
	if len(msgs) != 5 {
		t.Errorf("got %d messages, want 5", len(msgs))
	}
}

func TestFetchSince_TransientExhaustion(t *testing.T) {
	api := threePageAPI()
	api.failures["history:"] = []error{
		errors.New("connection reset"),
		errors.New("connection reset"),
		errors.New("connection reset"),
		errors.New("connection reset"),
	}
	fetcher := NewFetcher(api, testPolicy())

	_, err := fetcher.FetchSince(context.Background(), "C1", "")
	if err == nil {
		t.Fatal("FetchSince() expected error after retry exhaustion")
	}
}

func TestFetchSince_ThreadCompleteness(t *testing.T) {
	root := msg("200.000000")
	root.ReplyCount = 3

	api := &fakeAPI{
		historyPages: []HistoryPage{
			{Messages: []RawMessage{root, msg("100.000000")}},
		},
		replyPages: map[string][]RepliesPage{
			"200.000000": {
				{
					Messages: []RawMessage{
						msg("200.000000"), // root echoed by the replies API
						{ChannelID: "C1", TS: "210.000000", UserID: "U2", Text: "r1", ThreadTS: "200.000000"},
						{ChannelID: "C1", TS: "220.000000", UserID: "U2", Text: "r2", ThreadTS: "200.000000"},
					},
					NextCursor: pageCursor(1),
				},
				{
					Messages: []RawMessage{
						{ChannelID: "C1", TS: "230.000000", UserID: "U2", Text: "r3", ThreadTS: "200.000000"},
					},
				},
			},
		},
		failures: map[string][]error{},
	}
	fetcher := NewFetcher(api, testPolicy())

	msgs, err := fetcher.FetchSince(context.Background(), "C1", "")
	if err != nil {
		t.Fatalf("FetchSince() error: %v", err)
	}
	assertTS(t, msgs, []string{"100.000000", "200.000000", "210.000000", "220.000000", "230.000000"})
}

func TestFetchSince_BroadcastReplyNotDuplicated(t *testing.T) {
	root := msg("200.000000")
	root.ReplyCount = 1
	broadcast := RawMessage{ChannelID: "C1", TS: "210.000000", UserID: "U2", Text: "r1", ThreadTS: "200.000000"}

	api := &fakeAPI{
		historyPages: []HistoryPage{
			// History echoes the broadcast reply alongside the root.
			{Messages: []RawMessage{broadcast, root}},
		},
		replyPages: map[string][]RepliesPage{
			"200.000000": {
				{Messages: []RawMessage{root, broadcast}},
			},
		},
		failures: map[string][]error{},
	}
	fetcher := NewFetcher(api, testPolicy())

	msgs, err := fetcher.FetchSince(context.Background(), "C1", "")
	if err != nil {
		t.Fatalf("FetchSince() error: %v", err)
	}
	assertTS(t, msgs, []string{"200.000000", "210.000000"})
}

func TestFetchSince_ReplyToOlderThreadRefetchesThread(t *testing.T) {
	// A reply lands in a thread whose root is behind the cursor. History
	// echoes the broadcast reply but not the root; the whole thread must
	// be refetched so the rebuilt document includes it.
	api := &fakeAPI{
		historyPages: []HistoryPage{
			{Messages: []RawMessage{
				msg("300.000000"),
				{ChannelID: "C1", TS: "250.000000", UserID: "U2", Text: "late reply", ThreadTS: "50.000000"},
			}},
		},
		replyPages: map[string][]RepliesPage{
			"50.000000": {
				{Messages: []RawMessage{
					{ChannelID: "C1", TS: "50.000000", UserID: "U1", Text: "old root", ReplyCount: 2},
					{ChannelID: "C1", TS: "75.000000", UserID: "U2", Text: "old reply", ThreadTS: "50.000000"},
					{ChannelID: "C1", TS: "250.000000", UserID: "U2", Text: "late reply", ThreadTS: "50.000000"},
				}},
			},
		},
		failures: map[string][]error{},
	}
	fetcher := NewFetcher(api, testPolicy())

	msgs, err := fetcher.FetchSince(context.Background(), "C1", "100.000000")
	if err != nil {
		t.Fatalf("FetchSince() error: %v", err)
	}
	assertTS(t, msgs, []string{"50.000000", "75.000000", "250.000000", "300.000000"})
}

func TestBackoffPolicy_FirstWaitHonorsInitial(t *testing.T) {
	policy := BackoffPolicy{Initial: time.Millisecond, Max: 2 * time.Millisecond, MaxAttempts: 3}
	bo := policy.newBackOff()

	// First wait is Initial plus jitter, never the library default.
	if wait := bo.NextBackOff(); wait > 2*policy.Initial {
		t.Errorf("first wait = %v, want at most %v", wait, 2*policy.Initial)
	}
	limit := time.Duration(float64(policy.Max) * 1.5)
	for i := 0; i < 5; i++ {
		if wait := bo.NextBackOff(); wait > limit {
			t.Errorf("wait %d = %v exceeds jittered max %v", i+2, wait, limit)
		}
	}
}

func TestFetchSince_JoinsOnNotInChannel(t *testing.T) {
	api := threePageAPI()
	api.failures["history:"] = []error{ErrNotInChannel}
	fetcher := NewFetcher(api, testPolicy())

	msgs, err := fetcher.FetchSince(context.Background(), "C1", "")
	if err != nil {
		t.Fatalf("FetchSince() error: %v", err)
	}
	if api.joinCalls != 1 {
		t.Errorf("JoinChannel called %d times, want 1", api.joinCalls)
	}
	if len(msgs) != 5 {
		t.Errorf("got %d messages after join, want 5", len(msgs))
	}
}

func TestFetchSince_AuthErrorNotRetried(t *testing.T) {
	api := threePageAPI()
	api.failures["history:"] = []error{ErrAuth}
	fetcher := NewFetcher(api, testPolicy())

	_, err := fetcher.FetchSince(context.Background(), "C1", "")
	if !errors.Is(err, ErrAuth) {
		t.Fatalf("FetchSince() error = %v, want ErrAuth", err)
	}
	if api.historyCalls != 1 {
		t.Errorf("auth errors must not be retried, got %d calls", api.historyCalls)
	}
}

func TestFetchSince_Cancellable(t *testing.T) {
	api := threePageAPI()
	api.failures["history:"] = []error{
		&slack.RateLimitedError{RetryAfter: time.Hour},
	}
	fetcher := NewFetcher(api, testPolicy())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := fetcher.FetchSince(ctx, "C1", "")
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("FetchSince() error = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("FetchSince() did not return after cancellation; backoff wait not cancellable")
	}
}
