package slack

import (
	"strconv"
)

// Channel is a workspace conversation eligible for syncing.
type Channel struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	IsPrivate bool   `json:"is_private"`
	IsMember  bool   `json:"is_member"`
}

// RawMessage is one chat event as returned by the history or replies API.
// TS is a string-encoded fixed-point timestamp, unique within a channel.
type RawMessage struct {
	ChannelID  string `json:"channel_id"`
	TS         string `json:"ts"`
	UserID     string `json:"user_id"`
	Text       string `json:"text"`
	ThreadTS   string `json:"thread_ts,omitempty"`
	ReplyCount int    `json:"reply_count,omitempty"`
}

// IsThreadRoot reports whether the message roots a thread (or stands alone).
func (m RawMessage) IsThreadRoot() bool {
	return m.ThreadTS == "" || m.ThreadTS == m.TS
}

// RootTS is the timestamp of the thread this message belongs to.
// Standalone messages are self-rooted.
func (m RawMessage) RootTS() string {
	if m.ThreadTS != "" {
		return m.ThreadTS
	}
	return m.TS
}

// User is one entry of the workspace user directory, with the display
// name already resolved through the profile fallback chain.
type User struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// HistoryPage is one bounded page of channel history.
type HistoryPage struct {
	Messages   []RawMessage
	NextCursor string
}

// RepliesPage is one bounded page of a thread's replies.
type RepliesPage struct {
	Messages   []RawMessage
	NextCursor string
}

// TSLess compares two Slack timestamps numerically.
// Falls back to string comparison if either fails to parse.
func TSLess(a, b string) bool {
	fa, errA := strconv.ParseFloat(a, 64)
	fb, errB := strconv.ParseFloat(b, 64)
	if errA != nil || errB != nil {
		return a < b
	}
	return fa < fb
}
