// Package document turns ordered raw message streams into thread-scoped,
// size-bounded documents ready for embedding.
package document

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Document is the unit handed to embedding and storage. A thread larger
// than the chunk threshold yields several Documents sharing ThreadTS but
// covering disjoint message ranges.
type Document struct {
	ID          uuid.UUID
	Text        string
	ChannelID   string
	ChannelName string
	ThreadTS    string
	ChunkIndex  int
	ChunkCount  int
	Date        string
	UserID      string
	UserName    string
	ReplyCount  int
	MaxTS       string
	Permalink   string
}

// PointID derives the stable vector-store identity for a chunk.
// Same inputs, same UUID, so re-delivery overwrites instead of duplicating.
func PointID(channelID, threadTS string, chunkIndex int) uuid.UUID {
	name := fmt.Sprintf("%s:%s:%d", channelID, threadTS, chunkIndex)
	return uuid.NewSHA1(uuid.NameSpaceDNS, []byte(name))
}

// tsToDate renders a Slack timestamp as a UTC ISO-8601 date.
func tsToDate(ts string) string {
	f, err := strconv.ParseFloat(ts, 64)
	if err != nil {
		return ""
	}
	return time.Unix(int64(f), 0).UTC().Format("2006-01-02")
}

// permalink builds the canonical archive link for a thread root.
func permalink(channelID, ts string) string {
	return fmt.Sprintf("https://slack.com/archives/%s/p%s", channelID, strings.Replace(ts, ".", "", 1))
}
