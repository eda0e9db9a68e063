package document

import (
	"fmt"
	"strings"

	"slackrag/internal/slack"
)

// Resolver supplies user-name lookups and mrkdwn rewriting.
// *slack.Directory satisfies it.
type Resolver interface {
	Name(userID string) string
	Resolve(text string) string
}

// Builder groups raw messages into thread documents and splits oversized
// threads into chunks at message boundaries.
type Builder struct {
	maxChars int
}

func NewBuilder(maxChars int) *Builder {
	return &Builder{maxChars: maxChars}
}

type line struct {
	text string
	ts   string
}

// Build converts an ascending-ts message sequence into documents.
// Output is deterministic: same messages and directory, same documents
// in the same order.
func (b *Builder) Build(channel slack.Channel, msgs []slack.RawMessage, dir Resolver) []Document {
	groups := make(map[string][]slack.RawMessage)
	var rootOrder []string

	for _, msg := range msgs {
		root := msg.RootTS()
		if _, seen := groups[root]; !seen {
			rootOrder = append(rootOrder, root)
		}
		groups[root] = append(groups[root], msg)
	}

	var docs []Document
	for _, root := range rootOrder {
		docs = append(docs, b.buildGroup(channel, root, groups[root], dir)...)
	}
	return docs
}

// buildGroup renders one thread group as formatted lines, chunks them,
// and emits a document per chunk.
func (b *Builder) buildGroup(channel slack.Channel, rootTS string, msgs []slack.RawMessage, dir Resolver) []Document {
	var lines []line
	for _, msg := range msgs {
		text := dir.Resolve(msg.Text)
		if text == "" {
			continue
		}
		lines = append(lines, line{
			text: fmt.Sprintf("[%s]: %s", dir.Name(msg.UserID), text),
			ts:   msg.TS,
		})
	}
	if len(lines) == 0 {
		return nil
	}

	chunks := b.chunk(lines)

	rootMsg := msgs[0]
	replyCount := rootMsg.ReplyCount
	if n := len(msgs) - 1; n > replyCount {
		replyCount = n
	}

	docs := make([]Document, 0, len(chunks))
	for idx, c := range chunks {
		text := c.text
		if len(chunks) > 1 {
			text = fmt.Sprintf("(part %d/%d) %s", idx+1, len(chunks), text)
		}
		docs = append(docs, Document{
			ID:          PointID(channel.ID, rootTS, idx),
			Text:        text,
			ChannelID:   channel.ID,
			ChannelName: channel.Name,
			ThreadTS:    rootTS,
			ChunkIndex:  idx,
			ChunkCount:  len(chunks),
			Date:        tsToDate(rootTS),
			UserID:      rootMsg.UserID,
			UserName:    dir.Name(rootMsg.UserID),
			ReplyCount:  replyCount,
			MaxTS:       c.maxTS,
			Permalink:   permalink(channel.ID, rootTS),
		})
	}
	return docs
}

type chunk struct {
	text  string
	maxTS string
}

// chunk concatenates lines into blocks of at most maxChars, splitting only
// at message boundaries. A single line longer than the threshold becomes
// its own chunk rather than being cut mid-message.
func (b *Builder) chunk(lines []line) []chunk {
	var chunks []chunk
	var current []string
	var currentLen int
	var maxTS string

	flush := func() {
		if len(current) == 0 {
			return
		}
		chunks = append(chunks, chunk{
			text:  strings.Join(current, "\n"),
			maxTS: maxTS,
		})
		current = nil
		currentLen = 0
		maxTS = ""
	}

	for _, l := range lines {
		addLen := len(l.text)
		if len(current) > 0 {
			addLen++ // joining newline
		}
		if len(current) > 0 && currentLen+addLen > b.maxChars {
			flush()
			addLen = len(l.text)
		}
		current = append(current, l.text)
		currentLen += addLen
		if maxTS == "" || slack.TSLess(maxTS, l.ts) {
			maxTS = l.ts
		}
	}
	flush()

	return chunks
}
