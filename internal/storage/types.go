package storage

import (
	"context"

	"github.com/google/uuid"
)

// Payload is the stable per-point metadata contract shared with any
// downstream consumer of the index.
type Payload struct {
	ChannelID   string `json:"channel_id"`
	ChannelName string `json:"channel_name"`
	TS          string `json:"ts"`
	Date        string `json:"date"`
	UserID      string `json:"user_id"`
	UserName    string `json:"user_name"`
	ThreadTS    string `json:"thread_ts"`
	ReplyCount  int    `json:"reply_count"`
	Text        string `json:"text"`
	Permalink   string `json:"permalink"`
}

// Point is one vector-plus-payload record. ID is derived deterministically
// from (channel, thread root, chunk index) so upserts overwrite.
type Point struct {
	ID      uuid.UUID `json:"id"`
	Vector  []float32 `json:"vector"`
	Payload Payload   `json:"payload"`
}

// Hit is one search result.
type Hit struct {
	Score float64 `json:"score"`
	Payload
}

// SearchFilter narrows a similarity search. Channel matches by ID when it
// looks like one ("C..."), otherwise by name. Dates are inclusive ISO-8601.
type SearchFilter struct {
	Channel  string
	DateFrom string
	DateTo   string
}

// VectorStore is the idempotent upsert/search collaborator.
type VectorStore interface {
	Upsert(ctx context.Context, points []Point) error
	Search(ctx context.Context, vector []float32, limit int, filter SearchFilter) ([]Hit, error)
	Count(ctx context.Context) (int64, error)
}

// Cursor is the per-channel sync position. LastTS is the ts of the latest
// message whose document has been durably embedded and stored.
type Cursor struct {
	ChannelID string `json:"channel_id"`
	LastTS    string `json:"last_ts"`
}

// CursorStore owns cursor persistence. Get never fails on a missing entry;
// it returns a zero cursor. Commit must be durable before returning and
// never moves a cursor backwards.
type CursorStore interface {
	Get(ctx context.Context, channelID string) (Cursor, error)
	Commit(ctx context.Context, channelID, lastTS string) error
}
