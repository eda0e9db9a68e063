package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"slackrag/internal/metrics"
)

// PostgresStore backs both the vector store and the cursor store with a
// single pgvector-enabled database.
type PostgresStore struct {
	db         *sql.DB
	dimensions int
}

func NewPostgresStore(databaseURL string, dimensions int) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &PostgresStore{db: db, dimensions: dimensions}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *PostgresStore) initSchema() error {
	if _, err := s.db.Exec("CREATE EXTENSION IF NOT EXISTS vector;"); err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}

	createPoints := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS points (
			id UUID PRIMARY KEY,
			channel_id VARCHAR(255) NOT NULL,
			channel_name VARCHAR(255) NOT NULL,
			ts VARCHAR(64) NOT NULL,
			date VARCHAR(10) NOT NULL,
			user_id VARCHAR(255),
			user_name VARCHAR(255),
			thread_ts VARCHAR(64),
			reply_count INT NOT NULL DEFAULT 0,
			text TEXT NOT NULL,
			permalink TEXT,
			embedding vector(%d),
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
			updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		);
	`, s.dimensions)
	if _, err := s.db.Exec(createPoints); err != nil {
		return fmt.Errorf("failed to create points table: %w", err)
	}

	createCursors := `
		CREATE TABLE IF NOT EXISTS sync_cursors (
			channel_id VARCHAR(255) PRIMARY KEY,
			last_ts VARCHAR(64) NOT NULL,
			updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		);
	`
	if _, err := s.db.Exec(createCursors); err != nil {
		return fmt.Errorf("failed to create sync_cursors table: %w", err)
	}

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_points_channel_id ON points(channel_id);",
		"CREATE INDEX IF NOT EXISTS idx_points_channel_name ON points(channel_name);",
		"CREATE INDEX IF NOT EXISTS idx_points_date ON points(date);",
	}
	for _, indexSQL := range indexes {
		if _, err := s.db.Exec(indexSQL); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	// May fail while the table is empty; the index only helps at scale.
	vectorIndexSQL := "CREATE INDEX IF NOT EXISTS idx_points_embedding ON points USING ivfflat (embedding vector_cosine_ops);"
	if _, err := s.db.Exec(vectorIndexSQL); err != nil {
		fmt.Printf("Warning: could not create vector index: %v\n", err)
	}

	return nil
}

// Upsert writes points keyed by their deterministic ID. Re-delivery of the
// same chunk overwrites the previous row.
func (s *PostgresStore) Upsert(ctx context.Context, points []Point) error {
	if len(points) == 0 {
		return nil
	}

	start := time.Now()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin upsert: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO points (
			id, channel_id, channel_name, ts, date, user_id, user_name,
			thread_ts, reply_count, text, permalink, embedding
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			channel_name = EXCLUDED.channel_name,
			date = EXCLUDED.date,
			user_id = EXCLUDED.user_id,
			user_name = EXCLUDED.user_name,
			reply_count = EXCLUDED.reply_count,
			text = EXCLUDED.text,
			permalink = EXCLUDED.permalink,
			embedding = EXCLUDED.embedding,
			updated_at = NOW()
	`
	for _, p := range points {
		if _, err := tx.ExecContext(ctx, query,
			p.ID,
			p.Payload.ChannelID,
			p.Payload.ChannelName,
			p.Payload.TS,
			p.Payload.Date,
			p.Payload.UserID,
			p.Payload.UserName,
			p.Payload.ThreadTS,
			p.Payload.ReplyCount,
			p.Payload.Text,
			p.Payload.Permalink,
			pgvector.NewVector(p.Vector),
		); err != nil {
			return fmt.Errorf("failed to upsert point %s: %w", p.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit upsert: %w", err)
	}
	metrics.UpsertDuration.Observe(time.Since(start).Seconds())
	return nil
}

// filterClause renders SearchFilter into SQL conditions with placeholders
// starting at startIdx.
func filterClause(filter SearchFilter, startIdx int) (string, []interface{}) {
	var conditions []string
	var args []interface{}

	next := func() string {
		idx := startIdx + len(args)
		return fmt.Sprintf("$%d", idx)
	}

	if filter.Channel != "" {
		column := "channel_name"
		if strings.HasPrefix(filter.Channel, "C") && strings.ToUpper(filter.Channel) == filter.Channel {
			column = "channel_id"
		}
		conditions = append(conditions, fmt.Sprintf("%s = %s", column, next()))
		args = append(args, filter.Channel)
	}
	if filter.DateFrom != "" {
		conditions = append(conditions, fmt.Sprintf("date >= %s", next()))
		args = append(args, filter.DateFrom)
	}
	if filter.DateTo != "" {
		conditions = append(conditions, fmt.Sprintf("date <= %s", next()))
		args = append(args, filter.DateTo)
	}

	if len(conditions) == 0 {
		return "", nil
	}
	return " AND " + strings.Join(conditions, " AND "), args
}

func (s *PostgresStore) Search(ctx context.Context, vector []float32, limit int, filter SearchFilter) ([]Hit, error) {
	clause, filterArgs := filterClause(filter, 2)

	query := fmt.Sprintf(`
		SELECT channel_id, channel_name, ts, date, user_id, user_name,
			   thread_ts, reply_count, text, permalink,
			   1 - (embedding <=> $1) AS score
		FROM points
		WHERE embedding IS NOT NULL%s
		ORDER BY embedding <=> $1
		LIMIT $%d
	`, clause, 2+len(filterArgs))

	args := []interface{}{pgvector.NewVector(vector)}
	args = append(args, filterArgs...)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search points: %w", err)
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var h Hit
		if err := rows.Scan(
			&h.ChannelID,
			&h.ChannelName,
			&h.TS,
			&h.Date,
			&h.UserID,
			&h.UserName,
			&h.ThreadTS,
			&h.ReplyCount,
			&h.Text,
			&h.Permalink,
			&h.Score,
		); err != nil {
			return nil, fmt.Errorf("failed to scan hit: %w", err)
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

func (s *PostgresStore) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM points").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count points: %w", err)
	}
	metrics.TotalPoints.Set(float64(count))
	return count, nil
}

// Get returns the stored cursor, or a zero cursor if the channel has never
// been synced.
func (s *PostgresStore) Get(ctx context.Context, channelID string) (Cursor, error) {
	cursor := Cursor{ChannelID: channelID}
	err := s.db.QueryRowContext(ctx,
		"SELECT last_ts FROM sync_cursors WHERE channel_id = $1", channelID,
	).Scan(&cursor.LastTS)
	if err == sql.ErrNoRows {
		return cursor, nil
	}
	if err != nil {
		return Cursor{}, fmt.Errorf("failed to read cursor for %s: %w", channelID, err)
	}
	return cursor, nil
}

// Commit durably advances the cursor. The numeric guard makes the
// monotonic invariant a database constraint: a stale commit is a no-op.
func (s *PostgresStore) Commit(ctx context.Context, channelID, lastTS string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_cursors (channel_id, last_ts) VALUES ($1, $2)
		ON CONFLICT (channel_id) DO UPDATE SET
			last_ts = EXCLUDED.last_ts,
			updated_at = NOW()
		WHERE sync_cursors.last_ts::numeric < EXCLUDED.last_ts::numeric
	`, channelID, lastTS)
	if err != nil {
		metrics.CursorCommits.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to commit cursor for %s: %w", channelID, err)
	}
	metrics.CursorCommits.WithLabelValues("success").Inc()
	return nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
