// Package syncer drives the incremental sync: it enumerates channels,
// fetches each one's new messages, builds documents, delivers them to
// embedding and storage, and advances cursors only on confirmed success.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"slackrag/internal/document"
	"slackrag/internal/metrics"
	"slackrag/internal/slack"
	"slackrag/internal/storage"
)

// Fetcher pulls one channel's messages newer than a cursor position.
type Fetcher interface {
	FetchSince(ctx context.Context, channelID, sinceTS string) ([]slack.RawMessage, error)
}

// Embedder is the opaque text → vector collaborator. Vectors come back in
// input order, one per text.
type Embedder interface {
	GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
}

type Options struct {
	// Channels is the allow-list of names/IDs; empty syncs all public
	// channels the bot can see.
	Channels  []string
	Interval  time.Duration
	RunOnce   bool
	BatchSize int
	Workers   int
}

type Orchestrator struct {
	api      slack.API
	fetcher  Fetcher
	builder  *document.Builder
	embedder Embedder
	store    storage.VectorStore
	cursors  storage.CursorStore
	opts     Options

	mu          sync.Mutex
	lastSummary *CycleSummary
}

func New(api slack.API, fetcher Fetcher, builder *document.Builder, embedder Embedder, store storage.VectorStore, cursors storage.CursorStore, opts Options) *Orchestrator {
	return &Orchestrator{
		api:      api,
		fetcher:  fetcher,
		builder:  builder,
		embedder: embedder,
		store:    store,
		cursors:  cursors,
		opts:     opts,
	}
}

// CycleSummary reports one full pass over the target channels.
type CycleSummary struct {
	StartedAt         time.Time        `json:"started_at"`
	DurationSeconds   float64          `json:"duration_seconds"`
	ChannelsSynced    int              `json:"channels_synced"`
	ChannelsSkipped   []SkippedChannel `json:"channels_skipped,omitempty"`
	MessagesProcessed int              `json:"messages_processed"`
	DocumentsIndexed  int              `json:"documents_indexed"`
	TotalPoints       int64            `json:"total_points"`
}

type SkippedChannel struct {
	ChannelID   string `json:"channel_id"`
	ChannelName string `json:"channel_name"`
	Reason      string `json:"reason"`
}

// LastSummary returns the most recent completed cycle, or nil before the
// first one finishes.
func (o *Orchestrator) LastSummary() *CycleSummary {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastSummary
}

// Run executes cycles until ctx is cancelled, or exactly one cycle in
// one-shot mode. Only credential errors abort the loop.
func (o *Orchestrator) Run(ctx context.Context) error {
	if o.opts.RunOnce {
		_, err := o.RunCycle(ctx)
		return err
	}

	for {
		if _, err := o.RunCycle(ctx); err != nil {
			if errors.Is(err, slack.ErrAuth) || ctx.Err() != nil {
				return err
			}
			slog.Error("Sync cycle failed, will retry next interval", "error", err)
		}

		slog.Info("Sleeping until next sync", "interval", o.opts.Interval)
		timer := time.NewTimer(o.opts.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// RunCycle performs one pass: refresh channels and the user directory,
// then sync every target channel with a bounded worker pool. One channel's
// failure is recorded and contained; it never delays the others.
func (o *Orchestrator) RunCycle(ctx context.Context) (*CycleSummary, error) {
	start := time.Now()
	summary := &CycleSummary{StartedAt: start}

	channels, err := o.api.ListChannels(ctx)
	if err != nil {
		metrics.SyncCycles.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("list channels: %w", err)
	}
	channels = slack.FilterChannels(channels, o.opts.Channels)
	if len(channels) == 0 {
		slog.Warn("No accessible channels to sync")
	}

	directory, err := slack.BuildDirectory(ctx, o.api)
	if err != nil {
		metrics.SyncCycles.WithLabelValues("error").Inc()
		return nil, err
	}

	var mu sync.Mutex

	g := new(errgroup.Group)
	g.SetLimit(o.opts.Workers)

	for _, ch := range channels {
		ch := ch
		g.Go(func() error {
			report := o.syncChannel(ctx, ch, directory)

			mu.Lock()
			defer mu.Unlock()
			if report.err != nil {
				summary.ChannelsSkipped = append(summary.ChannelsSkipped, SkippedChannel{
					ChannelID:   ch.ID,
					ChannelName: ch.Name,
					Reason:      report.err.Error(),
				})
				metrics.ChannelsSynced.WithLabelValues("error").Inc()
				slog.Error("Channel sync failed", "channel", ch.Name, "error", report.err)
				// Only credential failures fail the cycle.
				if errors.Is(report.err, slack.ErrAuth) {
					return report.err
				}
				return nil
			}

			summary.ChannelsSynced++
			summary.MessagesProcessed += report.messages
			summary.DocumentsIndexed += report.documents
			metrics.ChannelsSynced.WithLabelValues("success").Inc()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		metrics.SyncCycles.WithLabelValues("error").Inc()
		return nil, err
	}

	if total, err := o.store.Count(ctx); err == nil {
		summary.TotalPoints = total
	}

	summary.DurationSeconds = time.Since(start).Seconds()
	metrics.SyncCycles.WithLabelValues("success").Inc()
	metrics.SyncCycleDuration.Observe(summary.DurationSeconds)

	o.mu.Lock()
	o.lastSummary = summary
	o.mu.Unlock()

	slog.Info("Sync cycle complete",
		"channels_synced", summary.ChannelsSynced,
		"channels_skipped", len(summary.ChannelsSkipped),
		"messages", summary.MessagesProcessed,
		"documents", summary.DocumentsIndexed,
		"total_points", summary.TotalPoints,
		"duration", time.Since(start))

	return summary, nil
}

type channelReport struct {
	messages  int
	documents int
	err       error
}

// syncChannel runs one channel through fetch → build → deliver → commit.
// The cursor only moves after every batch of the channel's new range has
// been embedded and stored; any earlier failure leaves it untouched so the
// next cycle re-fetches and re-delivers the whole range.
func (o *Orchestrator) syncChannel(ctx context.Context, ch slack.Channel, directory *slack.Directory) channelReport {
	var report channelReport

	cursor, err := o.cursors.Get(ctx, ch.ID)
	if err != nil {
		report.err = &ChannelError{ChannelID: ch.ID, ChannelName: ch.Name, Stage: StageCursor, Err: err}
		return report
	}

	slog.Info("Syncing channel", "channel", ch.Name, "since_ts", orBeginning(cursor.LastTS))

	msgs, err := o.fetcher.FetchSince(ctx, ch.ID, cursor.LastTS)
	if err != nil {
		report.err = &ChannelError{ChannelID: ch.ID, ChannelName: ch.Name, Stage: StageFetch, Err: err}
		return report
	}
	if len(msgs) == 0 {
		slog.Info("No new messages", "channel", ch.Name)
		return report
	}
	report.messages = len(msgs)

	docs := o.builder.Build(ch, msgs, directory)

	for start := 0; start < len(docs); start += o.opts.BatchSize {
		end := start + o.opts.BatchSize
		if end > len(docs) {
			end = len(docs)
		}
		if err := o.deliverBatch(ctx, docs[start:end]); err != nil {
			metrics.DocumentsIndexed.WithLabelValues("error").Add(float64(len(docs) - start))
			report.err = &ChannelError{ChannelID: ch.ID, ChannelName: ch.Name, Stage: StageDeliver, Err: err}
			return report
		}
		report.documents += end - start
		metrics.DocumentsIndexed.WithLabelValues("success").Add(float64(end - start))
	}

	maxTS := cursor.LastTS
	for _, msg := range msgs {
		if maxTS == "" || slack.TSLess(maxTS, msg.TS) {
			maxTS = msg.TS
		}
	}

	if err := o.cursors.Commit(ctx, ch.ID, maxTS); err != nil {
		report.err = &ChannelError{ChannelID: ch.ID, ChannelName: ch.Name, Stage: StageCommit, Err: err}
		return report
	}

	slog.Info("Channel synced",
		"channel", ch.Name,
		"messages", report.messages,
		"documents", report.documents,
		"cursor", maxTS)
	return report
}

func (o *Orchestrator) deliverBatch(ctx context.Context, docs []document.Document) error {
	texts := make([]string, len(docs))
	for i, doc := range docs {
		texts[i] = doc.Text
	}

	vectors, err := o.embedder.GenerateEmbeddings(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed batch: %w", err)
	}
	if len(vectors) != len(docs) {
		return fmt.Errorf("embed batch: got %d vectors for %d documents", len(vectors), len(docs))
	}

	points := make([]storage.Point, len(docs))
	for i, doc := range docs {
		points[i] = toPoint(doc, vectors[i])
	}
	if err := o.store.Upsert(ctx, points); err != nil {
		return fmt.Errorf("upsert batch: %w", err)
	}
	return nil
}

func toPoint(doc document.Document, vector []float32) storage.Point {
	return storage.Point{
		ID:     doc.ID,
		Vector: vector,
		Payload: storage.Payload{
			ChannelID:   doc.ChannelID,
			ChannelName: doc.ChannelName,
			TS:          doc.ThreadTS,
			Date:        doc.Date,
			UserID:      doc.UserID,
			UserName:    doc.UserName,
			ThreadTS:    doc.ThreadTS,
			ReplyCount:  doc.ReplyCount,
			Text:        doc.Text,
			Permalink:   doc.Permalink,
		},
	}
}

func orBeginning(ts string) string {
	if ts == "" {
		return "beginning"
	}
	return ts
}
