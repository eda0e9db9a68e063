// query is a semantic search CLI over the indexed workspace history.
//
//	query "how do I set up SSO?"
//	query --limit 10 --channel engineering "deploy process"
//	query --date-from 2024-06-01 "incident postmortem"
package main

import (
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"slackrag/internal/config"
	"slackrag/internal/services"
	"slackrag/internal/storage"
)

// Version information, injected at build time via ldflags.
var (
	Version = "dev"
	Build   = "unknown"
)

const (
	scoreBarWidth = 20
	wrapWidth     = 90
)

var (
	flagLimit    int
	flagChannel  string
	flagDateFrom string
	flagDateTo   string
	flagNoScore  bool
)

var rootCmd = &cobra.Command{
	Use:     "query [text...]",
	Short:   "Semantic search over indexed Slack messages",
	Args:    cobra.MinimumNArgs(1),
	Version: fmt.Sprintf("%s (build %s)", Version, Build),
	RunE:    runQuery,
}

func init() {
	rootCmd.Flags().IntVarP(&flagLimit, "limit", "n", 5, "number of results to return")
	rootCmd.Flags().StringVarP(&flagChannel, "channel", "c", "", "restrict results to a channel name or ID")
	rootCmd.Flags().StringVar(&flagDateFrom, "date-from", "", "only messages on or after this date (YYYY-MM-DD)")
	rootCmd.Flags().StringVar(&flagDateTo, "date-to", "", "only messages on or before this date (YYYY-MM-DD)")
	rootCmd.Flags().BoolVar(&flagNoScore, "no-score", false, "hide relevance score bars")
	rootCmd.SilenceUsage = true
}

func runQuery(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	if cfg.OpenAIAPIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required")
	}

	store, err := storage.NewPostgresStore(cfg.DatabaseURL, cfg.EmbeddingDimensions)
	if err != nil {
		return err
	}
	defer store.Close()

	embedder := services.NewEmbeddingService(cfg.OpenAIAPIKey)
	search := services.NewSearchService(embedder, store)

	queryText := strings.Join(args, " ")
	fmt.Printf("\nSearching for: %q\n\n", queryText)

	hits, err := search.Search(cmd.Context(), queryText, flagLimit, storage.SearchFilter{
		Channel:  flagChannel,
		DateFrom: flagDateFrom,
		DateTo:   flagDateTo,
	})
	if err != nil {
		return err
	}

	if len(hits) == 0 {
		fmt.Println("No results found.")
		return nil
	}

	total, _ := search.Count(cmd.Context())
	fmt.Printf("Top %d of %d indexed documents\n\n", len(hits), total)

	for i, hit := range hits {
		printHit(i, hit, !flagNoScore)
	}
	return nil
}

func printHit(idx int, hit storage.Hit, showScore bool) {
	channel := hit.ChannelName
	if channel == "" {
		channel = hit.ChannelID
	}
	user := hit.UserName
	if user == "" {
		user = hit.UserID
	}

	threadNote := ""
	if hit.ReplyCount == 1 {
		threadNote = "  [1 reply]"
	} else if hit.ReplyCount > 1 {
		threadNote = fmt.Sprintf("  [%d replies]", hit.ReplyCount)
	}

	header := fmt.Sprintf("#%d  #%s  %s  @%s%s", idx+1, channel, hit.Date, user, threadNote)
	if showScore {
		header += fmt.Sprintf("  %s  %.3f", scoreBar(hit.Score), hit.Score)
	}

	fmt.Println(header)
	fmt.Println(strings.Repeat("-", len(header)))
	for _, line := range wrap(hit.Text, wrapWidth) {
		fmt.Println("  " + line)
	}
	fmt.Println()
}

func scoreBar(score float64) string {
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	filled := int(math.Round(score * scoreBarWidth))
	return strings.Repeat("█", filled) + strings.Repeat("░", scoreBarWidth-filled)
}

// wrap splits text into lines of at most width characters, breaking at
// spaces where possible.
func wrap(text string, width int) []string {
	var lines []string
	for _, paragraph := range strings.Split(text, "\n") {
		words := strings.Fields(paragraph)
		if len(words) == 0 {
			continue
		}
		current := words[0]
		for _, word := range words[1:] {
			if len(current)+1+len(word) > width {
				lines = append(lines, current)
				current = word
				continue
			}
			current += " " + word
		}
		lines = append(lines, current)
	}
	return lines
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
