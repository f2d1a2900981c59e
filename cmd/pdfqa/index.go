package main

import (
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"time"

	"github.com/phuslu/log"
	"github.com/spf13/cobra"

	"pdf-rag/internal/pipeline"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Index the corpus and print chunk statistics",
	Long: `Loads, chunks and embeds every document in the corpus directory into the
configured vector store, reporting progress and a summary of the chunks.`,
	Args: cobra.NoArgs,
	RunE: runIndex,
}

func init() {
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	log.Info().Str("dir", appConfig.Corpus.Dir).Str("embedder", appConfig.Embedder.Type).Msg("indexing corpus")
	startTime := time.Now()

	o, cleanup, err := pipeline.FromConfig(ctx, appConfig, pipeline.WithProgress(progressLogger(startTime)))
	if err != nil {
		return err
	}
	defer cleanup()

	if err := o.Initialize(ctx); err != nil {
		return err
	}

	stats := o.Handle().Stats
	log.Info().
		Dur("total", time.Since(startTime)).
		Dur("embedding", stats.Index.Duration).
		Int("dimension", stats.Index.Dimension).
		Msg("completed indexing")

	printChunkStatistics(cmd.OutOrStdout(), stats)
	return nil
}

// progressLogger logs embedding progress every 50 chunks with an estimate of the time left
func progressLogger(start time.Time) func(processed, total int) {
	return func(processed, total int) {
		if processed%50 != 0 && processed != total {
			return
		}
		elapsed := time.Since(start)
		remaining := elapsed*time.Duration(total)/time.Duration(processed) - elapsed
		log.Info().
			Int("processed", processed).
			Int("total", total).
			Str("percent", fmt.Sprintf("%.1f%%", float64(processed)/float64(total)*100)).
			Dur("remaining", remaining.Round(time.Second)).
			Msg("embedding progress")
	}
}

// printChunkStatistics prints a summary of the indexed chunks
func printChunkStatistics(out io.Writer, stats pipeline.Stats) {
	var totalLength int
	perDocument := make(map[string]int)
	pagesPerDocument := make(map[string]map[int]bool)

	for _, chunk := range stats.Corpus {
		totalLength += len([]rune(chunk.Content))
		perDocument[chunk.DocumentID]++
		if pagesPerDocument[chunk.DocumentID] == nil {
			pagesPerDocument[chunk.DocumentID] = make(map[int]bool)
		}
		pagesPerDocument[chunk.DocumentID][chunk.PageNumber] = true
	}

	fmt.Fprintln(out, "\nChunk Statistics:")
	fmt.Fprintf(out, "  Documents: %d\n", stats.Documents)
	fmt.Fprintf(out, "  Total chunks: %d\n", len(stats.Corpus))
	if len(stats.Corpus) > 0 {
		fmt.Fprintf(out, "  Average chunk length: %d characters\n", totalLength/len(stats.Corpus))
	}
	if stats.Index != nil {
		fmt.Fprintf(out, "  Indexed: %d, skipped: %d\n", stats.Index.Indexed, stats.Index.Skipped)
	}

	documents := make([]string, 0, len(perDocument))
	for doc := range perDocument {
		documents = append(documents, doc)
	}
	sort.Strings(documents)

	fmt.Fprintln(out, "\nChunks per document:")
	for _, doc := range documents {
		fmt.Fprintf(out, "  - %s: %d chunks across %d pages\n",
			filepath.Base(doc), perDocument[doc], len(pagesPerDocument[doc]))
	}

	if len(stats.LoadFailures) > 0 {
		fmt.Fprintln(out, "\nSkipped files:")
		for _, f := range stats.LoadFailures {
			fmt.Fprintf(out, "  - %s: %v\n", filepath.Base(f.Path), f.Err)
		}
	}
}
