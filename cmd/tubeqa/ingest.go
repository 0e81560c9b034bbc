package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/xhad/tubeqa/internal/models"
	"github.com/xhad/tubeqa/internal/types"
	"github.com/xhad/tubeqa/pkg/acquire"
	"github.com/xhad/tubeqa/pkg/watch"
)

var (
	ingestYouTube bool
	ingestWatch   bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [file]",
	Short: "Chunk, embed and index transcripts",
	Long: `Reads transcripts from a JSON file written by "tubeqa fetch" (default
youtube.output) and indexes them. Re-ingesting is idempotent: chunks are
keyed by video id and chunk index.

With --youtube the transcripts are fetched live instead of read from a file.
With --watch the file is re-ingested whenever it changes.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().BoolVar(&ingestYouTube, "youtube", false, "fetch transcripts from YouTube instead of a file")
	ingestCmd.Flags().BoolVarP(&ingestWatch, "watch", "w", false, "re-ingest the file whenever it changes")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	if ingestWatch && ingestYouTube {
		return errors.New("--watch needs a transcript file, not --youtube")
	}
	path := cfg.YouTube.Output
	if len(args) == 1 {
		path = args[0]
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx)
	if err != nil {
		return fmt.Errorf("failed to open index: %w", err)
	}
	defer st.Close()

	emb, err := newEmbedder()
	if err != nil {
		return err
	}

	var records []models.TranscriptRecord
	if ingestYouTube {
		records, err = fetchFromYouTube(ctx)
	} else {
		records, err = acquire.FileSource{Path: path}.Fetch(ctx)
	}
	if err != nil {
		return fmt.Errorf("failed to load transcripts: %w", err)
	}

	out := cmd.OutOrStdout()
	if err := ingestRecords(ctx, out, st, emb, records); err != nil {
		return err
	}
	if !ingestWatch {
		return nil
	}

	var mu sync.Mutex
	w, err := watch.New(path, func(p string) {
		mu.Lock()
		defer mu.Unlock()
		records, err := acquire.FileSource{Path: p}.Fetch(ctx)
		if err != nil {
			color.Red("Failed to reload %s: %v", p, err)
			return
		}
		if err := ingestRecords(ctx, out, st, emb, records); err != nil {
			color.Red("%v", err)
		}
	}, watch.WithLogger(logger))
	if err != nil {
		return err
	}
	if err := w.Start(ctx); err != nil {
		return err
	}
	color.Cyan("\nWatching %s for changes (Ctrl+C to stop)", path)
	<-w.Done()
	return nil
}

func ingestRecords(ctx context.Context, out io.Writer, st types.VectorStore, emb types.Embedder, records []models.TranscriptRecord) error {
	total := 0
	for _, r := range records {
		if strings.TrimSpace(r.Transcript) != "" {
			total++
		}
	}

	bar := getProgressBar(total, " Indexing transcripts")
	ix, err := newIndexer(st, emb, func(string, int) { _ = bar.Add(1) })
	if err != nil {
		return err
	}

	start := time.Now()
	n, err := ix.IndexVideos(ctx, records)
	_ = bar.Finish()
	if err != nil {
		if n > 0 {
			color.Yellow("\nIndexed %d chunks before errors", n)
		}
		return fmt.Errorf("indexing finished with errors: %w", err)
	}

	color.New(color.FgGreen).Fprintf(out, "\n✓ Indexed %d chunks from %d transcripts in %s\n",
		n, total, time.Since(start).Round(time.Millisecond))
	return nil
}
