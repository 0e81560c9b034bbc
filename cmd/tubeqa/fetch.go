package main

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xhad/tubeqa/internal/models"
	"github.com/xhad/tubeqa/pkg/acquire"
)

var (
	fetchOutput    string
	fetchMaxVideos int
	fetchChannel   string
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download transcripts of a channel's recent videos",
	Long: `Lists the channel's uploads with the YouTube Data API, newest first, and
downloads the caption track of each video until max_videos transcripts are
collected. Videos without captions are skipped. The result is written as
JSON for "tubeqa ingest".

Requires YOUTUBE_API_KEY and CHANNEL_ID (or youtube.api_key and
youtube.channel_id in the config file).`,
	Args: cobra.NoArgs,
	RunE: runFetch,
}

func init() {
	fetchCmd.Flags().StringVarP(&fetchOutput, "output", "o", "", "output file (default youtube.output)")
	fetchCmd.Flags().IntVarP(&fetchMaxVideos, "max-videos", "n", 0, "transcripts to collect (default youtube.max_videos)")
	fetchCmd.Flags().StringVar(&fetchChannel, "channel", "", "channel id (default youtube.channel_id)")
	rootCmd.AddCommand(fetchCmd)
}

// fetchFromYouTube runs the acquirer with a progress bar and reports
// skipped videos once it is done.
func fetchFromYouTube(ctx context.Context) ([]models.TranscriptRecord, error) {
	yt := acquire.YouTubeConfig{
		APIKey:    cfg.YouTube.APIKey,
		ChannelID: cfg.YouTube.ChannelID,
		MaxVideos: cfg.YouTube.MaxVideos,
		Pacing:    cfg.YouTube.Pacing,
		Language:  cfg.YouTube.Language,
	}
	if fetchChannel != "" {
		yt.ChannelID = fetchChannel
	}
	if fetchMaxVideos > 0 {
		yt.MaxVideos = fetchMaxVideos
	}

	bar := getProgressBar(yt.MaxVideos, " Fetching transcripts")
	var skipped []string
	yt.OnVideo = func(video models.Video, words int, err error) {
		if err != nil {
			skipped = append(skipped, video.Title)
			return
		}
		_ = bar.Add(1)
	}

	src, err := acquire.NewYouTubeSource(ctx, yt, acquire.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	records, err := src.Fetch(ctx)
	_ = bar.Finish()

	if len(skipped) > 0 {
		color.Yellow("\nSkipped %d videos without transcripts", len(skipped))
		for _, title := range skipped {
			logger.Debug("skipped video", zap.String("title", title))
		}
	}
	return records, err
}

func runFetch(cmd *cobra.Command, _ []string) error {
	path := fetchOutput
	if path == "" {
		path = cfg.YouTube.Output
	}

	records, err := fetchFromYouTube(cmd.Context())
	if err != nil && len(records) == 0 {
		return fmt.Errorf("fetch failed: %w", err)
	}
	if err != nil {
		color.Yellow("Fetch stopped early: %v", err)
	}

	if err := acquire.Save(path, records); err != nil {
		return fmt.Errorf("save transcripts: %w", err)
	}
	color.New(color.FgGreen).Fprintf(cmd.OutOrStdout(), "\n✓ Saved %d transcripts (%d words) to %s\n",
		len(records), acquire.TotalWords(records), path)
	return nil
}
