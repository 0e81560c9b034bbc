// Package acquire collects video transcripts for ingestion, either from a
// YouTube channel or from a previously saved JSON file.
package acquire

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"github.com/xhad/tubeqa/internal/models"
	"github.com/xhad/tubeqa/internal/types"
	"github.com/xhad/tubeqa/pkg/logging"
)

var _ types.TranscriptSource = (*YouTubeSource)(nil)

const (
	DefaultMaxVideos = 20
	DefaultPacing    = 300 * time.Millisecond
	playlistPageSize = 50
)

type YouTubeConfig struct {
	APIKey    string
	ChannelID string
	MaxVideos int           // videos with a transcript to collect
	Pacing    time.Duration // minimum gap between caption requests
	Language  string
	Timeout   time.Duration

	// Endpoints, overridable for tests and proxies.
	APIEndpoint    string
	CaptionBaseURL string
	HTTPClient     *http.Client

	// OnVideo is called once per playlist entry; err is non-nil when the
	// video was skipped.
	OnVideo func(video models.Video, words int, err error)
}

type YouTubeSource struct {
	config   YouTubeConfig
	service  *youtube.Service
	captions *CaptionFetcher
	limiter  *rate.Limiter
	logger   *zap.Logger
}

type Option func(*YouTubeSource)

func WithLogger(l *zap.Logger) Option {
	return func(s *YouTubeSource) { s.logger = logging.OrNop(l) }
}

func NewYouTubeSource(ctx context.Context, config YouTubeConfig, opts ...Option) (*YouTubeSource, error) {
	if config.APIKey == "" || config.ChannelID == "" {
		return nil, fmt.Errorf("youtube: api key and channel id are required")
	}
	if config.MaxVideos <= 0 {
		config.MaxVideos = DefaultMaxVideos
	}
	if config.Pacing <= 0 {
		config.Pacing = DefaultPacing
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	client := config.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: config.Timeout}
	}

	clientOpts := []option.ClientOption{option.WithAPIKey(config.APIKey)}
	if config.APIEndpoint != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(config.APIEndpoint))
	}
	if config.HTTPClient != nil {
		clientOpts = append(clientOpts, option.WithHTTPClient(config.HTTPClient))
	}
	svc, err := youtube.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("youtube: create service: %w", err)
	}

	s := &YouTubeSource{
		config:  config,
		service: svc,
		captions: NewCaptionFetcher(CaptionConfig{
			BaseURL:  config.CaptionBaseURL,
			Language: config.Language,
			Timeout:  config.Timeout,
		}, client),
		limiter: rate.NewLimiter(rate.Every(config.Pacing), 1),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Fetch walks the channel's uploads playlist, newest first, until MaxVideos
// transcripts are collected or the playlist ends. Videos whose captions
// cannot be fetched are logged and skipped.
func (s *YouTubeSource) Fetch(ctx context.Context) ([]models.TranscriptRecord, error) {
	uploads, err := s.uploadsPlaylist(ctx)
	if err != nil {
		return nil, err
	}

	var (
		records   []models.TranscriptRecord
		pageToken string
	)
	for len(records) < s.config.MaxVideos {
		call := s.service.PlaylistItems.List([]string{"snippet"}).
			PlaylistId(uploads).
			MaxResults(playlistPageSize).
			Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		page, err := call.Do()
		if err != nil {
			return records, describeAPIError("list playlist items", err)
		}

		for _, item := range page.Items {
			if len(records) >= s.config.MaxVideos {
				break
			}
			if item.Snippet == nil || item.Snippet.ResourceId == nil {
				continue
			}
			rec, err := s.fetchOne(ctx, item.Snippet)
			if ctx.Err() != nil {
				return records, ctx.Err()
			}
			if err != nil {
				continue
			}
			records = append(records, rec)
		}

		pageToken = page.NextPageToken
		if pageToken == "" {
			break
		}
	}

	s.logger.Info("fetched transcripts", zap.String("channel_id", s.config.ChannelID), zap.Int("videos", len(records)))
	return records, nil
}

func (s *YouTubeSource) uploadsPlaylist(ctx context.Context) (string, error) {
	res, err := s.service.Channels.List([]string{"contentDetails", "snippet"}).
		Id(s.config.ChannelID).
		Context(ctx).
		Do()
	if err != nil {
		return "", describeAPIError("list channel", err)
	}
	if len(res.Items) == 0 || res.Items[0].ContentDetails == nil || res.Items[0].ContentDetails.RelatedPlaylists == nil {
		return "", fmt.Errorf("youtube: channel %s not found", s.config.ChannelID)
	}

	ch := res.Items[0]
	if ch.Snippet != nil {
		s.logger.Info("fetching channel", zap.String("channel", ch.Snippet.Title))
	}
	return ch.ContentDetails.RelatedPlaylists.Uploads, nil
}

func (s *YouTubeSource) fetchOne(ctx context.Context, snippet *youtube.PlaylistItemSnippet) (models.TranscriptRecord, error) {
	videoID := snippet.ResourceId.VideoId
	video := models.Video{
		VideoID: videoID,
		Title:   snippet.Title,
		URL:     models.WatchURL(videoID),
	}
	if t, err := time.Parse(time.RFC3339, snippet.PublishedAt); err == nil {
		video.PublishedAt = t
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return models.TranscriptRecord{}, err
	}
	text, err := s.captions.Fetch(ctx, videoID)
	if err != nil {
		err = &types.AcquisitionError{VideoID: videoID, Err: err}
		s.logger.Warn("skipping video", zap.String("video_id", videoID), zap.String("title", video.Title), zap.Error(err))
		if s.config.OnVideo != nil {
			s.config.OnVideo(video, 0, err)
		}
		return models.TranscriptRecord{}, err
	}

	words := len(strings.Fields(text))
	if s.config.OnVideo != nil {
		s.config.OnVideo(video, words, nil)
	}
	return models.TranscriptRecord{Video: video, Transcript: text, WordCount: words}, nil
}

func describeAPIError(op string, err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch gerr.Code {
		case http.StatusForbidden:
			return fmt.Errorf("youtube: %s: forbidden or quota exceeded: %w", op, err)
		case http.StatusNotFound:
			return fmt.Errorf("youtube: %s: not found: %w", op, err)
		}
	}
	return fmt.Errorf("youtube: %s: %w", op, err)
}
