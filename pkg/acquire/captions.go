package acquire

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// Innertube is the API the YouTube web and mobile clients use. The transcript
// panel (/next then /get_transcript) is tried first; the Android /player
// caption tracks are the fallback.
const (
	defaultCaptionBaseURL = "https://www.youtube.com"

	nextPath          = "/youtubei/v1/next"
	getTranscriptPath = "/youtubei/v1/get_transcript"
	playerPath        = "/youtubei/v1/player"

	webClientVersion     = "2.20250222.10.00"
	androidClientVersion = "20.10.38"
	webUserAgent         = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/133.0.0.0 Safari/537.36"
	androidUserAgent     = "com.google.android.youtube/" + androidClientVersion + " (Linux; U; Android 11) gzip"

	maxInnertubeBody = 3 << 20
	maxCaptionBody   = 1 << 20
)

// ErrNoTranscript means the video has no caption track in the requested language.
var ErrNoTranscript = errors.New("no transcript available")

var transcriptParamsRE = regexp.MustCompile(`"getTranscriptEndpoint":\{"params":"([^"]+)"`)

type CaptionConfig struct {
	BaseURL  string
	Language string
	Timeout  time.Duration
}

// CaptionFetcher downloads a video's captions through Innertube and flattens
// them into a single transcript string.
type CaptionFetcher struct {
	config CaptionConfig
	client *http.Client
}

func NewCaptionFetcher(config CaptionConfig, client *http.Client) *CaptionFetcher {
	if config.BaseURL == "" {
		config.BaseURL = defaultCaptionBaseURL
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	if config.Language == "" {
		config.Language = "en"
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if client == nil {
		client = &http.Client{Timeout: config.Timeout}
	}
	return &CaptionFetcher{config: config, client: client}
}

// Fetch returns the transcript of videoID. The error matches ErrNoTranscript
// when the player reports no usable caption track.
func (f *CaptionFetcher) Fetch(ctx context.Context, videoID string) (string, error) {
	text, panelErr := f.fromTranscriptPanel(ctx, videoID)
	if panelErr == nil {
		return text, nil
	}
	text, playerErr := f.fromPlayer(ctx, videoID)
	if playerErr == nil {
		return text, nil
	}
	return "", fmt.Errorf("transcript panel: %v; player: %w", panelErr, playerErr)
}

func (f *CaptionFetcher) fromTranscriptPanel(ctx context.Context, videoID string) (string, error) {
	visitor := visitorData()
	client := map[string]any{
		"clientName":    "WEB",
		"clientVersion": webClientVersion,
		"visitorData":   visitor,
		"hl":            f.config.Language,
	}

	next, err := f.postWeb(ctx, nextPath, visitor, map[string]any{
		"videoId": videoID,
		"context": map[string]any{"client": client},
	})
	if err != nil {
		return "", err
	}
	params, err := transcriptParams(next)
	if err != nil {
		return "", err
	}

	raw, err := f.postWeb(ctx, getTranscriptPath, visitor, map[string]any{
		"params":  params,
		"context": map[string]any{"client": client},
	})
	if err != nil {
		return "", err
	}
	var resp getTranscriptResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("decode transcript: %w", err)
	}
	text := resp.text()
	if text == "" {
		return "", fmt.Errorf("%w: empty transcript panel", ErrNoTranscript)
	}
	return text, nil
}

// transcriptParams pulls the continuation token out of a /next response. The
// token arrives URL-encoded; /get_transcript wants it decoded.
func transcriptParams(next []byte) (string, error) {
	m := transcriptParamsRE.FindSubmatch(next)
	if m == nil {
		return "", fmt.Errorf("%w: no transcript panel", ErrNoTranscript)
	}
	if decoded, err := url.QueryUnescape(string(m[1])); err == nil {
		return decoded, nil
	}
	return string(m[1]), nil
}

func (f *CaptionFetcher) fromPlayer(ctx context.Context, videoID string) (string, error) {
	payload := map[string]any{
		"videoId": videoID,
		"context": map[string]any{
			"client": map[string]any{
				"clientName":        "ANDROID",
				"clientVersion":     androidClientVersion,
				"androidSdkVersion": 30,
				"hl":                f.config.Language,
			},
		},
		"racyCheckOk":    true,
		"contentCheckOk": true,
	}
	raw, err := f.post(ctx, playerPath, payload, func(h http.Header) {
		h.Set("User-Agent", androidUserAgent)
		h.Set("X-Youtube-Client-Name", "3")
		h.Set("X-Youtube-Client-Version", androidClientVersion)
	})
	if err != nil {
		return "", err
	}

	var resp playerResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("decode player: %w", err)
	}
	if resp.Captions == nil || len(resp.Captions.Renderer.Tracks) == 0 {
		if resp.PlayabilityStatus != nil && resp.PlayabilityStatus.Reason != "" {
			return "", fmt.Errorf("%w: %s", ErrNoTranscript, resp.PlayabilityStatus.Reason)
		}
		return "", ErrNoTranscript
	}
	track, ok := pickTrack(resp.Captions.Renderer.Tracks, f.config.Language)
	if !ok {
		return "", errors.New("every caption track needs a browser proof-of-origin token")
	}
	return f.fetchTrack(ctx, videoID, track.BaseURL)
}

// fetchTrack downloads a caption track XML document.
func (f *CaptionFetcher) fetchTrack(ctx context.Context, videoID, trackURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, trackURL, http.NoBody)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", webUserAgent)
	resp, err := f.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return "", ErrNoTranscript
	case resp.StatusCode != http.StatusOK:
		return "", fmt.Errorf("received status code %d for captions of %s", resp.StatusCode, videoID)
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxCaptionBody))
	if err != nil {
		return "", err
	}
	text := extractTranscript(doc)
	if text == "" {
		return "", ErrNoTranscript
	}
	return text, nil
}

func (f *CaptionFetcher) postWeb(ctx context.Context, path, visitor string, payload any) ([]byte, error) {
	return f.post(ctx, path, payload, func(h http.Header) {
		h.Set("User-Agent", webUserAgent)
		h.Set("X-Youtube-Client-Name", "1")
		h.Set("X-Youtube-Client-Version", webClientVersion)
		h.Set("X-Goog-Visitor-Id", visitor)
		h.Set("Origin", "https://www.youtube.com")
		h.Set("Referer", "https://www.youtube.com/")
	})
}

func (f *CaptionFetcher) post(ctx context.Context, path string, payload any, headers func(http.Header)) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.config.BaseURL+path+"?prettyPrint=false", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	headers(req.Header)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("received status code %d from %s", resp.StatusCode, path)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxInnertubeBody))
}

type captionTrack struct {
	BaseURL      string `json:"baseUrl"`
	LanguageCode string `json:"languageCode"`
	Kind         string `json:"kind"` // "asr" for auto-generated
}

type playerResponse struct {
	Captions *struct {
		Renderer struct {
			Tracks []captionTrack `json:"captionTracks"`
		} `json:"playerCaptionsTracklistRenderer"`
	} `json:"captions"`
	PlayabilityStatus *struct {
		Status string `json:"status"`
		Reason string `json:"reason"`
	} `json:"playabilityStatus"`
}

// pickTrack prefers a manual track in lang, then an auto-generated one, then
// any English track. Tracks that need a browser proof-of-origin token are
// never picked.
func pickTrack(tracks []captionTrack, lang string) (captionTrack, bool) {
	usable := make([]captionTrack, 0, len(tracks))
	for _, t := range tracks {
		if !strings.Contains(t.BaseURL, "&exp=xpe") {
			usable = append(usable, t)
		}
	}
	if len(usable) == 0 {
		return captionTrack{}, false
	}
	for _, t := range usable {
		if t.LanguageCode == lang && t.Kind != "asr" {
			return t, true
		}
	}
	for _, t := range usable {
		if t.LanguageCode == lang {
			return t, true
		}
	}
	for _, t := range usable {
		if strings.HasPrefix(t.LanguageCode, "en") {
			return t, true
		}
	}
	return usable[0], true
}

type getTranscriptResponse struct {
	Actions []struct {
		Panel *struct {
			Content struct {
				Renderer struct {
					Content struct {
						SearchPanel struct {
							Body struct {
								SegmentList struct {
									Segments []struct {
										Segment *struct {
											Snippet struct {
												Runs []struct {
													Text string `json:"text"`
												} `json:"runs"`
											} `json:"snippet"`
										} `json:"transcriptSegmentRenderer"`
									} `json:"initialSegments"`
								} `json:"transcriptSegmentListRenderer"`
							} `json:"body"`
						} `json:"transcriptSearchPanelRenderer"`
					} `json:"content"`
				} `json:"transcriptRenderer"`
			} `json:"content"`
		} `json:"updateEngagementPanelAction"`
	} `json:"actions"`
}

func (r getTranscriptResponse) text() string {
	var parts []string
	for _, a := range r.Actions {
		if a.Panel == nil {
			continue
		}
		for _, s := range a.Panel.Content.Renderer.Content.SearchPanel.Body.SegmentList.Segments {
			if s.Segment == nil {
				continue
			}
			for _, run := range s.Segment.Snippet.Runs {
				if cue := strings.Join(strings.Fields(run.Text), " "); cue != "" {
					parts = append(parts, cue)
				}
			}
		}
	}
	return strings.Join(parts, " ")
}

// extractTranscript joins the cues of a caption track. Classic tracks use
// <text> cues, format 3 tracks use <p>. Cue text is HTML-escaped inside the
// XML, so it is unescaped once more.
func extractTranscript(doc *goquery.Document) string {
	var parts []string
	doc.Find("text, p").Each(func(_ int, s *goquery.Selection) {
		cue := strings.Join(strings.Fields(html.UnescapeString(s.Text())), " ")
		if cue != "" {
			parts = append(parts, cue)
		}
	})
	return strings.Join(parts, " ")
}

// visitorData is a random 11-character visitor id for Innertube requests.
func visitorData() string {
	const chars = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_"
	b := make([]byte, 11)
	for i := range b {
		b[i] = chars[rand.Intn(len(chars))] //nolint:gosec
	}
	return string(b)
}
