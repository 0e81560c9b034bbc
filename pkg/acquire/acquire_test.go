package acquire

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhad/tubeqa/internal/models"
	"github.com/xhad/tubeqa/internal/types"
)

const timedText = `<?xml version="1.0" encoding="utf-8" ?>
<transcript>
	<text start="0.5" dur="2.1">[Music]</text>
	<text start="2.6" dur="3.0">the sky is &amp;#39;blue&amp;#39;</text>
	<text start="5.6" dur="2.0">and the   grass
is green</text>
</transcript>`

// innertubeRequest is the part of an Innertube payload the fakes look at.
type innertubeRequest struct {
	VideoID string `json:"videoId"`
	Params  string `json:"params"`
	Context struct {
		Client struct {
			ClientName string `json:"clientName"`
			Hl         string `json:"hl"`
		} `json:"client"`
	} `json:"context"`
}

func decodeInnertube(t *testing.T, r *http.Request) innertubeRequest {
	t.Helper()
	var req innertubeRequest
	assert.Equal(t, http.MethodPost, r.Method)
	assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
	return req
}

// nextResponse carries the transcript panel token the way /next does:
// URL-encoded inside the engagement panels.
func nextResponse(token string) string {
	return `{"engagementPanels":[{"engagementPanelSectionListRenderer":{"content":{"continuationItemRenderer":` +
		`{"continuationEndpoint":{"getTranscriptEndpoint":{"params":"` + url.QueryEscape(token) + `"}}}}}}]}`
}

func transcriptResponse(cues ...string) string {
	segs := make([]string, len(cues))
	for i, c := range cues {
		raw, _ := json.Marshal(c)
		segs[i] = `{"transcriptSegmentRenderer":{"snippet":{"runs":[{"text":` + string(raw) + `}]}}}`
	}
	return `{"actions":[{"updateEngagementPanelAction":{"content":{"transcriptRenderer":{"content":` +
		`{"transcriptSearchPanelRenderer":{"body":{"transcriptSegmentListRenderer":{"initialSegments":[` +
		strings.Join(segs, ",") + `]}}}}}}}}]}`
}

// fakeYouTube serves the YouTube Data API and the Innertube caption endpoints
// used by Fetch. vid1 has a transcript panel; the other captioned videos are
// only reachable through player caption tracks.
func fakeYouTube(t *testing.T) (*httptest.Server, *sync.Map) {
	t.Helper()
	var seen sync.Map
	mux := http.NewServeMux()

	mux.HandleFunc("/youtube/v3/channels", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.URL.Query().Get("key"))
		if r.URL.Query().Get("id") != "UC123" {
			w.Write([]byte(`{"items": []}`))
			return
		}
		w.Write([]byte(`{"items": [{"id": "UC123", "snippet": {"title": "Test Channel"},
			"contentDetails": {"relatedPlaylists": {"uploads": "UU123"}}}]}`))
	})

	mux.HandleFunc("/youtube/v3/playlistItems", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "UU123", r.URL.Query().Get("playlistId"))
		assert.Equal(t, "50", r.URL.Query().Get("maxResults"))
		item := func(id, title string) string {
			return `{"snippet": {"title": "` + title + `", "publishedAt": "2024-03-01T10:00:00Z", "resourceId": {"videoId": "` + id + `"}}}`
		}
		if r.URL.Query().Get("pageToken") == "" {
			w.Write([]byte(`{"nextPageToken": "p2", "items": [` + item("vid1", "First") + `,` + item("nocap", "Silent") + `]}`))
			return
		}
		w.Write([]byte(`{"items": [` + item("vid2", "Second") + `,` + item("vid3", "Third") + `]}`))
	})

	mux.HandleFunc("/youtubei/v1/next", func(w http.ResponseWriter, r *http.Request) {
		req := decodeInnertube(t, r)
		seen.Store(req.VideoID, true)
		assert.Equal(t, "WEB", req.Context.Client.ClientName)
		if req.VideoID != "vid1" {
			w.Write([]byte(`{"contents":{}}`))
			return
		}
		w.Write([]byte(nextResponse("panel/vid1=")))
	})

	mux.HandleFunc("/youtubei/v1/get_transcript", func(w http.ResponseWriter, r *http.Request) {
		req := decodeInnertube(t, r)
		assert.Equal(t, "panel/vid1=", req.Params)
		w.Write([]byte(transcriptResponse("[Music]", "the sky is 'blue'", "and the   grass\nis green")))
	})

	mux.HandleFunc("/youtubei/v1/player", func(w http.ResponseWriter, r *http.Request) {
		req := decodeInnertube(t, r)
		assert.Equal(t, "ANDROID", req.Context.Client.ClientName)
		if req.VideoID == "nocap" {
			w.Write([]byte(`{"playabilityStatus":{"status":"OK"}}`))
			return
		}
		track := "http://" + r.Host + "/api/timedtext?v=" + req.VideoID + "&lang=en"
		w.Write([]byte(`{"captions":{"playerCaptionsTracklistRenderer":{"captionTracks":[` +
			`{"baseUrl":"` + track + `","languageCode":"en","kind":"asr"}]}}}`))
	})

	mux.HandleFunc("/api/timedtext", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/xml")
		w.Write([]byte(timedText))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &seen
}

func newTestSource(t *testing.T, srv *httptest.Server, maxVideos int, onVideo func(models.Video, int, error)) *YouTubeSource {
	t.Helper()
	s, err := NewYouTubeSource(context.Background(), YouTubeConfig{
		APIKey:         "test-key",
		ChannelID:      "UC123",
		MaxVideos:      maxVideos,
		Pacing:         time.Millisecond,
		APIEndpoint:    srv.URL + "/",
		CaptionBaseURL: srv.URL,
		OnVideo:        onVideo,
	})
	require.NoError(t, err)
	return s
}

func TestYouTubeSource_Fetch(t *testing.T) {
	srv, _ := fakeYouTube(t)

	var skipped []string
	s := newTestSource(t, srv, 0, func(v models.Video, _ int, err error) {
		if err != nil {
			assert.ErrorIs(t, err, types.ErrAcquisition)
			assert.ErrorIs(t, err, ErrNoTranscript)
			skipped = append(skipped, v.VideoID)
		}
	})

	records, err := s.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, []string{"nocap"}, skipped)

	first := records[0]
	assert.Equal(t, "vid1", first.VideoID)
	assert.Equal(t, "First", first.Title)
	assert.Equal(t, "https://www.youtube.com/watch?v=vid1", first.URL)
	assert.Equal(t, "[Music] the sky is 'blue' and the grass is green", first.Transcript)
	assert.Equal(t, 10, first.WordCount)
	assert.Equal(t, time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC), first.PublishedAt.UTC())

	assert.Equal(t, "vid3", records[2].VideoID)
}

func TestYouTubeSource_MaxVideos(t *testing.T) {
	srv, seen := fakeYouTube(t)
	s := newTestSource(t, srv, 1, nil)

	records, err := s.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "vid1", records[0].VideoID)

	_, fetched := seen.Load("vid2")
	assert.False(t, fetched)
}

func TestYouTubeSource_UnknownChannel(t *testing.T) {
	srv, _ := fakeYouTube(t)
	s, err := NewYouTubeSource(context.Background(), YouTubeConfig{
		APIKey:      "test-key",
		ChannelID:   "UCmissing",
		APIEndpoint: srv.URL + "/",
	})
	require.NoError(t, err)

	_, err = s.Fetch(context.Background())
	assert.ErrorContains(t, err, "channel UCmissing not found")
}

func TestNewYouTubeSource_RequiresCredentials(t *testing.T) {
	_, err := NewYouTubeSource(context.Background(), YouTubeConfig{ChannelID: "UC1"})
	assert.Error(t, err)
}

func TestCaptionFetcher(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/youtubei/v1/next", func(w http.ResponseWriter, r *http.Request) {
		req := decodeInnertube(t, r)
		assert.Equal(t, "de", req.Context.Client.Hl)
		switch req.VideoID {
		case "panel":
			w.Write([]byte(nextResponse("tok:panel")))
		case "broken":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			w.Write([]byte(`{}`))
		}
	})
	mux.HandleFunc("/youtubei/v1/get_transcript", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "tok:panel", decodeInnertube(t, r).Params)
		w.Write([]byte(transcriptResponse("hallo", " ", "welt")))
	})
	mux.HandleFunc("/youtubei/v1/player", func(w http.ResponseWriter, r *http.Request) {
		req := decodeInnertube(t, r)
		base := "http://" + r.Host + "/api/timedtext?v=" + req.VideoID
		switch req.VideoID {
		case "tracks":
			w.Write([]byte(`{"captions":{"playerCaptionsTracklistRenderer":{"captionTracks":[
				{"baseUrl":"` + base + `&lang=en","languageCode":"en"},
				{"baseUrl":"` + base + `&lang=de&exp=xpe","languageCode":"de"},
				{"baseUrl":"` + base + `&lang=de","languageCode":"de","kind":"asr"}]}}}`))
		case "login":
			w.Write([]byte(`{"playabilityStatus":{"status":"LOGIN_REQUIRED","reason":"Sign in to confirm your age"}}`))
		case "broken":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			w.Write([]byte(`{"playabilityStatus":{"status":"OK"}}`))
		}
	})
	mux.HandleFunc("/api/timedtext", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("lang") != "de" {
			w.Write([]byte(`<transcript><text>hello</text></transcript>`))
			return
		}
		w.Write([]byte(`<timedtext format="3"><body><p t="0" d="900">hallo</p><p t="900" d="800">welt</p></body></timedtext>`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	f := NewCaptionFetcher(CaptionConfig{BaseURL: srv.URL + "/", Language: "de"}, nil)
	ctx := context.Background()

	text, err := f.Fetch(ctx, "panel")
	require.NoError(t, err)
	assert.Equal(t, "hallo welt", text)

	// falls back to the player and skips the token-gated track
	text, err = f.Fetch(ctx, "tracks")
	require.NoError(t, err)
	assert.Equal(t, "hallo welt", text)

	_, err = f.Fetch(ctx, "empty")
	assert.True(t, errors.Is(err, ErrNoTranscript))

	_, err = f.Fetch(ctx, "login")
	assert.ErrorIs(t, err, ErrNoTranscript)
	assert.ErrorContains(t, err, "Sign in to confirm your age")

	_, err = f.Fetch(ctx, "broken")
	assert.ErrorContains(t, err, "status code 500")
	assert.False(t, errors.Is(err, ErrNoTranscript))
}

func TestPickTrack(t *testing.T) {
	manualDE := captionTrack{BaseURL: "https://x/de", LanguageCode: "de"}
	autoDE := captionTrack{BaseURL: "https://x/de-asr", LanguageCode: "de", Kind: "asr"}
	enGB := captionTrack{BaseURL: "https://x/en", LanguageCode: "en-GB"}
	gated := captionTrack{BaseURL: "https://x/de?v=1&exp=xpe", LanguageCode: "de"}
	fr := captionTrack{BaseURL: "https://x/fr", LanguageCode: "fr"}

	tests := []struct {
		name   string
		tracks []captionTrack
		want   captionTrack
		ok     bool
	}{
		{"manual over auto", []captionTrack{autoDE, manualDE}, manualDE, true},
		{"auto in language", []captionTrack{enGB, autoDE}, autoDE, true},
		{"english fallback", []captionTrack{fr, enGB}, enGB, true},
		{"first usable", []captionTrack{gated, fr}, fr, true},
		{"only gated", []captionTrack{gated}, captionTrack{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := pickTrack(tt.tracks, "de")
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFileSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "context.json")
	records := []models.TranscriptRecord{
		{
			Video:      models.Video{VideoID: "a", Title: "A", URL: models.WatchURL("a")},
			Transcript: "one two three",
			WordCount:  3,
		},
	}
	require.NoError(t, Save(path, records))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"word_count": 3`)
	assert.Contains(t, string(raw), `"video_id": "a"`)

	got, err := FileSource{Path: path}.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, records[0].Transcript, got[0].Transcript)
	assert.Equal(t, 3, TotalWords(got))
}

func TestFileSource_FillsDerivedFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "in.json")
	data, err := json.Marshal([]map[string]any{
		{"video_id": "xyz", "title": "Legacy", "transcript": "four words right here"},
	})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	got, err := FileSource{Path: path}.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, models.WatchURL("xyz"), got[0].URL)
	assert.Equal(t, 4, got[0].WordCount)
}

func TestFileSource_Errors(t *testing.T) {
	_, err := FileSource{Path: filepath.Join(t.TempDir(), "missing.json")}.Fetch(context.Background())
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{not json"), 0o644))
	_, err = FileSource{Path: bad}.Fetch(context.Background())
	assert.True(t, strings.Contains(err.Error(), "parse transcripts"))
}
