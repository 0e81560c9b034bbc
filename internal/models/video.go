package models

import (
	"fmt"
	"strings"
	"time"
)

type Video struct {
	VideoID     string    `json:"video_id"`
	Title       string    `json:"title"`
	URL         string    `json:"url"`
	PublishedAt time.Time `json:"published_at"`
}

// TranscriptRecord is what the acquirer hands to ingestion. Transcript may be
// empty when the video has no captions.
type TranscriptRecord struct {
	Video
	Transcript string `json:"transcript"`
	WordCount  int    `json:"word_count"`
}

// WatchURL returns the canonical watch page for a video id.
func WatchURL(videoID string) string {
	return "https://www.youtube.com/watch?v=" + videoID
}

type Chunk struct {
	VideoID    string
	ChunkIndex int
	Text       string
	WordCount  int
}

// ChunkMetadata is stored next to every vector so retrieval never has to
// join back to the video.
type ChunkMetadata struct {
	VideoID    string `json:"video_id"`
	Title      string `json:"title"`
	URL        string `json:"url"`
	ChunkIndex int    `json:"chunk_index"`
}

// Validate rejects metadata with a missing required field.
func (m ChunkMetadata) Validate() error {
	var missing []string
	if strings.TrimSpace(m.VideoID) == "" {
		missing = append(missing, "video_id")
	}
	if strings.TrimSpace(m.Title) == "" {
		missing = append(missing, "title")
	}
	if strings.TrimSpace(m.URL) == "" {
		missing = append(missing, "url")
	}
	if m.ChunkIndex < 0 {
		missing = append(missing, "chunk_index")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing or invalid metadata fields: %s", strings.Join(missing, ", "))
	}
	return nil
}

// ChunkID is the store key of a chunk. Re-indexing the same chunk reuses it.
func ChunkID(videoID string, chunkIndex int) string {
	return fmt.Sprintf("%s_%d", videoID, chunkIndex)
}

type IndexedChunk struct {
	ID        string
	Text      string
	Embedding []float32
	Metadata  ChunkMetadata
}

// ScoredChunk is a raw store hit before distance conversion. Seq is the
// insertion sequence used to keep ordering stable on equal distances.
type ScoredChunk struct {
	ID       string
	Text     string
	Metadata ChunkMetadata
	Distance float64
	Seq      int64
}

type RetrievalResult struct {
	ChunkText  string        `json:"chunk_text"`
	Metadata   ChunkMetadata `json:"metadata"`
	Distance   float64       `json:"distance"`
	Similarity float64       `json:"similarity"`
}

type SourceInfo struct {
	VideoID        string  `json:"video_id"`
	Title          string  `json:"title"`
	URL            string  `json:"url"`
	ChunkIndex     int     `json:"chunk_index"`
	RelevanceScore float64 `json:"relevance_score"`
}

type Answer struct {
	Text    string       `json:"answer"`
	Sources []SourceInfo `json:"sources"`
	Query   string       `json:"query"`
}

type VideoRef struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

type Stats struct {
	TotalChunks  int        `json:"total_chunks"`
	TotalVideos  int        `json:"total_videos"`
	SampleVideos []VideoRef `json:"sample_videos"`
}
