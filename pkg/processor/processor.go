package processor

import (
	"regexp"
	"strings"

	"github.com/xhad/tubeqa/internal/models"
)

const (
	DefaultChunkSize    = 500
	DefaultChunkOverlap = 50
)

type ProcessorConfig struct {
	ChunkSize        int // words of new content per chunk
	ChunkOverlap     int // words repeated from the previous chunk
	StripAnnotations bool
	Lowercase        bool
	RemoveStopwords  bool
	CustomStopwords  []string
}

type Processor struct {
	config    ProcessorConfig
	stopwords map[string]struct{}
}

// ProcessedVideo is a video with its ordered chunks. Videos whose transcript
// is empty after cleaning are never returned.
type ProcessedVideo struct {
	models.Video
	Chunks []models.Chunk
}

// annotationRE matches caption cues such as [Music] or [Background Music]:
// a short bracketed run of letters and spaces. Brackets holding digits or
// punctuation are spoken content and stay.
var annotationRE = regexp.MustCompile(`\[\p{L}[\p{L} ]{0,23}\]`)

func NewWithConfig(config ProcessorConfig) Processor {
	if config.ChunkSize <= 0 {
		config.ChunkSize = DefaultChunkSize
	}
	config.ChunkOverlap = clampOverlap(config.ChunkSize, config.ChunkOverlap)

	p := Processor{config: config}
	if config.RemoveStopwords {
		p.stopwords = make(map[string]struct{})
		for _, w := range getStopwords() {
			p.stopwords[w] = struct{}{}
		}
		for _, w := range config.CustomStopwords {
			p.stopwords[strings.ToLower(w)] = struct{}{}
		}
	}
	return p
}

func (p *Processor) Config() ProcessorConfig { return p.config }

func (p *Processor) Process(records []models.TranscriptRecord) []ProcessedVideo {
	var processed []ProcessedVideo

	for _, rec := range records {
		chunks := p.ChunkVideo(rec.VideoID, rec.Transcript)
		if len(chunks) == 0 {
			continue
		}
		processed = append(processed, ProcessedVideo{
			Video:  rec.Video,
			Chunks: chunks,
		})
	}

	return processed
}

// ChunkVideo cleans a transcript and splits it into chunks numbered from 0.
func (p *Processor) ChunkVideo(videoID, transcript string) []models.Chunk {
	texts := Chunk(p.cleanText(transcript), p.config.ChunkSize, p.config.ChunkOverlap)
	chunks := make([]models.Chunk, 0, len(texts))
	for i, text := range texts {
		chunks = append(chunks, models.Chunk{
			VideoID:    videoID,
			ChunkIndex: i,
			Text:       text,
			WordCount:  len(strings.Fields(text)),
		})
	}
	return chunks
}

func (p *Processor) cleanText(text string) string {
	if p.config.StripAnnotations {
		text = annotationRE.ReplaceAllString(text, " ")
	}
	if p.config.Lowercase {
		text = strings.ToLower(text)
	}

	// Replace runs of whitespace with a single space
	text = strings.Join(strings.Fields(text), " ")

	if p.config.RemoveStopwords {
		text = p.removeStopwords(text)
	}

	return strings.TrimSpace(text)
}

// Chunk splits text into chunks of at most targetSize new words, packing
// whole sentences where possible. Every chunk after the first starts with the
// last overlap words of the chunk before it. A sentence longer than
// targetSize is split on word boundaries.
func Chunk(text string, targetSize, overlap int) []string {
	if targetSize <= 0 {
		targetSize = DefaultChunkSize
	}
	overlap = clampOverlap(targetSize, overlap)

	var (
		chunks  []string
		current []string
		fresh   int
	)

	flush := func() {
		if fresh == 0 {
			return
		}
		chunks = append(chunks, strings.Join(current, " "))
		start := len(current) - overlap
		if start < 0 {
			start = 0
		}
		current = append([]string(nil), current[start:]...)
		fresh = 0
	}

	for _, sentence := range splitIntoSentences(text) {
		for len(sentence) > 0 {
			room := targetSize - fresh
			if len(sentence) <= room {
				current = append(current, sentence...)
				fresh += len(sentence)
				break
			}
			if fresh > 0 && len(sentence) <= targetSize {
				flush()
				continue
			}
			current = append(current, sentence[:room]...)
			fresh += room
			sentence = sentence[room:]
			flush()
		}
	}
	flush()

	return chunks
}

// splitIntoSentences groups the words of text into sentences ending in
// '.', '!' or '?'. Auto-generated captions often have no punctuation, in which
// case the whole text is one sentence.
func splitIntoSentences(text string) [][]string {
	var sentences [][]string
	var current []string

	for _, word := range strings.Fields(text) {
		current = append(current, word)
		if endsSentence(word) {
			sentences = append(sentences, current)
			current = nil
		}
	}

	if len(current) > 0 {
		sentences = append(sentences, current)
	}

	return sentences
}

func endsSentence(word string) bool {
	word = strings.TrimRight(word, `"')]`)
	return strings.HasSuffix(word, ".") || strings.HasSuffix(word, "!") || strings.HasSuffix(word, "?")
}

func clampOverlap(size, overlap int) int {
	if overlap < 0 || overlap >= size {
		return size / 4
	}
	return overlap
}

func (p *Processor) removeStopwords(text string) string {
	words := strings.Fields(text)
	filtered := words[:0]

	for _, word := range words {
		if _, ok := p.stopwords[strings.ToLower(word)]; !ok {
			filtered = append(filtered, word)
		}
	}

	return strings.Join(filtered, " ")
}

// Common English stopwords
func getStopwords() []string {
	return []string{
		"a", "an", "and", "are", "as", "at", "be", "by", "for",
		"from", "has", "he", "in", "is", "it", "its", "of", "on",
		"that", "the", "to", "was", "were", "will", "with",
	}
}
