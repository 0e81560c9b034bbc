package acquire

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xhad/tubeqa/internal/models"
	"github.com/xhad/tubeqa/internal/types"
)

var _ types.TranscriptSource = FileSource{}

// FileSource reads transcript records saved by the fetch command.
type FileSource struct {
	Path string
}

func (f FileSource) Fetch(_ context.Context) ([]models.TranscriptRecord, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("read transcripts: %w", err)
	}

	var records []models.TranscriptRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parse transcripts %s: %w", f.Path, err)
	}
	for i := range records {
		if records[i].URL == "" && records[i].VideoID != "" {
			records[i].URL = models.WatchURL(records[i].VideoID)
		}
		if records[i].WordCount == 0 {
			records[i].WordCount = len(strings.Fields(records[i].Transcript))
		}
	}
	return records, nil
}

// Save writes records as indented JSON, creating parent directories.
func Save(path string, records []models.TranscriptRecord) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}
	if records == nil {
		records = []models.TranscriptRecord{}
	}
	data, err := json.MarshalIndent(records, "", "    ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// TotalWords sums the word counts of records.
func TotalWords(records []models.TranscriptRecord) int {
	total := 0
	for _, r := range records {
		total += r.WordCount
	}
	return total
}
