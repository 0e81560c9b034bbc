package main

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"

	"github.com/xhad/tubeqa/internal/models"
)

func getProgressBar(total int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription(color.BlueString(description)),
		progressbar.OptionSetItsString("videos"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionSetRenderBlankState(true),
	)
}

func getSpinner(description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription(color.CyanString(description)),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetWidth(20),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetRenderBlankState(true),
	)
}

func printAnswer(w io.Writer, answer *models.Answer) {
	fmt.Fprintf(w, "%s %s\n", color.CyanString("Assistant:"), answer.Text)
	if len(answer.Sources) == 0 {
		return
	}
	fmt.Fprintln(w, color.New(color.Bold).Sprint("\nSources:"))
	for i, src := range answer.Sources {
		fmt.Fprintf(w, "  [%d] %s (chunk %d, relevance %.2f)\n      %s\n",
			i+1, src.Title, src.ChunkIndex, src.RelevanceScore, color.BlueString(src.URL))
	}
}

func printStats(w io.Writer, stats *models.Stats) {
	fmt.Fprintf(w, "%s %d\n", color.GreenString("Chunks indexed:"), stats.TotalChunks)
	fmt.Fprintf(w, "%s %d\n", color.GreenString("Videos indexed:"), stats.TotalVideos)
	if len(stats.SampleVideos) == 0 {
		return
	}
	fmt.Fprintln(w, "Sample videos:")
	for _, v := range stats.SampleVideos {
		fmt.Fprintf(w, "  - %s  %s\n", v.Title, color.BlueString(v.URL))
	}
}
