package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/xhad/tubeqa/internal/types"
	"github.com/xhad/tubeqa/pkg/qa"
)

var askResults int

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a question about the indexed videos",
	Long: `Answers a question from the indexed transcripts and lists the videos the
answer draws on. Without a question an interactive session starts; type
'exit' to quit.`,
	RunE: runAsk,
}

func init() {
	askCmd.Flags().IntVarP(&askResults, "results", "n", 0, "transcript excerpts to retrieve (default search.default_results)")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	svc, err := newService(ctx)
	if err != nil {
		return err
	}
	defer svc.Close()

	out := cmd.OutOrStdout()
	if len(args) > 0 {
		return askOnce(ctx, out, svc, strings.Join(args, " "))
	}

	color.Cyan("\nAsk about the channel's videos (type 'exit' to quit)")

	scanner := bufio.NewScanner(cmd.InOrStdin())
	userPrompt := color.New(color.FgGreen).FprintfFunc()

	for {
		userPrompt(out, "\nYou: ")
		if !scanner.Scan() {
			break
		}

		question := strings.TrimSpace(scanner.Text())
		if question == "" {
			continue
		}
		if strings.ToLower(question) == "exit" {
			break
		}

		if err := askOnce(ctx, out, svc, question); err != nil {
			if errors.Is(err, types.ErrNoRelevantContent) {
				color.Yellow("No relevant content found in the indexed videos.")
				continue
			}
			color.Red("Error: %v", err)
		}
	}
	return scanner.Err()
}

func askOnce(ctx context.Context, out io.Writer, svc *qa.Service, question string) error {
	spinner := getSpinner(" Searching transcripts...")
	answer, err := svc.Ask(ctx, question, askResults)
	_ = spinner.Finish()
	fmt.Fprint(os.Stderr, "\r")
	if err != nil {
		return err
	}

	fmt.Fprintln(out)
	printAnswer(out, answer)
	return nil
}
