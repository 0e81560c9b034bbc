package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/xhad/tubeqa/pkg/config"
	"github.com/xhad/tubeqa/pkg/logging"
)

var (
	configPath string
	debugFlag  bool

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "tubeqa",
	Short: "Ask questions about a YouTube channel's videos",
	Long: `tubeqa collects the transcripts of a channel's videos, indexes them in a
vector store, and answers questions about them with a language model,
citing the videos each answer draws on.

Typical flow:
  tubeqa fetch       # download transcripts to data/youtuber_context.json
  tubeqa ingest      # chunk, embed and index them
  tubeqa serve       # HTTP + WebSocket API on :8000
  tubeqa ask "What does the host recommend for beginners?"`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	PersistentPostRun: func(*cobra.Command, []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file")
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "enable debug logging")
}

func setup(cmd *cobra.Command, _ []string) error {
	c, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}
	if debugFlag {
		c.Debug = true
	}
	if errs := c.Validate(); len(errs) > 0 {
		msgs := make([]string, len(errs))
		for i, e := range errs {
			msgs[i] = e.Error()
		}
		return fmt.Errorf("invalid configuration:\n  %s", strings.Join(msgs, "\n  "))
	}

	l, err := logging.New(c.Debug)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	// only the long-running server logs at info; the rest keep the terminal for output
	if !c.Debug && cmd.Name() != "serve" {
		l = l.WithOptions(zap.IncreaseLevel(zapcore.WarnLevel))
	}

	cfg, logger = c, l
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
