package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xhad/tubeqa/pkg/qa"
	"github.com/xhad/tubeqa/server"
)

var (
	serveHost string
	servePort int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP, WebSocket and MCP API",
	Long: `Serves the question-answering API:

  GET  /         service info and readiness
  GET  /health   index and language model readiness
  POST /ask      {"question": "...", "n_results": 5}
  GET  /stats    index totals and sample videos
  GET  /ws       WebSocket, send {"type": "ask", "content": "..."}
       /mcp      MCP over streamable HTTP`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "", "listen host (default server.host)")
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "listen port (default server.port)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := newService(ctx)
	if err != nil {
		return err
	}
	defer svc.Close()

	if h := svc.Health(ctx); h.Status != qa.StatusHealthy {
		logger.Warn("starting degraded", zap.Bool("index", h.IndexReady), zap.Bool("llm", h.LLMReady))
	}

	conf := server.Config{
		Host:           cfg.Server.Host,
		Port:           cfg.Server.Port,
		RequestTimeout: cfg.LLM.Timeout + 30*time.Second,
	}
	if serveHost != "" {
		conf.Host = serveHost
	}
	if servePort > 0 {
		conf.Port = servePort
	}
	srv := server.NewServer(svc, conf, logger)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Stop(shutdownCtx)
}
