package server

import (
	"context"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/xhad/tubeqa/internal/models"
	"github.com/xhad/tubeqa/pkg/logging"
)

// AskInput is the input schema for the ask_videos tool.
type AskInput struct {
	Question string `json:"question" jsonschema:"the question to answer from the video transcripts"`
	NResults int    `json:"n_results,omitempty" jsonschema:"number of transcript excerpts to retrieve (default 5)"`
}

// StatsInput is the empty input schema for the video_stats tool.
type StatsInput struct{}

// MCPServer exposes the service as MCP tools.
type MCPServer struct {
	qa     QA
	server *mcp.Server
	logger *zap.Logger
}

func NewMCPServer(svc QA, logger *zap.Logger) *MCPServer {
	s := &MCPServer{
		qa: svc,
		server: mcp.NewServer(&mcp.Implementation{
			Name:    "tubeqa",
			Version: Version,
		}, nil),
		logger: logging.OrNop(logger),
	}

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "ask_videos",
		Description: "Answer a question from indexed video transcripts, citing the source videos",
	}, s.handleAsk)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "video_stats",
		Description: "Report how many transcript chunks and videos are indexed",
	}, s.handleStats)

	return s
}

// Run serves MCP over stdio until ctx is cancelled.
func (s *MCPServer) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// HTTPHandler serves MCP over streamable HTTP.
func (s *MCPServer) HTTPHandler() http.Handler {
	return mcp.NewStreamableHTTPHandler(func(_ *http.Request) *mcp.Server {
		return s.server
	}, nil)
}

func (s *MCPServer) handleAsk(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input AskInput,
) (*mcp.CallToolResult, models.Answer, error) {
	answer, err := s.qa.Ask(ctx, input.Question, input.NResults)
	if err != nil {
		s.logger.Debug("ask_videos failed", zap.Error(err))
		return nil, models.Answer{}, err
	}
	return nil, *answer, nil
}

func (s *MCPServer) handleStats(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	_ StatsInput,
) (*mcp.CallToolResult, models.Stats, error) {
	stats, err := s.qa.Stats(ctx)
	if err != nil {
		return nil, models.Stats{}, err
	}
	return nil, *stats, nil
}
